/*
Copyright 2025 Chatcart Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package chatcart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatcart/chatcart/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// The latest-marker records, per actor, the (source, receipt) ordering key of
// the most recently admitted message. It only ever moves forward.

func markerKey(actorID string) string {
	return fmt.Sprintf("marker:%s", actorID)
}

// orderKeyLess reports whether ordering key A is strictly older than key B.
// The source timestamp has coarse second resolution, so messages created in
// the same second share a value; the finer local receipt timestamp breaks
// ties deterministically in arrival order.
func orderKeyLess(aSource, aReceipt, bSource, bReceipt int64) bool {
	if aSource != bSource {
		return aSource < bSource
	}
	return aReceipt < bReceipt
}

func formatMarker(source, receipt int64) string {
	return fmt.Sprintf("%d:%d", source, receipt)
}

func parseMarker(value string) (source, receipt int64, err error) {
	sourceStr, receiptStr, ok := strings.Cut(value, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed latest-marker value %q", value)
	}
	source, err = strconv.ParseInt(sourceStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	receipt, err = strconv.ParseInt(receiptStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return source, receipt, nil
}

// admitMessage advances the actor's latest-marker to this message's ordering
// key. A marker never regresses: if the stored key is already newer the
// write is skipped. Called with the actor lock held, so concurrent Phase-1
// admissions for one actor cannot interleave.
func (c *Chatcart) admitMessage(ctx context.Context, msg *model.InboundMessage) error {
	key := markerKey(msg.ActorID)
	current, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		curSource, curReceipt, parseErr := parseMarker(current)
		if parseErr == nil && orderKeyLess(msg.SourceTimestamp, msg.ReceiptTimestamp, curSource, curReceipt) {
			return nil // already superseded, keep the newer marker
		}
	}
	return c.redis.Set(ctx, key, formatMarker(msg.SourceTimestamp, msg.ReceiptTimestamp), 0).Err()
}

// isObsolete reports whether the message has been superseded by a newer
// admitted message for the same actor. Backend and parse failures fail open:
// a marker outage degrades to "process everything" rather than silently
// dropping messages.
func (c *Chatcart) isObsolete(ctx context.Context, msg *model.InboundMessage) bool {
	current, err := c.redis.Get(ctx, markerKey(msg.ActorID)).Result()
	if err != nil {
		if !isRedisNil(err) {
			logrus.Warnf("latest-marker read failed for %s, failing open: %v", msg.ActorID, err)
		}
		return false
	}
	curSource, curReceipt, err := parseMarker(current)
	if err != nil {
		logrus.Warnf("latest-marker parse failed for %s, failing open: %v", msg.ActorID, err)
		return false
	}
	return orderKeyLess(msg.SourceTimestamp, msg.ReceiptTimestamp, curSource, curReceipt)
}
