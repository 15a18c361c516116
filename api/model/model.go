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
package model

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var actionIDPattern = regexp.MustCompile(`^(confirm|discard|changeType):`)

// QueueMessage is the inbound chat message payload. SourceTimestamp is the
// sender-side unix time in seconds; when omitted the server stamps receipt
// time, which degrades ordering to arrival order for that message.
type QueueMessage struct {
	ActorID         string `json:"actor_id"`
	Text            string `json:"text"`
	SourceTimestamp int64  `json:"source_timestamp"`
}

func (m *QueueMessage) ValidateQueueMessage() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.ActorID, validation.Required),
		validation.Field(&m.Text, validation.Required, validation.Length(1, 4096)),
		validation.Field(&m.SourceTimestamp, validation.Min(0)),
	)
}

// SourceTimestampOrNow fills a missing source timestamp with current time.
func (m *QueueMessage) SourceTimestampOrNow() int64 {
	if m.SourceTimestamp > 0 {
		return m.SourceTimestamp
	}
	return time.Now().Unix()
}

// SubmitAction is an interactive button callback: the actor tapped an action
// rendered by a prior proposal message.
type SubmitAction struct {
	ActorID  string `json:"actor_id"`
	ActionID string `json:"action_id"`
}

func (a *SubmitAction) ValidateSubmitAction() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ActorID, validation.Required),
		validation.Field(&a.ActionID, validation.Required, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if !actionIDPattern.MatchString(s) {
				return errors.New("action_id must start with confirm:, discard: or changeType:")
			}
			return nil
		})),
	)
}
