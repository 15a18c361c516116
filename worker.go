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
	"fmt"
	"time"

	"github.com/chatcart/chatcart/config"
	redlock "github.com/chatcart/chatcart/internal/lock"
	"github.com/chatcart/chatcart/internal/notification"
	"github.com/chatcart/chatcart/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("chatcart.worker")

func actorLockKey(actorID string) string {
	return fmt.Sprintf("actorlock:%s", actorID)
}

// acquireActorLock takes the per-actor mutual-exclusion lock with bounded
// exponential-backoff retry. Exhaustion wraps ErrLockTimeout so the queue
// retries the whole job.
func (c *Chatcart) acquireActorLock(ctx context.Context, actorID string) (*redlock.Locker, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	locker := redlock.NewLocker(c.redis, actorLockKey(actorID), model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Lock.TTLSeconds) * time.Second
	waitTimeout := time.Duration(cfg.Lock.WaitTimeoutSeconds) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, waitTimeout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return locker, nil
}

func releaseActorLock(ctx context.Context, locker *redlock.Locker) {
	if err := locker.Unlock(ctx); err != nil {
		logrus.Error("lock release error ", err)
	}
}

// ProcessInboundMessage runs the three-phase protocol for one queued message.
//
// Phase 1 (fast, locked) records the user turn and admits the ordering
// marker. Phase 2 (slow, unlocked) gates on obsolescence, then runs agent
// processing; the actor lock is deliberately not held here so one slow agent
// call cannot starve the actor's lock. Phase 3 (fast, locked) re-checks
// obsolescence, re-reads histories fresh, appends the outbound turns and only
// then sends, so a crash between write and send loses at most a notification,
// never history ordering.
//
// A returned error means the task should be retried by the queue; re-running
// Phase 1 for the same message is an accepted duplicate-turn risk.
func (c *Chatcart) ProcessInboundMessage(ctx context.Context, msg *model.InboundMessage) error {
	ctx, span := tracer.Start(ctx, "Processing Inbound Message")
	defer span.End()

	// Phase 1
	_, relevant, err := c.recordInboundTurn(ctx, msg)
	if err != nil {
		logrus.Errorf("message %s phase 1 failed: %v", msg.MessageID, err)
		return err
	}

	// Phase 2
	if c.isObsolete(ctx, msg) {
		// The user's message is recorded, it just no longer needs an answer.
		logrus.Infof("message %s skipped before processing: %v", msg.MessageID, ErrObsolete)
		return nil
	}
	result := c.runAgent(ctx, msg, relevant)

	// Phase 3
	return c.finalizeResult(ctx, msg, result)
}

// recordInboundTurn is Phase 1: under the actor lock, load-or-create the
// actor, append the inbound user turn and advance the latest-marker. The
// create-then-append pair happens under one lock acquisition so a brand-new
// actor is handled atomically.
func (c *Chatcart) recordInboundTurn(ctx context.Context, msg *model.InboundMessage) (full, relevant []model.Turn, err error) {
	locker, err := c.acquireActorLock(ctx, msg.ActorID)
	if err != nil {
		return nil, nil, err
	}
	defer releaseActorLock(ctx, locker)

	full, relevant, err = c.appendHistory(ctx, msg.ActorID, []historyAppend{{
		turn: model.Turn{
			Role:      model.RoleUser,
			Content:   msg.Text,
			Timestamp: time.Unix(msg.SourceTimestamp, 0),
		},
		relevant: true,
	}})
	if err != nil {
		return nil, nil, err
	}

	if err := c.admitMessage(ctx, msg); err != nil {
		// Marker writes share the lock backend; a failure here fails the job
		// closed rather than let ordering drift.
		return nil, nil, err
	}
	return full, relevant, nil
}

// runAgent invokes the external processing collaborator. Errors never fail
// the job: the user's message is already recorded, so a processing failure
// turns into a user-visible apology instead of a retry loop.
func (c *Chatcart) runAgent(ctx context.Context, msg *model.InboundMessage, relevant []model.Turn) *model.AgentResult {
	actor, err := c.datasource.GetActor(ctx, msg.ActorID)
	if err != nil {
		logrus.Errorf("message %s actor reload failed: %v", msg.MessageID, err)
		notification.NotifyError(err)
		return &model.AgentResult{Responses: []model.AgentResponse{model.ErrorResponse{Content: apologyMessage}}}
	}

	result, err := c.agent.GenerateResponse(ctx, msg.ActorID, actor.FullHistory, relevant)
	if err != nil {
		logrus.Errorf("message %s agent processing failed: %v", msg.MessageID, err)
		notification.NotifyError(err)
		return &model.AgentResult{Responses: []model.AgentResponse{model.ErrorResponse{Content: apologyMessage}}}
	}
	return result
}

// finalizeResult is Phase 3: the obsolescence post-check decides whether the
// computed output is still current. A job cancelled by a newer message during
// processing neither writes nor sends — its Phase 1 write stands, the rest is
// discarded.
func (c *Chatcart) finalizeResult(ctx context.Context, msg *model.InboundMessage, result *model.AgentResult) error {
	if c.isObsolete(ctx, msg) {
		logrus.Infof("message %s output discarded: %v", msg.MessageID, ErrObsolete)
		return nil
	}

	if result.ResetHistory {
		if err := c.clearHistoriesLocked(ctx, msg.ActorID); err != nil {
			return err
		}
	} else if err := c.recordOutboundTurns(ctx, msg.ActorID, result.Responses); err != nil {
		return err
	}

	// Send only after the history write committed.
	c.sendResponses(ctx, msg.ActorID, result.Responses)

	if result.OrderDraft != nil {
		if _, _, err := c.CreateAndNotify(ctx, msg.ActorID, result.OrderDraft); err != nil {
			return err
		}
	}
	return nil
}

// recordOutboundTurns appends the assistant turns under a fresh lock
// acquisition, re-reading histories because concurrent jobs for this actor
// may have written since Phase 1.
func (c *Chatcart) recordOutboundTurns(ctx context.Context, actorID string, responses []model.AgentResponse) error {
	entries := make([]historyAppend, 0, len(responses))
	now := time.Now()
	for _, resp := range responses {
		entries = append(entries, historyAppend{
			turn: model.Turn{
				Role:      model.RoleAssistant,
				Content:   resp.ResponseText(),
				Timestamp: now,
			},
			relevant: resp.ShouldRecord(),
			marker:   resp.RelevantMarker(),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	locker, err := c.acquireActorLock(ctx, actorID)
	if err != nil {
		return err
	}
	defer releaseActorLock(ctx, locker)

	_, _, err = c.appendHistory(ctx, actorID, entries)
	return err
}

func (c *Chatcart) clearHistoriesLocked(ctx context.Context, actorID string) error {
	locker, err := c.acquireActorLock(ctx, actorID)
	if err != nil {
		return err
	}
	defer releaseActorLock(ctx, locker)

	return c.resetHistory(ctx, actorID)
}

// sendResponses delivers each sendable response through the outbound
// transport. Failures are logged and notified, never retried: history is
// already consistent and a missed notification is an acceptable isolated
// loss.
func (c *Chatcart) sendResponses(ctx context.Context, actorID string, responses []model.AgentResponse) {
	for _, resp := range responses {
		if !resp.ShouldSend() {
			continue
		}
		if _, err := c.sender.SendMessage(ctx, actorID, resp.DeliveryText()); err != nil {
			logrus.Errorf("send to %s failed: %v", actorID, err)
			notification.NotifyError(err)
		}
	}
}
