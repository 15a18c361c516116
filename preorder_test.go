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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/model"
	"github.com/stretchr/testify/assert"
)

func testDraft() *model.OrderDraft {
	return &model.OrderDraft{
		Items: []model.OrderItem{
			{Name: "flat white", Quantity: 2, PriceCents: 450},
			{Name: "croissant", Quantity: 1, PriceCents: 350},
		},
		OrderType: model.OrderTypePickup,
	}
}

func TestParseActionID(t *testing.T) {
	action, err := ParseActionID("confirm:abc123")
	assert.NoError(t, err)
	assert.Equal(t, ActionConfirm, action.Kind)
	assert.Equal(t, "abc123", action.Token)

	action, err = ParseActionID("discard:abc123")
	assert.NoError(t, err)
	assert.Equal(t, ActionDiscard, action.Kind)

	action, err = ParseActionID("changeType:42:delivery:addr9")
	assert.NoError(t, err)
	assert.Equal(t, ActionChangeType, action.Kind)
	assert.Equal(t, int64(42), action.PreOrderID)
	assert.Equal(t, model.OrderTypeDelivery, action.NewType)
	assert.Equal(t, "addr9", action.AddressID)

	action, err = ParseActionID("changeType:42:pickup")
	assert.NoError(t, err)
	assert.Empty(t, action.AddressID)

	for _, bad := range []string{
		"confirm",
		"confirm:",
		"nuke:abc",
		"changeType:notanint:pickup",
		"changeType:42:teleport",
		"changeType:42",
		"changeType:42:delivery:addr:extra",
	} {
		_, err := ParseActionID(bad)
		assert.ErrorIs(t, err, ErrTokenInvalid, "expected %q to be rejected", bad)
	}
}

func TestCreateAndNotifyIssuesSingleUseToken(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, expiresAt, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	pending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	id, err := h.chatcart.tokens.Resolve(ctx, token)
	assert.NoError(t, err)
	assert.Equal(t, pending.ID, id)

	// The proposal went out with both action identifiers embedded in the
	// content; the sanitized marker is what the history keeps.
	sent := h.sender.messages()
	assert.Len(t, sent, 1)
	assert.Contains(t, sent[0], "confirm:"+token)
	assert.Contains(t, sent[0], "discard:"+token)
	actor, err := h.ds.GetActor(ctx, "555")
	assert.NoError(t, err)
	assert.Equal(t, pending.HistoryMarker(), actor.RelevantHistory[len(actor.RelevantHistory)-1].Content)
	assert.NotContains(t, actor.FullHistory[len(actor.FullHistory)-1].Content, token)
}

func TestCreateAndNotifySupersedesPriorProposal(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	firstToken, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)
	firstPending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	secondToken, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)
	secondPending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	assert.NotEqual(t, firstPending.ID, secondPending.ID)

	// The first proposal's confirm button is now a dangling token.
	err = h.chatcart.ProcessAction(ctx, "555", fmt.Sprintf("confirm:%s", firstToken))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The second proposal is still confirmable.
	err = h.chatcart.ProcessAction(ctx, "555", fmt.Sprintf("confirm:%s", secondToken))
	assert.NoError(t, err)
}

func TestCreateAndNotifySweepsExpiredProposals(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	stale := &model.PendingOrder{
		ActorID:   "other-actor",
		Items:     testDraft().Items,
		OrderType: model.OrderTypePickup,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	staleID, err := h.ds.CreatePendingOrder(ctx, stale)
	assert.NoError(t, err)

	_, _, err = h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	_, err = h.ds.GetPendingOrder(ctx, staleID)
	assert.Error(t, err)
}

func TestConfirmCommitsOrder(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	err = h.chatcart.ProcessAction(ctx, "555", "confirm:"+token)
	assert.NoError(t, err)

	// Pending row is gone, a committed order exists for the actor.
	_, err = h.ds.GetPendingOrderByActor(ctx, "555")
	assert.Error(t, err)

	var committed *model.Order
	for _, o := range h.ds.orders {
		committed = o
	}
	assert.NotNil(t, committed)
	assert.Equal(t, "555", committed.ActorID)
	assert.Equal(t, int64(1250), committed.Items[0].PriceCents*int64(committed.Items[0].Quantity)+committed.Items[1].PriceCents*int64(committed.Items[1].Quantity))

	// Proposal + confirmation went out.
	sent := h.sender.messages()
	assert.Len(t, sent, 2)
	assert.Contains(t, sent[1], "confirmed")
}

func TestConfirmIsExactlyOnce(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	assert.NoError(t, h.chatcart.ProcessAction(ctx, "555", "confirm:"+token))

	// Double tap: the token was consumed by the first confirm.
	err = h.chatcart.ProcessAction(ctx, "555", "confirm:"+token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	assert.Len(t, h.ds.orders, 1)
}

func TestConcurrentConfirmCommitsOnce(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.chatcart.ProcessAction(ctx, "555", "confirm:"+token)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, h.ds.orders, 1)
}

func TestDiscardDeletesProposalAndClearsRelevant(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	_, _, err := h.chatcart.appendHistory(ctx, "555", []historyAppend{
		{turn: turnAt(model.RoleUser, "I want coffee", 100), relevant: true},
	})
	assert.NoError(t, err)

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	err = h.chatcart.ProcessAction(ctx, "555", "discard:"+token)
	assert.NoError(t, err)

	_, err = h.ds.GetPendingOrderByActor(ctx, "555")
	assert.Error(t, err)

	// The relevant window is cleared so the dead proposal stops steering
	// future processing; the full history is untouched.
	actor, err := h.ds.GetActor(ctx, "555")
	assert.NoError(t, err)
	assert.Empty(t, actor.RelevantHistory)
	assert.NotEmpty(t, actor.FullHistory)

	// Discarded token cannot be reused.
	err = h.chatcart.ProcessAction(ctx, "555", "discard:"+token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDiscardEmitsOrderDiscardedWebhook(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: h.redis.Addr()},
		Notification: config.Notification{Webhook: struct {
			Url     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		}(struct {
			Url     string
			Headers map[string]string
		}{Url: "https://localhost:5001/webhook", Headers: nil})},
	})

	assert.NoError(t, h.chatcart.ProcessAction(ctx, "555", "discard:"+token))

	// The discard enqueued a webhook delivery task.
	var webhookKeys []string
	for _, key := range h.redis.Keys() {
		if strings.Contains(key, WEBHOOK_QUEUE) {
			webhookKeys = append(webhookKeys, key)
		}
	}
	assert.NotEmpty(t, webhookKeys)
}

func TestActionRejectedForWrongActor(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	token, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)

	err = h.chatcart.ProcessAction(ctx, "999", "confirm:"+token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The token survives a foreign redemption attempt.
	err = h.chatcart.ProcessAction(ctx, "555", "confirm:"+token)
	assert.NoError(t, err)
}

func TestChangeOrderTypeRecreatesProposal(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	oldToken, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)
	oldPending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	actionID := fmt.Sprintf("changeType:%d:delivery:addr42", oldPending.ID)
	assert.NoError(t, h.chatcart.ProcessAction(ctx, "555", actionID))

	newPending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)
	assert.NotEqual(t, oldPending.ID, newPending.ID)
	assert.Equal(t, model.OrderTypeDelivery, newPending.OrderType)
	assert.Equal(t, "addr42", newPending.AddressID)
	assert.Equal(t, oldPending.Items, newPending.Items)

	// The old token died with the old proposal.
	err = h.chatcart.ProcessAction(ctx, "555", "confirm:"+oldToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestChangeOrderTypeToPickupDropsAddress(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	draft := testDraft()
	draft.OrderType = model.OrderTypeDelivery
	draft.AddressID = "addr42"
	_, _, err := h.chatcart.CreateAndNotify(ctx, "555", draft)
	assert.NoError(t, err)
	pending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	actionID := fmt.Sprintf("changeType:%d:pickup", pending.ID)
	assert.NoError(t, h.chatcart.ProcessAction(ctx, "555", actionID))

	newPending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)
	assert.Equal(t, model.OrderTypePickup, newPending.OrderType)
	assert.Empty(t, newPending.AddressID)
}

func TestChangeOrderTypeRejectedForWrongActor(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	_, _, err := h.chatcart.CreateAndNotify(ctx, "555", testDraft())
	assert.NoError(t, err)
	pending, err := h.ds.GetPendingOrderByActor(ctx, "555")
	assert.NoError(t, err)

	actionID := fmt.Sprintf("changeType:%d:delivery", pending.ID)
	err = h.chatcart.ProcessAction(ctx, "999", actionID)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestUnknownTokenRejected(t *testing.T) {
	h := newTestChatcart(t)
	ctx := context.Background()

	err := h.chatcart.ProcessAction(ctx, "555", "confirm:doesnotexist")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
