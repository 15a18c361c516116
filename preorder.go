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
	"time"

	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/internal/apierror"
	"github.com/chatcart/chatcart/internal/notification"
	"github.com/chatcart/chatcart/internal/tokens"
	"github.com/chatcart/chatcart/model"
	"github.com/sirupsen/logrus"
)

// Action kinds recognized in interactive button identifiers.
const (
	ActionConfirm    = "confirm"
	ActionDiscard    = "discard"
	ActionChangeType = "changeType"
)

// Action is a parsed interactive button identifier. Confirm and discard
// carry a single-use token; changeType carries the pending-order id and the
// requested new type directly, because switching type replaces the proposal
// (and its token) rather than redeeming it.
type Action struct {
	Kind       string
	Token      string
	PreOrderID int64
	NewType    string
	AddressID  string
}

// ParseActionID splits an interactive action identifier into its parts.
// Recognized shapes:
//
//	confirm:<token>
//	discard:<token>
//	changeType:<preOrderID>:<newType>[:<addressID>]
func ParseActionID(actionID string) (*Action, error) {
	kind, rest, found := strings.Cut(actionID, ":")
	if !found || rest == "" {
		return nil, fmt.Errorf("%w: malformed action %q", ErrTokenInvalid, actionID)
	}
	switch kind {
	case ActionConfirm, ActionDiscard:
		return &Action{Kind: kind, Token: rest}, nil
	case ActionChangeType:
		parts := strings.Split(rest, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("%w: malformed action %q", ErrTokenInvalid, actionID)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pending order id in %q", ErrTokenInvalid, actionID)
		}
		newType := parts[1]
		if newType != model.OrderTypeDelivery && newType != model.OrderTypePickup {
			return nil, fmt.Errorf("%w: unknown order type %q", ErrTokenInvalid, newType)
		}
		action := &Action{Kind: kind, PreOrderID: id, NewType: newType}
		if len(parts) == 3 {
			action.AddressID = parts[2]
		}
		return action, nil
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrTokenInvalid, kind)
	}
}

// CreateAndNotify turns an order draft into the actor's single pending order
// and notifies the actor with confirm/discard buttons. It sweeps expired
// proposals, deletes any prior proposal for this actor (superseding it and
// orphaning its token), creates the new pending row, issues a fresh
// single-use token, records a sanitized marker in the relevant history and
// sends the interactive proposal.
//
// The sanitized marker keeps full item details out of the conversational
// context; the authoritative order content lives only in the pending row.
func (c *Chatcart) CreateAndNotify(ctx context.Context, actorID string, draft *model.OrderDraft) (string, time.Time, error) {
	ctx, span := tracer.Start(ctx, "Creating Pending Order")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := time.Duration(cfg.PreOrder.TTLMinutes) * time.Minute

	// Opportunistic sweep: expired proposals from any actor are garbage
	// collected here instead of by a dedicated scheduler.
	if swept, err := c.datasource.DeleteExpiredPendingOrders(ctx, time.Now().Add(-ttl)); err != nil {
		logrus.Warnf("expired pending order sweep failed: %v", err)
	} else if swept > 0 {
		logrus.Infof("swept %d expired pending orders", swept)
	}

	if err := c.datasource.DeletePendingOrdersByActor(ctx, actorID); err != nil {
		return "", time.Time{}, err
	}

	pending := &model.PendingOrder{
		ActorID:      actorID,
		Items:        draft.Items,
		OrderType:    draft.OrderType,
		ScheduledFor: draft.ScheduledFor,
		AddressID:    draft.AddressID,
		CreatedAt:    time.Now(),
	}
	id, err := c.datasource.CreatePendingOrder(ctx, pending)
	if err != nil {
		return "", time.Time{}, err
	}
	pending.ID = id

	tokenTTL := time.Duration(cfg.PreOrder.TokenTTLMinutes) * time.Minute
	token, err := c.tokens.Issue(ctx, id, tokenTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().Add(tokenTTL)

	proposal := model.InteractiveResponse{
		Content: pending.Summary(),
		ActionIDs: []string{
			fmt.Sprintf("%s:%s", ActionConfirm, token),
			fmt.Sprintf("%s:%s", ActionDiscard, token),
		},
		Send:   true,
		Record: true,
		Marker: pending.HistoryMarker(),
	}
	if err := c.recordOutboundTurns(ctx, actorID, []model.AgentResponse{proposal}); err != nil {
		return "", time.Time{}, err
	}

	// The delivered text carries the embedded action identifiers; without
	// them the actor has nothing to confirm or discard with.
	if _, err := c.sender.SendMessage(ctx, actorID, proposal.DeliveryText()); err != nil {
		// The proposal stands either way; the actor can still act on a
		// re-sent or API-surfaced token.
		logrus.Errorf("pending order notification to %s failed: %v", actorID, err)
		notification.NotifyError(err)
	}
	return token, expiresAt, nil
}

// ProcessAction dispatches a parsed interactive action for an actor. Token
// errors surface as ErrTokenInvalid so callers can answer idempotently: a
// double-tapped confirm resolves to nothing and simply reports the token as
// spent.
func (c *Chatcart) ProcessAction(ctx context.Context, actorID, actionID string) error {
	ctx, span := tracer.Start(ctx, "Processing Action")
	defer span.End()

	action, err := ParseActionID(actionID)
	if err != nil {
		return err
	}
	switch action.Kind {
	case ActionConfirm:
		return c.confirmPendingOrder(ctx, actorID, action.Token)
	case ActionDiscard:
		return c.discardPendingOrder(ctx, actorID, action.Token)
	case ActionChangeType:
		return c.ChangeOrderType(ctx, actorID, action.PreOrderID, action.NewType, action.AddressID)
	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrTokenInvalid, action.Kind)
	}
}

// resolvePendingForToken maps a token to its live pending order without
// consuming the token. A token whose row is gone (superseded or swept) is a
// dangling token: it is revoked and reported invalid. A token pointing at
// another actor's order is treated as invalid rather than leaked.
func (c *Chatcart) resolvePendingForToken(ctx context.Context, actorID, token string) (*model.PendingOrder, error) {
	id, err := c.tokens.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			return nil, fmt.Errorf("%w: token not found or already used", ErrTokenInvalid)
		}
		return nil, err
	}
	pending, err := c.datasource.GetPendingOrder(ctx, id)
	if err != nil {
		if apierror.IsNotFound(err) {
			if revokeErr := c.tokens.Revoke(ctx, token); revokeErr != nil {
				logrus.Warnf("dangling token revoke failed: %v", revokeErr)
			}
			return nil, fmt.Errorf("%w: proposal no longer exists", ErrTokenInvalid)
		}
		return nil, err
	}
	if pending.ActorID != actorID {
		return nil, fmt.Errorf("%w: token does not belong to actor", ErrTokenInvalid)
	}
	return pending, nil
}

// confirmPendingOrder redeems the token exactly once, commits the pending
// order into a durable order, emits the order.committed webhook and sends
// the confirmation message. Redemption happens before the commit so two
// concurrent confirms race on the atomic token consume, not on the database.
func (c *Chatcart) confirmPendingOrder(ctx context.Context, actorID, token string) error {
	pending, err := c.resolvePendingForToken(ctx, actorID, token)
	if err != nil {
		return err
	}

	if _, err := c.tokens.Redeem(ctx, token); err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			return fmt.Errorf("%w: token already used", ErrTokenInvalid)
		}
		return err
	}

	order, err := c.datasource.CommitPendingOrder(ctx, pending.ID)
	if err != nil {
		if apierror.IsNotFound(err) {
			// Superseded between resolve and redeem.
			return fmt.Errorf("%w: proposal no longer exists", ErrTokenInvalid)
		}
		return err
	}

	if err := SendWebhook(NewWebhook{Event: EventOrderCommitted, Payload: order}); err != nil {
		logrus.Errorf("order committed webhook failed: %v", err)
		notification.NotifyError(err)
	}

	confirmation := fmt.Sprintf("Your order %s is confirmed. Thank you!", order.OrderID)
	if err := c.recordOutboundTurns(ctx, actorID, []model.AgentResponse{model.TextResponse{
		Content: confirmation,
		Send:    true,
		Record:  true,
		Marker:  fmt.Sprintf("[order %s committed]", order.OrderID),
	}}); err != nil {
		logrus.Errorf("confirmation history write for %s failed: %v", actorID, err)
	}
	if _, err := c.sender.SendMessage(ctx, actorID, confirmation); err != nil {
		logrus.Errorf("confirmation send to %s failed: %v", actorID, err)
		notification.NotifyError(err)
	}
	return nil
}

// discardPendingOrder redeems the token, deletes the proposal and clears the
// relevant history window so the abandoned proposal stops steering future
// agent processing. The full history is untouched.
func (c *Chatcart) discardPendingOrder(ctx context.Context, actorID, token string) error {
	pending, err := c.resolvePendingForToken(ctx, actorID, token)
	if err != nil {
		return err
	}

	if _, err := c.tokens.Redeem(ctx, token); err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			return fmt.Errorf("%w: token already used", ErrTokenInvalid)
		}
		return err
	}

	deleted, err := c.datasource.DeletePendingOrder(ctx, pending.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// Superseded between resolve and redeem; the actor's intent to drop
		// the proposal is satisfied either way.
		logrus.Infof("pending order %d already gone on discard", pending.ID)
	}

	if err := SendWebhook(NewWebhook{Event: EventOrderDiscarded, Payload: pending}); err != nil {
		logrus.Errorf("order discarded webhook failed: %v", err)
		notification.NotifyError(err)
	}

	if err := c.clearRelevantLocked(ctx, actorID); err != nil {
		return err
	}

	ack := "No problem, I've discarded that order. What else can I help with?"
	if _, err := c.sender.SendMessage(ctx, actorID, ack); err != nil {
		logrus.Errorf("discard ack send to %s failed: %v", actorID, err)
		notification.NotifyError(err)
	}
	return nil
}

// ChangeOrderType replaces a pending order with an identical one of the
// requested type. It is invalidate-then-recreate: the old row and token die,
// a fresh proposal with a fresh token goes out, so stale confirm buttons for
// the old type can never commit the new one.
func (c *Chatcart) ChangeOrderType(ctx context.Context, actorID string, preOrderID int64, newType, addressID string) error {
	pending, err := c.datasource.GetPendingOrder(ctx, preOrderID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return fmt.Errorf("%w: proposal no longer exists", ErrTokenInvalid)
		}
		return err
	}
	if pending.ActorID != actorID {
		return fmt.Errorf("%w: proposal does not belong to actor", ErrTokenInvalid)
	}

	draft := &model.OrderDraft{
		Items:        pending.Items,
		OrderType:    newType,
		ScheduledFor: pending.ScheduledFor,
		AddressID:    pending.AddressID,
	}
	if newType == model.OrderTypeDelivery && addressID != "" {
		draft.AddressID = addressID
	}
	if newType == model.OrderTypePickup {
		draft.AddressID = ""
	}

	// CreateAndNotify deletes the current proposal for this actor, which
	// also orphans and invalidates its outstanding token.
	_, _, err = c.CreateAndNotify(ctx, actorID, draft)
	return err
}

// GetOrder fetches a committed order by its public id.
func (c *Chatcart) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.datasource.GetOrder(ctx, orderID)
}

func (c *Chatcart) clearRelevantLocked(ctx context.Context, actorID string) error {
	locker, err := c.acquireActorLock(ctx, actorID)
	if err != nil {
		return err
	}
	defer releaseActorLock(ctx, locker)

	if err := c.datasource.ClearRelevantHistory(ctx, actorID); err != nil {
		return err
	}
	return c.datasource.MarkDirty(ctx, entityTypeActor, actorID)
}
