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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatcart/chatcart/internal/apierror"
	"github.com/chatcart/chatcart/model"
)

// CreatePendingOrder inserts a new pending order row and returns its id. The
// caller is responsible for having deleted any prior pending order for the
// actor first (delete-then-insert keeps supersession observable to concurrent
// token resolvers).
func (d *Datasource) CreatePendingOrder(ctx context.Context, order *model.PendingOrder) (int64, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to marshal order items", err)
	}

	var id int64
	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO pre_orders (actor_id, items, order_type, scheduled_for, address_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '0001-01-01 00:00:00'::timestamp), NULLIF($5, ''), NOW())
		RETURNING id
	`, order.ActorID, items, order.OrderType, order.ScheduledFor, order.AddressID).Scan(&id)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create pending order", err)
	}
	order.ID = id
	return id, nil
}

// GetPendingOrder fetches a pending order by id. A missing row means the
// order was confirmed, discarded, superseded or expired.
func (d *Datasource) GetPendingOrder(ctx context.Context, id int64) (*model.PendingOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, actor_id, items, order_type, COALESCE(scheduled_for, '0001-01-01'::timestamp), COALESCE(address_id, ''), created_at
		FROM pre_orders WHERE id = $1
	`, id)
	return scanPendingOrder(row, fmt.Sprintf("pending order %d", id))
}

// GetPendingOrderByActor fetches the actor's current pending order, if any.
func (d *Datasource) GetPendingOrderByActor(ctx context.Context, actorID string) (*model.PendingOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, actor_id, items, order_type, COALESCE(scheduled_for, '0001-01-01'::timestamp), COALESCE(address_id, ''), created_at
		FROM pre_orders WHERE actor_id = $1
	`, actorID)
	return scanPendingOrder(row, fmt.Sprintf("pending order for actor %s", actorID))
}

// DeletePendingOrder removes a pending order row. The boolean reports whether
// a row was actually deleted; false means another path (redeem, supersession,
// expiry sweep) got there first, which callers treat as a soft outcome.
func (d *Datasource) DeletePendingOrder(ctx context.Context, id int64) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `DELETE FROM pre_orders WHERE id = $1`, id)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete pending order", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeletePendingOrdersByActor enforces the at-most-one-pending-per-actor
// invariant before a new proposal is created.
func (d *Datasource) DeletePendingOrdersByActor(ctx context.Context, actorID string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM pre_orders WHERE actor_id = $1`, actorID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete actor pending orders", err)
	}
	return nil
}

// DeleteExpiredPendingOrders is the opportunistic TTL sweep run on every
// proposal creation. Tokens pointing at swept rows dangle and fail the
// existence check on resolve.
func (d *Datasource) DeleteExpiredPendingOrders(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := d.Conn.ExecContext(ctx, `DELETE FROM pre_orders WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to sweep expired pending orders", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CommitPendingOrder transactionally converts a pending order into a
// committed order and deletes the pending row. A missing pending row yields
// ErrNotFound, which surfaces to the user as a stale proposal.
func (d *Datasource) CommitPendingOrder(ctx context.Context, id int64) (*model.Order, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin commit transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT id, actor_id, items, order_type, COALESCE(scheduled_for, '0001-01-01'::timestamp), COALESCE(address_id, ''), created_at
		FROM pre_orders WHERE id = $1 FOR UPDATE
	`, id)
	pending, err := scanPendingOrder(row, fmt.Sprintf("pending order %d", id))
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		OrderID:      model.GenerateUUIDWithSuffix("ord"),
		ActorID:      pending.ActorID,
		Items:        pending.Items,
		OrderType:    pending.OrderType,
		ScheduledFor: pending.ScheduledFor,
		AddressID:    pending.AddressID,
		CommittedAt:  time.Now(),
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to marshal order items", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, actor_id, items, order_type, scheduled_for, address_id, committed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '0001-01-01 00:00:00'::timestamp), NULLIF($6, ''), $7)
	`, order.OrderID, order.ActorID, items, order.OrderType, order.ScheduledFor, order.AddressID, order.CommittedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to insert committed order", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM pre_orders WHERE id = $1`, id)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete committed pending order", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to commit order transaction", err)
	}
	return order, nil
}

// GetOrder fetches a committed order.
func (d *Datasource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT order_id, actor_id, items, order_type, COALESCE(scheduled_for, '0001-01-01'::timestamp), COALESCE(address_id, ''), committed_at
		FROM orders WHERE order_id = $1
	`, orderID)

	order := model.Order{}
	var items []byte
	err := row.Scan(&order.OrderID, &order.ActorID, &items, &order.OrderType, &order.ScheduledFor, &order.AddressID, &order.CommittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("order %s not found", orderID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch order", err)
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "corrupt order items", err)
	}
	return &order, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingOrder(row rowScanner, what string) (*model.PendingOrder, error) {
	pending := model.PendingOrder{}
	var items []byte
	err := row.Scan(&pending.ID, &pending.ActorID, &items, &pending.OrderType, &pending.ScheduledFor, &pending.AddressID, &pending.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s not found", what), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("failed to fetch %s", what), err)
	}
	if err := json.Unmarshal(items, &pending.Items); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "corrupt order items", err)
	}
	return &pending, nil
}
