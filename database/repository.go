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
	"time"

	"github.com/chatcart/chatcart/model"
)

type actor interface {
	GetOrCreateActor(ctx context.Context, actorID string) (*model.Actor, error)
	GetActor(ctx context.Context, actorID string) (*model.Actor, error)
	UpdateActorHistories(ctx context.Context, actorID string, full, relevant []model.Turn) error
	ClearRelevantHistory(ctx context.Context, actorID string) error
	ClearActorHistories(ctx context.Context, actorID string) error
	MarkDirty(ctx context.Context, entityType, entityID string) error
}

type preOrder interface {
	CreatePendingOrder(ctx context.Context, order *model.PendingOrder) (int64, error)
	GetPendingOrder(ctx context.Context, id int64) (*model.PendingOrder, error)
	GetPendingOrderByActor(ctx context.Context, actorID string) (*model.PendingOrder, error)
	DeletePendingOrder(ctx context.Context, id int64) (bool, error)
	DeletePendingOrdersByActor(ctx context.Context, actorID string) error
	DeleteExpiredPendingOrders(ctx context.Context, olderThan time.Time) (int64, error)
	CommitPendingOrder(ctx context.Context, id int64) (*model.Order, error)
}

type order interface {
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
}

// IDataSource is the transactional store consumed by the worker and the
// pre-order workflow. Tests substitute the mock in database/mocks.
type IDataSource interface {
	actor
	preOrder
	order
}
