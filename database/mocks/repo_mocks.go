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
package mocks

import (
	"context"
	"time"

	"github.com/chatcart/chatcart/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Actor methods

func (m *MockDataSource) GetOrCreateActor(ctx context.Context, actorID string) (*model.Actor, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).(*model.Actor), args.Error(1)
}

func (m *MockDataSource) GetActor(ctx context.Context, actorID string) (*model.Actor, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).(*model.Actor), args.Error(1)
}

func (m *MockDataSource) UpdateActorHistories(ctx context.Context, actorID string, full, relevant []model.Turn) error {
	args := m.Called(ctx, actorID, full, relevant)
	return args.Error(0)
}

func (m *MockDataSource) ClearRelevantHistory(ctx context.Context, actorID string) error {
	args := m.Called(ctx, actorID)
	return args.Error(0)
}

func (m *MockDataSource) ClearActorHistories(ctx context.Context, actorID string) error {
	args := m.Called(ctx, actorID)
	return args.Error(0)
}

func (m *MockDataSource) MarkDirty(ctx context.Context, entityType, entityID string) error {
	args := m.Called(ctx, entityType, entityID)
	return args.Error(0)
}

// Pending-order methods

func (m *MockDataSource) CreatePendingOrder(ctx context.Context, order *model.PendingOrder) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) GetPendingOrder(ctx context.Context, id int64) (*model.PendingOrder, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*model.PendingOrder), args.Error(1)
}

func (m *MockDataSource) GetPendingOrderByActor(ctx context.Context, actorID string) (*model.PendingOrder, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).(*model.PendingOrder), args.Error(1)
}

func (m *MockDataSource) DeletePendingOrder(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) DeletePendingOrdersByActor(ctx context.Context, actorID string) error {
	args := m.Called(ctx, actorID)
	return args.Error(0)
}

func (m *MockDataSource) DeleteExpiredPendingOrders(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CommitPendingOrder(ctx context.Context, id int64) (*model.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*model.Order), args.Error(1)
}

// Order methods

func (m *MockDataSource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(*model.Order), args.Error(1)
}
