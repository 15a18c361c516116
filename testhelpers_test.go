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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/internal/apierror"
	"github.com/chatcart/chatcart/internal/tokens"
	"github.com/chatcart/chatcart/model"
	"github.com/redis/go-redis/v9"
)

// memoryDataSource is an in-memory stand-in for the Postgres datasource.
// Worker and pre-order tests need state that evolves across calls, which the
// expectation-based mock in database/mocks is too rigid for.
type memoryDataSource struct {
	mu       sync.Mutex
	actors   map[string]*model.Actor
	pendings map[int64]*model.PendingOrder
	orders   map[string]*model.Order
	outbox   []string
	nextID   int64

	// updateErr, when set, fails every history write. Used to verify error
	// paths inside locked sections.
	updateErr error
}

func newMemoryDataSource() *memoryDataSource {
	return &memoryDataSource{
		actors:   make(map[string]*model.Actor),
		pendings: make(map[int64]*model.PendingOrder),
		orders:   make(map[string]*model.Order),
		nextID:   1,
	}
}

func copyTurns(turns []model.Turn) []model.Turn {
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out
}

func (m *memoryDataSource) GetOrCreateActor(_ context.Context, actorID string) (*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[actorID]; ok {
		return &model.Actor{ActorID: a.ActorID, FullHistory: copyTurns(a.FullHistory), RelevantHistory: copyTurns(a.RelevantHistory), CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}, nil
	}
	a := &model.Actor{ActorID: actorID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.actors[actorID] = a
	return &model.Actor{ActorID: actorID, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}, nil
}

func (m *memoryDataSource) GetActor(_ context.Context, actorID string) (*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[actorID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("actor %s not found", actorID), nil)
	}
	return &model.Actor{ActorID: a.ActorID, FullHistory: copyTurns(a.FullHistory), RelevantHistory: copyTurns(a.RelevantHistory), CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}, nil
}

func (m *memoryDataSource) UpdateActorHistories(_ context.Context, actorID string, full, relevant []model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.actors[actorID]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("actor %s not found", actorID), nil)
	}
	a.FullHistory = copyTurns(full)
	a.RelevantHistory = copyTurns(relevant)
	a.UpdatedAt = time.Now()
	return nil
}

func (m *memoryDataSource) ClearRelevantHistory(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[actorID]; ok {
		a.RelevantHistory = nil
	}
	return nil
}

func (m *memoryDataSource) ClearActorHistories(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[actorID]; ok {
		a.FullHistory = nil
		a.RelevantHistory = nil
	}
	return nil
}

func (m *memoryDataSource) MarkDirty(_ context.Context, entityType, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, entityType+":"+entityID)
	return nil
}

func (m *memoryDataSource) CreatePendingOrder(_ context.Context, order *model.PendingOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pendings {
		if p.ActorID == order.ActorID {
			return 0, apierror.NewAPIError(apierror.ErrConflict, "actor already has a pending order", nil)
		}
	}
	id := m.nextID
	m.nextID++
	stored := *order
	stored.ID = id
	m.pendings[id] = &stored
	return id, nil
}

func (m *memoryDataSource) GetPendingOrder(_ context.Context, id int64) (*model.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pendings[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("pending order %d not found", id), nil)
	}
	cp := *p
	return &cp, nil
}

func (m *memoryDataSource) GetPendingOrderByActor(_ context.Context, actorID string) (*model.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pendings {
		if p.ActorID == actorID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no pending order for actor %s", actorID), nil)
}

func (m *memoryDataSource) DeletePendingOrder(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pendings[id]; !ok {
		return false, nil
	}
	delete(m.pendings, id)
	return true, nil
}

func (m *memoryDataSource) DeletePendingOrdersByActor(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.pendings {
		if p.ActorID == actorID {
			delete(m.pendings, id)
		}
	}
	return nil
}

func (m *memoryDataSource) DeleteExpiredPendingOrders(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.pendings {
		if p.CreatedAt.Before(olderThan) {
			delete(m.pendings, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryDataSource) CommitPendingOrder(_ context.Context, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pendings[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("pending order %d not found", id), nil)
	}
	order := &model.Order{
		OrderID:      model.GenerateUUIDWithSuffix("ord"),
		ActorID:      p.ActorID,
		Items:        p.Items,
		OrderType:    p.OrderType,
		ScheduledFor: p.ScheduledFor,
		AddressID:    p.AddressID,
		CommittedAt:  time.Now(),
	}
	delete(m.pendings, id)
	m.orders[order.OrderID] = order
	return order, nil
}

func (m *memoryDataSource) GetOrder(_ context.Context, orderID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	cp := *o
	return &cp, nil
}

// stubAgent returns a canned result or error.
type stubAgent struct {
	mu     sync.Mutex
	result *model.AgentResult
	err    error
	calls  int
}

func (s *stubAgent) GenerateResponse(_ context.Context, _ string, _, _ []model.Turn) (*model.AgentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubAgent) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSender collects outbound messages.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSender) SendMessage(_ context.Context, _, content string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, content)
	return model.GenerateUUIDWithSuffix("out"), nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	copy(out, r.sent)
	return out
}

type testHarness struct {
	chatcart *Chatcart
	ds       *memoryDataSource
	agent    *stubAgent
	sender   *recordingSender
	redis    *miniredis.Miniredis
}

func newTestChatcart(t *testing.T) *testHarness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ds := newMemoryDataSource()
	agent := &stubAgent{result: &model.AgentResult{}}
	sender := &recordingSender{}

	return &testHarness{
		chatcart: &Chatcart{
			redis:      client,
			datasource: ds,
			tokens:     tokens.NewStore(client),
			agent:      agent,
			sender:     sender,
		},
		ds:     ds,
		agent:  agent,
		sender: sender,
		redis:  mr,
	}
}

func inboundAt(actorID, text string, source int64, receipt int64) *model.InboundMessage {
	return &model.InboundMessage{
		MessageID:        model.GenerateUUIDWithSuffix("msg"),
		ActorID:          actorID,
		Text:             text,
		SourceTimestamp:  source,
		ReceiptTimestamp: receipt,
	}
}
