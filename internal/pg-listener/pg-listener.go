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
package pg_listener

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
)

// DirtyHandler consumes dirty-entity notifications emitted when the worker
// marks an actor for downstream synchronization.
type DirtyHandler interface {
	HandleDirty(entityType, entityID string) error
}

type ListenerConfig struct {
	PgConnStr string
	Channel   string
	Timeout   time.Duration
}

// OutboxListener subscribes to the sync-outbox NOTIFY channel and forwards
// each dirty entity to the handler. It is the push-path complement to
// polling the sync_outbox table.
type OutboxListener struct {
	config  ListenerConfig
	handler DirtyHandler
}

type dirtyPayload struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func NewOutboxListener(config ListenerConfig, handler DirtyHandler) *OutboxListener {
	if config.Channel == "" {
		config.Channel = "sync_outbox"
	}
	return &OutboxListener{
		config:  config,
		handler: handler,
	}
}

func (d *OutboxListener) Start() {
	listener := pq.NewListener(d.config.PgConnStr, 10*time.Second, d.config.Timeout, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Listener error: %v\n", err)
			return
		}
	})
	err := listener.Listen(d.config.Channel)
	if err != nil {
		log.Fatalf("Error listening to PostgreSQL channel: %v", err)
	}

	fmt.Printf("Start listening for PostgreSQL notifications on channel '%s'...\n", d.config.Channel)

	for {
		d.waitForNotification(listener)
	}
}

func (d *OutboxListener) waitForNotification(listener *pq.Listener) {
	select {
	case notification := <-listener.Notify:
		d.handleNotification(notification)
	case <-time.After(90 * time.Second):
		fmt.Println("Checking for notifications...")
	}
}

func (d *OutboxListener) handleNotification(notification *pq.Notification) {
	if notification == nil {
		// Connection re-established; pending notifications may have been
		// lost, the poll path picks those up.
		return
	}
	var payload dirtyPayload
	err := json.Unmarshal([]byte(notification.Extra), &payload)
	if err != nil {
		log.Printf("Error unmarshalling notification payload: %v", err)
		return
	}

	if err := d.handler.HandleDirty(payload.EntityType, payload.EntityID); err != nil {
		log.Printf("Error handling notification: %v", err)
	}
}
