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

package main

import (
	"log"
	"time"

	"github.com/chatcart/chatcart"
	pg_listener "github.com/chatcart/chatcart/internal/pg-listener"
	"github.com/spf13/cobra"
)

// dirtyForwarder relays dirty-entity notifications to the configured
// operational webhook so downstream systems can re-fetch the entity.
type dirtyForwarder struct{}

func (dirtyForwarder) HandleDirty(entityType, entityID string) error {
	return chatcart.SendWebhook(chatcart.NewWebhook{
		Event: entityType + ".dirty",
		Payload: map[string]string{
			"entity_type": entityType,
			"entity_id":   entityID,
		},
	})
}

// syncCommands defines the "sync" command, which tails the sync-outbox
// NOTIFY channel and forwards dirty entities downstream.
func syncCommands(b *chatcartInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "start the sync-outbox listener",
		Run: func(cmd *cobra.Command, args []string) {
			listener := pg_listener.NewOutboxListener(pg_listener.ListenerConfig{
				PgConnStr: b.cnf.DataSource.Dns,
				Timeout:   time.Minute,
			}, dirtyForwarder{})

			log.Println("Starting sync-outbox listener")
			listener.Start()
		},
	}

	return cmd
}
