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

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in an actor's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is the payload carried by a queued message task. It is
// immutable once enqueued.
//
// SourceTimestamp is the upstream creation time in Unix seconds; the channel
// provider only exposes second resolution, so many messages can share a value.
// ReceiptTimestamp is the local arrival time in Unix nanoseconds and breaks
// ties deterministically in arrival order.
type InboundMessage struct {
	MessageID        string `json:"message_id"`
	ActorID          string `json:"actor_id"`
	Text             string `json:"text"`
	SourceTimestamp  int64  `json:"source_timestamp"`
	ReceiptTimestamp int64  `json:"receipt_timestamp"`
}

// Actor is the conversation identity. It owns an unbounded append-only full
// history and a bounded relevant-history window. Both are mutated only while
// the actor's distributed lock is held.
type Actor struct {
	ActorID         string    `json:"actor_id"`
	FullHistory     []Turn    `json:"full_history"`
	RelevantHistory []Turn    `json:"relevant_history"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
