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

import (
	"fmt"
	"strings"
	"time"
)

// Order types supported by the ordering flow.
const (
	OrderTypeDelivery = "delivery"
	OrderTypePickup   = "pickup"
)

// OrderItem is a single line item in a proposed or committed order.
type OrderItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
	Notes      string `json:"notes,omitempty"`
}

// OrderDraft is the structured order produced by agent processing, before it
// becomes a PendingOrder.
type OrderDraft struct {
	Items        []OrderItem `json:"items"`
	OrderType    string      `json:"order_type"`
	ScheduledFor time.Time   `json:"scheduled_for,omitempty"`
	AddressID    string      `json:"address_id,omitempty"`
}

// PendingOrder is a proposed, not-yet-committed order awaiting actor
// confirmation. At most one non-expired PendingOrder exists per actor;
// creating a new one deletes any prior one, which also invalidates the prior
// one's action token.
type PendingOrder struct {
	ID           int64       `json:"id"`
	ActorID      string      `json:"actor_id"`
	Items        []OrderItem `json:"items"`
	OrderType    string      `json:"order_type"`
	ScheduledFor time.Time   `json:"scheduled_for,omitempty"`
	AddressID    string      `json:"address_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Order is a committed order converted from a PendingOrder on confirmation.
type Order struct {
	OrderID      string      `json:"order_id"`
	ActorID      string      `json:"actor_id"`
	Items        []OrderItem `json:"items"`
	OrderType    string      `json:"order_type"`
	ScheduledFor time.Time   `json:"scheduled_for,omitempty"`
	AddressID    string      `json:"address_id,omitempty"`
	CommittedAt  time.Time   `json:"committed_at"`
}

// TotalCents sums the pending order's line items.
func (p *PendingOrder) TotalCents() int64 {
	var total int64
	for _, item := range p.Items {
		total += item.PriceCents * int64(item.Quantity)
	}
	return total
}

// Summary renders the user-facing proposal text presented with the
// confirm/discard buttons.
func (p *PendingOrder) Summary() string {
	var b strings.Builder
	b.WriteString("Here is your order:\n")
	for _, item := range p.Items {
		fmt.Fprintf(&b, "- %dx %s", item.Quantity, item.Name)
		if item.Notes != "" {
			fmt.Fprintf(&b, " (%s)", item.Notes)
		}
		fmt.Fprintf(&b, " - %s\n", formatCents(item.PriceCents*int64(item.Quantity)))
	}
	fmt.Fprintf(&b, "Total: %s\n", formatCents(p.TotalCents()))
	fmt.Fprintf(&b, "Type: %s", p.OrderType)
	if !p.ScheduledFor.IsZero() {
		fmt.Fprintf(&b, ", scheduled for %s", p.ScheduledFor.Format("Mon 15:04"))
	}
	return b.String()
}

// HistoryMarker is the terse sanitized line recorded in the relevant window
// in place of the full priced summary.
func (p *PendingOrder) HistoryMarker() string {
	return fmt.Sprintf("[order proposal: %d item(s), %s]", len(p.Items), p.OrderType)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
