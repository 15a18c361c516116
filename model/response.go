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
)

// AgentResponse is implemented by every concrete response variant the
// conversational agent can produce. The flags are required on each variant so
// the worker never has to guess how to route a response.
type AgentResponse interface {
	// ResponseText is the full user-facing content, always appended to the
	// actor's full history when the response is recorded.
	ResponseText() string
	// ShouldSend reports whether the response is delivered to the actor.
	ShouldSend() bool
	// ShouldRecord reports whether the response is appended to the relevant
	// history window. Responses that are sent but not recorded (for example
	// transient error apologies) return false.
	ShouldRecord() bool
	// RelevantMarker is an optional short line recorded in the relevant
	// window in place of the full text. A long order summary with prices can
	// be replaced by a terse sanitized line this way. Empty means the full
	// text is used.
	RelevantMarker() string
	// DeliveryText is the content as transmitted over the outbound channel.
	// The transport carries an opaque string, so variants with action
	// identifiers or links embed them here; history records ResponseText
	// instead, keeping tokens out of stored conversations.
	DeliveryText() string
}

// TextResponse is a plain outbound text message.
type TextResponse struct {
	Content string `json:"content"`
	Send    bool   `json:"send"`
	Record  bool   `json:"record"`
	Marker  string `json:"marker,omitempty"`
}

func (r TextResponse) ResponseText() string   { return r.Content }
func (r TextResponse) ShouldSend() bool       { return r.Send }
func (r TextResponse) ShouldRecord() bool     { return r.Record }
func (r TextResponse) RelevantMarker() string { return r.Marker }
func (r TextResponse) DeliveryText() string   { return r.Content }

// InteractiveResponse carries embedded action identifiers (confirm:<token>,
// discard:<token>, changeType:<id>:<type>) rendered as reply buttons by the
// outbound channel.
type InteractiveResponse struct {
	Content   string   `json:"content"`
	ActionIDs []string `json:"action_ids"`
	Send      bool     `json:"send"`
	Record    bool     `json:"record"`
	Marker    string   `json:"marker,omitempty"`
}

func (r InteractiveResponse) ResponseText() string   { return r.Content }
func (r InteractiveResponse) ShouldSend() bool       { return r.Send }
func (r InteractiveResponse) ShouldRecord() bool     { return r.Record }
func (r InteractiveResponse) RelevantMarker() string { return r.Marker }

// DeliveryText appends the action identifiers to the content so the reply
// buttons survive the opaque string transport.
func (r InteractiveResponse) DeliveryText() string {
	if len(r.ActionIDs) == 0 {
		return r.Content
	}
	return r.Content + "\n" + strings.Join(r.ActionIDs, "\n")
}

// URLButtonResponse is a message with a single call-to-action link.
type URLButtonResponse struct {
	Content     string `json:"content"`
	URL         string `json:"url"`
	ButtonLabel string `json:"button_label"`
	Send        bool   `json:"send"`
	Record      bool   `json:"record"`
	Marker      string `json:"marker,omitempty"`
}

func (r URLButtonResponse) ResponseText() string   { return r.Content }
func (r URLButtonResponse) ShouldSend() bool       { return r.Send }
func (r URLButtonResponse) ShouldRecord() bool     { return r.Record }
func (r URLButtonResponse) RelevantMarker() string { return r.Marker }

func (r URLButtonResponse) DeliveryText() string {
	if r.URL == "" {
		return r.Content
	}
	return fmt.Sprintf("%s\n%s: %s", r.Content, r.ButtonLabel, r.URL)
}

// ErrorResponse is the user-visible apology produced when agent processing
// fails. It is sent but never recorded in the relevant window.
type ErrorResponse struct {
	Content string `json:"content"`
}

func (r ErrorResponse) ResponseText() string   { return r.Content }
func (r ErrorResponse) ShouldSend() bool       { return true }
func (r ErrorResponse) ShouldRecord() bool     { return false }
func (r ErrorResponse) RelevantMarker() string { return "" }
func (r ErrorResponse) DeliveryText() string   { return r.Content }

// AgentResult is everything agent processing produced for one inbound
// message: zero or more responses, an optional order draft to run through the
// pre-order workflow, and the reset flag for explicit conversation resets.
type AgentResult struct {
	Responses []AgentResponse
	// OrderDraft, when non-nil, is handed to the pre-order workflow which
	// appends its own summary response.
	OrderDraft *OrderDraft
	// ResetHistory clears both histories instead of appending, while the
	// responses are still sent.
	ResetHistory bool
}
