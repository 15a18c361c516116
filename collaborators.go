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
	"net/http"
	"time"

	"github.com/chatcart/chatcart/config"
	"github.com/chatcart/chatcart/internal/request"
	"github.com/chatcart/chatcart/model"
)

// Agent is the external processing collaborator that turns a conversation
// into structured responses. The call can be slow; it runs in the unlocked
// processing phase and any timeout policy belongs to the implementation.
type Agent interface {
	GenerateResponse(ctx context.Context, actorID string, fullHistory, relevantHistory []model.Turn) (*model.AgentResult, error)
}

// MessageSender is the outbound channel transport. SendMessage returns the
// provider-assigned message id.
type MessageSender interface {
	SendMessage(ctx context.Context, recipient, content string) (string, error)
}

// HTTPAgent calls a remote processing endpoint with the conversation context
// and decodes the structured result.
type HTTPAgent struct {
	endpoint  string
	authToken string
	timeout   time.Duration
}

func NewHTTPAgent(cfg *config.Configuration) *HTTPAgent {
	return &HTTPAgent{
		endpoint:  cfg.Agent.Endpoint,
		authToken: cfg.Agent.AuthToken,
		timeout:   time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
	}
}

type agentRequest struct {
	ActorID         string       `json:"actor_id"`
	FullHistory     []model.Turn `json:"full_history"`
	RelevantHistory []model.Turn `json:"relevant_history"`
}

type agentReply struct {
	Texts        []model.TextResponse        `json:"texts,omitempty"`
	Interactives []model.InteractiveResponse `json:"interactives,omitempty"`
	URLButtons   []model.URLButtonResponse   `json:"url_buttons,omitempty"`
	OrderDraft   *model.OrderDraft           `json:"order_draft,omitempty"`
	ResetHistory bool                        `json:"reset_history,omitempty"`
}

func (a *HTTPAgent) GenerateResponse(ctx context.Context, actorID string, fullHistory, relevantHistory []model.Turn) (*model.AgentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	payload, err := request.ToJsonReq(&agentRequest{
		ActorID:         actorID,
		FullHistory:     fullHistory,
		RelevantHistory: relevantHistory,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, payload)
	if err != nil {
		return nil, err
	}
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	var reply agentReply
	resp, err := request.Call(req, &reply)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent endpoint returned status %d", resp.StatusCode)
	}

	result := &model.AgentResult{
		OrderDraft:   reply.OrderDraft,
		ResetHistory: reply.ResetHistory,
	}
	for _, r := range reply.Texts {
		result.Responses = append(result.Responses, r)
	}
	for _, r := range reply.Interactives {
		result.Responses = append(result.Responses, r)
	}
	for _, r := range reply.URLButtons {
		result.Responses = append(result.Responses, r)
	}
	return result, nil
}

// HTTPSender delivers outbound messages through the channel provider's HTTP
// API.
type HTTPSender struct {
	endpoint  string
	authToken string
}

func NewHTTPSender(cfg *config.Configuration) *HTTPSender {
	return &HTTPSender{
		endpoint:  cfg.Sender.Endpoint,
		authToken: cfg.Sender.AuthToken,
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type sendReply struct {
	MessageID string `json:"message_id"`
}

func (s *HTTPSender) SendMessage(ctx context.Context, recipient, content string) (string, error) {
	payload, err := request.ToJsonReq(&sendRequest{Recipient: recipient, Content: content})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, payload)
	if err != nil {
		return "", err
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	var reply sendReply
	resp, err := request.Call(req, &reply)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sender endpoint returned status %d", resp.StatusCode)
	}
	return reply.MessageID, nil
}
