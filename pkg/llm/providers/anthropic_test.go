// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tombee/chatmux/pkg/llm"
)

func TestNewAnthropicProvider(t *testing.T) {
	provider, err := NewAnthropicProvider("test-api-key")
	if err != nil {
		t.Fatalf("failed to create provider with valid API key: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider, got nil")
	}

	_, err = NewAnthropicProvider("")
	if err == nil {
		t.Error("expected error with empty API key, got nil")
	}
}

func TestAnthropicProvider_Name(t *testing.T) {
	provider, _ := NewAnthropicProvider("test-api-key")
	if provider.Name() != "anthropic" {
		t.Errorf("expected provider name 'anthropic', got '%s'", provider.Name())
	}
}

func TestAnthropicProvider_CompleteValidation(t *testing.T) {
	provider, _ := NewAnthropicProvider("test-api-key")

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{Model: "claude-sonnet-4-5"})
	var verr *llm.ValidationError
	if !errors.As(err, &verr) || verr.Field != "messages" {
		t.Errorf("expected validation error on messages, got %v", err)
	}

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "hi"}},
	})
	if !errors.As(err, &verr) || verr.Field != "model" {
		t.Errorf("expected validation error on model, got %v", err)
	}
}

func TestAnthropicProvider_CompleteTextResponse(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-api-key" {
			t.Errorf("missing or wrong x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("undecodable request: %v", err)
		}
		fmt.Fprint(w, `{
			"id": "msg_1",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "Hello there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider("test-api-key",
		WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewAnthropicProvider failed: %v", err)
	}

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "Be brief."},
			{Role: llm.MessageRoleUser, Content: "Say hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Hello there" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello there")
	}
	if resp.FinishReason != llm.FinishReasonStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, llm.FinishReasonStop)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("TotalTokens = %d, want 16", resp.Usage.TotalTokens)
	}
	if resp.RequestID == "" {
		t.Error("RequestID is empty")
	}

	// The system message travels in the dedicated system field, not as
	// a conversation turn.
	if gotReq["system"] != "Be brief." {
		t.Errorf("system field = %v, want %q", gotReq["system"], "Be brief.")
	}
	msgs, _ := gotReq["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("messages = %v, want single user turn", msgs)
	}
}

func TestAnthropicProvider_CompleteToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("undecodable request: %v", err)
		}
		tools, _ := req["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %v, want one entry", tools)
		}
		fmt.Fprint(w, `{
			"id": "msg_2",
			"model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Checking the weather."},
				{"type": "tool_use", "id": "toolu_1", "name": "weather__forecast", "input": {"city": "London"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 30, "output_tokens": 20}
		}`)
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider("test-api-key",
		WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "Weather in London?"}},
		Tools: []llm.Tool{{
			Name:        "weather__forecast",
			Description: "Gets the forecast",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, llm.FinishReasonToolCalls)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %v, want one call", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Name != "weather__forecast" {
		t.Errorf("tool call = %+v, want toolu_1/weather__forecast", tc)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("tool call arguments are not JSON: %v", err)
	}
	if args["city"] != "London" {
		t.Errorf("arguments = %v, want city London", args)
	}
}

func TestAnthropicProvider_CompleteToolResultRoundTrip(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("undecodable request: %v", err)
		}
		fmt.Fprint(w, `{
			"id": "msg_3",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "It is sunny."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 5}
		}`)
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider("test-api-key",
		WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Model: "claude-sonnet-4-5",
		Messages: []llm.Message{
			{Role: llm.MessageRoleUser, Content: "Weather in London?"},
			{
				Role:      llm.MessageRoleAssistant,
				ToolCalls: []llm.ToolCall{{ID: "toolu_1", Name: "weather__forecast", Arguments: `{"city":"London"}`}},
			},
			{Role: llm.MessageRoleTool, ToolCallID: "toolu_1", Name: "weather__forecast", Content: "sunny"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	msgs, _ := gotReq["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %v, want 3 turns", msgs)
	}

	// Assistant turn carries the tool_use block.
	assistant, _ := msgs[1].(map[string]any)
	blocks, _ := assistant["content"].([]any)
	block, _ := blocks[0].(map[string]any)
	if block["type"] != "tool_use" || block["id"] != "toolu_1" {
		t.Errorf("assistant block = %v, want tool_use toolu_1", block)
	}

	// Tool result travels back as a user turn with a tool_result block.
	toolTurn, _ := msgs[2].(map[string]any)
	if toolTurn["role"] != "user" {
		t.Errorf("tool result role = %v, want user", toolTurn["role"])
	}
	blocks, _ = toolTurn["content"].([]any)
	block, _ = blocks[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_1" || block["content"] != "sunny" {
		t.Errorf("tool result block = %v, want tool_result for toolu_1", block)
	}
}

func TestAnthropicProvider_CompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider("bad-key",
		WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "hi"}},
	})

	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Complete error = %v, want *llm.ProviderError", err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want %d", perr.StatusCode, http.StatusUnauthorized)
	}
	if perr.Message != "invalid x-api-key" {
		t.Errorf("Message = %q, want server-provided message", perr.Message)
	}
	if perr.Suggestion == "" {
		t.Error("Suggestion is empty for a 401")
	}
}
