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

// Package llm provides a provider-agnostic interface for chat
// completion backends with tool calling.
package llm

import (
	"context"
	"time"
)

// Provider is the interface all completion backends implement.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g., "anthropic").
	Name() string

	// Complete sends a synchronous completion request and returns the
	// full response. It blocks until the model's reply is complete.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest contains all parameters for a completion request.
type CompletionRequest struct {
	// Messages is the conversation history including the current prompt.
	Messages []Message

	// Model specifies which model to use.
	Model string

	// Temperature controls randomness (0.0 = deterministic). Nil uses
	// the provider default.
	Temperature *float64

	// MaxTokens limits the response length. Nil uses the provider default.
	MaxTokens *int

	// Tools defines the functions the model may call.
	Tools []Tool
}

// Message represents a single message in a conversation.
type Message struct {
	// Role indicates who sent this message.
	Role MessageRole

	// Content is the text content of the message.
	Content string

	// ToolCalls contains tool invocations made by the assistant.
	// Only valid when Role is "assistant".
	ToolCalls []ToolCall

	// ToolCallID links this message to the tool call it answers.
	// Only valid when Role is "tool".
	ToolCallID string

	// Name identifies the tool that produced this result.
	// Only valid when Role is "tool".
	Name string
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	// MessageRoleSystem indicates a system message (context, instructions).
	MessageRoleSystem MessageRole = "system"

	// MessageRoleUser indicates a message from the user.
	MessageRoleUser MessageRole = "user"

	// MessageRoleAssistant indicates a message from the model.
	MessageRoleAssistant MessageRole = "assistant"

	// MessageRoleTool indicates a tool execution result.
	MessageRoleTool MessageRole = "tool"
)

// ToolCall represents a function invocation by the model.
type ToolCall struct {
	// ID uniquely identifies this tool call within a completion.
	ID string

	// Name is the function name to invoke.
	Name string

	// Arguments contains the JSON-encoded function parameters.
	Arguments string
}

// Tool defines a function the model can invoke.
type Tool struct {
	// Name is the function identifier.
	Name string

	// Description explains what this function does.
	Description string

	// InputSchema is a JSON Schema describing the function parameters.
	InputSchema map[string]any
}

// CompletionResponse contains the full response from a completion.
type CompletionResponse struct {
	// Content is the generated text response.
	Content string

	// ToolCalls contains any tool invocations made by the model.
	ToolCalls []ToolCall

	// FinishReason explains why generation stopped.
	FinishReason FinishReason

	// Usage contains token consumption information.
	Usage TokenUsage

	// Model is the actual model ID that handled this request.
	Model string

	// RequestID is the unique identifier for this request (for tracing).
	RequestID string

	// Created is the timestamp when this response was generated.
	Created time.Time
}

// FinishReason indicates why completion generation stopped.
type FinishReason string

const (
	// FinishReasonStop indicates natural completion.
	FinishReasonStop FinishReason = "stop"

	// FinishReasonLength indicates the max_tokens limit was reached.
	FinishReasonLength FinishReason = "length"

	// FinishReasonToolCalls indicates the model wants to call functions.
	FinishReasonToolCalls FinishReason = "tool_calls"

	// FinishReasonContentFilter indicates a content policy stop.
	FinishReasonContentFilter FinishReason = "content_filter"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	// InputTokens is the number of tokens in the input (prompt).
	InputTokens int

	// OutputTokens is the number of tokens in the output (completion).
	OutputTokens int

	// TotalTokens is the sum of input and output tokens.
	TotalTokens int
}
