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

package mcp

import "time"

// InteractionKind classifies an observed interaction.
type InteractionKind string

const (
	// InteractionConnection records a backend connection attempt.
	InteractionConnection InteractionKind = "connection"
	// InteractionToolCall records one tool invocation.
	InteractionToolCall InteractionKind = "tool_call"
)

// Interaction is one observed backend event. The observer pattern
// replaces an ambient interaction-log singleton: whoever constructs the
// Router decides where these records go.
type Interaction struct {
	// Kind classifies the interaction.
	Kind InteractionKind `json:"kind"`

	// Timestamp is when the interaction completed.
	Timestamp time.Time `json:"timestamp"`

	// Server is the backend name.
	Server string `json:"server"`

	// Transport is the backend's transport kind.
	Transport string `json:"transport,omitempty"`

	// Tool is the tool name, for tool calls.
	Tool string `json:"tool,omitempty"`

	// Args are the call arguments, for tool calls.
	Args map[string]any `json:"args,omitempty"`

	// Result is the (possibly truncated) normalized result.
	Result string `json:"result,omitempty"`

	// Err is the failure message, when the interaction failed.
	Err string `json:"error,omitempty"`

	// Duration is how long the interaction took.
	Duration time.Duration `json:"duration_ns,omitempty"`

	// ToolCount is the advertised tool count, for connections.
	ToolCount int `json:"tool_count,omitempty"`
}

// Succeeded reports whether the interaction completed without error.
func (i Interaction) Succeeded() bool {
	return i.Err == ""
}

// Observer receives interaction records from the Router and the
// transports. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(Interaction)
}

// NopObserver discards every interaction.
type NopObserver struct{}

// Observe implements Observer.
func (NopObserver) Observe(Interaction) {}
