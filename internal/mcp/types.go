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

import "context"

// MCP protocol constants used in the initialize handshake.
const (
	// ProtocolVersion is the MCP protocol revision spoken to backends.
	ProtocolVersion = "2024-11-05"

	// clientName identifies this client in the initialize handshake.
	clientName = "chatmux"

	// clientVersion is the client version reported in the handshake.
	clientVersion = "1.0.0"
)

// ToolDescriptor describes one callable tool. Descriptors are immutable
// once fetched at initialization.
type ToolDescriptor struct {
	// Name is the tool identifier within its owning server.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// InputSchema is the JSON-Schema-like description of the tool's
	// parameters.
	InputSchema map[string]any `json:"inputSchema"`

	// Server is the owning backend. Empty until the Router tags the
	// descriptor during catalog aggregation.
	Server string `json:"-"`

	// ArgAliases maps LLM-facing argument names to the names the
	// backend actually expects. Nil when no renaming is needed.
	ArgAliases map[string]string `json:"-"`
}

// Client is the uniform capability surface over all backend transports.
// A Client owns exactly one backend connection (one subprocess, or one
// HTTP endpoint); clients are never shared across backends.
type Client interface {
	// Name returns the backend's configured name.
	Name() string

	// Initialize establishes the connection and returns the backend's
	// advertised tools. It is idempotent: calling it again on an
	// already-initialized client returns the cached catalog.
	Initialize(ctx context.Context) ([]ToolDescriptor, error)

	// CallTool invokes a named tool and returns its normalized text
	// result.
	CallTool(ctx context.Context, tool string, args map[string]any) (string, error)

	// Close releases the backend connection. Safe to call more than once.
	Close() error
}

// cleanArgs drops nil and empty-string arguments and applies the
// descriptor's alias mapping. Backends reject unexpected empty values
// more often than they tolerate them.
func cleanArgs(args map[string]any, aliases map[string]string) map[string]any {
	cleaned := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if mapped, ok := aliases[k]; ok {
			k = mapped
		}
		cleaned[k] = v
	}
	return cleaned
}
