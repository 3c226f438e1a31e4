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

// Package orchestrator runs the conversation loop: user turns go to the
// completion provider together with the aggregated tool catalog, and
// every tool call the model makes is dispatched through the router with
// its result fed back until the model produces a final text reply.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/chatmux/internal/log"
	"github.com/tombee/chatmux/internal/mcp"
	"github.com/tombee/chatmux/pkg/llm"
)

const (
	// toolNameSeparator joins server and tool into the model-facing
	// name. Anthropic tool names must match ^[a-zA-Z0-9_-]{1,128}$, so
	// a dot separator is not an option.
	toolNameSeparator = "__"

	// maxToolRounds bounds how many completion/tool-call cycles a
	// single user turn may trigger.
	maxToolRounds = 8

	// maxTranscriptResult bounds tool output carried in the transcript.
	maxTranscriptResult = 4000
)

// Dispatcher is the router surface the orchestrator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, server, tool string, args map[string]any) (string, error)
	Catalog() []mcp.ToolDescriptor
}

// Turn is one visible conversation turn.
type Turn struct {
	Role llm.MessageRole
	Text string
}

// Config configures the orchestrator.
type Config struct {
	// Provider produces completions.
	Provider llm.Provider

	// Router dispatches tool calls.
	Router Dispatcher

	// Model is the completion model ID.
	Model string

	// MaxTokens limits each completion. Zero uses the provider default.
	MaxTokens int

	// HistoryWindow is how many recent turns accompany each request
	// (defaults to 6).
	HistoryWindow int

	// SystemPrompt is prepended to every request.
	SystemPrompt string

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// Orchestrator drives one conversation.
type Orchestrator struct {
	provider llm.Provider
	router   Dispatcher
	logger   *slog.Logger

	model         string
	maxTokens     int
	historyWindow int
	systemPrompt  string

	// turns is the append-only visible transcript. Tool-call plumbing
	// inside a round never lands here.
	turns []Turn
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = 6
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		provider:      cfg.Provider,
		router:        cfg.Router,
		logger:        logger,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		historyWindow: window,
		systemPrompt:  cfg.SystemPrompt,
	}, nil
}

// Turns returns a copy of the visible transcript.
func (o *Orchestrator) Turns() []Turn {
	out := make([]Turn, len(o.turns))
	copy(out, o.turns)
	return out
}

// Send runs one user turn to completion and returns the assistant's
// reply. Tool calls made along the way are dispatched through the
// router; a failed call becomes explanatory text in place of a result
// and the round continues.
func (o *Orchestrator) Send(ctx context.Context, userText string) (string, error) {
	o.turns = append(o.turns, Turn{Role: llm.MessageRoleUser, Text: userText})

	messages := o.requestMessages()
	tools := o.catalogTools()

	var reply strings.Builder
	for round := 0; round < maxToolRounds; round++ {
		req := llm.CompletionRequest{
			Messages: messages,
			Model:    o.model,
			Tools:    tools,
		}
		if o.maxTokens > 0 {
			maxTokens := o.maxTokens
			req.MaxTokens = &maxTokens
		}

		resp, err := o.provider.Complete(ctx, req)
		if err != nil {
			return "", err
		}

		if resp.Content != "" {
			if reply.Len() > 0 {
				reply.WriteString("\n")
			}
			reply.WriteString(resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		// Echo the assistant turn, then answer every tool call it made.
		messages = append(messages, llm.Message{
			Role:      llm.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.MessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    o.runToolCall(ctx, call),
			})
		}
	}

	text := reply.String()
	o.turns = append(o.turns, Turn{Role: llm.MessageRoleAssistant, Text: text})
	return text, nil
}

// runToolCall dispatches one model tool call and renders its outcome as
// transcript text. Failures are explained, never propagated: the model
// decides what to do with a broken tool.
func (o *Orchestrator) runToolCall(ctx context.Context, call llm.ToolCall) string {
	server, tool, ok := splitToolName(call.Name)
	if !ok {
		o.logger.Warn("model called an unroutable tool", slog.String(log.ToolKey, call.Name))
		return fmt.Sprintf("tool call failed: %q does not name a known server tool", call.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf("tool call failed: arguments are not valid JSON: %v", err)
		}
	}

	result, err := o.router.Dispatch(ctx, server, tool, args)
	if err != nil {
		return fmt.Sprintf("tool call failed: %v", err)
	}
	return truncate(result, maxTranscriptResult)
}

// requestMessages builds the provider message list: system prompt plus
// the last historyWindow visible turns.
func (o *Orchestrator) requestMessages() []llm.Message {
	var messages []llm.Message
	if o.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.MessageRoleSystem, Content: o.systemPrompt})
	}

	turns := o.turns
	if len(turns) > o.historyWindow {
		turns = turns[len(turns)-o.historyWindow:]
	}
	for _, turn := range turns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	return messages
}

// catalogTools maps the router catalog to model-facing tools, each
// namespaced with its owning server.
func (o *Orchestrator) catalogTools() []llm.Tool {
	catalog := o.router.Catalog()
	tools := make([]llm.Tool, 0, len(catalog))
	for _, desc := range catalog {
		tools = append(tools, llm.Tool{
			Name:        desc.Server + toolNameSeparator + desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}
	return tools
}

// splitToolName resolves a model-facing tool name back to its
// (server, tool) pair. Server names cannot contain the separator, so
// the first occurrence is the boundary.
func splitToolName(name string) (server, tool string, ok bool) {
	server, tool, found := strings.Cut(name, toolNameSeparator)
	if !found || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// truncate bounds s, marking the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
