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

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/chatmux/internal/log"
)

// RouterConfig configures the Router.
type RouterConfig struct {
	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// Observer receives interaction records (optional).
	Observer Observer

	// Metrics receives tool-call metrics (optional).
	Metrics *Metrics
}

// registration pairs a client with its cached catalog and limits.
type registration struct {
	client  Client
	tools   []ToolDescriptor
	limiter *rate.Limiter
}

// Router owns the set of named ToolClients and routes each
// (server, tool) invocation to the right one. Registration order is
// preserved for catalog aggregation.
type Router struct {
	logger   *slog.Logger
	observer Observer
	metrics  *Metrics

	mu      sync.RWMutex
	order   []string
	clients map[string]*registration
}

// NewRouter creates an empty router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Router{
		logger:   logger,
		observer: observer,
		metrics:  cfg.Metrics,
		clients:  make(map[string]*registration),
	}
}

// Register adds a client under a unique name along with its initialized
// catalog. Names come from configuration and must be distinct: a
// collision fails with *DuplicateServerError and the first registration
// stays active. An optional rate limit (calls per second) bounds
// dispatches to this backend; zero means unlimited.
func (r *Router) Register(name string, client Client, tools []ToolDescriptor, callsPerSecond float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[name]; exists {
		return &DuplicateServerError{Server: name}
	}

	reg := &registration{client: client}
	if callsPerSecond > 0 {
		reg.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}

	// Tag each descriptor with its owner; the catalog is immutable from
	// here on.
	reg.tools = make([]ToolDescriptor, len(tools))
	copy(reg.tools, tools)
	for i := range reg.tools {
		reg.tools[i].Server = name
	}

	r.clients[name] = reg
	r.order = append(r.order, name)
	if r.metrics != nil {
		r.metrics.setBackendCount(len(r.order))
	}

	r.logger.Info("backend registered",
		slog.String(log.ServerKey, name),
		slog.Int("tools", len(tools)))
	return nil
}

// Dispatch routes one tool invocation to the named backend. An
// unregistered server fails with *UnknownServerError before any I/O.
// Backend failures are wrapped as *ToolCallError with server/tool
// context; an unknown tool name is the client's own responsibility to
// surface.
func (r *Router) Dispatch(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	r.mu.RLock()
	reg, ok := r.clients[server]
	r.mu.RUnlock()
	if !ok {
		return "", &UnknownServerError{Server: server}
	}

	if reg.limiter != nil {
		if err := reg.limiter.Wait(ctx); err != nil {
			return "", &ToolCallError{Server: server, Tool: tool, Cause: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	start := time.Now()
	result, err := reg.client.CallTool(ctx, tool, args)
	duration := time.Since(start)

	if r.metrics != nil {
		r.metrics.observeCall(server, tool, duration, err)
	}
	r.observer.Observe(Interaction{
		Kind:      InteractionToolCall,
		Timestamp: time.Now(),
		Server:    server,
		Tool:      tool,
		Args:      args,
		Result:    truncateForLog(result, 500),
		Err:       errString(err),
		Duration:  duration,
	})

	if err != nil {
		r.logger.Warn("tool call failed",
			slog.String(log.ServerKey, server),
			slog.String(log.ToolKey, tool),
			slog.Int64(log.DurationKey, duration.Milliseconds()),
			slog.String("error", err.Error()))
		return "", &ToolCallError{Server: server, Tool: tool, Cause: err}
	}

	r.logger.Debug("tool call succeeded",
		slog.String(log.ServerKey, server),
		slog.String(log.ToolKey, tool),
		slog.Int64(log.DurationKey, duration.Milliseconds()))
	return result, nil
}

// Catalog concatenates every registered backend's advertised tools,
// each tagged with its owning server, ordered by registration order and
// then the backend's own tool order.
func (r *Router) Catalog() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var catalog []ToolDescriptor
	for _, name := range r.order {
		catalog = append(catalog, r.clients[name].tools...)
	}
	return catalog
}

// Servers returns the registered backend names in registration order.
func (r *Router) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ToolCount returns the number of tools advertised by a backend, or
// zero for an unknown name.
func (r *Router) ToolCount(server string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.clients[server]; ok {
		return len(reg.tools)
	}
	return 0
}

// Close closes every registered client. All clients are closed even if
// some fail; the first error is returned.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.clients[name].client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	r.order = nil
	r.clients = make(map[string]*registration)
	if r.metrics != nil {
		r.metrics.setBackendCount(0)
	}
	return firstErr
}

// errString renders an error for interaction records.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
