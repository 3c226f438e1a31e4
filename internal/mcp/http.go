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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/chatmux/internal/jsonrpc"
	"github.com/tombee/chatmux/internal/log"
	"github.com/tombee/chatmux/pkg/httpclient"
)

// HTTPConfig configures an HTTP JSON-RPC backend.
type HTTPConfig struct {
	// ServerName is the unique identifier for this backend.
	ServerName string

	// URL is the JSON-RPC endpoint.
	URL string

	// Timeout bounds each call (defaults to 10s).
	Timeout time.Duration

	// StaticTools is the fallback catalog used when the backend does
	// not answer tools/list. Listing is best-effort for HTTP backends.
	StaticTools []ToolDescriptor

	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// HTTPClient issues one JSON-RPC call per invocation over HTTP POST.
// HTTP delimits messages on its own, so no Content-Length framing layer
// is involved and there is no background reader: each call is a plain
// synchronous request/response.
type HTTPClient struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	nextID  atomic.Int64

	mu          sync.Mutex
	initialized bool
	tools       []ToolDescriptor
	toolIndex   map[string]ToolDescriptor
	static      []ToolDescriptor
}

// NewHTTPClient creates a client for an HTTP JSON-RPC backend.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String(log.ServerKey, cfg.ServerName), slog.String(log.TransportKey, "http"))

	client := cfg.HTTPClient
	if client == nil {
		hcfg := httpclient.DefaultConfig()
		hcfg.Timeout = timeout
		hcfg.UserAgent = "chatmux/" + clientVersion
		hcfg.Logger = logger
		var err error
		client, err = httpclient.New(hcfg)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
	}

	return &HTTPClient{
		name:    cfg.ServerName,
		url:     cfg.URL,
		timeout: timeout,
		client:  client,
		logger:  logger,
		static:  cfg.StaticTools,
	}, nil
}

// Name returns the backend's configured name.
func (c *HTTPClient) Name() string {
	return c.name
}

// Initialize attempts tools/list. If the backend does not answer, the
// statically configured tool list is used instead of failing startup.
func (c *HTTPClient) Initialize(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	if c.initialized {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	tools := c.static
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		c.logger.Warn("tools/list failed, using configured tool list",
			slog.String("error", err.Error()),
			slog.Int("tools", len(tools)))
	} else {
		listed, perr := parseToolList(raw)
		if perr != nil {
			c.logger.Warn("tools/list result undecodable, using configured tool list",
				slog.String("error", perr.Error()))
		} else {
			tools = mergeStaticTools(listed, c.static)
		}
	}

	c.mu.Lock()
	c.initialized = true
	c.tools = tools
	c.toolIndex = indexTools(tools)
	c.mu.Unlock()

	c.logger.Info("backend initialized", slog.Int("tools", len(tools)))
	return tools, nil
}

// CallTool invokes a tool and normalizes its result to display text.
func (c *HTTPClient) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	c.mu.Lock()
	desc := c.toolIndex[tool]
	c.mu.Unlock()

	raw, err := c.call(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": cleanArgs(args, desc.ArgAliases),
	})
	if err != nil {
		return "", err
	}
	return NormalizeRaw(raw), nil
}

// call performs one JSON-RPC exchange over HTTP POST. A non-2xx status
// or a JSON-RPC error field both fail with *RemoteError carrying the
// server-provided message.
func (c *HTTPClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	body, err := json.Marshal(jsonrpc.NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("server %s: marshal request: %w", c.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("server %s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Server: c.name, Method: method, Timeout: c.timeout}
		}
		return nil, fmt.Errorf("server %s: %s: %w", c.name, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("server %s: read response: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{
			Server:     c.name,
			HTTPStatus: resp.StatusCode,
			Message:    truncateForLog(string(respBody), 200),
		}
	}

	var envelope jsonrpc.Response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("server %s: decode response: %w", c.name, err)
	}
	if envelope.Error != nil {
		return nil, &RemoteError{Server: c.name, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return envelope.Result, nil
}

// Close releases nothing for HTTP backends; connections are pooled by
// the shared client.
func (c *HTTPClient) Close() error {
	return nil
}

// truncateForLog bounds server-provided text included in errors.
func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
