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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tombee/chatmux/internal/log"
	"github.com/tombee/chatmux/pkg/httpclient"
)

// RESTConfig configures a plain REST backend (no JSON-RPC envelope).
type RESTConfig struct {
	// ServerName is the unique identifier for this backend.
	ServerName string

	// BaseURL is prefixed to every endpoint.
	BaseURL string

	// Endpoints maps tool names to endpoint paths.
	Endpoints map[string]string

	// Timeout bounds each call (defaults to 10s).
	Timeout time.Duration

	// StaticTools optionally provides descriptions and schemas for the
	// endpoint-backed tools.
	StaticTools []ToolDescriptor

	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// RESTClient calls one REST endpoint per tool name. There is no
// envelope: tool arguments travel as query parameters and the response
// body is returned verbatim as text.
type RESTClient struct {
	name      string
	baseURL   string
	endpoints map[string]string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
	tools     []ToolDescriptor
	toolIndex map[string]ToolDescriptor
}

// NewRESTClient creates a client for a plain REST backend.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String(log.ServerKey, cfg.ServerName), slog.String(log.TransportKey, "rest"))

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

	// The catalog is the endpoint map; static descriptors contribute
	// descriptions, schemas, and aliases where configured.
	static := indexTools(cfg.StaticTools)
	tools := make([]ToolDescriptor, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		if desc, ok := static[name]; ok {
			tools = append(tools, desc)
			continue
		}
		tools = append(tools, ToolDescriptor{Name: name})
	}

	return &RESTClient{
		name:      cfg.ServerName,
		baseURL:   cfg.BaseURL,
		endpoints: cfg.Endpoints,
		timeout:   timeout,
		client:    client,
		logger:    logger,
		tools:     tools,
		toolIndex: indexTools(tools),
	}, nil
}

// Name returns the backend's configured name.
func (c *RESTClient) Name() string {
	return c.name
}

// Initialize returns the endpoint-derived catalog. There is nothing to
// connect to up front for a REST backend.
func (c *RESTClient) Initialize(ctx context.Context) ([]ToolDescriptor, error) {
	c.logger.Info("backend initialized", slog.Int("tools", len(c.tools)))
	return c.tools, nil
}

// CallTool issues a GET against the endpoint mapped to the tool name,
// with args as the query string. The response body is returned as-is.
func (c *RESTClient) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	endpoint, ok := c.endpoints[tool]
	if !ok {
		return "", &UnknownToolError{Server: c.name, Tool: tool}
	}

	desc := c.toolIndex[tool]
	query := url.Values{}
	for k, v := range cleanArgs(args, desc.ArgAliases) {
		query.Set(k, queryValue(v))
	}

	callURL := c.baseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		callURL += "?" + encoded
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callURL, nil)
	if err != nil {
		return "", fmt.Errorf("server %s: build request: %w", c.name, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &TimeoutError{Server: c.name, Method: tool, Timeout: c.timeout}
		}
		return "", fmt.Errorf("server %s: %s: %w", c.name, tool, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("server %s: read response: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteError{
			Server:     c.name,
			HTTPStatus: resp.StatusCode,
			Message:    truncateForLog(string(body), 200),
		}
	}

	// Opaque text by contract: no JSON interpretation of REST bodies.
	return string(body), nil
}

// Close releases nothing for REST backends.
func (c *RESTClient) Close() error {
	return nil
}

// queryValue renders an argument as a query-string value. Scalars keep
// their natural text form; anything structured is JSON-encoded.
func queryValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64, float32, int, int64, int32, uint, uint64, bool:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
