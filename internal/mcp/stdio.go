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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/tombee/chatmux/internal/jsonrpc"
	"github.com/tombee/chatmux/internal/log"
)

const (
	// spawnProbe is how long Start watches for an immediate exit before
	// declaring the process alive.
	spawnProbe = 200 * time.Millisecond

	// shutdownGrace is how long Close waits after asking the process to
	// terminate before force-killing it.
	shutdownGrace = 5 * time.Second

	// killWait bounds the wait for the process to disappear after a kill.
	killWait = 2 * time.Second

	// maxOrphans bounds the buffer of responses that arrived with no
	// matching pending request.
	maxOrphans = 64

	// stderrLimit bounds the captured stderr tail.
	stderrLimit = 8 * 1024
)

// StdioConfig configures a subprocess backend.
type StdioConfig struct {
	// ServerName is the unique identifier for this backend.
	ServerName string

	// Command is the executable to run.
	Command string

	// Args are the command-line arguments.
	Args []string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	// Env are extra environment variables (KEY=VALUE) for the process.
	Env []string

	// Timeout is the default per-request timeout (defaults to 30s).
	Timeout time.Duration

	// StaticTools optionally overrides or enriches the advertised
	// catalog (schema and argument aliases come from configuration).
	StaticTools []ToolDescriptor

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// StdioClient talks to one child process over Content-Length framed
// JSON-RPC on its standard streams.
//
// A single background goroutine drains stdout, decodes frames, and
// hands each response to the waiter registered for its id. The pending
// map is the only state shared between the reader and callers; it is
// guarded by mu. Requests on one StdioClient therefore never block
// requests on any other client.
type StdioClient struct {
	name    string
	cfg     StdioConfig
	timeout time.Duration
	logger  *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	// writeMu serializes frame writes to the child's stdin.
	writeMu sync.Mutex
	writer  *jsonrpc.Writer

	// mu guards ids, pending, orphans, and the lifecycle flags below.
	mu          sync.Mutex
	nextID      int64
	pending     map[int64]chan *jsonrpc.Response
	orphans     map[int64]*jsonrpc.Response
	orphanOrder []int64
	initialized bool
	closed      bool
	tools       []ToolDescriptor
	toolIndex   map[string]ToolDescriptor

	// procDone is closed by the waiter goroutine once the process exits.
	procDone chan struct{}
	exitErr  error

	// readerDone is closed when the stdout reader loop stops.
	readerDone chan struct{}
}

// NewStdioClient spawns the configured process and returns a client for
// it. The process is started but not yet initialized; call Initialize
// to perform the MCP handshake. Launch failures yield a *SpawnError; a
// process that exits immediately yields a *ProcessDiedError carrying
// the captured stderr.
func NewStdioClient(cfg StdioConfig) (*StdioClient, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String(log.ServerKey, cfg.ServerName), slog.String(log.TransportKey, "process"))

	c := &StdioClient{
		name:       cfg.ServerName,
		cfg:        cfg,
		timeout:    timeout,
		logger:     logger,
		stderr:     newTailBuffer(stderrLimit),
		pending:    make(map[int64]chan *jsonrpc.Response),
		orphans:    make(map[int64]*jsonrpc.Response),
		procDone:   make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	if err := c.start(); err != nil {
		return nil, err
	}
	return c, nil
}

// start spawns the child process and launches the reader goroutine.
func (c *StdioClient) start() error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.cfg.Env...)
	}
	cmd.Stderr = c.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Server: c.name, Command: c.cfg.Command, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SpawnError{Server: c.name, Command: c.cfg.Command, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Server: c.name, Command: c.cfg.Command, Cause: err}
	}

	c.cmd = cmd
	c.stdin = stdin
	c.writer = jsonrpc.NewWriter(stdin)

	go func() {
		c.exitErr = cmd.Wait()
		close(c.procDone)
	}()

	go c.readLoop(stdout)

	// Catch servers that die straight away (bad config, missing deps):
	// their stderr is far more useful than a broken-pipe error later.
	select {
	case <-c.procDone:
		return &ProcessDiedError{Server: c.name, Stderr: c.stderr.String(), Cause: c.exitErr}
	case <-time.After(spawnProbe):
	}

	c.logger.Debug("process started", slog.Int("pid", cmd.Process.Pid))
	return nil
}

// readLoop drains the child's stdout, decoding frames as they complete
// and dispatching each response to its waiter. Decode failures on one
// frame never terminate the loop; the frame reader resynchronizes at
// the next header.
func (c *StdioClient) readLoop(stdout io.Reader) {
	defer close(c.readerDone)

	reader := jsonrpc.NewReader(stdout)
	for {
		raw, err := reader.Read()
		if err != nil {
			var fe *jsonrpc.FramingError
			if errors.As(err, &fe) {
				c.logger.Warn("dropping malformed frame", slog.String("error", fe.Error()))
				continue
			}
			// EOF or a broken pipe: the stream is gone.
			if err != io.EOF {
				c.logger.Debug("stdout reader stopped", slog.String("error", err.Error()))
			}
			c.failPending()
			return
		}

		var resp jsonrpc.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.logger.Warn("dropping undecodable response", slog.String("error", err.Error()))
			continue
		}
		if resp.ID == 0 && resp.Result == nil && resp.Error == nil {
			// Server-initiated notification; nothing is waiting on it.
			c.logger.Log(context.Background(), log.LevelTrace, "ignoring notification")
			continue
		}

		c.deliver(&resp)
	}
}

// deliver hands a response to the waiter registered for its id, or
// retains it in the orphan buffer when no waiter is registered yet.
// Orphans are claimed by their own request if it is still pending, and
// evicted oldest-first once the buffer fills.
func (c *StdioClient) deliver(resp *jsonrpc.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.pending[resp.ID]; ok {
		delete(c.pending, resp.ID)
		ch <- resp
		return
	}

	// No waiter: either the request timed out already (the response is
	// stale and will be evicted) or the response raced ahead of the
	// waiter registration. Keep it until its owner claims it.
	if _, ok := c.orphans[resp.ID]; !ok {
		c.orphanOrder = append(c.orphanOrder, resp.ID)
	}
	c.orphans[resp.ID] = resp
	for len(c.orphanOrder) > maxOrphans {
		evict := c.orphanOrder[0]
		c.orphanOrder = c.orphanOrder[1:]
		delete(c.orphans, evict)
	}
}

// failPending wakes every waiter with a process-death notification by
// closing their channels' source: waiters select on procDone/readerDone
// in addition to their response channel, so nothing further is needed
// here beyond dropping the registrations.
func (c *StdioClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[int64]chan *jsonrpc.Response)
}

// Name returns the backend's configured name.
func (c *StdioClient) Name() string {
	return c.name
}

// Initialize performs the MCP handshake and fetches the tool catalog.
// Calling it again on an initialized client is a no-op returning the
// cached catalog.
func (c *StdioClient) Initialize(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	if c.initialized {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	_, err := c.request(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}, c.timeout)
	if err != nil {
		return nil, err
	}

	raw, err := c.request(ctx, "tools/list", map[string]any{}, c.timeout)
	if err != nil {
		return nil, err
	}

	tools, err := parseToolList(raw)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", c.name, err)
	}
	tools = mergeStaticTools(tools, c.cfg.StaticTools)

	c.mu.Lock()
	c.initialized = true
	c.tools = tools
	c.toolIndex = indexTools(tools)
	c.mu.Unlock()

	c.logger.Info("backend initialized", slog.Int("tools", len(tools)))
	return tools, nil
}

// CallTool invokes a tool and normalizes its result to display text.
func (c *StdioClient) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	c.mu.Lock()
	desc := c.toolIndex[tool]
	c.mu.Unlock()

	raw, err := c.request(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": cleanArgs(args, desc.ArgAliases),
	}, c.timeout)
	if err != nil {
		return "", err
	}
	return NormalizeRaw(raw), nil
}

// request sends one JSON-RPC request and blocks until the matching
// response arrives, the timeout elapses, the context is cancelled, or
// the process dies. Concurrent requests on the same client are safe;
// responses are matched by id, never by arrival order.
func (c *StdioClient) request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("server %s: client is closed", c.name)
	}
	c.nextID++
	id := c.nextID

	ch := make(chan *jsonrpc.Response, 1)
	if resp, ok := c.orphans[id]; ok {
		// The response for this id somehow arrived first. Claim it.
		delete(c.orphans, id)
		ch <- resp
	} else {
		c.pending[id] = ch
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := jsonrpc.NewRequest(id, method, params)
	c.writeMu.Lock()
	err := c.writer.Write(req)
	c.writeMu.Unlock()
	if err != nil {
		select {
		case <-c.procDone:
			return nil, &ProcessDiedError{Server: c.name, Stderr: c.stderr.String(), Cause: c.exitErr}
		default:
		}
		return nil, fmt.Errorf("server %s: send %s: %w", c.name, method, err)
	}
	c.logger.Log(ctx, log.LevelTrace, "request sent",
		slog.String("method", method), slog.Int64(log.RequestIDKey, id))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RemoteError{Server: c.name, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-timer.C:
		// The connection stays up; a late response for this id is
		// discarded by the orphan buffer's eviction.
		return nil, &TimeoutError{Server: c.name, Method: method, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.readerDone:
		return nil, &ProcessDiedError{Server: c.name, Stderr: c.stderr.String(), Cause: c.exitErr}
	}
}

// Close asks the process to terminate, waits a bounded grace period,
// then force-kills it. It never blocks indefinitely on a hung process.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Closing stdin is the polite request: well-behaved servers exit on
	// EOF.
	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	select {
	case <-c.procDone:
		return nil
	case <-time.After(shutdownGrace):
	}

	c.logger.Warn("process did not exit after grace period, killing")
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}

	select {
	case <-c.procDone:
	case <-time.After(killWait):
		c.logger.Error("process survived kill; abandoning")
	}
	return nil
}

// parseToolList decodes the result of a tools/list call.
func parseToolList(raw json.RawMessage) ([]ToolDescriptor, error) {
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// mergeStaticTools overlays configured descriptors onto the advertised
// list: schema overrides and argument aliases come from configuration,
// and configured tools the server did not advertise are appended.
func mergeStaticTools(advertised, static []ToolDescriptor) []ToolDescriptor {
	if len(static) == 0 {
		return advertised
	}

	byName := make(map[string]int, len(advertised))
	merged := make([]ToolDescriptor, len(advertised))
	copy(merged, advertised)
	for i, t := range merged {
		byName[t.Name] = i
	}

	for _, s := range static {
		if i, ok := byName[s.Name]; ok {
			if s.Description != "" {
				merged[i].Description = s.Description
			}
			if s.InputSchema != nil {
				merged[i].InputSchema = s.InputSchema
			}
			merged[i].ArgAliases = s.ArgAliases
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// indexTools builds a name lookup over a descriptor list.
func indexTools(tools []ToolDescriptor) map[string]ToolDescriptor {
	idx := make(map[string]ToolDescriptor, len(tools))
	for _, t := range tools {
		idx[t.Name] = t
	}
	return idx
}

// tailBuffer is an io.Writer retaining only the last limit bytes
// written. It is safe for concurrent use; the child process writes
// stderr from its own goroutine while errors read it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// Write implements io.Writer.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// String returns the retained tail.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
