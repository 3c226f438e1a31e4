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
	"fmt"
	"strings"
	"time"
)

// SpawnError indicates a backend process could not be launched at all.
type SpawnError struct {
	// Server is the backend name.
	Server string

	// Command is the executable that failed to launch.
	Command string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("server %s: failed to spawn %q: %v", e.Server, e.Command, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// ProcessDiedError indicates a backend process exited before (or while)
// completing the handshake. Stderr carries whatever the process wrote
// to standard error before dying, which is usually the actual reason.
type ProcessDiedError struct {
	// Server is the backend name.
	Server string

	// Stderr is the captured standard-error output.
	Stderr string

	// Cause is the process exit error, if known.
	Cause error
}

// Error implements the error interface.
func (e *ProcessDiedError) Error() string {
	msg := fmt.Sprintf("server %s: process died", e.Server)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: stderr: %s", msg, s)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProcessDiedError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates no matching response arrived within the deadline.
// The underlying connection survives; a late response for the request is
// discarded when it eventually shows up.
type TimeoutError struct {
	// Server is the backend name.
	Server string

	// Method is the JSON-RPC method (or tool name) that timed out.
	Method string

	// Timeout is the deadline that elapsed.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("server %s: %s timed out after %v", e.Server, e.Method, e.Timeout)
}

// RemoteError indicates the backend reported a failure: a JSON-RPC error
// object, or a non-2xx HTTP status.
type RemoteError struct {
	// Server is the backend name.
	Server string

	// Code is the JSON-RPC error code, if the failure came in an envelope.
	Code int

	// HTTPStatus is the HTTP status code, if the failure was transport-level.
	HTTPStatus int

	// Message is the server-provided error message.
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("server %s: remote error", e.Server)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Code)
	}
	if e.HTTPStatus != 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", msg, e.Message)
}

// UnknownServerError indicates a dispatch to a server name that was
// never registered. No I/O is attempted.
type UnknownServerError struct {
	// Server is the unregistered name.
	Server string
}

// Error implements the error interface.
func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("unknown server: %s", e.Server)
}

// UnknownToolError indicates a tool name the backend does not expose.
type UnknownToolError struct {
	// Server is the backend name.
	Server string

	// Tool is the unknown tool name.
	Tool string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("server %s: unknown tool: %s", e.Server, e.Tool)
}

// DuplicateServerError indicates two backends were configured with the
// same name. The first registration stays active.
type DuplicateServerError struct {
	// Server is the colliding name.
	Server string
}

// Error implements the error interface.
func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %s is already registered", e.Server)
}

// ToolCallError wraps any transport or backend failure with the
// (server, tool) context the orchestrator needs to report it.
type ToolCallError struct {
	// Server is the backend name.
	Server string

	// Tool is the tool that was being called.
	Tool string

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface.
func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call %s:%s failed: %v", e.Server, e.Tool, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ToolCallError) Unwrap() error {
	return e.Cause
}
