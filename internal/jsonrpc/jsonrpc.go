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

// Package jsonrpc implements the JSON-RPC 2.0 envelope and the
// Content-Length framed codec used to exchange messages with
// subprocess backends over their standard streams.
//
// The wire format for one frame is:
//
//	Content-Length: <decimal byte length of body>\r\n
//	\r\n
//	<JSON body, exactly that many bytes, UTF-8>
//
// No other headers are required. The body is a JSON-RPC 2.0 envelope.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version sent in every envelope.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	// JSONRPC is always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID correlates this request with its response.
	ID int64 `json:"id"`

	// Method is the remote method to invoke (e.g. "tools/call").
	Method string `json:"method"`

	// Params contains the method parameters.
	Params any `json:"params,omitempty"`
}

// NewRequest creates a request envelope for the given id, method, and params.
func NewRequest(id int64, method string, params any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Response is a JSON-RPC 2.0 response envelope.
// Exactly one of Result or Error is set on a well-formed response.
type Response struct {
	// JSONRPC is always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID matches the id of the originating request.
	ID int64 `json:"id"`

	// Result carries the method result on success.
	Result json.RawMessage `json:"result,omitempty"`

	// Error carries the failure, if any.
	Error *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	// Code is the numeric error code.
	Code int `json:"code"`

	// Message describes the error.
	Message string `json:"message"`

	// Data contains additional error details, if any.
	Data json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	// CodeParse indicates the server received invalid JSON.
	CodeParse = -32700

	// CodeInvalidRequest indicates an invalid request envelope.
	CodeInvalidRequest = -32600

	// CodeMethodNotFound indicates the method does not exist.
	CodeMethodNotFound = -32601

	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams = -32602

	// CodeInternal indicates an internal server error.
	CodeInternal = -32603
)
