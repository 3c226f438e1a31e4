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

// Package mcp implements the transport and dispatch layer that lets
// chatmux treat heterogeneous tool backends as one uniform tool-calling
// surface.
//
// Three transports are supported behind the single Client interface:
//
//   - StdioClient spawns a child process speaking Content-Length framed
//     JSON-RPC over its standard streams (see internal/jsonrpc). A
//     background reader correlates responses to requests by id, so slow
//     responses on one request never block another.
//   - HTTPClient issues one JSON-RPC call per invocation over HTTP POST.
//     HTTP itself delimits messages, so no framing is involved.
//   - RESTClient calls plain REST endpoints keyed by tool name, with no
//     JSON-RPC envelope at all.
//
// The Router owns the set of named clients, aggregates their tool
// catalogs for presentation to the LLM, and routes each (server, tool)
// invocation to the right client. Whatever shape a backend answers
// with, Normalize flattens it into display text.
//
// Backend failures are deliberately contained: a backend that cannot be
// spawned or initialized is skipped at startup, and a failed tool call
// surfaces as an error result rather than terminating the conversation.
package mcp
