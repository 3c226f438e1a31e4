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

package config

import (
	"sort"

	"github.com/tombee/chatmux/internal/mcp"
)

// BackendSpecs converts the server declarations to loader input.
// YAML maps carry no order, so backends load in sorted-name order to
// keep the catalog deterministic across runs.
func (c *Config) BackendSpecs() []mcp.BackendSpec {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]mcp.BackendSpec, 0, len(names))
	for _, name := range names {
		srv := c.Servers[name]
		specs = append(specs, mcp.BackendSpec{
			Name:      name,
			Kind:      srv.Type,
			Command:   srv.Command,
			Args:      srv.Args,
			Dir:       srv.Dir,
			Env:       srv.Env,
			URL:       srv.URL,
			BaseURL:   srv.BaseURL,
			Endpoints: srv.Endpoints,
			Timeout:   srv.Timeout.Std(),
			RateLimit: srv.RateLimit,
			Tools:     toolDescriptors(srv.Tools),
		})
	}
	return specs
}

// toolDescriptors maps static tool declarations to descriptors.
func toolDescriptors(tools []Tool) []mcp.ToolDescriptor {
	if len(tools) == 0 {
		return nil
	}
	out := make([]mcp.ToolDescriptor, len(tools))
	for i, t := range tools {
		out[i] = mcp.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ArgAliases:  t.ArgAliases,
		}
	}
	return out
}
