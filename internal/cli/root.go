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

// Package cli builds the root Cobra command.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/chatmux/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for chatmux
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatmux",
		Short: "chatmux - multi-backend tool-calling chat",
		Long: `chatmux is a terminal chat client that connects a Large Language
Model to any number of tool backends: local MCP servers spoken to over
stdio, JSON-RPC servers over HTTP, and plain REST APIs. The model sees
one aggregated tool catalog and chatmux routes each call to the backend
that owns it.

Backends are declared in servers.yaml; run 'chatmux servers' to check
what is configured and reachable.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, json, configPath := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(configPath, "config", "", "Path to config file (default: ~/.config/chatmux/servers.yaml)")

	return cmd
}
