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

package main

import (
	"fmt"
	"os"

	"github.com/tombee/chatmux/internal/cli"
	"github.com/tombee/chatmux/internal/commands/chat"
	historycmd "github.com/tombee/chatmux/internal/commands/history"
	"github.com/tombee/chatmux/internal/commands/servers"
	versioncmd "github.com/tombee/chatmux/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(chat.NewCommand())
	rootCmd.AddCommand(servers.NewCommand())
	rootCmd.AddCommand(historycmd.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
