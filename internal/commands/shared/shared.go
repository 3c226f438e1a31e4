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

// Package shared holds state and helpers common to all CLI commands.
package shared

import (
	"fmt"
	"os"

	"github.com/tombee/chatmux/internal/config"
)

// Version information, injected from main.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flag storage, registered on the root command.
var (
	flagVerbose bool
	flagJSON    bool
	flagConfig  string
)

// SetVersion stores build-time version info.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns stored version info.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// RegisterFlagPointers returns pointers for the root command's
// persistent flags.
func RegisterFlagPointers() (verbose *bool, json *bool, configPath *string) {
	return &flagVerbose, &flagJSON, &flagConfig
}

// GetVerbose reports whether --verbose was set.
func GetVerbose() bool {
	return flagVerbose
}

// GetJSON reports whether --json was set.
func GetJSON() bool {
	return flagJSON
}

// ConfigPath resolves the configuration file path: the --config flag,
// then CHATMUX_CONFIG, then the XDG default.
func ConfigPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	if env := os.Getenv("CHATMUX_CONFIG"); env != "" {
		return env, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

// LoadConfig loads the resolved configuration file.
func LoadConfig() (*config.Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
