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

// Package config loads and validates the chatmux configuration file.
// Backends are declared as data: every tool surface is a static
// descriptor table in YAML, never executable configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tombee/chatmux/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration wraps time.Duration so YAML can carry values like "20s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Go duration strings and
// plain nanosecond integers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete chatmux configuration.
type Config struct {
	// Settings holds conversation-level options.
	Settings Settings `yaml:"settings"`

	// Servers maps backend name to its declaration. Order in the file
	// is not significant; catalog order follows the sorted name list.
	Servers map[string]Server `yaml:"servers"`
}

// Settings holds conversation-level options.
type Settings struct {
	// Model is the completion model ID.
	// Default: claude-sonnet-4-5
	Model string `yaml:"model,omitempty"`

	// MaxTokens limits each completion. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// HistoryWindow is how many recent turns are sent with each
	// completion request.
	// Default: 6
	HistoryWindow int `yaml:"history_window,omitempty"`

	// SystemPrompt is prepended to every conversation.
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

// Server declares one backend.
type Server struct {
	// Type selects the transport: process, http, or rest.
	Type string `yaml:"type"`

	// Command, Args, Dir, and Env configure process backends.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Env     []string `yaml:"env,omitempty"`

	// URL configures http backends.
	URL string `yaml:"url,omitempty"`

	// BaseURL and Endpoints configure rest backends. Endpoints maps
	// tool name to path.
	BaseURL   string            `yaml:"base_url,omitempty"`
	Endpoints map[string]string `yaml:"endpoints,omitempty"`

	// Timeout bounds each call to this backend.
	Timeout Duration `yaml:"timeout,omitempty"`

	// RateLimit is the maximum dispatch rate in calls per second.
	// Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// Tools is the static tool descriptor table: required for backends
	// that cannot list their own tools, optional schema and alias
	// overrides for the rest.
	Tools []Tool `yaml:"tools,omitempty"`
}

// Tool is a static tool descriptor in configuration.
type Tool struct {
	// Name is the tool identifier within its server.
	Name string `yaml:"name"`

	// Description explains the tool to the model.
	Description string `yaml:"description,omitempty"`

	// InputSchema is the JSON-Schema-like parameter description.
	InputSchema map[string]any `yaml:"input_schema,omitempty"`

	// ArgAliases maps model-facing argument names to the names the
	// backend expects.
	ArgAliases map[string]string `yaml:"arg_aliases,omitempty"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset settings.
func (c *Config) applyDefaults() {
	if c.Settings.Model == "" {
		c.Settings.Model = "claude-sonnet-4-5"
	}
	if c.Settings.HistoryWindow == 0 {
		c.Settings.HistoryWindow = 6
	}
}

// Validate checks the configuration for structural errors. Every error
// carries the field path that caused it.
func (c *Config) Validate() error {
	if c.Settings.HistoryWindow < 0 {
		return fmt.Errorf("%w: settings.history_window: must not be negative", ErrInvalidConfig)
	}
	if c.Settings.MaxTokens < 0 {
		return fmt.Errorf("%w: settings.max_tokens: must not be negative", ErrInvalidConfig)
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("%w: servers: at least one backend is required", ErrInvalidConfig)
	}

	for name, srv := range c.Servers {
		if name == "" {
			return fmt.Errorf("%w: servers: backend name must not be empty", ErrInvalidConfig)
		}
		// The model-facing catalog joins server and tool with "__", so
		// the separator cannot appear in server names.
		if strings.Contains(name, "__") {
			return fmt.Errorf("%w: servers.%s: name must not contain %q", ErrInvalidConfig, name, "__")
		}
		if err := srv.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// validate checks one backend declaration.
func (s Server) validate(name string) error {
	field := func(f string) string { return fmt.Sprintf("servers.%s.%s", name, f) }

	switch s.Type {
	case mcp.KindProcess:
		if s.Command == "" {
			return fmt.Errorf("%w: %s: required for process backends", ErrInvalidConfig, field("command"))
		}
	case mcp.KindHTTP:
		if s.URL == "" {
			return fmt.Errorf("%w: %s: required for http backends", ErrInvalidConfig, field("url"))
		}
	case mcp.KindREST:
		if s.BaseURL == "" {
			return fmt.Errorf("%w: %s: required for rest backends", ErrInvalidConfig, field("base_url"))
		}
		if len(s.Endpoints) == 0 {
			return fmt.Errorf("%w: %s: at least one endpoint is required", ErrInvalidConfig, field("endpoints"))
		}
	case "":
		return fmt.Errorf("%w: %s: required (process, http, or rest)", ErrInvalidConfig, field("type"))
	default:
		return fmt.Errorf("%w: %s: unknown backend type %q", ErrInvalidConfig, field("type"), s.Type)
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("%w: %s: must not be negative", ErrInvalidConfig, field("rate_limit"))
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: %s: must not be negative", ErrInvalidConfig, field("timeout"))
	}

	seen := make(map[string]bool, len(s.Tools))
	for i, tool := range s.Tools {
		if tool.Name == "" {
			return fmt.Errorf("%w: %s: name is required", ErrInvalidConfig, field(fmt.Sprintf("tools[%d]", i)))
		}
		if seen[tool.Name] {
			return fmt.Errorf("%w: %s: duplicate tool %q", ErrInvalidConfig, field(fmt.Sprintf("tools[%d]", i)), tool.Name)
		}
		seen[tool.Name] = true
	}
	return nil
}
