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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}

	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}

	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}

	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		level   string
		format  Format
		source  bool
	}{
		{
			name:    "defaults when no env vars",
			envVars: map[string]string{},
			level:   "info",
			format:  FormatJSON,
		},
		{
			name:    "LOG_LEVEL=debug",
			envVars: map[string]string{"LOG_LEVEL": "debug"},
			level:   "debug",
			format:  FormatJSON,
		},
		{
			name:    "CHATMUX_LOG_LEVEL overrides LOG_LEVEL",
			envVars: map[string]string{"LOG_LEVEL": "warn", "CHATMUX_LOG_LEVEL": "trace"},
			level:   "trace",
			format:  FormatJSON,
		},
		{
			name:    "CHATMUX_DEBUG enables debug and source",
			envVars: map[string]string{"CHATMUX_DEBUG": "1", "LOG_LEVEL": "error"},
			level:   "debug",
			format:  FormatJSON,
			source:  true,
		},
		{
			name:    "LOG_FORMAT=text",
			envVars: map[string]string{"LOG_FORMAT": "TEXT"},
			level:   "info",
			format:  FormatText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.level {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.level)
			}
			if cfg.Format != tt.format {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.format)
			}
			if cfg.AddSource != tt.source {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.source)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("hello", slog.String(ServerKey, "music"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
	if entry[ServerKey] != "music" {
		t.Errorf("server = %v, want music", entry[ServerKey])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn to pass the filter, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFieldKeysReachOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	logger.Debug("tool call",
		slog.String(ServerKey, "weather"),
		slog.String(ToolKey, "forecast"),
		slog.String(TransportKey, "process"),
		slog.String(ProviderKey, "anthropic"),
		slog.String(SessionKey, "s-1"),
		slog.Int64(DurationKey, 12),
		slog.Int64(RequestIDKey, 3))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	for _, key := range []string{"server", "tool", "transport", "provider", "session_id", "duration_ms", "request_id"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("log entry missing field %q: %v", key, entry)
		}
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "[REDACTED]"},
		{"abc", "[REDACTED]"},
		{"sk-ant-12345678", "...5678"},
	}

	for _, tt := range tests {
		if got := SanitizeAPIKey(tt.in); got != tt.want {
			t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
