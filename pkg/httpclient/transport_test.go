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

package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		redacted []string
		kept     []string
	}{
		{
			name:     "api_key redacted",
			rawURL:   "https://example.com/tool?api_key=supersecret&city=london",
			redacted: []string{"supersecret"},
			kept:     []string{"city=london"},
		},
		{
			name:     "token redacted case-insensitive",
			rawURL:   "https://example.com/x?TOKEN=abc123",
			redacted: []string{"abc123"},
		},
		{
			name:   "plain params untouched",
			rawURL: "https://example.com/x?q=hello&limit=5",
			kept:   []string{"q=hello", "limit=5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			got := redactURL(u)

			for _, secret := range tt.redacted {
				if strings.Contains(got, secret) {
					t.Errorf("redactURL(%q) = %q, still contains %q", tt.rawURL, got, secret)
				}
			}
			for _, param := range tt.kept {
				if !strings.Contains(got, param) {
					t.Errorf("redactURL(%q) = %q, lost %q", tt.rawURL, got, param)
				}
			}
		})
	}
}

func TestRedactURL_Nil(t *testing.T) {
	if got := redactURL(nil); got != "" {
		t.Errorf("redactURL(nil) = %q, want empty", got)
	}
}

func TestTransportInjectsUserAgent(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client, err := New(Config{
		Timeout:   5 * time.Second,
		UserAgent: "chatmux-test/1.0",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	if seen != "chatmux-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", seen, "chatmux-test/1.0")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero timeout")
	}

	cfg = DefaultConfig()
	cfg.UserAgent = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty user agent")
	}
}
