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
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tombee/chatmux/internal/log"
)

// Query parameter names redacted from logged URLs. REST backends tend
// to carry credentials in the query string; matching is case-insensitive
// on substrings so variants like X-Api-Key or AUTH_TOKEN are caught.
var sensitiveQueryParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
}

// transport injects the User-Agent header and logs each request with a
// redacted URL and its duration.
type transport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{base: base, userAgent: userAgent, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		t.logger.Warn("http request failed",
			slog.String("method", req.Method),
			slog.String("url", redactURL(req.URL)),
			slog.Int64(log.DurationKey, elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(req.Context(), level, "http request",
		slog.String("method", req.Method),
		slog.String("url", redactURL(req.URL)),
		slog.Int("status", resp.StatusCode),
		slog.Int64(log.DurationKey, elapsed))

	return resp, nil
}

// redactURL replaces credential-looking query parameter values before a
// URL reaches the logs. A URL with no sensitive parameters is returned
// with its original encoding intact.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	redacted := false
	for name := range q {
		lower := strings.ToLower(name)
		for _, sensitive := range sensitiveQueryParams {
			if strings.Contains(lower, sensitive) {
				q.Set(name, "[REDACTED]")
				redacted = true
				break
			}
		}
	}
	if !redacted {
		return u.String()
	}

	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}
