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

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/chatmux/internal/log"
)

// Backend kinds.
const (
	KindProcess = "process"
	KindHTTP    = "http"
	KindREST    = "rest"
)

// BackendSpec is the resolved configuration for one backend, the input
// to client construction. Loading and parsing the configuration file is
// the config package's job; this struct is its output shape.
type BackendSpec struct {
	// Name is the unique backend identifier.
	Name string

	// Kind selects the transport: process, http, or rest.
	Kind string

	// Command, Args, Dir, and Env apply to process backends.
	Command string
	Args    []string
	Dir     string
	Env     []string

	// URL applies to http backends.
	URL string

	// BaseURL and Endpoints apply to rest backends.
	BaseURL   string
	Endpoints map[string]string

	// Timeout is the per-call timeout; zero means the transport default.
	Timeout time.Duration

	// RateLimit is the maximum dispatch rate in calls per second; zero
	// means unlimited.
	RateLimit float64

	// Tools is the static tool table from configuration: descriptors
	// for backends that cannot list their own, schema overrides and
	// argument aliases for the rest.
	Tools []ToolDescriptor
}

// NewClient constructs the transport client for a spec.
func NewClient(spec BackendSpec, logger *slog.Logger) (Client, error) {
	switch spec.Kind {
	case KindProcess:
		return NewStdioClient(StdioConfig{
			ServerName:  spec.Name,
			Command:     spec.Command,
			Args:        spec.Args,
			Dir:         spec.Dir,
			Env:         spec.Env,
			Timeout:     spec.Timeout,
			StaticTools: spec.Tools,
			Logger:      logger,
		})
	case KindHTTP:
		return NewHTTPClient(HTTPConfig{
			ServerName:  spec.Name,
			URL:         spec.URL,
			Timeout:     spec.Timeout,
			StaticTools: spec.Tools,
			Logger:      logger,
		})
	case KindREST:
		return NewRESTClient(RESTConfig{
			ServerName:  spec.Name,
			BaseURL:     spec.BaseURL,
			Endpoints:   spec.Endpoints,
			Timeout:     spec.Timeout,
			StaticTools: spec.Tools,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("server %s: unknown backend kind %q", spec.Name, spec.Kind)
	}
}

// LoadResult reports which backends connected during startup.
type LoadResult struct {
	// Connected lists backends that registered successfully, in
	// registration order.
	Connected []string

	// Failed maps each backend that could not be loaded to its error.
	Failed map[string]error
}

// LoadBackends constructs, initializes, and registers a client per
// spec. A backend that fails to spawn or initialize aborts only its own
// registration: the rest keep loading, and the orchestrator runs with
// whatever connected. The result reports both sides.
func LoadBackends(ctx context.Context, router *Router, specs []BackendSpec, logger *slog.Logger, observer Observer) LoadResult {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	result := LoadResult{Failed: make(map[string]error)}

	for _, spec := range specs {
		client, err := NewClient(spec, logger)
		if err != nil {
			result.Failed[spec.Name] = err
			reportLoadFailure(logger, observer, spec, err)
			continue
		}

		tools, err := client.Initialize(ctx)
		if err != nil {
			_ = client.Close()
			result.Failed[spec.Name] = err
			reportLoadFailure(logger, observer, spec, err)
			continue
		}

		if err := router.Register(spec.Name, client, tools, spec.RateLimit); err != nil {
			_ = client.Close()
			result.Failed[spec.Name] = err
			reportLoadFailure(logger, observer, spec, err)
			continue
		}

		result.Connected = append(result.Connected, spec.Name)
		observer.Observe(Interaction{
			Kind:      InteractionConnection,
			Timestamp: time.Now(),
			Server:    spec.Name,
			Transport: spec.Kind,
			ToolCount: len(tools),
		})
	}

	return result
}

// reportLoadFailure logs and records one backend's startup failure.
func reportLoadFailure(logger *slog.Logger, observer Observer, spec BackendSpec, err error) {
	logger.Warn("backend failed to load, continuing without it",
		slog.String(log.ServerKey, spec.Name),
		slog.String(log.TransportKey, spec.Kind),
		slog.String("error", err.Error()))
	observer.Observe(Interaction{
		Kind:      InteractionConnection,
		Timestamp: time.Now(),
		Server:    spec.Name,
		Transport: spec.Kind,
		Err:       err.Error(),
	})
}
