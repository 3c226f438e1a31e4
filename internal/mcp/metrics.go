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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks tool-call activity across all registered backends.
// The collectors live on a private registry so embedding applications
// control exposure.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	backends     prometheus.Gauge
}

// NewMetrics creates the tool-call collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatmux_tool_calls_total",
			Help: "Tool invocations by server, tool, and outcome.",
		}, []string{"server", "tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatmux_tool_call_duration_seconds",
			Help:    "Tool invocation latency by server and tool.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "tool"}),
		backends: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmux_backends_connected",
			Help: "Number of registered backends.",
		}),
	}

	registry.MustRegister(m.toolCalls, m.toolDuration, m.backends)
	return m
}

// Registry returns the private registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observeCall records one tool invocation.
func (m *Metrics) observeCall(server, tool string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(server, tool, outcome).Inc()
	m.toolDuration.WithLabelValues(server, tool).Observe(duration.Seconds())
}

// setBackendCount records the registered backend count.
func (m *Metrics) setBackendCount(n int) {
	m.backends.Set(float64(n))
}
