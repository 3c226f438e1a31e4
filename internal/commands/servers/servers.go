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

// Package servers implements the backend status command.
package servers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/chatmux/internal/commands/shared"
	"github.com/tombee/chatmux/internal/log"
	"github.com/tombee/chatmux/internal/mcp"
)

// serverStatus is one backend's probe result.
type serverStatus struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Connected bool     `json:"connected"`
	Error     string   `json:"error,omitempty"`
	Tools     []string `json:"tools,omitempty"`
}

// NewCommand creates the servers command.
func NewCommand() *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Probe configured backends",
		Long: `Connect to every configured backend, list the tools each one
advertises, and report the ones that fail. Useful for checking a new
servers.yaml before starting a chat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServers(cmd, showMetrics)
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print collected metrics after probing")
	return cmd
}

func runServers(cmd *cobra.Command, showMetrics bool) error {
	logCfg := log.FromEnv()
	if !shared.GetVerbose() {
		// Probe output should be the report, not connection logs.
		logCfg.Level = "error"
	}
	logger := log.New(logCfg)

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	metrics := mcp.NewMetrics()
	router := mcp.NewRouter(mcp.RouterConfig{Logger: logger, Metrics: metrics})
	defer router.Close()

	specs := cfg.BackendSpecs()
	result := mcp.LoadBackends(cmd.Context(), router, specs, logger, nil)

	statuses := make([]serverStatus, 0, len(specs))
	for _, spec := range specs {
		status := serverStatus{Name: spec.Name, Type: spec.Kind}
		if loadErr, failed := result.Failed[spec.Name]; failed {
			status.Error = loadErr.Error()
		} else {
			status.Connected = true
			for _, tool := range router.Catalog() {
				if tool.Server == spec.Name {
					status.Tools = append(status.Tools, tool.Name)
				}
			}
		}
		statuses = append(statuses, status)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statuses: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, status := range statuses {
		if status.Connected {
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s (%s): %d tools", status.Name, status.Type, len(status.Tools))))
			for _, tool := range status.Tools {
				fmt.Fprintf(out, "    %s\n", shared.Muted.Render(tool))
			}
		} else {
			fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("%s (%s): %s", status.Name, status.Type, status.Error)))
		}
	}

	if showMetrics {
		printMetrics(out, metrics, logger)
	}

	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d backends unavailable", len(result.Failed), len(specs))
	}
	return nil
}

// printMetrics dumps the probe's metric families.
func printMetrics(out io.Writer, metrics *mcp.Metrics, logger *slog.Logger) {
	families, err := metrics.Registry().Gather()
	if err != nil {
		logger.Warn("failed to gather metrics", slog.String("error", err.Error()))
		return
	}

	fmt.Fprintln(out, shared.Header.Render("metrics"))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var value float64
			switch {
			case metric.GetGauge() != nil:
				value = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				value = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				value = float64(metric.GetHistogram().GetSampleCount())
			}

			labels := ""
			for _, pair := range metric.GetLabel() {
				if labels != "" {
					labels += ","
				}
				labels += pair.GetName() + "=" + pair.GetValue()
			}
			if labels != "" {
				labels = "{" + labels + "}"
			}
			fmt.Fprintf(out, "  %s%s %g\n", family.GetName(), labels, value)
		}
	}
}
