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

// Package chat implements the interactive chat REPL.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/chatmux/internal/commands/shared"
	"github.com/tombee/chatmux/internal/config"
	"github.com/tombee/chatmux/internal/history"
	"github.com/tombee/chatmux/internal/log"
	"github.com/tombee/chatmux/internal/mcp"
	"github.com/tombee/chatmux/internal/orchestrator"
	"github.com/tombee/chatmux/pkg/llm/providers"
)

// NewCommand creates the chat command.
func NewCommand() *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start a chat session against the configured backends. Every
backend's tools are offered to the model; calls are routed to whichever
backend owns the tool. Type /tools to list the catalog, /quit to leave.

The session transcript is saved to the history database unless
--no-history is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, noHistory)
		},
	}

	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not persist this session")
	return cmd
}

func runChat(cmd *cobra.Command, noHistory bool) error {
	logger := newLogger()

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	provider, err := providers.NewAnthropicProvider(apiKey)
	if err != nil {
		return err
	}
	logger.Debug("provider ready",
		slog.String(log.ProviderKey, provider.Name()),
		slog.String("api_key", log.SanitizeAPIKey(apiKey)))

	// Ctrl-C cancels the in-flight turn and ends the session.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ring := orchestrator.NewRing(256)
	metrics := mcp.NewMetrics()
	router := mcp.NewRouter(mcp.RouterConfig{Logger: logger, Observer: ring, Metrics: metrics})
	defer router.Close()

	result := mcp.LoadBackends(ctx, router, cfg.BackendSpecs(), logger, ring)
	for name, lerr := range result.Failed {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(fmt.Sprintf("backend %s unavailable: %v", name, lerr)))
	}
	if len(result.Connected) == 0 {
		return fmt.Errorf("no backends available")
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf(
		"connected to %s (%d tools)", strings.Join(result.Connected, ", "), len(router.Catalog()))))

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:      provider,
		Router:        router,
		Model:         cfg.Settings.Model,
		MaxTokens:     cfg.Settings.MaxTokens,
		HistoryWindow: cfg.Settings.HistoryWindow,
		SystemPrompt:  cfg.Settings.SystemPrompt,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var store *history.Store
	var sessionID string
	if !noHistory {
		store, sessionID, err = openSession(ctx, cfg.Settings.Model, logger)
		if err != nil {
			// History is a convenience, not a requirement.
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(fmt.Sprintf("history disabled: %v", err)))
		} else {
			defer store.Close()
		}
	}

	return repl(ctx, cmd, orch, router, store, sessionID)
}

// repl reads user turns until EOF, /quit, or cancellation.
func repl(ctx context.Context, cmd *cobra.Command, orch *orchestrator.Orchestrator, router *mcp.Router, store *history.Store, sessionID string) error {
	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if interactive {
			fmt.Fprint(out, shared.Prompt.Render("you> "))
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit", input == "/exit":
			return scanner.Err()
		case input == "/tools":
			printCatalog(out, router)
			continue
		}

		reply, err := orch.Send(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderError(err.Error()))
			continue
		}

		if interactive {
			fmt.Fprintln(out, shared.Assistant.Render(reply))
		} else {
			fmt.Fprintln(out, reply)
		}

		saveTurns(ctx, store, sessionID, input, reply)
	}
	return scanner.Err()
}

// printCatalog lists the aggregated tools by server.
func printCatalog(out io.Writer, router *mcp.Router) {
	for _, server := range router.Servers() {
		fmt.Fprintln(out, shared.Header.Render(server))
		for _, tool := range router.Catalog() {
			if tool.Server != server {
				continue
			}
			if tool.Description != "" {
				fmt.Fprintf(out, "  %s %s\n", tool.Name, shared.Muted.Render("— "+tool.Description))
			} else {
				fmt.Fprintf(out, "  %s\n", tool.Name)
			}
		}
	}
}

// openSession opens the history store and begins a session.
func openSession(ctx context.Context, model string, logger *slog.Logger) (*history.Store, string, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, "", err
	}
	store, err := history.New(history.Config{Path: path})
	if err != nil {
		return nil, "", err
	}
	sessionID, err := store.BeginSession(ctx, model)
	if err != nil {
		store.Close()
		return nil, "", err
	}
	logger.Debug("history session started", slog.String(log.SessionKey, sessionID))
	return store, sessionID, nil
}

// saveTurns persists one exchange, best-effort.
func saveTurns(ctx context.Context, store *history.Store, sessionID, user, assistant string) {
	if store == nil {
		return
	}
	_ = store.AppendTurn(ctx, sessionID, "user", user)
	_ = store.AppendTurn(ctx, sessionID, "assistant", assistant)
}

// newLogger builds the session logger from the environment, raised to
// debug with --verbose.
func newLogger() *slog.Logger {
	cfg := log.FromEnv()
	if shared.GetVerbose() {
		cfg.Level = "debug"
	}
	return log.New(cfg)
}
