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

// Package history implements the session listing command.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/chatmux/internal/commands/shared"
	"github.com/tombee/chatmux/internal/config"
	"github.com/tombee/chatmux/internal/history"
)

// NewCommand creates the history command.
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List saved chat sessions",
		Long: `List saved chat sessions, most recent first. With a session id,
print that session's transcript.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showSession(cmd, store, args[0])
			}
			return listSessions(cmd, store, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func openStore() (*history.Store, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.New(history.Config{Path: path})
}

func listSessions(cmd *cobra.Command, store *history.Store, limit int) error {
	sessions, err := store.Sessions(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal sessions: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, shared.Muted.Render("no saved sessions"))
		return nil
	}
	for _, session := range sessions {
		fmt.Fprintf(out, "%s  %s  %s  %d turns\n",
			session.StartedAt.Format("2006-01-02 15:04"),
			session.ID,
			shared.Muted.Render(session.Model),
			session.Turns)
	}
	return nil
}

func showSession(cmd *cobra.Command, store *history.Store, sessionID string) error {
	turns, err := store.Turns(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("session %s not found or empty", sessionID)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		data, err := json.MarshalIndent(turns, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal turns: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, turn := range turns {
		fmt.Fprintf(out, "%s %s\n", shared.Header.Render(turn.Role+":"), turn.Content)
	}
	return nil
}
