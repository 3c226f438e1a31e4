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

// Package history provides SQLite-backed storage for conversation
// sessions and their turns.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists conversation sessions.
type Store struct {
	db *sql.DB
}

// Config contains history storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string
}

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	ID        string
	Model     string
	StartedAt time.Time
	Turns     int
}

// Turn is one stored conversation turn.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// New opens (and if needed creates) the history database.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode keeps concurrent reads cheap; the writer is the single
	// chat session.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// BeginSession records a new session and returns its id.
func (s *Store) BeginSession(ctx context.Context, model string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, model, started_at) VALUES (?, ?, ?)`,
		id, model, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// AppendTurn stores one turn at the end of a session.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
		 FROM turns WHERE session_id = ?`,
		sessionID, role, content, time.Now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Sessions lists stored sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.model, s.started_at, COUNT(t.seq)
		 FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		 GROUP BY s.id ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var startedAt int64
		if err := rows.Scan(&info.ID, &info.Model, &startedAt, &info.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedAt)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// Turns returns every turn in a session in order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var createdAt int64
		if err := rows.Scan(&turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
