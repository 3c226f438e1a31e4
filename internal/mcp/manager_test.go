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
	"errors"
	"testing"
	"time"
)

func TestLoadBackendsContinuesPastFailures(t *testing.T) {
	router := newTestRouter(t)
	rec := &recordingObserver{}

	specs := []BackendSpec{
		{
			Name:    "good",
			Kind:    KindProcess,
			Command: "/bin/sh",
			Args:    []string{"-c", scriptedServer},
			Timeout: 5 * time.Second,
		},
		{
			Name:    "dead",
			Kind:    KindProcess,
			Command: "/bin/sh",
			Args:    []string{"-c", `echo "bad config" >&2; exit 1`},
		},
		{
			Name: "misconfigured",
			Kind: "carrier-pigeon",
		},
	}

	result := LoadBackends(context.Background(), router, specs, discardLogger(), rec)
	defer router.Close()

	if len(result.Connected) != 1 || result.Connected[0] != "good" {
		t.Fatalf("Connected = %v, want [good]", result.Connected)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("Failed = %v, want entries for dead and misconfigured", result.Failed)
	}

	var died *ProcessDiedError
	if !errors.As(result.Failed["dead"], &died) {
		t.Errorf("Failed[dead] = %v, want *ProcessDiedError", result.Failed["dead"])
	}
	if result.Failed["misconfigured"] == nil {
		t.Errorf("Failed[misconfigured] = nil, want unknown-kind error")
	}

	// The surviving backend is dispatchable.
	got, err := router.Dispatch(context.Background(), "good", "echo", nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("Dispatch result = %q, want %q", got, "hello")
	}

	// Every attempt, successful or not, is observed as a connection
	// event.
	events := rec.snapshot()
	if len(events) != 3 {
		t.Fatalf("observer saw %d events, want 3", len(events))
	}
	var ok, failed int
	for _, e := range events {
		if e.Kind != InteractionConnection {
			t.Errorf("event kind = %q, want %q", e.Kind, InteractionConnection)
		}
		if e.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	if ok != 1 || failed != 2 {
		t.Errorf("observed %d successes and %d failures, want 1 and 2", ok, failed)
	}
}
