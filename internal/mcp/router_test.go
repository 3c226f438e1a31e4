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
	"fmt"
	"sync"
	"testing"
)

// fakeClient is a scripted in-memory Client used by router and
// orchestrator tests.
type fakeClient struct {
	name  string
	tools []ToolDescriptor

	mu        sync.Mutex
	calls     []string
	result    string
	err       error
	closed    int
	closeErr  error
	callCount int
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Initialize(context.Context) ([]ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeClient) CallTool(_ context.Context, tool string, args map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tool)
	f.callCount++
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(RouterConfig{Logger: discardLogger()})
}

func TestRouterRegisterDuplicate(t *testing.T) {
	router := newTestRouter(t)

	first := &fakeClient{name: "weather", result: "from first"}
	if err := router.Register("weather", first, nil, 0); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	second := &fakeClient{name: "weather", result: "from second"}
	err := router.Register("weather", second, nil, 0)

	var dup *DuplicateServerError
	if !errors.As(err, &dup) {
		t.Fatalf("second Register error = %v, want *DuplicateServerError", err)
	}
	if dup.Server != "weather" {
		t.Errorf("DuplicateServerError.Server = %q, want %q", dup.Server, "weather")
	}

	// The first registration must stay active.
	got, err := router.Dispatch(context.Background(), "weather", "forecast", nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got != "from first" {
		t.Errorf("Dispatch result = %q, want %q", got, "from first")
	}
	if second.callCount != 0 {
		t.Errorf("rejected client received %d calls, want 0", second.callCount)
	}
}

func TestRouterDispatchUnknownServer(t *testing.T) {
	router := newTestRouter(t)
	client := &fakeClient{name: "weather"}
	if err := router.Register("weather", client, nil, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := router.Dispatch(context.Background(), "nope", "forecast", nil)

	var unknown *UnknownServerError
	if !errors.As(err, &unknown) {
		t.Fatalf("Dispatch error = %v, want *UnknownServerError", err)
	}
	if unknown.Server != "nope" {
		t.Errorf("UnknownServerError.Server = %q, want %q", unknown.Server, "nope")
	}
	if client.callCount != 0 {
		t.Errorf("registered client received %d calls for unknown server, want 0", client.callCount)
	}
}

func TestRouterDispatchWrapsBackendError(t *testing.T) {
	router := newTestRouter(t)
	cause := fmt.Errorf("backend exploded")
	client := &fakeClient{name: "files", err: cause}
	if err := router.Register("files", client, nil, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := router.Dispatch(context.Background(), "files", "read", map[string]any{"path": "/tmp/x"})

	var callErr *ToolCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("Dispatch error = %v, want *ToolCallError", err)
	}
	if callErr.Server != "files" || callErr.Tool != "read" {
		t.Errorf("ToolCallError context = (%q, %q), want (files, read)", callErr.Server, callErr.Tool)
	}
	if !errors.Is(err, cause) {
		t.Errorf("ToolCallError does not unwrap to the backend error")
	}
}

func TestRouterCatalogOrder(t *testing.T) {
	router := newTestRouter(t)

	err := router.Register("weather", &fakeClient{name: "weather"}, []ToolDescriptor{
		{Name: "forecast"},
		{Name: "alerts"},
	}, 0)
	if err != nil {
		t.Fatalf("Register weather: %v", err)
	}
	err = router.Register("files", &fakeClient{name: "files"}, []ToolDescriptor{
		{Name: "read"},
	}, 0)
	if err != nil {
		t.Fatalf("Register files: %v", err)
	}

	catalog := router.Catalog()
	wantOwners := []struct{ server, tool string }{
		{"weather", "forecast"},
		{"weather", "alerts"},
		{"files", "read"},
	}
	if len(catalog) != len(wantOwners) {
		t.Fatalf("Catalog length = %d, want %d", len(catalog), len(wantOwners))
	}
	for i, want := range wantOwners {
		if catalog[i].Server != want.server || catalog[i].Name != want.tool {
			t.Errorf("catalog[%d] = (%q, %q), want (%q, %q)",
				i, catalog[i].Server, catalog[i].Name, want.server, want.tool)
		}
	}

	if got := router.ToolCount("weather"); got != 2 {
		t.Errorf("ToolCount(weather) = %d, want 2", got)
	}
	if got := router.Servers(); len(got) != 2 || got[0] != "weather" || got[1] != "files" {
		t.Errorf("Servers() = %v, want [weather files]", got)
	}
}

func TestRouterObserverRecordsOutcomes(t *testing.T) {
	rec := &recordingObserver{}
	router := NewRouter(RouterConfig{Logger: discardLogger(), Observer: rec})

	ok := &fakeClient{name: "weather", result: "sunny"}
	bad := &fakeClient{name: "files", err: errors.New("denied")}
	if err := router.Register("weather", ok, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := router.Register("files", bad, nil, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := router.Dispatch(context.Background(), "weather", "forecast", nil); err != nil {
		t.Fatalf("Dispatch weather: %v", err)
	}
	if _, err := router.Dispatch(context.Background(), "files", "read", nil); err == nil {
		t.Fatal("Dispatch files succeeded, want error")
	}

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("observer saw %d events, want 2", len(events))
	}
	if !events[0].Succeeded() || events[0].Server != "weather" || events[0].Result != "sunny" {
		t.Errorf("first event = %+v, want successful weather call", events[0])
	}
	if events[1].Succeeded() || events[1].Server != "files" {
		t.Errorf("second event = %+v, want failed files call", events[1])
	}
}

func TestRouterCloseClosesAll(t *testing.T) {
	router := newTestRouter(t)
	a := &fakeClient{name: "a"}
	b := &fakeClient{name: "b", closeErr: errors.New("close failed")}
	c := &fakeClient{name: "c"}
	for name, client := range map[string]*fakeClient{"a": a, "b": b, "c": c} {
		if err := router.Register(name, client, nil, 0); err != nil {
			t.Fatal(err)
		}
	}

	err := router.Close()
	if err == nil {
		t.Fatal("Close() = nil, want first close error")
	}
	for _, client := range []*fakeClient{a, b, c} {
		if client.closed != 1 {
			t.Errorf("client %s closed %d times, want 1", client.name, client.closed)
		}
	}
}

// recordingObserver captures interactions for assertions.
type recordingObserver struct {
	mu     sync.Mutex
	events []Interaction
}

func (r *recordingObserver) Observe(i Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, i)
}

func (r *recordingObserver) snapshot() []Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interaction, len(r.events))
	copy(out, r.events)
	return out
}
