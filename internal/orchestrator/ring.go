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

package orchestrator

import (
	"sync"

	"github.com/tombee/chatmux/internal/mcp"
)

// Ring is a bounded in-memory record of backend interactions. It is the
// session's observer: transports and the router report into it through
// explicit wiring at construction, and the CLI reads it back out.
type Ring struct {
	mu    sync.Mutex
	buf   []mcp.Interaction
	next  int
	count int
}

// NewRing creates a ring retaining the last capacity interactions.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 128
	}
	return &Ring{buf: make([]mcp.Interaction, capacity)}
}

// Observe implements mcp.Observer.
func (r *Ring) Observe(i mcp.Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = i
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Recent returns the retained interactions, oldest first.
func (r *Ring) Recent() []mcp.Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]mcp.Interaction, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Len returns how many interactions are retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
