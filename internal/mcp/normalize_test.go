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
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{
			name:  "nil",
			input: nil,
			want:  "",
		},
		{
			name:  "string passes through",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "content blocks joined by newline",
			input: map[string]any{"content": []any{map[string]any{"type": "text", "text": "a"}, map[string]any{"type": "text", "text": "b"}}},
			want:  "a\nb",
		},
		{
			name:  "content block without text serialized whole",
			input: map[string]any{"content": []any{map[string]any{"type": "image", "url": "x"}}},
			want:  `{"type":"image","url":"x"}`,
		},
		{
			name:  "content wins over data",
			input: map[string]any{"content": []any{map[string]any{"text": "block"}}, "data": "ignored"},
			want:  "block",
		},
		{
			name:  "data field serialized",
			input: map[string]any{"data": map[string]any{"temp": 21.5}},
			want:  `{"temp":21.5}`,
		},
		{
			name:  "bytes with invalid utf8 replaced",
			input: []byte{'o', 'k', 0xff, '!'},
			want:  "ok�!",
		},
		{
			name:  "plain map serialized",
			input: map[string]any{"a": float64(1)},
			want:  `{"a":1}`,
		},
		{
			name:  "number serialized",
			input: float64(42),
			want:  "42",
		},
		{
			name:  "slice serialized",
			input: []any{"x", float64(1)},
			want:  `["x",1]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotentOnStrings(t *testing.T) {
	inputs := []string{"plain", "", "a\nb", `{"looks":"like json"}`, "unicode: héllo"}
	for _, s := range inputs {
		once := Normalize(s)
		twice := Normalize(once)
		if once != s || twice != once {
			t.Errorf("Normalize not idempotent on %q: first %q, second %q", s, once, twice)
		}
	}
}

func TestNormalizeRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "empty",
			raw:  "",
			want: "",
		},
		{
			name: "json string unwrapped",
			raw:  `"hello"`,
			want: "hello",
		},
		{
			name: "content result",
			raw:  `{"content":[{"type":"text","text":"sunny"}]}`,
			want: "sunny",
		},
		{
			name: "undecodable body passed through as text",
			raw:  "not json at all",
			want: "not json at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRaw(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("NormalizeRaw(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
