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
	"fmt"
	"strings"
)

// Normalize maps an arbitrary backend response value to a display
// string. The policy order is a compatibility shim across the response
// shapes of the supported backends and must not be reordered:
//
//  1. a value carrying a "content" list of blocks: each block's text
//     field, else the whole block serialized to JSON, joined by newlines
//  2. a value carrying a "data" field: that field serialized to JSON
//  3. raw bytes: decoded as UTF-8, undecodable bytes replaced
//  4. a string: returned as-is
//  5. anything else: serialized to JSON, falling back to fmt
//
// Normalize is a pure function and is idempotent on plain strings.
func Normalize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return strings.ToValidUTF8(string(val), "�")
	case map[string]any:
		if content, ok := val["content"].([]any); ok {
			return normalizeContent(content)
		}
		if data, ok := val["data"]; ok {
			return toJSON(data)
		}
		return toJSON(val)
	default:
		return toJSON(val)
	}
}

// NormalizeRaw decodes a raw JSON result and normalizes it. Bodies that
// fail to decode are passed through as text rather than dropped.
func NormalizeRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return Normalize(v)
}

// normalizeContent flattens a content-block list to text. Blocks with a
// text field contribute it directly; anything else is serialized whole.
func normalizeContent(blocks []any) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		m, ok := block.(map[string]any)
		if !ok {
			parts = append(parts, fmt.Sprintf("%v", block))
			continue
		}
		if text, ok := m["text"].(string); ok {
			parts = append(parts, text)
			continue
		}
		parts = append(parts, toJSON(m))
	}
	return strings.Join(parts, "\n")
}

// toJSON serializes a value, falling back to fmt when the value cannot
// be marshaled.
func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
