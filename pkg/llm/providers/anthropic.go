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

// Package providers contains concrete implementations of LLM providers.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/chatmux/pkg/httpclient"
	"github.com/tombee/chatmux/pkg/llm"
)

const (
	// anthropicAPIBaseURL is the base URL for the Anthropic API
	anthropicAPIBaseURL = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the API version to use
	anthropicAPIVersion = "2023-06-01"

	// anthropicDefaultMaxTokens bounds responses when the caller does
	// not specify a limit.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicProvider implements the Provider interface for Anthropic's
// Claude models via the Messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption customizes provider construction.
type AnthropicOption func(*AnthropicProvider)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.httpClient = client }
}

// NewAnthropicProvider creates a new Anthropic provider instance.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, &llm.ValidationError{
			Field:   "api_key",
			Message: "API key is required for the Anthropic provider",
		}
	}

	p := &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicAPIBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = 120 * time.Second // LLM requests can take a while
		cfg.UserAgent = "chatmux-anthropic/1.0"
		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		p.httpClient = client
	}

	return p, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a synchronous completion request to the Anthropic
// Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

	if len(req.Messages) == 0 {
		return nil, &llm.ValidationError{
			Field:   "messages",
			Message: "completion request must have at least one message",
		}
	}
	if req.Model == "" {
		return nil, &llm.ValidationError{
			Field:   "model",
			Message: "completion request must name a model",
		}
	}

	apiReq := p.buildAPIRequest(req)

	resp, err := p.doRequest(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}

	return p.parseResponse(resp, requestID), nil
}

// buildAPIRequest constructs an anthropicRequest from a CompletionRequest.
func (p *AnthropicProvider) buildAPIRequest(req llm.CompletionRequest) *anthropicRequest {
	// Anthropic uses a separate system field rather than a system role.
	var systemPrompt string
	var apiMessages []anthropicMessage

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content

		case llm.MessageRoleUser:
			apiMessages = append(apiMessages, anthropicMessage{
				Role:    "user",
				Content: []any{anthropicTextContent{Type: "text", Text: msg.Content}},
			})

		case llm.MessageRoleAssistant:
			var content []any
			if msg.Content != "" {
				content = append(content, anthropicTextContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(content) > 0 {
				apiMessages = append(apiMessages, anthropicMessage{
					Role:    "assistant",
					Content: content,
				})
			}

		case llm.MessageRoleTool:
			// Tool results travel back as user messages carrying a
			// tool_result block.
			apiMessages = append(apiMessages, anthropicMessage{
				Role: "user",
				Content: []any{anthropicToolResultContent{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		}
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	var tools []anthropicTool
	for _, t := range req.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tools = append(tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	return &anthropicRequest{
		Model:       req.Model,
		Messages:    apiMessages,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Temperature: req.Temperature,
		Tools:       tools,
	}
}

// doRequest sends the API request and returns the decoded response.
func (p *AnthropicProvider) doRequest(ctx context.Context, apiReq *anthropicRequest, requestID string) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &llm.ProviderError{
				Provider:   "anthropic",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: suggestionForStatus(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &llm.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &llm.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	return &apiResp, nil
}

// suggestionForStatus returns actionable guidance for common failures.
func suggestionForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that your API key is valid and correctly configured"
	case http.StatusForbidden:
		return "Your API key may not have access to this model"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Retry after a short delay"
	case http.StatusBadRequest:
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Anthropic API is experiencing issues. Retry after a short delay"
	default:
		return ""
	}
}

// parseResponse converts an anthropicResponse to a CompletionResponse.
func (p *AnthropicProvider) parseResponse(resp *anthropicResponse, requestID string) *llm.CompletionResponse {
	var textContent strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range resp.Content {
		blockType, _ := block["type"].(string)
		switch blockType {
		case "text":
			if text, ok := block["text"].(string); ok {
				if textContent.Len() > 0 {
					textContent.WriteString("\n")
				}
				textContent.WriteString(text)
			}
		case "tool_use":
			id, _ := block["id"].(string)
			name, _ := block["name"].(string)
			inputJSON, err := json.Marshal(block["input"])
			if err != nil {
				inputJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        id,
				Name:      name,
				Arguments: string(inputJSON),
			})
		}
	}

	return &llm.CompletionResponse{
		Content:      textContent.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapStopReason(resp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Model:     resp.Model,
		RequestID: requestID,
		Created:   time.Now(),
	}
}

// mapStopReason converts Anthropic's stop_reason to a FinishReason.
func mapStopReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "content_filtered":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// anthropicRequest is the Messages API request body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

// anthropicMessage is one conversation turn; content is a block list.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

// anthropicTextContent is a text content block.
type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicToolResultContent carries a tool execution result back to
// the model.
type anthropicToolResultContent struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// anthropicTool is a tool definition in Anthropic's schema.
type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// anthropicResponse is the Messages API response body.
type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []map[string]any `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

// anthropicUsage is the token accounting section of a response.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicErrorResponse is the error envelope for non-200 responses.
type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
