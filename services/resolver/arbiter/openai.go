// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// OpenAI-Compatible Wire Types
// =============================================================================

const defaultCompletionBaseURL = "https://api.openai.com/v1/chat/completions"

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         *float32      `json:"temperature,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// CompletionClient
// =============================================================================

// CompletionClient is the external text-completion collaborator.
type CompletionClient interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// OpenAIClient implements CompletionClient against any OpenAI-compatible
// chat completions endpoint using raw net/http.
//
// Description:
//
//	No third-party SDK; the wire format is small enough that a typed
//	request/response pair is clearer. Works against OpenAI itself or any
//	local server exposing the same API (Ollama, vLLM, LM Studio).
//
// Thread Safety: Safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *slog.Logger
}

// NewOpenAIClient creates a completion client.
//
// Description:
//
//	Empty inputs fall back to the environment: COMPLETION_SERVICE_URL,
//	OPENAI_API_KEY and OPENAI_MODEL. The API key may be empty for local
//	endpoints that do not authenticate.
//
// Inputs:
//
//	baseURL - Chat completions endpoint. "" uses the env or the OpenAI default.
//	apiKey - Bearer token. May be empty.
//	model - Model name. "" uses the env, defaulting to "gpt-4o-mini".
//	logger - Logger. May be nil.
func NewOpenAIClient(baseURL, apiKey, model string, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = os.Getenv("COMPLETION_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = defaultCompletionBaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// Complete implements CompletionClient.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	payload := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:         &temperature,
		MaxCompletionTokens: &maxTokens,
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("completion: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("completion: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion: HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("completion: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion: API returned status %d", resp.StatusCode)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("completion: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("completion: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("completion: returned no choices")
	}

	return apiResp.Choices[0].Message.Content, nil
}
