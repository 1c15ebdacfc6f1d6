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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete_SendsBudgetAndParsesContent(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "2"}}},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(srv.URL, "test-key", "test-model", nil)
	text, err := client.Complete(context.Background(), "choisis", 8, 0)

	require.NoError(t, err)
	assert.Equal(t, "2", text)
	assert.Equal(t, "test-model", captured.Model)
	require.NotNil(t, captured.MaxCompletionTokens)
	assert.Equal(t, 8, *captured.MaxCompletionTokens)
	require.NotNil(t, captured.Temperature)
	assert.Zero(t, *captured.Temperature)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestOpenAIComplete_NoAuthHeaderWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(srv.URL, "", "local-model", nil)
	_, err := client.Complete(context.Background(), "prompt", 8, 0)
	assert.NoError(t, err)
}

func TestOpenAIComplete_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Error: &chatError{Type: "invalid_request_error", Message: "bad model"},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(srv.URL, "k", "m", nil)
	_, err := client.Complete(context.Background(), "prompt", 8, 0)
	assert.Error(t, err)
}

func TestOpenAIComplete_EmptyChoicesIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(srv.URL, "k", "m", nil)
	_, err := client.Complete(context.Background(), "prompt", 8, 0)
	assert.Error(t, err)
}
