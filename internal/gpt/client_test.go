package gpt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbook-refiner/internal/completion"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		APIKey:     "sk-test",
		Model:      "gpt-test",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	})
}

func TestCompleteSendsChatCompletion(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test-2025",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "A sleepy kitten curled in a basket."}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18}
		}`)
	})

	resp, err := client.Complete(context.Background(), completion.Request{
		SystemInstruction: "describe line art",
		UserMessage:       "Subject: kitten",
	})
	require.NoError(t, err)
	assert.Equal(t, "A sleepy kitten curled in a basket.", resp.Text)
	assert.Equal(t, "gpt-test-2025", resp.Model)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "describe line art", got.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, "Subject: kitten", got.Messages[1].Content)
	assert.Equal(t, 300, got.MaxTokens)
}

func TestCompleteEmptyChoices(t *testing.T) {
	for name, body := range map[string]string{
		"no choices":    `{"choices": []}`,
		"blank content": `{"choices": [{"message": {"role": "assistant", "content": "  "}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			})

			_, err := client.Complete(context.Background(), completion.Request{UserMessage: "x"})
			assert.ErrorIs(t, err, completion.ErrEmptyResponse)
		})
	}
}

func TestCompleteAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	})

	_, err := client.Complete(context.Background(), completion.Request{UserMessage: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api error")

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{APIKey: "k"})
	assert.Equal(t, openai.GPT4oMini, c.Model())
}
