package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbook-refiner/internal/completion"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	opts.APIKey = "test-key"
	opts.HTTPClient = srv.Client()
	return New(opts)
}

func TestCompleteSendsGenerateContent(t *testing.T) {
	var got generateContentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[
			{"text":"planning...","thought":true},
			{"text":"A friendly dragon "},
			{"text":"reading a book."}
		]}}]}`)
	}, Options{Model: "gemini-test"})

	resp, err := client.Complete(context.Background(), completion.Request{
		SystemInstruction: "be brief",
		UserMessage:       "Subject: dragon",
	})
	require.NoError(t, err)

	assert.Equal(t, "A friendly dragon reading a book.", resp.Text)
	assert.Equal(t, "gemini-test", resp.Model)
	assert.False(t, resp.Cached)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "Subject: dragon", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, 0.7, got.GenerationConfig.Temperature, 1e-9)
	assert.Nil(t, got.GenerationConfig.ThinkingConfig)
}

func TestCompleteRetriesWithoutThinkingConfig(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if calls.Add(1) == 1 {
			assert.Contains(t, string(body), "thinkingConfig")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid JSON payload received. Unknown name \"thinkingConfig\""}}`)
			return
		}
		assert.NotContains(t, string(body), "thinkingConfig")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"a castle"}]}}]}`)
	}, Options{ThinkingBudget: 1024})

	resp, err := client.Complete(context.Background(), completion.Request{UserMessage: "castle"})
	require.NoError(t, err)
	assert.Equal(t, "a castle", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		isEmpty bool
	}{
		{name: "api error", status: http.StatusForbidden, body: `{"error":"denied"}`, wantErr: "gemini API 403"},
		{name: "bad json", status: http.StatusOK, body: `{`, wantErr: "decode response"},
		{name: "blocked", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, wantErr: "SAFETY"},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, isEmpty: true},
		{name: "blank text", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, isEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, Options{})

			_, err := client.Complete(context.Background(), completion.Request{UserMessage: "x"})
			require.Error(t, err)
			if tt.isEmpty {
				assert.ErrorIs(t, err, completion.ErrEmptyResponse)
				return
			}
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompleteHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, completion.Request{UserMessage: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context canceled"), err.Error())
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{BaseURL: "https://example.test/", APIVersion: " "})
	assert.Equal(t, "https://example.test", c.baseURL)
	assert.Equal(t, "v1beta", c.apiVersion)
	assert.Equal(t, defaultModel, c.Model())

	_, err := c.Complete(context.Background(), completion.Request{UserMessage: "x"})
	assert.EqualError(t, err, "http client is nil")
}
