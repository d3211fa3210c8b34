package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"colorbook-refiner/internal/completion"
)

const defaultModel = "gemini-2.5-flash"

type Options struct {
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	Temperature float64
	// ThinkingBudget is sent as generationConfig.thinkingConfig when > 0.
	ThinkingBudget int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client calls the generateContent endpoint directly and implements
// completion.Completer.
type Client struct {
	apiKey         string
	baseURL        string
	apiVersion     string
	model          string
	temperature    float64
	thinkingBudget int
	httpClient     *http.Client
	logger         *zap.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:         opts.APIKey,
		baseURL:        baseURL,
		apiVersion:     apiVersion,
		model:          model,
		temperature:    temperature,
		thinkingBudget: opts.ThinkingBudget,
		httpClient:     opts.HTTPClient,
		logger:         logger,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	cfg := generationConfig{Temperature: c.temperature}
	if c.thinkingBudget > 0 {
		cfg.ThinkingConfig = &thinkingConfig{ThinkingBudget: c.thinkingBudget}
	}

	payload := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: strings.TrimSpace(req.UserMessage)}}},
		},
		GenerationConfig: cfg,
	}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		payload.SystemInstruction = &content{Role: "user", Parts: []part{{Text: system}}}
	}

	text, err := c.generateContent(ctx, payload)
	if err != nil && cfg.ThinkingConfig != nil && isUnknownFieldError(err, "thinkingConfig") {
		c.logger.Debug("model rejected thinkingConfig, retrying without it", zap.String("model", c.model))
		payload.GenerationConfig.ThinkingConfig = nil
		text, err = c.generateContent(ctx, payload)
	}
	if err != nil {
		return completion.Response{}, err
	}
	if strings.TrimSpace(text) == "" {
		return completion.Response{}, completion.ErrEmptyResponse
	}

	return completion.Response{Text: text, Model: c.model}, nil
}

func (c *Client) generateContent(ctx context.Context, payload generateContentRequest) (string, error) {
	if c.httpClient == nil {
		return "", errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", decoded.PromptFeedback.BlockReason)
	}

	return extractText(decoded), nil
}

func extractText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
