// Package gpt is the OpenAI chat-completions provider. BaseURL lets it
// talk to any OpenAI compatible endpoint.
package gpt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"colorbook-refiner/internal/completion"
)

const defaultModel = openai.GPT4oMini

type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return completion.Response{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return completion.Response{}, completion.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return completion.Response{}, completion.ErrEmptyResponse
	}

	c.logger.Debug("openai completion",
		zap.String("model", resp.Model),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return completion.Response{Text: choice.Message.Content, Model: model}, nil
}
