package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 1024
)

// DelegateConfig describes the external query-generation endpoint.
type DelegateConfig struct {
	Provider  string
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int64
}

// Enabled reports whether both an endpoint and a credential are configured.
func (cfg DelegateConfig) Enabled() bool {
	return cfg.Endpoint != "" && cfg.APIKey != ""
}

// NewCompleter builds the delegate for cfg. It returns nil without error when the delegate is not
// configured.
func NewCompleter(log *slog.Logger, cfg DelegateConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		return NewOpenAICompleter(log, cfg), nil
	case ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = defaultAnthropicModel
		}
		return NewAnthropicCompleter(log, cfg), nil
	}
	return nil, fmt.Errorf("unknown delegate provider %q", cfg.Provider)
}

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	log       *slog.Logger
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAICompleter(log *slog.Logger, cfg DelegateConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAICompleter{
		log:       log,
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: int(cfg.MaxTokens),
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	duration := time.Since(start)
	if err != nil {
		c.log.Error("synth: openai completion failed", "duration", duration, "error", err)
		return "", fmt.Errorf("openai API error: %w", err)
	}
	c.log.Debug("synth: openai completion done", "duration", duration, "model", c.model)

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicCompleter uses the Anthropic Messages API.
type AnthropicCompleter struct {
	log       *slog.Logger
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicCompleter(log *slog.Logger, cfg DelegateConfig) *AnthropicCompleter {
	return &AnthropicCompleter{
		log: log,
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.Endpoint),
		),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	duration := time.Since(start)
	if err != nil {
		c.log.Error("synth: anthropic completion failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	c.log.Debug("synth: anthropic completion done", "duration", duration, "stop_reason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}
