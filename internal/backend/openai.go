package backend

import (
	"context"
	"strings"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/session"
)

const (
	openAIURL = "https://api.openai.com/v1/chat/completions"
	grokURL   = "https://api.x.ai/v1/chat/completions"
)

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint
type OpenAI struct {
	transport
	url    string
	model  string
	apiKey string
}

// NewOpenAI creates a backend for api.openai.com or cfg.BaseURL
func NewOpenAI(cfg config.Config, opts Options) *OpenAI {
	return newOpenAICompatible(config.BackendOpenAI, openAIURL, cfg, opts)
}

// NewGrok creates a backend for the OpenAI-compatible Grok API
func NewGrok(cfg config.Config, opts Options) *OpenAI {
	return newOpenAICompatible(config.BackendGrok, grokURL, cfg, opts)
}

func newOpenAICompatible(name, defaultURL string, cfg config.Config, opts Options) *OpenAI {
	opts = opts.withDefaults(cfg)
	url := defaultURL
	if cfg.BaseURL != "" {
		url = strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions"
	}
	return &OpenAI{
		transport: newTransport(name, opts),
		url:       url,
		model:     cfg.ModelName(),
		apiKey:    cfg.APIKey,
	}
}

// Complete sends the conversation and returns the first choice
func (b *OpenAI) Complete(ctx context.Context, turns []session.Turn) (session.Turn, error) {
	ctx, span := b.startSpan(ctx, b.model, len(turns))
	defer span.End()

	reqBody := OpenAIRequest{
		Model:    b.model,
		Messages: wireMessages(turns),
	}
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}

	var apiResp OpenAIResponse
	if err := b.postJSON(ctx, b.url, headers, reqBody, &apiResp); err != nil {
		return session.Turn{}, b.fail(span, err)
	}

	b.recordUsage(ctx, apiResp.Usage)

	if len(apiResp.Choices) == 0 {
		return session.Turn{}, b.fail(span, b.malformed("empty response from %s", b.name))
	}
	msg := apiResp.Choices[0].Message
	turn, err := b.replyTurn(msg.Role, msg.Content)
	if err != nil {
		return session.Turn{}, b.fail(span, err)
	}
	return turn, nil
}
