package backend

import (
	"context"
	"strings"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/session"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent represents one content block of a reply
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Content      []AnthropicContent `json:"content"`
	Model        string             `json:"model"`
	StopReason   string             `json:"stop_reason"`
	StopSequence string             `json:"stop_sequence"`
	Usage        map[string]any     `json:"usage"`
}

// Anthropic talks to the Messages API
type Anthropic struct {
	transport
	url       string
	model     string
	maxTokens int
	apiKey    string
}

// NewAnthropic creates a backend for api.anthropic.com or cfg.BaseURL
func NewAnthropic(cfg config.Config, opts Options) *Anthropic {
	opts = opts.withDefaults(cfg)
	url := anthropicURL
	if cfg.BaseURL != "" {
		url = strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"
	}
	return &Anthropic{
		transport: newTransport(config.BackendAnthropic, opts),
		url:       url,
		model:     cfg.ModelName(),
		maxTokens: cfg.MaxTokens,
		apiKey:    cfg.APIKey,
	}
}

// Complete sends the conversation and returns the text of the reply.
// System turns go in the top-level system field, which is where the API expects them.
func (b *Anthropic) Complete(ctx context.Context, turns []session.Turn) (session.Turn, error) {
	ctx, span := b.startSpan(ctx, b.model, len(turns))
	defer span.End()

	reqBody := AnthropicRequest{
		Model:     b.model,
		MaxTokens: b.maxTokens,
	}
	var system []string
	for _, turn := range turns {
		if turn.Role == session.RoleSystem {
			system = append(system, turn.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, AnthropicMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	reqBody.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var apiResp AnthropicResponse
	if err := b.postJSON(ctx, b.url, headers, reqBody, &apiResp); err != nil {
		return session.Turn{}, b.fail(span, err)
	}

	b.recordUsage(ctx, apiResp.Usage)

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			turn, err := b.replyTurn(apiResp.Role, content.Text)
			if err != nil {
				return session.Turn{}, b.fail(span, err)
			}
			return turn, nil
		}
	}
	return session.Turn{}, b.fail(span, b.malformed("empty response from Anthropic"))
}
