package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/session"
)

const ollamaURL = "http://localhost:11434"

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama talks to a local Ollama server
type Ollama struct {
	transport
	baseURL string
	model   string
}

// NewOllama creates a backend for localhost:11434 or cfg.BaseURL
func NewOllama(cfg config.Config, opts Options) *Ollama {
	opts = opts.withDefaults(cfg)
	baseURL := ollamaURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Ollama{
		transport: newTransport(config.BackendOllama, opts),
		baseURL:   baseURL,
		model:     cfg.ModelName(),
	}
}

// Complete sends the conversation with streaming disabled
func (b *Ollama) Complete(ctx context.Context, turns []session.Turn) (session.Turn, error) {
	ctx, span := b.startSpan(ctx, b.model, len(turns))
	defer span.End()

	reqBody := OllamaRequest{
		Model:    b.model,
		Messages: wireMessages(turns),
		Stream:   false,
	}

	var apiResp OllamaResponse
	if err := b.postJSON(ctx, b.baseURL+"/api/chat", nil, reqBody, &apiResp); err != nil {
		return session.Turn{}, b.fail(span, err)
	}

	b.recordUsage(ctx, map[string]any{
		"prompt_tokens":     float64(apiResp.PromptEvalCount),
		"completion_tokens": float64(apiResp.EvalCount),
	})

	if apiResp.Message.Role == "" {
		return session.Turn{}, b.fail(span, b.malformed("empty response from Ollama"))
	}
	turn, err := b.replyTurn(apiResp.Message.Role, apiResp.Message.Content)
	if err != nil {
		return session.Turn{}, b.fail(span, err)
	}
	return turn, nil
}

// ListModels fetches the models installed on the Ollama server
func (b *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var tagsResp OllamaTagsResponse
	if err := b.do(ctx, req, &tagsResp); err != nil {
		if IsKind(err, KindTransport) {
			return nil, fmt.Errorf("is Ollama running? %w", err)
		}
		return nil, err
	}
	return tagsResp.Models, nil
}
