package backend

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/session"
)

// Gemini talks to the Gemini API through the genai SDK
type Gemini struct {
	transport
	client *genai.Client
	model  string
}

// NewGemini creates a backend for the Gemini API
func NewGemini(ctx context.Context, cfg config.Config, opts Options) (*Gemini, error) {
	opts = opts.withDefaults(cfg)
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		transport: newTransport(config.BackendGemini, opts),
		client:    client,
		model:     cfg.ModelName(),
	}, nil
}

// Complete sends the conversation and returns the first candidate
func (b *Gemini) Complete(ctx context.Context, turns []session.Turn) (session.Turn, error) {
	ctx, span := b.startSpan(ctx, b.model, len(turns))
	defer span.End()

	system, contents := toGenAIContents(turns)
	var gc *genai.GenerateContentConfig
	if system != nil {
		gc = &genai.GenerateContentConfig{SystemInstruction: system}
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, gc)
	if err != nil {
		return session.Turn{}, b.fail(span, &Error{Kind: KindTransport, Backend: b.name, Err: err})
	}

	if resp.UsageMetadata != nil {
		b.recordUsage(ctx, map[string]any{
			"prompt_tokens":     float64(resp.UsageMetadata.PromptTokenCount),
			"completion_tokens": float64(resp.UsageMetadata.CandidatesTokenCount),
		})
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return session.Turn{}, b.fail(span, b.malformed("empty response from Gemini"))
	}
	content := resp.Candidates[0].Content
	var text strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return session.Turn{Role: fromGenAIRole(content.Role), Content: text.String()}, nil
}

// toGenAIContents splits system turns into the system instruction and maps
// the assistant role onto Gemini's "model" role
func toGenAIContents(turns []session.Turn) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleSystem:
			system = append(system, turn.Content)
		case session.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func fromGenAIRole(role string) session.Role {
	if role == string(genai.RoleUser) {
		return session.RoleUser
	}
	return session.RoleAssistant
}
