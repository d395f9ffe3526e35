package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/session"
)

// Completer produces the next assistant turn for a conversation snapshot.
// Each call places exactly one remote request.
type Completer interface {
	Complete(ctx context.Context, turns []session.Turn) (session.Turn, error)
}

// Kind classifies a backend failure
type Kind int

const (
	// KindTransport means the request never produced a response
	KindTransport Kind = iota
	// KindStatus means the service answered with a non-success status
	KindStatus
	// KindMalformed means the response body could not be used
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// Error is returned by every Completer
type Error struct {
	Kind       Kind
	Backend    string
	StatusCode int
	// Diagnostic is the raw response text when one was received
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += " - " + e.Diagnostic
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a backend Error of the given kind
func IsKind(err error, kind Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}

// Options carries the shared collaborators of every backend
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

func (o Options) withDefaults(cfg config.Config) Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = tracenoop.NewTracerProvider().Tracer("backend")
	}
	if o.Meter == nil {
		o.Meter = metricnoop.NewMeterProvider().Meter("backend")
	}
	return o
}

// New creates the Completer selected by cfg.Backend. The credential must
// already be resolved into cfg.APIKey.
func New(ctx context.Context, cfg config.Config, opts Options) (Completer, error) {
	opts = opts.withDefaults(cfg)
	switch cfg.Backend {
	case config.BackendOpenAI:
		return NewOpenAI(cfg, opts), nil
	case config.BackendGrok:
		return NewGrok(cfg, opts), nil
	case config.BackendAnthropic:
		return NewAnthropic(cfg, opts), nil
	case config.BackendOllama:
		return NewOllama(cfg, opts), nil
	case config.BackendGemini:
		return NewGemini(ctx, cfg, opts)
	}
	return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Backend)
}

// transport is the HTTP plumbing shared by the JSON backends
type transport struct {
	name   string
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	duration metric.Float64Histogram
}

func newTransport(name string, opts Options) transport {
	histogram, err := opts.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		opts.Logger.Warn("failed to create histogram", "error", err)
	}
	return transport{
		name:     name,
		client:   opts.HTTPClient,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		meter:    opts.Meter,
		duration: histogram,
	}
}

// startSpan opens the span that wraps one completion call
func (t transport) startSpan(ctx context.Context, model string, turns int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, t.name+"_api_call", trace.WithAttributes(
		attribute.String("llm.backend", t.name),
		attribute.String("llm.model", model),
		attribute.Int("llm.context.turns", turns),
	))
}

// fail records err on the span and returns it
func (t transport) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// postJSON sends reqBody and decodes a 200 response into respBody
func (t transport) postJSON(ctx context.Context, url string, headers map[string]string, reqBody, respBody any) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return &Error{Kind: KindTransport, Backend: t.name, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return &Error{Kind: KindTransport, Backend: t.name, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return t.do(ctx, req, respBody)
}

func (t transport) do(ctx context.Context, req *http.Request, respBody any) error {
	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Backend: t.name, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Backend: t.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if t.duration != nil {
		t.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("llm.backend", t.name),
				attribute.Int("http.response.status_code", resp.StatusCode),
			))
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindStatus, Backend: t.name, StatusCode: resp.StatusCode, Diagnostic: string(body)}
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return &Error{Kind: KindMalformed, Backend: t.name, Err: fmt.Errorf("failed to unmarshal response: %w", err), Diagnostic: string(body)}
	}
	return nil
}

// malformed builds the error for a structurally valid but unusable body
func (t transport) malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformed, Backend: t.name, Err: fmt.Errorf(format, args...)}
}

// recordUsage records token counts reported by the service as counters
func (t transport) recordUsage(ctx context.Context, usage map[string]any) {
	for key, value := range usage {
		n, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := t.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			t.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("llm.backend", t.name)))
	}
}

// replyTurn validates the role of a returned candidate
func (t transport) replyTurn(role, content string) (session.Turn, error) {
	r, err := session.ParseRole(role)
	if err != nil {
		return session.Turn{}, t.malformed("unexpected reply role: %w", err)
	}
	return session.Turn{Role: r, Content: content}, nil
}

func wireMessages(turns []session.Turn) []map[string]string {
	out := make([]map[string]string, len(turns))
	for i, turn := range turns {
		out[i] = map[string]string{
			"role":    string(turn.Role),
			"content": turn.Content,
		}
	}
	return out
}
