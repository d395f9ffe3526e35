package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"HotkeyChat/internal/backend"
	"HotkeyChat/internal/hotkey"
	"HotkeyChat/internal/ledger"
	"HotkeyChat/internal/session"
)

// DefaultPrompt is shown before every line of user input
const DefaultPrompt = "Prompt -> "

// State is the position of the controller in its loop
type State int32

const (
	AwaitingInput State = iota
	RequestInFlight
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case RequestInFlight:
		return "request_in_flight"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// LineReader supplies one line of user input per call. It returns io.EOF
// when input has ended.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// EventSource is polled for hotkey events without blocking
type EventSource interface {
	PollEvent() (hotkey.Event, bool)
}

// Printer renders conversation output
type Printer interface {
	Prompt(s string)
	Reply(s string)
	Notice(s string)
	Diagnostic(s string)
}

// Recorder journals completion requests
type Recorder interface {
	Record(ctx context.Context, ex ledger.Exchange) error
}

// Deps holds the collaborators of a Controller. Session, Context, Backend,
// Input, Events, Flag and Output are required.
type Deps struct {
	Session *session.Session
	Context *session.Context
	Backend backend.Completer
	Input   LineReader
	Events  EventSource
	Flag    *session.CancelFlag
	Output  Printer

	Recorder Recorder
	Prompt   string
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
}

// Controller runs the foreground conversation loop
type Controller struct {
	session  *session.Session
	convo    *session.Context
	backend  backend.Completer
	input    LineReader
	events   EventSource
	flag     *session.CancelFlag
	out      Printer
	recorder Recorder
	prompt   string
	logger   *slog.Logger
	tracer   trace.Tracer

	exchangeCounter metric.Int64Counter
	eventCounter    metric.Int64Counter

	state     atomic.Int32
	exchanges int
	failed    int
}

// NewController creates a Controller in the AwaitingInput state
func NewController(d Deps) (*Controller, error) {
	switch {
	case d.Session == nil:
		return nil, errors.New("session is required")
	case d.Context == nil:
		return nil, errors.New("context is required")
	case d.Backend == nil:
		return nil, errors.New("backend is required")
	case d.Input == nil:
		return nil, errors.New("input is required")
	case d.Events == nil:
		return nil, errors.New("event source is required")
	case d.Flag == nil:
		return nil, errors.New("cancel flag is required")
	case d.Output == nil:
		return nil, errors.New("output is required")
	}
	if d.Prompt == "" {
		d.Prompt = DefaultPrompt
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tracer == nil {
		d.Tracer = tracenoop.NewTracerProvider().Tracer("chatbot")
	}
	if d.Meter == nil {
		d.Meter = metricnoop.NewMeterProvider().Meter("chatbot")
	}

	c := &Controller{
		session:  d.Session,
		convo:    d.Context,
		backend:  d.Backend,
		input:    d.Input,
		events:   d.Events,
		flag:     d.Flag,
		out:      d.Output,
		recorder: d.Recorder,
		prompt:   d.Prompt,
		logger:   d.Logger.With("session_id", d.Session.ID),
		tracer:   d.Tracer,
	}

	var err error
	c.exchangeCounter, err = d.Meter.Int64Counter("chat.exchanges",
		metric.WithDescription("Completion requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange counter: %w", err)
	}
	c.eventCounter, err = d.Meter.Int64Counter("chat.hotkey_events",
		metric.WithDescription("Hotkey events surfaced to the user"))
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}
	return c, nil
}

// State returns the current loop state
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Run drives the conversation until the cancel flag is set or input ends.
//
// The cancel flag is only checked between exchanges. While a backend call is
// in flight the exit hotkey is not observed until the call returns, so exit
// latency is bounded by the backend's own timeout.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("session started", "backend", c.session.Backend, "model", c.session.Model)
	defer c.finish()

	for {
		if c.flag.IsSet() {
			c.logger.Info("cancel flag set, terminating")
			c.out.Notice("Exiting...")
			return nil
		}

		c.drainEvents(ctx)

		c.out.Prompt(c.prompt)
		line, err := c.input.ReadLine(ctx)
		if err != nil {
			c.out.Notice("")
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.Info("input ended, terminating", "reason", err)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		c.exchange(ctx, line)
	}
}

// drainEvents surfaces every pending hotkey event without blocking
func (c *Controller) drainEvents(ctx context.Context) {
	for {
		ev, ok := c.events.PollEvent()
		if !ok {
			return
		}
		c.eventCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("key", ev.Key)))
		c.logger.Debug("hotkey event received", "key", ev.Key)
		c.out.Notice(fmt.Sprintf("Received: %s pressed", ev.Key))
	}
}

// exchange appends the user turn, calls the backend once and appends the
// reply. On failure the user turn stays in the context unanswered.
func (c *Controller) exchange(ctx context.Context, line string) {
	ctx, span := c.tracer.Start(ctx, "chat_exchange")
	defer span.End()

	c.convo.AddTurn(session.RoleUser, line)
	snapshot := c.convo.Snapshot()
	span.SetAttributes(attribute.Int("llm.context.turns", len(snapshot)))

	c.setState(RequestInFlight)
	start := time.Now()
	reply, err := c.backend.Complete(ctx, snapshot)
	elapsed := time.Since(start)
	c.setState(AwaitingInput)

	c.exchanges++
	ex := ledger.Exchange{
		SessionID:   c.session.ID,
		Backend:     c.session.Backend,
		Model:       c.session.Model,
		Fingerprint: ledger.Fingerprint(snapshot),
		Turns:       len(snapshot),
		StartedAt:   start,
		Duration:    elapsed,
		Outcome:     ledger.OutcomeOK,
	}

	if err != nil {
		c.failed++
		ex.Outcome = ledger.OutcomeError
		ex.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("failed to send message", "error", err, "duration_ms", elapsed.Milliseconds())
		c.out.Diagnostic(fmt.Sprintf("Error: %v", err))
	} else {
		c.convo.AddTurn(session.RoleAssistant, reply.Content)
		c.logger.Info("reply received", "turns", c.convo.Len(), "duration_ms", elapsed.Milliseconds())
		c.out.Reply(reply.Content)
	}

	c.exchangeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", ex.Outcome)))
	c.record(ctx, ex)
}

func (c *Controller) record(ctx context.Context, ex ledger.Exchange) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
		c.logger.Warn("failed to record exchange", "error", err)
	}
}

func (c *Controller) finish() {
	c.setState(Terminated)
	c.logger.Info("session ended", "exchanges", c.exchanges, "failed", c.failed, "turns", c.convo.Len())
	c.out.Notice(fmt.Sprintf("%d exchanges, %d failed", c.exchanges, c.failed))
	c.out.Notice("Goodbye!")
}
