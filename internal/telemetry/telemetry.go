package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName    = "hotkeychat"
	serviceVersion = "1.0.0"
)

func rotatingFile(logDir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation.
// Logs go only to the file since stdout carries the conversation.
func InitLogger(logDir string, debug bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	file := rotatingFile(logDir, "hotkeychat.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, file.Close, nil
}

// Noop returns a tracer and meter that discard everything
func Noop() (trace.Tracer, metric.Meter) {
	return tracenoop.NewTracerProvider().Tracer(serviceName),
		metricnoop.NewMeterProvider().Meter(serviceName)
}

// metricInterval is how often the periodic reader exports
const metricInterval = 10 * time.Second

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// shutdowns collects teardown steps, run in reverse order of registration
type shutdowns []shutdownStep

func (s *shutdowns) add(name string, fn func(context.Context) error) {
	*s = append(*s, shutdownStep{name: name, fn: fn})
}

func (s shutdowns) run(ctx context.Context) {
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i].fn(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "step", s[i].name, "error", err)
		}
	}
}

// closeFile adapts a rotated file to a shutdown step
func closeFile(f *lumberjack.Logger) func(context.Context) error {
	return func(context.Context) error { return f.Close() }
}

func serviceResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// traceProvider batches spans into a pretty-printed JSON file
func traceProvider(res *resource.Resource, file *lumberjack.Logger) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(file), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

// meterProvider exports metrics to a file every metricInterval
func meterProvider(res *resource.Resource, file *lumberjack.Logger) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(file), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil
}

// InitTelemetry installs global OpenTelemetry providers whose spans and
// metrics land in rotated files under logDir. The returned func flushes the
// providers and closes the files.
func InitTelemetry(ctx context.Context, logDir string) (trace.Tracer, metric.Meter, func(), error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	res, err := serviceResource(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	var steps shutdowns
	fail := func(err error) (trace.Tracer, metric.Meter, func(), error) {
		steps.run(context.Background())
		return nil, nil, nil, err
	}

	traceFile := rotatingFile(logDir, "hotkeychat_traces.log")
	steps.add("trace file", closeFile(traceFile))
	tp, err := traceProvider(res, traceFile)
	if err != nil {
		return fail(err)
	}
	steps.add("tracer provider", tp.Shutdown)

	metricsFile := rotatingFile(logDir, "hotkeychat_metrics.log")
	steps.add("metrics file", closeFile(metricsFile))
	mp, err := meterProvider(res, metricsFile)
	if err != nil {
		return fail(err)
	}
	steps.add("meter provider", mp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		steps.run(ctx)
	}
	return tp.Tracer(serviceName), mp.Meter(serviceName), cleanup, nil
}
