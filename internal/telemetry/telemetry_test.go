package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, closeLog, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("debug line", "k", "v")
	require.NoError(t, closeLog())

	raw, err := os.ReadFile(filepath.Join(dir, "hotkeychat.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"debug line"`)
	assert.Contains(t, string(raw), `"k":"v"`)
}

func TestInitLogger_InfoLevelDropsDebug(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	logger, closeLog, err := InitLogger(dir, false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, closeLog())

	raw, err := os.ReadFile(filepath.Join(dir, "hotkeychat.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, string(raw), "shown")
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "test_span")
	span.End()
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	cleanup()

	raw, err := os.ReadFile(filepath.Join(dir, "hotkeychat_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "test_span")

	raw, err = os.ReadFile(filepath.Join(dir, "hotkeychat_metrics.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "test.counter", "shutdown flushes metrics before closing the file")
}

func TestShutdownsRunInReverse(t *testing.T) {
	var order []string
	var steps shutdowns
	for _, name := range []string{"file", "provider"} {
		steps.add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	steps.add("failing", func(context.Context) error { return errors.New("boom") })

	steps.run(context.Background())
	assert.Equal(t, []string{"provider", "file"}, order, "a failing step does not stop the rest")
}

func TestNoop(t *testing.T) {
	tracer, meter := Noop()
	_, span := tracer.Start(context.Background(), "x")
	span.End()
	_, err := meter.Int64Counter("x")
	assert.NoError(t, err)
}
