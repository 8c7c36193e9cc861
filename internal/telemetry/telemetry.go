// Package telemetry bundles structured logging, metrics and tracing for
// the stages. Logs always go to stderr: stdout is the data channel of the
// pipe and must stay untouched.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/pipebuffer/pipebuffer"

var (
	baseLogger     *slog.Logger
	baseLoggerOnce sync.Once
)

func getBaseLogger() *slog.Logger {
	baseLoggerOnce.Do(func() {
		w := os.Stderr

		handler := tint.NewHandler(colorable.NewColorable(w), &tint.Options{
			NoColor: !isatty.IsTerminal(w.Fd()),
		})

		baseLogger = slog.New(handler)
	})

	return baseLogger
}

// Telemetry carries the logger, meter and tracer of a single stage.
type Telemetry struct {
	logger *slog.Logger
	meter  metric.Meter
	tracer trace.Tracer

	prefix string
}

// NewTelemetry returns the telemetry for a stage, identified by its
// kind ("ingress"/"egress") and name.
func NewTelemetry(kind, name string) *Telemetry {
	return &Telemetry{
		logger: getBaseLogger().With("stage", kind+"/"+name),
		meter:  otel.Meter(scopeName),
		tracer: otel.Tracer(scopeName),

		prefix: kind + "." + name + ".",
	}
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// LogDebug logs a debug message.
func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.logger.Debug(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// LogError logs an error message.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.Error(msg, append([]any{tint.Err(err)}, args...)...)
}

// NewCounter registers a monotonic counter observed through the callback.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(
		t.prefix+name,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(callback())
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create counter", err, "name", name)
	}
}

// NewUpDownCounter registers a non-monotonic counter observed through the callback.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableUpDownCounter(
		t.prefix+name,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(callback())
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create up/down counter", err, "name", name)
	}
}

// NewTrace starts a new span.
func (t *Telemetry) NewTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}
