// Package observability configures process logging: a stdout handler plus an
// optional OpenTelemetry log export pipeline.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationName = "github.com/florianilch/switchboard"

// Export selects where log records are exported besides stdout.
type Export string

const (
	ExportNone     Export = "none"
	ExportStdout   Export = "stdout"
	ExportOTLPHTTP Export = "otlp-http"
	ExportOTLPGRPC Export = "otlp-grpc"
)

// Config describes the logging pipeline.
type Config struct {
	Level  slog.Level
	Format string
	Export Export
	// Endpoint is the OTLP collector URL. Empty uses the exporter's
	// default or the OTEL_EXPORTER_OTLP_* environment.
	Endpoint    string
	ServiceName string
	Version     string

	// Output receives stdout-bound records. Defaults to os.Stdout.
	Output io.Writer
}

// Instrument installs the process logger as slog.Default and returns a
// function that flushes and stops the export pipeline.
func Instrument(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	handler, shutdown, err := NewHandler(ctx, cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(handler))
	return shutdown, nil
}

// NewHandler builds the handler Instrument installs, without touching global state.
func NewHandler(ctx context.Context, cfg Config) (slog.Handler, func(context.Context) error, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	stdout, err := newStdoutHandler(out, cfg.Level, cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	noop := func(context.Context) error { return nil }
	if cfg.Export == "" || cfg.Export == ExportNone {
		return newTraceContextHandler(stdout), noop, nil
	}

	exporter, err := newExporter(ctx, cfg, out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build log resource: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(cfg.Level))),
	)

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	shutdown := func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to shut down log provider: %w", err)
		}
		return nil
	}

	return newTraceContextHandler(newFanoutHandler(stdout, otelHandler)), shutdown, nil
}

func newExporter(ctx context.Context, cfg Config, out io.Writer) (sdklog.Exporter, error) {
	switch cfg.Export {
	case ExportStdout:
		return stdoutlog.New(stdoutlog.WithWriter(out))
	case ExportOTLPHTTP:
		var opts []otlploghttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(cfg.Endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExportOTLPGRPC:
		var opts []otlploggrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(cfg.Endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported log export %q (expected: none, stdout, otlp-http, otlp-grpc)", cfg.Export)
	}
}

func serviceName(cfg Config) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return "switchboard"
}

// severity maps the slog level onto the export pipeline's minimum severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}
