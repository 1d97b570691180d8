package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "mcp-pdf-reader"

	// Span attribute size limit for serialised arguments
	maxArgumentsAttributeSize = 4096
)

// Config selects the OTLP exporter. Tracing and metrics stay noop when Endpoint is empty;
// the exporters themselves read the standard OTEL_EXPORTER_OTLP_* variables.
type Config struct {
	Endpoint       string
	Protocol       string // "http/protobuf" (default) or "grpc"
	ServiceName    string
	ServiceVersion string
	Transport      string
}

var (
	// globalMutex protects access to the tracer globals
	globalMutex          sync.RWMutex
	globalTracer         trace.Tracer
	globalTracerProvider *sdktrace.TracerProvider
	tracingEnabled       bool
	globalTransport      string
)

// otelErrorHandler adapts OTEL SDK errors to our logging system.
// OTEL must never log to stderr, which would break the stdio protocol.
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.WithError(err).Debug("OTEL: SDK error occurred")
}

// Init sets up tracing and metrics. The returned shutdown function flushes both providers.
// The application can continue with noop instrumentation when Init fails.
func Init(ctx context.Context, cfg Config, logger *logrus.Logger) (func(context.Context) error, error) {
	globalMutex.Lock()
	globalTransport = cfg.Transport
	globalMutex.Unlock()

	if cfg.Endpoint == "" {
		logger.Debug("OTEL: Not configured (OTEL_EXPORTER_OTLP_ENDPOINT not set), using noop instrumentation")
		setNoop()
		return func(context.Context) error { return nil }, nil
	}

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"protocol": protocol(cfg),
	}).Info("OTEL: Initialising tracer and meter")

	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := resource.New(initCtx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(cfg)),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String(AttrMCPTransport, cfg.Transport),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		res = resource.Default()
	}

	tp, err := newTracerProvider(initCtx, cfg, res)
	if err != nil {
		setNoop()
		return func(context.Context) error { return nil }, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	mp, err := newMeterProvider(initCtx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		setNoop()
		return func(context.Context) error { return nil }, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetMeterProvider(mp)

	globalMutex.Lock()
	globalTracer = tp.Tracer(instrumentationName)
	globalTracerProvider = tp
	tracingEnabled = true
	globalMutex.Unlock()

	if err := initInstruments(mp.Meter(instrumentationName)); err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create metric instruments")
	}

	logger.Info("OTEL: Tracer and meter initialised successfully")

	return func(ctx context.Context) error {
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
		defer shutdownCancel()

		var errs []string
		if err := tp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err.Error())
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("failed to shutdown telemetry: %s", strings.Join(errs, "; "))
		}
		logger.Debug("OTEL: Providers shutdown successfully")
		return nil
	}, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter *otlptrace.Exporter
	var err error
	switch protocol(cfg) {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	default:
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}

func setNoop() {
	globalMutex.Lock()
	globalTracer = noop.NewTracerProvider().Tracer(instrumentationName)
	globalTracerProvider = nil
	tracingEnabled = false
	globalMutex.Unlock()

	_ = initInstruments(nil)
}

// GetTracer returns the global tracer instance, or a noop tracer if not initialised
func GetTracer() trace.Tracer {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if globalTracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return globalTracer
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return tracingEnabled
}

// StartSpan creates a span for one tool call, prompt render or resource read.
// The caller MUST end the span with EndSpan.
func StartSpan(ctx context.Context, kind, name string, args map[string]any) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	spanName := SpanNameToolExecute
	switch kind {
	case KindPrompt:
		spanName = SpanNamePromptGet
	case KindResource:
		spanName = SpanNameResourceRead
	}

	globalMutex.RLock()
	transport := globalTransport
	globalMutex.RUnlock()

	ctx, span := GetTracer().Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrMCPOperationKind, kind),
			attribute.String(AttrMCPOperationName, name),
			attribute.String(AttrMCPTransport, transport),
		),
	)

	if id, ok := args["pdf_id"].(string); ok {
		span.SetAttributes(attribute.String(AttrPDFID, id))
	}
	span.SetAttributes(attribute.String(AttrMCPArguments, TruncateString(SanitiseArguments(args), maxArgumentsAttributeSize)))

	return ctx, span
}

// EndSpan ends a span with success or error; errKind is the error's kind name
func EndSpan(span trace.Span, errKind string, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool(AttrMCPSuccess, false),
			attribute.String(AttrMCPErrorKind, errKind),
			attribute.String(AttrMCPError, err.Error()),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(AttrMCPSuccess, true))
	}

	span.End()
}

func protocol(cfg Config) string {
	p := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	switch {
	case p == "grpc":
		return "grpc"
	case p == "" && strings.Contains(cfg.Endpoint, ":4317"):
		return "grpc"
	default:
		return "http/protobuf"
	}
}

func serviceName(cfg Config) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return instrumentationName
}
