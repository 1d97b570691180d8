package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const metricExportInterval = 60 * time.Second

var (
	metricsMutex sync.RWMutex

	operationCounter  metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorCounter      metric.Int64Counter
	openDocuments     metric.Int64UpDownCounter
	pagesExtracted    metric.Int64Counter
)

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var exporter sdkmetric.Exporter
	var err error
	switch protocol(cfg) {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	default:
		exporter, err = otlpmetrichttp.New(ctx)
	}
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(metricExportInterval),
		)),
		sdkmetric.WithResource(res),
	), nil
}

// initInstruments creates every instrument from meter; a nil meter installs noop instruments
func initInstruments(meter metric.Meter) error {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	var err error
	operationCounter, err = meter.Int64Counter("mcp.operation.calls",
		metric.WithDescription("Tool calls, prompt renders and resource reads"),
		metric.WithUnit("{call}"),
	)
	collect(err)

	operationDuration, err = meter.Float64Histogram("mcp.operation.duration",
		metric.WithDescription("Operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	collect(err)

	errorCounter, err = meter.Int64Counter("mcp.operation.errors",
		metric.WithDescription("Operation errors by kind"),
		metric.WithUnit("{error}"),
	)
	collect(err)

	openDocuments, err = meter.Int64UpDownCounter("pdf.documents.open",
		metric.WithDescription("Open PDF sessions"),
		metric.WithUnit("{document}"),
	)
	collect(err)

	pagesExtracted, err = meter.Int64Counter("pdf.pages.extracted",
		metric.WithDescription("Pages whose text was extracted"),
		metric.WithUnit("{page}"),
	)
	collect(err)

	return errors.Join(errs...)
}

func instruments() (metric.Int64Counter, metric.Float64Histogram, metric.Int64Counter) {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return operationCounter, operationDuration, errorCounter
}

// RecordOperation records one tool call, prompt render or resource read
func RecordOperation(ctx context.Context, kind, name, errKind string, duration time.Duration) {
	calls, durations, failures := instruments()
	if calls == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(AttrMCPOperationKind, kind),
		attribute.String(AttrMCPOperationName, name),
		attribute.Bool(AttrMCPSuccess, errKind == ""),
	)
	calls.Add(ctx, 1, attrs)
	durations.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if errKind != "" {
		failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrMCPOperationName, name),
			attribute.String(AttrMCPErrorKind, errKind),
		))
	}
}

// RecordDocumentOpened increments the open document gauge
func RecordDocumentOpened(ctx context.Context) {
	metricsMutex.RLock()
	gauge := openDocuments
	metricsMutex.RUnlock()
	if gauge != nil {
		gauge.Add(ctx, 1)
	}
}

// RecordDocumentClosed decrements the open document gauge
func RecordDocumentClosed(ctx context.Context) {
	metricsMutex.RLock()
	gauge := openDocuments
	metricsMutex.RUnlock()
	if gauge != nil {
		gauge.Add(ctx, -1)
	}
}

// RecordPagesExtracted counts pages whose text was extracted
func RecordPagesExtracted(ctx context.Context, pages int) {
	metricsMutex.RLock()
	counter := pagesExtracted
	metricsMutex.RUnlock()
	if counter != nil && pages > 0 {
		counter.Add(ctx, int64(pages))
	}
}
