package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/topi314/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ShutdownFunc flushes and stops what SetupOtel started.
type ShutdownFunc func(ctx context.Context) error

// SetupOtel installs the global tracer and meter providers. component is appended to the
// service name so the api and the workers can be told apart.
func SetupOtel(version string, component string, cfg OtelConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(Name+"-"+component),
		semconv.ServiceNamespace(Namespace),
		semconv.ServiceInstanceID(cfg.InstanceID),
		semconv.ServiceVersion(version),
	)

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.Trace != nil && cfg.Trace.Enabled {
		fn, err := setupTrace(res, *cfg.Trace)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		shutdowns = append(shutdowns, fn)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		fn, err := setupMeter(res, *cfg.Metrics)
		if err != nil {
			_ = shutdown(context.Background())
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		shutdowns = append(shutdowns, fn)
	}

	return shutdown, nil
}

func setupTrace(res *resource.Resource, cfg TraceConfig) (ShutdownFunc, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

func setupMeter(res *resource.Resource, cfg MetricsConfig) (ShutdownFunc, error) {
	exp, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exp),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	metricsServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen metrics server", tint.Err(err))
		}
	}()

	return func(ctx context.Context) error {
		return errors.Join(metricsServer.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
