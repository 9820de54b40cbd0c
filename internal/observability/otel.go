package observability

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// TracerName names the tracer the driver and runner open spans on.
const TracerName = "github.com/yungbote/dbprocessing"

type TraceConfig struct {
	ServiceName string
	Mission     string
	Version     string
}

var (
	traceOnce     sync.Once
	traceShutdown func(context.Context) error
)

// InitTracing installs the global tracer provider when OTEL_ENABLED is set.
// Spans go to OTEL_EXPORTER_OTLP_ENDPOINT over HTTP, or to stdout when no
// endpoint is configured. The returned func flushes and stops the provider.
func InitTracing(ctx context.Context, log *logger.Logger, cfg TraceConfig) func(context.Context) error {
	traceOnce.Do(func() {
		if !envBool("OTEL_ENABLED") {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "dbprocessing"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("dbprocessing.mission", strings.TrimSpace(cfg.Mission)),
		))
		if err != nil {
			log.Warn("Trace resource incomplete", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		}
		exporter, err := traceExporter(ctx, log)
		if err != nil {
			log.Warn("Trace exporter unavailable, spans are dropped", "error", err)
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		traceShutdown = tp.Shutdown
		log.Info("Tracing initialized", "service", name, "endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	})
	if traceShutdown == nil {
		return func(context.Context) error { return nil }
	}
	return traceShutdown
}

// Tracer returns the process tracer. Before InitTracing, or when tracing is
// disabled, its spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// sampleRatio defaults to every run: a driver invocation is one trace.
func sampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1
	}
	return min(max(f, 0), 1)
}

// otlpHeaders parses OTEL_EXPORTER_OTLP_HEADERS, "k=v,k=v".
func otlpHeaders() map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		headers[k] = v
	}
	return headers
}

func traceExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		log.Debug("No OTLP endpoint, tracing to stdout")
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if envBool("OTEL_EXPORTER_OTLP_INSECURE") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if h := otlpHeaders(); len(h) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	return otlptracehttp.New(ctx, opts...)
}
