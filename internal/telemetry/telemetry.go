// Package telemetry wires structured logging and distributed tracing for
// the service. InitTelemetry is called once from main; the rest of the
// codebase logs through the package-level Logger.
package telemetry

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. It is a no-op until
// InitTelemetry runs, which keeps tests quiet without nil checks.
var Logger = zap.NewNop()

var tracerProvider *sdktrace.TracerProvider

// InitTelemetry builds the production logger and, when an OTLP endpoint
// is configured through OTEL_EXPORTER_OTLP_ENDPOINT, installs a tracer
// provider exporting over OTLP/HTTP. Without an endpoint the service
// runs with logging only.
func InitTelemetry(serviceName string) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zap.ParseAtomicLevel(lvl); err == nil {
			cfg.Level = parsed
		}
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = logger.Named(serviceName)

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return nil
	}

	// The exporter reads the endpoint from the environment.
	exporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		return err
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return err
	}
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	return nil
}

// TracingMiddleware opens a server span per request and propagates it
// through the request context.
func TracingMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("pix-gateway/http")
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		ctx, span := tracer.Start(c.Request.Context(),
			c.Request.Method+" "+name,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", name),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
	}
}

// Shutdown flushes pending spans and log buffers. Called on process exit.
func Shutdown(ctx context.Context) {
	if tracerProvider != nil {
		_ = tracerProvider.Shutdown(ctx)
	}
	_ = Logger.Sync()
}
