// Package telemetry traces the analysis pipeline with OpenTelemetry.
//
// Tracing is off unless OTEL_ENABLED=true or the telemetry section of the
// config file enables it. See Config for the recognized variables.
//
//	shutdown, err := telemetry.InitWithConfig(ctx, cfg)
//	defer shutdown(ctx)
//
//	ctx, span := telemetry.StartSpan(ctx, "calltree.build", telemetry.AttrProfile.String(name))
//	defer func() { telemetry.EndSpan(span, err) }()
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/hpc-analysis/pkg/utils"
)

// InstrumentationName names the tracer used by StartSpan.
const InstrumentationName = "github.com/hpc-analysis"

// Span attributes recorded by the analyzer and the storage backends.
const (
	AttrProfile    = attribute.Key("hpc.profile")
	AttrInput      = attribute.Key("hpc.input")
	AttrNodeCount  = attribute.Key("hpc.node_count")
	AttrBaseMetric = attribute.Key("hpc.base_metric")
	AttrPathLength = attribute.Key("hpc.path_length")
)

// envConfig is read from the environment once per process.
var envConfig = sync.OnceValue(LoadFromEnv)

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init enables tracing from the environment alone.
func Init(ctx context.Context) (ShutdownFunc, error) {
	return InitWithConfig(ctx, envConfig())
}

// InitWithConfig installs a global tracer provider for cfg. A nil or
// disabled cfg leaves the no-op provider in place. Export failures are
// reported through the global logger.
func InitWithConfig(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	tp, err := newProvider(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		utils.GetGlobalLogger().Warn("telemetry: %v", err)
	}))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	utils.GetGlobalLogger().WithFields(map[string]interface{}{
		"service":  cfg.ServiceName,
		"endpoint": cfg.Endpoint,
		"protocol": cfg.Protocol,
	}).Debug("tracing enabled")

	return tp.Shutdown, nil
}

// Enabled reports whether the environment enables tracing.
func Enabled() bool {
	return envConfig().Enabled
}

// GetConfig returns a copy of the environment configuration.
func GetConfig() *Config {
	return envConfig().Clone()
}

// Tracer returns the package tracer of the global provider.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// StartSpan starts a span on the package tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is non-nil, then ends it.
func EndSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
