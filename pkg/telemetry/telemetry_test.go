package telemetry

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	resetGlobalConfig()
	os.Unsetenv("OTEL_ENABLED")

	ctx := context.Background()
	shutdown, err := Init(ctx)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
}

func TestInitWithConfig_Nil(t *testing.T) {
	shutdown, err := InitWithConfig(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabled(t *testing.T) {
	resetGlobalConfig()
	os.Unsetenv("OTEL_ENABLED")
	assert.False(t, Enabled())
}

func TestGetConfig(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("OTEL_SERVICE_NAME", "test-service")

	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "test-service", cfg.ServiceName)

	// The returned config is a copy.
	cfg.ServiceName = "changed"
	assert.Equal(t, "test-service", GetConfig().ServiceName)
}

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	_, ok := StartSpan(context.Background(), "ok", AttrProfile.String("sedov"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ok", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func resetGlobalConfig() {
	envConfig = sync.OnceValue(LoadFromEnv)
}

func TestInitWithConfig_Enabled(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	ctx := context.Background()
	shutdown, err := InitWithConfig(ctx, &Config{
		Enabled:     true,
		ServiceName: "hpc-analysis-test",
		Endpoint:    "http://localhost:4318",
		Protocol:    "http/protobuf",
	})
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	assert.NoError(t, shutdown(ctx))

	shutdown, err = InitWithConfig(ctx, &Config{Enabled: true, Protocol: "zipkin"})
	assert.Error(t, err)
	assert.NoError(t, shutdown(ctx))
}
