package telemetry

import (
	"os"
	"strings"
)

// Config holds OpenTelemetry settings. LoadFromEnv reads them from the
// standard OTEL_* variables; the config file may overlay them.
type Config struct {
	Enabled        bool   // OTEL_ENABLED
	ServiceName    string // OTEL_SERVICE_NAME
	ServiceVersion string // OTEL_SERVICE_VERSION
	Endpoint       string // OTEL_EXPORTER_OTLP_ENDPOINT, with or without scheme
	Protocol       string // OTEL_EXPORTER_OTLP_PROTOCOL: grpc or http/protobuf
	Insecure       bool   // OTEL_EXPORTER_OTLP_INSECURE

	// Headers are sent with every export, e.g. Authorization.
	// OTEL_EXPORTER_OTLP_HEADERS as "k1=v1,k2=v2".
	Headers map[string]string

	// Sampler is one of always_on, always_off, traceidratio and their
	// parentbased_ variants. OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG.
	Sampler    string
	SamplerArg string

	// ResourceAttrs are added to the resource of every span.
	// OTEL_RESOURCE_ATTRIBUTES as "k1=v1,k2=v2".
	ResourceAttrs map[string]string
}

// DefaultServiceName is the service.name reported when OTEL_SERVICE_NAME is unset.
const DefaultServiceName = "hpc-analysis"

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Headers = cloneMap(c.Headers)
	out.ResourceAttrs = cloneMap(c.ResourceAttrs)
	return &out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) *Config {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	return &Config{
		Enabled:        strings.EqualFold(getenv("OTEL_ENABLED"), "true"),
		ServiceName:    get("OTEL_SERVICE_NAME", DefaultServiceName),
		ServiceVersion: get("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       get("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Insecure:       strings.EqualFold(getenv("OTEL_EXPORTER_OTLP_INSECURE"), "true"),
		Headers:        parseKeyValuePairs(getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Sampler:        getenv("OTEL_TRACES_SAMPLER"),
		SamplerArg:     getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='; pairs
// without a key are skipped.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
