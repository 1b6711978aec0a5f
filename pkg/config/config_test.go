package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formula"
	"github.com/hpc-analysis/pkg/telemetry"
	"github.com/hpc-analysis/pkg/utils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_DefaultValues(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: local
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "./data", cfg.Analysis.DataDir)
	assert.Equal(t, 0, cfg.Analysis.MaxDepth)
	assert.True(t, cfg.Analysis.ElideCallsites)
	assert.Equal(t, []string{calltree.DefaultBaseMetric}, cfg.Analysis.RatioMetrics)
	assert.Equal(t, 0.05, cfg.Analysis.HotPathThreshold)
	assert.Equal(t, "zero", cfg.Analysis.MissingMetrics)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_CustomValues(t *testing.T) {
	configFile := writeConfig(t, `
analysis:
  data_dir: "/tmp/data"
  max_depth: 3
  elide_callsites: false
  ratio_metrics:
    - "CPUTIME (usec):Sum (I)"
  hot_path_threshold: 0.2
  missing_metrics: error
database:
  type: postgres
  host: db.example.com
  port: 5432
  database: hpc
  user: admin
  password: secret
server:
  addr: "127.0.0.1:9000"
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/data", cfg.Analysis.DataDir)
	assert.Equal(t, 3, cfg.Analysis.MaxDepth)
	assert.False(t, cfg.Analysis.ElideCallsites)
	assert.Equal(t, []string{"CPUTIME (usec):Sum (I)"}, cfg.Analysis.RatioMetrics)
	assert.Equal(t, 0.2, cfg.Analysis.HotPathThreshold)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "hpc", cfg.Database.Database)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	configFile := writeConfig(t, `
database:
  type: oracle
`)

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestLoad_InvalidMissingPolicy(t *testing.T) {
	configFile := writeConfig(t, `
analysis:
  missing_metrics: guess
`)

	_, err := Load(configFile)
	assert.Error(t, err)
}

func TestLoad_COSWithCredentials(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: cos
  bucket: my-bucket-1250000000
  region: ap-guangzhou
  secret_id: AKIDxxxxxxxx
  secret_key: xxxxxxxx
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "my-bucket-1250000000", cfg.Storage.Bucket)
	assert.Equal(t, "ap-guangzhou", cfg.Storage.Region)
}

func TestLoad_EnvOverride(t *testing.T) {
	configFile := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("HPC_ANALYSIS_LOG_LEVEL", "debug")

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"postgres without host", func(c *Config) {
			c.Database.Type = "postgres"
			c.Database.Host = ""
		}, "database host is required"},
		{"postgres with dsn", func(c *Config) {
			c.Database.Type = "postgres"
			c.Database.Host = ""
			c.Database.DSN = "host=db user=u dbname=hpc"
		}, ""},
		{"sqlite without path", func(c *Config) {
			c.Database.Path = ""
		}, "sqlite database path is required"},
		{"threshold above one", func(c *Config) {
			c.Analysis.HotPathThreshold = 1.5
		}, "hot path threshold"},
		{"telemetry bad protocol", func(c *Config) {
			c.Telemetry.Protocol = "udp"
		}, "unsupported telemetry protocol"},
		{"telemetry bad ratio", func(c *Config) {
			c.Telemetry.SampleRatio = 2
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnalysisConfig_BuildOptions(t *testing.T) {
	cfg := Default()
	opts, err := cfg.Analysis.BuildOptions(&utils.NullLogger{})
	require.NoError(t, err)
	assert.Nil(t, opts.MaxDepth)
	assert.True(t, opts.ElideCallsites)
	assert.Equal(t, formula.MissingAsZero, opts.MissingPolicy)

	cfg.Analysis.MaxDepth = 2
	cfg.Analysis.MissingMetrics = "error"
	cfg.Analysis.HotPathMetric = "CPUTIME (usec):Sum (I)"
	opts, err = cfg.Analysis.BuildOptions(nil)
	require.NoError(t, err)
	require.NotNil(t, opts.MaxDepth)
	assert.Equal(t, 2, *opts.MaxDepth)
	assert.Equal(t, formula.MissingIsError, opts.MissingPolicy)
	assert.Equal(t, "CPUTIME (usec):Sum (I)", opts.HotPathBaseMetric)

	cfg.Analysis.MissingMetrics = "bogus"
	_, err = cfg.Analysis.BuildOptions(nil)
	assert.Error(t, err)
}

func TestTelemetryConfig_Overlay(t *testing.T) {
	base := &telemetry.Config{ServiceName: "hpc-analysis", Protocol: "grpc", Headers: map[string]string{"a": "b"}}

	out := TelemetryConfig{SampleRatio: 1}.Overlay(base)
	assert.False(t, out.Enabled)
	assert.Equal(t, "grpc", out.Protocol)
	assert.Empty(t, out.Sampler)

	out = TelemetryConfig{Enabled: true, Endpoint: "collector:4318", Protocol: "http", SampleRatio: 0.25}.Overlay(base)
	assert.True(t, out.Enabled)
	assert.Equal(t, "collector:4318", out.Endpoint)
	assert.Equal(t, "http", out.Protocol)
	assert.Equal(t, "parentbased_traceidratio", out.Sampler)
	assert.Equal(t, "0.25", out.SamplerArg)
	assert.Equal(t, "b", out.Headers["a"])
	assert.False(t, base.Enabled)
}

func TestLogConfig_NewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "debug"}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	dir := t.TempDir()
	logger, err = LogConfig{Level: "info", Format: "json", OutputPath: dir}.NewLogger()
	require.NoError(t, err)
	logger.Info("hello")
	_, err = os.Stat(filepath.Join(dir, "hpc-analysis.log"))
	assert.NoError(t, err)
}

func TestGetRunDir(t *testing.T) {
	cfg := &Config{Analysis: AnalysisConfig{DataDir: "/data"}}
	assert.Equal(t, "/data/run-123", cfg.GetRunDir("run-123"))
}

func TestEnsureDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{Analysis: AnalysisConfig{DataDir: dataDir}}

	require.NoError(t, cfg.EnsureDataDir())
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
analysis:
  max_depth: 4
log:
  level: debug
  format: json
`)

	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Analysis.MaxDepth)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Analysis.ElideCallsites)
}
