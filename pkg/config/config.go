// Package config provides configuration management for hpc-analysis.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/formula"
	"github.com/hpc-analysis/pkg/telemetry"
	"github.com/hpc-analysis/pkg/utils"
)

// Config holds all configuration for the application.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnalysisConfig controls how experiment databases become call-tree tables.
type AnalysisConfig struct {
	DataDir          string   `mapstructure:"data_dir"`
	MaxDepth         int      `mapstructure:"max_depth"` // 0 or negative means unlimited
	ElideCallsites   bool     `mapstructure:"elide_callsites"`
	RatioMetrics     []string `mapstructure:"ratio_metrics"`
	HotPathThreshold float64  `mapstructure:"hot_path_threshold"`
	HotPathMetric    string   `mapstructure:"hot_path_metric"`
	MissingMetrics   string   `mapstructure:"missing_metrics"` // zero or error
}

// DatabaseConfig holds the run repository connection.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // e.g., "https" or "http"
	Prefix    string `mapstructure:"prefix"` // roots every COS key, e.g. "hpc-analysis/"
	LocalPath string `mapstructure:"local_path"`
}

// ServerConfig holds the HTTP viewer settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig overlays the OTEL_* environment. Zero values leave the
// environment setting in place.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Overlay applies the file settings on top of base and returns the result.
func (t TelemetryConfig) Overlay(base *telemetry.Config) *telemetry.Config {
	out := base.Clone()
	if t.Enabled {
		out.Enabled = true
	}
	if t.Endpoint != "" {
		out.Endpoint = t.Endpoint
	}
	if t.Protocol != "" {
		out.Protocol = t.Protocol
	}
	if t.Insecure {
		out.Insecure = true
	}
	if t.SampleRatio > 0 && t.SampleRatio < 1 {
		out.Sampler = "parentbased_traceidratio"
		out.SamplerArg = strconv.FormatFloat(t.SampleRatio, 'f', -1, 64)
	}
	return out
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty logs to stderr
	Format     string `mapstructure:"format"`      // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hpc-analysis")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			utils.GetGlobalLogger().Debug("config file not found, using defaults")
		} else if os.IsNotExist(err) {
			utils.GetGlobalLogger().Warn("config file %s not found, using defaults", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// HPC_ANALYSIS_ANALYSIS_MAX_DEPTH overrides analysis.max_depth.
	v.SetEnvPrefix("HPC_ANALYSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.data_dir", "./data")
	v.SetDefault("analysis.max_depth", 0)
	v.SetDefault("analysis.elide_callsites", true)
	v.SetDefault("analysis.ratio_metrics", []string{calltree.DefaultBaseMetric})
	v.SetDefault("analysis.hot_path_threshold", calltree.DefaultHotPathThreshold)
	v.SetDefault("analysis.hot_path_metric", calltree.DefaultBaseMetric)
	v.SetDefault("analysis.missing_metrics", formula.MissingAsZero.String())

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/hpc-analysis.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DSN == "" && c.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case "postgres", "mysql":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Analysis.HotPathThreshold < 0 || c.Analysis.HotPathThreshold > 1 {
		return fmt.Errorf("hot path threshold must be within [0, 1], got %v", c.Analysis.HotPathThreshold)
	}
	if _, err := formula.ParseMissingPolicy(c.Analysis.MissingMetrics); err != nil {
		return err
	}

	switch c.Telemetry.Protocol {
	case "", "grpc", "http", "http/protobuf":
	default:
		return fmt.Errorf("unsupported telemetry protocol: %s", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio)
	}

	// Storage config validation is delegated to storage package
	return nil
}

// BuildOptions converts the analysis section into call-tree build options.
func (a AnalysisConfig) BuildOptions(logger utils.Logger) (*calltree.Options, error) {
	policy, err := formula.ParseMissingPolicy(a.MissingMetrics)
	if err != nil {
		return nil, err
	}

	opts := calltree.DefaultOptions()
	if a.MaxDepth > 0 {
		opts.MaxDepth = calltree.Depth(a.MaxDepth)
	}
	opts.ElideCallsites = a.ElideCallsites
	if len(a.RatioMetrics) > 0 {
		opts.RatioBaseMetrics = append([]string(nil), a.RatioMetrics...)
	}
	if a.HotPathThreshold > 0 {
		opts.HotPathThreshold = a.HotPathThreshold
	}
	if a.HotPathMetric != "" {
		opts.HotPathBaseMetric = a.HotPathMetric
	}
	opts.MissingPolicy = policy
	opts.Logger = logger
	return opts, nil
}

// NewLogger builds the logger described by the log section.
func (l LogConfig) NewLogger() (utils.Logger, error) {
	level := utils.ParseLogLevel(l.Level)
	format := utils.ParseLogFormat(l.Format)
	if l.OutputPath == "" {
		return utils.NewLogger(level, format, os.Stderr), nil
	}
	return utils.NewFileLogger(level, format, filepath.Join(l.OutputPath, "hpc-analysis.log"))
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Analysis.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Analysis.DataDir, 0755)
}

// GetRunDir returns the run-specific directory path.
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.Analysis.DataDir, runID)
}
