// Package utils holds the leveled logger shared by the CLI, the viewer and
// the analysis pipeline.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the minimum severity a logger writes.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel parses a level name. Unknown names select info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogFormat selects the line encoding.
type LogFormat string

const (
	// FormatText writes "time LEVEL message {fields}" lines.
	FormatText LogFormat = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON LogFormat = "json"
)

// ParseLogFormat parses a format name. Unknown names select text.
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// Logger is the logging interface used throughout the module. Messages are
// printf templates when args are given and literal text otherwise.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// ZapLogger implements Logger on a zap sugared logger. Children created by
// WithField share the parent's level.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewLogger creates a logger writing format-encoded lines to output.
// A nil output means stderr.
func NewLogger(level LogLevel, format LogFormat, output io.Writer) *ZapLogger {
	if output == nil {
		output = os.Stderr
	}
	atom := zap.NewAtomicLevelAt(level.zap())
	core := zapcore.NewCore(newEncoder(format, output), zapcore.Lock(zapcore.AddSync(output)), atom)
	return &ZapLogger{sugar: zap.New(core).Sugar(), level: atom}
}

// NewDefaultLogger creates a text logger.
func NewDefaultLogger(level LogLevel, output io.Writer) *ZapLogger {
	return NewLogger(level, FormatText, output)
}

// NewFileLogger creates a logger appending to logPath.
func NewFileLogger(level LogLevel, format LogFormat, logPath string) (*ZapLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(level, format, file), nil
}

func newEncoder(format LogFormat, output io.Writer) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.MessageKey = "msg"
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if format == FormatJSON {
		cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	if f, ok := output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

// SetLevel changes the level of l and every logger derived from it.
func (l *ZapLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zap())
}

// Sync flushes buffered output.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugf(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{}) { l.sugar.Infof(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{}) { l.sugar.Warnf(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorf(msg, args...) }

// WithField returns a child logger that adds key to every line.
func (l *ZapLogger) WithField(key string, value interface{}) Logger {
	return &ZapLogger{sugar: l.sugar.With(key, value), level: l.level}
}

// WithFields returns a child logger that adds fields, in key order, to
// every line.
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		kvs = append(kvs, k, fields[k])
	}
	return &ZapLogger{sugar: l.sugar.With(kvs...), level: l.level}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewDefaultLogger(LevelInfo, os.Stderr)
)

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) Debug(msg string, args ...interface{}) {}
func (l *NullLogger) Info(msg string, args ...interface{}) {}
func (l *NullLogger) Warn(msg string, args ...interface{}) {}
func (l *NullLogger) Error(msg string, args ...interface{}) {}
func (l *NullLogger) WithField(key string, value interface{}) Logger { return l }
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger { return l }
