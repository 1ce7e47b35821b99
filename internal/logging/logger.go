// Package logging wraps a process-wide zap logger. Output is JSON or a
// colored console format, and the standard library logger (which go-fuse
// writes its diagnostics to) is routed into it.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// Field is a structured logging field.
type Field = zap.Field

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text

	// Output defaults to stderr so that stdout stays free for the caller.
	Output io.Writer
}

func init() {
	// Usable before Init, e.g. from tests.
	logger, _ = zap.NewDevelopment()
}

// Init replaces the global logger. It also captures the standard library
// logger, so it should run before the filesystem is mounted.
func Init(cfg *Config) error {
	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), parseLevel(cfg.Level))
	logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	log.SetFlags(0)
	log.SetOutput(stdLogWriter{})
	return nil
}

// stdLogWriter feeds standard library log lines into zap. go-fuse request
// tracing ("rx 12: LOOKUP ...", "tx 12: OK ...") is logged at debug level,
// everything else at warn.
type stdLogWriter struct{}

func (stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if strings.HasPrefix(msg, "rx ") || strings.HasPrefix(msg, "tx ") {
		logger.Debug(msg, zap.String("source", "go-fuse"))
	} else {
		logger.Warn(msg, zap.String("source", "stdlib"))
	}
	return len(p), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if strings.ToLower(format) == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return logger.Sync()
}

// With attaches fields to every later entry of the global logger,
// e.g. the mount session id.
func With(fields ...Field) {
	logger = logger.With(fields...)
}

// DebugEnabled reports whether debug entries are written.
func DebugEnabled() bool {
	return logger.Core().Enabled(zapcore.DebugLevel)
}

// Debug, Info, Warn and Error log at the matching level.
func Debug(msg string, fields ...Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...Field) { logger.Info(msg, fields...) }
func Warn(msg string, fields ...Field) { logger.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { logger.Error(msg, fields...) }

// Fatal logs at FatalLevel, then calls os.Exit(1).
func Fatal(msg string, fields ...Field) { logger.Fatal(msg, fields...) }

// Field constructors.
func String(key, value string) Field { return zap.String(key, value) }
func Strings(key string, values []string) Field { return zap.Strings(key, values) }
func Int(key string, value int) Field { return zap.Int(key, value) }
func Int64(key string, value int64) Field { return zap.Int64(key, value) }
func Bool(key string, value bool) Field { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Any(key string, value any) Field { return zap.Any(key, value) }

// Err creates an error field with key "error".
func Err(err error) Field { return zap.Error(err) }

// Errno creates an "errno" field holding the error text, e.g.
// "no such file or directory".
func Errno(errno syscall.Errno) Field {
	return zap.String("errno", errno.Error())
}
