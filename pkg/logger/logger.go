// Package logger wraps zap with the fields this service tags its entries with.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger embeds *zap.Logger and shares one adjustable level across its children.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Options configures Build.
type Options struct {
	Level   zapcore.Level
	Console bool
	Output  zapcore.WriteSyncer
}

// Build assembles a logger. Output defaults to stdout.
func Build(o Options) *Logger {
	out := o.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}

	var enc zapcore.Encoder
	if o.Console {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	} else {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeDuration = zapcore.MillisDurationEncoder
		enc = zapcore.NewJSONEncoder(ec)
	}

	level := zap.NewAtomicLevelAt(o.Level)
	core := zapcore.NewCore(enc, out, level)
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		level:  level,
	}
}

// ForEnv returns a console logger for "development" and JSON otherwise.
func ForEnv(env, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return Build(Options{Level: lvl, Console: env == "development"}), nil
}

// ParseLevel accepts zap level names plus "warning". Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// SetLevel changes the level of l and every logger derived from it.
func (l *Logger) SetLevel(lvl zapcore.Level) {
	l.level.SetLevel(lvl)
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), level: l.level}
}

func (l *Logger) ForConversation(conversationID string) *Logger {
	return l.With(zap.String("conversation_id", conversationID))
}

// WithRequest tags entries with the correlation id and, for operator calls, the operator.
func (l *Logger) WithRequest(correlationID, operatorID string) *Logger {
	if operatorID == "" {
		return l.With(zap.String("correlation_id", correlationID))
	}
	return l.With(zap.String("correlation_id", correlationID), zap.String("operator_id", operatorID))
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(Build(Options{Level: zapcore.InfoLevel, Console: os.Getenv("ENV") == "development"}))
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global.Load()
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}
