package logger

import (
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the component helpers used across services.
type Logger struct {
	*zap.Logger
}

type Config struct {
	Level       string
	Environment string
	Encoding    string // json or console
}

func New(cfg Config) *Logger {
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
		if cfg.Environment == "production" {
			cfg.Encoding = "json"
		}
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Environment == "production" {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), ParseLevel(cfg.Level))
	return &Logger{Logger: zap.New(core, zap.AddCaller())}
}

// Nop discards everything. Used by tests and optional collaborators.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

func (l *Logger) WithRace(raceID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("race_id", raceID))}
}

func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Watermill adapts the logger to watermill.LoggerAdapter.
func (l *Logger) Watermill() watermill.LoggerAdapter {
	return &watermillAdapter{log: l.Logger}
}

type watermillAdapter struct {
	log *zap.Logger
}

func (w *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (w *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.log.Info(msg, zapFields(fields)...)
}

func (w *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, zapFields(fields)...)
}

func (w *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, zapFields(fields)...)
}

func (w *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: w.log.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
