// Package logger provides the process-wide structured logger.
//
// Calls take a message followed by key/value pairs. Values under keys that
// look like email or recipient fields, and any email embedded in other
// string values, are masked before they reach the encoder.
package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level.
type Config struct {
	// Format is "json" (default) or "console".
	Format string `yaml:"format"`
	// Level is "debug", "info" (default), "warn" or "error".
	Level string `yaml:"level"`
	// RedactPII masks email addresses in log values. Defaults to true.
	RedactPII *bool `yaml:"redact_pii"`
	// Service is attached to every entry when set.
	Service string `yaml:"service"`
}

var (
	mu        sync.RWMutex
	base      = mustBuild(Config{})
	redactPII = true
)

// Init replaces the default logger.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = l
	redactPII = cfg.RedactPII == nil || *cfg.RedactPII
	return nil
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	redactPII = r
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// Zap exposes the underlying logger for libraries that need one.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { log(zapcore.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { log(zapcore.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { log(zapcore.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { log(zapcore.ErrorLevel, msg, fields...) }

func log(level zapcore.Level, msg string, fields ...interface{}) {
	mu.RLock()
	l, redact := base, redactPII
	mu.RUnlock()

	if ce := l.Check(level, msg); ce != nil {
		ce.Write(toFields(redact, fields)...)
	}
}

func toFields(redact bool, kv []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i < len(kv)-1; i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		switch v := kv[i+1].(type) {
		case error:
			val := v.Error()
			if redact {
				val = redactPIIValue(key, val)
			}
			out = append(out, zap.String(key, val))
		case string:
			if redact {
				v = redactPIIValue(key, v)
			}
			out = append(out, zap.String(key, v))
		case fmt.Stringer:
			val := v.String()
			if redact {
				val = redactPIIValue(key, val)
			}
			out = append(out, zap.String(key, val))
		default:
			out = append(out, zap.Any(key, v))
		}
	}
	return out
}

func build(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zcfg.Sampling = nil
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Skip log() and the exported wrapper.
	l, err := zcfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return l, nil
}

func mustBuild(cfg Config) *zap.Logger {
	l, err := build(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") {
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return val
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
