package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactEmail(tt.in), tt.in)
	}
}

func TestRedactPIIValue(t *testing.T) {
	assert.Equal(t, "jo***@example.com", redactPIIValue("email", "john@example.com"))
	assert.Equal(t, "42", redactPIIValue("recipient_id", "42"))
	assert.Equal(t, "sent to jo***@example.com ok", redactPIIValue("msg", "sent to john@example.com ok"))
}

func TestLogWritesRedactedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mu.Lock()
	prev := base
	base = zap.New(core)
	redactPII = true
	mu.Unlock()
	defer func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	}()

	Info("dispatch created", "dispatch_id", int64(7), "email", "john@example.com", "err", errors.New("bounce for john@example.com"))
	Debug("debug entry")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(7), fields["dispatch_id"])
		assert.Equal(t, "jo***@example.com", fields["email"])
		assert.Equal(t, "bounce for jo***@example.com", fields["err"])
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestInit(t *testing.T) {
	off := false
	assert.NoError(t, Init(Config{Format: "console", Level: "warn", RedactPII: &off, Service: "test"}))
	mu.RLock()
	assert.False(t, redactPII)
	mu.RUnlock()
	assert.NoError(t, Init(Config{}))
	mu.RLock()
	assert.True(t, redactPII)
	mu.RUnlock()
}
