package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// resetLogger resets the global logger instance for testing
func resetLogger() {
	logger = nil
	once = sync.Once{}
}

func TestGetLogger_Fallback(t *testing.T) {
	resetLogger()
	l := GetLogger()
	assert.NotNil(t, l, "GetLogger should return a fallback logger if not initialized")
}

func TestGetLogger_Singleton(t *testing.T) {
	resetLogger()
	err := Initialize(true)
	assert.NoError(t, err)

	l1 := GetLogger()
	l2 := GetLogger()
	assert.Equal(t, l1, l2, "GetLogger should return the same instance after initialization")
}

func TestContextFields(t *testing.T) {
	resetLogger()

	core, logs := observer.New(zap.InfoLevel)
	logger = zap.New(core)

	Info(context.Background(), "bare")
	assert.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "chatd", fields["service"])

	ctx := context.WithValue(context.Background(), SessionIDKey, "s-1")
	ctx = context.WithValue(ctx, UsernameKey, "alice")
	ctx = context.WithValue(ctx, RoomKey, "den")
	Info(ctx, "tagged")

	fields = logs.All()[1].ContextMap()
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, "den", fields["room"])
}

func TestRedactAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"10.0.0.1:51234", "***:51234"},
		{"[::1]:9000", "***:9000"},
		{"no-port", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactAddr(tt.in), "RedactAddr(%q)", tt.in)
	}
}
