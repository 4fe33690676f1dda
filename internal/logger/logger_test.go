package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "local defaults to debug", env: "local", enabled: zapcore.DebugLevel},
		{name: "prod defaults to info", env: "prod", enabled: zapcore.InfoLevel},
		{name: "level override", env: "dev", level: "warn", enabled: zapcore.WarnLevel},
		{name: "unknown env", env: "staging", wantErr: true},
		{name: "bad level", env: "local", level: "loud", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewLogger(tc.env, tc.level)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tc.enabled))
			assert.False(t, l.Core().Enabled(tc.enabled-1))
		})
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	l, err := NewFileLogger(path, "debug")
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Sync())
	assert.FileExists(t, path)
}

func TestFromContext(t *testing.T) {
	base := zap.NewExample()
	assert.Same(t, base, FromContext(context.Background(), base))
	assert.NotNil(t, FromContext(context.Background(), nil))

	scoped := base.With(zap.String("request_id", "abc"))
	ctx := ContextWithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, base))
}
