// Public domain.

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nishamrutha/chronostar/internal/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, "warn", VerbosityLevel("warn", 0))
	assert.Equal(t, "info", VerbosityLevel("warn", 1))
	assert.Equal(t, "debug", VerbosityLevel("info", 1))
	assert.Equal(t, "debug", VerbosityLevel("warn", 2))
}

func TestNewConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	l, err := New(Options{Level: "info", Console: &buf, Dir: dir})
	require.NoError(t, err)
	l.Info("fitting", zap.Int(FieldNComps, 2))
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	assert.Contains(t, buf.String(), "fitting")
	assert.NotContains(t, buf.String(), "hidden")

	b, err := os.ReadFile(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ncomps":2`)
}

func TestNop(t *testing.T) {
	assert.NotNil(t, Nop(nil))
	l := zap.NewExample()
	assert.Same(t, l, Nop(l))
}
