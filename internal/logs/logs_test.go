// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/expression-learner/pkg/types"
)

func withCgroup(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cgroup")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	old := cgroupFile
	cgroupFile = path
	t.Cleanup(func() { cgroupFile = old })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_TextAndFile(t *testing.T) {
	withCgroup(t, "0::/user.slice/user-1000.slice/session-2.scope\n")

	logFile := filepath.Join(t.TempDir(), "app.log")
	var buf bytes.Buffer
	logger, closeFn, err := New(types.LogConfig{Level: "info", File: logFile}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("chat turn completed", "session_id", "abc", "expressions", 2)
	require.NoError(t, closeFn())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "chat turn completed")
	assert.Contains(t, buf.String(), "session_id=abc")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "chat turn completed", record["msg"])
	assert.Equal(t, float64(2), record["expressions"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, _, err := New(types.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestIsSystemdService(t *testing.T) {
	withCgroup(t, "0::/system.slice/expression-learner.service/main\n")
	assert.True(t, isSystemdService())

	withCgroup(t, "0::/user.slice/session-2.scope\n")
	assert.False(t, isSystemdService())
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "SESSION_ID", journalKey("session_id"))
	assert.Equal(t, "HTTP_STATUS", journalKey("http.status"))
}

func TestJournalOptions(t *testing.T) {
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelWarn} {
		opts := journalOptions(level)
		require.NotNil(t, opts.Level)
		assert.Equal(t, level, opts.Level.Level())
	}

	opts := journalOptions(slog.LevelInfo)
	assert.Equal(t, "REQUEST", opts.ReplaceGroup("request"))
	assert.Equal(t, "TURN_COUNT", opts.ReplaceAttr(nil, slog.Int("turn-count", 1)).Key)
}
