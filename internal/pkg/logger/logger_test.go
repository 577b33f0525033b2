package logger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fresh puts the package back into its pre-Init state for the duration of t.
func fresh(t *testing.T) {
	t.Helper()
	reset := func() {
		mu.Lock()
		global = nil
		mu.Unlock()
		once = sync.Once{}
		atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	reset()
	t.Cleanup(reset)
}

func TestInitLevels(t *testing.T) {
	for _, tc := range []struct {
		level, format string
		want          zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"info", "json", zapcore.InfoLevel},
		{"warn", "json", zapcore.WarnLevel},
		{"error", "console", zapcore.ErrorLevel},
	} {
		t.Run(tc.level+"/"+tc.format, func(t *testing.T) {
			fresh(t)
			require.NoError(t, Init(tc.level, tc.format))
			assert.Equal(t, tc.want, GetLevel())
		})
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	fresh(t)
	err := Init("verbose", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}

func TestInitOnlyOnce(t *testing.T) {
	fresh(t)
	require.NoError(t, Init("warn", "json"))
	require.NoError(t, Init("debug", "console"))
	assert.Equal(t, zapcore.WarnLevel, GetLevel())
}

func TestSetLevel(t *testing.T) {
	fresh(t)
	require.NoError(t, Init("info", "json"))

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, GetLevel())
	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, GetLevel())
}

func TestUsableBeforeInit(t *testing.T) {
	fresh(t)
	require.NotNil(t, L())
	require.NotNil(t, S())
	assert.NotPanics(t, func() {
		Debug("dropped")
		Info("dropped")
		With(zap.String("k", "v")).Info("dropped")
	})
	assert.NoError(t, Sync())
}

func TestReplace(t *testing.T) {
	fresh(t)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))

	Warn("send failed", zap.String("channel", "sms"), zap.String("notification_id", "n-1"))
	With(zap.String("user_id", "amy")).Info("pushed")
	restore()
	Error("after restore")

	failed := logs.FilterMessage("send failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, map[string]any{"channel": "sms", "notification_id": "n-1"}, failed[0].ContextMap())

	pushed := logs.FilterField(zap.String("user_id", "amy")).All()
	require.Len(t, pushed, 1)
	assert.Equal(t, "pushed", pushed[0].Message)

	assert.Zero(t, logs.FilterMessage("after restore").Len())
}

func TestHandler(t *testing.T) {
	fresh(t)
	require.NoError(t, Init("warn", "json"))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/log/level", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"warn"`)

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/log/level", strings.NewReader(`{"level":"debug"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zapcore.DebugLevel, GetLevel())
}
