package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and restores the
// previous settings on cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	originalLevel := currentLevel.Load()
	originalFormat := currentFormat.Load()
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		currentLevel.Store(originalLevel)
		currentFormat.Store(originalFormat)
		reconfigure()
	})

	return buf
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tc.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tc.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tc.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("IsCaseInsensitive", func(t *testing.T) {
		buf := captureOutput(t)

		SetLevel("debug")
		Debug("first")
		SetLevel("DeBuG")
		Debug("second")

		assert.Contains(t, buf.String(), "first")
		assert.Contains(t, buf.String(), "second")
		assert.Equal(t, LevelDebug, GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		buf := captureOutput(t)

		SetLevel("INFO")
		SetLevel("INVALID")
		Debug("hidden")
		Info("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
		assert.Equal(t, LevelInfo, GetLevel())
	})
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" warning ")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

// ============================================================================
// Formatting Tests
// ============================================================================

func TestTextFormat(t *testing.T) {
	t.Run("IncludesTimestampLevelAndFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("startup complete", KeyTask, "startup", "count", 3)

		out := buf.String()
		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] startup complete`, out)
		assert.Contains(t, out, "task=startup")
		assert.Contains(t, out, "count=3")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf := captureOutput(t)

		Error("Startup failed", Err(errors.New("the front fell off")))

		assert.Contains(t, buf.String(), `error="the front fell off"`)
	})

	t.Run("DropsEmptyAttrs", func(t *testing.T) {
		buf := captureOutput(t)

		Info("no error", Err(nil))

		assert.NotContains(t, buf.String(), "error=")
	})

	t.Run("PromotesComponent", func(t *testing.T) {
		buf := captureOutput(t)

		l := With(KeyComponent, "conductor")
		l.Info("bound", KeyComponent, "ignored")
		Info("plain", KeyComponent, "wallet")

		out := buf.String()
		assert.Contains(t, out, "[INFO] [conductor] bound component=ignored")
		assert.Contains(t, out, "[INFO] [wallet] plain")
		assert.NotContains(t, out, "component=wallet")
	})

	t.Run("PrefixesGroups", func(t *testing.T) {
		buf := captureOutput(t)

		With(slog.Group("wallet", slog.String("type", "memory"))).Info("opened")
		getLogger().WithGroup("transport").Info("bound", "port", 8020)

		out := buf.String()
		assert.Contains(t, out, "wallet.type=memory")
		assert.Contains(t, out, "transport.port=8020")
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")

	Info("json message", KeyRunID, "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "json message", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "abc", entry[KeyRunID])
	assert.Contains(t, entry, "time")
}

func TestFormatSwitching(t *testing.T) {
	buf := captureOutput(t)

	SetFormat("text")
	Info("as text")
	SetFormat("xml")
	Info("still text")

	assert.NotContains(t, buf.String(), "{")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("InjectsLogContextFields", func(t *testing.T) {
		buf := captureOutput(t)

		lc := NewLogContext("run-1").WithTask("shutdown", "task-9").WithComponent("lifecycle")
		ctx := WithContext(context.Background(), lc)
		InfoCtx(ctx, "draining", KeyPending, 2)

		out := buf.String()
		assert.Contains(t, out, "run_id=run-1")
		assert.Contains(t, out, "task=shutdown")
		assert.Contains(t, out, "task_id=task-9")
		assert.Contains(t, out, "[INFO] [lifecycle] draining")
		assert.Contains(t, out, "pending=2")
		assert.Less(t, strings.Index(out, "run_id"), strings.Index(out, "pending"))
	})

	t.Run("NilContextHandled", func(t *testing.T) {
		buf := captureOutput(t)

		//nolint:staticcheck // exercising nil handling
		ErrorCtx(nil, "nil ctx")

		assert.Contains(t, buf.String(), "nil ctx")
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)

		WarnCtx(context.Background(), "plain")

		assert.Contains(t, buf.String(), "plain")
		assert.NotContains(t, buf.String(), "run_id")
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("run")
		c := lc.WithTask("startup", "1")

		assert.Empty(t, lc.Task)
		assert.Equal(t, "startup", c.Task)
		assert.Equal(t, "run", c.RunID)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithTrace("t", "s"))
		assert.Equal(t, "x", lc.WithTask("x", "1").Task)
		assert.Zero(t, lc.DurationMs())
	})

	t.Run("DurationMs", func(t *testing.T) {
		lc := NewLogContext("run")
		lc.StartTime = time.Now().Add(-50 * time.Millisecond)
		assert.GreaterOrEqual(t, lc.DurationMs(), 50.0)
	})
}

// ============================================================================
// Concurrency and Init Tests
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	var (
		wg sync.WaitGroup
		sb syncBuffer
	)
	InitWithWriter(&sb, "", "", false)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "goroutine", n, "iteration", j)
				if j%10 == 0 {
					SetLevel("INFO")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, strings.Count(sb.String(), "concurrent"))
	assert.Empty(t, buf.String())
}

func TestInit(t *testing.T) {
	t.Run("WritesToFile", func(t *testing.T) {
		_ = captureOutput(t)
		path := filepath.Join(t.TempDir(), "agentd.log")

		require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: path}))
		Debug("to file")
		require.NoError(t, Init(Config{Output: "stdout", Format: "text"}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"to file"`)
	})

	t.Run("FailsOnUnwritablePath", func(t *testing.T) {
		_ = captureOutput(t)
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
		assert.Error(t, err)
	})

	t.Run("EmptyConfigKeepsSettings", func(t *testing.T) {
		_ = captureOutput(t)
		SetLevel("WARN")
		require.NoError(t, Init(Config{}))
		assert.Equal(t, LevelWarn, GetLevel())
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
