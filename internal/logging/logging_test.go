package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := WithLogger(context.Background(), WithRunID(logger, "run-1"))

	l := FromContext(ctx)
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"run_id":"run-1"`) {
		t.Errorf("log = %s", buf.String())
	}

	// A bare context yields a no-op logger.
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
}

func TestEventHelpers(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogScanMatch(logger, "2330", "chip", 800, 1.5, "net buy 12%")
	LogFetch(logger, "twse", time.Second, errors.New("boom"))
	LogSignal(logger, "2330.TW", time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), 9.8)

	out := buf.String()
	for _, want := range []string{`"event":"scan_match"`, `"code":"2330"`, `"event":"fetch"`, `"error":"boom"`, `"event":"signal"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "screener.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1})
	logger.Info().Msg("written")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	if !strings.HasSuffix(DefaultLogPath(), filepath.Join("tw-screener", "logs", "screener.log")) {
		t.Errorf("DefaultLogPath = %s", DefaultLogPath())
	}
}
