package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.With(String(FieldComponent, "worker-pool")).Info("job claimed", String(FieldJobID, "abc"))

	out := buf.String()
	if !strings.Contains(out, "INFO worker-pool: job claimed") {
		t.Fatalf("unexpected console output: %q", out)
	}
	if !strings.Contains(out, "job_id=abc") {
		t.Fatalf("expected job_id attribute, got %q", out)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Error("transform failed", String("error_message", "exit status 1"))

	if !strings.Contains(buf.String(), `error_message="exit status 1"`) {
		t.Fatalf("expected quoted attribute, got %q", buf.String())
	}
}

func TestWithContextAttachesIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := WithArtifactID(context.Background(), "art-1")
	ctx = WithJobID(ctx, "job-1")
	WithContext(ctx, logger).Info("processing")

	out := buf.String()
	if !strings.Contains(out, "artifact_id=art-1") || !strings.Contains(out, "job_id=job-1") {
		t.Fatalf("expected context fields, got %q", out)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if parseLevel("bogus") != slog.LevelInfo {
		t.Fatal("expected unknown level to map to info")
	}
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("expected debug level")
	}
}
