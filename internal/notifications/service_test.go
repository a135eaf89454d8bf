package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTransformCompleted(context.Background(), "vid-1", "trim"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	var captured struct {
		title    string
		tags     string
		priority string
		body     string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		captured.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeoutSeconds = 5
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyTransformCompleted(context.Background(), "vid-1", "render"); err != nil {
		t.Fatalf("notification returned error: %v", err)
	}
	if captured.title != "Clipforge - Transform Complete" {
		t.Fatalf("unexpected title %q", captured.title)
	}
	if captured.body != "render finished for video vid-1" {
		t.Fatalf("unexpected message %q", captured.body)
	}
	if captured.tags != "clipforge,render,completed" {
		t.Fatalf("unexpected tags %q", captured.tags)
	}
	if captured.priority != "" {
		t.Fatalf("unexpected priority %q", captured.priority)
	}

	if err := svc.NotifyTransformFailed(context.Background(), "vid-2", "subtitle", "boom"); err != nil {
		t.Fatalf("notification returned error: %v", err)
	}
	if captured.body != "subtitle failed for video vid-2: boom" {
		t.Fatalf("unexpected failure message %q", captured.body)
	}
	if captured.priority != "high" {
		t.Fatalf("expected high priority, got %q", captured.priority)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic rejected", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}
