package main

import (
	"context"
	"testing"

	"clipforge/internal/logging"
	"clipforge/internal/testsupport"
)

func TestBuildDaemonWiresEverything(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	d, err := buildDaemon(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildDaemon: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.Workers != cfg.Workers.Count {
		t.Fatalf("expected %d workers, got %d", cfg.Workers.Count, status.Workers)
	}
	d.Stop()
}
