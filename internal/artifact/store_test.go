package artifact_test

import (
	"context"
	"errors"
	"testing"

	"clipforge/internal/artifact"
	"clipforge/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	ctx := context.Background()
	art, err := store.Create(ctx, "/videos/source.mp4", 12.5)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if art.ID == "" {
		t.Fatal("expected artifact ID to be assigned")
	}
	if art.Status != artifact.StatusUploaded {
		t.Fatalf("expected uploaded status, got %s", art.Status)
	}
	if art.CurrentPath != art.SourcePath {
		t.Fatalf("expected current path to start at source, got %q vs %q", art.CurrentPath, art.SourcePath)
	}

	fetched, err := store.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.DurationSeconds != 12.5 {
		t.Fatalf("unexpected duration: %v", fetched.DurationSeconds)
	}
}

func TestGetByIDUnknownReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionCompareAndSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	ctx := context.Background()
	art := testsupport.NewArtifact(t, store, "/videos/a.mp4", 1)

	if err := store.Transition(ctx, art.ID, artifact.StatusUploaded, artifact.StatusQueued); err != nil {
		t.Fatalf("Transition uploaded->queued failed: %v", err)
	}

	// Second CAS from uploaded must lose: the artifact is now queued.
	err := store.Transition(ctx, art.ID, artifact.StatusUploaded, artifact.StatusQueued)
	if !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for stale CAS, got %v", err)
	}
}

func TestTransitionRejectsTableViolations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	art := testsupport.NewArtifact(t, store, "/videos/a.mp4", 1)

	err := store.Transition(context.Background(), art.ID, artifact.StatusUploaded, artifact.StatusRendered)
	if !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for uploaded->rendered, got %v", err)
	}
}

func TestCompleteTransformSwapsPathAndStatusTogether(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	ctx := context.Background()
	art := testsupport.NewArtifact(t, store, "/videos/a.mp4", 1)
	if err := store.Transition(ctx, art.ID, artifact.StatusUploaded, artifact.StatusQueued); err != nil {
		t.Fatalf("to queued: %v", err)
	}
	if err := store.Transition(ctx, art.ID, artifact.StatusQueued, artifact.StatusProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}

	if err := store.CompleteTransform(ctx, art.ID, artifact.StatusTrimmed, "/outputs/trimmed-1.mp4"); err != nil {
		t.Fatalf("CompleteTransform failed: %v", err)
	}

	updated, err := store.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != artifact.StatusTrimmed {
		t.Fatalf("expected trimmed, got %s", updated.Status)
	}
	if updated.CurrentPath != "/outputs/trimmed-1.mp4" {
		t.Fatalf("expected swapped current path, got %q", updated.CurrentPath)
	}

	// A duplicate completion must be a no-op rejection: no longer processing.
	err = store.CompleteTransform(ctx, art.ID, artifact.StatusTrimmed, "/outputs/trimmed-2.mp4")
	if !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on duplicate completion, got %v", err)
	}
	again, _ := store.GetByID(ctx, art.ID)
	if again.CurrentPath != "/outputs/trimmed-1.mp4" {
		t.Fatalf("duplicate completion mutated current path: %q", again.CurrentPath)
	}
}

func TestMarkFailedKeepsCurrentPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	ctx := context.Background()
	art := testsupport.NewArtifact(t, store, "/videos/a.mp4", 1)
	if err := store.Transition(ctx, art.ID, artifact.StatusUploaded, artifact.StatusQueued); err != nil {
		t.Fatalf("to queued: %v", err)
	}

	if err := store.MarkFailed(ctx, art.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	updated, err := store.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != artifact.StatusFailed || updated.ErrorMessage != "boom" {
		t.Fatalf("unexpected failed state: %+v", updated)
	}
	if updated.CurrentPath != "/videos/a.mp4" {
		t.Fatalf("MarkFailed must not touch current path, got %q", updated.CurrentPath)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := artifact.NewStore(db)

	ctx := context.Background()
	a := testsupport.NewArtifact(t, store, "/videos/a.mp4", 1)
	testsupport.NewArtifact(t, store, "/videos/b.mp4", 1)
	if err := store.Transition(ctx, a.ID, artifact.StatusUploaded, artifact.StatusQueued); err != nil {
		t.Fatalf("to queued: %v", err)
	}

	queued, err := store.List(ctx, artifact.StatusQueued)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != a.ID {
		t.Fatalf("unexpected queued list: %+v", queued)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(all))
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := artifact.ParseStatus(" Rendered "); !ok || status != artifact.StatusRendered {
		t.Fatalf("expected rendered, got %s ok=%v", status, ok)
	}
	if _, ok := artifact.ParseStatus("bogus"); ok {
		t.Fatal("expected bogus status to be rejected")
	}
}
