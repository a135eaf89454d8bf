package testsupport

import (
	"context"
	"testing"

	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/storage"
)

// MustOpenDB opens the pipeline database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewArtifact creates an uploaded artifact for tests using the provided store.
func NewArtifact(t testing.TB, store *artifact.Store, sourcePath string, duration float64) *artifact.Artifact {
	t.Helper()

	art, err := store.Create(context.Background(), sourcePath, duration)
	if err != nil {
		t.Fatalf("artifact.Create: %v", err)
	}
	return art
}
