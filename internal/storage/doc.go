// Package storage owns the shared SQLite database backing the artifact
// registry and the job queue. It applies connection pragmas, guards the
// schema version, and provides busy-retry and transaction helpers so
// the two stores can participate in a single atomic commit.
package storage
