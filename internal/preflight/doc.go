// Package preflight provides readiness checks for the binaries,
// directories, and disk space the pipeline depends on. The daemon runs
// them at startup and refuses to start when a required check fails; the
// CLI status command reruns them on demand.
package preflight
