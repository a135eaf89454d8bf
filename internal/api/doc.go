// Package api defines wire-format types and converters for the HTTP
// surface. It translates internal artifact and job models into
// transport-friendly DTOs so clients never couple to internal types,
// and ships the small HTTP client the CLI uses to talk to the daemon.
//
// DTOs use camelCase JSON tags. Internal enums (artifact.Status,
// jobqueue.Kind, jobqueue.State) are exposed as lowercase strings.
// Timestamps use RFC3339.
package api
