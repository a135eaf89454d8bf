// Package logging builds slog loggers with clipforge conventions: a
// console handler for interactive use, a JSON handler for machine
// consumption, and context-derived fields (artifact, job, correlation
// id) attached uniformly across components.
package logging
