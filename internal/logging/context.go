package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldArtifactID is the standardized structured logging key for artifact identifiers.
	FieldArtifactID = "artifact_id"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldJobKind is the standardized structured logging key for transform kinds.
	FieldJobKind = "kind"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log records for downstream filtering.
	FieldEventType = "event_type"
)

type contextKey int

const (
	artifactIDKey contextKey = iota
	jobIDKey
	correlationIDKey
)

// WithArtifactID stores an artifact identifier on the context.
func WithArtifactID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, artifactIDKey, id)
}

// WithJobID stores a job identifier on the context.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithCorrelationID stores a request correlation identifier on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := ctx.Value(artifactIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldArtifactID, id))
	}
	if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
