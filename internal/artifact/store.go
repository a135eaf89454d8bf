package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/storage"
)

// Store manages artifact persistence backed by the shared pipeline database.
type Store struct {
	db *storage.DB
}

// NewStore constructs a Store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

const artifactColumns = "id, source_path, current_path, duration_seconds, status, error_message, created_at, updated_at"

// Create inserts a freshly ingested artifact in the uploaded state.
// CurrentPath starts equal to SourcePath: before any transform, the most
// recently produced usable bytes are the original upload.
func (s *Store) Create(ctx context.Context, sourcePath string, durationSeconds float64) (*Artifact, error) {
	if sourcePath == "" {
		return nil, errors.New("source path is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	if _, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO artifacts (id, source_path, current_path, duration_seconds, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		sourcePath,
		sourcePath,
		durationSeconds,
		StatusUploaded,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches an artifact by identifier. Returns ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	art, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return art, nil
}

// List returns artifacts filtered by status set (or all when none given),
// oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Artifact, error) {
	baseQuery := `SELECT ` + artifactColumns + ` FROM artifacts`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.Query(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.Query(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, rows.Err()
}

// Transition performs an atomic compare-and-set of status. It fails with
// ErrInvalidState when the artifact is not currently in the from state,
// which is the per-artifact serialization point for concurrent writers.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	return s.transition(ctx, s.db.ExecRetry, id, from, to)
}

// TransitionTx is Transition inside a caller-owned transaction.
func (s *Store) TransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to Status) error {
	exec := func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.transition(ctx, exec, id, from, to)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *Store) transition(ctx context.Context, exec execFunc, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return InvalidStateError(id, from, fmt.Sprintf("transition to %s is not permitted", to))
	}

	res, err := exec(
		ctx,
		`UPDATE artifacts SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.getStatus(ctx, id)
		if getErr != nil {
			return getErr
		}
		return InvalidStateError(id, current, fmt.Sprintf("expected %s", from))
	}
	return nil
}

// CompleteTransform atomically moves a processing artifact to its terminal
// status and swaps current_path to the new output. Status and path can
// never disagree because they change in one statement.
func (s *Store) CompleteTransform(ctx context.Context, id string, to Status, outputPath string) error {
	return s.completeTransform(ctx, s.db.ExecRetry, id, to, outputPath)
}

// CompleteTransformTx is CompleteTransform inside a caller-owned transaction.
func (s *Store) CompleteTransformTx(ctx context.Context, tx *sql.Tx, id string, to Status, outputPath string) error {
	exec := func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.completeTransform(ctx, exec, id, to, outputPath)
}

func (s *Store) completeTransform(ctx context.Context, exec execFunc, id string, to Status, outputPath string) error {
	if !CanTransition(StatusProcessing, to) {
		return InvalidStateError(id, StatusProcessing, fmt.Sprintf("transition to %s is not permitted", to))
	}
	res, err := exec(
		ctx,
		`UPDATE artifacts SET status = ?, current_path = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		to,
		outputPath,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete transform: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.getStatus(ctx, id)
		if getErr != nil {
			return getErr
		}
		return InvalidStateError(id, current, "expected processing")
	}
	return nil
}

// MarkFailed moves a queued or processing artifact to failed and records the
// error message. CurrentPath is untouched so the last good bytes remain
// downloadable.
func (s *Store) MarkFailed(ctx context.Context, id string, message string) error {
	return s.markFailed(ctx, s.db.ExecRetry, id, message)
}

// MarkFailedTx is MarkFailed inside a caller-owned transaction.
func (s *Store) MarkFailedTx(ctx context.Context, tx *sql.Tx, id string, message string) error {
	exec := func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.markFailed(ctx, exec, id, message)
}

func (s *Store) markFailed(ctx context.Context, exec execFunc, id string, message string) error {
	res, err := exec(
		ctx,
		`UPDATE artifacts SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusQueued,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.getStatus(ctx, id)
		if getErr != nil {
			return getErr
		}
		return InvalidStateError(id, current, "expected queued or processing")
	}
	return nil
}

func (s *Store) getStatus(ctx context.Context, id string) (Status, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT status FROM artifacts WHERE id = ?`, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("get artifact status: %w", err)
	}
	return Status(value), nil
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		id           string
		sourcePath   string
		currentPath  string
		duration     float64
		statusStr    string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &sourcePath, &currentPath, &duration, &statusStr, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	art := &Artifact{
		ID:              id,
		SourcePath:      sourcePath,
		CurrentPath:     currentPath,
		DurationSeconds: duration,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		art.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		art.UpdatedAt = updated
	}
	return art, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
