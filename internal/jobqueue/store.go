package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/storage"
)

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// Store manages job persistence backed by the shared pipeline database.
type Store struct {
	db         *storage.DB
	visibility time.Duration
}

// NewStore constructs a Store. visibility is the lease granted to a
// dequeued job before it becomes claimable again.
func NewStore(db *storage.DB, visibility time.Duration) *Store {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &Store{db: db, visibility: visibility}
}

const jobColumns = "id, artifact_id, kind, params_json, attempts, state, lease_expires_at, claimed_at, error_message, created_at, updated_at"

// EnqueueTx inserts a pending job inside a caller-owned transaction. The
// caller pairs this with the artifact status transition so both effects
// commit atomically.
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, artifactID string, kind Kind, paramsJSON string) (string, error) {
	if artifactID == "" {
		return "", errors.New("artifact id is required")
	}
	if _, ok := kindSet[kind]; !ok {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO jobs (id, artifact_id, kind, params_json, attempts, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		id,
		artifactID,
		kind,
		paramsJSON,
		StatePending,
		timestamp,
		timestamp,
	); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// GetByID fetches a job by identifier. Returns ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Claim attempts to lease the oldest claimable job: pending and visible, or
// active with an expired lease (a consumer died mid-processing). Returns
// nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339Nano)

		var id string
		err := tx.QueryRowContext(
			ctx,
			`SELECT id FROM jobs
             WHERE (state = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?))
                OR (state = ? AND lease_expires_at <= ?)
             ORDER BY created_at LIMIT 1`,
			StatePending, nowStr,
			StateActive, nowStr,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claimable job: %w", err)
		}

		lease := now.Add(s.visibility).Format(time.RFC3339Nano)
		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs SET state = ?, attempts = attempts + 1, lease_expires_at = ?, claimed_at = ?, updated_at = ?
             WHERE id = ?`,
			StateActive,
			lease,
			nowStr,
			nowStr,
			id,
		)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil || affected == 0 {
			return fmt.Errorf("claim job %s: no row updated", id)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
		job, err := scanJob(row)
		if err != nil {
			return fmt.Errorf("read claimed job: %w", err)
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Dequeue blocks until a job is claimable or the context is canceled,
// polling at the provided interval.
func (s *Store) Dequeue(ctx context.Context, poll time.Duration) (*Job, error) {
	if poll <= 0 {
		poll = time.Second
	}
	for {
		job, err := s.Claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Nack releases an active job. Retryable failures return the job to
// pending, invisible until the backoff elapses; permanent failures move
// it to failed with the message recorded.
func (s *Store) Nack(ctx context.Context, id string, retryable bool, backoff time.Duration, message string) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if retryable {
		visibleAt := now.Add(backoff).Format(time.RFC3339Nano)
		res, err = s.db.ExecRetry(
			ctx,
			`UPDATE jobs SET state = ?, lease_expires_at = ?, error_message = ?, updated_at = ? WHERE id = ? AND state = ?`,
			StatePending,
			visibleAt,
			message,
			now.Format(time.RFC3339Nano),
			id,
			StateActive,
		)
	} else {
		res, err = s.db.ExecRetry(
			ctx,
			`UPDATE jobs SET state = ?, lease_expires_at = NULL, error_message = ?, updated_at = ? WHERE id = ? AND state = ?`,
			StateFailed,
			message,
			now.Format(time.RFC3339Nano),
			id,
			StateActive,
		)
	}
	if err != nil {
		return fmt.Errorf("nack job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s (or not active)", ErrNotFound, id)
	}
	return nil
}

// ExtendLease pushes out the visibility deadline for an active job. Workers
// call this on a heartbeat so long-running transforms are not reclaimed.
func (s *Store) ExtendLease(ctx context.Context, id string) error {
	if err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		lease := time.Now().UTC().Add(s.visibility).Format(time.RFC3339Nano)
		_, err := tx.ExecContext(
			ctx,
			`UPDATE jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ? AND state = ?`,
			lease,
			time.Now().UTC().Format(time.RFC3339Nano),
			id,
			StateActive,
		)
		return err
	}); err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	return nil
}

// ExpireOverdue force-fails jobs that have exhausted their attempts or
// overstayed the processing ceiling, and returns them so the caller can
// settle the owning artifacts. Jobs with attempts remaining are left for
// the claim query to redeliver.
func (s *Store) ExpireOverdue(ctx context.Context, maxAttempts int, maxProcessing time.Duration) ([]*Job, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)
	processingCutoff := now.Add(-maxProcessing).Format(time.RFC3339Nano)

	rows, err := s.db.Query(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE (state = ? AND lease_expires_at <= ? AND attempts >= ?)
            OR (state = ? AND claimed_at IS NOT NULL AND claimed_at <= ?)`,
		StateActive, nowStr, maxAttempts,
		StateActive, processingCutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue jobs: %w", err)
	}
	defer rows.Close()

	var overdue []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []*Job
	for _, job := range overdue {
		res, err := s.db.ExecRetry(
			ctx,
			`UPDATE jobs SET state = ?, lease_expires_at = NULL, error_message = ?, updated_at = ?
             WHERE id = ? AND state = ?`,
			StateFailed,
			"job exceeded processing limits",
			nowStr,
			job.ID,
			StateActive,
		)
		if err != nil {
			return expired, fmt.Errorf("expire job %s: %w", job.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			job.State = StateFailed
			expired = append(expired, job)
		}
	}
	return expired, nil
}

// Complete transitions a job to a terminal state if it is not already
// terminal. Returns false when the job was already settled, which callers
// treat as a duplicate delivery and ignore.
func (s *Store) Complete(ctx context.Context, id string, state State, message string) (bool, error) {
	return s.complete(ctx, s.db.ExecRetry, id, state, message)
}

// CompleteTx is Complete inside a caller-owned transaction, pairing the
// job settlement with the artifact settlement.
func (s *Store) CompleteTx(ctx context.Context, tx *sql.Tx, id string, state State, message string) (bool, error) {
	exec := func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.complete(ctx, exec, id, state, message)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *Store) complete(ctx context.Context, exec execFunc, id string, state State, message string) (bool, error) {
	if !state.IsTerminal() {
		return false, fmt.Errorf("state %q is not terminal", state)
	}
	res, err := exec(
		ctx,
		`UPDATE jobs SET state = ?, lease_expires_at = NULL, error_message = ?, updated_at = ?
         WHERE id = ? AND state IN (?, ?)`,
		state,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatePending,
		StateActive,
	)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByArtifact returns all jobs for an artifact, oldest first.
func (s *Store) ListByArtifact(ctx context.Context, artifactID string) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE artifact_id = ? ORDER BY created_at`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// List returns jobs filtered by state set (or all when none given), oldest first.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(states) == 0 {
		rows, err = s.db.Query(ctx, baseQuery+orderClause)
	} else {
		placeholders := make([]byte, 0, len(states)*2)
		args := make([]any, len(states))
		for i, state := range states {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = state
		}
		rows, err = s.db.Query(ctx, baseQuery+` WHERE state IN (`+string(placeholders)+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Counts returns the number of jobs per state.
func (s *Store) Counts(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.Query(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[State(state)] = count
	}
	return counts, rows.Err()
}

// ClearTerminal removes completed and failed jobs, returning the count.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecRetry(ctx, `DELETE FROM jobs WHERE state IN (?, ?)`, StateCompleted, StateFailed)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		artifactID   string
		kindStr      string
		paramsJSON   sql.NullString
		attempts     int
		stateStr     string
		leaseRaw     sql.NullString
		claimedRaw   sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &artifactID, &kindStr, &paramsJSON, &attempts, &stateStr, &leaseRaw, &claimedRaw, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		ArtifactID:   artifactID,
		Kind:         Kind(kindStr),
		ParamsJSON:   paramsJSON.String,
		Attempts:     attempts,
		State:        State(stateStr),
		ErrorMessage: errorMessage.String,
	}
	if leaseRaw.Valid {
		if lease, err := time.Parse(time.RFC3339Nano, leaseRaw.String); err == nil {
			job.LeaseExpiresAt = &lease
		}
	}
	if claimedRaw.Valid {
		if claimed, err := time.Parse(time.RFC3339Nano, claimedRaw.String); err == nil {
			job.ClaimedAt = &claimed
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
