package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"clipforge/internal/artifact"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/mediastore"
	"clipforge/internal/notifications"
	"clipforge/internal/storage"
	"clipforge/internal/transcode"
)

// ErrUnsupportedMedia indicates an upload ffprobe could not read or that
// carries no video stream.
var ErrUnsupportedMedia = errors.New("unsupported media")

// kindEligibility lists the artifact statuses each transform accepts.
// The ordering within each slice is the order shown in error messages.
var kindEligibility = map[jobqueue.Kind][]artifact.Status{
	jobqueue.KindTrim:     {artifact.StatusUploaded},
	jobqueue.KindSubtitle: {artifact.StatusUploaded, artifact.StatusTrimmed},
	jobqueue.KindRender:   {artifact.StatusUploaded, artifact.StatusTrimmed, artifact.StatusSubtitled},
}

// terminalStatus maps a transform kind to the status a successful run
// leaves the artifact in.
var terminalStatus = map[jobqueue.Kind]artifact.Status{
	jobqueue.KindTrim:     artifact.StatusTrimmed,
	jobqueue.KindSubtitle: artifact.StatusSubtitled,
	jobqueue.KindRender:   artifact.StatusRendered,
}

// Outcome reports how a claimed job ended.
type Outcome struct {
	Succeeded  bool
	OutputPath string
	Message    string
}

// Coordinator owns the artifact lifecycle.
type Coordinator struct {
	db          *storage.DB
	artifacts   *artifact.Store
	jobs        *jobqueue.Store
	media       *mediastore.Store
	probeBinary string
	notifier    notifications.Service
	logger      *slog.Logger
}

// NewCoordinator wires the coordinator over the shared database.
func NewCoordinator(db *storage.DB, artifacts *artifact.Store, jobs *jobqueue.Store, media *mediastore.Store, probeBinary string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		db:          db,
		artifacts:   artifacts,
		jobs:        jobs,
		media:       media,
		probeBinary: probeBinary,
		logger:      logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// SetNotifier attaches a notification service for settled transforms.
// Without one, settlement is silent.
func (c *Coordinator) SetNotifier(notifier notifications.Service) {
	c.notifier = notifier
}

func (c *Coordinator) notifySettled(ctx context.Context, job *jobqueue.Job, succeeded bool, message string) {
	if c.notifier == nil {
		return
	}
	var err error
	if succeeded {
		err = c.notifier.NotifyTransformCompleted(ctx, job.ArtifactID, string(job.Kind))
	} else {
		err = c.notifier.NotifyTransformFailed(ctx, job.ArtifactID, string(job.Kind), message)
	}
	if err != nil {
		c.logger.Warn("notification failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}

// Ingest stores an upload, probes it, and registers the artifact in the
// uploaded state. Unreadable files and files without a video stream are
// removed and rejected.
func (c *Coordinator) Ingest(ctx context.Context, r io.Reader, ext string) (*artifact.Artifact, error) {
	path, err := c.media.Write(r, ext)
	if err != nil {
		return nil, err
	}
	return c.register(ctx, path)
}

// register probes a stored file and creates the artifact row, removing
// the file when either step fails.
func (c *Coordinator) register(ctx context.Context, path string) (*artifact.Artifact, error) {
	probe, err := ffprobe.Inspect(ctx, c.probeBinary, path)
	if err != nil {
		c.media.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMedia, err)
	}
	if probe.VideoStreamCount() == 0 {
		c.media.Remove(path)
		return nil, fmt.Errorf("%w: no video stream", ErrUnsupportedMedia)
	}

	art, err := c.artifacts.Create(ctx, path, probe.DurationSeconds())
	if err != nil {
		c.media.Remove(path)
		return nil, err
	}

	c.logger.Info("artifact ingested",
		logging.String(logging.FieldArtifactID, art.ID),
		logging.String("path", path),
		logging.Float64("duration_seconds", art.DurationSeconds),
	)
	return art, nil
}

// IngestFile imports a local file into the upload directory and
// registers it like Ingest. Used by the CLI to add videos without the
// HTTP surface.
func (c *Coordinator) IngestFile(ctx context.Context, srcPath string) (*artifact.Artifact, error) {
	path, err := c.media.ImportFile(srcPath)
	if err != nil {
		return nil, err
	}
	return c.register(ctx, path)
}

// RequestTransform gates a transform request on the artifact's current
// status, then moves the artifact to queued and inserts the job in one
// transaction. Returns the job id for tracking.
func (c *Coordinator) RequestTransform(ctx context.Context, artifactID string, kind jobqueue.Kind, params transcode.Params) (string, error) {
	eligible, ok := kindEligibility[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown kind %q", transcode.ErrInvalidParams, kind)
	}

	art, err := c.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return "", err
	}

	if !statusIn(art.Status, eligible) {
		if !art.Status.IsIdle() {
			return "", artifact.InvalidStateError(artifactID, art.Status, "a transform is already in flight")
		}
		return "", artifact.InvalidStateError(artifactID, art.Status, fmt.Sprintf("%s requires status %s", kind, statusList(eligible)))
	}

	if err := params.Validate(art.DurationSeconds); err != nil {
		return "", err
	}

	payload, err := transcode.EncodeParams(params)
	if err != nil {
		return "", err
	}

	var jobID string
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		// CAS from the status observed above; a concurrent request
		// loses here with the live status in the error.
		if err := c.artifacts.TransitionTx(ctx, tx, artifactID, art.Status, artifact.StatusQueued); err != nil {
			return err
		}
		id, err := c.jobs.EnqueueTx(ctx, tx, artifactID, kind, payload)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("transform queued",
		logging.String(logging.FieldArtifactID, artifactID),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldJobKind, string(kind)),
	)
	return jobID, nil
}

// RetryFailed re-enqueues the most recent failed job of a failed
// artifact with its original parameters.
func (c *Coordinator) RetryFailed(ctx context.Context, artifactID string) (string, error) {
	art, err := c.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return "", err
	}
	if art.Status != artifact.StatusFailed {
		return "", artifact.InvalidStateError(artifactID, art.Status, "only failed artifacts can be retried")
	}

	jobs, err := c.jobs.ListByArtifact(ctx, artifactID)
	if err != nil {
		return "", err
	}
	var last *jobqueue.Job
	for _, job := range jobs {
		if job.State == jobqueue.StateFailed {
			last = job
		}
	}
	if last == nil {
		return "", fmt.Errorf("artifact %s has no failed job to retry", artifactID)
	}

	var jobID string
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := c.artifacts.TransitionTx(ctx, tx, artifactID, artifact.StatusFailed, artifact.StatusQueued); err != nil {
			return err
		}
		id, err := c.jobs.EnqueueTx(ctx, tx, artifactID, last.Kind, last.ParamsJSON)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("failed transform requeued",
		logging.String(logging.FieldArtifactID, artifactID),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldJobKind, string(last.Kind)),
	)
	return jobID, nil
}

// GetStatus returns the artifact and its job history, oldest job first.
func (c *Coordinator) GetStatus(ctx context.Context, artifactID string) (*artifact.Artifact, []*jobqueue.Job, error) {
	art, err := c.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	jobs, err := c.jobs.ListByArtifact(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	return art, jobs, nil
}

// ListArtifacts returns artifacts filtered by status, oldest first.
func (c *Coordinator) ListArtifacts(ctx context.Context, statuses ...artifact.Status) ([]*artifact.Artifact, error) {
	return c.artifacts.List(ctx, statuses...)
}

// ResolveDownload returns the absolute path of the artifact's most
// recent usable bytes.
func (c *Coordinator) ResolveDownload(ctx context.Context, artifactID string) (*artifact.Artifact, string, error) {
	art, err := c.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, "", err
	}
	path, err := c.media.Resolve(art.CurrentPath)
	if err != nil {
		return nil, "", err
	}
	return art, path, nil
}

// OnJobStarted moves the owning artifact from queued to processing. A
// redelivered job finds the artifact already processing, which is fine.
func (c *Coordinator) OnJobStarted(ctx context.Context, job *jobqueue.Job) error {
	err := c.artifacts.Transition(ctx, job.ArtifactID, artifact.StatusQueued, artifact.StatusProcessing)
	if err == nil {
		return nil
	}
	if errors.Is(err, artifact.ErrInvalidState) {
		art, getErr := c.artifacts.GetByID(ctx, job.ArtifactID)
		if getErr == nil && art.Status == artifact.StatusProcessing {
			return nil
		}
	}
	return err
}

// OnJobCompleted settles a finished job and its artifact atomically.
// Duplicate deliveries lose the job-state CAS and are ignored, which
// keeps completion idempotent under at-least-once delivery.
func (c *Coordinator) OnJobCompleted(ctx context.Context, jobID string, outcome Outcome) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	jobState := jobqueue.StateCompleted
	if !outcome.Succeeded {
		jobState = jobqueue.StateFailed
	}

	var duplicate bool
	err = c.db.WithTx(ctx, func(tx *sql.Tx) error {
		changed, err := c.jobs.CompleteTx(ctx, tx, jobID, jobState, outcome.Message)
		if err != nil {
			return err
		}
		if !changed {
			duplicate = true
			return nil
		}

		if outcome.Succeeded {
			return c.artifacts.CompleteTransformTx(ctx, tx, job.ArtifactID, terminalStatus[job.Kind], outcome.OutputPath)
		}

		// A watchdog may have settled the artifact already; the job
		// settlement still stands.
		if err := c.artifacts.MarkFailedTx(ctx, tx, job.ArtifactID, outcome.Message); err != nil && !errors.Is(err, artifact.ErrInvalidState) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if duplicate {
		c.logger.Warn("duplicate job completion ignored",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldArtifactID, job.ArtifactID),
		)
		return nil
	}

	c.logger.Info("job settled",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldArtifactID, job.ArtifactID),
		logging.String(logging.FieldJobKind, string(job.Kind)),
		logging.Bool("succeeded", outcome.Succeeded),
	)
	c.notifySettled(ctx, job, outcome.Succeeded, outcome.Message)
	return nil
}

// SettleExpired marks the artifacts of watchdog-expired jobs as failed.
// Artifacts already settled by another path are left alone.
func (c *Coordinator) SettleExpired(ctx context.Context, expired []*jobqueue.Job) {
	for _, job := range expired {
		message := job.ErrorMessage
		if message == "" {
			message = "job exceeded processing limits"
		}
		err := c.artifacts.MarkFailed(ctx, job.ArtifactID, message)
		if err != nil && !errors.Is(err, artifact.ErrInvalidState) {
			c.logger.Error("settle expired job",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldArtifactID, job.ArtifactID),
				logging.Error(err),
			)
			continue
		}
		c.notifySettled(ctx, job, false, message)
	}
}

func statusIn(status artifact.Status, set []artifact.Status) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}

func statusList(set []artifact.Status) string {
	names := make([]string, len(set))
	for i, status := range set {
		names[i] = string(status)
	}
	return strings.Join(names, "|")
}
