package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/mediastore"
	"clipforge/internal/pipeline"
	"clipforge/internal/testsupport"
	"clipforge/internal/transcode"
)

const probeVideoJSON = `{"streams":[{"codec_type":"video"}],"format":{"duration":"60"}}`
const probeAudioJSON = `{"streams":[{"codec_type":"audio"}],"format":{"duration":"60"}}`

type fixture struct {
	cfg         *config.Config
	coordinator *pipeline.Coordinator
	artifacts   *artifact.Store
	jobs        *jobqueue.Store
	media       *mediastore.Store
}

func writeProbeStub(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n" + payload + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write probe stub: %v", err)
	}
	return path
}

func newFixture(t *testing.T, probePayload string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	artifacts := artifact.NewStore(db)
	jobs := jobqueue.NewStore(db, time.Minute)
	media := mediastore.New(cfg)
	coordinator := pipeline.NewCoordinator(db, artifacts, jobs, media, writeProbeStub(t, probePayload), logging.NewNop())

	return &fixture{cfg: cfg, coordinator: coordinator, artifacts: artifacts, jobs: jobs, media: media}
}

func (f *fixture) ingest(t *testing.T) *artifact.Artifact {
	t.Helper()
	art, err := f.coordinator.Ingest(context.Background(), strings.NewReader("video bytes"), ".mp4")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return art
}

func TestIngestCreatesUploadedArtifact(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)

	if art.Status != artifact.StatusUploaded {
		t.Fatalf("expected uploaded, got %s", art.Status)
	}
	if art.DurationSeconds != 60 {
		t.Fatalf("expected probed duration 60, got %v", art.DurationSeconds)
	}
	if art.CurrentPath != art.SourcePath {
		t.Fatalf("fresh artifact must serve its source: %+v", art)
	}
	if filepath.Dir(art.SourcePath) != f.cfg.Paths.UploadDir {
		t.Fatalf("upload stored outside upload dir: %s", art.SourcePath)
	}
}

func TestIngestFileImportsLocalVideo(t *testing.T) {
	f := newFixture(t, probeVideoJSON)

	src := filepath.Join(t.TempDir(), "holiday.mp4")
	if err := os.WriteFile(src, []byte("local video"), 0o644); err != nil {
		t.Fatal(err)
	}

	art, err := f.coordinator.IngestFile(context.Background(), src)
	if err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}
	if art.Status != artifact.StatusUploaded {
		t.Fatalf("expected uploaded, got %s", art.Status)
	}
	if filepath.Dir(art.SourcePath) != f.cfg.Paths.UploadDir {
		t.Fatalf("import stored outside upload dir: %s", art.SourcePath)
	}
}

func TestIngestRejectsUploadsWithoutVideo(t *testing.T) {
	f := newFixture(t, probeAudioJSON)

	_, err := f.coordinator.Ingest(context.Background(), strings.NewReader("audio bytes"), ".mp3")
	if !errors.Is(err, pipeline.ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}

	entries, readErr := os.ReadDir(f.cfg.Paths.UploadDir)
	if readErr != nil {
		t.Fatalf("read upload dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left debris: %v", entries)
	}
}

func TestRequestTransformQueuesAtomically(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	jobID, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10})
	if err != nil {
		t.Fatalf("RequestTransform failed: %v", err)
	}

	updated, err := f.artifacts.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != artifact.StatusQueued {
		t.Fatalf("expected queued, got %s", updated.Status)
	}
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		t.Fatalf("job missing after request: %v", err)
	}
	if job.State != jobqueue.StatePending || job.Kind != jobqueue.KindTrim {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestRequestTransformRejectsBusyArtifact(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	if _, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10}); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	_, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindRender, transcode.RenderParams{})
	if !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for busy artifact, got %v", err)
	}
}

func TestRequestTransformConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	requests := []func() (string, error){
		func() (string, error) {
			return f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10})
		},
		func() (string, error) {
			return f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindRender, transcode.RenderParams{})
		},
	}

	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, request := range requests {
		wg.Add(1)
		go func(i int, request func() (string, error)) {
			defer wg.Done()
			_, errs[i] = request()
		}(i, request)
	}
	wg.Wait()

	var winners, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, artifact.ErrInvalidState):
			conflicts++
		default:
			t.Fatalf("unexpected request error: %v", err)
		}
	}
	if winners != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one request to win, got %d winners and %d conflicts", winners, conflicts)
	}

	art, err := f.artifacts.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if art.Status != artifact.StatusQueued {
		t.Fatalf("expected queued after the winning request, got %s", art.Status)
	}
	jobs, err := f.jobs.ListByArtifact(ctx, art.ID)
	if err != nil {
		t.Fatalf("ListByArtifact failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected a single enqueued job, got %d", len(jobs))
	}
}

func TestRequestTransformEligibilityGates(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	// Run a trim to completion so the artifact lands in trimmed.
	f.runTransform(t, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10})

	// Trimmed may not be trimmed again.
	_, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 5})
	if !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected trim rejection on trimmed artifact, got %v", err)
	}

	// Subtitling a trimmed artifact is allowed.
	if _, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindSubtitle, transcode.SubtitleParams{Text: "hi", Start: 0, End: 2}); err != nil {
		t.Fatalf("subtitle on trimmed artifact should be allowed: %v", err)
	}
}

func TestRequestTransformRejectsRenderedReuse(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	f.runTransform(t, art.ID, jobqueue.KindRender, transcode.RenderParams{})

	for _, kind := range []jobqueue.Kind{jobqueue.KindTrim, jobqueue.KindSubtitle, jobqueue.KindRender} {
		var params transcode.Params
		switch kind {
		case jobqueue.KindTrim:
			params = transcode.TrimParams{Start: 0, End: 5}
		case jobqueue.KindSubtitle:
			params = transcode.SubtitleParams{Text: "hi", Start: 0, End: 2}
		default:
			params = transcode.RenderParams{}
		}
		if _, err := f.coordinator.RequestTransform(ctx, art.ID, kind, params); !errors.Is(err, artifact.ErrInvalidState) {
			t.Fatalf("%s on rendered artifact should be rejected, got %v", kind, err)
		}
	}
}

func TestRequestTransformValidatesParams(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	_, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 600})
	if !errors.Is(err, transcode.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}

	// Rejected requests must leave no trace.
	updated, _ := f.artifacts.GetByID(ctx, art.ID)
	if updated.Status != artifact.StatusUploaded {
		t.Fatalf("rejected request changed status to %s", updated.Status)
	}
	jobs, _ := f.jobs.ListByArtifact(ctx, art.ID)
	if len(jobs) != 0 {
		t.Fatalf("rejected request enqueued a job: %+v", jobs)
	}
}

func TestRequestTransformUnknownArtifact(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	_, err := f.coordinator.RequestTransform(context.Background(), "missing", jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 5})
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// runTransform drives one request through claim, start, and successful
// completion the way a worker would.
func (f *fixture) runTransform(t *testing.T, artifactID string, kind jobqueue.Kind, params transcode.Params) string {
	t.Helper()
	ctx := context.Background()

	if _, err := f.coordinator.RequestTransform(ctx, artifactID, kind, params); err != nil {
		t.Fatalf("RequestTransform(%s) failed: %v", kind, err)
	}
	job, err := f.jobs.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: %+v err=%v", job, err)
	}
	if err := f.coordinator.OnJobStarted(ctx, job); err != nil {
		t.Fatalf("OnJobStarted failed: %v", err)
	}
	output := filepath.Join(f.cfg.Paths.OutputDir, "out-"+job.ID+".mp4")
	testsupport.WriteFile(t, output, 16)
	if err := f.coordinator.OnJobCompleted(ctx, job.ID, pipeline.Outcome{Succeeded: true, OutputPath: output}); err != nil {
		t.Fatalf("OnJobCompleted failed: %v", err)
	}
	return job.ID
}

func TestSuccessfulTransformSwapsCurrentPath(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	jobID := f.runTransform(t, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10})

	updated, err := f.artifacts.GetByID(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != artifact.StatusTrimmed {
		t.Fatalf("expected trimmed, got %s", updated.Status)
	}
	if updated.CurrentPath == updated.SourcePath {
		t.Fatal("current path was not swapped to the transform output")
	}
	job, _ := f.jobs.GetByID(ctx, jobID)
	if job.State != jobqueue.StateCompleted {
		t.Fatalf("expected completed job, got %s", job.State)
	}
}

func TestOnJobCompletedDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	jobID := f.runTransform(t, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10})

	// A late duplicate delivery reporting failure must not undo the result.
	if err := f.coordinator.OnJobCompleted(ctx, jobID, pipeline.Outcome{Succeeded: false, Message: "late"}); err != nil {
		t.Fatalf("duplicate completion errored: %v", err)
	}
	updated, _ := f.artifacts.GetByID(ctx, art.ID)
	if updated.Status != artifact.StatusTrimmed {
		t.Fatalf("duplicate completion changed status to %s", updated.Status)
	}
}

func TestFailedTransformKeepsLastGoodBytes(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	if _, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindRender, transcode.RenderParams{}); err != nil {
		t.Fatalf("RequestTransform failed: %v", err)
	}
	job, err := f.jobs.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: %+v err=%v", job, err)
	}
	if err := f.coordinator.OnJobStarted(ctx, job); err != nil {
		t.Fatalf("OnJobStarted failed: %v", err)
	}
	if err := f.coordinator.OnJobCompleted(ctx, job.ID, pipeline.Outcome{Succeeded: false, Message: "encoder blew up"}); err != nil {
		t.Fatalf("OnJobCompleted failed: %v", err)
	}

	updated, _ := f.artifacts.GetByID(ctx, art.ID)
	if updated.Status != artifact.StatusFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.ErrorMessage != "encoder blew up" {
		t.Fatalf("expected recorded error, got %q", updated.ErrorMessage)
	}
	if updated.CurrentPath != art.SourcePath {
		t.Fatal("failure must not clobber the last good bytes")
	}
}

func TestRetryFailedRequeuesLastJob(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	if _, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindSubtitle, transcode.SubtitleParams{Text: "hi", Start: 0, End: 2}); err != nil {
		t.Fatalf("RequestTransform failed: %v", err)
	}
	job, _ := f.jobs.Claim(ctx)
	if err := f.coordinator.OnJobStarted(ctx, job); err != nil {
		t.Fatalf("OnJobStarted failed: %v", err)
	}
	if err := f.coordinator.OnJobCompleted(ctx, job.ID, pipeline.Outcome{Succeeded: false, Message: "boom"}); err != nil {
		t.Fatalf("OnJobCompleted failed: %v", err)
	}

	jobID, err := f.coordinator.RetryFailed(ctx, art.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	retried, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		t.Fatalf("retried job missing: %v", err)
	}
	if retried.Kind != jobqueue.KindSubtitle || retried.State != jobqueue.StatePending {
		t.Fatalf("unexpected retried job: %+v", retried)
	}
	updated, _ := f.artifacts.GetByID(ctx, art.ID)
	if updated.Status != artifact.StatusQueued {
		t.Fatalf("expected queued after retry, got %s", updated.Status)
	}
}

func TestRetryFailedRejectsHealthyArtifact(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)

	if _, err := f.coordinator.RetryFailed(context.Background(), art.ID); !errors.Is(err, artifact.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestOnJobStartedToleratesRedelivery(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)
	ctx := context.Background()

	if _, err := f.coordinator.RequestTransform(ctx, art.ID, jobqueue.KindTrim, transcode.TrimParams{Start: 0, End: 10}); err != nil {
		t.Fatalf("RequestTransform failed: %v", err)
	}
	job, _ := f.jobs.Claim(ctx)
	if err := f.coordinator.OnJobStarted(ctx, job); err != nil {
		t.Fatalf("first OnJobStarted failed: %v", err)
	}
	if err := f.coordinator.OnJobStarted(ctx, job); err != nil {
		t.Fatalf("redelivered OnJobStarted should be tolerated: %v", err)
	}
}

func TestResolveDownload(t *testing.T) {
	f := newFixture(t, probeVideoJSON)
	art := f.ingest(t)

	got, path, err := f.coordinator.ResolveDownload(context.Background(), art.ID)
	if err != nil {
		t.Fatalf("ResolveDownload failed: %v", err)
	}
	if got.ID != art.ID || path != art.SourcePath {
		t.Fatalf("unexpected download resolution: %s %s", got.ID, path)
	}
}
