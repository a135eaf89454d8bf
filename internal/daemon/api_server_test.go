package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/api"
	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/mediastore"
	"clipforge/internal/pipeline"
	"clipforge/internal/testsupport"
	"clipforge/internal/transcode"
	"clipforge/internal/workers"
)

// stubInvoker fulfils every transform by writing the destination file.
type stubInvoker struct{}

func (stubInvoker) Run(_ context.Context, _ jobqueue.Kind, _ string, _ transcode.Params, dest string) error {
	return os.WriteFile(dest, []byte("transformed"), 0o644)
}

func writeProbeStub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n{\"streams\":[{\"codec_type\":\"video\"}],\"format\":{\"duration\":\"60\"}}\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write probe stub: %v", err)
	}
	return path
}

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, string) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	return newTestDaemonWithConfig(t, cfg)
}

func newTestDaemonWithConfig(t *testing.T, cfg *config.Config) (*Daemon, string) {
	t.Helper()
	db := testsupport.MustOpenDB(t, cfg)

	artifacts := artifact.NewStore(db)
	jobs := jobqueue.NewStore(db, time.Duration(cfg.Workers.VisibilityTimeout)*time.Second)
	media := mediastore.New(cfg)
	coordinator := pipeline.NewCoordinator(db, artifacts, jobs, media, writeProbeStub(t), logging.NewNop())
	pool := workers.New(cfg, coordinator, jobs, media, stubInvoker{}, logging.NewNop())

	d, err := New(cfg, db, coordinator, jobs, pool, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	return d, "http://" + d.APIAddr()
}

func uploadVideo(t *testing.T, baseURL string) api.Artifact {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", "clip.mp4")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("video bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	resp, err := http.Post(baseURL+"/videos/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, payload)
	}
	var uploaded api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return uploaded.Artifact
}

func postJSON(t *testing.T, url string, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestUploadAndStatus(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	if art.Status != string(artifact.StatusUploaded) {
		t.Fatalf("expected uploaded, got %s", art.Status)
	}
	if art.DurationSeconds != 60 {
		t.Fatalf("expected probed duration, got %v", art.DurationSeconds)
	}

	resp, err := http.Get(baseURL + "/videos/" + art.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(baseURL + "/videos")
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	defer listResp.Body.Close()
	var list api.ListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Artifacts) != 1 || list.Artifacts[0].ID != art.ID {
		t.Fatalf("unexpected list: %+v", list.Artifacts)
	}
}

func TestUploadRequiresVideoField(t *testing.T) {
	_, baseURL := newTestDaemon(t)

	resp := postJSON(t, baseURL+"/videos/upload", "{}")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTrimAcceptedThenConflict(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	resp := postJSON(t, baseURL+"/videos/"+art.ID+"/trim", `{"start": 0, "end": 10}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, payload)
	}
	var accepted api.TransformResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode transform response: %v", err)
	}
	if accepted.JobID == "" {
		t.Fatal("expected job id")
	}

	// The artifact is no longer uploaded, so another trim conflicts.
	conflict := postJSON(t, baseURL+"/videos/"+art.ID+"/trim", `{"start": 0, "end": 5}`)
	defer conflict.Body.Close()
	if conflict.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", conflict.StatusCode)
	}
}

func TestTrimValidation(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	for _, payload := range []string{
		`{"start": 5, "end": 5}`,
		`{"start": -1, "end": 5}`,
		`{"end": 5}`,
		`not json`,
	} {
		resp := postJSON(t, baseURL+"/videos/"+art.ID+"/trim", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSubtitlesValidation(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	resp := postJSON(t, baseURL+"/videos/"+art.ID+"/subtitles", `{"text": "", "start": 0, "end": 2}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", resp.StatusCode)
	}

	ok := postJSON(t, baseURL+"/videos/"+art.ID+"/subtitles", `{"text": "hello", "start": 0, "end": 2}`)
	defer ok.Body.Close()
	if ok.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", ok.StatusCode)
	}
}

func TestRenderAcceptsEmptyBody(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	resp := postJSON(t, baseURL+"/videos/"+art.ID+"/render", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, payload)
	}
}

func TestUnknownArtifactIs404(t *testing.T) {
	_, baseURL := newTestDaemon(t)

	for _, probe := range []struct {
		method string
		url    string
	}{
		{http.MethodGet, baseURL + "/videos/missing"},
		{http.MethodGet, baseURL + "/videos/missing/download"},
	} {
		req, _ := http.NewRequest(probe.method, probe.url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %s: %v", probe.url, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", probe.url, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := postJSON(t, baseURL+"/videos/missing/trim", `{"start": 0, "end": 5}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDownloadServesCurrentBytes(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	resp, err := http.Get(baseURL + "/videos/" + art.ID + "/download")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	if string(payload) != "video bytes" {
		t.Fatalf("unexpected download payload: %q", payload)
	}
	if disposition := resp.Header.Get("Content-Disposition"); !strings.Contains(disposition, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", disposition)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d, baseURL := newTestDaemon(t)

	resp, err := http.Get(baseURL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.DatabasePath != d.cfg.DatabasePath() {
		t.Fatalf("unexpected database path: %s", status.DatabasePath)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.APIToken = "sekrit"
	_, baseURL := newTestDaemonWithConfig(t, cfg)

	resp, err := http.Get(baseURL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, baseURL+"/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed status: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, baseURL := newTestDaemon(t)
	art := uploadVideo(t, baseURL)

	resp, err := http.Get(baseURL + "/videos/" + art.ID + "/trim")
	if err != nil {
		t.Fatalf("get trim: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestUploadSizeLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Workers.MaxUploadMegabytes = 1
	_, baseURL := newTestDaemonWithConfig(t, cfg)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", "big.mp4")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.CopyN(part, bytes.NewReader(bytes.Repeat([]byte{0x42}, 32*1024)), 32*1024); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	// Push well past the 1MB cap.
	chunk := bytes.Repeat([]byte{0x42}, 256*1024)
	for i := 0; i < 8; i++ {
		if _, err := part.Write(chunk); err != nil {
			break
		}
	}
	writer.Close()

	resp, err := http.Post(baseURL+"/videos/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversize upload, got %d", resp.StatusCode)
	}
}
