package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"clipforge/internal/api"
	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/mediastore"
	"clipforge/internal/pipeline"
	"clipforge/internal/transcode"
)

type apiServer struct {
	bind      string
	token     string
	maxUpload int64
	logger    *slog.Logger
	daemon    *Daemon
	validate  *validator.Validate

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:      bind,
		token:     cfg.Paths.APIToken,
		maxUpload: int64(cfg.Workers.MaxUploadMegabytes) * 1024 * 1024,
		logger:    logger,
		daemon:    d,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("/videos", authMiddleware(srv.token, srv.handleVideos))
	mux.HandleFunc("/videos/", authMiddleware(srv.token, srv.handleVideoItem))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workers:      status.Workers,
		JobCounts:    make(map[string]int, len(status.JobCounts)),
	}
	for state, count := range status.JobCounts {
		payload.JobCounts[string(state)] = count
	}
	for _, dep := range status.Dependencies {
		payload.Dependencies = append(payload.Dependencies, api.DependencyStatus{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []artifact.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := artifact.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	arts, err := s.daemon.coordinator.ListArtifacts(r.Context(), statuses...)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ListResponse{Artifacts: api.FromArtifacts(arts)})
}

// handleVideoItem routes /videos/upload and /videos/{id}[/action].
func (s *apiServer) handleVideoItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/videos/")
	if rest == "upload" {
		s.handleUpload(w, r)
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleVideoStatus(w, r, id)
	case "download":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleDownload(w, r, id)
	case "trim", "subtitles", "render":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleTransform(w, r, id, action)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("upload exceeds %d byte limit", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "multipart field \"video\" is required")
		return
	}
	defer file.Close()

	art, err := s.daemon.coordinator.Ingest(r.Context(), file, filepath.Ext(header.Filename))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{Artifact: api.FromArtifact(art)})
}

func (s *apiServer) handleVideoStatus(w http.ResponseWriter, r *http.Request, id string) {
	art, jobs, err := s.daemon.coordinator.GetStatus(r.Context(), id)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Artifact: api.FromArtifact(art),
		Jobs:     api.FromJobs(jobs),
	})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	art, path, err := s.daemon.coordinator.ResolveDownload(r.Context(), id)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	s.log().Info("serving download",
		logging.String(logging.FieldArtifactID, art.ID),
		logging.String("path", path),
	)
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleTransform(w http.ResponseWriter, r *http.Request, id, action string) {
	var (
		kind   jobqueue.Kind
		params transcode.Params
	)
	switch action {
	case "trim":
		var req api.TrimRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		kind = jobqueue.KindTrim
		params = transcode.TrimParams{Start: *req.Start, End: *req.End}
	case "subtitles":
		var req api.SubtitleRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		kind = jobqueue.KindSubtitle
		params = transcode.SubtitleParams{Text: req.Text, Start: *req.Start, End: *req.End}
	case "render":
		kind = jobqueue.KindRender
		params = transcode.RenderParams{}
	}

	jobID, err := s.daemon.coordinator.RequestTransform(r.Context(), id, kind, params)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	art, _, err := s.daemon.coordinator.GetStatus(r.Context(), id)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.TransformResponse{
		JobID:    jobID,
		Artifact: api.FromArtifact(art),
	})
}

// decodeAndValidate parses a JSON body into req and runs struct
// validation, writing a 400 on any failure.
func (s *apiServer) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		first := invalid[0]
		return fmt.Sprintf("field %q failed %q validation", strings.ToLower(first.Field()), first.Tag())
	}
	return err.Error()
}

// writePipelineError maps coordinator errors onto HTTP statuses.
func (s *apiServer) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mediastore.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, artifact.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transcode.ErrInvalidParams), errors.Is(err, pipeline.ErrUnsupportedMedia):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log().Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
