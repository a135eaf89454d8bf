package api

import (
	"time"

	"clipforge/internal/artifact"
	"clipforge/internal/jobqueue"
)

// Artifact is the transport representation of a video artifact.
type Artifact struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"durationSeconds"`
	SourcePath      string  `json:"sourcePath"`
	CurrentPath     string  `json:"currentPath"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

// Job is the transport representation of a transform job.
type Job struct {
	ID           string `json:"id"`
	ArtifactID   string `json:"artifactId"`
	Kind         string `json:"kind"`
	State        string `json:"state"`
	Attempts     int    `json:"attempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// UploadResponse is returned from POST /videos/upload.
type UploadResponse struct {
	Artifact Artifact `json:"artifact"`
}

// TrimRequest carries trim window parameters in seconds.
type TrimRequest struct {
	Start *float64 `json:"start" validate:"required,gte=0"`
	End   *float64 `json:"end" validate:"required,gtfield=Start"`
}

// SubtitleRequest carries the overlay text and its display window.
type SubtitleRequest struct {
	Text  string   `json:"text" validate:"required,min=1,max=500"`
	Start *float64 `json:"start" validate:"required,gte=0"`
	End   *float64 `json:"end" validate:"required,gtfield=Start"`
}

// RenderRequest has no parameters today; the body may be empty.
type RenderRequest struct{}

// TransformResponse is returned when a transform is accepted.
type TransformResponse struct {
	JobID    string   `json:"jobId"`
	Artifact Artifact `json:"artifact"`
}

// StatusResponse describes an artifact and its job history.
type StatusResponse struct {
	Artifact Artifact `json:"artifact"`
	Jobs     []Job    `json:"jobs"`
}

// ListResponse is returned from GET /videos.
type ListResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// DependencyStatus reports availability of one external binary.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// DaemonStatus is returned from GET /status.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Workers      int                `json:"workers"`
	JobCounts    map[string]int     `json:"jobCounts"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromArtifact converts an internal artifact to its DTO.
func FromArtifact(art *artifact.Artifact) Artifact {
	if art == nil {
		return Artifact{}
	}
	return Artifact{
		ID:              art.ID,
		Status:          string(art.Status),
		DurationSeconds: art.DurationSeconds,
		SourcePath:      art.SourcePath,
		CurrentPath:     art.CurrentPath,
		ErrorMessage:    art.ErrorMessage,
		CreatedAt:       art.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       art.UpdatedAt.Format(time.RFC3339),
	}
}

// FromArtifacts converts a slice of internal artifacts.
func FromArtifacts(arts []*artifact.Artifact) []Artifact {
	out := make([]Artifact, 0, len(arts))
	for _, art := range arts {
		out = append(out, FromArtifact(art))
	}
	return out
}

// FromJob converts an internal job to its DTO.
func FromJob(job *jobqueue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:           job.ID,
		ArtifactID:   job.ArtifactID,
		Kind:         string(job.Kind),
		State:        string(job.State),
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}

// FromJobs converts a slice of internal jobs.
func FromJobs(jobs []*jobqueue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}
