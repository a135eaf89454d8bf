package artifact

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an artifact.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusTrimmed    Status = "trimmed"
	StatusSubtitled  Status = "subtitled"
	StatusRendered   Status = "rendered"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusQueued,
	StatusProcessing,
	StatusTrimmed,
	StatusSubtitled,
	StatusRendered,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// idleStatuses are states with no outstanding job; only these may accept a
// new transform request.
var idleStatuses = map[Status]struct{}{
	StatusUploaded:  {},
	StatusTrimmed:   {},
	StatusSubtitled: {},
	StatusRendered:  {},
	StatusFailed:    {},
}

// allowedTransitions is the closed transition table. A transition absent
// from this table is rejected before it ever reaches the database.
var allowedTransitions = map[Status][]Status{
	StatusUploaded:   {StatusQueued},
	StatusTrimmed:    {StatusQueued},
	StatusSubtitled:  {StatusQueued},
	StatusRendered:   {StatusQueued},
	StatusFailed:     {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusTrimmed, StatusSubtitled, StatusRendered, StatusFailed},
}

// Artifact represents a video and its current derivative state.
type Artifact struct {
	ID              string
	SourcePath      string
	CurrentPath     string
	DurationSeconds float64
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsIdle reports whether the status accepts a new transform request.
func (s Status) IsIdle() bool {
	_, ok := idleStatuses[s]
	return ok
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsIdle reports whether the artifact has no outstanding job.
func (a Artifact) IsIdle() bool {
	return a.Status.IsIdle()
}
