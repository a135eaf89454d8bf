package jobqueue

import (
	"strings"
	"time"
)

// Kind identifies the transform a job performs.
type Kind string

const (
	KindTrim     Kind = "trim"
	KindSubtitle Kind = "subtitle"
	KindRender   Kind = "render"
)

var kindSet = map[Kind]struct{}{
	KindTrim:     {},
	KindSubtitle: {},
	KindRender:   {},
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := kindSet[normalized]
	return normalized, ok
}

// State represents the queue lifecycle of a job.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var stateSet = map[State]struct{}{
	StatePending:   {},
	StateActive:    {},
	StateCompleted: {},
	StateFailed:    {},
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the state admits no further execution.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job represents one queued transform request against an artifact. The job
// borrows the artifact by id; the artifact outlives it.
type Job struct {
	ID             string
	ArtifactID     string
	Kind           Kind
	ParamsJSON     string
	Attempts       int
	State          State
	LeaseExpiresAt *time.Time
	ClaimedAt      *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
