package transcode

import "fmt"

// ErrorKind classifies invoker failures.
type ErrorKind string

const (
	// ErrExitNonZero means ffmpeg started but exited with a failure code.
	ErrExitNonZero ErrorKind = "exit_non_zero"
	// ErrTimeout means the wall-clock ceiling elapsed and the process was killed.
	ErrTimeout ErrorKind = "timeout"
	// ErrSpawnFailure means the process never started.
	ErrSpawnFailure ErrorKind = "spawn_failure"
	// ErrInvalidInvocation means the invoker was called with arguments
	// that can never produce a runnable command.
	ErrInvalidInvocation ErrorKind = "invalid_invocation"
)

// Error is the typed failure returned by Invoker.Run.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ffmpeg %s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("ffmpeg %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could plausibly succeed.
// Spawn failures and timeouts are transient (fork pressure, host load);
// a non-zero exit or a bad invocation is deterministic for the same
// input and fails the same way on every attempt.
func (e *Error) Retryable() bool {
	return e.Kind == ErrSpawnFailure || e.Kind == ErrTimeout
}
