package artifact

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidState indicates a transition the state machine forbids, or an
// eligibility gate rejection.
var ErrInvalidState = errors.New("invalid artifact state")

// InvalidStateError wraps ErrInvalidState with the observed and required states.
func InvalidStateError(id string, current Status, detail string) error {
	return fmt.Errorf("%w: artifact %s is %s: %s", ErrInvalidState, id, current, detail)
}
