// Package artifact is the registry of video artifacts and the single
// authority over their status state machine. All status mutation goes
// through compare-and-set transitions so concurrent writers can never
// produce an invalid state.
package artifact
