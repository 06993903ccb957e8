package enums

import "fmt"

// FinalizeState guards order creation for a checkout session.
type FinalizeState string

const (
	FinalizeStateIdle       FinalizeState = "idle"
	FinalizeStateFinalizing FinalizeState = "finalizing"
	FinalizeStateDone       FinalizeState = "done"
	FinalizeStateFailed     FinalizeState = "failed"
)

var validFinalizeStates = []FinalizeState{
	FinalizeStateIdle,
	FinalizeStateFinalizing,
	FinalizeStateDone,
	FinalizeStateFailed,
}

// String implements fmt.Stringer.
func (v FinalizeState) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FinalizeState.
func (v FinalizeState) IsValid() bool {
	for _, candidate := range validFinalizeStates {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFinalizeState converts raw input into a FinalizeState.
func ParseFinalizeState(value string) (FinalizeState, error) {
	for _, candidate := range validFinalizeStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid finalize state %q", value)
}
