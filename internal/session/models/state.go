package models

// State is the session lifecycle as seen by the teardown gate.
type State int32

const (
	// StateUnknown is the state before the first reconciliation. Teardown is
	// allowed from here so leftovers from a previous run are swept.
	StateUnknown State = iota
	StateAuthenticated
	StateTearingDown
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateTearingDown:
		return "tearing_down"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// TeardownReason names what triggered a teardown.
type TeardownReason string

const (
	ReasonIdentityCleared TeardownReason = "identity_cleared"
	ReasonLivenessFailure TeardownReason = "liveness_failure"
	ReasonUserLogout      TeardownReason = "user_logout"
)

func (r TeardownReason) String() string {
	return string(r)
}

// Message is the user-facing explanation shown at the login entry point.
func (r TeardownReason) Message() string {
	switch r {
	case ReasonIdentityCleared:
		return "Your session has ended. Please sign in again."
	case ReasonLivenessFailure:
		return "The library service is unreachable. You have been signed out."
	case ReasonUserLogout:
		return "You have been signed out."
	default:
		return ""
	}
}
