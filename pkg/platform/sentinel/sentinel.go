package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) so callers can branch with errors.Is:
// - ErrNotFound: key or record does not exist
// - ErrExpired: credential has expired
// - ErrUnavailable: remote system is unreachable or unhealthy
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
