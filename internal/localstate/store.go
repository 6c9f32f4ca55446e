// Package localstate persists the client-side key/value state of one
// browser profile: cached credentials, profile fields and the cart.
package localstate

import "context"

// Keys written by the shell.
const (
	KeySessionToken       = "session.token"
	KeyProfileUID         = "profile.uid"
	KeyProfileEmail       = "profile.email"
	KeyProfileDisplayName = "profile.display_name"
	KeyCartItems          = "cart.items"
)

// Store is an unordered string key/value store. Get returns
// sentinel.ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every key of the profile.
	Clear(ctx context.Context) error
}
