package models

import "time"

// Identity is the signed-in principal as reported by the identity provider.
// A nil *Identity means "no identity".
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	Token       string
	ExpiresAt   time.Time
}

// Expired reports whether the bearer credential is past its expiry. A zero
// ExpiresAt never expires.
func (i *Identity) Expired(now time.Time) bool {
	if i == nil {
		return true
	}
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// SameIdentity reports whether a and b describe the same principal with the
// same credential. Two nils are the same.
func SameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID &&
		a.Token == b.Token &&
		a.Email == b.Email &&
		a.DisplayName == b.DisplayName &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

// Clone returns a copy so observers cannot mutate shared state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// LivenessState is the result of the most recent backend probe.
type LivenessState struct {
	Reachable bool
	CheckedAt time.Time
	Err       error
}
