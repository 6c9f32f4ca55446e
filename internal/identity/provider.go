// Package identity holds the identity-provider collaborators the session
// core observes: sign-in, sign-out and auth-state change notifications.
package identity

import (
	"context"
	"errors"
	"sync"

	"intellib/internal/session/models"
)

// ErrSignOutFailed is returned by providers whose remote sign-out failed.
var ErrSignOutFailed = errors.New("identity: sign out failed")

// Observer receives the current identity, or nil for "no identity".
type Observer func(*models.Identity)

// Provider is the identity collaborator contract.
type Provider interface {
	// SignInWithPopup completes an interactive sign-in with the given
	// provider credential and publishes the resulting identity.
	SignInWithPopup(ctx context.Context, credential string) (*models.Identity, error)
	// SignOut ends the provider session. It may fail; callers must not
	// depend on it succeeding.
	SignOut(ctx context.Context) error
	// OnAuthStateChanged calls observer with the current identity right away
	// and again on every change until unsubscribe is called.
	OnAuthStateChanged(observer Observer) (unsubscribe func())
}

// observers is the fan-out shared by the providers. Notifications happen
// outside the lock so observers may call back into the provider.
type observers struct {
	mu     sync.Mutex
	nextID uint64
	set    map[uint64]Observer
}

func (o *observers) add(fn Observer) (uint64, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set == nil {
		o.set = make(map[uint64]Observer)
	}
	o.nextID++
	id := o.nextID
	o.set[id] = fn
	var once sync.Once
	return id, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.set, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) active(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.set[id]
	return ok
}

func (o *observers) notify(ident *models.Identity) {
	o.mu.Lock()
	ids := make([]uint64, 0, len(o.set))
	fns := make([]Observer, 0, len(o.set))
	for id, fn := range o.set {
		ids = append(ids, id)
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for i, fn := range fns {
		if !o.active(ids[i]) {
			continue
		}
		fn(ident.Clone())
	}
}
