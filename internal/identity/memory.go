package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"intellib/internal/session/models"
	dErrors "intellib/pkg/domain-errors"
	"intellib/pkg/email"
)

// InMemoryProvider is a local identity provider for development and tests.
// Sign-in accepts any non-empty credential and mints an identity for it.
type InMemoryProvider struct {
	mu         sync.Mutex
	current    *models.Identity
	signOutErr error
	signOuts   int
	tokenTTL   time.Duration
	observers  observers
}

// NewInMemoryProvider returns a provider with no signed-in identity.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{tokenTTL: time.Hour}
}

// SignInWithPopup treats credential as an email address (or user name) and
// signs it in.
func (p *InMemoryProvider) SignInWithPopup(_ context.Context, credential string) (*models.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential is required")
	}
	ident := &models.Identity{
		ID:          uuid.NewString(),
		DisplayName: email.DisplayName(credential),
		Email:       credential,
		Token:       uuid.NewString(),
		ExpiresAt:   time.Now().Add(p.tokenTTL),
	}
	p.SetIdentity(ident)
	return ident.Clone(), nil
}

// SignOut clears the identity. When a sign-out error is configured the
// identity is left in place and the error returned.
func (p *InMemoryProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.signOuts++
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	p.SetIdentity(nil)
	return nil
}

// OnAuthStateChanged registers observer and replays the current identity.
func (p *InMemoryProvider) OnAuthStateChanged(observer Observer) func() {
	id, unsubscribe := p.observers.add(observer)
	p.mu.Lock()
	current := p.current.Clone()
	p.mu.Unlock()
	if p.observers.active(id) {
		observer(current)
	}
	return unsubscribe
}

// SetIdentity replaces the identity and notifies observers on change.
func (p *InMemoryProvider) SetIdentity(ident *models.Identity) {
	p.mu.Lock()
	if models.SameIdentity(p.current, ident) {
		p.mu.Unlock()
		return
	}
	p.current = ident.Clone()
	p.mu.Unlock()
	p.observers.notify(ident)
}

// Expire simulates the upstream token expiring.
func (p *InMemoryProvider) Expire() {
	p.SetIdentity(nil)
}

// FailSignOut makes subsequent SignOut calls return err (nil restores).
func (p *InMemoryProvider) FailSignOut(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutErr = err
}

// SignOutCalls reports how many times SignOut was invoked.
func (p *InMemoryProvider) SignOutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

// Current returns the signed-in identity, or nil.
func (p *InMemoryProvider) Current() *models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Clone()
}
