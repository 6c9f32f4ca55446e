// Package authority holds the session authority store: the single
// process-wide observable of the signed-in identity.
package authority

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"intellib/internal/identity"
	"intellib/internal/platform/metrics"
	"intellib/internal/session/models"
)

// Observer receives the current identity, or nil when there is none.
type Observer func(*models.Identity)

type subscription struct {
	fn     Observer
	closed atomic.Bool
	// ready and seen are only touched from dispatcher tasks.
	ready bool
	seen  uint64
}

// Store exposes the current identity to the rest of the shell. It is fed by
// the identity provider and cleared by the teardown procedure; consumers can
// only observe it.
type Store struct {
	mu      sync.Mutex
	current *models.Identity
	version uint64
	nextID  uint64
	subs    map[uint64]*subscription
	detach  func()

	dispatch dispatcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables subscriber gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New returns an empty store (no identity).
func New(opts ...Option) *Store {
	s := &Store{
		subs:   make(map[uint64]*subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatch.logger = s.logger
	return s
}

// Subscribe registers fn. It is called with the current identity once, and
// again after every change, until the returned function is called. The
// initial call comes before any later change notification. It runs before
// Subscribe returns only when no notification is being delivered at the
// time; otherwise it is queued behind the one in progress.
//
// Unsubscribe is idempotent and may be called from inside fn; once it returns
// no new invocation of fn begins.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	sub := &subscription{fn: fn}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	count := len(s.subs)
	s.mu.Unlock()
	s.observeSubscribers(count)

	s.dispatch.submit(func() {
		if sub.closed.Load() {
			return
		}
		s.mu.Lock()
		current, version := s.current.Clone(), s.version
		s.mu.Unlock()
		sub.ready = true
		sub.seen = version
		s.invoke(sub, current)
	})

	return func() {
		if sub.closed.Swap(true) {
			return
		}
		s.mu.Lock()
		delete(s.subs, id)
		count := len(s.subs)
		s.mu.Unlock()
		s.observeSubscribers(count)
	}
}

// Current returns a copy of the current identity, or nil.
func (s *Store) Current() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Attach feeds the store from p. A previously attached provider is detached.
func (s *Store) Attach(p identity.Provider) {
	s.Detach()
	unsubscribe := p.OnAuthStateChanged(func(ident *models.Identity) {
		s.set(ident)
	})
	s.mu.Lock()
	s.detach = unsubscribe
	s.mu.Unlock()
}

// Detach stops listening to the attached provider, if any.
func (s *Store) Detach() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
}

// Clear drops the identity. Only the teardown procedure calls this; the
// change is visible to Current immediately and announced to observers in
// order with other changes.
func (s *Store) Clear() {
	s.set(nil)
}

// ClearIf drops the identity when match reports true for it. The check and
// the clear are atomic with respect to other changes.
func (s *Store) ClearIf(match func(*models.Identity) bool) bool {
	s.mu.Lock()
	if s.current == nil || !match(s.current.Clone()) {
		s.mu.Unlock()
		return false
	}
	version := s.replaceLocked(nil)
	s.mu.Unlock()

	s.dispatch.submit(func() {
		s.announce(nil, version)
	})
	return true
}

func (s *Store) set(ident *models.Identity) {
	s.mu.Lock()
	if models.SameIdentity(s.current, ident) {
		s.mu.Unlock()
		return
	}
	version := s.replaceLocked(ident)
	s.mu.Unlock()

	s.dispatch.submit(func() {
		s.announce(ident, version)
	})
}

// replaceLocked requires s.mu.
func (s *Store) replaceLocked(ident *models.Identity) uint64 {
	s.current = ident.Clone()
	s.version++
	return s.version
}

func (s *Store) announce(ident *models.Identity, version uint64) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	targets := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, s.subs[id])
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if !sub.ready || version <= sub.seen || sub.closed.Load() {
			continue
		}
		sub.seen = version
		s.invoke(sub, ident.Clone())
	}
}

func (s *Store) invoke(sub *subscription, ident *models.Identity) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("identity observer panicked", "panic", r)
		}
	}()
	sub.fn(ident)
}

func (s *Store) observeSubscribers(n int) {
	if s.metrics != nil {
		s.metrics.SetSubscribers(n)
	}
}
