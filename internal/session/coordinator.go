// Package session wires the identity provider, the authority store, the
// liveness supervisor and the teardown procedure into one lifecycle.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"intellib/internal/audit"
	"intellib/internal/identity"
	"intellib/internal/localstate"
	"intellib/internal/platform/metrics"
	"intellib/internal/session/authority"
	"intellib/internal/session/liveness"
	"intellib/internal/session/models"
	"intellib/internal/session/teardown"
)

// Coordinator owns the session core of the shell. Every route to a logged
// out state (identity loss, unreachable backend, explicit logout) goes
// through the same teardown procedure.
type Coordinator struct {
	provider   identity.Provider
	state      localstate.Store
	store      *authority.Store
	procedure  *teardown.Procedure
	supervisor *liveness.Supervisor

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   teardown.AuditPublisher
	now     func() time.Time

	interval       time.Duration
	signOutTimeout time.Duration
	loginPath      string

	mu          sync.Mutex
	unsubscribe func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithAuditPublisher(publisher teardown.AuditPublisher) Option {
	return func(c *Coordinator) {
		c.audit = publisher
	}
}

// WithProbeInterval sets the pause between liveness probes.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = d
	}
}

func WithSignOutTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.signOutTimeout = d
	}
}

func WithLoginPath(path string) Option {
	return func(c *Coordinator) {
		c.loginPath = path
	}
}

// WithClock overrides the clock used to detect expired identities.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New assembles the session core. Nothing runs until Start.
func New(provider identity.Provider, state localstate.Store, nav teardown.Navigator, prober liveness.Prober, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider: provider,
		state:    state,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = authority.New(
		authority.WithLogger(c.logger),
		authority.WithMetrics(c.metrics),
	)

	teardownOpts := []teardown.Option{
		teardown.WithLogger(c.logger),
		teardown.WithMetrics(c.metrics),
		teardown.WithLoginPath(c.loginPath),
		teardown.WithSignOutTimeout(c.signOutTimeout),
	}
	if c.audit != nil {
		teardownOpts = append(teardownOpts, teardown.WithAuditPublisher(c.audit))
	}
	c.procedure = teardown.New(provider, c.store, state, nav, teardownOpts...)

	c.supervisor = liveness.NewSupervisor(prober, c.handleUnreachable,
		liveness.WithInterval(c.interval),
		liveness.WithLogger(c.logger),
		liveness.WithMetrics(c.metrics),
	)
	return c
}

// Start feeds the store from the provider, reconciles the current identity
// and starts liveness probing. The provider is attached before the
// coordinator subscribes, so an already signed-in user is not torn down on
// startup.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return
	}
	c.store.Attach(c.provider)
	c.unsubscribe = c.store.Subscribe(c.onIdentity)
	c.mu.Unlock()

	c.supervisor.Start(ctx)
	c.logger.InfoContext(ctx, "session coordinator started")
}

// Stop halts probing and detaches from the provider. It is idempotent.
func (c *Coordinator) Stop() {
	c.supervisor.Stop()

	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		c.store.Detach()
	}
}

// SignIn asks the provider to sign credential in. The resulting identity
// reaches the store through the provider's change notifications.
func (c *Coordinator) SignIn(ctx context.Context, credential string) (*models.Identity, error) {
	return c.provider.SignInWithPopup(ctx, credential)
}

// Logout tears the session down on the user's request. It reports whether
// this call performed the teardown.
func (c *Coordinator) Logout(ctx context.Context) bool {
	return c.teardown(ctx, models.ReasonUserLogout)
}

// Subscribe registers a read-only observer of the session identity.
func (c *Coordinator) Subscribe(fn authority.Observer) func() {
	return c.store.Subscribe(fn)
}

// Current is the identity page consumers should render for.
func (c *Coordinator) Current() *models.Identity {
	return c.store.Current()
}

// State is the teardown gate state.
func (c *Coordinator) State() models.State {
	return c.procedure.State()
}

// LastReason explains why the last session ended.
func (c *Coordinator) LastReason() models.TeardownReason {
	return c.procedure.LastReason()
}

// Liveness is the most recent probe result.
func (c *Coordinator) Liveness() models.LivenessState {
	return c.supervisor.State()
}

func (c *Coordinator) handleUnreachable(ctx context.Context, err error) {
	if ident := c.store.Current(); ident != nil && c.audit != nil {
		if emitErr := c.audit.Emit(ctx, audit.Event{
			Action:   string(audit.EventBackendUnreachable),
			UserID:   ident.ID,
			Reason:   err.Error(),
			Decision: "teardown",
		}); emitErr != nil {
			c.logger.WarnContext(ctx, "failed to emit liveness audit event", "error", emitErr)
		}
	}
	c.teardown(ctx, models.ReasonLivenessFailure)
}

// teardown runs the procedure and then settles whatever identity reached the
// store while it was running.
func (c *Coordinator) teardown(ctx context.Context, reason models.TeardownReason) bool {
	performed := c.procedure.Run(ctx, reason)
	c.reconcile(ctx)
	return performed
}

// reconcile drops an expired identity and adopts a live one that arrived
// after the gate closed, so the store never shows a session the gate does
// not know about.
func (c *Coordinator) reconcile(ctx context.Context) {
	if c.store.ClearIf(c.expired) {
		return
	}
	ident := c.store.Current()
	if ident == nil || !c.procedure.Arm() {
		return
	}
	c.establish(ctx, ident, true)
}

func (c *Coordinator) expired(ident *models.Identity) bool {
	return ident.Expired(c.now())
}

// onIdentity runs on the store's dispatcher, one notification at a time.
func (c *Coordinator) onIdentity(ident *models.Identity) {
	ctx := context.Background()

	if ident == nil || c.expired(ident) {
		c.teardown(ctx, models.ReasonIdentityCleared)
		return
	}

	armed := c.procedure.Arm()
	if c.procedure.State() != models.StateAuthenticated {
		// Settled by reconcile once the running teardown completes.
		c.logger.WarnContext(ctx, "identity observed during teardown", "user_id", ident.ID)
		return
	}
	c.establish(ctx, ident, armed)
}

func (c *Coordinator) establish(ctx context.Context, ident *models.Identity, armed bool) {
	c.cacheProfile(ctx, ident)
	if !armed {
		return
	}
	c.logger.InfoContext(ctx, "session established", "user_id", ident.ID)
	if c.audit != nil {
		if err := c.audit.Emit(ctx, audit.Event{
			Action:   string(audit.EventSignedIn),
			UserID:   ident.ID,
			Decision: "granted",
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to emit sign-in audit event", "error", err)
		}
	}
}

func (c *Coordinator) cacheProfile(ctx context.Context, ident *models.Identity) {
	entries := map[string]string{
		localstate.KeySessionToken:       ident.Token,
		localstate.KeyProfileUID:         ident.ID,
		localstate.KeyProfileEmail:       ident.Email,
		localstate.KeyProfileDisplayName: ident.DisplayName,
	}
	for key, value := range entries {
		if err := c.state.Set(ctx, key, value); err != nil {
			c.logger.ErrorContext(ctx, "failed to cache session profile", "key", key, "error", err)
		}
	}
}
