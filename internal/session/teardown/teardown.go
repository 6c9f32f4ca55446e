// Package teardown implements the logout routine shared by explicit logout,
// identity loss and backend unavailability.
package teardown

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intellib/internal/audit"
	"intellib/internal/platform/metrics"
	"intellib/internal/session/models"
)

//go:generate mockgen -source=teardown.go -destination=mocks/mocks.go -package=mocks

// SignOuter ends the identity provider session.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// IdentityClearer drops the observable identity.
type IdentityClearer interface {
	Clear()
	Current() *models.Identity
}

// StateClearer wipes locally persisted session state.
type StateClearer interface {
	Clear(ctx context.Context) error
}

// Navigator moves the shell to another location.
type Navigator interface {
	Navigate(path string)
}

// AuditPublisher records teardown events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultLoginPath      = "/login"
	defaultSignOutTimeout = 3 * time.Second
)

// Procedure brings the shell to a logged-out state. Run is guarded by a
// compare-and-set gate: one caller performs the teardown and every other
// call collapses until a new sign-in re-arms the gate.
type Procedure struct {
	signOut    SignOuter
	identities IdentityClearer
	state      StateClearer
	nav        Navigator

	loginPath      string
	signOutTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	audit          AuditPublisher

	gate       atomic.Int32
	lastReason atomic.Value
}

// Option configures a Procedure.
type Option func(*Procedure)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Procedure) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Procedure) {
		p.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(p *Procedure) {
		p.audit = publisher
	}
}

// WithLoginPath sets the navigation target (default "/login").
func WithLoginPath(path string) Option {
	return func(p *Procedure) {
		if path != "" {
			p.loginPath = path
		}
	}
}

// WithSignOutTimeout bounds the identity provider sign-out call.
func WithSignOutTimeout(d time.Duration) Option {
	return func(p *Procedure) {
		if d > 0 {
			p.signOutTimeout = d
		}
	}
}

// New constructs a Procedure in the unknown state, so the first trigger
// also sweeps state left behind by a previous run.
func New(signOut SignOuter, identities IdentityClearer, state StateClearer, nav Navigator, opts ...Option) *Procedure {
	p := &Procedure{
		signOut:        signOut,
		identities:     identities,
		state:          state,
		nav:            nav,
		loginPath:      defaultLoginPath,
		signOutTimeout: defaultSignOutTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run tears the session down. It reports whether this call performed the
// teardown; false means another trigger already did or is doing it. Run
// never fails: provider and storage errors are logged and skipped, and the
// navigation to the login path always happens.
//
// An explicit logout after the session has ended still clears local state
// and returns to the login path, without signing out again.
func (p *Procedure) Run(ctx context.Context, reason models.TeardownReason) bool {
	if !p.acquire() {
		p.logger.DebugContext(ctx, "teardown already handled", "reason", reason.String(), "state", p.State().String())
		if p.metrics != nil {
			p.metrics.IncTeardownCollapsed()
		}
		if reason == models.ReasonUserLogout && p.State() == models.StateUnauthenticated {
			p.sweep(context.WithoutCancel(ctx))
		}
		return false
	}

	// Cancellation of the trigger (a stopped supervisor, a closed request)
	// must not abort a teardown that has started.
	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.Tracer("intellib/session/teardown").Start(ctx, "session.teardown",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("teardown.reason", reason.String())),
	)
	defer span.End()

	var userID string
	if ident := p.identities.Current(); ident != nil {
		userID = ident.ID
	}

	defer func() {
		p.lastReason.Store(reason)
		p.gate.Store(int32(models.StateUnauthenticated))
		p.nav.Navigate(p.loginPath)
		p.logger.InfoContext(ctx, "session torn down", "reason", reason.String(), "user_id", userID)
	}()

	signOutCtx, cancel := context.WithTimeout(ctx, p.signOutTimeout)
	err := p.signOut.SignOut(signOutCtx)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign out failed")
		p.logger.WarnContext(ctx, "identity provider sign out failed; continuing teardown", "error", err)
		if p.metrics != nil {
			p.metrics.IncSignOutFailures()
		}
	}

	p.identities.Clear()

	if err := p.state.Clear(ctx); err != nil {
		span.RecordError(err)
		p.logger.ErrorContext(ctx, "failed to clear local session state", "error", err)
		if p.metrics != nil {
			p.metrics.IncStateClearFailures()
		}
	}

	if p.metrics != nil {
		p.metrics.IncTeardown(reason.String())
	}
	p.emitAudit(ctx, userID, reason, err)
	return true
}

// Arm re-enables teardown after a new identity has been observed. It is a
// no-op while a teardown is in progress or the session is already armed.
func (p *Procedure) Arm() bool {
	if p.gate.CompareAndSwap(int32(models.StateUnauthenticated), int32(models.StateAuthenticated)) {
		return true
	}
	return p.gate.CompareAndSwap(int32(models.StateUnknown), int32(models.StateAuthenticated))
}

// State reports the gate state.
func (p *Procedure) State() models.State {
	return models.State(p.gate.Load())
}

// LastReason is the trigger of the most recent completed teardown, or "".
func (p *Procedure) LastReason() models.TeardownReason {
	r, _ := p.lastReason.Load().(models.TeardownReason)
	return r
}

// acquire takes the gate from an armed or unknown session, or from an ended
// one that an identity has reached since (a sign-in that landed while the
// previous teardown was running).
func (p *Procedure) acquire() bool {
	if p.gate.CompareAndSwap(int32(models.StateAuthenticated), int32(models.StateTearingDown)) {
		return true
	}
	if p.gate.CompareAndSwap(int32(models.StateUnknown), int32(models.StateTearingDown)) {
		return true
	}
	if p.gate.Load() != int32(models.StateUnauthenticated) || p.identities.Current() == nil {
		return false
	}
	return p.gate.CompareAndSwap(int32(models.StateUnauthenticated), int32(models.StateTearingDown))
}

func (p *Procedure) sweep(ctx context.Context) {
	if err := p.state.Clear(ctx); err != nil {
		p.logger.ErrorContext(ctx, "failed to clear local session state", "error", err)
		if p.metrics != nil {
			p.metrics.IncStateClearFailures()
		}
	}
	p.nav.Navigate(p.loginPath)
}

func (p *Procedure) emitAudit(ctx context.Context, userID string, reason models.TeardownReason, signOutErr error) {
	if p.audit == nil {
		return
	}
	decision := "signed_out"
	if signOutErr != nil {
		decision = "signed_out_locally"
	}
	err := p.audit.Emit(ctx, audit.Event{
		Action:   string(audit.EventSessionTornDown),
		UserID:   userID,
		Reason:   reason.String(),
		Decision: decision,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to emit teardown audit event", "error", err)
	}
}
