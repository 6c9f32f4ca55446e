// Package liveness polls the backend health endpoint and reports an
// unreachable backend so the session can be torn down.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intellib/internal/platform/metrics"
	"intellib/internal/session/models"
)

const defaultInterval = 5 * time.Second

// UnreachableFunc is invoked once for every failed probe.
type UnreachableFunc func(ctx context.Context, err error)

// Supervisor probes immediately on Start and then once per interval,
// counted from the end of the previous probe, so at most one probe is in
// flight. One failed probe is enough to report the backend unreachable.
type Supervisor struct {
	prober        Prober
	onUnreachable UnreachableFunc
	interval      time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	state  models.LivenessState
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterval sets the pause between probes.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// NewSupervisor builds an inactive supervisor.
func NewSupervisor(prober Prober, onUnreachable UnreachableFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		prober:        prober,
		onUnreachable: onUnreachable,
		interval:      defaultInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start activates the supervisor. It returns immediately; probing runs until
// Stop is called or ctx is cancelled. Starting an active supervisor is a no-op;
// once ctx is cancelled the supervisor is inactive and may be started again.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(runCtx, done)
}

// Stop deactivates the supervisor and waits for the loop to exit. Once it
// returns, no probe result can reach the unreachable handler. Stop is safe
// to call repeatedly and before Start, but not from the handler itself.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the most recent probe result.
func (s *Supervisor) State() models.LivenessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.release(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.tick(ctx)
		timer.Reset(s.interval)
	}
}

// release drops the handle of a loop that ended on its own, unless Stop or a
// later Start has already replaced it.
func (s *Supervisor) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
}

func (s *Supervisor) tick(ctx context.Context) {
	ctx, span := otel.Tracer("intellib/session/liveness").Start(ctx, "liveness.probe",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	err := s.prober.Probe(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	// Deactivated while the probe was in flight: the result is stale.
	if ctx.Err() != nil {
		s.observe(metrics.OutcomeDiscarded, elapsed)
		return
	}

	s.mu.Lock()
	s.state = models.LivenessState{Reachable: err == nil, CheckedAt: time.Now(), Err: err}
	s.mu.Unlock()

	if err == nil {
		s.observe(metrics.OutcomeReachable, elapsed)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "backend unreachable")
	s.observe(metrics.OutcomeUnreachable, elapsed)
	s.logger.WarnContext(ctx, "backend unreachable, tearing down session", "error", err)
	s.onUnreachable(ctx, err)
}

func (s *Supervisor) observe(outcome string, elapsedMs float64) {
	if s.metrics != nil {
		s.metrics.ObserveProbe(outcome, elapsedMs)
	}
}
