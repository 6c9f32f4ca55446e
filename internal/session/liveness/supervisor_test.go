package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"intellib/internal/platform/logger"
	"intellib/internal/platform/metrics"
)

const testInterval = 20 * time.Millisecond

var errDown = errors.New("503 service unavailable")

// scriptedProber answers probe n with results[n], repeating the last entry.
type scriptedProber struct {
	mu      sync.Mutex
	results []error
	calls   int
	active  atomic.Int32
	overlap atomic.Bool
}

func (p *scriptedProber) Probe(ctx context.Context) error {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i]
}

func (p *scriptedProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// lateFailingProber stays in flight until the supervisor is deactivated and
// the test releases it, then resolves as unreachable.
type lateFailingProber struct {
	started chan struct{}
	release chan struct{}
}

func (p *lateFailingProber) Probe(ctx context.Context) error {
	p.started <- struct{}{}
	<-ctx.Done()
	<-p.release
	return errDown
}

type teardownCounter struct {
	count atomic.Int32
}

func (c *teardownCounter) onUnreachable(context.Context, error) {
	c.count.Add(1)
}

type SupervisorSuite struct {
	suite.Suite
	teardowns *teardownCounter
	metrics   *metrics.Metrics
}

func TestSupervisorSuite(t *testing.T) {
	suite.Run(t, new(SupervisorSuite))
}

func (s *SupervisorSuite) SetupTest() {
	s.teardowns = &teardownCounter{}
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *SupervisorSuite) newSupervisor(p Prober) *Supervisor {
	return NewSupervisor(p, s.teardowns.onUnreachable,
		WithInterval(testInterval),
		WithLogger(logger.Discard()),
		WithMetrics(s.metrics),
	)
}

func (s *SupervisorSuite) TestProbesImmediatelyOnStart() {
	prober := &scriptedProber{results: []error{nil}}
	sup := NewSupervisor(prober, s.teardowns.onUnreachable, WithInterval(time.Hour), WithLogger(logger.Discard()))
	sup.Start(context.Background())
	defer sup.Stop()

	s.Eventually(func() bool { return prober.Calls() == 1 }, time.Second, time.Millisecond)
	s.True(sup.State().Reachable)
}

func (s *SupervisorSuite) TestHealthyBackendNeverTearsDown() {
	prober := &scriptedProber{results: []error{nil}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())

	s.Eventually(func() bool { return prober.Calls() >= 10 }, 2*time.Second, time.Millisecond)
	sup.Stop()

	s.Equal(int32(0), s.teardowns.count.Load())
	s.False(prober.overlap.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BackendReachable))
}

func (s *SupervisorSuite) TestFailedProbeTriggersOneTeardownPerTick() {
	// Healthy for two ticks, then a 503 on the third.
	prober := &scriptedProber{results: []error{nil, nil, errDown, nil}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())

	s.Eventually(func() bool { return prober.Calls() >= 6 }, 2*time.Second, time.Millisecond)
	sup.Stop()

	s.Equal(int32(1), s.teardowns.count.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProbesTotal.WithLabelValues(metrics.OutcomeUnreachable)))
	s.True(sup.State().Reachable)
}

func (s *SupervisorSuite) TestEveryFailingTickReports() {
	prober := &scriptedProber{results: []error{errDown}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())

	s.Eventually(func() bool { return s.teardowns.count.Load() >= 3 }, 2*time.Second, time.Millisecond)
	sup.Stop()

	// A probe cut short by Stop is discarded, so at most one call goes unreported.
	calls := prober.Calls()
	s.InDelta(float64(calls), float64(s.teardowns.count.Load()), 1)
	s.False(sup.State().Reachable)
	s.ErrorIs(sup.State().Err, errDown)
}

func (s *SupervisorSuite) TestInFlightProbeIsDiscardedAfterStop() {
	prober := &lateFailingProber{started: make(chan struct{}), release: make(chan struct{})}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())

	<-prober.started
	stopped := make(chan struct{})
	go func() {
		sup.Stop()
		close(stopped)
	}()
	close(prober.release)
	<-stopped

	s.Equal(int32(0), s.teardowns.count.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProbesTotal.WithLabelValues(metrics.OutcomeDiscarded)))
}

func (s *SupervisorSuite) TestNoProbesAfterStop() {
	prober := &scriptedProber{results: []error{errDown}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())
	s.Eventually(func() bool { return prober.Calls() >= 1 }, time.Second, time.Millisecond)
	sup.Stop()

	calls := prober.Calls()
	time.Sleep(5 * testInterval)
	s.Equal(calls, prober.Calls())
}

func (s *SupervisorSuite) TestStopIsSafeWithoutStart() {
	sup := s.newSupervisor(&scriptedProber{results: []error{nil}})
	sup.Stop()
	sup.Stop()
}

func (s *SupervisorSuite) TestStartTwiceRunsOneLoop() {
	prober := &scriptedProber{results: []error{nil}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())
	sup.Start(context.Background())

	s.Eventually(func() bool { return prober.Calls() >= 5 }, 2*time.Second, time.Millisecond)
	sup.Stop()
	s.False(prober.overlap.Load())
}

func (s *SupervisorSuite) TestRestartAfterStop() {
	prober := &scriptedProber{results: []error{nil}}
	sup := s.newSupervisor(prober)
	sup.Start(context.Background())
	s.Eventually(func() bool { return prober.Calls() >= 1 }, time.Second, time.Millisecond)
	sup.Stop()

	before := prober.Calls()
	sup.Start(context.Background())
	s.Eventually(func() bool { return prober.Calls() > before }, time.Second, time.Millisecond)
	sup.Stop()
}

func (s *SupervisorSuite) TestParentContextCancellationStops() {
	prober := &scriptedProber{results: []error{errDown}}
	sup := s.newSupervisor(prober)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)
	s.Eventually(func() bool { return prober.Calls() >= 1 }, time.Second, time.Millisecond)
	cancel()

	sup.Stop()
	calls := prober.Calls()
	time.Sleep(3 * testInterval)
	s.Equal(calls, prober.Calls())
}

func (s *SupervisorSuite) TestStartAgainAfterParentContextEnds() {
	prober := &scriptedProber{results: []error{nil}}
	sup := s.newSupervisor(prober)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)
	s.Eventually(func() bool { return prober.Calls() >= 1 }, time.Second, time.Millisecond)
	cancel()

	s.Eventually(func() bool {
		sup.mu.Lock()
		defer sup.mu.Unlock()
		return sup.done == nil
	}, time.Second, time.Millisecond)

	before := prober.Calls()
	sup.Start(context.Background())
	s.Eventually(func() bool { return prober.Calls() > before }, time.Second, time.Millisecond)
	sup.Stop()
}
