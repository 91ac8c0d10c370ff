package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/gridfuse/internal/monitoring"
	"github.com/banshee-data/gridfuse/internal/timeutil"
)

// Publisher delivers one fused output raster to the planner boundary.
type Publisher interface {
	Publish(name string, r *Raster) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(name string, r *Raster) error

// Publish calls f.
func (f PublisherFunc) Publish(name string, r *Raster) error { return f(name, r) }

// FanoutPublisher sends each output to every sink, logging per-sink
// failures without short-circuiting the rest.
type FanoutPublisher []Publisher

// Publish delivers r to every sink.
func (p FanoutPublisher) Publish(name string, r *Raster) error {
	for _, sink := range p {
		if err := sink.Publish(name, r); err != nil {
			monitoring.Logf("fusion: publish %q: %v", name, err)
		}
	}
	return nil
}

// ChannelPolicy describes how the scheduler treats one input channel.
type ChannelPolicy struct {
	Name string

	// StalenessTolerance is the maximum sample age used without
	// fast-forwarding.
	StalenessTolerance time.Duration
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Store       *LayerStore
	Channels    []ChannelPolicy
	Reprojector *Reprojector
	Normalizer  *Normalizer
	Aggregator  *Aggregator
	Publisher   Publisher

	// Period between fusion cycles.
	Period time.Duration

	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// Scheduler drives fusion cycles at a fixed period. Each tick is a pure
// function of (store snapshot, now, config): snapshot, normalize off-spec
// shapes, fast-forward stale layers, aggregate, publish. A failed cycle is
// logged and skipped; the loop never crashes. Ticks run on a single
// goroutine so cycles cannot overlap.
type Scheduler struct {
	cfg   SchedulerConfig
	clock timeutil.Clock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a Scheduler from the given wiring.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run starts the cycle loop and blocks until the context is cancelled or
// Stop is called. Returns nil on clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	defer func() {
		close(doneCh)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.cfg.Period <= 0 {
		monitoring.Logf("fusion: scheduler period %v is not positive, not starting", s.cfg.Period)
		return nil
	}

	ticker := s.clock.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	monitoring.Logf("fusion: scheduler started, period %v", s.cfg.Period)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C():
			s.RunCycle(ctx)
		}
	}
}

// Stop requests shutdown and waits for the loop to exit. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

// IsRunning reports whether the cycle loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunCycle executes one fusion cycle against the current store snapshot.
// Any panic inside the cycle is recovered and logged so the periodic loop
// survives malformed input.
func (s *Scheduler) RunCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			monitoring.Logf("fusion: cycle skipped after panic: %v", rec)
		}
	}()

	now := s.clock.Now()
	snapshot := s.cfg.Store.Snapshot()

	canonical := make(map[string]*Raster, len(s.cfg.Channels))
	for _, ch := range s.cfg.Channels {
		layer := s.prepareChannel(ctx, ch, snapshot[ch.Name], now)
		if layer != nil {
			canonical[ch.Name] = layer
		}
	}

	outputs := s.cfg.Aggregator.Combine(canonical, now)
	for _, name := range s.cfg.Aggregator.OutputNames() {
		out, ok := outputs[name]
		if !ok {
			continue
		}
		if err := s.cfg.Publisher.Publish(name, out); err != nil {
			monitoring.Logf("fusion: publish %q: %v", name, err)
		}
	}
}

// prepareChannel takes one channel's snapshot sample to canonical form, or
// nil when the channel cannot contribute this cycle.
func (s *Scheduler) prepareChannel(ctx context.Context, ch ChannelPolicy, r *Raster, now time.Time) *Raster {
	if r.Empty() {
		if r != nil {
			monitoring.Logf("fusion: channel %q sample is empty", ch.Name)
		}
		return nil
	}

	// Re-grid non-canonical producers before any motion compensation.
	// The anchor alignment is defined on the producer's native grid;
	// fast-forwarding first would stretch the native cells across the
	// canonical extent and lose it.
	r = s.cfg.Normalizer.Normalize(r)

	if IsStale(r.Stamp, now, ch.StalenessTolerance) {
		ff, err := s.cfg.Reprojector.FastForward(ctx, r, now)
		if err != nil {
			monitoring.Logf("fusion: channel %q dropped this cycle: %v", ch.Name, err)
			return nil
		}
		r = ff
	}

	return r
}
