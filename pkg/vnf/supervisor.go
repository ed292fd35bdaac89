package vnf

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/newtron-network/routevnf/pkg/util"
)

// Default restart backoff bounds.
const (
	DefaultRestartDelay    = 2 * time.Second
	DefaultMaxRestartDelay = 30 * time.Second
)

// Supervisor runs a fresh VNF per attempt and restarts it after
// non-fatal failures.
type Supervisor struct {
	ctl      Controller
	cfg      Config
	delay    time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	current *VNF
}

// NewSupervisor creates a supervisor. Non-positive delays take the
// defaults.
func NewSupervisor(ctl Controller, cfg Config, delay, maxDelay time.Duration) *Supervisor {
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRestartDelay
	}
	maxDelay = max(maxDelay, delay)
	return &Supervisor{ctl: ctl, cfg: cfg, delay: delay, maxDelay: maxDelay}
}

// Run supervises VNF runs until ctx ends, which returns nil, or a run
// fails with a fatal error, which is returned. Other failures restart
// the VNF after a delay that doubles up to the maximum and resets after
// a run that outlived the maximum.
func (s *Supervisor) Run(ctx context.Context) error {
	b := s.newBackOff()
	for {
		v := New(s.ctl, s.cfg)
		s.setCurrent(v)

		start := time.Now()
		err := v.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || util.IsFatal(err) {
			return err
		}

		if time.Since(start) > s.maxDelay {
			b.Reset()
		}
		delay := b.NextBackOff()
		util.Errorf("VNF failed: %v; restarting in %v", err, delay)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Restarted()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// newBackOff returns an unjittered policy that never gives up.
func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.delay
	b.MaxInterval = s.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Supervisor) setCurrent(v *VNF) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = v
}

// Current returns the VNF of the running attempt, or nil before the
// first one.
func (s *Supervisor) Current() *VNF {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshot copies the state of the running attempt. It returns false
// before the first attempt has started.
func (s *Supervisor) Snapshot() (Snapshot, bool) {
	v := s.Current()
	if v == nil {
		return Snapshot{}, false
	}
	return v.Snapshot(), true
}
