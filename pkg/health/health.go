// Package health tracks whether remote dependencies are reachable.
//
// Each registered check can run in a background goroutine at a fixed
// interval, and can be run on demand. A check must fail failureThreshold
// times in a row before it is reported unreachable, and succeed
// successThreshold times in a row before it is reported reachable again.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default thresholds applied by Add.
const (
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 1
)

// CheckFunc probes a dependency. It returns nil when the dependency is
// reachable.
type CheckFunc func(ctx context.Context) error

// Status is the observed state of a single check.
type Status struct {
	Name    string
	Healthy bool
	// LastError is the error of the most recent run, nil if it passed.
	LastError error
	// CheckedAt is zero until the check has run once.
	CheckedAt time.Time
}

type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	// mu serializes runs; the counters below are only touched by run.
	mu               sync.Mutex
	healthy          bool
	lastErr          error
	checkedAt        time.Time
	consecutiveFails int
	consecutiveOK    int
}

// run executes the check once, updates thresholds and reports whether the
// health state flipped.
func (c *check) run(ctx context.Context, now time.Time) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr = err
	c.checkedAt = now

	was := c.healthy
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy = false
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy = true
		}
	}
	return c.statusLocked(), was != c.healthy
}

func (c *check) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *check) statusLocked() Status {
	return Status{Name: c.name, Healthy: c.healthy, LastError: c.lastErr, CheckedAt: c.checkedAt}
}

// Monitor runs reachability checks and keeps their latest state.
type Monitor struct {
	lg  *zap.Logger
	now func() time.Time

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// NewMonitor creates a Monitor that logs state changes to lg.
func NewMonitor(lg *zap.Logger) *Monitor {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Monitor{lg: lg, now: time.Now}
}

// Add registers a check with the default thresholds. Checks start healthy.
func (m *Monitor) Add(name string, timeout time.Duration, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks = append(m.checks, &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: DefaultFailureThreshold,
		successThreshold: DefaultSuccessThreshold,
		healthy:          true,
	})
}

// Start runs every check in its own goroutine at interval until Stop is
// called or ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	checks := append([]*check(nil), m.checks...)
	m.mu.Unlock()

	for _, c := range checks {
		go m.loop(ctx, c, interval)
	}
}

func (m *Monitor) loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.runOne(ctx, c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOne(ctx, c)
		}
	}
}

// Stop cancels background checks. It is safe to call Stop multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// CheckNow runs every check once and returns the resulting statuses in
// registration order.
func (m *Monitor) CheckNow(ctx context.Context) []Status {
	checks := m.snapshot()
	out := make([]Status, 0, len(checks))
	for _, c := range checks {
		out = append(out, m.runOne(ctx, c))
	}
	return out
}

// Statuses returns the latest state of every check without running them.
func (m *Monitor) Statuses() []Status {
	checks := m.snapshot()
	out := make([]Status, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.status())
	}
	return out
}

// Healthy reports whether every check is currently healthy.
func (m *Monitor) Healthy() bool {
	for _, s := range m.Statuses() {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func (m *Monitor) runOne(ctx context.Context, c *check) Status {
	s, flipped := c.run(ctx, m.now())
	if !flipped {
		return s
	}
	if s.Healthy {
		m.lg.Info("Dependency reachable again", zap.String("check", s.Name))
	} else {
		m.lg.Warn("Dependency unreachable", zap.String("check", s.Name), zap.Error(s.LastError))
	}
	return s
}

func (m *Monitor) snapshot() []*check {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*check(nil), m.checks...)
}
