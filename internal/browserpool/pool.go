// Package browserpool multiplexes concurrent extraction requests over a
// fixed fleet of pre-launched browser processes. Callers check out an
// isolated browser context per request and hand it back through a Lease;
// when every instance is busy, acquisition queues strictly FIFO.
package browserpool

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"github.com/danvale/product-checker/internal/metrics"
)

var (
	// ErrNoBrowsersLaunched is returned when initialization could not start
	// a single browser. The pool is unusable in that state.
	ErrNoBrowsersLaunched = errors.New("browserpool: no browser instances launched")

	// ErrLeaseReleased is returned when a lease is released twice.
	ErrLeaseReleased = errors.New("browserpool: lease already released")

	// ErrPoolClosed is returned to waiters whose queued acquire is cut off
	// by a shutdown.
	ErrPoolClosed = errors.New("browserpool: pool is shut down")
)

// Browser is the slice of a browser process the pool needs: context
// creation, liveness, and teardown.
type Browser interface {
	NewContext() (Context, error)
	IsConnected() bool
	Close() error
}

// Context is one isolated cookie/storage jar within a browser instance.
type Context interface {
	NewPage() (playwright.Page, error)
	Close() error
}

// LaunchFunc starts one browser process. Launches during initialization run
// concurrently and are failure-isolated.
type LaunchFunc func(ctx context.Context) (Browser, error)

// Config holds pool construction parameters.
type Config struct {
	Size int
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Size      int `json:"size"`
	Busy      int `json:"busy"`
	Available int `json:"available"`
	Waiting   int `json:"waiting"`
}

type instance struct {
	id       int
	browser  Browser
	busy     bool
	lastUsed time.Time
}

type waiter struct {
	ch chan *instance
}

const (
	stateNew = iota
	stateInitializing
	stateReady
)

// Pool owns the browser fleet. Construct it with New, initialize it eagerly
// at startup or lazily on first acquire, and tear it down with Shutdown.
type Pool struct {
	launch  LaunchFunc
	size    int
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     int
	initDone  chan struct{}
	initErr   error
	instances []*instance
	waiters   []*waiter
	closed    bool
}

// New constructs a pool. The launch function is invoked once per instance
// during initialization and again when a dead instance is replaced.
func New(cfg Config, launch LaunchFunc, logger *slog.Logger, m *metrics.Metrics) *Pool {
	size := cfg.Size
	if size < 1 {
		size = 1
	}
	return &Pool{
		launch:  launch,
		size:    size,
		logger:  logger.With("component", "browserpool"),
		metrics: m,
	}
}

// Initialize launches the fleet. It is idempotent and safe to call
// concurrently: overlapping callers share a single initialization run.
// One failed launch does not abort the others; only zero survivors is fatal.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case stateReady:
		p.mu.Unlock()
		return nil
	case stateInitializing:
		done := p.initDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
		err := p.initErr
		p.mu.Unlock()
		return err
	}
	p.state = stateInitializing
	p.initDone = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info("initializing browser pool", "size", p.size)

	var launchMu sync.Mutex
	launched := make([]*instance, 0, p.size)

	var g errgroup.Group
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			b, err := p.launch(ctx)
			if err != nil {
				p.logger.Error("browser launch failed", "instance", i, "error", err)
				return nil
			}
			launchMu.Lock()
			launched = append(launched, &instance{id: i, browser: b})
			launchMu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // launches are failure-isolated

	sort.Slice(launched, func(a, b int) bool { return launched[a].id < launched[b].id })

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(launched) == 0 {
		p.state = stateNew
		p.initErr = ErrNoBrowsersLaunched
		close(p.initDone)
		return p.initErr
	}
	if len(launched) < p.size {
		p.logger.Warn("pool initialized below requested size",
			"requested", p.size, "launched", len(launched))
	}
	p.instances = launched
	p.state = stateReady
	p.initErr = nil
	close(p.initDone)
	p.publishStatsLocked()
	p.logger.Info("browser pool ready", "instances", len(launched))
	return nil
}

// IsInitialized reports whether the pool is ready to serve acquires.
func (p *Pool) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateReady
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	s := Stats{Size: len(p.instances), Waiting: len(p.waiters)}
	for _, inst := range p.instances {
		if inst.busy {
			s.Busy++
		} else {
			s.Available++
		}
	}
	return s
}

func (p *Pool) publishStatsLocked() {
	if p.metrics == nil {
		return
	}
	s := p.statsLocked()
	p.metrics.SetPoolStats(s.Busy, s.Available, s.Waiting)
}

// Acquire checks out an exclusive browser context. It never fails on
// contention: when every instance is busy the caller queues FIFO and is
// resumed by a release. Capacity freed while the queue is non-empty always
// goes to the oldest waiter, never to a fresh caller.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.waiters) == 0 {
		if inst := p.freeInstanceLocked(); inst != nil {
			inst.busy = true
			inst.lastUsed = time.Now()
			p.publishStatsLocked()
			p.mu.Unlock()
			return p.leaseFor(ctx, inst, start)
		}
	}

	w := &waiter{ch: make(chan *instance, 1)}
	p.waiters = append(p.waiters, w)
	p.publishStatsLocked()
	p.mu.Unlock()

	select {
	case inst := <-w.ch:
		if inst == nil {
			return nil, ErrPoolClosed
		}
		return p.leaseFor(ctx, inst, start)
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiterLocked(w)
		p.publishStatsLocked()
		p.mu.Unlock()
		if !removed {
			// Already granted an instance; put it straight back.
			if inst := <-w.ch; inst != nil {
				p.returnInstance(inst)
			}
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) freeInstanceLocked() *instance {
	for _, inst := range p.instances {
		if !inst.busy {
			return inst
		}
	}
	return nil
}

func (p *Pool) removeWaiterLocked(w *waiter) bool {
	for i, cand := range p.waiters {
		if cand == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// leaseFor builds the per-request context and page on a reserved instance.
// A browser process that died mid-flight is replaced here rather than left
// poisoning the pool.
func (p *Pool) leaseFor(ctx context.Context, inst *instance, start time.Time) (*Lease, error) {
	if !inst.browser.IsConnected() {
		p.logger.Warn("pooled browser no longer connected, relaunching", "instance", inst.id)
		if err := inst.browser.Close(); err != nil {
			p.logger.Warn("failed to close dead browser", "instance", inst.id, "error", err)
		}
		replacement, err := p.launch(ctx)
		if err != nil {
			p.returnInstance(inst)
			return nil, err
		}
		p.mu.Lock()
		inst.browser = replacement
		p.mu.Unlock()
	}

	bctx, err := inst.browser.NewContext()
	if err != nil {
		p.returnInstance(inst)
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		if cerr := bctx.Close(); cerr != nil {
			p.logger.Warn("failed to close context after page failure", "error", cerr)
		}
		p.returnInstance(inst)
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.ObserveAcquireWait(time.Since(start))
	}

	return &Lease{
		ID:      uuid.New(),
		Browser: inst.browser,
		Context: bctx,
		Page:    page,
		pool:    p,
		inst:    inst,
	}, nil
}

// returnInstance hands a freed instance to the oldest waiter, or marks it
// available when nobody is queued. The instance never transits through the
// free set while the queue is non-empty.
func (p *Pool) returnInstance(inst *instance) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		inst.busy = true
		inst.lastUsed = time.Now()
		p.publishStatsLocked()
		p.mu.Unlock()
		w.ch <- inst
		return
	}
	inst.busy = false
	p.publishStatsLocked()
	p.mu.Unlock()
}

// Shutdown closes every browser instance best-effort, fails queued waiters,
// and resets the pool to uninitialized. It is idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.state == stateNew && len(p.instances) == 0 {
		p.mu.Unlock()
		return
	}
	p.closed = true
	instances := p.instances
	waiters := p.waiters
	p.instances = nil
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w.ch <- nil
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, inst := range instances {
		g.Go(func() error {
			if err := inst.browser.Close(); err != nil {
				p.logger.Warn("error closing browser during shutdown",
					"instance", inst.id, "error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-instance errors are logged, not fatal

	p.mu.Lock()
	p.state = stateNew
	p.closed = false
	p.initErr = nil
	p.publishStatsLocked()
	p.mu.Unlock()
	p.logger.Info("browser pool shut down", "instances_closed", len(instances))
}

// Lease is one checked-out browsing session: a fresh isolated context and a
// page within it, bound to exactly one pool instance. Release must be called
// exactly once; releasing twice is reported, not silently ignored.
type Lease struct {
	ID      uuid.UUID
	Browser Browser
	Context Context
	Page    playwright.Page

	pool     *Pool
	inst     *instance
	released atomic.Bool
}

// Release closes the lease's context and returns the instance to the pool.
// Context close failures are logged and swallowed: a leaked context must
// never block returning the instance to service.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return ErrLeaseReleased
	}
	if l.Context != nil {
		if err := l.Context.Close(); err != nil {
			l.pool.logger.Warn("context close failed during release",
				"lease", l.ID, "error", err)
		}
	}
	l.pool.returnInstance(l.inst)
	return nil
}
