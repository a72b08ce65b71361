// Package health tracks whether the detection backend is reachable.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
)

// Status of the backend as last observed.
type Status int

const (
	Checking Status = iota
	Online
	Offline
)

func (s Status) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "checking"
	}
}

// Label is the text of the status indicator.
func (s Status) Label() string {
	switch s {
	case Online:
		return "Backend Online"
	case Offline:
		return "Backend Offline"
	default:
		return "Checking..."
	}
}

// OfflineHint is shown beneath the indicator while the backend is offline.
func OfflineHint(baseURL string) string {
	return "Make sure the backend server is running on " + baseURL
}

// OnlineMessage is the toast emitted when the backend comes online.
const OnlineMessage = "Backend is online and ready"

// Defaults.
const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Checker performs one health check.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    timeutil.Clock
	Notifier notify.Notifier
}

// Snapshot is the poller's observable state.
type Snapshot struct {
	Status      Status
	LastChecked time.Time
	LastError   string
}

// Poller checks the backend once on Start and then every Interval.
// Checks run concurrently and are never cancelled by later ones; the
// result that arrives last determines the status.
type Poller struct {
	checker Checker
	opts    Options

	mu      sync.Mutex
	snap    Snapshot
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	checks  sync.WaitGroup
}

// NewPoller creates a poller in the Checking state.
func NewPoller(checker Checker, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	return &Poller{checker: checker, opts: opts}
}

// Start runs an immediate check and schedules one per interval until ctx
// is done or Stop is called. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	p.loop.Add(1)
	go func() {
		defer p.loop.Done()
		defer ticker.Stop()

		p.Refresh()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C():
				p.Refresh()
			}
		}
	}()
}

// Refresh starts a check now without touching the interval schedule.
func (p *Poller) Refresh() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p.checks.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.checks.Done()
		cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		p.apply(p.checker.CheckHealth(cctx))
	}()
}

func (p *Poller) apply(err error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	prev := p.snap.Status
	p.snap.LastChecked = p.opts.Clock.Now()
	if err != nil {
		p.snap.Status = Offline
		p.snap.LastError = err.Error()
	} else {
		p.snap.Status = Online
		p.snap.LastError = ""
	}
	cur := p.snap.Status
	p.mu.Unlock()

	if prev != cur {
		monitoring.Infof("backend status %s -> %s", prev, cur)
	}
	if cur == Online && prev != Online {
		p.opts.Notifier.Success(OnlineMessage)
	}
}

// Stop ends polling. Checks still in flight are cancelled and their
// results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.loop.Wait()
	p.checks.Wait()
}

// Status returns the current status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Status
}

// Snapshot returns the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}
