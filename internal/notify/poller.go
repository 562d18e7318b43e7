// Package notify keeps a cached notification list fresh while a session is
// active.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"workflowhub/console/internal/api"
	"workflowhub/console/internal/session"
)

const DefaultInterval = 20 * time.Second

var (
	ErrNotRunning = errors.New("notification poller is not running")
	// ErrStale is returned by a fetch whose session ended while it was in
	// flight. Its result is dropped.
	ErrStale = errors.New("notification result is stale")
)

// Source is the slice of the API client the poller uses.
type Source interface {
	Notifications(ctx context.Context) ([]api.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DeleteNotification(ctx context.Context, id int64) error
}

type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

type Poller struct {
	src      Source
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	running   bool
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	cache     []api.Notification
	listeners []func([]api.Notification)
}

func New(src Source, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Poller{src: src, interval: interval, log: log}
}

// Watch starts polling when the session becomes Authenticated and stops it on
// any other state. It is meant for session.Manager.Subscribe and does not
// wait for the polling goroutine to exit.
func (p *Poller) Watch(snap session.Snapshot) {
	if snap.Authenticated() {
		p.Start()
		return
	}
	p.halt()
}

// Start begins polling: one fetch now, then one per interval. It is a no-op
// when already running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.gen++
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.gen, p.done)
}

// Stop halts polling and waits for the goroutine to exit, including one
// already cancelled by Watch. It must not be called from a session
// subscriber.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.haltLocked()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.haltLocked()
}

func (p *Poller) haltLocked() {
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	p.cancel()
	p.cache = nil
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Notifications returns a copy of the cached list, newest first.
func (p *Poller) Notifications() []api.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Notification(nil), p.cache...)
}

func (p *Poller) UnreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, item := range p.cache {
		if !item.Read {
			n++
		}
	}
	return n
}

// OnUpdate registers fn to receive the list after every successful fetch.
func (p *Poller) OnUpdate(fn func([]api.Notification)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Refresh fetches immediately with the same rules as a scheduled tick.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	running, gen := p.running, p.gen
	p.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return p.tick(ctx, gen)
}

func (p *Poller) MarkRead(ctx context.Context, id int64) error {
	if err := p.src.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	return p.refreshIfRunning(ctx)
}

func (p *Poller) Delete(ctx context.Context, id int64) error {
	if err := p.src.DeleteNotification(ctx, id); err != nil {
		return err
	}
	return p.refreshIfRunning(ctx)
}

func (p *Poller) refreshIfRunning(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

func (p *Poller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	_ = p.tick(ctx, gen)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.tick(ctx, gen)
		}
	}
}

// tick fetches once. A failure keeps the previous cache.
func (p *Poller) tick(ctx context.Context, gen uint64) error {
	list, err := p.src.Notifications(ctx)

	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrStale
	}
	if err != nil {
		p.mu.Unlock()
		p.log.Warn("notification fetch failed", "error", err)
		return err
	}
	if list == nil {
		list = []api.Notification{}
	}
	p.cache = list
	snapshot := append([]api.Notification(nil), list...)
	listeners := append([]func([]api.Notification)(nil), p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}
