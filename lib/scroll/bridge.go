// Package scroll reads the page's scroll geometry and emits debounced
// metrics to the application core.
package scroll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onkernel/pagebridge/lib/debounce"
	"github.com/onkernel/pagebridge/lib/ports"
)

// DefaultWait is the quiet period before a burst of scroll events produces a
// metric.
const DefaultWait = 350 * time.Millisecond

// readTimeout bounds a single geometry read against the host.
const readTimeout = 10 * time.Second

// Viewport reads the current scroll geometry from the page.
type Viewport interface {
	ScrollState(ctx context.Context) (State, error)
}

type Option func(*config)

type config struct {
	wait  time.Duration
	clock debounce.Clock
}

func WithWait(d time.Duration) Option {
	return func(c *config) { c.wait = d }
}

func WithClock(clock debounce.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// Bridge turns scroll events into metrics on an outbound port. Trigger is
// safe to call from any goroutine.
type Bridge struct {
	viewport  Viewport
	out       ports.Sender[Metric]
	logger    *slog.Logger
	debouncer *debounce.Debouncer

	mu      sync.Mutex
	last    Metric
	emitted int
}

func NewBridge(viewport Viewport, out ports.Sender[Metric], logger *slog.Logger, opts ...Option) *Bridge {
	cfg := config{wait: DefaultWait}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Bridge{viewport: viewport, out: out, logger: logger}
	var dopts []debounce.Option
	if cfg.clock != nil {
		dopts = append(dopts, debounce.WithClock(cfg.clock))
	}
	b.debouncer = debounce.New(b.emit, cfg.wait, dopts...)
	return b
}

// Trigger is the handler attached to the page's scroll stream.
func (b *Bridge) Trigger() {
	b.debouncer.Call()
}

// Prime schedules the initial metric so the core learns the starting
// position before any scroll event.
func (b *Bridge) Prime() {
	b.debouncer.Call()
}

// Stop drops any pending emission.
func (b *Bridge) Stop() {
	b.debouncer.Stop()
}

// Last returns the most recent metric and whether one was emitted.
func (b *Bridge) Last() (Metric, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.emitted > 0
}

// Emitted returns how many metrics were written to the outbound port.
func (b *Bridge) Emitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitted
}

func (b *Bridge) emit() {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	state, err := b.viewport.ScrollState(ctx)
	if err != nil {
		b.logger.Error("failed to read scroll state", "err", err)
		return
	}
	m := FromState(state)

	b.mu.Lock()
	b.last = m
	b.emitted++
	b.mu.Unlock()

	b.out.Send(m)
	b.logger.Debug("scroll metric emitted", "offset", m.Offset(), "reachedEnd", m.ReachedEnd())
}
