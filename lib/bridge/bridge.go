// Package bridge connects a live page to the application core. It owns the
// scroll, scroll-toggle and background-color components and feeds them from
// the core's inbound ports on a single loop.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/onkernel/pagebridge/lib/colorsync"
	"github.com/onkernel/pagebridge/lib/debounce"
	"github.com/onkernel/pagebridge/lib/ports"
	"github.com/onkernel/pagebridge/lib/scroll"
	"github.com/onkernel/pagebridge/lib/toggle"
)

// Port names as seen by the application core.
const (
	PortScroll = "scroll-metric"
	PortToggle = "toggle-scroll-tracking"
	PortColor  = "background-color"
)

const shutdownTimeout = 5 * time.Second

// Host is everything the bridge needs from the page.
type Host interface {
	scroll.Viewport
	toggle.Registrar
	colorsync.Styler
}

// Core is the application core's side of the bridge: its static flags and
// the three channels it exchanges with the page.
type Core struct {
	Flags  json.RawMessage
	Scroll *ports.Port[scroll.Metric]
	Toggle *ports.Port[bool]
	Color  *ports.Port[string]
}

// NewCore builds a Core. Nil flags become an empty JSON object.
func NewCore(flags json.RawMessage, opts ...ports.Option) *Core {
	if len(flags) == 0 {
		flags = json.RawMessage(`{}`)
	}
	return &Core{
		Flags:  flags,
		Scroll: ports.New[scroll.Metric](PortScroll, opts...),
		Toggle: ports.New[bool](PortToggle, opts...),
		Color:  ports.New[string](PortColor, opts...),
	}
}

type Option func(*options)

type options struct {
	scrollWait time.Duration
	clock      debounce.Clock
}

// WithScrollWait overrides the scroll quiet period.
func WithScrollWait(d time.Duration) Option {
	return func(o *options) { o.scrollWait = d }
}

// WithClock replaces the clock driving the scroll debounce.
func WithClock(c debounce.Clock) Option {
	return func(o *options) { o.clock = c }
}

type Bridge struct {
	core   *Core
	logger *slog.Logger

	scroll *scroll.Bridge
	toggle *toggle.Manager
	color  *colorsync.Bridge

	running atomic.Bool
}

func New(core *Core, host Host, logger *slog.Logger, opts ...Option) *Bridge {
	o := options{scrollWait: scroll.DefaultWait}
	for _, opt := range opts {
		opt(&o)
	}
	sopts := []scroll.Option{scroll.WithWait(o.scrollWait)}
	if o.clock != nil {
		sopts = append(sopts, scroll.WithClock(o.clock))
	}

	sb := scroll.NewBridge(host, core.Scroll, logger, sopts...)
	return &Bridge{
		core:   core,
		logger: logger,
		scroll: sb,
		toggle: toggle.NewManager(host, sb.Trigger, logger),
		color:  colorsync.NewBridge(host, logger),
	}
}

// Run primes the initial scroll metric and then processes inbound messages
// one at a time until ctx is done. On exit the scroll listener is detached
// and any pending emission is dropped.
func (b *Bridge) Run(ctx context.Context) error {
	b.scroll.Prime()
	b.running.Store(true)
	defer b.running.Store(false)
	b.logger.Info("bridge started")

	for {
		select {
		case <-ctx.Done():
			b.shutdown(ctx)
			return nil
		case active := <-b.core.Toggle.Receive():
			if err := b.toggle.Apply(ctx, active); err != nil {
				b.logger.Error("failed to toggle scroll tracking", "active", active, "err", err)
			}
		case color := <-b.core.Color.Receive():
			if err := b.color.Apply(ctx, color); err != nil {
				b.logger.Error("failed to apply background color", "err", err)
			}
		}
	}
}

func (b *Bridge) shutdown(ctx context.Context) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := b.toggle.Close(closeCtx); err != nil {
		b.logger.Warn("failed to detach scroll listener on shutdown", "err", err)
	}
	b.scroll.Stop()
	b.logger.Info("bridge stopped")
}

// Status is a point-in-time view of the bridge.
type Status struct {
	Running        bool             `json:"running"`
	ScrollTracking string           `json:"scrollTracking"`
	MetricsEmitted int              `json:"metricsEmitted"`
	LastMetric     *scroll.Snapshot `json:"lastMetric,omitempty"`
	LastColor      *string          `json:"lastColor,omitempty"`
}

func (b *Bridge) Status() Status {
	s := Status{
		Running:        b.running.Load(),
		ScrollTracking: b.toggle.State().String(),
		MetricsEmitted: b.scroll.Emitted(),
	}
	if m, ok := b.scroll.Last(); ok {
		snap := m.Snapshot()
		s.LastMetric = &snap
	}
	if c, ok := b.color.Last(); ok {
		s.LastColor = &c
	}
	return s
}
