// Package ports provides typed, one-directional message channels between the
// bridge and the application core. Sends never block: when the buffer is
// full the oldest queued message is dropped in favour of the new one.
package ports

import "sync"

// Sender is the producing end of a port.
type Sender[T any] interface {
	Send(v T)
}

// Receiver is the consuming end of a port.
type Receiver[T any] interface {
	Receive() <-chan T
}

type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets how many unconsumed messages the port retains. Values
// below one are treated as one.
func WithBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// Port is a named channel carrying values of a single type.
type Port[T any] struct {
	name string
	ch   chan T

	// serializes the drop-and-retry path so concurrent producers cannot
	// starve each other
	sendMu  sync.Mutex
	dropped int
}

func New[T any](name string, opts ...Option) *Port[T] {
	o := options{buffer: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.buffer < 1 {
		o.buffer = 1
	}
	return &Port[T]{name: name, ch: make(chan T, o.buffer)}
}

func (p *Port[T]) Name() string { return p.name }

// Send enqueues v. If the buffer is full the oldest message is discarded.
func (p *Port[T]) Send(v T) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	for {
		select {
		case p.ch <- v:
			return
		default:
		}
		select {
		case <-p.ch:
			p.dropped++
		default:
		}
	}
}

func (p *Port[T]) Receive() <-chan T {
	return p.ch
}

// Dropped returns how many messages were discarded because the consumer
// fell behind.
func (p *Port[T]) Dropped() int {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.dropped
}
