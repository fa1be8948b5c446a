package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/pagebridge/lib/debounce/debouncetest"
	"github.com/onkernel/pagebridge/lib/logger"
	"github.com/onkernel/pagebridge/lib/scroll"
)

type fakeHost struct {
	mu       sync.Mutex
	state    scroll.State
	handler  func()
	attaches int
	detaches int
	colors   []string
}

func (h *fakeHost) ScrollState(context.Context) (scroll.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, nil
}

func (h *fakeHost) AttachScroll(_ context.Context, fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
	h.attaches++
	return nil
}

func (h *fakeHost) DetachScroll(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = nil
	h.detaches++
	return nil
}

func (h *fakeHost) SetBackgroundColor(_ context.Context, c string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.colors = append(h.colors, c)
	return nil
}

// scroll simulates a DOM scroll event; it is dropped when no listener is
// attached.
func (h *fakeHost) scroll(offset float64) {
	h.mu.Lock()
	h.state.Offset = offset
	fn := h.handler
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *fakeHost) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attaches, h.detaches
}

func (h *fakeHost) appliedColors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.colors...)
}

type harness struct {
	host   *fakeHost
	core   *Core
	bridge *Bridge
	clock  *debouncetest.ManualClock
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	host := &fakeHost{state: scroll.State{ViewportHeight: 600, DocumentHeight: 1400}}
	clock := debouncetest.NewManualClock()
	core := NewCore(json.RawMessage(`{"title":"Local Flickr's"}`))
	b := New(core, host, logger.Discard(), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{host: host, core: core, bridge: b, clock: clock, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- b.Run(ctx) }()
	require.Eventually(t, func() bool { return b.Status().Running }, time.Second, 5*time.Millisecond)
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

func (h *harness) nextMetric(t *testing.T) scroll.Metric {
	t.Helper()
	select {
	case m := <-h.core.Scroll.Receive():
		return m
	case <-time.After(time.Second):
		t.Fatal("no scroll metric emitted")
		return scroll.Metric{}
	}
}

func TestNewCoreDefaults(t *testing.T) {
	c := NewCore(nil)
	assert.JSONEq(t, `{}`, string(c.Flags))
	assert.Equal(t, PortScroll, c.Scroll.Name())
	assert.Equal(t, PortToggle, c.Toggle.Name())
	assert.Equal(t, PortColor, c.Color.Name())
}

func TestInitialMetricBeforeAnyScroll(t *testing.T) {
	h := startHarness(t)

	h.clock.Advance(scroll.DefaultWait)
	m := h.nextMetric(t)
	assert.Equal(t, scroll.NewMetric(0, 600, 1400), m)
	a, _ := h.host.counts()
	assert.Equal(t, 0, a)
}

func TestScrollEventsFlowOnlyWhileTracking(t *testing.T) {
	h := startHarness(t)
	h.clock.Advance(scroll.DefaultWait)
	h.nextMetric(t)

	// Not attached yet: the event never reaches the bridge.
	h.host.scroll(100)
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.bridge.Status().MetricsEmitted)

	h.core.Toggle.Send(true)
	require.Eventually(t, func() bool { a, _ := h.host.counts(); return a == 1 }, time.Second, 5*time.Millisecond)

	h.host.scroll(400)
	h.host.scroll(800)
	h.clock.Advance(scroll.DefaultWait)
	m := h.nextMetric(t)
	assert.Equal(t, 800.0, m.Offset())
	assert.True(t, m.ReachedEnd())

	h.core.Toggle.Send(false)
	require.Eventually(t, func() bool { _, d := h.host.counts(); return d == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "disabled", h.bridge.Status().ScrollTracking)
}

func TestDuplicateToggleThroughPorts(t *testing.T) {
	h := startHarness(t)

	for _, v := range []bool{true, true, false} {
		h.core.Toggle.Send(v)
		// wait for the loop to consume before sending the next value
		require.Eventually(t, func() bool { return len(h.core.Toggle.Receive()) == 0 }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { _, d := h.host.counts(); return d == 1 }, time.Second, 5*time.Millisecond)
	a, d := h.host.counts()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, d)
}

func TestBackgroundColorApplied(t *testing.T) {
	h := startHarness(t)

	h.core.Color.Send("#112233")
	require.Eventually(t, func() bool { return len(h.host.appliedColors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"#112233"}, h.host.appliedColors())

	st := h.bridge.Status()
	require.NotNil(t, st.LastColor)
	assert.Equal(t, "#112233", *st.LastColor)
}

func TestShutdownDetachesListener(t *testing.T) {
	h := startHarness(t)
	h.core.Toggle.Send(true)
	require.Eventually(t, func() bool { a, _ := h.host.counts(); return a == 1 }, time.Second, 5*time.Millisecond)

	h.stop()
	_, d := h.host.counts()
	assert.Equal(t, 1, d)
	assert.False(t, h.bridge.Status().Running)
}
