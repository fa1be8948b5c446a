// Package toggle owns the page's scroll-listener registration and switches
// it on and off in response to the application core.
package toggle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type State int

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Registrar attaches and detaches the scroll handler on the live page.
type Registrar interface {
	AttachScroll(ctx context.Context, handler func()) error
	DetachScroll(ctx context.Context) error
}

// Manager is the sole owner of the scroll-listener registration. It calls
// the registrar exactly once per state change.
type Manager struct {
	registrar Registrar
	handler   func()
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

func NewManager(registrar Registrar, handler func(), logger *slog.Logger) *Manager {
	return &Manager{registrar: registrar, handler: handler, logger: logger}
}

// Apply moves the manager to Enabled when active is true and to Disabled
// otherwise. A failed host call leaves the state unchanged.
func (m *Manager) Apply(ctx context.Context, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := Disabled
	if active {
		want = Enabled
	}
	if want == m.state {
		m.logger.Debug("scroll tracking unchanged", "state", m.state)
		return nil
	}

	if want == Enabled {
		if err := m.registrar.AttachScroll(ctx, m.handler); err != nil {
			return fmt.Errorf("attach scroll listener: %w", err)
		}
	} else {
		if err := m.registrar.DetachScroll(ctx); err != nil {
			return fmt.Errorf("detach scroll listener: %w", err)
		}
	}
	m.logger.Info("scroll tracking changed", "from", m.state, "to", want)
	m.state = want
	return nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close detaches the listener if it is attached.
func (m *Manager) Close(ctx context.Context) error {
	return m.Apply(ctx, false)
}
