// Package colorsync applies background colors sent by the application core
// to the page.
package colorsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Styler sets the page background. The value is passed to the page as-is.
type Styler interface {
	SetBackgroundColor(ctx context.Context, color string) error
}

type Bridge struct {
	styler Styler
	logger *slog.Logger

	mu      sync.Mutex
	last    string
	applied int
}

func NewBridge(styler Styler, logger *slog.Logger) *Bridge {
	return &Bridge{styler: styler, logger: logger}
}

// Apply sets the page background to color. Malformed colors are not
// rejected here; the page decides what to do with them.
func (b *Bridge) Apply(ctx context.Context, color string) error {
	if err := b.styler.SetBackgroundColor(ctx, color); err != nil {
		return fmt.Errorf("set background color %q: %w", color, err)
	}
	b.mu.Lock()
	b.last = color
	b.applied++
	b.mu.Unlock()
	b.logger.Debug("background color applied", "color", color)
	return nil
}

// Last returns the most recently applied color and whether any was applied.
func (b *Bridge) Last() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.applied > 0
}
