package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultBrowserImage = "chromedp/headless-shell:latest"
	devtoolsPort        = nat.Port("9222/tcp")
)

// BrowserContainer runs a headless Chromium with its DevTools port mapped to
// a free host port.
type BrowserContainer struct {
	Image   string
	CDPPort int
	ctr     testcontainers.Container
}

func NewBrowserContainer(tb testing.TB, image string) *BrowserContainer {
	tb.Helper()
	if image == "" {
		image = defaultBrowserImage
	}
	return &BrowserContainer{Image: image}
}

// Start starts the container and waits for DevTools to answer.
func (c *BrowserContainer) Start(ctx context.Context) error {
	ctr, err := testcontainers.Run(ctx, c.Image,
		testcontainers.WithExposedPorts(string(devtoolsPort)),
		testcontainers.WithTmpfs(map[string]string{"/dev/shm": "size=512m,mode=1777"}),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/json/version").
				WithPort(devtoolsPort).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	c.ctr = ctr

	port, err := ctr.MappedPort(ctx, devtoolsPort)
	if err != nil {
		return fmt.Errorf("failed to get CDP port: %w", err)
	}
	c.CDPPort = port.Int()
	return nil
}

// Stop stops and removes the container.
func (c *BrowserContainer) Stop() error {
	if c.ctr == nil {
		return nil
	}
	return testcontainers.TerminateContainer(c.ctr)
}

// DevToolsURL returns the HTTP DevTools endpoint on the host.
func (c *BrowserContainer) DevToolsURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.CDPPort)
}
