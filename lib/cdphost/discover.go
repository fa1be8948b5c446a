package cdphost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
)

const (
	versionPath    = "/json/version"
	discoveryDelay = 500 * time.Millisecond
)

// ResolveUpstream returns the browser-level DevTools websocket URL. A ws://
// or wss:// URL is returned unchanged. An http:// or https:// URL is treated
// as the DevTools HTTP endpoint and queried for webSocketDebuggerUrl,
// retrying until the browser answers or attempts run out.
func ResolveUpstream(ctx context.Context, rawURL string, attempts uint, logger *slog.Logger) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid CDP URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return rawURL, nil
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported CDP URL scheme %q", u.Scheme)
	}

	endpoint := strings.TrimSuffix(u.String(), "/") + versionPath
	client := &http.Client{Timeout: 5 * time.Second}

	var wsURL string
	err = retry.New(
		retry.Attempts(attempts),
		retry.Delay(discoveryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		found, err := fetchDebuggerURL(ctx, client, endpoint)
		if err != nil {
			logger.Debug("devtools endpoint not ready", "endpoint", endpoint, "err", err)
			return err
		}
		wsURL = found
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve devtools upstream from %s: %w", endpoint, err)
	}
	logger.Info("devtools upstream resolved", "url", wsURL)
	return wsURL, nil
}

func fetchDebuggerURL(ctx context.Context, client *http.Client, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode %s: %w", versionPath, err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s has no webSocketDebuggerUrl", versionPath)
	}
	return version.WebSocketDebuggerURL, nil
}

// DialWithRetry resolves the upstream and dials it, retrying the dial while
// the browser has no page target yet.
func DialWithRetry(ctx context.Context, rawURL string, attempts uint, logger *slog.Logger) (*Host, error) {
	var host *Host
	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(discoveryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		upstream, err := ResolveUpstream(ctx, rawURL, 1, logger)
		if err != nil {
			return err
		}
		h, err := Dial(ctx, upstream, logger)
		if err != nil {
			logger.Warn("CDP dial failed", "err", err)
			return err
		}
		host = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return host, nil
}
