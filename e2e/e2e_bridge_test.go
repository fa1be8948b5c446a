package e2e

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/pagebridge/lib/bridge"
	"github.com/onkernel/pagebridge/lib/cdphost"
	"github.com/onkernel/pagebridge/lib/coresocket"
	"github.com/onkernel/pagebridge/lib/logger"
)

func TestBridgeAgainstHeadlessChromium(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	browser := NewBrowserContainer(t, os.Getenv("E2E_BROWSER_IMAGE"))
	require.NoError(t, browser.Start(ctx))
	defer browser.Stop()

	log := logger.New(os.Stdout, "debug")
	host, err := cdphost.DialWithRetry(ctx, browser.DevToolsURL(), 10, log)
	require.NoError(t, err)
	defer host.Close()

	core := bridge.NewCore(json.RawMessage(`{"title":"e2e"}`))
	b := bridge.New(core, host, log, bridge.WithScrollWait(100*time.Millisecond))
	hub := coresocket.NewHub(core, log)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go b.Run(runCtx)
	go hub.Run(runCtx)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg coresocket.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, coresocket.PortInit, msg.Port)

	// the initial metric arrives without any scrolling
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, bridge.PortScroll, msg.Port)
	var tuple []any
	require.NoError(t, json.Unmarshal(msg.Value, &tuple))
	require.Len(t, tuple, 2)

	value, _ := json.Marshal("#112233")
	require.NoError(t, wsjson.Write(ctx, conn, coresocket.Message{Port: bridge.PortColor, Value: value}))
	require.Eventually(t, func() bool {
		c, err := host.BackgroundColor(ctx)
		return err == nil && c == "rgb(17, 34, 51)"
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, wsjson.Write(ctx, conn, coresocket.Message{Port: bridge.PortToggle, Value: json.RawMessage(`true`)}))
	require.Eventually(t, func() bool { return host.Info().Tracking }, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, "enabled", b.Status().ScrollTracking)
}
