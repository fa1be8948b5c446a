// Package cdphost drives a live Chromium page over the Chrome DevTools
// Protocol. It reads scroll geometry, installs and removes the page's scroll
// listener, and sets the page background.
package cdphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/onkernel/pagebridge/lib/scroll"
)

const (
	callTimeout   = 30 * time.Second
	dialTimeout   = 10 * time.Second
	readLimit     = 32 * 1024 * 1024
	reinstallWait = 10 * time.Millisecond
)

var (
	ErrClosed      = errors.New("cdp connection closed")
	ErrNoPage      = errors.New("no page target attached")
	errNoPageFound = errors.New("no page target found")
)

// Host is a CDP session attached to the first page target of a browser.
type Host struct {
	logger *slog.Logger
	conn   *websocket.Conn
	msgID  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// serializes listener installs and removals on the page
	listenMu sync.Mutex

	mu        sync.Mutex
	pending   map[int64]chan cdpMessage
	sessionID string
	targetID  string
	pageURL   string
	handler   func()
}

// Dial connects to the browser-level DevTools websocket, attaches to the
// first page target and prepares it for scroll tracking.
func Dial(ctx context.Context, upstreamURL string, logger *slog.Logger) (*Host, error) {
	parsed, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, upstreamURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Host": []string{parsed.Host}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CDP: %w", err)
	}
	conn.SetReadLimit(readLimit)

	hostCtx, hostCancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Host{
		logger:  logger,
		conn:    conn,
		ctx:     hostCtx,
		cancel:  hostCancel,
		done:    make(chan struct{}),
		pending: make(map[int64]chan cdpMessage),
	}
	go h.readLoop()

	if err := h.attachFirstPage(ctx); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Close tears down the CDP connection. Pending calls fail with ErrClosed.
func (h *Host) Close() {
	h.cancel()
	_ = h.conn.Close(websocket.StatusNormalClosure, "pagebridge closing")
}

// Done is closed once the connection to the browser is gone or the page
// target was detached.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Info describes the attached page.
type Info struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
	URL       string `json:"url"`
	Tracking  bool   `json:"tracking"`
}

func (h *Host) Info() Info {
	connected := true
	select {
	case <-h.done:
		connected = false
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Info{
		Connected: connected,
		SessionID: h.sessionID,
		TargetID:  h.targetID,
		URL:       h.pageURL,
		Tracking:  h.handler != nil,
	}
}

// ScrollState reads the page's scroll offset, viewport height and document
// height.
func (h *Host) ScrollState(ctx context.Context) (scroll.State, error) {
	raw, err := h.evaluate(ctx, scrollStateScript)
	if err != nil {
		return scroll.State{}, err
	}
	var st scroll.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return scroll.State{}, fmt.Errorf("unmarshal scroll state: %w", err)
	}
	return st, nil
}

// AttachScroll routes the page's scroll and resize events to handler.
func (h *Host) AttachScroll(ctx context.Context, handler func()) error {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()

	h.mu.Lock()
	prev := h.handler
	h.handler = handler
	h.mu.Unlock()

	if _, err := h.evaluate(ctx, attachScript); err != nil {
		h.mu.Lock()
		h.handler = prev
		h.mu.Unlock()
		return err
	}
	return nil
}

// DetachScroll removes the page listeners and forgets the handler.
func (h *Host) DetachScroll(ctx context.Context) error {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()

	if _, err := h.evaluate(ctx, detachScript); err != nil {
		return err
	}
	h.mu.Lock()
	h.handler = nil
	h.mu.Unlock()
	return nil
}

// SetBackgroundColor assigns color to the page body's background as-is.
func (h *Host) SetBackgroundColor(ctx context.Context, color string) error {
	_, err := h.evaluate(ctx, backgroundColorScript(color))
	return err
}

// BackgroundColor reads the body's inline background color as the page
// normalized it.
func (h *Host) BackgroundColor(ctx context.Context) (string, error) {
	raw, err := h.evaluate(ctx, backgroundColorReadScript)
	if err != nil {
		return "", err
	}
	var color string
	if err := json.Unmarshal(raw, &color); err != nil {
		return "", fmt.Errorf("unmarshal background color: %w", err)
	}
	return color, nil
}

func (h *Host) attachFirstPage(ctx context.Context) error {
	result, err := h.call(ctx, "Target.getTargets", nil, "")
	if err != nil {
		return fmt.Errorf("getTargets: %w", err)
	}
	var targets struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := json.Unmarshal(result, &targets); err != nil {
		return fmt.Errorf("unmarshal targets: %w", err)
	}

	for _, t := range targets.TargetInfos {
		if t.Type != "page" {
			continue
		}
		attachResult, err := h.call(ctx, "Target.attachToTarget", map[string]any{
			"targetId": t.TargetID,
			"flatten":  true,
		}, "")
		if err != nil {
			return fmt.Errorf("attachToTarget: %w", err)
		}
		var attached struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(attachResult, &attached); err != nil {
			return fmt.Errorf("unmarshal attach: %w", err)
		}
		if attached.SessionID == "" {
			return fmt.Errorf("attachToTarget: empty session id")
		}

		h.mu.Lock()
		h.sessionID = attached.SessionID
		h.targetID = t.TargetID
		h.pageURL = t.URL
		h.mu.Unlock()

		h.logger.Info("attached to page target", "targetId", t.TargetID, "url", t.URL, "sessionId", attached.SessionID)
		return h.setupSession(ctx, attached.SessionID)
	}
	return errNoPageFound
}

func (h *Host) setupSession(ctx context.Context, sessionID string) error {
	steps := []struct {
		method string
		params any
	}{
		{"Runtime.enable", nil},
		{"Page.enable", nil},
		{"Runtime.addBinding", map[string]any{"name": bindingName}},
		{"Page.addScriptToEvaluateOnNewDocument", map[string]any{"source": listenerScript}},
	}
	for _, s := range steps {
		if _, err := h.call(ctx, s.method, s.params, sessionID); err != nil {
			return fmt.Errorf("%s: %w", s.method, err)
		}
	}
	if _, err := h.evaluate(ctx, listenerScript); err != nil {
		return fmt.Errorf("install listener: %w", err)
	}
	h.logger.Info("page session ready", "sessionId", sessionID)
	return nil
}

func (h *Host) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	h.mu.Lock()
	session := h.sessionID
	h.mu.Unlock()
	if session == "" {
		return nil, ErrNoPage
	}

	result, err := h.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	}, session)
	if err != nil {
		return nil, err
	}

	var eval evaluateResult
	if err := json.Unmarshal(result, &eval); err != nil {
		return nil, fmt.Errorf("unmarshal eval result: %w", err)
	}
	if eval.ExceptionDetails != nil {
		msg := eval.ExceptionDetails.Text
		if eval.ExceptionDetails.Exception.Description != "" {
			msg = eval.ExceptionDetails.Exception.Description
		}
		return nil, fmt.Errorf("JS exception: %s", msg)
	}
	if eval.Result.Subtype == "error" {
		return nil, fmt.Errorf("JS error: %s", eval.Result.Description)
	}
	return eval.Result.Value, nil
}

func (h *Host) call(ctx context.Context, method string, params any, sessionID string) (json.RawMessage, error) {
	id := h.msgID.Add(1)

	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}
	data, err := json.Marshal(cdpMessage{ID: id, Method: method, Params: paramsRaw, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("marshal CDP message: %w", err)
	}

	resultCh := make(chan cdpMessage, 1)
	h.mu.Lock()
	h.pending[id] = resultCh
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	select {
	case <-h.done:
		return nil, ErrClosed
	default:
	}
	if err := h.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("write CDP: %w", err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-resultCh:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("CDP call timed out: %s", method)
	case <-h.done:
		return nil, ErrClosed
	}
}

func (h *Host) readLoop() {
	defer close(h.done)
	for {
		_, data, err := h.conn.Read(h.ctx)
		if err != nil {
			if h.ctx.Err() == nil {
				h.logger.Error("CDP read error", "err", err)
			}
			return
		}

		var msg cdpMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Error("CDP unmarshal error", "err", err)
			continue
		}

		if msg.ID > 0 {
			h.mu.Lock()
			ch, ok := h.pending[msg.ID]
			h.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}
		h.handleEvent(msg)
	}
}

func (h *Host) handleEvent(msg cdpMessage) {
	h.mu.Lock()
	ours := msg.SessionID != "" && msg.SessionID == h.sessionID
	handler := h.handler
	h.mu.Unlock()

	switch msg.Method {
	case "Runtime.bindingCalled":
		if !ours || handler == nil {
			return
		}
		var params struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Name != bindingName {
			return
		}
		handler()

	case "Page.loadEventFired":
		// A new document has the listener function but not the window
		// listeners; put them back if tracking is on.
		if !ours || handler == nil {
			return
		}
		go h.reinstall()

	case "Page.frameNavigated":
		if !ours {
			return
		}
		var params struct {
			Frame struct {
				ParentID string `json:"parentId"`
				URL      string `json:"url"`
			} `json:"frame"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Frame.ParentID != "" {
			return
		}
		h.mu.Lock()
		h.pageURL = params.Frame.URL
		h.mu.Unlock()
		h.logger.Debug("page navigated", "url", params.Frame.URL)

	case "Target.detachedFromTarget":
		var params struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return
		}
		h.mu.Lock()
		if params.SessionID == h.sessionID {
			h.sessionID = ""
			h.targetID = ""
			h.mu.Unlock()
			h.logger.Warn("detached from page target", "sessionId", params.SessionID)
			// Without a page nothing can be served; stop the connection so
			// Done reports it.
			h.cancel()
			return
		}
		h.mu.Unlock()
	}
}

func (h *Host) reinstall() {
	select {
	case <-time.After(reinstallWait):
	case <-h.done:
		return
	}
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.mu.Lock()
	tracking := h.handler != nil
	h.mu.Unlock()
	if !tracking {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, callTimeout)
	defer cancel()
	if _, err := h.evaluate(ctx, attachScript); err != nil {
		h.logger.Warn("failed to reinstall scroll listener", "err", err)
		return
	}
	h.logger.Debug("scroll listener reinstalled after page load")
}
