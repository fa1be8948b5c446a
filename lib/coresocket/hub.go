// Package coresocket exposes the bridge's ports to the application core
// over a WebSocket. Any number of core clients may connect; inbound
// messages from all of them feed the same ports and outbound scroll metrics
// are fanned out to every client.
package coresocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/onkernel/pagebridge/lib/bridge"
	"github.com/onkernel/pagebridge/lib/scroll"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 1024 * 1024
)

type client struct {
	id   string
	conn *websocket.Conn

	// orders writes to this client; held through the greeting
	mu sync.Mutex
}

func (c *client) send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, msg)
}

func (c *client) write(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

type Hub struct {
	core   *bridge.Core
	logger *slog.Logger

	mu         sync.Mutex
	clients    map[string]*client
	lastScroll *scroll.Payload
}

func NewHub(core *bridge.Core, logger *slog.Logger) *Hub {
	return &Hub{
		core:    core,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Run consumes the outbound scroll port until ctx is done. It must be the
// port's only consumer.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case m := <-h.core.Scroll.Receive():
			h.broadcast(ctx, m.Payload())
		}
	}
}

// ServeHTTP upgrades the request and serves one core client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("core socket: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	c := &client{id: uuid.NewString(), conn: conn}
	log := h.logger.With("client", c.id)

	if err := h.greet(ctx, c); err != nil {
		log.Warn("core socket: greeting failed", "err", err)
		h.drop(c, websocket.StatusInternalError, "greeting failed")
		return
	}
	log.Info("core socket: client connected")

	defer func() {
		h.drop(c, websocket.StatusNormalClosure, "")
		log.Info("core socket: client disconnected")
	}()

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Debug("core socket: read error", "err", err)
			}
			return
		}
		if reply, ok := h.route(msg); !ok {
			if err := c.send(ctx, reply); err != nil {
				log.Debug("core socket: write failed", "err", err)
			}
		}
	}
}

// ClientCount returns the number of connected core clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// greet registers c and sends init followed by the last scroll metric.
// Broadcasts that see c wait on c.mu until the greeting is written, so init
// always arrives first and no metric is skipped or repeated.
func (h *Hub) greet(ctx context.Context, c *client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h.mu.Lock()
	h.clients[c.id] = c
	last := h.lastScroll
	h.mu.Unlock()

	if err := c.write(ctx, Message{Port: PortInit, Value: h.core.Flags}); err != nil {
		return err
	}
	if last == nil {
		return nil
	}
	m, err := newMessage(bridge.PortScroll, last)
	if err != nil {
		return err
	}
	return c.write(ctx, m)
}

// route delivers an inbound message to its port. It returns false and an
// error reply when the message cannot be delivered.
func (h *Hub) route(msg Message) (Message, bool) {
	switch msg.Port {
	case bridge.PortToggle:
		var active *bool
		if err := json.Unmarshal(msg.Value, &active); err != nil || active == nil {
			return newErrorMessage(msg.Port, "value must be a boolean"), false
		}
		h.core.Toggle.Send(*active)
	case bridge.PortColor:
		var color *string
		if err := json.Unmarshal(msg.Value, &color); err != nil || color == nil {
			return newErrorMessage(msg.Port, "value must be a string"), false
		}
		h.core.Color.Send(*color)
	case bridge.PortScroll, PortInit, PortError:
		return newErrorMessage(msg.Port, "port is outbound only"), false
	default:
		return newErrorMessage(msg.Port, fmt.Sprintf("unknown port %q", msg.Port)), false
	}
	return Message{}, true
}

func (h *Hub) broadcast(ctx context.Context, p scroll.Payload) {
	msg, err := newMessage(bridge.PortScroll, p)
	if err != nil {
		h.logger.Error("core socket: failed to marshal scroll metric", "err", err)
		return
	}

	h.mu.Lock()
	h.lastScroll = &p
	clients := lo.Values(h.clients)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.send(ctx, msg); err != nil {
				h.logger.Warn("core socket: dropping client after failed write", "client", c.id, "err", err)
				h.drop(c, websocket.StatusPolicyViolation, "write failed")
			}
		}()
	}
	wg.Wait()
	h.logger.Debug("core socket: scroll metric sent", "clients", len(clients), "offset", p.Offset, "reachedEnd", p.ReachedEnd)
}

// drop unregisters c and closes its connection. It is a no-op for a client
// that is already gone.
func (h *Hub) drop(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close(code, reason)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := lo.Values(h.clients)
	clear(h.clients)
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
