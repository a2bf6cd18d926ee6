// Package transport owns the one persistent websocket connection to the
// livepoll server. It delivers inbound envelopes to registered handlers in
// arrival order, sends best-effort keepalives, and re-dials on unexpected
// close with a flat delay until explicitly disconnected.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livepoll/pollstream/internal/events"
)

// State is the adapter's connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config holds endpoint and keepalive settings.
type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
}

// Handler consumes one well-formed inbound envelope.
type Handler func(events.Envelope)

type handlerEntry struct {
	id int
	fn Handler
}

// conn bundles one live websocket with its outbound queue. done closes when
// the read pump exits, which also stops the write pump.
type conn struct {
	ws   *websocket.Conn
	send chan any
	done chan struct{}
}

// Adapter maintains at most one live connection at a time.
type Adapter struct {
	cfg    Config
	logger *zap.Logger

	mu             sync.Mutex
	state          State
	active         *conn
	reconnectTimer *time.Timer
	handlers       []handlerEntry
	nextHandlerID  int
	onReconnect    []func()
}

// New creates a disconnected adapter.
func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	return &Adapter{cfg: cfg, logger: logger, state: StateIdle}
}

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnMessage registers a handler for every inbound envelope and returns its
// unregister function. Handlers run synchronously on the read loop, in
// registration order.
func (a *Adapter) OnMessage(fn Handler) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandlerID
	a.nextHandlerID++
	a.handlers = append(a.handlers, handlerEntry{id: id, fn: fn})
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, h := range a.handlers {
			if h.id == id {
				a.handlers = append(a.handlers[:i], a.handlers[i+1:]...)
				return
			}
		}
	}
}

// OnReconnect registers a hook fired after every successful re-dial. Events
// may have been lost across the gap; hooks typically trigger a full reload.
func (a *Adapter) OnReconnect(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReconnect = append(a.onReconnect, fn)
}

// Connect establishes the connection, or no-ops if one is already open.
// Any prior socket is closed first, and a pending reconnect timer cancelled.
// On dial failure the adapter schedules a reconnect and returns the error.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateOpen {
		a.mu.Unlock()
		return nil
	}
	a.cancelReconnectLocked()
	a.closeActiveLocked()
	a.state = StateConnecting
	a.mu.Unlock()

	return a.dial(ctx, false)
}

// Disconnect closes the connection and suppresses auto-reconnect.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateClosed
	a.cancelReconnectLocked()
	a.closeActiveLocked()
}

// Send queues a message while the connection is open; otherwise it is
// silently dropped. Keepalive-grade traffic tolerates loss.
func (a *Adapter) Send(v any) {
	a.mu.Lock()
	c := a.active
	open := a.state == StateOpen
	a.mu.Unlock()
	if !open || c == nil {
		return
	}
	select {
	case c.send <- v:
	default:
		// queue full, drop
	}
}

func (a *Adapter) dial(ctx context.Context, isReconnect bool) error {
	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		a.logger.Warn("websocket dial failed", zap.String("url", a.cfg.URL), zap.Error(err))
		a.mu.Lock()
		if a.state != StateClosed {
			a.scheduleReconnectLocked()
		}
		a.mu.Unlock()
		return err
	}

	c := &conn{
		ws:   ws,
		send: make(chan any, 64),
		done: make(chan struct{}),
	}

	a.mu.Lock()
	if a.state == StateClosed {
		// Disconnect raced the dial; drop the fresh socket.
		a.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	a.closeActiveLocked()
	a.active = c
	a.state = StateOpen
	hooks := append([]func(){}, a.onReconnect...)
	a.mu.Unlock()

	a.logger.Info("websocket connected", zap.String("url", a.cfg.URL), zap.Bool("reconnect", isReconnect))

	go a.writePump(c)
	go a.readPump(c)

	if isReconnect {
		for _, fn := range hooks {
			fn()
		}
	}
	return nil
}

func (a *Adapter) readPump(c *conn) {
	defer close(c.done)

	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(a.cfg.PongWait))

		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			a.logger.Warn("malformed envelope dropped", zap.Error(err))
			continue
		}

		a.mu.Lock()
		handlers := append([]handlerEntry{}, a.handlers...)
		a.mu.Unlock()
		for _, h := range handlers {
			h.fn(env)
		}
	}

	a.mu.Lock()
	if a.active == c {
		a.active = nil
		if a.state != StateClosed {
			a.scheduleReconnectLocked()
		}
	}
	a.mu.Unlock()
	_ = c.ws.Close()
}

func (a *Adapter) writePump(c *conn) {
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case v := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteJSON(v); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// scheduleReconnectLocked arms exactly one reconnect timer at the flat delay.
func (a *Adapter) scheduleReconnectLocked() {
	if a.reconnectTimer != nil {
		return
	}
	a.state = StateReconnecting
	a.reconnectTimer = time.AfterFunc(a.cfg.ReconnectDelay, func() {
		a.mu.Lock()
		a.reconnectTimer = nil
		if a.state != StateReconnecting {
			a.mu.Unlock()
			return
		}
		a.state = StateConnecting
		a.mu.Unlock()
		a.logger.Info("websocket reconnecting", zap.String("url", a.cfg.URL))
		_ = a.dial(context.Background(), true)
	})
}

func (a *Adapter) cancelReconnectLocked() {
	if a.reconnectTimer != nil {
		a.reconnectTimer.Stop()
		a.reconnectTimer = nil
	}
}

func (a *Adapter) closeActiveLocked() {
	if a.active != nil {
		_ = a.active.ws.Close()
		a.active = nil
	}
}
