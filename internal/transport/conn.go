// Package transport carries link events over a websocket as JSON frames of
// the form {"event": name, "data": payload}.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/comms"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
	sendBuffer     = 64
)

var (
	ErrClosed     = errors.New("transport: connection closed")
	ErrBufferFull = errors.New("transport: send buffer full")
)

// Frame is one websocket text message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is an event socket over a single websocket connection.
// Inbound frames are dispatched one at a time from the read goroutine.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	send chan []byte
	stop chan struct{}
	done chan struct{}

	connected atomic.Bool
	closeOnce sync.Once

	mu       sync.RWMutex
	handlers map[string]comms.Handler
}

var _ comms.Socket = (*Conn)(nil)

// NewConn wraps an established websocket. Nothing is read or written until Start.
func NewConn(ws *websocket.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		ws:       ws,
		logger:   logger,
		send:     make(chan []byte, sendBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		handlers: make(map[string]comms.Handler),
	}
}

// Start marks the socket connected, dispatches connect and begins pumping.
func (c *Conn) Start() {
	c.connected.Store(true)
	go c.writePump()
	go c.readPump()
}

// Connected reports whether the socket is up.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Done is closed after the read loop exits and disconnect was dispatched.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// On binds h to event, replacing any previous handler.
func (c *Conn) On(event string, h comms.Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Off removes the handler for event.
func (c *Conn) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// Emit queues a frame. It does not wait for the write.
func (c *Conn) Emit(event string, payload any) error {
	if !c.Connected() {
		return ErrClosed
	}
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		frame.Data = data
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	select {
	case <-c.stop:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.stop:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close sends a close frame and tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.stop)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) dispatch(name string, data json.RawMessage) {
	c.mu.RLock()
	h := c.handlers[name]
	all := c.handlers[comms.EventAny]
	c.mu.RUnlock()

	evt := comms.Event{Name: name, Data: data}
	if h != nil {
		h(evt)
	}
	if all != nil {
		all(evt)
	}
}

func (c *Conn) readPump() {
	defer close(c.done)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.dispatch(comms.EventConnect, nil)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("link read error", zap.Error(err))
			}
			break
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			c.logger.Warn("dropping malformed frame", zap.Int("bytes", len(msg)))
			continue
		}
		c.dispatch(f.Event, f.Data)
	}

	c.connected.Store(false)
	_ = c.ws.Close()
	c.dispatch(comms.EventDisconnect, nil)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("link write error", zap.Error(err))
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.stop:
			return
		case <-c.done:
			return
		}
	}
}
