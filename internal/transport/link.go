package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/comms"
)

// Attacher receives each new socket and gives it up on shutdown.
// *comms.Manager implements it.
type Attacher interface {
	Attach(s comms.Socket)
	Detach()
}

// Link owns the websocket to the doctor app: it dials, hands every fresh
// connection to the attacher and redials after drops until stopped.
type Link struct {
	url      string
	header   http.Header
	dialer   *websocket.Dialer
	attacher Attacher
	logger   *zap.Logger

	// NewBackOff builds the redial schedule; replaced in tests.
	NewBackOff func() backoff.BackOff

	mu     sync.Mutex
	conn   *Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLink creates a link to url. clientID is sent as X-Client-Id on the handshake.
func NewLink(url, clientID string, a Attacher, logger *zap.Logger) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if clientID != "" {
		header.Set("X-Client-Id", clientID)
	}
	return &Link{
		url:      url,
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		attacher: a,
		logger:   logger,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Start begins dialing in the background.
func (l *Link) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(ctx)
	}()
}

// Stop ends the dial loop, detaches listeners and closes the current socket.
func (l *Link) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	l.attacher.Detach()
	if c := l.swap(nil); c != nil {
		_ = c.Close()
	}
}

// Connected reports whether a socket is currently up, regardless of presence.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil && l.conn.Connected()
}

func (l *Link) swap(c *Conn) *Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.conn
	l.conn = c
	return prev
}

func (l *Link) run(ctx context.Context) {
	bo := l.NewBackOff()
	bo.Reset()

	for {
		ws, _, err := l.dialer.DialContext(ctx, l.url, l.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			l.logger.Warn("doctor link dial failed", zap.String("url", l.url), zap.Duration("retry_in", wait), zap.Error(err))
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		bo.Reset()
		c := NewConn(ws, l.logger)
		if prev := l.swap(c); prev != nil {
			_ = prev.Close()
		}
		l.logger.Info("doctor link established", zap.String("url", l.url))
		l.attacher.Attach(c)
		c.Start()

		select {
		case <-c.Done():
			wait := bo.NextBackOff()
			l.logger.Warn("doctor link dropped", zap.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		d = time.Minute
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
