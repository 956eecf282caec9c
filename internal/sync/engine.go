package sync

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/dashboard"
)

// DefaultDebounce is how long the engine waits for a burst of queue changes
// to settle before pushing.
const DefaultDebounce = 500 * time.Millisecond

// Pusher sends the dashboard views to the doctor.
type Pusher interface {
	PushOnConnection(ctx context.Context) dashboard.PushResult
}

// Engine keeps the doctor's dashboard in step with the local queue. It
// subscribes to patient and appointment events on the bus, coalesces bursts,
// and pushes once per burst.
type Engine struct {
	pusher      Pusher
	checkpoints *Checkpoints
	bus         *bus.Bus
	logger      *zap.Logger
	debounce    time.Duration
	cancel      context.CancelFunc
	done        chan struct{}

	// Now stamps the last-push checkpoint.
	Now func() time.Time
}

// NewEngine creates a new sync engine. A non-positive debounce uses DefaultDebounce.
func NewEngine(p Pusher, cp *Checkpoints, b *bus.Bus, debounce time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Engine{
		pusher:      p,
		checkpoints: cp,
		bus:         b,
		logger:      logger,
		debounce:    debounce,
		Now:         time.Now,
	}
}

// triggers reports whether an event kind changes what the dashboard shows.
func triggers(kind string) bool {
	switch {
	case strings.HasPrefix(kind, "patient."),
		strings.HasPrefix(kind, "appointment."),
		kind == bus.RemotePatient,
		kind == bus.BackupRestored:
		return true
	}
	return false
}

// Start subscribes to the bus and pushes after each settled burst.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("", 256)

	go func() {
		defer close(e.done)
		defer unsub()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case evt := <-ch:
				if !triggers(evt.Kind) || fire != nil {
					continue
				}
				timer = time.NewTimer(e.debounce)
				fire = timer.C
			case <-fire:
				fire = nil
				e.Push(ctx)
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			}
		}
	}()
}

// Stop stops the engine and waits for an in-flight push to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// Push sends the dashboard now and records the checkpoint on success.
func (e *Engine) Push(ctx context.Context) dashboard.PushResult {
	res := e.pusher.PushOnConnection(ctx)
	if !res.Success {
		if res.Error == dashboard.NotConnected {
			e.logger.Debug("dashboard push skipped, link not live")
		} else {
			e.logger.Warn("dashboard push failed", zap.String("error", res.Error))
		}
		return res
	}
	if e.checkpoints != nil {
		if err := e.checkpoints.Mark(ctx, LastPushKey, e.Now()); err != nil {
			e.logger.Warn("record dashboard push", zap.Error(err))
		}
	}
	return res
}
