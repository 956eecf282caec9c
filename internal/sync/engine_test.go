package sync

import (
	"context"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/dashboard"
	"github.com/matheus3301/frontdesk/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakePusher struct {
	mu     gosync.Mutex
	calls  int
	result dashboard.PushResult
}

func (p *fakePusher) PushOnConnection(context.Context) dashboard.PushResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestEngineCoalescesBurst(t *testing.T) {
	b := bus.New()
	p := &fakePusher{result: dashboard.PushResult{Success: true}}
	e := NewEngine(p, nil, b, 50*time.Millisecond, nil)
	e.Start(context.Background())
	defer e.Stop()

	for i := 0; i < 5; i++ {
		b.Emit(bus.PatientStatusChanged, int64(i))
	}
	b.Emit(bus.AppointmentAdded, nil)

	waitFor(t, func() bool { return p.count() == 1 })
	time.Sleep(120 * time.Millisecond)
	if got := p.count(); got != 1 {
		t.Errorf("pushes = %d, want 1 for one burst", got)
	}

	b.Emit(bus.PatientAdded, nil)
	waitFor(t, func() bool { return p.count() == 2 })
}

func TestEngineIgnoresUnrelatedEvents(t *testing.T) {
	b := bus.New()
	p := &fakePusher{}
	e := NewEngine(p, nil, b, 20*time.Millisecond, nil)
	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.LinkStatusChanged, nil)
	b.Emit(bus.RemoteMessage, nil)
	b.Emit(bus.BackupCreated, nil)
	time.Sleep(100 * time.Millisecond)
	if got := p.count(); got != 0 {
		t.Errorf("pushes = %d, want 0", got)
	}
}

func TestEngineRemotePatientTriggersPush(t *testing.T) {
	b := bus.New()
	p := &fakePusher{}
	e := NewEngine(p, nil, b, 10*time.Millisecond, nil)
	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.RemotePatient, nil)
	waitFor(t, func() bool { return p.count() == 1 })
}

func TestPushRecordsCheckpointOnSuccess(t *testing.T) {
	db := testDB(t)
	cp := NewCheckpoints(db)
	p := &fakePusher{result: dashboard.PushResult{Error: dashboard.NotConnected}}
	e := NewEngine(p, cp, nil, 0, nil)
	at := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return at }
	ctx := context.Background()

	e.Push(ctx)
	if _, ok, err := cp.Last(ctx, LastPushKey); err != nil || ok {
		t.Fatalf("checkpoint after failed push: ok=%v err=%v", ok, err)
	}

	p.result = dashboard.PushResult{Success: true}
	if res := e.Push(ctx); !res.Success {
		t.Fatalf("push = %+v", res)
	}
	got, ok, err := cp.Last(ctx, LastPushKey)
	if err != nil || !ok {
		t.Fatalf("checkpoint missing: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Errorf("checkpoint = %v, want %v", got, at)
	}
}

func TestStopIsSafeBeforeStart(t *testing.T) {
	e := NewEngine(&fakePusher{}, nil, bus.New(), 0, nil)
	e.Stop()
}
