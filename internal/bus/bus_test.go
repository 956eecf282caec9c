package bus

import (
	"testing"
	"time"
)

func TestEmitSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("link.", 10)
	defer unsub()

	b.Emit(LinkStatusChanged, "live")

	select {
	case evt := <-ch:
		if evt.Kind != LinkStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, LinkStatusChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp a timestamp")
		}
		if evt.Payload != "live" {
			t.Errorf("payload = %v, want live", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("patient.", 10)
	defer unsub()

	b.Emit(LinkStatusChanged, nil)
	b.Emit(PatientStatusChanged, nil)

	select {
	case evt := <-ch:
		if evt.Kind != PatientStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, PatientStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Emit(BackupCreated, nil)
	b.Emit(RemoteMessage, nil)

	if got := len(ch); got != 2 {
		t.Errorf("buffered events = %d, want 2", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("link.", 10)
	unsub()

	b.Emit(LinkStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("patient.", 1)
	defer unsub()

	b.Emit(PatientAdded, 1)
	b.Emit(PatientAdded, 2)

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(PatientAdded, nil)
	b.Publish(Event{Kind: PatientAdded})
}
