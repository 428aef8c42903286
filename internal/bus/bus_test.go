package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindOutboxAppended, Payload: EntryRef{EntryID: 1}})

	select {
	case evt := <-ch:
		if evt.Kind != KindOutboxAppended {
			t.Errorf("got kind %q, want %s", evt.Kind, KindOutboxAppended)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp was not stamped on publish")
		}
		ref, ok := evt.Payload.(EntryRef)
		if !ok || ref.EntryID != 1 {
			t.Errorf("payload = %#v, want EntryRef{EntryID: 1}", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("record.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindOutboxAcknowledged})
	b.Publish(Event{Kind: KindRecordSynced})

	select {
	case evt := <-ch:
		if evt.Kind != KindRecordSynced {
			t.Errorf("got kind %q, want %s", evt.Kind, KindRecordSynced)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The outbox event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("daemon.", 10)
	unsub()
	unsub() // second call is a no-op

	b.Publish(Event{Kind: KindStatusChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 1)
	defer unsub()

	b.Publish(Event{Kind: "outbox.one"})
	// Buffer is full; this one is dropped without blocking.
	b.Publish(Event{Kind: "outbox.two"})

	evt := <-ch
	if evt.Kind != "outbox.one" {
		t.Errorf("got %q, want outbox.one", evt.Kind)
	}
}

func TestPublishOnNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindOutboxAppended})
}
