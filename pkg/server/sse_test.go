package server

import (
	"testing"
)

func TestSSEBroker_PublishSubscribe(t *testing.T) {
	b := NewSSEBroker()
	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	if b.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", b.Subscribers())
	}

	b.Publish(SSEEvent{Event: "reload", Data: "x"})
	for i, ch := range []chan SSEEvent{ch1, ch2} {
		ev := <-ch
		if ev.Event != "reload" || ev.ID == "" {
			t.Errorf("subscriber %d got %+v", i, ev)
		}
	}

	b.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	b.Unsubscribe(id1)

	// A full buffer drops events instead of blocking.
	for i := 0; i < 20; i++ {
		b.Publish(SSEEvent{Event: "tick"})
	}
	if len(ch2) != cap(ch2) {
		t.Errorf("buffered = %d, want %d", len(ch2), cap(ch2))
	}
}
