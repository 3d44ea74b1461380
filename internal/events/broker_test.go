package events

import (
	"testing"

	"ootdStylist/internal/storage"
)

func TestBrokerFiltersBySession(t *testing.T) {
	b := NewBroker()
	mine := b.Subscribe("s1")
	everyone := b.Subscribe("")
	defer b.Unsubscribe(mine)
	defer b.Unsubscribe(everyone)

	b.Publish(Event{SessionID: "s2", Screen: storage.ScreenLoading})
	b.Publish(Event{SessionID: "s1", Screen: storage.ScreenResult})

	got := <-mine
	if got.SessionID != "s1" || got.Screen != storage.ScreenResult {
		t.Errorf("session subscriber got %+v", got)
	}
	select {
	case extra := <-mine:
		t.Errorf("unexpected event %+v", extra)
	default:
	}

	if first := <-everyone; first.SessionID != "s2" {
		t.Errorf("wildcard first event = %+v", first)
	}
	if second := <-everyone; second.SessionID != "s1" {
		t.Errorf("wildcard second event = %+v", second)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s1")
	for i := 0; i < 20; i++ {
		b.Publish(Event{SessionID: "s1"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want %d", len(ch), cap(ch))
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	drained := 0
	for range ch {
		drained++
	}
	if drained != cap(ch) {
		t.Errorf("drained %d events, want %d", drained, cap(ch))
	}
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	b.Publish(Event{SessionID: "s1"})
}
