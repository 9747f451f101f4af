package broker

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()
	ch1 := b.Subscribe("idea-1")
	ch2 := b.Subscribe("idea-1")
	other := b.Subscribe("idea-2")

	b.Publish("idea-1", Event{Type: "file_saved", Data: map[string]any{"file_type": "summary"}})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Type != "file_saved" {
				t.Errorf("expected file_saved, got %s", event.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case event := <-other:
		t.Errorf("unrelated subscriber received %s", event.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe("idea-1")
	b.Unsubscribe("idea-1", ch)

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
	if n := b.SubscriberCount("idea-1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}

	// Double unsubscribe must not panic or double-close.
	b.Unsubscribe("idea-1", ch)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ch := b.Subscribe("idea-1")

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish("idea-1", Event{Type: "completion_changed"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("expected %d buffered events, got %d", subscriberBuffer, received)
			}
			return
		}
	}
}
