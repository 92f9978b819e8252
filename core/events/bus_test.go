package events

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe()
	b.Publish(Event{Service: "lidar", From: "Starting", To: "Running"})
	ev := <-ch
	if ev.Service != "lidar" || ev.To != "Running" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe()
	for i := 0; i < subscriberQueueDepth+5; i++ {
		b.Publish(Event{Service: "lidar"})
	}
	if _, ok := <-ch; ok {
		for range ch {
		}
	}
	// channel must have been closed once the queue overflowed.
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after overflow")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after Unsubscribe")
	}
}
