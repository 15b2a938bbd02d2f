package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil, 4)
	defer sub.Unsubscribe()

	b.Publish(Event{Type: "session_started", AggregateID: "s1"})

	select {
	case e := <-sub.Events():
		if e.Type != "session_started" || e.AggregateID != "s1" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishIsNonBlockingWhenBufferFull(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil, 1)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestLaggedReportsDroppedCount(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil, 1)
	defer sub.Unsubscribe()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})

	select {
	case n := <-sub.Lagged():
		if n < 1 {
			t.Errorf("expected at least 1 dropped event, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a Lagged notification")
	}
}

func TestFilterExcludesNonMatchingEvents(t *testing.T) {
	b := New()
	sub := b.Subscribe(func(e Event) bool { return e.Type == "wanted" }, 4)
	defer sub.Unsubscribe()

	b.Publish(Event{Type: "ignored"})
	b.Publish(Event{Type: "wanted"})

	select {
	case e := <-sub.Events():
		if e.Type != "wanted" {
			t.Errorf("expected only the wanted event, got %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case e, ok := <-sub.Events():
		if ok {
			t.Errorf("unexpected second event delivered: %+v", e)
		}
	default:
	}
}

func TestMultipleSubscribersAreIndependent(t *testing.T) {
	b := New()
	slow := b.Subscribe(nil, 1)
	fast := b.Subscribe(nil, 8)
	defer slow.Unsubscribe()
	defer fast.Unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "tick"})
	}

	count := 0
	for {
		select {
		case <-fast.Events():
			count++
			continue
		default:
		}
		break
	}
	if count != 5 {
		t.Errorf("expected fast subscriber to receive all 5 events, got %d", count)
	}
}

func TestUnsubscribeClosesChannelsAndRemovesSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil, 4)
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	sub.Unsubscribe()
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", got)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("expected Events channel to be closed after unsubscribe")
	}

	sub.Unsubscribe()
}

func TestSubscribeDefaultBufferSize(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil, 0)
	defer sub.Unsubscribe()

	if cap(sub.ch) != DefaultBufferSize {
		t.Errorf("expected default buffer size %d, got %d", DefaultBufferSize, cap(sub.ch))
	}
}
