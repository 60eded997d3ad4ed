package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe(TypeRunStarted)
	bus.Publish(NewRunStartedEvent("session-1", "open the editor", 3))

	select {
	case ev := <-ch:
		started, ok := ev.(RunStartedEvent)
		if !ok {
			t.Fatalf("event type = %T, want RunStartedEvent", ev)
		}
		if started.Goal != "open the editor" || started.MaxIterations != 3 {
			t.Errorf("event = %+v", started)
		}
		if started.SessionID() != "session-1" {
			t.Errorf("SessionID() = %q", started.SessionID())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe(TypeSafetyBlocked)
	bus.Publish(NewRunStartedEvent("session-1", "goal", 3))
	bus.Publish(NewSafetyBlockedEvent("session-1", "command", "destructive"))

	select {
	case ev := <-ch:
		if ev.EventType() != TypeSafetyBlocked {
			t.Errorf("EventType = %q, want the filtered type only", ev.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %q", ev.EventType())
	default:
	}
}

func TestSubscribeAllTypes(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(NewRunStartedEvent("s", "goal", 1))
	bus.Publish(NewStepCompletedEvent("s", 1, "goal", "click", "clicked", true))

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestFullBufferDropsOldest(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(NewRunStartedEvent("s", "goal", i))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected dropped events with a full buffer")
	}

	// The newest events survive ring-buffer replacement.
	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last == nil {
		t.Fatal("no events received")
	}
	if got := last.(RunStartedEvent).MaxIterations; got != 4 {
		t.Errorf("last event iteration budget = %d, want the newest (4)", got)
	}
}

func TestPublishPriorityReachesPrioritySubscribers(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	prio := bus.SubscribePriority()
	done := make(chan Event, 1)
	go func() { done <- <-prio }()

	bus.PublishPriority(NewRunFailedEvent("session-1", "store corrupted"))

	select {
	case ev := <-done:
		if ev.EventType() != TypeRunFailed {
			t.Errorf("EventType = %q, want run_failed", ev.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("priority subscriber did not receive the event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(NewRunStartedEvent("s", "goal", 1))
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()
	bus.Close()

	bus.Publish(NewRunStartedEvent("s", "goal", 1))
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
}
