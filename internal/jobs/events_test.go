package jobs

import "testing"

// TestBusSince verifies incremental event reads by sequence.
func TestBusSince(t *testing.T) {
	bus := NewBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestBusCapsHistory verifies buffer limit trimming behavior.
func TestBusCapsHistory(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestTeeFansOut verifies one publish reaches every sink.
func TestTeeFansOut(t *testing.T) {
	a := NewBus(10)
	b := NewBus(10)
	tee := Tee{a, b}

	published := tee.Publish(Event{Type: EventTypeLog, Message: "hello"})
	if published.Seq != 1 {
		t.Fatalf("seq = %d, want first sink's sequencing", published.Seq)
	}
	if len(a.Since(0)) != 1 || len(b.Since(0)) != 1 {
		t.Fatal("event did not reach both sinks")
	}
}
