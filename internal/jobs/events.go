package jobs

import (
	"sync"
	"time"

	"speechflow/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus    EventType = "status"
	EventTypeProgress  EventType = "progress"
	EventTypeLog       EventType = "log"
	EventTypeFinished  EventType = "finished"
	EventTypeError     EventType = "error"
	EventTypeCancelled EventType = "cancelled"
)

// Event is a sequenced payload consumed by UI and HTTP subscribers.
type Event struct {
	Seq          int64           `json:"seq"`
	Timestamp    time.Time       `json:"timestamp"`
	SubmissionID string          `json:"submissionId,omitempty"`
	JobID        string          `json:"jobId,omitempty"`
	Type         EventType       `json:"type"`
	State        domain.JobState `json:"state,omitempty"`
	Message      string          `json:"message,omitempty"`
	Percent      float64         `json:"percent,omitempty"`
	Completed    int             `json:"completed,omitempty"`
	Total        int             `json:"total,omitempty"`
	Output       string          `json:"output,omitempty"`
}

// Sink receives events as they are produced. Publish must be safe for
// concurrent use; the runner calls it from the batch goroutine.
type Sink interface {
	Publish(event Event) Event
}

// Bus stores recent events and provides incremental reads by sequence
// number. Polling clients ask for everything after the last sequence they
// saw instead of holding a stream open.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Tee fans one publish out to several sinks. The first sink's sequencing
// wins for the returned event.
type Tee []Sink

// Publish forwards the event to every sink in order.
func (t Tee) Publish(event Event) Event {
	var first Event
	for i, sink := range t {
		published := sink.Publish(event)
		if i == 0 {
			first = published
		}
	}
	return first
}
