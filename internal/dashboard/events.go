package dashboard

import (
	"sync"
	"time"
)

// EventType names a state change pushed to subscribers.
type EventType string

const (
	EventFilesRefreshed    EventType = "files:refreshed"
	EventUploadSucceeded   EventType = "upload:succeeded"
	EventSessionStarted    EventType = "session:started"
	EventSessionCompleted  EventType = "session:completed"
	EventSessionFailed     EventType = "session:failed"
	EventSessionHalted     EventType = "session:halted"
	EventFileDeleted       EventType = "file:deleted"
	EventRecoveryDismissed EventType = "recovery:dismissed"
)

// eventBuffer is the per-subscriber queue length. Slow subscribers lose events.
const eventBuffer = 32

// Event is one state change. Subscribers re-read the affected state through
// the dashboard; the event only says what moved.
type Event struct {
	Type      EventType `json:"type"`
	FileID    int64     `json:"fileId,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
