package session

import (
	"sync"
	"time"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

// subscriber channels buffer this many events before emits get dropped
// for that subscriber.
const eventBuffer = 64

// EventEmitter keeps one session's ordered event log and fans events
// out to live subscribers. Appending never fails; fanout to a lagging
// subscriber drops the event for that subscriber with a warning.
type EventEmitter struct {
	mu     sync.Mutex
	events []models.TaskEvent
	subs   map[int]chan models.TaskEvent
	nextID int
	closed bool
	logger *logging.Logger
}

// NewEventEmitter creates an empty emitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		subs:   make(map[int]chan models.TaskEvent),
		logger: logging.GetLogger("session.events"),
	}
}

// Emit appends an event and fans it out.
func (e *EventEmitter) Emit(agentName, eventType, message string) {
	e.EmitDetails(agentName, eventType, message, nil)
}

// EmitDetails appends an event with a details payload and fans it out.
func (e *EventEmitter) EmitDetails(agentName, eventType, message string, details map[string]any) {
	event := models.TaskEvent{
		Timestamp: time.Now().UTC(),
		AgentName: agentName,
		EventType: eventType,
		Message:   message,
		Details:   details,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.events = append(e.events, event)
	for id, ch := range e.subs {
		select {
		case ch <- event:
		default:
			e.logger.Warn("subscriber %d lagging, dropping event %s", id, eventType)
		}
	}
}

// Events returns a copy of the full event log in arrival order.
func (e *EventEmitter) Events() []models.TaskEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.TaskEvent(nil), e.events...)
}

// Subscribe registers a live event channel. The returned cancel
// function removes the subscription and closes the channel.
func (e *EventEmitter) Subscribe() (<-chan models.TaskEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan models.TaskEvent, eventBuffer)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	e.nextID++
	id := e.nextID
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
	}
}

// Close drops all subscribers and rejects further emits. The event log
// stays readable.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
