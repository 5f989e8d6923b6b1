package graph

import "time"

// EventType names something that happened while running a thread.
type EventType string

const (
	EventNodeStarted  EventType = "node_started"
	EventNodeFinished EventType = "node_finished"
	EventNodeFailed   EventType = "node_failed"
	EventInterrupted  EventType = "interrupted"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
)

// Event is emitted to observers during execution. ThreadID is empty for
// graphs run through Invoke.
type Event struct {
	Type     EventType
	ThreadID string
	Node     string
	Step     int
	Next     []string
	Err      error
	Time     time.Time
}

// Observer receives execution events. Observe is called from node goroutines
// and must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
