// Package events delivers graph execution events to logs, websocket
// clients and a message broker.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/JoshPattman/resumestudio/graph"
)

// Message is the wire form of a graph event.
type Message struct {
	Type      graph.EventType `json:"type"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Node      string          `json:"node,omitempty"`
	Step      int             `json:"step"`
	Next      []string        `json:"next,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func NewMessage(e graph.Event) Message {
	m := Message{
		Type:      e.Type,
		ThreadID:  e.ThreadID,
		Node:      e.Node,
		Step:      e.Step,
		Next:      e.Next,
		Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

func encode(e graph.Event) ([]byte, error) {
	return json.Marshal(NewMessage(e))
}

// Multi fans an event out to several observers in order.
type Multi []graph.Observer

func (m Multi) Observe(e graph.Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// LogObserver logs thread-level events at info and node-level events at debug.
func LogObserver(logger *slog.Logger) graph.Observer {
	return graph.ObserverFunc(func(e graph.Event) {
		attrs := []any{"thread_id", e.ThreadID, "step", e.Step}
		if e.Node != "" {
			attrs = append(attrs, "node", e.Node)
		}
		switch e.Type {
		case graph.EventNodeStarted, graph.EventNodeFinished:
			logger.Debug("Node "+string(e.Type), attrs...)
		case graph.EventNodeFailed, graph.EventFailed:
			logger.Warn("Graph event", append(attrs, "type", e.Type, "err", e.Err)...)
		case graph.EventInterrupted:
			logger.Info("Thread interrupted", append(attrs, "next", e.Next)...)
		default:
			logger.Info("Graph event", append(attrs, "type", e.Type)...)
		}
	})
}
