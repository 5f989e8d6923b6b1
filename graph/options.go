package graph

import (
	"time"

	"github.com/JoshPattman/resumestudio/storage"
)

const DefaultRecursionLimit = 25

type settings struct {
	store           storage.CheckpointStore
	interruptBefore []string
	recursionLimit  int
	observers       []Observer
	clock           func() time.Time
}

func defaultSettings() settings {
	return settings{
		recursionLimit: DefaultRecursionLimit,
		clock:          time.Now,
	}
}

// Option customizes a compiled graph.
type Option func(*settings)

// WithCheckpointStore persists every superstep of a thread to store.
// Interrupts and Resume require a store.
func WithCheckpointStore(store storage.CheckpointStore) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithInterruptBefore pauses a thread before any of nodes is about to run.
func WithInterruptBefore(nodes ...string) Option {
	return func(s *settings) {
		s.interruptBefore = append(s.interruptBefore, nodes...)
	}
}

// WithRecursionLimit bounds the number of supersteps a single Run, Resume
// or Invoke call may execute.
func WithRecursionLimit(limit int) Option {
	return func(s *settings) {
		s.recursionLimit = limit
	}
}

// WithObserver adds an observer for execution events.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}
