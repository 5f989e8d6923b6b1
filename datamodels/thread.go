package datamodels

import "time"

// ThreadStatus is the lifecycle state of a resume thread.
type ThreadStatus string

const (
	ThreadRunning     ThreadStatus = "running"
	ThreadInterrupted ThreadStatus = "interrupted"
	ThreadCompleted   ThreadStatus = "completed"
	ThreadFailed      ThreadStatus = "failed"
)

// A Thread is one run of the resume pipeline, identified by ID.
// Next holds the nodes that will run when the thread is resumed.
type Thread struct {
	ID        string       `json:"id"`
	Status    ThreadStatus `json:"status"`
	Next      []string     `json:"next,omitempty"`
	Step      int          `json:"step"`
	State     ResumeState  `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AwaitingFeedback reports whether the thread is paused for human review.
func (t Thread) AwaitingFeedback() bool {
	return t.Status == ThreadInterrupted
}

// Finished reports whether the thread has produced its final resume.
func (t Thread) Finished() bool {
	return t.Status == ThreadCompleted
}
