package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/JoshPattman/resumestudio/datamodels"
)

var ErrCheckpointNotFound = errors.New("could not find checkpoint")

// Checkpoint is the persisted snapshot of a thread after a graph superstep.
// State holds the graph state encoded as JSON.
type Checkpoint struct {
	ThreadID  string                  `json:"thread_id"`
	Step      int                     `json:"step"`
	Status    datamodels.ThreadStatus `json:"status"`
	Next      []string                `json:"next,omitempty"`
	State     json.RawMessage         `json:"state"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// CheckpointStore persists the latest checkpoint of each thread.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, threadID string) (Checkpoint, error)
	List(ctx context.Context) ([]Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

type threadIDLister interface {
	listThreadIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, threadID string) (Checkpoint, error)
}

// fallback to implement List on top of an id index, newest first
func listCheckpoints(ctx context.Context, l threadIDLister) ([]Checkpoint, error) {
	ids, err := l.listThreadIDs(ctx)
	if err != nil {
		return nil, err
	}
	cps := make([]Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := l.Load(ctx, id)
		if errors.Is(err, ErrCheckpointNotFound) {
			// expired or deleted between listing and loading
			continue
		}
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	sortNewestFirst(cps)
	return cps, nil
}

func sortNewestFirst(cps []Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		if !cps[i].UpdatedAt.Equal(cps[j].UpdatedAt) {
			return cps[i].UpdatedAt.After(cps[j].UpdatedAt)
		}
		return cps[i].ThreadID < cps[j].ThreadID
	})
}

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	out := cp
	if cp.Next != nil {
		out.Next = append([]string(nil), cp.Next...)
	}
	if cp.State != nil {
		out.State = append(json.RawMessage(nil), cp.State...)
	}
	return out
}
