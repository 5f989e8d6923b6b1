package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/storage"
)

// Graph is a compiled, immutable state graph. It is safe for concurrent use
// across threads; a single thread must not be run or resumed concurrently.
type Graph[S any] struct {
	nodes       map[string]NodeFunc[S]
	edges       map[string][]string
	conditional map[string]conditionalEdge[S]
	settings
}

// RunResult describes where a Run or Resume call stopped.
type RunResult[S any] struct {
	State       S
	Next        []string
	Step        int
	Interrupted bool
}

// Snapshot is the decoded checkpoint of a thread.
type Snapshot[S any] struct {
	ThreadID  string
	State     S
	Next      []string
	Step      int
	Status    datamodels.ThreadStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invoke runs the graph from Start to completion without persisting
// anything. Interrupts are ignored.
func (g *Graph[S]) Invoke(ctx context.Context, input S) (S, error) {
	frontier, err := g.nextFrontier(input, []string{Start})
	if err != nil {
		return input, err
	}
	res, err := g.execute(ctx, run[S]{state: input, frontier: frontier})
	return res.State, err
}

// Run starts a new thread from input. It returns once the thread completes,
// fails, or is interrupted.
func (g *Graph[S]) Run(ctx context.Context, threadID string, input S) (RunResult[S], error) {
	p, err := g.BeginRun(ctx, threadID, input)
	if err != nil {
		return RunResult[S]{}, err
	}
	return p.Execute(ctx)
}

// Resume continues an interrupted (or failed) thread. update, if not nil,
// is applied to the saved state first; it is how human input enters the
// graph. The saved frontier then runs without interrupting again.
func (g *Graph[S]) Resume(ctx context.Context, threadID string, update Update[S]) (RunResult[S], error) {
	p, err := g.BeginResume(ctx, threadID, update)
	if err != nil {
		return RunResult[S]{}, err
	}
	return p.Execute(ctx)
}

// ResumeStale continues a thread whose last checkpoint says running but whose
// run is gone, e.g. after a crash. See BeginResumeStale.
func (g *Graph[S]) ResumeStale(ctx context.Context, threadID string) (RunResult[S], error) {
	p, err := g.BeginResumeStale(ctx, threadID)
	if err != nil {
		return RunResult[S]{}, err
	}
	return p.Execute(ctx)
}

// Pending is a thread whose starting checkpoint has been saved with status
// running and which is ready to execute. Execute must be called once.
type Pending[S any] struct {
	g *Graph[S]
	r run[S]
}

// ThreadID returns the id of the pending thread.
func (p *Pending[S]) ThreadID() string {
	return p.r.threadID
}

// Execute runs the thread until it completes, fails, or is interrupted.
func (p *Pending[S]) Execute(ctx context.Context) (RunResult[S], error) {
	return p.g.execute(ctx, p.r)
}

// BeginRun validates a new thread and saves its first checkpoint, so the
// thread is visible to GetState before any node runs.
func (g *Graph[S]) BeginRun(ctx context.Context, threadID string, input S) (*Pending[S], error) {
	if g.store == nil {
		return nil, ErrNoCheckpointer
	}
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}
	if _, err := g.store.Load(ctx, threadID); err == nil {
		return nil, fmt.Errorf("%s: %w", threadID, ErrThreadExists)
	} else if !errors.Is(err, storage.ErrCheckpointNotFound) {
		return nil, err
	}
	frontier, err := g.nextFrontier(input, []string{Start})
	if err != nil {
		return nil, err
	}
	r := run[S]{
		threadID:  threadID,
		state:     input,
		frontier:  frontier,
		createdAt: g.clock(),
	}
	if err := g.checkpoint(ctx, r, datamodels.ThreadRunning, nil); err != nil {
		return nil, err
	}
	return &Pending[S]{g: g, r: r}, nil
}

// BeginResume applies update to an interrupted or failed thread and marks it
// running before the first resumed step.
func (g *Graph[S]) BeginResume(ctx context.Context, threadID string, update Update[S]) (*Pending[S], error) {
	return g.beginResume(ctx, threadID, update, true, datamodels.ThreadInterrupted, datamodels.ThreadFailed)
}

// BeginResumeStale picks up a thread left in the running state (or a failed
// one). Unlike BeginResume, an interrupt on the saved frontier still pauses
// the thread, because a running checkpoint may have been written just before
// an interrupt. The caller must know that no other run of the thread is live.
func (g *Graph[S]) BeginResumeStale(ctx context.Context, threadID string) (*Pending[S], error) {
	return g.beginResume(ctx, threadID, nil, false, datamodels.ThreadRunning, datamodels.ThreadFailed)
}

func (g *Graph[S]) beginResume(ctx context.Context, threadID string, update Update[S], skipInterrupt bool, accept ...datamodels.ThreadStatus) (*Pending[S], error) {
	if g.store == nil {
		return nil, ErrNoCheckpointer
	}
	snap, err := g.GetState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(accept, snap.Status) {
		return nil, fmt.Errorf("%s is %s: %w", threadID, snap.Status, ErrNotResumable)
	}
	// A failed thread resumes the step that failed, so its interrupt was already passed.
	if snap.Status == datamodels.ThreadFailed {
		skipInterrupt = true
	}
	if update != nil {
		update(&snap.State)
	}
	r := run[S]{
		threadID:      threadID,
		state:         snap.State,
		frontier:      snap.Next,
		step:          snap.Step,
		createdAt:     snap.CreatedAt,
		skipInterrupt: skipInterrupt,
	}
	if err := g.checkpoint(ctx, r, datamodels.ThreadRunning, nil); err != nil {
		return nil, err
	}
	return &Pending[S]{g: g, r: r}, nil
}

// GetState loads and decodes the latest checkpoint of a thread.
func (g *Graph[S]) GetState(ctx context.Context, threadID string) (Snapshot[S], error) {
	if g.store == nil {
		return Snapshot[S]{}, ErrNoCheckpointer
	}
	cp, err := g.store.Load(ctx, threadID)
	if err != nil {
		return Snapshot[S]{}, err
	}
	return decodeSnapshot[S](cp)
}

// ListStates decodes the latest checkpoint of every stored thread, newest first.
func (g *Graph[S]) ListStates(ctx context.Context) ([]Snapshot[S], error) {
	if g.store == nil {
		return nil, ErrNoCheckpointer
	}
	cps, err := g.store.List(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]Snapshot[S], 0, len(cps))
	for _, cp := range cps {
		snap, err := decodeSnapshot[S](cp)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func decodeSnapshot[S any](cp storage.Checkpoint) (Snapshot[S], error) {
	snap := Snapshot[S]{
		ThreadID:  cp.ThreadID,
		Next:      cp.Next,
		Step:      cp.Step,
		Status:    cp.Status,
		Error:     cp.Error,
		CreatedAt: cp.CreatedAt,
		UpdatedAt: cp.UpdatedAt,
	}
	if len(cp.State) > 0 {
		if err := json.Unmarshal(cp.State, &snap.State); err != nil {
			return Snapshot[S]{}, fmt.Errorf("decode state of %s: %w", cp.ThreadID, err)
		}
	}
	return snap, nil
}

type run[S any] struct {
	threadID      string
	state         S
	frontier      []string
	step          int
	createdAt     time.Time
	skipInterrupt bool
}

func (g *Graph[S]) persistent(r run[S]) bool {
	return g.store != nil && r.threadID != ""
}

func (g *Graph[S]) execute(ctx context.Context, r run[S]) (RunResult[S], error) {
	steps := 0
	for {
		r.frontier = normalizeFrontier(r.frontier)
		if len(r.frontier) == 0 {
			return g.finish(ctx, r)
		}
		if g.persistent(r) && !r.skipInterrupt && g.shouldInterrupt(r.frontier) {
			return g.interrupt(ctx, r)
		}
		r.skipInterrupt = false
		if steps >= g.recursionLimit {
			return g.fail(ctx, r, fmt.Errorf("%w after %d steps", ErrRecursionLimit, steps))
		}
		if err := ctx.Err(); err != nil {
			return g.fail(ctx, r, err)
		}

		updates, err := g.runStep(ctx, r)
		if err != nil {
			return g.fail(ctx, r, err)
		}
		// Updates append or replace fields, so a shallow copy keeps the pre-step state.
		before := r
		for _, u := range updates {
			if u != nil {
				u(&r.state)
			}
		}
		next, err := g.nextFrontier(r.state, r.frontier)
		if err != nil {
			// Retrying re-runs this step, so its updates must not be saved.
			return g.fail(ctx, before, err)
		}
		r.frontier = next
		r.step++
		steps++
		if g.persistent(r) {
			if err := g.checkpoint(ctx, r, datamodels.ThreadRunning, nil); err != nil {
				return RunResult[S]{}, err
			}
		}
	}
}

// runStep runs the frontier in parallel, returning updates in frontier order.
func (g *Graph[S]) runStep(ctx context.Context, r run[S]) ([]Update[S], error) {
	return ParMap(r.frontier, func(name string) (Update[S], error) {
		g.emit(Event{Type: EventNodeStarted, ThreadID: r.threadID, Node: name, Step: r.step})
		u, err := g.callNode(ctx, name, r.state)
		if err != nil {
			err = fmt.Errorf("node %s: %w", name, err)
			g.emit(Event{Type: EventNodeFailed, ThreadID: r.threadID, Node: name, Step: r.step, Err: err})
			return nil, err
		}
		g.emit(Event{Type: EventNodeFinished, ThreadID: r.threadID, Node: name, Step: r.step})
		return u, nil
	})
}

func (g *Graph[S]) callNode(ctx context.Context, name string, state S) (u Update[S], err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	fn, ok := g.nodes[name]
	if !ok {
		return nil, ErrUnknownNode
	}
	return fn(ctx, state)
}

func (g *Graph[S]) nextFrontier(state S, ran []string) ([]string, error) {
	var next []string
	for _, name := range ran {
		next = append(next, g.edges[name]...)
		cond, ok := g.conditional[name]
		if !ok {
			continue
		}
		target := cond.router(state)
		if target != End {
			if _, known := g.nodes[target]; !known {
				return nil, fmt.Errorf("router of %s chose %q: %w", name, target, ErrUnknownNode)
			}
			if len(cond.targets) > 0 && !slices.Contains(cond.targets, target) {
				return nil, fmt.Errorf("router of %s chose undeclared target %q: %w", name, target, ErrUnknownNode)
			}
		}
		next = append(next, target)
	}
	return next, nil
}

func (g *Graph[S]) shouldInterrupt(frontier []string) bool {
	for _, name := range frontier {
		if slices.Contains(g.interruptBefore, name) {
			return true
		}
	}
	return false
}

func (g *Graph[S]) interrupt(ctx context.Context, r run[S]) (RunResult[S], error) {
	if err := g.checkpoint(ctx, r, datamodels.ThreadInterrupted, nil); err != nil {
		return RunResult[S]{}, err
	}
	g.emit(Event{Type: EventInterrupted, ThreadID: r.threadID, Step: r.step, Next: slices.Clone(r.frontier)})
	return RunResult[S]{State: r.state, Next: r.frontier, Step: r.step, Interrupted: true}, nil
}

func (g *Graph[S]) finish(ctx context.Context, r run[S]) (RunResult[S], error) {
	if g.persistent(r) {
		if err := g.checkpoint(ctx, r, datamodels.ThreadCompleted, nil); err != nil {
			return RunResult[S]{}, err
		}
	}
	g.emit(Event{Type: EventCompleted, ThreadID: r.threadID, Step: r.step})
	return RunResult[S]{State: r.state, Step: r.step}, nil
}

// fail records the failed frontier so the thread can be resumed later.
func (g *Graph[S]) fail(ctx context.Context, r run[S], cause error) (RunResult[S], error) {
	if g.persistent(r) {
		// The caller's context may be the reason we failed.
		saveCtx := context.WithoutCancel(ctx)
		if err := g.checkpoint(saveCtx, r, datamodels.ThreadFailed, cause); err != nil {
			cause = errors.Join(cause, err)
		}
	}
	g.emit(Event{Type: EventFailed, ThreadID: r.threadID, Step: r.step, Next: slices.Clone(r.frontier), Err: cause})
	return RunResult[S]{State: r.state, Next: r.frontier, Step: r.step}, cause
}

func (g *Graph[S]) checkpoint(ctx context.Context, r run[S], status datamodels.ThreadStatus, cause error) error {
	encoded, err := json.Marshal(r.state)
	if err != nil {
		return fmt.Errorf("encode state of %s: %w", r.threadID, err)
	}
	cp := storage.Checkpoint{
		ThreadID:  r.threadID,
		Step:      r.step,
		Status:    status,
		State:     encoded,
		CreatedAt: r.createdAt,
		UpdatedAt: g.clock(),
	}
	if status != datamodels.ThreadCompleted {
		cp.Next = slices.Clone(r.frontier)
	}
	if cause != nil {
		cp.Error = cause.Error()
	}
	if err := g.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint of %s: %w", r.threadID, err)
	}
	return nil
}

func (g *Graph[S]) emit(e Event) {
	if len(g.observers) == 0 {
		return
	}
	e.Time = g.clock()
	for _, o := range g.observers {
		o.Observe(e)
	}
}

// normalizeFrontier drops End, removes duplicates and sorts, so that joins
// run once and updates are applied in a deterministic order.
func normalizeFrontier(frontier []string) []string {
	out := make([]string, 0, len(frontier))
	for _, name := range frontier {
		if name == End || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
