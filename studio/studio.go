package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JoshPattman/resumestudio/agents"
	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/export"
	"github.com/JoshPattman/resumestudio/graph"
	"github.com/JoshPattman/resumestudio/storage"
	"github.com/google/uuid"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrThreadNotFound = errors.New("thread not found")
	ErrThreadFinished = errors.New("thread already finished")
	ErrThreadFailed   = errors.New("thread failed")
	ErrThreadBusy     = errors.New("thread is running")
	ErrNotFailed      = errors.New("thread has not failed")
)

// StartRequest holds the inputs of a new thread.
type StartRequest struct {
	JobPost string `json:"job_post"`
	Resume  string `json:"resume"`
}

// Options tunes a Studio. Zero values select defaults.
type Options struct {
	MaxRevisions   int
	RecursionLimit int
	Observers      []graph.Observer
	// Sink receives the final resume of every completed thread.
	Sink export.Sink
	// Background makes Start, SubmitFeedback and Retry return as soon as the
	// thread is marked running. The run continues on a context detached from
	// the caller until Shutdown.
	Background bool
}

// Studio runs resume threads and pauses them for human review of the
// extracted qualifications.
type Studio struct {
	graph      *graph.Graph[datamodels.ResumeState]
	sink       export.Sink
	logger     *slog.Logger
	background bool

	mu   sync.Mutex
	busy map[string]struct{}

	runs       sync.WaitGroup
	runsCtx    context.Context
	cancelRuns context.CancelFunc
}

func New(a agents.Agents, store storage.CheckpointStore, logger *slog.Logger, opts Options) (*Studio, error) {
	if store == nil {
		return nil, errors.New("a checkpoint store is required")
	}
	graphOpts := []graph.Option{graph.WithCheckpointStore(store)}
	if opts.RecursionLimit > 0 {
		graphOpts = append(graphOpts, graph.WithRecursionLimit(opts.RecursionLimit))
	}
	for _, o := range opts.Observers {
		graphOpts = append(graphOpts, graph.WithObserver(o))
	}
	g, err := NewPipeline(a, opts.MaxRevisions, logger, graphOpts...)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	runsCtx, cancelRuns := context.WithCancel(context.Background())
	return &Studio{
		graph:      g,
		sink:       opts.Sink,
		logger:     logger,
		background: opts.Background,
		busy:       make(map[string]struct{}),
		runsCtx:    runsCtx,
		cancelRuns: cancelRuns,
	}, nil
}

// Start creates a thread and runs it until the qualifications are ready
// for review.
func (s *Studio) Start(ctx context.Context, req StartRequest) (datamodels.Thread, error) {
	if strings.TrimSpace(req.JobPost) == "" {
		return datamodels.Thread{}, fmt.Errorf("%w: job post is empty", ErrInvalidRequest)
	}
	id := uuid.NewString()
	if err := s.acquire(id); err != nil {
		return datamodels.Thread{}, err
	}
	logger := s.logger.With("thread_id", id)
	logger.Info("Starting thread")
	p, err := s.graph.BeginRun(ctx, id, datamodels.ResumeState{
		JobPost:     req.JobPost,
		ResumeInput: req.Resume,
	})
	if err != nil {
		s.release(id)
		return datamodels.Thread{}, err
	}
	return s.execute(ctx, logger, p)
}

// SubmitFeedback resumes a thread waiting for review. Empty feedback or
// "ok" approves the qualifications; anything else is sent back to the
// extractor.
func (s *Studio) SubmitFeedback(ctx context.Context, id, feedback string) (datamodels.Thread, error) {
	if err := s.acquire(id); err != nil {
		return datamodels.Thread{}, err
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		s.release(id)
		return datamodels.Thread{}, err
	}
	switch t.Status {
	case datamodels.ThreadCompleted:
		err = ErrThreadFinished
	case datamodels.ThreadFailed:
		err = ErrThreadFailed
	case datamodels.ThreadRunning:
		err = ErrThreadBusy
	}
	if err != nil {
		s.release(id)
		return t, fmt.Errorf("%s: %w", id, err)
	}

	logger := s.logger.With("thread_id", id)
	logger.Info("Received feedback", "approved", Approved(feedback))
	p, err := s.graph.BeginResume(ctx, id, func(st *datamodels.ResumeState) {
		st.HumanFeedback = feedback
	})
	if err != nil {
		s.release(id)
		return t, err
	}
	return s.execute(ctx, logger, p)
}

// Retry resumes a failed thread from the step that failed. A thread saved
// as running that this process is not running is treated as abandoned by a
// crashed process and is picked up again.
func (s *Studio) Retry(ctx context.Context, id string) (datamodels.Thread, error) {
	if err := s.acquire(id); err != nil {
		return datamodels.Thread{}, err
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		s.release(id)
		return datamodels.Thread{}, err
	}
	logger := s.logger.With("thread_id", id)
	var p *graph.Pending[datamodels.ResumeState]
	switch t.Status {
	case datamodels.ThreadFailed:
		logger.Info("Retrying thread", "next", t.Next)
		p, err = s.graph.BeginResume(ctx, id, nil)
	case datamodels.ThreadRunning:
		logger.Warn("Recovering abandoned thread", "next", t.Next, "updated_at", t.UpdatedAt)
		p, err = s.graph.BeginResumeStale(ctx, id)
	default:
		err = fmt.Errorf("%s is %s: %w", id, t.Status, ErrNotFailed)
	}
	if err != nil {
		s.release(id)
		return t, err
	}
	return s.execute(ctx, logger, p)
}

// Shutdown waits for background runs to finish. When ctx ends first, the
// remaining runs are cancelled, which records them as failed so they can be
// retried later.
func (s *Studio) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Cancelling background runs")
		s.cancelRuns()
		<-done
		return ctx.Err()
	}
}

// execute runs p and releases its thread. The caller must hold the thread.
func (s *Studio) execute(ctx context.Context, logger *slog.Logger, p *graph.Pending[datamodels.ResumeState]) (datamodels.Thread, error) {
	id := p.ThreadID()
	if !s.background {
		defer s.release(id)
		_, err := p.Execute(ctx)
		return s.settle(ctx, logger, id, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.runsCtx, cancel)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.release(id)
		defer cancel()
		defer stop()
		_, err := p.Execute(runCtx)
		s.settle(runCtx, logger, id, err)
	}()
	return s.Get(ctx, id)
}

func (s *Studio) Get(ctx context.Context, id string) (datamodels.Thread, error) {
	snap, err := s.graph.GetState(ctx, id)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return datamodels.Thread{}, fmt.Errorf("%s: %w", id, ErrThreadNotFound)
	} else if err != nil {
		return datamodels.Thread{}, err
	}
	return toThread(snap), nil
}

// List returns every thread, most recently updated first.
func (s *Studio) List(ctx context.Context) ([]datamodels.Thread, error) {
	snaps, err := s.graph.ListStates(ctx)
	if err != nil {
		return nil, err
	}
	threads := make([]datamodels.Thread, len(snaps))
	for i, snap := range snaps {
		threads[i] = toThread(snap)
	}
	return threads, nil
}

// settle reloads the thread after a run and exports it if it completed.
// A run error is returned alongside the (failed) thread.
func (s *Studio) settle(ctx context.Context, logger *slog.Logger, id string, runErr error) (datamodels.Thread, error) {
	if runErr != nil {
		logger.Error("Thread failed", "err", runErr)
		t, err := s.Get(context.WithoutCancel(ctx), id)
		if err != nil {
			return datamodels.Thread{}, errors.Join(runErr, err)
		}
		return t, runErr
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return datamodels.Thread{}, err
	}
	switch {
	case t.AwaitingFeedback():
		logger.Info("Waiting for feedback", "required", len(t.State.Qualifications.Required), "preferred", len(t.State.Qualifications.Preferred))
	case t.Finished():
		logger.Info("Thread completed", "revisions", t.State.Iteration)
		if s.sink != nil {
			if err := s.sink.Put(ctx, id, export.Artifact{
				JobPost:        t.State.JobPost,
				Qualifications: t.State.Qualifications,
				Resume:         t.State.ResumeDraft,
			}); err != nil {
				logger.Error("Failed to export final resume", "err", err)
			}
		}
	}
	return t, nil
}

func (s *Studio) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrThreadBusy)
	}
	s.busy[id] = struct{}{}
	return nil
}

func (s *Studio) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, id)
}

func toThread(snap graph.Snapshot[datamodels.ResumeState]) datamodels.Thread {
	return datamodels.Thread{
		ID:        snap.ThreadID,
		Status:    snap.Status,
		Next:      snap.Next,
		Step:      snap.Step,
		State:     snap.State,
		Error:     snap.Error,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
}
