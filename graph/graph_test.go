package graph

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/storage"
)

type testState struct {
	Log      []string `json:"log"`
	Count    int      `json:"count"`
	Feedback string   `json:"feedback"`
}

func appendLog(name string) NodeFunc[testState] {
	return func(context.Context, testState) (Update[testState], error) {
		return func(s *testState) { s.Log = append(s.Log, name) }, nil
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Observe(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type
	}
	return out
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestInvokeRunsLinearGraph(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddNode("b", appendLog("b")).
		AddEdge(Start, "a").
		AddEdge("a", "b").
		AddEdge("b", End).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), testState{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !slices.Equal(out.Log, []string{"a", "b"}) {
		t.Fatalf("unexpected log: %v", out.Log)
	}
}

func TestParallelBranchesJoinOnce(t *testing.T) {
	var joins atomic.Int32
	var seenByJoin []string
	g, err := NewBuilder[testState]().
		AddNode("fork", appendLog("fork")).
		AddNode("left", appendLog("left")).
		AddNode("right", appendLog("right")).
		AddNode("join", func(_ context.Context, s testState) (Update[testState], error) {
			joins.Add(1)
			seenByJoin = slices.Clone(s.Log)
			return func(s *testState) { s.Log = append(s.Log, "join") }, nil
		}).
		AddEdge(Start, "fork").
		AddEdge("fork", "right").
		AddEdge("fork", "left").
		AddEdge("left", "join").
		AddEdge("right", "join").
		AddEdge("join", End).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), testState{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if joins.Load() != 1 {
		t.Fatalf("expected join to run once, ran %d times", joins.Load())
	}
	if !slices.Equal(seenByJoin, []string{"fork", "left", "right"}) {
		t.Fatalf("join did not see both branch updates in name order: %v", seenByJoin)
	}
	if !slices.Equal(out.Log, []string{"fork", "left", "right", "join"}) {
		t.Fatalf("unexpected log: %v", out.Log)
	}
}

func TestParallelBranchesRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	wait := func(context.Context, testState) (Update[testState], error) {
		started.Done()
		<-release
		return nil, nil
	}
	g, err := NewBuilder[testState]().
		AddNode("x", wait).
		AddNode("y", wait).
		AddEdge(Start, "x").
		AddEdge(Start, "y").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	go func() {
		started.Wait()
		close(release)
	}()
	done := make(chan error, 1)
	go func() {
		_, err := g.Invoke(context.Background(), testState{})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("parallel nodes did not run concurrently")
	}
}

func TestConditionalLoop(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("inc", func(context.Context, testState) (Update[testState], error) {
			return func(s *testState) { s.Count++ }, nil
		}).
		AddEdge(Start, "inc").
		AddConditionalEdges("inc", func(s testState) string {
			if s.Count < 3 {
				return "inc"
			}
			return End
		}, "inc", End).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), testState{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Count != 3 {
		t.Fatalf("expected 3 iterations, got %d", out.Count)
	}
}

func TestRecursionLimit(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("spin", appendLog("spin")).
		AddEdge(Start, "spin").
		AddEdge("spin", "spin").
		Compile(WithRecursionLimit(5))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), testState{})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
	if len(out.Log) != 5 {
		t.Fatalf("expected 5 steps before stopping, got %d", len(out.Log))
	}
}

func TestRouterMustChooseDeclaredTarget(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddNode("b", appendLog("b")).
		AddNode("c", appendLog("c")).
		AddEdge(Start, "a").
		AddConditionalEdges("a", func(testState) string { return "c" }, "b", End).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := g.Invoke(context.Background(), testState{}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestCompileRejectsBadWiring(t *testing.T) {
	cases := map[string]*Builder[testState]{
		"unknown target": NewBuilder[testState]().
			AddNode("a", appendLog("a")).
			AddEdge(Start, "a").
			AddEdge("a", "missing"),
		"unknown source": NewBuilder[testState]().
			AddNode("a", appendLog("a")).
			AddEdge(Start, "a").
			AddEdge("ghost", "a"),
		"no start edge": NewBuilder[testState]().
			AddNode("a", appendLog("a")),
		"duplicate node": NewBuilder[testState]().
			AddNode("a", appendLog("a")).
			AddNode("a", appendLog("a")).
			AddEdge(Start, "a"),
		"reserved name": NewBuilder[testState]().
			AddNode(End, appendLog("x")).
			AddEdge(Start, End),
		"edge into start": NewBuilder[testState]().
			AddNode("a", appendLog("a")).
			AddEdge(Start, "a").
			AddEdge("a", Start),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Compile(); !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
		})
	}

	_, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddEdge(Start, "a").
		Compile(WithInterruptBefore("nope"))
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode for unknown interrupt node, got %v", err)
	}
}

type reviewHarness struct {
	graph    *Graph[testState]
	store    *storage.MemoryStore
	drafts   *atomic.Int32
	observer *recordingObserver
}

// newReviewHarness builds draft -> review -> (draft | publish) with an
// interrupt before review.
func newReviewHarness(t *testing.T) reviewHarness {
	t.Helper()
	drafts := &atomic.Int32{}
	store := storage.NewMemoryStore()
	observer := &recordingObserver{}
	g, err := NewBuilder[testState]().
		AddNode("draft", func(_ context.Context, s testState) (Update[testState], error) {
			drafts.Add(1)
			entry := "draft"
			if s.Feedback != "" {
				entry = "draft:" + s.Feedback
			}
			return func(s *testState) { s.Log = append(s.Log, entry) }, nil
		}).
		AddNode("review", appendLog("review")).
		AddNode("publish", appendLog("publish")).
		AddEdge(Start, "draft").
		AddEdge("draft", "review").
		AddConditionalEdges("review", func(s testState) string {
			if s.Feedback == "ok" {
				return "publish"
			}
			return "draft"
		}, "draft", "publish").
		AddEdge("publish", End).
		Compile(
			WithCheckpointStore(store),
			WithInterruptBefore("review"),
			WithObserver(observer),
			WithClock(fixedClock()),
		)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return reviewHarness{graph: g, store: store, drafts: drafts, observer: observer}
}

func setFeedback(text string) Update[testState] {
	return func(s *testState) { s.Feedback = text }
}

func TestInterruptAndResume(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()

	res, err := h.graph.Run(ctx, "thread-1", testState{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Interrupted || !slices.Equal(res.Next, []string{"review"}) {
		t.Fatalf("expected interrupt before review, got %+v", res)
	}
	snap, err := h.graph.GetState(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Status != datamodels.ThreadInterrupted || !slices.Equal(snap.State.Log, []string{"draft"}) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	res, err = h.graph.Resume(ctx, "thread-1", setFeedback("shorter"))
	if err != nil {
		t.Fatalf("resume with changes: %v", err)
	}
	if !res.Interrupted {
		t.Fatalf("expected a second interrupt after requesting changes")
	}
	if !slices.Equal(res.State.Log, []string{"draft", "review", "draft:shorter"}) {
		t.Fatalf("unexpected log after first resume: %v", res.State.Log)
	}

	res, err = h.graph.Resume(ctx, "thread-1", setFeedback("ok"))
	if err != nil {
		t.Fatalf("resume with approval: %v", err)
	}
	if res.Interrupted || len(res.Next) != 0 {
		t.Fatalf("expected completion, got %+v", res)
	}
	if last := res.State.Log[len(res.State.Log)-1]; last != "publish" {
		t.Fatalf("expected publish to run last, got %v", res.State.Log)
	}
	if h.drafts.Load() != 2 {
		t.Fatalf("expected 2 drafts, got %d", h.drafts.Load())
	}

	snap, err = h.graph.GetState(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Status != datamodels.ThreadCompleted || len(snap.Next) != 0 {
		t.Fatalf("expected completed checkpoint, got %+v", snap)
	}

	types := h.observer.types()
	if types[len(types)-1] != EventCompleted {
		t.Fatalf("expected completed event last, got %v", types)
	}
	if !slices.Contains(types, EventInterrupted) || !slices.Contains(types, EventNodeStarted) {
		t.Fatalf("missing events: %v", types)
	}
}

func TestResumeCompletedThreadFails(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()
	if _, err := h.graph.Run(ctx, "t", testState{Feedback: "ok"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.graph.Resume(ctx, "t", nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := h.graph.Resume(ctx, "t", nil); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable, got %v", err)
	}
}

func TestRunRejectsExistingThread(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()
	if _, err := h.graph.Run(ctx, "t", testState{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.graph.Run(ctx, "t", testState{}); !errors.Is(err, ErrThreadExists) {
		t.Fatalf("expected ErrThreadExists, got %v", err)
	}
}

func TestListStates(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := h.graph.Run(ctx, id, testState{}); err != nil {
			t.Fatalf("run %s: %v", id, err)
		}
	}
	snaps, err := h.graph.ListStates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, s := range snaps {
		if s.Status != datamodels.ThreadInterrupted || !slices.Equal(s.State.Log, []string{"draft"}) {
			t.Fatalf("unexpected snapshot %+v", s)
		}
		ids = append(ids, s.ThreadID)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"a", "b"}) {
		t.Fatalf("unexpected threads %v", ids)
	}
}

func TestResumeUnknownThread(t *testing.T) {
	h := newReviewHarness(t)
	if _, err := h.graph.Resume(context.Background(), "nope", nil); !errors.Is(err, storage.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestRunWithoutStore(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddEdge(Start, "a").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := g.Run(context.Background(), "t", testState{}); !errors.Is(err, ErrNoCheckpointer) {
		t.Fatalf("expected ErrNoCheckpointer, got %v", err)
	}
}

func TestFailedThreadCanBeResumed(t *testing.T) {
	var calls atomic.Int32
	store := storage.NewMemoryStore()
	g, err := NewBuilder[testState]().
		AddNode("flaky", func(context.Context, testState) (Update[testState], error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("upstream unavailable")
			}
			return func(s *testState) { s.Count = 42 }, nil
		}).
		AddEdge(Start, "flaky").
		Compile(WithCheckpointStore(store))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := context.Background()
	if _, err := g.Run(ctx, "t", testState{}); err == nil || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("expected node error, got %v", err)
	}
	snap, err := g.GetState(ctx, "t")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Status != datamodels.ThreadFailed || !slices.Equal(snap.Next, []string{"flaky"}) {
		t.Fatalf("expected failed checkpoint pointing at flaky, got %+v", snap)
	}
	if !strings.Contains(snap.Error, "node flaky") {
		t.Fatalf("expected error recorded in checkpoint, got %q", snap.Error)
	}
	res, err := g.Resume(ctx, "t", nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.State.Count != 42 {
		t.Fatalf("expected retried node to apply update, got %+v", res.State)
	}
}

func TestNodePanicBecomesError(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("boom", func(context.Context, testState) (Update[testState], error) {
			panic("kaboom")
		}).
		AddEdge(Start, "boom").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = g.Invoke(context.Background(), testState{})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

func TestSubgraphNode(t *testing.T) {
	type inner struct {
		Input  string
		Output string
	}
	sub, err := NewBuilder[inner]().
		AddNode("upper", func(_ context.Context, s inner) (Update[inner], error) {
			return func(st *inner) { st.Output = strings.ToUpper(s.Input) }, nil
		}).
		AddEdge(Start, "upper").
		Compile()
	if err != nil {
		t.Fatalf("compile sub: %v", err)
	}
	parent, err := NewBuilder[testState]().
		AddNode("sub", Subgraph(sub,
			func(s testState) inner { return inner{Input: s.Feedback} },
			func(out inner) Update[testState] {
				return func(s *testState) { s.Log = append(s.Log, out.Output) }
			},
		)).
		AddEdge(Start, "sub").
		Compile()
	if err != nil {
		t.Fatalf("compile parent: %v", err)
	}
	out, err := parent.Invoke(context.Background(), testState{Feedback: "go"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !slices.Equal(out.Log, []string{"GO"}) {
		t.Fatalf("unexpected log: %v", out.Log)
	}
}

func TestCancelledContextFailsRun(t *testing.T) {
	g, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddEdge(Start, "a").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Invoke(ctx, testState{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBeginResumeMarksThreadRunning(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()
	if _, err := h.graph.Run(ctx, "t", testState{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	p, err := h.graph.BeginResume(ctx, "t", setFeedback("ok"))
	if err != nil {
		t.Fatalf("begin resume: %v", err)
	}
	snap, err := h.graph.GetState(ctx, "t")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Status != datamodels.ThreadRunning || snap.State.Feedback != "ok" {
		t.Fatalf("expected running checkpoint with the update applied, got %+v", snap)
	}
	if _, err := h.graph.BeginResume(ctx, "t", nil); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected a second resume to be rejected, got %v", err)
	}
	res, err := p.Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !slices.Equal(res.State.Log, []string{"draft", "review", "publish"}) {
		t.Fatalf("unexpected log: %v", res.State.Log)
	}
}

func TestResumeStaleRunningThread(t *testing.T) {
	h := newReviewHarness(t)
	ctx := context.Background()
	if err := h.store.Save(ctx, storage.Checkpoint{
		ThreadID: "t",
		Step:     1,
		Status:   datamodels.ThreadRunning,
		Next:     []string{"review"},
		State:    []byte(`{"log":["draft"]}`),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.graph.Resume(ctx, "t", nil); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected Resume to reject a running thread, got %v", err)
	}

	res, err := h.graph.ResumeStale(ctx, "t")
	if err != nil {
		t.Fatalf("resume stale: %v", err)
	}
	if !res.Interrupted || !slices.Equal(res.Next, []string{"review"}) {
		t.Fatalf("expected the interrupt before review to hold, got %+v", res)
	}

	res, err = h.graph.Resume(ctx, "t", setFeedback("ok"))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !slices.Equal(res.State.Log, []string{"draft", "review", "publish"}) {
		t.Fatalf("unexpected log: %v", res.State.Log)
	}
	if h.drafts.Load() != 0 {
		t.Fatalf("draft must not run again, ran %d times", h.drafts.Load())
	}
}

func TestRoutingFailureSavesPreStepState(t *testing.T) {
	route := "ghost"
	g, err := NewBuilder[testState]().
		AddNode("a", appendLog("a")).
		AddEdge(Start, "a").
		AddConditionalEdges("a", func(testState) string { return route }).
		Compile(WithCheckpointStore(storage.NewMemoryStore()))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := context.Background()
	if _, err := g.Run(ctx, "t", testState{}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	snap, err := g.GetState(ctx, "t")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Status != datamodels.ThreadFailed || len(snap.State.Log) != 0 || !slices.Equal(snap.Next, []string{"a"}) {
		t.Fatalf("expected failed checkpoint before step a, got %+v", snap)
	}

	route = End
	res, err := g.Resume(ctx, "t", nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !slices.Equal(res.State.Log, []string{"a"}) {
		t.Fatalf("expected step a applied once, got %v", res.State.Log)
	}
}
