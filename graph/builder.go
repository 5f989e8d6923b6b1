package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

const (
	// Start is the pseudo-node every run begins from.
	Start = "__start__"
	// End is the pseudo-node that terminates a branch.
	End = "__end__"
)

// Update mutates the graph state. A nil Update leaves the state unchanged.
type Update[S any] func(*S)

// NodeFunc is the work done by a node. It must not modify state directly:
// changes are expressed through the returned Update.
type NodeFunc[S any] func(ctx context.Context, state S) (Update[S], error)

// Router picks the next node from the state after the source node has run.
type Router[S any] func(state S) string

type conditionalEdge[S any] struct {
	router  Router[S]
	targets []string
}

// Builder collects nodes and edges and compiles them into a Graph.
// Wiring mistakes are collected and reported by Compile.
type Builder[S any] struct {
	nodes       map[string]NodeFunc[S]
	edges       map[string][]string
	conditional map[string]conditionalEdge[S]
	errs        []error
}

func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string][]string),
		conditional: make(map[string]conditionalEdge[S]),
	}
}

// AddNode registers fn under name.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("node name is required"))
	case name == Start || name == End:
		b.errs = append(b.errs, fmt.Errorf("node name %q is reserved", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %q has no function", name))
	case b.nodes[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("node %q added twice", name))
	default:
		b.nodes[name] = fn
	}
	return b
}

// AddEdge makes to run after from. Several edges out of one node run their
// targets in parallel.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if slices.Contains(b.edges[from], to) {
		return b
	}
	b.edges[from] = append(b.edges[from], to)
	return b
}

// AddConditionalEdges routes from to whichever node router returns. When
// targets are given, the router may only return one of them (or End).
func (b *Builder[S]) AddConditionalEdges(from string, router Router[S], targets ...string) *Builder[S] {
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %q has no router", from))
		return b
	}
	if _, exists := b.conditional[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %q already has conditional edges", from))
		return b
	}
	b.conditional[from] = conditionalEdge[S]{router: router, targets: slices.Clone(targets)}
	return b
}

// Compile validates the wiring and returns a runnable graph.
func (b *Builder[S]) Compile(opts ...Option) (*Graph[S], error) {
	errs := slices.Clone(b.errs)
	known := func(name string) bool {
		_, ok := b.nodes[name]
		return ok
	}
	checkSource := func(from string) {
		if from != Start && !known(from) {
			errs = append(errs, fmt.Errorf("edge from %q: %w", from, ErrUnknownNode))
		}
	}
	checkTarget := func(from, to string) {
		if to == Start {
			errs = append(errs, fmt.Errorf("edge from %q may not target %s", from, Start))
			return
		}
		if to != End && !known(to) {
			errs = append(errs, fmt.Errorf("edge %q -> %q: %w", from, to, ErrUnknownNode))
		}
	}
	for from, targets := range b.edges {
		checkSource(from)
		for _, to := range targets {
			checkTarget(from, to)
		}
	}
	for from, cond := range b.conditional {
		checkSource(from)
		for _, to := range cond.targets {
			checkTarget(from, to)
		}
	}
	if len(b.edges[Start]) == 0 && b.conditional[Start].router == nil {
		errs = append(errs, fmt.Errorf("no edge leaves %s", Start))
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	for _, name := range s.interruptBefore {
		if !known(name) {
			errs = append(errs, fmt.Errorf("interrupt before %q: %w", name, ErrUnknownNode))
		}
	}
	if s.recursionLimit <= 0 {
		errs = append(errs, fmt.Errorf("recursion limit must be positive, got %d", s.recursionLimit))
	}
	if len(errs) > 0 {
		return nil, errors.Join(ErrInvalidGraph, errors.Join(errs...))
	}

	g := &Graph[S]{
		nodes:       make(map[string]NodeFunc[S], len(b.nodes)),
		edges:       make(map[string][]string, len(b.edges)),
		conditional: make(map[string]conditionalEdge[S], len(b.conditional)),
		settings:    s,
	}
	for name, fn := range b.nodes {
		g.nodes[name] = fn
	}
	for from, targets := range b.edges {
		g.edges[from] = slices.Clone(targets)
	}
	for from, cond := range b.conditional {
		g.conditional[from] = cond
	}
	return g, nil
}
