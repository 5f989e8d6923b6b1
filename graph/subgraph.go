package graph

import "context"

// Subgraph embeds g as a single node of a parent graph with state S.
// in projects the parent state onto the subgraph state; out turns the
// subgraph's final state into an update of the parent.
func Subgraph[S, T any](g *Graph[T], in func(S) T, out func(T) Update[S]) NodeFunc[S] {
	return func(ctx context.Context, state S) (Update[S], error) {
		result, err := g.Invoke(ctx, in(state))
		if err != nil {
			return nil, err
		}
		return out(result), nil
	}
}
