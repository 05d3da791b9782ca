package relay

import (
	"context"

	"go.sour.is/gqlrelay/gql"
)

// Producer turns a raw edge into an item. It is either Immediate or Suspending.
type Producer[T any] interface {
	produce(context.Context, gql.Node) (T, error)
}

// Immediate produces items without blocking and without failing.
type Immediate[T any] func(gql.Node) T

// Suspending produces items through a call that may block or fail.
type Suspending[T any] func(context.Context, gql.Node) (T, error)

func (fn Immediate[T]) produce(_ context.Context, n gql.Node) (T, error) {
	return fn(n), nil
}

func (fn Suspending[T]) produce(ctx context.Context, n gql.Node) (T, error) {
	return fn(ctx, n)
}

// Raw returns edges unchanged.
func Raw() Producer[gql.Node] {
	return Immediate[gql.Node](func(n gql.Node) gql.Node { return n })
}

// Node unwraps the node of an {node: {...}} edge.
func Node() Producer[gql.Node] {
	return Immediate[gql.Node](func(edge gql.Node) gql.Node {
		if n, ok := edge[gql.NodeKey].(map[string]any); ok {
			return n
		}
		if n, ok := edge[gql.NodeKey].(gql.Node); ok {
			return n
		}
		return edge
	})
}

func producerOrRaw[T any](p Producer[T]) (Producer[T], error) {
	if p != nil {
		return p, nil
	}
	if raw, ok := Raw().(Producer[T]); ok {
		return raw, nil
	}
	var zero T
	return nil, errorf(ErrNoProducer, "%T", zero)
}
