package relay

import (
	"context"

	"go.sour.is/gqlrelay/gql"
)

// Resolver loads the rest of a nested connection in one call. It is either
// a RawResolver or a CompleteResolver.
type Resolver[T any] interface {
	resolve(ctx context.Context, p Params, producer Producer[T]) (chunk[T], error)
}

// RawResolver returns raw items that still go through the producer.
type RawResolver[T any] func(ctx context.Context, p Params) ([]gql.Node, error)

// CompleteResolver returns items in their final form. The producer is not
// applied to them.
type CompleteResolver[T any] func(ctx context.Context, p Params) ([]T, error)

func (fn RawResolver[T]) resolve(ctx context.Context, p Params, producer Producer[T]) (chunk[T], error) {
	nodes, err := fn(ctx, p)
	if err != nil {
		return nil, err
	}
	return nodeChunk[T]{nodes, producer}, nil
}

func (fn CompleteResolver[T]) resolve(ctx context.Context, p Params, _ Producer[T]) (chunk[T], error) {
	items, err := fn(ctx, p)
	if err != nil {
		return nil, err
	}
	return readyChunk[T](items), nil
}

type nestedFetcher[T any] struct {
	params   Params
	resolver Resolver[T]
	producer Producer[T]
}

func (nestedFetcher[T]) kind() string { return "nested" }

// fetch always reports the empty page info: the resolver returns everything
// that is left, so there is never a second call.
func (f nestedFetcher[T]) fetch(ctx context.Context, info gql.PageInfo) (chunk[T], gql.PageInfo, error) {
	c, err := f.resolver.resolve(ctx, f.params.WithCursor(info.EndCursor), f.producer)
	if err != nil {
		return nil, gql.PageInfo{}, fetchError{err}
	}
	return c, gql.PageInfo{}, nil
}

// NewNested starts a traversal over a connection embedded in a parent node.
// When the embedded page has more, resolver is called once with the end
// cursor to load the remainder.
func NewNested[T any](conn gql.Connection, params Params, resolver Resolver[T], producer Producer[T], opts ...Option) (*Connection[T], error) {
	producer, err := producerOrRaw(producer)
	if err != nil {
		return nil, err
	}

	c, info, err := parseChunk(conn, producer)
	if err != nil {
		return nil, err
	}

	f := nestedFetcher[T]{
		params:   params,
		resolver: resolver,
		producer: producer,
	}
	return newConnection[T](f, c, info, opts), nil
}

// GetAllChildren drains the sub-connection stored under field of node. It
// returns the children and a copy of node without field. A node without
// field gives no children and is returned as is.
func GetAllChildren[T any](ctx context.Context, node gql.Node, field string, params Params, resolver Resolver[T], producer Producer[T], opts ...Option) ([]T, gql.Node, error) {
	rest, raw, ok := node.Without(field)
	if !ok {
		return []T{}, node, nil
	}

	conn, err := gql.AsConnection(raw)
	if err != nil {
		return nil, node, err
	}

	c, err := NewNested(conn, params, resolver, producer, opts...)
	if err != nil {
		return nil, node, err
	}

	children, err := c.Collect(ctx)
	if err != nil {
		return children, node, err
	}
	return children, rest, nil
}
