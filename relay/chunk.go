package relay

import (
	"context"

	"go.sour.is/gqlrelay/gql"
)

// chunk holds the items of one page. Items are produced on read.
type chunk[T any] interface {
	Len() int
	at(ctx context.Context, i int) (T, error)
}

// nodeChunk holds raw edges that still need their producer.
type nodeChunk[T any] struct {
	nodes    []gql.Node
	producer Producer[T]
}

func (c nodeChunk[T]) Len() int { return len(c.nodes) }
func (c nodeChunk[T]) at(ctx context.Context, i int) (T, error) {
	return c.producer.produce(ctx, c.nodes[i])
}

// readyChunk holds items already in their final form.
type readyChunk[T any] []T

func (c readyChunk[T]) Len() int { return len(c) }
func (c readyChunk[T]) at(_ context.Context, i int) (T, error) {
	return c[i], nil
}

func parseChunk[T any](src gql.Source, producer Producer[T]) (chunk[T], gql.PageInfo, error) {
	info, err := gql.NewPageInfo(src)
	if err != nil {
		return nil, gql.PageInfo{}, err
	}
	nodes, err := gql.NewChunk(src)
	if err != nil {
		return nil, gql.PageInfo{}, err
	}
	return nodeChunk[T]{nodes, producer}, info, nil
}
