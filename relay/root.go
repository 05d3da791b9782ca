package relay

import (
	"context"

	"go.sour.is/gqlrelay/gql"
)

// Executor runs query with the given parameters and returns its result.
type Executor interface {
	Execute(ctx context.Context, query string, p Params) (gql.Envelope, error)
}

type ExecutorFunc func(ctx context.Context, query string, p Params) (gql.Envelope, error)

func (fn ExecutorFunc) Execute(ctx context.Context, query string, p Params) (gql.Envelope, error) {
	return fn(ctx, query, p)
}

type rootFetcher[T any] struct {
	query    string
	params   Params
	exec     Executor
	producer Producer[T]
}

func (rootFetcher[T]) kind() string { return "root" }

func (f rootFetcher[T]) fetch(ctx context.Context, info gql.PageInfo) (chunk[T], gql.PageInfo, error) {
	env, err := f.exec.Execute(ctx, f.query, f.params.WithCursor(info.EndCursor))
	if err != nil {
		return nil, gql.PageInfo{}, fetchError{err}
	}
	return parseChunk(env, f.producer)
}

// NewRoot starts a traversal from the result env of query. Further pages
// are fetched by running query again through exec with the cursor set to
// the end of the current page.
//
// A nil producer yields raw edges and is only allowed for T gql.Node.
func NewRoot[T any](env gql.Envelope, query string, params Params, exec Executor, producer Producer[T], opts ...Option) (*Connection[T], error) {
	producer, err := producerOrRaw(producer)
	if err != nil {
		return nil, err
	}

	c, info, err := parseChunk(env, producer)
	if err != nil {
		return nil, err
	}

	f := rootFetcher[T]{
		query:    query,
		params:   params,
		exec:     exec,
		producer: producer,
	}
	return newConnection[T](f, c, info, opts), nil
}

// Query runs query once through exec and starts a traversal from its result.
func Query[T any](ctx context.Context, query string, params Params, exec Executor, producer Producer[T], opts ...Option) (*Connection[T], error) {
	env, err := exec.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return NewRoot(env, query, params, exec, producer, opts...)
}
