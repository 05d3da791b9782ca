package relay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"go.sour.is/gqlrelay/lg"
)

// Shared serializes access to a traversal for consumers on several goroutines.
type Shared[T any] struct {
	state chan *Connection[T]
	key   sharedKey
}

type sharedKey struct{ name string }

func Share[T any](c *Connection[T]) *Shared[T] {
	s := &Shared[T]{
		state: make(chan *Connection[T], 1),
		key:   sharedKey{fmt.Sprintf("%p", c)},
	}
	s.state <- c
	return s
}

// Use calls fn while holding the traversal. Calling Use again from inside
// fn returns ErrNested.
func (s *Shared[T]) Use(ctx context.Context, fn func(context.Context, *Connection[T]) error) error {
	if s == nil {
		return fmt.Errorf("shared connection not initialized")
	}
	if ctx.Value(s.key) != nil {
		return errorf(ErrNested, "%s", s.key.name)
	}
	ctx = context.WithValue(ctx, s.key, s.key)

	ctx, span := lg.Span(ctx)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case c := <-s.state:
		defer func() { s.state <- c }()
		span.SetAttributes(attribute.String("traversal", c.ID().String()))
		return fn(ctx, c)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Shared[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	err = s.Use(ctx, func(ctx context.Context, c *Connection[T]) error {
		var err error
		item, ok, err = c.Next(ctx)
		return err
	})
	return item, ok, err
}

// Collect drains what is left while holding the traversal.
func (s *Shared[T]) Collect(ctx context.Context) (items []T, err error) {
	err = s.Use(ctx, func(ctx context.Context, c *Connection[T]) error {
		var err error
		items, err = c.Collect(ctx)
		return err
	})
	return items, err
}
