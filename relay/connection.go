// Package relay walks cursor paginated connections one item at a time,
// fetching the next page when the current one runs out.
//
// A Connection is not safe for concurrent use. Wrap it with Share when
// several goroutines consume the same traversal.
package relay

import (
	"context"
	"errors"
	"iter"
	"log"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/lg"
)

// fetcher asks for the page that follows info.
type fetcher[T any] interface {
	fetch(ctx context.Context, info gql.PageInfo) (chunk[T], gql.PageInfo, error)
	kind() string
}

type Option func(*options)

type options struct {
	log *log.Logger
}

// WithLogger sets where fetch failures are reported. Defaults to log.Default.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// Connection is a lazy sequence over every page of one connection.
type Connection[T any] struct {
	id      ulid.ULID
	fetcher fetcher[T]
	log     *log.Logger

	chunk chunk[T]
	info  gql.PageInfo
	pos   int
	done  bool

	consumed int
	pages    int
}

func newConnection[T any](f fetcher[T], c chunk[T], info gql.PageInfo, opts []Option) *Connection[T] {
	o := options{log: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Connection[T]{
		id:      ulid.Make(),
		fetcher: f,
		log:     o.log,
		chunk:   c,
		info:    info,
		pos:     -1,
		pages:   1,
	}
}

func (c *Connection[T]) ID() ulid.ULID { return c.id }

// PageInfo is the page info of the loaded page. It is empty once a fetch
// has failed, the same as after a last page without cursors.
func (c *Connection[T]) PageInfo() gql.PageInfo { return c.info }

// Consumed is the number of items produced so far across all pages.
func (c *Connection[T]) Consumed() int { return c.consumed }

// Pages is the number of pages loaded, counting the initial one.
func (c *Connection[T]) Pages() int { return c.pages }

// Next advances to the next item. It returns false once the connection is
// exhausted, and keeps returning false after that.
//
// A failing executor or resolver ends the sequence the same way the last
// page does; the failure is logged, not returned. Malformed results, a
// stalled connection and producer errors are returned.
func (c *Connection[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	for !c.done {
		c.pos++
		if c.pos < c.chunk.Len() {
			item, err = c.chunk.at(ctx, c.pos)
			if err != nil {
				return item, false, err
			}
			c.consumed++
			lg.Count(ctx, "relay_items_produced", 1, attribute.String("kind", c.fetcher.kind()))
			return item, true, nil
		}

		c.pos = -1
		if !c.info.HasNextPage {
			c.done = true
			break
		}

		if err = c.refetch(ctx); err != nil {
			return item, false, err
		}
	}

	return item, false, nil
}

func (c *Connection[T]) refetch(ctx context.Context) error {
	c.chunk = readyChunk[T](nil)
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := lg.NamedSpan(ctx, "relay."+c.fetcher.kind()+".fetch")
	defer span.End()

	after := c.info.EndCursor
	span.SetAttributes(
		attribute.String("traversal", c.id.String()),
		attribute.String("kind", c.fetcher.kind()),
		attribute.String("after", cursor(after)),
		attribute.Int("consumed", c.consumed),
	)

	next, info, err := c.fetcher.fetch(ctx, c.info)

	var failed fetchError
	switch {
	case errors.As(err, &failed):
		span.RecordError(err)
		c.log.Printf("relay: %s %s: fetch after %s: %v", c.fetcher.kind(), c.id, cursor(after), failed.err)
		lg.Count(ctx, "relay_fetch_errors", 1, attribute.String("kind", c.fetcher.kind()))
		c.info = gql.PageInfo{}
		c.done = true
		return nil

	case err != nil:
		span.RecordError(err)
		c.done = true
		return err

	case next.Len() == 0 && info.HasNextPage:
		c.done = true
		err = errorf(ErrStalled, "%s %s: empty page after %s", c.fetcher.kind(), c.id, cursor(after))
		span.RecordError(err)
		return err
	}

	c.chunk, c.info = next, info
	c.pages++
	lg.Count(ctx, "relay_pages_fetched", 1, attribute.String("kind", c.fetcher.kind()))

	return nil
}

// All ranges over the remaining items. Iteration stops after the first error.
func (c *Connection[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, ok, err := c.Next(ctx)
			if err != nil {
				yield(item, err)
				return
			}
			if !ok || !yield(item, nil) {
				return
			}
		}
	}
}

// Collect drains the connection in order.
func (c *Connection[T]) Collect(ctx context.Context) ([]T, error) {
	items := []T{}
	for item, err := range c.All(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Current produces every item of the loaded page without fetching or
// moving the traversal.
func (c *Connection[T]) Current(ctx context.Context) ([]T, error) {
	items := make([]T, 0, c.chunk.Len())
	for i := 0; i < c.chunk.Len(); i++ {
		item, err := c.chunk.at(ctx, i)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Index produces item i of the loaded page.
func (c *Connection[T]) Index(ctx context.Context, i int) (T, error) {
	if i < 0 || i >= c.chunk.Len() {
		var zero T
		return zero, errorf(ErrOutOfRange, "%d of %d", i, c.chunk.Len())
	}
	return c.chunk.at(ctx, i)
}

func cursor(c *string) string {
	if c == nil {
		return "<nil>"
	}
	return *c
}
