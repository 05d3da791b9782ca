package lg

import (
	"context"
	"log"

	"go.uber.org/multierr"
)

// Init sets up tracing and metrics for the named application. The returned
// func flushes and stops both.
func Init(ctx context.Context, name string) (context.Context, func(context.Context) error) {
	ctx, span := Span(ctx)
	defer span.End()

	stop := [2]func() error{}
	ctx, stop[0] = initMetrics(ctx, name)
	ctx, stop[1] = initTracing(ctx, name)

	reverse(stop[:])

	return ctx, func(context.Context) error {
		log.Println("flushing telemetry...")
		errs := make([]error, len(stop))
		for i, fn := range stop {
			if fn != nil {
				errs[i] = fn()
			}
		}
		log.Println("all stopped.")
		return multierr.Combine(errs...)
	}
}

func reverse[T any](s []T) {
	first, last := 0, len(s)-1
	for first < last {
		s[first], s[last] = s[last], s[first]
		first++
		last--
	}
}

type contextKey struct {
	name string
}

func toContext[K comparable, V any](ctx context.Context, key K, value V) context.Context {
	return context.WithValue(ctx, key, value)
}
func fromContext[K comparable, V any](ctx context.Context, key K) V {
	var empty V
	if v, ok := ctx.Value(key).(V); ok {
		return v
	}
	return empty
}
