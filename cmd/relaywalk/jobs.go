package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"go.sour.is/gqlrelay/client"
	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/lg"
	"go.sour.is/gqlrelay/relay"
	"go.sour.is/gqlrelay/sink"
)

// Config is the job file read by relaywalk run.
//
//	endpoint = "https://example.com/graphql"
//
//	[[job]]
//	name  = "repos"
//	query = "query($first: Int, $after: String) { viewer { repositories(first: $first, after: $after) { ... } } }"
//	path  = ["viewer"]
//	variables = { first = 50 }
//
//	  [[job.children]]
//	  field = "issues"
//	  query = "query($id: ID!, $after: String) { node(id: $id) { ... on Repository { issues(after: $after) { ... } } } }"
//	  path  = ["node"]
type Config struct {
	Endpoint string `toml:"endpoint"`
	Jobs     []Job  `toml:"job"`
}

type Job struct {
	Name      string         `toml:"name"`
	Query     string         `toml:"query"`
	Path      []string       `toml:"path"`
	Variables map[string]any `toml:"variables"`
	Children  []Child        `toml:"children"`
}

// Child expands a sub-connection of every node of its job.
type Child struct {
	Field     string         `toml:"field"`
	Query     string         `toml:"query"`
	Path      []string       `toml:"path"`
	ID        string         `toml:"id"`
	Variables map[string]any `toml:"variables"`
}

func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	for i, job := range cfg.Jobs {
		if job.Name == "" {
			return cfg, fmt.Errorf("job %d: missing name", i)
		}
		if job.Query == "" {
			return cfg, fmt.Errorf("job %s: missing query", job.Name)
		}
		for _, child := range job.Children {
			if child.Field == "" || child.Query == "" {
				return cfg, fmt.Errorf("job %s: child needs field and query", job.Name)
			}
		}
	}
	return cfg, nil
}

type secret interface {
	Secret() string
}

type walker struct {
	endpoint string
	token    secret
	out      emitter
	limit    int
}

func (w *walker) client(path []string) *client.Client {
	opts := []client.Option{client.WithPath(path...)}
	if w.token != nil {
		opts = append(opts, client.WithToken(w.token))
	}
	return client.New(w.endpoint, opts...)
}

// Run walks every job. Jobs are independent traversals and run concurrently,
// at most limit at a time when limit is positive.
func (w *walker) Run(ctx context.Context, jobs ...Job) error {
	g, ctx := errgroup.WithContext(ctx)
	if w.limit > 0 {
		g.SetLimit(w.limit)
	}
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error { return w.walk(ctx, job) })
	}
	return g.Wait()
}

func (w *walker) walk(ctx context.Context, job Job) error {
	ctx, span := lg.Span(ctx)
	defer span.End()
	span.SetAttributes(attribute.String("job", job.Name))

	c, err := relay.Query(ctx, job.Query, relay.NewParams(job.Variables), w.client(job.Path), relay.Node())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	seq := 0
	for node, err := range c.All(ctx) {
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("job %s: %w", job.Name, err)
		}

		for _, child := range job.Children {
			node, err = w.expand(ctx, child, node)
			if err != nil {
				return fmt.Errorf("job %s: %s: %w", job.Name, child.Field, err)
			}
		}

		if err := w.out.Emit(ctx, job.Name, c.ID().String(), seq, node); err != nil {
			return err
		}
		seq++
	}

	log.Printf("%s: %d nodes in %d pages (%s)", job.Name, c.Consumed(), c.Pages(), c.ID())
	return nil
}

// expand replaces the sub-connection under child.Field with all of its
// nodes. The remainder past the embedded page is loaded by walking the child
// query as its own traversal.
func (w *walker) expand(ctx context.Context, child Child, node gql.Node) (gql.Node, error) {
	if _, ok := node[child.Field]; !ok {
		return node, nil
	}

	idKey := child.ID
	if idKey == "" {
		idKey = "id"
	}
	id, ok := node[idKey]
	if !ok || id == nil {
		return node, fmt.Errorf("node has no %q to query children by", idKey)
	}
	vars := maps.Clone(child.Variables)
	if vars == nil {
		vars = make(map[string]any, 1)
	}
	vars[idKey] = id

	exec := w.client(child.Path)
	rest := relay.CompleteResolver[gql.Node](func(ctx context.Context, p relay.Params) ([]gql.Node, error) {
		c, err := relay.Query(ctx, child.Query, p, exec, relay.Node())
		if err != nil {
			return nil, err
		}
		return c.Collect(ctx)
	})

	children, node, err := relay.GetAllChildren(ctx, node, child.Field, relay.NewParams(vars), rest, relay.Node())
	if err != nil {
		return node, err
	}
	node[child.Field] = children
	return node, nil
}

type emitter interface {
	Emit(ctx context.Context, job, traversal string, seq int, node gql.Node) error
	Close() error
}

func newEmitter(ctx context.Context, console console, dsn string) (emitter, error) {
	if dsn == "" {
		return &jsonLines{enc: json.NewEncoder(console)}, nil
	}
	store, err := sink.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &sinkEmitter{store}, nil
}

type jsonLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (j *jsonLines) Emit(_ context.Context, job, _ string, seq int, node gql.Node) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(struct {
		Job  string   `json:"job"`
		Seq  int      `json:"seq"`
		Node gql.Node `json:"node"`
	}{job, seq, node})
}

func (j *jsonLines) Close() error { return nil }

type sinkEmitter struct {
	store *sink.Store
}

func (s *sinkEmitter) Emit(ctx context.Context, job, traversal string, seq int, node gql.Node) error {
	return s.store.Put(ctx, sink.Row{Job: job, Traversal: traversal, Seq: seq, Node: node})
}

func (s *sinkEmitter) Close() error { return s.store.Close() }
