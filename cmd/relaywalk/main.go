package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"go.sour.is/gqlrelay/env"
	"go.sour.is/gqlrelay/lg"
)

var usage = `
Usage:
  relaywalk walk <query-file> [--endpoint=<url>] [--path=<key>...] [--var=<kv>...] [--db=<dsn>]
  relaywalk run <jobs-file> [--db=<dsn>]

Options:
  --endpoint=<url>  GraphQL endpoint, defaults to $RELAY_ENDPOINT.
  --path=<key>      Object under data that holds the connection.
  --var=<kv>        Query variable as name=value, value parsed as JSON when it can be.
  --db=<dsn>        Write nodes to this SQLite database instead of stdout.`

const defaultEndpoint = "http://localhost:8080/gql"

type args struct {
	Walk bool `docopt:"walk"`
	Run  bool `docopt:"run"`

	QueryFile string   `docopt:"<query-file>"`
	JobsFile  string   `docopt:"<jobs-file>"`
	Endpoint  string   `docopt:"--endpoint"`
	Path      []string `docopt:"--path"`
	Vars      []string `docopt:"--var"`
	DB        string   `docopt:"--db"`
}

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	args := args{}
	err = opts.Bind(&args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, shutdown := lg.Init(ctx, "relaywalk")

	stopMetrics := serveMetrics(ctx, env.Default("RELAY_METRICS_ADDR", ""))

	err = run(ctx, Console, args)

	stopMetrics()
	if serr := shutdown(context.Background()); serr != nil {
		log.Println(serr)
	}
	cancel()

	if err != nil {
		fmt.Fprintln(Console.Stderr, err)
		os.Exit(1)
	}
}

type console struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var Console = console{os.Stdin, os.Stdout, os.Stderr}

func (c console) Write(b []byte) (int, error) {
	return c.Stdout.Write(b)
}

func run(ctx context.Context, console console, a args) error {
	var cfg Config

	switch {
	case a.Walk:
		query, err := os.ReadFile(a.QueryFile)
		if err != nil {
			return err
		}
		vars, err := parseVars(a.Vars)
		if err != nil {
			return err
		}
		cfg = Config{
			Endpoint: a.Endpoint,
			Jobs: []Job{{
				Name:      strings.TrimSuffix(filepath.Base(a.QueryFile), filepath.Ext(a.QueryFile)),
				Query:     string(query),
				Path:      a.Path,
				Variables: vars,
			}},
		}

	case a.Run:
		var err error
		cfg, err = LoadConfig(a.JobsFile)
		if err != nil {
			return err
		}

	default:
		return errors.New("unknown command")
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = env.Default("RELAY_ENDPOINT", defaultEndpoint)
	}

	out, err := newEmitter(ctx, console, a.DB)
	if err != nil {
		return err
	}
	defer out.Close()

	w := &walker{
		endpoint: cfg.Endpoint,
		token:    env.Secret("RELAY_TOKEN", ""),
		out:      out,
		limit:    env.Int("RELAY_JOBS", 4),
	}
	return w.Run(ctx, cfg.Jobs...)
}

func parseVars(kvs []string) (map[string]any, error) {
	vars := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("bad variable %q, want name=value", kv)
		}

		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		vars[name] = v
	}
	return vars, nil
}

func serveMetrics(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	lg.NewHTTP(ctx).RegisterHTTP(mux)
	srv := &http.Server{Addr: addr, Handler: lg.Htrace(mux, "metrics")}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Println(err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
