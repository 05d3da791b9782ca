package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"go.sour.is/gqlrelay/client"
	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/relay"
)

const query = `query repos($first: Int, $after: String) {
	viewer {
		repositories(first: $first, after: $after) {
			pageInfo { startCursor endCursor hasNextPage hasPreviousPage }
			edges { node { name } }
		}
	}
}`

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	header        http.Header
}

type server struct {
	mu       sync.Mutex
	requests []request
	pages    map[string]string
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.header = r.Header.Clone()

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	after, _ := req.Variables["after"].(string)
	w.Header().Set("content-type", "application/json")
	w.Write([]byte(s.pages[after]))
}

const firstPage = `{"data": {"viewer": {"repositories": {
	"pageInfo": {"startCursor": "c0", "endCursor": "c1", "hasNextPage": true, "hasPreviousPage": false},
	"edges": [{"node": {"name": "pkg"}}, {"node": {"name": "relay"}}]
}}}}`

const secondPage = `{"data": {"viewer": {"repositories": {
	"pageInfo": {"startCursor": "c2", "endCursor": "c2", "hasNextPage": false, "hasPreviousPage": true},
	"edges": [{"node": {"name": "xt"}}]
}}}}`

func TestExecute(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	srv := &server{pages: map[string]string{"": firstPage, "c1": secondPage}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	token := secret("s3cr3t")
	cl := client.New(ts.URL, client.WithPath("viewer"), client.WithToken(token), client.WithHeader("x-app", "relaywalk"))

	c, err := relay.Query(ctx, query, relay.NewParams(map[string]any{"first": 2}), cl, relay.Node())
	is.NoErr(err)

	nodes, err := c.Collect(ctx)
	is.NoErr(err)

	var names []string
	for _, n := range nodes {
		names = append(names, n["name"].(string))
	}
	is.Equal(names, []string{"pkg", "relay", "xt"})

	is.Equal(len(srv.requests), 2)
	is.Equal(srv.requests[0].OperationName, "repos")
	is.Equal(srv.requests[0].Query, query)
	is.Equal(srv.requests[0].Variables, map[string]any{"first": float64(2), "after": nil})
	is.Equal(srv.requests[1].Variables, map[string]any{"first": float64(2), "after": "c1"})

	h := srv.requests[0].header
	is.Equal(h.Get("authorization"), "Bearer s3cr3t")
	is.Equal(h.Get("x-app"), "relaywalk")
	is.Equal(h.Get("content-type"), "application/json")
	is.True(h.Get("x-request-id") != "")
	is.True(h.Get("x-request-id") != srv.requests[1].header.Get("x-request-id"))
}

func TestGraphQLErrors(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"data": null, "errors": [{"message": "rate limited", "path": ["viewer"]}]}`))
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).Execute(context.Background(), query, relay.Params{})
	is.True(err != nil)

	var list gqlerror.List
	is.True(errors.As(err, &list))
	is.Equal(list[0].Message, "rate limited")
}

func TestStatus(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).Execute(context.Background(), query, relay.Params{})

	var status *client.StatusError
	is.True(errors.As(err, &status))
	is.Equal(status.StatusCode, http.StatusBadGateway)
}

func TestBadQuery(t *testing.T) {
	is := is.New(t)

	var called bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).Execute(context.Background(), `query { viewer {`, relay.Params{})
	is.True(err != nil)
	is.True(!called)

	_, err = client.New(ts.URL).Execute(context.Background(), `fragment f on Repo { name }`, relay.Params{})
	is.True(err != nil)
	is.True(!called)
}

func TestPath(t *testing.T) {
	is := is.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(firstPage))
	}))
	defer ts.Close()

	env, err := client.New(ts.URL, client.WithPath("viewer")).Execute(context.Background(), query, relay.Params{})
	is.NoErr(err)
	info, err := gql.NewPageInfo(env)
	is.NoErr(err)
	is.Equal(*info.EndCursor, "c1")

	_, err = client.New(ts.URL, client.WithPath("node")).Execute(context.Background(), query, relay.Params{})
	is.True(errors.Is(err, gql.ErrMalformed))
}

func TestFetchFailureEndsTraversal(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	var first struct {
		Data struct {
			Viewer gql.Envelope `json:"viewer"`
		} `json:"data"`
	}
	is.NoErr(json.Unmarshal([]byte(firstPage), &first))

	c, err := relay.NewRoot(first.Data.Viewer, query, relay.Params{}, client.New(ts.URL, client.WithPath("viewer")), relay.Node(), quiet())
	is.NoErr(err)

	nodes, err := c.Collect(ctx)
	is.NoErr(err)
	is.Equal(len(nodes), 2)
	is.Equal(calls, 1)
}

type secret string

func (s secret) Secret() string { return string(s) }

func quiet() relay.Option {
	return relay.WithLogger(log.New(io.Discard, "", 0))
}
