// Package client runs GraphQL queries over HTTP for relay traversals.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/oklog/ulid/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/lg"
	"go.sour.is/gqlrelay/relay"
)

type secret interface {
	Secret() string
}

type Client struct {
	endpoint string
	http     *http.Client
	token    secret
	path     []string
	headers  http.Header
	queries  *lru.LRU
}

var _ relay.Executor = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.http = cl }
}

// WithToken sends the secret as a bearer token.
func WithToken(token secret) Option {
	return func(c *Client) { c.token = token }
}

// WithPath selects the object under data that holds the connection, for
// queries like { viewer { repositories { ... } } }.
func WithPath(keys ...string) Option {
	return func(c *Client) { c.path = keys }
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Add(key, value) }
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		headers:  make(http.Header),
		queries:  lru.New(100),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors"`
}

// StatusError is returned for non 2xx responses without GraphQL errors.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graphql: unexpected status %s", e.Status)
}

// Execute posts query with the variables of p and returns the connection
// envelope found at the configured path.
func (c *Client) Execute(ctx context.Context, query string, p relay.Params) (gql.Envelope, error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	doc, err := c.parse(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	body, err := json.Marshal(graphql.RawParams{
		Query:         query,
		OperationName: operationName(doc),
		Variables:     p.Variables(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-request-id", ulid.Make().String())
	if c.token != nil && c.token.Secret() != "" {
		req.Header.Set("authorization", "Bearer "+c.token.Secret())
	}

	span.SetAttributes(
		attribute.String("endpoint", c.endpoint),
		attribute.String("operation", operationName(doc)),
		attribute.String("request-id", req.Header.Get("x-request-id")),
	)

	res, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer res.Body.Close()
	span.AddEvent(res.Status)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		if res.StatusCode/100 != 2 {
			err = &StatusError{res.StatusCode, res.Status}
		}
		span.RecordError(err)
		return nil, err
	}
	if len(out.Errors) > 0 {
		span.RecordError(out.Errors)
		return nil, out.Errors
	}
	if res.StatusCode/100 != 2 {
		err = &StatusError{res.StatusCode, res.Status}
		span.RecordError(err)
		return nil, err
	}

	return descend(out.Data, c.path)
}

func (c *Client) parse(ctx context.Context, query string) (*ast.QueryDocument, error) {
	if doc, ok := c.queries.Get(ctx, query); ok {
		return doc.(*ast.QueryDocument), nil
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, err
	}
	if len(doc.Operations) == 0 {
		return nil, gqlerror.Errorf("query has no operation")
	}

	c.queries.Add(ctx, query, doc)
	return doc, nil
}

func operationName(doc *ast.QueryDocument) string {
	if len(doc.Operations) == 1 {
		return doc.Operations[0].Name
	}
	return ""
}

func descend(data map[string]any, path []string) (gql.Envelope, error) {
	for _, key := range path {
		next, ok := data[key].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: no object at %q", gql.ErrMalformed, key)
		}
		data = next
	}
	return gql.Envelope(data), nil
}
