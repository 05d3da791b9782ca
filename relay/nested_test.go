package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/relay"
)

const commentsEnd = "Y29tbWVudHM6MQ=="

func post(next bool) gql.Node {
	return gql.Node{
		"id":    "UG9zdDox",
		"title": "hello",
		"comments": map[string]any{
			"edges": edges(1, 2),
			"pageInfo": map[string]any{
				"startCursor":     "Y29tbWVudHM6MA==",
				"endCursor":       commentsEnd,
				"hasNextPage":     next,
				"hasPreviousPage": false,
			},
		},
	}
}

type resolver struct {
	calls []relay.Params
	nodes []gql.Node
	err   error
}

func (r *resolver) Resolve(_ context.Context, p relay.Params) ([]gql.Node, error) {
	r.calls = append(r.calls, p)
	return r.nodes, r.err
}

func TestGetAllChildren(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	res := &resolver{nodes: []gql.Node{
		{"node": map[string]any{"value": 3}},
		{"node": map[string]any{"value": 4}},
	}}
	node := post(true)
	producer := relay.Immediate[Data](func(n gql.Node) Data { return Data{value(n)} })
	params := relay.NewParams(map[string]any{"id": "UG9zdDox"})

	children, rest, err := relay.GetAllChildren(ctx, node, "comments", params, relay.RawResolver[Data](res.Resolve), producer)
	is.NoErr(err)
	is.Equal(children, []Data{{1}, {2}, {3}, {4}})

	is.Equal(len(res.calls), 1)
	is.Equal(res.calls[0].Variables(), map[string]any{"id": "UG9zdDox", "after": commentsEnd})

	_, ok := rest["comments"]
	is.True(!ok)
	is.Equal(rest["title"], "hello")

	_, ok = node["comments"]
	is.True(ok)
}

func TestGetAllChildrenSinglePage(t *testing.T) {
	is := is.New(t)

	res := &resolver{}
	children, rest, err := relay.GetAllChildren(context.Background(), post(false), "comments", relay.Params{},
		relay.RawResolver[gql.Node](res.Resolve), relay.Raw())
	is.NoErr(err)
	is.Equal(len(children), 2)
	is.Equal(len(res.calls), 0)
	is.Equal(len(rest), 2)
}

func TestGetAllChildrenMissingField(t *testing.T) {
	is := is.New(t)

	res := &resolver{}
	node := gql.Node{"id": "UG9zdDox", "title": "hello"}

	children, rest, err := relay.GetAllChildren(context.Background(), node, "comments", relay.Params{},
		relay.RawResolver[gql.Node](res.Resolve), relay.Raw())
	is.NoErr(err)
	is.True(children != nil)
	is.Equal(len(children), 0)
	is.Equal(rest, node)
	is.Equal(len(res.calls), 0)
}

func TestGetAllChildrenNull(t *testing.T) {
	is := is.New(t)

	children, rest, err := relay.GetAllChildren(context.Background(), gql.Node{"id": "1", "comments": nil}, "comments", relay.Params{},
		relay.RawResolver[gql.Node]((&resolver{}).Resolve), relay.Raw())
	is.NoErr(err)
	is.Equal(len(children), 0)
	is.Equal(rest, gql.Node{"id": "1"})
}

func TestNestedSingleRefetch(t *testing.T) {
	is := is.New(t)

	// A resolver result that looks paginated is still taken as the final batch.
	res := &resolver{nodes: []gql.Node{{"node": map[string]any{"value": 3}}, {"pageInfo": map[string]any{"hasNextPage": true}}}}
	conn, err := gql.AsConnection(post(true)["comments"])
	is.NoErr(err)

	c, err := relay.NewNested(conn, relay.Params{}, relay.RawResolver[gql.Node](res.Resolve), relay.Raw())
	is.NoErr(err)

	nodes, err := c.Collect(context.Background())
	is.NoErr(err)
	is.Equal(len(nodes), 4)
	is.Equal(len(res.calls), 1)
	is.True(c.PageInfo().IsEmpty())
}

func TestCompleteResolver(t *testing.T) {
	is := is.New(t)

	var produced int
	producer := relay.Immediate[Data](func(n gql.Node) Data {
		produced++
		return Data{value(n)}
	})

	var calls []relay.Params
	complete := relay.CompleteResolver[Data](func(_ context.Context, p relay.Params) ([]Data, error) {
		calls = append(calls, p)
		return []Data{{30}, {40}}, nil
	})

	children, _, err := relay.GetAllChildren(context.Background(), post(true), "comments", relay.Params{}, complete, producer)
	is.NoErr(err)
	is.Equal(children, []Data{{1}, {2}, {30}, {40}})
	is.Equal(produced, 2)
	is.Equal(len(calls), 1)
	is.Equal(*calls[0].After, commentsEnd)
}

func TestNestedFailure(t *testing.T) {
	is := is.New(t)

	res := &resolver{err: errors.New("resolver down")}
	children, rest, err := relay.GetAllChildren(context.Background(), post(true), "comments", relay.Params{},
		relay.RawResolver[gql.Node](res.Resolve), relay.Raw(), quiet())
	is.NoErr(err)
	is.Equal(len(children), 2)
	is.Equal(len(res.calls), 1)
	is.Equal(len(rest), 2)
}

func TestNestedMalformed(t *testing.T) {
	is := is.New(t)

	node := gql.Node{"comments": map[string]any{"edges": edges(1)}}
	_, rest, err := relay.GetAllChildren(context.Background(), node, "comments", relay.Params{},
		relay.RawResolver[gql.Node]((&resolver{}).Resolve), relay.Raw())
	is.True(errors.Is(err, gql.ErrMalformed))
	is.Equal(len(rest), 1)

	_, _, err = relay.GetAllChildren(context.Background(), gql.Node{"comments": "nope"}, "comments", relay.Params{},
		relay.RawResolver[gql.Node]((&resolver{}).Resolve), relay.Raw())
	is.True(errors.Is(err, gql.ErrMalformed))
}
