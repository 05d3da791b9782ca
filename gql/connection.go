package gql

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/exp/maps"
)

// Reserved keys of a relay connection.
const (
	PageInfoKey        = "pageInfo"
	StartCursorKey     = "startCursor"
	EndCursorKey       = "endCursor"
	HasNextPageKey     = "hasNextPage"
	HasPreviousPageKey = "hasPreviousPage"
	EdgesKey           = "edges"
	NodeKey            = "node"

	// AfterParam is the query variable that carries the cursor of the next page.
	AfterParam = "after"
)

var ErrMalformed = errors.New("malformed connection")

type PageInfo struct {
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
}

// IsEmpty reports a terminal or never paginated page.
func (p PageInfo) IsEmpty() bool {
	return p.StartCursor == nil && p.EndCursor == nil && !p.HasNextPage && !p.HasPreviousPage
}

func (p PageInfo) String() string {
	return fmt.Sprintf("page(start=%s end=%s next=%t prev=%t)",
		cursorString(p.StartCursor), cursorString(p.EndCursor), p.HasNextPage, p.HasPreviousPage)
}

func cursorString(c *string) string {
	if c == nil {
		return "<nil>"
	}
	return *c
}

// Node is a decoded JSON object. Edges are nodes too, usually {node: {...}}.
type Node map[string]any

// Without returns a copy of n without field, along with the removed value.
// n itself is left untouched.
func (n Node) Without(field string) (Node, any, bool) {
	v, ok := n[field]
	if !ok {
		return n, nil, false
	}
	rest := maps.Clone(n)
	delete(rest, field)
	return rest, v, true
}

// Source is where a chunk of items comes from.
type Source interface {
	isSource()
}

// Envelope is a query result that holds one connection under its field name.
//
//	{"repositories": {"edges": [...], "pageInfo": {...}}}
type Envelope map[string]any

// Connection is the {edges, pageInfo} object of a relay connection.
type Connection map[string]any

// List is a flat list of items returned by a resolver.
type List []Node

func (Envelope) isSource()   {}
func (Connection) isSource() {}
func (List) isSource()       {}

// Connection returns the value of the single data key of the envelope.
func (e Envelope) Connection() (Connection, error) {
	keys := maps.Keys(e)
	sort.Strings(keys)

	var dataKeys []string
	for _, k := range keys {
		if k != PageInfoKey {
			dataKeys = append(dataKeys, k)
		}
	}
	if len(dataKeys) != 1 {
		return nil, fmt.Errorf("%w: want one data key, got %q", ErrMalformed, dataKeys)
	}

	return AsConnection(e[dataKeys[0]])
}

// AsConnection converts a decoded JSON value into a Connection. A null value
// is an empty connection.
func AsConnection(v any) (Connection, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case Connection:
		return c, nil
	case map[string]any:
		return Connection(c), nil
	case Node:
		return Connection(c), nil
	default:
		return nil, fmt.Errorf("%w: connection is %T", ErrMalformed, v)
	}
}

func (c Connection) PageInfo() (PageInfo, error) {
	var info PageInfo
	if c == nil {
		return info, nil
	}

	raw, ok := c[PageInfoKey]
	if !ok {
		return info, fmt.Errorf("%w: missing %s", ErrMalformed, PageInfoKey)
	}
	if raw == nil {
		return info, fmt.Errorf("%w: null %s", ErrMalformed, PageInfoKey)
	}

	var wire pageInfo
	if err := decode(raw, &wire); err != nil {
		return info, fmt.Errorf("%w: %s: %w", ErrMalformed, PageInfoKey, err)
	}
	switch {
	case wire.HasNextPage == nil:
		return info, fmt.Errorf("%w: null %s", ErrMalformed, HasNextPageKey)
	case wire.HasPreviousPage == nil:
		return info, fmt.Errorf("%w: null %s", ErrMalformed, HasPreviousPageKey)
	}

	info.StartCursor = wire.StartCursor
	info.EndCursor = wire.EndCursor
	info.HasNextPage = *wire.HasNextPage
	info.HasPreviousPage = *wire.HasPreviousPage
	return info, nil
}

// pageInfo is PageInfo as sent. Null flags are kept apart from false.
type pageInfo struct {
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
	HasNextPage     *bool   `json:"hasNextPage"`
	HasPreviousPage *bool   `json:"hasPreviousPage"`
}

func (c Connection) Edges() ([]Node, error) {
	if c == nil {
		return []Node{}, nil
	}

	raw, ok := c[EdgesKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, EdgesKey)
	}
	edges := []Node{}
	if err := decode(raw, &edges); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, EdgesKey, err)
	}
	return edges, nil
}

// NewPageInfo extracts the page info of src. Empty envelopes and lists carry
// no pagination and give the empty PageInfo.
func NewPageInfo(src Source) (PageInfo, error) {
	switch src := src.(type) {
	case Envelope:
		if len(src) == 0 {
			return PageInfo{}, nil
		}
		c, err := src.Connection()
		if err != nil {
			return PageInfo{}, err
		}
		return c.PageInfo()
	case Connection:
		return src.PageInfo()
	default:
		return PageInfo{}, nil
	}
}

// NewChunk extracts the items of src in page order.
func NewChunk(src Source) ([]Node, error) {
	switch src := src.(type) {
	case Envelope:
		if len(src) == 0 {
			return []Node{}, nil
		}
		c, err := src.Connection()
		if err != nil {
			return nil, err
		}
		return c.Edges()
	case Connection:
		return src.Edges()
	case List:
		if src == nil {
			return []Node{}, nil
		}
		return src, nil
	default:
		return []Node{}, nil
	}
}

// decode is strict about missing keys. A null value leaves its target unset,
// so callers check for nil themselves.
func decode(in, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		ErrorUnset: true,
		Result:     out,
	})
	if err != nil {
		return err
	}
	return d.Decode(in)
}
