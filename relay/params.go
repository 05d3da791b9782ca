package relay

import (
	"golang.org/x/exp/maps"

	"go.sour.is/gqlrelay/gql"
)

// Params are the variables of a paginated query with the cursor kept apart.
type Params struct {
	Vars  map[string]any
	After *string
}

func NewParams(vars map[string]any) Params {
	return Params{Vars: maps.Clone(vars)}
}

// WithCursor returns a copy of p positioned after the given cursor.
func (p Params) WithCursor(after *string) Params {
	return Params{Vars: p.Vars, After: after}
}

// Variables flattens p into the variable map sent with a query. The cursor
// is always present and null when p has none.
func (p Params) Variables() map[string]any {
	vars := make(map[string]any, len(p.Vars)+1)
	maps.Copy(vars, p.Vars)

	vars[gql.AfterParam] = nil
	if p.After != nil {
		vars[gql.AfterParam] = *p.After
	}
	return vars
}
