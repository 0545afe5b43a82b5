// Package query walks nested decoded records along a field path.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tinytelemetry/dltscope/internal/model"
)

var (
	// ErrNoData means the path selects nothing in the scope.
	ErrNoData = errors.New("query: no data at this path")
	// ErrNoPlottableFields means the selected leaf has no scalar fields.
	ErrNoPlottableFields = errors.New("query: no plottable fields")
)

// PathSeparator joins path hops for display and in ParsePath input.
const PathSeparator = " > "

// Scope is the set of records under one app id and context id.
type Scope interface {
	Types() []string
	Records(messageType string) []model.Node
}

// Run resolves path against scope. path[0] names a message type; every
// further hop is a field key. Each result pairs the leaf map reached with
// the top-level record it came from.
//
// A hop that lands on a list continues into every map element of that
// list, so repeated sub-messages need no explicit index in the path.
func Run(scope Scope, path []string) ([]model.Pair, error) {
	if len(path) == 0 || path[0] == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNoData)
	}

	var pairs []model.Pair
	for _, r := range scope.Records(path[0]) {
		if r.IsMap() {
			pairs = append(pairs, model.Pair{Root: r, Leaf: r})
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoData, path[0])
	}

	for i, key := range path[1:] {
		var next []model.Pair
		for _, p := range pairs {
			next = step(next, p.Root, p.Leaf, key)
		}
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoData, strings.Join(path[:i+2], PathSeparator))
		}
		pairs = next
	}
	return pairs, nil
}

func step(out []model.Pair, root, cur model.Node, key string) []model.Pair {
	switch {
	case cur.IsMap():
		v, ok := cur.Get(key)
		if !ok {
			return out
		}
		switch {
		case v.IsMap():
			out = append(out, model.Pair{Root: root, Leaf: v})
		case v.IsList():
			for _, e := range v.Items() {
				if e.IsMap() {
					out = append(out, model.Pair{Root: root, Leaf: e})
				}
			}
		}
	case cur.IsList():
		for _, e := range cur.Items() {
			if e.IsMap() {
				out = step(out, root, e, key)
			}
		}
	}
	return out
}

// ParsePath splits a path string into hops. Hops may be separated by ">"
// or by dots. For dotted input the longest message type in scope that
// prefixes s is taken as the first hop, so qualified type names such as
// "pkg.Msg" stay whole.
func ParsePath(scope Scope, s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNoData)
	}

	if strings.Contains(s, ">") {
		parts := strings.Split(s, ">")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
			if parts[i] == "" {
				return nil, fmt.Errorf("query: empty hop in path %q", s)
			}
		}
		return parts, nil
	}

	types := append([]string(nil), scope.Types()...)
	sort.Slice(types, func(i, j int) bool { return len(types[i]) > len(types[j]) })
	for _, t := range types {
		if s == t {
			return []string{t}, nil
		}
		if strings.HasPrefix(s, t+".") {
			rest := strings.Split(strings.TrimPrefix(s, t+"."), ".")
			return append([]string{t}, rest...), nil
		}
	}
	return strings.Split(s, "."), nil
}

// Fields lists the fields of the first leaf that can be plotted: scalars
// and lists of scalars, excluding the timestamp and metadata fields.
func Fields(pairs []model.Pair) ([]string, error) {
	if len(pairs) == 0 {
		return nil, ErrNoData
	}
	leaf := pairs[0].Leaf

	var out []string
	for _, k := range leaf.Keys() {
		if k == model.TimestampField || strings.HasPrefix(k, model.MetadataPrefix) {
			continue
		}
		v, _ := leaf.Get(k)
		if plottable(v) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPlottableFields
	}
	return out, nil
}

func plottable(v model.Node) bool {
	switch {
	case v.IsScalar():
		return v.Value() != nil
	case v.IsList():
		for _, e := range v.Items() {
			if !e.IsScalar() || e.Value() == nil {
				return false
			}
		}
		return true
	}
	return false
}

// Paths enumerates every key path reachable in scope, joined with
// PathSeparator, in first-seen order. Map elements of lists contribute
// their keys at the list's own path.
func Paths(scope Scope) []string {
	seen := make(map[string]struct{})
	var out []string

	var walk func(path []string, n model.Node)
	walk = func(path []string, n model.Node) {
		switch {
		case n.IsMap():
			for _, k := range n.Keys() {
				p := append(path[:len(path):len(path)], k)
				label := strings.Join(p, PathSeparator)
				if _, ok := seen[label]; !ok {
					seen[label] = struct{}{}
					out = append(out, label)
				}
				v, _ := n.Get(k)
				walk(p, v)
			}
		case n.IsList():
			for _, e := range n.Items() {
				if e.IsMap() {
					walk(path, e)
				}
			}
		}
	}

	for _, t := range scope.Types() {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
		for _, r := range scope.Records(t) {
			walk([]string{t}, r)
		}
	}
	return out
}
