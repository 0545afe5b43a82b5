package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind tags the shape held by a Node.
type Kind uint8

const (
	KindScalar Kind = iota
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Node is a decoded value: a scalar, an ordered list, or a map that keeps
// its keys in insertion order. The zero Node is a nil scalar.
//
// Scalars hold nil, bool, int64, uint64, float64 or string.
type Node struct {
	kind   Kind
	value  any
	items  []Node
	keys   []string
	fields map[string]Node
}

// Scalar wraps a plain value. Integer and float types are widened to
// int64, uint64 and float64.
func Scalar(v any) Node {
	switch x := v.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case uint:
		v = uint64(x)
	case uint8:
		v = uint64(x)
	case uint16:
		v = uint64(x)
	case uint32:
		v = uint64(x)
	case float32:
		v = float64(x)
	}
	return Node{kind: KindScalar, value: v}
}

// List builds a list node.
func List(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}
	return Node{kind: KindList, items: items}
}

// MapBuilder assembles a map node. Setting an existing key replaces its
// value but keeps the key's original position.
type MapBuilder struct {
	keys   []string
	fields map[string]Node
}

// NewMapBuilder returns a builder sized for n keys.
func NewMapBuilder(n int) *MapBuilder {
	return &MapBuilder{
		keys:   make([]string, 0, n),
		fields: make(map[string]Node, n),
	}
}

// Set adds or replaces key.
func (b *MapBuilder) Set(key string, v Node) *MapBuilder {
	if _, ok := b.fields[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.fields[key] = v
	return b
}

// Node returns the built map. The builder must not be used afterwards.
func (b *MapBuilder) Node() Node {
	return Node{kind: KindMap, keys: b.keys, fields: b.fields}
}

// EmptyMap returns a map node with no keys.
func EmptyMap() Node {
	return NewMapBuilder(0).Node()
}

func (n Node) Kind() Kind     { return n.kind }
func (n Node) IsScalar() bool { return n.kind == KindScalar }
func (n Node) IsList() bool   { return n.kind == KindList }
func (n Node) IsMap() bool    { return n.kind == KindMap }

// Value returns the scalar value, or nil for lists and maps.
func (n Node) Value() any {
	if n.kind != KindScalar {
		return nil
	}
	return n.value
}

// Items returns the elements of a list node.
func (n Node) Items() []Node {
	if n.kind != KindList {
		return nil
	}
	return n.items
}

// Keys returns the keys of a map node in insertion order.
func (n Node) Keys() []string {
	if n.kind != KindMap {
		return nil
	}
	return n.keys
}

// Get looks up key in a map node.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindMap {
		return Node{}, false
	}
	v, ok := n.fields[key]
	return v, ok
}

// Len returns the number of list items or map keys; scalars report 0.
func (n Node) Len() int {
	switch n.kind {
	case KindList:
		return len(n.items)
	case KindMap:
		return len(n.keys)
	}
	return 0
}

// IsScalarList reports whether n is a list whose elements are all scalars.
// An empty list qualifies.
func (n Node) IsScalarList() bool {
	if n.kind != KindList {
		return false
	}
	for _, it := range n.items {
		if it.kind != KindScalar {
			return false
		}
	}
	return true
}

// FromAny converts decoded Go values (maps, slices, scalars) into a Node.
// Keys of map[string]any are sorted since Go maps carry no order.
func FromAny(v any) Node {
	switch x := v.(type) {
	case Node:
		return x
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := NewMapBuilder(len(keys))
		for _, k := range keys {
			b.Set(k, FromAny(x[k]))
		}
		return b.Node()
	case map[any]any:
		keys := make([]string, 0, len(x))
		conv := make(map[string]any, len(x))
		for k, val := range x {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			conv[ks] = val
		}
		sort.Strings(keys)
		b := NewMapBuilder(len(keys))
		for _, k := range keys {
			b.Set(k, FromAny(conv[k]))
		}
		return b.Node()
	case []any:
		items := make([]Node, len(x))
		for i, it := range x {
			items[i] = FromAny(it)
		}
		return List(items...)
	case []byte:
		return Scalar(string(x))
	case json.Number:
		return numberNode(x)
	default:
		return Scalar(v)
	}
}

// ParseJSON decodes a JSON document into a Node, keeping object key order.
func ParseJSON(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeJSONValue(dec)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, errors.New("model: trailing data after JSON value")
	}
	return n, nil
}

func decodeJSONValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			b := NewMapBuilder(4)
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Node{}, fmt.Errorf("model: unexpected object key %v", kt)
				}
				v, err := decodeJSONValue(dec)
				if err != nil {
					return Node{}, err
				}
				b.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return b.Node(), nil
		case '[':
			items := []Node{}
			for dec.More() {
				v, err := decodeJSONValue(dec)
				if err != nil {
					return Node{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return List(items...), nil
		}
		return Node{}, fmt.Errorf("model: unexpected delimiter %v", t)
	case json.Number:
		return numberNode(t), nil
	default:
		return Scalar(t), nil
	}
}

func numberNode(num json.Number) Node {
	if i, err := num.Int64(); err == nil {
		return Scalar(i)
	}
	if f, err := num.Float64(); err == nil {
		return Scalar(f)
	}
	return Scalar(num.String())
}

// MarshalJSON encodes the node with map keys in insertion order.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n Node) writeJSON(buf *bytes.Buffer) error {
	switch n.kind {
	case KindList:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := n.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		if f, ok := n.value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			// JSON has no literal for these; use the protobuf JSON spellings.
			buf.WriteString(strconv.Quote(nonFiniteString(f)))
			return nil
		}
		return writeJSONScalar(buf, n.value)
	}
}

// writeJSONScalar encodes v without HTML escaping.
func writeJSONScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates the value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// MarshalYAML renders the node as an ordered YAML tree.
func (n Node) MarshalYAML() (any, error) {
	return n.yamlNode()
}

func (n Node) yamlNode() (*yaml.Node, error) {
	switch n.kind {
	case KindList:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range n.items {
			c, err := it.yamlNode()
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, c)
		}
		return out, nil
	case KindMap:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.keys {
			v, err := n.fields[k].yamlNode()
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, v)
		}
		return out, nil
	default:
		out := &yaml.Node{}
		if err := out.Encode(n.value); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func nonFiniteString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	default:
		return "-Infinity"
	}
}
