// Package schema resolves message type names to binary decoders.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// Decoder turns one binary message body into a structured node.
type Decoder func(body []byte) (model.Node, error)

// Registry looks decoders up by fully qualified message type name. A
// missing name is a normal result, not an error.
type Registry interface {
	Lookup(fullName string) (Decoder, bool)
}

// Table is an explicit name to decoder mapping. It is safe for concurrent
// use.
type Table struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{decoders: make(map[string]Decoder)}
}

// Register adds a decoder. Registering a name twice is an error.
func (t *Table) Register(fullName string, d Decoder) error {
	if fullName == "" {
		return fmt.Errorf("schema: empty message type name")
	}
	if d == nil {
		return fmt.Errorf("schema: nil decoder for %q", fullName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.decoders[fullName]; exists {
		return fmt.Errorf("schema: message type %q is already registered", fullName)
	}
	t.decoders[fullName] = d
	return nil
}

// Lookup implements Registry.
func (t *Table) Lookup(fullName string) (Decoder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.decoders[fullName]
	return d, ok
}

// Names returns the registered type names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.decoders))
	for n := range t.decoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.decoders)
}

// Resolver qualifies bare type names with a default namespace before
// looking them up.
type Resolver struct {
	Registry  Registry
	Namespace string
}

// FullName returns name qualified with the namespace when it has no
// package part.
func (r Resolver) FullName(name string) string {
	if strings.Contains(name, ".") || r.Namespace == "" {
		return name
	}
	return r.Namespace + "." + name
}

// Resolve returns the decoder for name and the qualified name it was
// looked up under.
func (r Resolver) Resolve(name string) (Decoder, string, bool) {
	full := r.FullName(name)
	if r.Registry == nil {
		return nil, full, false
	}
	d, ok := r.Registry.Lookup(full)
	return d, full, ok
}

// DisplayName strips the default namespace from a qualified name.
func (r Resolver) DisplayName(fullName string) string {
	if r.Namespace == "" {
		return fullName
	}
	return strings.TrimPrefix(fullName, r.Namespace+".")
}

// MissingTypes remembers which unresolved names were already reported.
// The zero value is ready to use; it is not safe for concurrent use.
type MissingTypes struct {
	seen map[string]struct{}
}

// Report records name and returns true the first time it is seen.
func (m *MissingTypes) Report(name string) bool {
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if _, ok := m.seen[name]; ok {
		return false
	}
	m.seen[name] = struct{}{}
	return true
}

// Names returns every reported name, sorted.
func (m *MissingTypes) Names() []string {
	names := make([]string, 0, len(m.seen))
	for n := range m.seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
