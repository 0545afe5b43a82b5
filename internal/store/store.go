// Package store holds decoded records grouped by application id, context
// id and message type, in arrival order at every level.
package store

import (
	"errors"
	"fmt"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// ErrSealed is returned by Append once the store has been sealed.
var ErrSealed = errors.New("store: sealed")

// Scope is the part of a store under one app id and context id: message
// type name to records.
type Scope struct {
	types   []string
	records map[string][]model.Node
}

func newScope() *Scope {
	return &Scope{records: make(map[string][]model.Node)}
}

// Types returns the message types in first-seen order.
func (s *Scope) Types() []string { return s.types }

// Records returns the records of messageType in arrival order.
func (s *Scope) Records(messageType string) []model.Node { return s.records[messageType] }

// Has reports whether messageType has been recorded.
func (s *Scope) Has(messageType string) bool {
	_, ok := s.records[messageType]
	return ok
}

// Len returns the number of records in the scope.
func (s *Scope) Len() int {
	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}

type app struct {
	contexts []string
	scopes   map[string]*Scope
}

// Store is written by a single decode worker and read-only after Seal.
// Reads of a sealed store are safe from any goroutine.
type Store struct {
	apps   []string
	byApp  map[string]*app
	n      int
	sealed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{byApp: make(map[string]*app)}
}

// Append adds rec under app, ctx and messageType, creating each level on
// first use.
func (s *Store) Append(appID, ctxID, messageType string, rec model.Node) error {
	if s.sealed {
		return ErrSealed
	}
	if !rec.IsMap() {
		return fmt.Errorf("store: record for %s is a %s, want a map", messageType, rec.Kind())
	}

	a, ok := s.byApp[appID]
	if !ok {
		a = &app{scopes: make(map[string]*Scope)}
		s.byApp[appID] = a
		s.apps = append(s.apps, appID)
	}
	sc, ok := a.scopes[ctxID]
	if !ok {
		sc = newScope()
		a.scopes[ctxID] = sc
		a.contexts = append(a.contexts, ctxID)
	}
	if _, ok := sc.records[messageType]; !ok {
		sc.types = append(sc.types, messageType)
	}
	sc.records[messageType] = append(sc.records[messageType], rec)
	s.n++
	return nil
}

// Seal makes the store read-only.
func (s *Store) Seal() { s.sealed = true }

// Sealed reports whether Seal has been called.
func (s *Store) Sealed() bool { return s.sealed }

// Apps returns the app ids in first-seen order.
func (s *Store) Apps() []string { return s.apps }

// Contexts returns the context ids recorded under appID.
func (s *Store) Contexts(appID string) []string {
	if a, ok := s.byApp[appID]; ok {
		return a.contexts
	}
	return nil
}

// Scope returns the records under one app id and context id.
func (s *Store) Scope(appID, ctxID string) (*Scope, bool) {
	a, ok := s.byApp[appID]
	if !ok {
		return nil, false
	}
	sc, ok := a.scopes[ctxID]
	return sc, ok
}

// Types returns the message types recorded under appID and ctxID.
func (s *Store) Types(appID, ctxID string) []string {
	if sc, ok := s.Scope(appID, ctxID); ok {
		return sc.Types()
	}
	return nil
}

// Records returns the records of one message type.
func (s *Store) Records(appID, ctxID, messageType string) []model.Node {
	if sc, ok := s.Scope(appID, ctxID); ok {
		return sc.Records(messageType)
	}
	return nil
}

// Len returns the total number of records.
func (s *Store) Len() int { return s.n }

// Tree summarizes the store hierarchy with per-type record counts.
func (s *Store) Tree() []model.AppTree {
	out := make([]model.AppTree, 0, len(s.apps))
	for _, appID := range s.apps {
		a := s.byApp[appID]
		at := model.AppTree{AppID: appID, Contexts: make([]model.ContextTree, 0, len(a.contexts))}
		for _, ctxID := range a.contexts {
			sc := a.scopes[ctxID]
			ct := model.ContextTree{ContextID: ctxID, Types: make([]model.TypeCount, 0, len(sc.types))}
			for _, typ := range sc.types {
				ct.Types = append(ct.Types, model.TypeCount{MessageType: typ, Records: len(sc.records[typ])})
			}
			at.Contexts = append(at.Contexts, ct)
		}
		out = append(out, at)
	}
	return out
}

// Node returns the whole store as nested maps: app, context and message
// type keys, each type holding a list of records.
func (s *Store) Node() model.Node {
	root := model.NewMapBuilder(len(s.apps))
	for _, appID := range s.apps {
		a := s.byApp[appID]
		ab := model.NewMapBuilder(len(a.contexts))
		for _, ctxID := range a.contexts {
			sc := a.scopes[ctxID]
			cb := model.NewMapBuilder(len(sc.types))
			for _, typ := range sc.types {
				cb.Set(typ, model.List(sc.records[typ]...))
			}
			ab.Set(ctxID, cb.Node())
		}
		root.Set(appID, ab.Node())
	}
	return root.Node()
}

// Walk calls fn for every record in store order. Returning an error stops
// the walk.
func (s *Store) Walk(fn func(appID, ctxID, messageType string, seq int, rec model.Node) error) error {
	for _, appID := range s.apps {
		a := s.byApp[appID]
		for _, ctxID := range a.contexts {
			sc := a.scopes[ctxID]
			for _, typ := range sc.types {
				for i, rec := range sc.records[typ] {
					if err := fn(appID, ctxID, typ, i, rec); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
