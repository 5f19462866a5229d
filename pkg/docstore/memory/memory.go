// Package memory provides an in-process implementation of
// [github.com/Gokkul-M/istri-sub000/pkg/docstore.Store].
//
// It backs the "memory" application backend and the package tests, playing
// the same role the fake database server plays in the SurrealDB client's own
// test suite: real semantics (atomic updates, all-or-nothing batches, stable
// scan order) without a network dependency.
package memory

import (
	"context"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
)

// Store is a mutex-guarded document store. Documents are deep-copied on the
// way in and out, so callers can never alias stored state.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Doc
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Doc)}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

func cloneDoc(doc docstore.Doc) docstore.Doc {
	if doc == nil {
		return nil
	}
	return cloneValue(map[string]any(doc)).(map[string]any)
}

func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc docstore.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, key, doc)
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, key string, doc docstore.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(collection, key, doc)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.collections[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]docstore.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, docstore.Entry{Key: k, Doc: cloneDoc(coll[k])})
	}
	return entries, nil
}

func (s *Store) ListWhere(ctx context.Context, collection, field string, value any) ([]docstore.Entry, error) {
	entries, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.Doc[field] == value {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *Store) Update(ctx context.Context, collection, key string, fn docstore.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current docstore.Doc
	if doc, ok := s.collections[collection][key]; ok {
		current = cloneDoc(doc)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	s.put(collection, key, next)
	return nil
}

func (s *Store) ApplyBatch(ctx context.Context, muts []docstore.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The lock makes the batch atomic with respect to readers; mutations on
	// an in-memory map cannot fail halfway.
	for _, m := range muts {
		switch m.Op {
		case docstore.OpPut:
			s.put(m.Collection, m.Key, m.Doc)
		case docstore.OpMerge:
			s.merge(m.Collection, m.Key, m.Doc)
		case docstore.OpDelete:
			delete(s.collections[m.Collection], m.Key)
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// put assumes the write lock is held.
func (s *Store) put(collection, key string, doc docstore.Doc) {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Doc)
		s.collections[collection] = coll
	}
	coll[key] = cloneDoc(doc)
}

// merge assumes the write lock is held.
func (s *Store) merge(collection, key string, doc docstore.Doc) {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Doc)
		s.collections[collection] = coll
	}
	existing, ok := coll[key]
	if !ok {
		coll[key] = cloneDoc(doc)
		return
	}
	for k, v := range doc {
		existing[k] = cloneValue(v)
	}
}

// snapshotDecMode decodes nested CBOR maps as map[string]any so restored
// documents keep the Doc shape.
var snapshotDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// WriteSnapshot serializes the full store contents as CBOR. The memory
// backend uses it to persist state across restarts of a development server.
func (s *Store) WriteSnapshot(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cbor.NewEncoder(w).Encode(s.collections)
}

// ReadSnapshot replaces the store contents with a snapshot previously
// written by WriteSnapshot.
func (s *Store) ReadSnapshot(r io.Reader) error {
	var collections map[string]map[string]docstore.Doc
	if err := snapshotDecMode.NewDecoder(r).Decode(&collections); err != nil {
		return err
	}
	if collections == nil {
		collections = make(map[string]map[string]docstore.Doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = collections
	return nil
}
