// Package docstore defines the document-store abstraction the Istri identity
// core is built on.
//
// The [Store] interface is deliberately narrow: it captures exactly the four
// capabilities the identity allocation and migration subsystem depends on and
// nothing more:
//
//   - get/put/merge/delete of a single document addressed by collection + key
//   - an atomic read-modify-write on a single document ([Store.Update]), which
//     serializes concurrent mutations of the shared counter document
//   - an all-or-nothing batch of document mutations ([Store.ApplyBatch]), used
//     for mapping pairs and the migration fan-out
//   - collection scans, optionally filtered by field equality
//
// Three implementations exist:
//
//   - [github.com/Gokkul-M/istri-sub000/pkg/docstore/memory]: in-process store
//     used by tests and the memory backend
//   - [github.com/Gokkul-M/istri-sub000/pkg/docstore/surreal]: SurrealDB via
//     the official client with the surrealcbor codec
//   - [github.com/Gokkul-M/istri-sub000/pkg/docstore/postgres]: a jsonb
//     documents table through GORM, with versioned compare-and-swap updates
//
// Documents are plain map[string]any values; collections are path strings and
// subcollections are nested paths such as "users/CUST-0001/addresses".
// Implementations must treat documents as values: a caller mutating a
// returned document must not affect stored state.
package docstore

import (
	"context"
	"errors"
)

// Doc is a schemaless document.
type Doc = map[string]any

// Entry pairs a document with its key, as returned by scans.
type Entry struct {
	Key string
	Doc Doc
}

// ErrConflict is returned by Update when the optimistic read-modify-write
// could not commit within the implementation's retry budget.
var ErrConflict = errors.New("docstore: update conflict")

// Op is the kind of a batched mutation.
type Op int

const (
	// OpPut replaces the document at Collection/Key with Doc.
	OpPut Op = iota
	// OpMerge shallow-merges Doc into the document at Collection/Key,
	// creating it if absent.
	OpMerge
	// OpDelete removes the document at Collection/Key.
	OpDelete
)

// Mutation is one element of an atomic batch.
type Mutation struct {
	Op         Op
	Collection string
	Key        string
	Doc        Doc
}

// Put builds a put mutation.
func Put(collection, key string, doc Doc) Mutation {
	return Mutation{Op: OpPut, Collection: collection, Key: key, Doc: doc}
}

// Merge builds a merge mutation.
func Merge(collection, key string, doc Doc) Mutation {
	return Mutation{Op: OpMerge, Collection: collection, Key: key, Doc: doc}
}

// Delete builds a delete mutation.
func Delete(collection, key string) Mutation {
	return Mutation{Op: OpDelete, Collection: collection, Key: key}
}

// UpdateFunc transforms a document inside an atomic read-modify-write. It
// receives nil when the document does not exist and returns the full
// replacement document. Returning an error aborts the update and propagates
// the error unchanged.
type UpdateFunc func(doc Doc) (Doc, error)

// Store is the document-store contract. Get returns (nil, nil) when the
// document does not exist; absence is never an error. List and ListWhere
// return entries in stable key order and an empty slice (never nil semantics
// callers need to care about) when the collection is empty.
type Store interface {
	Get(ctx context.Context, collection, key string) (Doc, error)
	Put(ctx context.Context, collection, key string, doc Doc) error
	Merge(ctx context.Context, collection, key string, doc Doc) error
	Delete(ctx context.Context, collection, key string) error

	List(ctx context.Context, collection string) ([]Entry, error)
	ListWhere(ctx context.Context, collection, field string, value any) ([]Entry, error)

	// Update runs fn inside an atomic read-modify-write of one document.
	// No two concurrent updates of the same document may observe the same
	// prior state; implementations without native single-document
	// transactions retry on conflict and return ErrConflict once the retry
	// budget is exhausted.
	Update(ctx context.Context, collection, key string, fn UpdateFunc) error

	// ApplyBatch applies all mutations atomically: either every mutation
	// commits or none do.
	ApplyBatch(ctx context.Context, muts []Mutation) error

	Close() error
}
