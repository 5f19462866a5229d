// Package surreal implements [github.com/Gokkul-M/istri-sub000/pkg/docstore.Store]
// on SurrealDB through the official Go client.
//
// The connection is configured manually with the surrealcbor codec rather
// than the default marshaler: SurrealDB speaks CBOR internally, and without
// the codec time values and record identifiers do not round-trip cleanly.
// The websocket transport is the gorilla-based connection, the most stable of
// the client's implementations.
//
// # Layout
//
// Each top-level collection maps to a SurrealDB table. Subcollection paths
// such as "users/CUST-0001/addresses" map to the table of their last segment
// ("addresses") with the parent path stored in a _parent field; record
// identifiers are prefixed with the parent path so keys stay unique across
// parents. Every stored document also carries its bare key in _key and an
// optimistic-concurrency counter in _version. All three bookkeeping fields
// are stripped before documents are returned.
//
// # Atomicity
//
// Update implements the atomic read-modify-write as a compare-and-swap loop
// against _version: read, transform, then conditionally write with
// "WHERE _version = $expected". A concurrent writer makes the conditional
// update match zero records, and the loop retries with the fresh state.
// ApplyBatch issues all mutations inside a single
// BEGIN TRANSACTION / COMMIT TRANSACTION query, which SurrealDB applies as a
// unit or not at all.
//
// All SurrealQL is parameterized; no caller value is ever interpolated into
// query text. Field names used by ListWhere are restricted to plain
// identifiers.
package surreal

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	smodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
)

const (
	fieldKey     = "_key"
	fieldParent  = "_parent"
	fieldVersion = "_version"

	casAttempts = 8
)

// Config holds the SurrealDB connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store is the SurrealDB-backed document store.
type Store struct {
	db *surrealdb.DB
}

// New connects to SurrealDB and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("surreal: parsing URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("surreal: connecting: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("surreal: authenticating: %w", err)
		}
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("surreal: selecting namespace/database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

// splitPath resolves a collection path into its table and parent prefix.
func splitPath(collection string) (table, parent string) {
	idx := strings.LastIndex(collection, "/")
	if idx < 0 {
		return collection, ""
	}
	return collection[idx+1:], collection[:idx]
}

func recordID(collection, key string) smodels.RecordID {
	table, parent := splitPath(collection)
	id := key
	if parent != "" {
		id = parent + "/" + key
	}
	return smodels.RecordID{Table: table, ID: id}
}

// storedDoc builds the persisted form of a document: caller fields plus the
// bookkeeping fields.
func storedDoc(collection, key string, doc docstore.Doc, version int64) docstore.Doc {
	_, parent := splitPath(collection)
	out := make(docstore.Doc, len(doc)+3)
	for k, v := range doc {
		out[k] = v
	}
	out[fieldKey] = key
	out[fieldParent] = parent
	out[fieldVersion] = version
	return out
}

// cleanDoc strips the bookkeeping fields and the record id from a row.
func cleanDoc(row docstore.Doc) docstore.Doc {
	out := make(docstore.Doc, len(row))
	for k, v := range row {
		switch k {
		case fieldKey, fieldParent, fieldVersion, "id":
			continue
		}
		out[k] = v
	}
	return out
}

func rowVersion(row docstore.Doc) int64 {
	switch v := row[fieldVersion].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// query runs one parameterized statement and returns the rows of its first
// result.
func (s *Store) query(ctx context.Context, sql string, params map[string]any) ([]docstore.Doc, error) {
	res, err := surrealdb.Query[[]docstore.Doc](ctx, s.db, sql, params)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[0].Result, nil
}

func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Doc, error) {
	rows, err := s.query(ctx, "SELECT * FROM $rid", map[string]any{
		"rid": recordID(collection, key),
	})
	if err != nil {
		return nil, fmt.Errorf("surreal: get %s/%s: %w", collection, key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return cleanDoc(rows[0]), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc docstore.Doc) error {
	// UPDATE on a concrete record id creates the record when absent, which
	// matches Put's replace-or-create contract.
	_, err := s.query(ctx, "UPDATE $rid CONTENT $doc RETURN NONE", map[string]any{
		"rid": recordID(collection, key),
		"doc": storedDoc(collection, key, doc, 1),
	})
	if err != nil {
		return fmt.Errorf("surreal: put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, key string, doc docstore.Doc) error {
	// MERGE on a missing record creates it, so carry the bookkeeping fields
	// too; _version is left alone for existing records by merging only when
	// absent-safe fields are needed. A merge is not a CAS participant.
	merged := make(docstore.Doc, len(doc)+2)
	for k, v := range doc {
		merged[k] = v
	}
	_, parent := splitPath(collection)
	merged[fieldKey] = key
	merged[fieldParent] = parent
	_, err := s.query(ctx, "UPDATE $rid MERGE $doc RETURN NONE", map[string]any{
		"rid": recordID(collection, key),
		"doc": merged,
	})
	if err != nil {
		return fmt.Errorf("surreal: merge %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.query(ctx, "DELETE $rid", map[string]any{
		"rid": recordID(collection, key),
	})
	if err != nil {
		return fmt.Errorf("surreal: delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Entry, error) {
	table, parent := splitPath(collection)
	rows, err := s.query(ctx,
		"SELECT * FROM type::table($tb) WHERE _parent = $parent",
		map[string]any{"tb": table, "parent": parent},
	)
	if err != nil {
		return nil, fmt.Errorf("surreal: list %s: %w", collection, err)
	}
	return entriesFromRows(rows), nil
}

// identifierOK guards field names that end up in query text. Only plain
// snake_case identifiers from this codebase are expected here.
func identifierOK(field string) bool {
	if field == "" {
		return false
	}
	for _, c := range field {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func (s *Store) ListWhere(ctx context.Context, collection, field string, value any) ([]docstore.Entry, error) {
	if !identifierOK(field) {
		return nil, fmt.Errorf("surreal: invalid filter field %q", field)
	}
	table, parent := splitPath(collection)
	sql := fmt.Sprintf("SELECT * FROM type::table($tb) WHERE _parent = $parent AND %s = $value", field)
	rows, err := s.query(ctx, sql, map[string]any{
		"tb": table, "parent": parent, "value": value,
	})
	if err != nil {
		return nil, fmt.Errorf("surreal: list %s where %s: %w", collection, field, err)
	}
	return entriesFromRows(rows), nil
}

func entriesFromRows(rows []docstore.Doc) []docstore.Entry {
	entries := make([]docstore.Entry, 0, len(rows))
	for _, row := range rows {
		key, _ := row[fieldKey].(string)
		entries = append(entries, docstore.Entry{Key: key, Doc: cleanDoc(row)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func (s *Store) Update(ctx context.Context, collection, key string, fn docstore.UpdateFunc) error {
	rid := recordID(collection, key)
	for attempt := 0; attempt < casAttempts; attempt++ {
		rows, err := s.query(ctx, "SELECT * FROM $rid", map[string]any{"rid": rid})
		if err != nil {
			return fmt.Errorf("surreal: update read %s/%s: %w", collection, key, err)
		}

		var current docstore.Doc
		var version int64
		if len(rows) > 0 {
			current = cleanDoc(rows[0])
			version = rowVersion(rows[0])
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			// First writer wins record creation; a loser's CREATE errors on
			// the duplicate id and falls through to the next attempt.
			_, err = s.query(ctx, "CREATE $rid CONTENT $doc RETURN NONE", map[string]any{
				"rid": rid,
				"doc": storedDoc(collection, key, next, 1),
			})
			if err == nil {
				return nil
			}
		} else {
			var updated []docstore.Doc
			updated, err = s.query(ctx,
				"UPDATE $rid CONTENT $doc WHERE _version = $expected RETURN AFTER",
				map[string]any{
					"rid":      rid,
					"doc":      storedDoc(collection, key, next, version+1),
					"expected": version,
				},
			)
			if err != nil {
				return fmt.Errorf("surreal: update write %s/%s: %w", collection, key, err)
			}
			if len(updated) > 0 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return fmt.Errorf("surreal: update %s/%s after %d attempts: %w", collection, key, casAttempts, docstore.ErrConflict)
}

func (s *Store) ApplyBatch(ctx context.Context, muts []docstore.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	var b strings.Builder
	params := make(map[string]any, len(muts)*2)
	b.WriteString("BEGIN TRANSACTION;\n")
	for i, m := range muts {
		ridName := fmt.Sprintf("rid%d", i)
		params[ridName] = recordID(m.Collection, m.Key)
		switch m.Op {
		case docstore.OpPut:
			docName := fmt.Sprintf("doc%d", i)
			params[docName] = storedDoc(m.Collection, m.Key, m.Doc, 1)
			fmt.Fprintf(&b, "UPDATE $%s CONTENT $%s RETURN NONE;\n", ridName, docName)
		case docstore.OpMerge:
			docName := fmt.Sprintf("doc%d", i)
			merged := make(docstore.Doc, len(m.Doc)+2)
			for k, v := range m.Doc {
				merged[k] = v
			}
			_, parent := splitPath(m.Collection)
			merged[fieldKey] = m.Key
			merged[fieldParent] = parent
			params[docName] = merged
			fmt.Fprintf(&b, "UPDATE $%s MERGE $%s RETURN NONE;\n", ridName, docName)
		case docstore.OpDelete:
			fmt.Fprintf(&b, "DELETE $%s;\n", ridName)
		}
	}
	b.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, s.db, b.String(), params); err != nil {
		return fmt.Errorf("surreal: batch of %d mutations: %w", len(muts), err)
	}
	return nil
}
