// Package postgres implements [github.com/Gokkul-M/istri-sub000/pkg/docstore.Store]
// on PostgreSQL through GORM.
//
// Documents live in a single documents table keyed by (collection, key) with
// the body in a jsonb column, so the schemaless contract survives the move to
// a relational backend. The atomic read-modify-write takes a row lock inside
// a transaction, and batches run inside one transaction, giving the same
// all-or-nothing guarantee the SurrealDB backend gets from its transaction
// query.
//
// A row lock only serializes writers once the row exists. When the document
// is absent the locked read matches nothing, so two concurrent first writers
// can both reach the insert; the loser's duplicate-key error re-enters the
// read-modify-write against the committed row, up to the same retry budget
// the SurrealDB backend uses for its compare-and-swap loop.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

const casAttempts = 8

// documentRow is the relational shape of one document.
type documentRow struct {
	Collection string         `gorm:"primaryKey;size:512"`
	Key        string         `gorm:"primaryKey;size:512"`
	Doc        models.JSONMap `gorm:"type:jsonb"`
	Version    int64          `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

// Store is the PostgreSQL-backed document store.
type Store struct {
	db *gorm.DB
}

// New connects to PostgreSQL and ensures the documents table exists.
func New(dsn string) (*Store, error) {
	// TranslateError turns driver unique violations into
	// gorm.ErrDuplicatedKey, which Update's retry loop relies on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("postgres: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Doc, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "collection = ? AND key = ?", collection, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get %s/%s: %w", collection, key, err)
	}
	return docstore.Doc(row.Doc), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc docstore.Doc) error {
	row := documentRow{
		Collection: collection,
		Key:        key,
		Doc:        models.JSONMap(doc),
		Version:    1,
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"doc", "version", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres: put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, key string, doc docstore.Doc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Upsert an empty base row first so the locked read always finds a
		// row to lock. Without it, two concurrent merges of a missing key
		// both see not-found and collide on the insert.
		base := documentRow{
			Collection: collection,
			Key:        key,
			Doc:        models.JSONMap{},
			Version:    1,
			UpdatedAt:  time.Now().UTC(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
			DoNothing: true,
		}).Create(&base).Error
		if err != nil {
			return fmt.Errorf("postgres: merge ensure %s/%s: %w", collection, key, err)
		}

		var row documentRow
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND key = ?", collection, key).Error
		if err != nil {
			return fmt.Errorf("postgres: merge read %s/%s: %w", collection, key, err)
		}
		if row.Doc == nil {
			row.Doc = models.JSONMap{}
		}
		for k, v := range doc {
			row.Doc[k] = v
		}
		row.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("postgres: merge write %s/%s: %w", collection, key, err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	err := s.db.WithContext(ctx).
		Delete(&documentRow{}, "collection = ? AND key = ?", collection, key).Error
	if err != nil {
		return fmt.Errorf("postgres: delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Entry, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("key").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", collection, err)
	}
	return entriesFromRows(rows), nil
}

func (s *Store) ListWhere(ctx context.Context, collection, field string, value any) ([]docstore.Entry, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc ->> ? = ?", collection, field, fmt.Sprint(value)).
		Order("key").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s where %s: %w", collection, field, err)
	}
	return entriesFromRows(rows), nil
}

func entriesFromRows(rows []documentRow) []docstore.Entry {
	entries := make([]docstore.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, docstore.Entry{Key: row.Key, Doc: docstore.Doc(row.Doc)})
	}
	return entries
}

func (s *Store) Update(ctx context.Context, collection, key string, fn docstore.UpdateFunc) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		err := s.tryUpdate(ctx, collection, key, fn)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		// Lost the race to create the row; the next attempt finds the
		// committed row and takes the lock.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return fmt.Errorf("postgres: update %s/%s after %d attempts: %w", collection, key, casAttempts, docstore.ErrConflict)
}

// tryUpdate runs one read-modify-write attempt. An existing row is locked
// for the duration of the transaction; an absent row is created, and a
// duplicate-key error from a concurrent creator propagates for the caller
// to retry.
func (s *Store) tryUpdate(ctx context.Context, collection, key string, fn docstore.UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND key = ?", collection, key).Error

		var current docstore.Doc
		exists := true
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			exists = false
		case err != nil:
			return fmt.Errorf("postgres: update read %s/%s: %w", collection, key, err)
		default:
			current = docstore.Doc(row.Doc)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		row.Collection = collection
		row.Key = key
		row.Doc = models.JSONMap(next)
		row.Version++
		row.UpdatedAt = time.Now().UTC()
		if !exists {
			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return err
				}
				return fmt.Errorf("postgres: update create %s/%s: %w", collection, key, err)
			}
			return nil
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("postgres: update write %s/%s: %w", collection, key, err)
		}
		return nil
	})
}

func (s *Store) ApplyBatch(ctx context.Context, muts []docstore.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := &Store{db: tx}
		for _, m := range muts {
			var err error
			switch m.Op {
			case docstore.OpPut:
				err = inner.Put(ctx, m.Collection, m.Key, m.Doc)
			case docstore.OpMerge:
				err = inner.Merge(ctx, m.Collection, m.Key, m.Doc)
			case docstore.OpDelete:
				err = inner.Delete(ctx, m.Collection, m.Key)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: batch of %d mutations: %w", len(muts), err)
	}
	return nil
}
