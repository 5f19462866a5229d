// Package identity implements human-readable identifier allocation for the
// Istri marketplace: the role-scoped sequence allocator, the bidirectional
// mapping between provider UIDs and allocated identifiers, and the signup
// service that ties both to profile creation.
package identity

import (
	"context"
	"fmt"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// Allocator issues the next sequential identifier for a role. All three role
// counters live in the single meta/user_counters document; every increment
// runs inside the store's atomic read-modify-write, so no two concurrent
// allocations for the same role can observe the same prior value.
type Allocator struct {
	store docstore.Store
}

// NewAllocator creates an allocator over the given store.
func NewAllocator(store docstore.Store) *Allocator {
	return &Allocator{store: store}
}

// Allocate returns the next identifier for role, e.g. CUST-0007.
//
// The counter document is created lazily: the first allocation initializes
// all three role counters to zero inside the same atomic update before
// incrementing the requested one. Failures come back as *AllocationError and
// mean no identifier was issued.
func (a *Allocator) Allocate(ctx context.Context, role models.Role) (models.HumanID, error) {
	if !role.Valid() {
		return "", &AllocationError{Role: role, Err: fmt.Errorf("unknown role %q", string(role))}
	}

	var id models.HumanID
	err := a.store.Update(ctx, models.CollectionMeta, models.KeyUserCounters, func(doc docstore.Doc) (docstore.Doc, error) {
		var counters models.CounterDocument
		if doc != nil {
			if err := models.FromDoc(doc, &counters); err != nil {
				return nil, fmt.Errorf("decoding counter document: %w", err)
			}
		}
		next := counters.Counters.Get(role) + 1
		counters.Counters.Set(role, next)
		id = models.FormatHumanID(role, next)
		return models.ToDoc(counters)
	})
	if err != nil {
		return "", &AllocationError{Role: role, Err: err}
	}
	return id, nil
}

// Peek returns the current counter values without mutating them.
func (a *Allocator) Peek(ctx context.Context) (models.Counters, error) {
	doc, err := a.store.Get(ctx, models.CollectionMeta, models.KeyUserCounters)
	if err != nil {
		return models.Counters{}, err
	}
	if doc == nil {
		return models.Counters{}, nil
	}
	var counters models.CounterDocument
	if err := models.FromDoc(doc, &counters); err != nil {
		return models.Counters{}, err
	}
	return counters.Counters, nil
}
