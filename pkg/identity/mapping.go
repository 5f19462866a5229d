package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// MappingStore maintains the bidirectional mapping between opaque provider
// UIDs and allocated human-readable identifiers. The forward record lives in
// user_mappings keyed by the external identifier; the reverse record lives in
// reverse_mappings keyed by the human identifier. Both are written as one
// atomic batch so the pair can never be half-established.
type MappingStore struct {
	store docstore.Store
}

// NewMappingStore creates a mapping store over the given store.
func NewMappingStore(store docstore.Store) *MappingStore {
	return &MappingStore{store: store}
}

// CreateMapping writes the forward and reverse records for the pair. It must
// be called once, after allocation succeeds and before the profile under
// humanID is considered valid. Failures come back as *MappingError and mean
// the mapping is not established.
func (m *MappingStore) CreateMapping(ctx context.Context, externalID string, humanID models.HumanID) error {
	if externalID == "" || humanID.IsZero() {
		return &MappingError{ExternalID: externalID, Err: fmt.Errorf("empty identifier in pair (%q, %q)", externalID, humanID)}
	}
	now := time.Now().UTC()
	forward, err := models.ToDoc(models.Mapping{HumanID: humanID, CreatedAt: now})
	if err != nil {
		return &MappingError{ExternalID: externalID, Err: err}
	}
	reverse, err := models.ToDoc(models.ReverseMapping{ExternalID: externalID, CreatedAt: now})
	if err != nil {
		return &MappingError{ExternalID: externalID, Err: err}
	}
	err = m.store.ApplyBatch(ctx, []docstore.Mutation{
		docstore.Put(models.CollectionMappings, externalID, forward),
		docstore.Put(models.CollectionReverseMappings, humanID.String(), reverse),
	})
	if err != nil {
		return &MappingError{ExternalID: externalID, Err: err}
	}
	return nil
}

// ResolveHumanID looks up the human identifier for a provider UID. A missing
// mapping is not an error: it signals "no profile yet / never migrated" and
// is reported through the boolean.
func (m *MappingStore) ResolveHumanID(ctx context.Context, externalID string) (models.HumanID, bool, error) {
	doc, err := m.store.Get(ctx, models.CollectionMappings, externalID)
	if err != nil {
		return "", false, err
	}
	if doc == nil {
		return "", false, nil
	}
	var mapping models.Mapping
	if err := models.FromDoc(doc, &mapping); err != nil {
		return "", false, err
	}
	return mapping.HumanID, true, nil
}

// ResolveExternalID looks up the provider UID for a human identifier.
func (m *MappingStore) ResolveExternalID(ctx context.Context, humanID models.HumanID) (string, bool, error) {
	doc, err := m.store.Get(ctx, models.CollectionReverseMappings, humanID.String())
	if err != nil {
		return "", false, err
	}
	if doc == nil {
		return "", false, nil
	}
	var mapping models.ReverseMapping
	if err := models.FromDoc(doc, &mapping); err != nil {
		return "", false, err
	}
	return mapping.ExternalID, true, nil
}

// DeleteMapping removes both records of the pair in one batch. Used when the
// owning account is deleted; the identifier itself is never reused.
func (m *MappingStore) DeleteMapping(ctx context.Context, externalID string, humanID models.HumanID) error {
	return m.store.ApplyBatch(ctx, []docstore.Mutation{
		docstore.Delete(models.CollectionMappings, externalID),
		docstore.Delete(models.CollectionReverseMappings, humanID.String()),
	})
}
