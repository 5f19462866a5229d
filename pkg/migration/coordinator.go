// Package migration backfills human-readable identifiers over accounts that
// predate the allocation scheme.
//
// The coordinator is an operator-triggered one-shot job, never part of a
// request path. A run walks five steps:
//
//  1. Discovery: profiles keyed like opaque provider UIDs with no external_id
//     marker are eligible.
//  2. Per-record migration: allocate an identifier for the record's role,
//     establish the mapping pair, and write the profile copy under the new
//     key with the old key recorded as external_id. One bad record is
//     reported and skipped; it never aborts the batch.
//  3. Fan-out rewrite: every foreign-identifier field in orders, disputes,
//     and messages that still points at a migrated old key is rewritten to
//     the new key, one atomic batch per collection.
//  4. Address relocation: each identity's address subcollection moves under
//     the new key, one atomic batch per identity.
//  5. Cleanup: old profiles of fully relocated identities are deleted in one
//     final batch.
//
// Each identity's progress is persisted as a migration_state stage record
// (allocated → references_rewritten → addresses_moved → completed), so a
// re-run resumes interrupted identities at the step they stopped at. A run
// over a fully migrated dataset finds nothing eligible and is a no-op.
package migration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/identity"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// referenceFields maps each cross-referencing collection to the foreign
// identifier fields the fan-out rewrite inspects.
var referenceFields = map[string][]string{
	models.CollectionOrders:   {"customer_id", "launderer_id"},
	models.CollectionDisputes: {"customer_id", "launderer_id", "raised_by"},
	models.CollectionMessages: {"sender_id", "receiver_id"},
}

// Coordinator performs the one-time identifier migration.
type Coordinator struct {
	store    docstore.Store
	alloc    *identity.Allocator
	mappings *identity.MappingStore
	log      zerolog.Logger
}

// NewCoordinator wires a coordinator over the given store and identity core.
func NewCoordinator(store docstore.Store, alloc *identity.Allocator, mappings *identity.MappingStore, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, alloc: alloc, mappings: mappings, log: log}
}

// CheckStatus classifies every profile as old- or new-format without writing
// anything. Operators call this to decide whether Run is needed at all.
func (c *Coordinator) CheckStatus(ctx context.Context) (*Status, error) {
	users, err := c.store.List(ctx, models.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("migration: scanning profiles: %w", err)
	}
	status := &Status{}
	for _, e := range users {
		if isEligible(e) {
			status.OldFormatUsers++
		} else {
			status.NewFormatUsers++
		}
	}
	pending, err := c.loadPending(ctx)
	if err != nil {
		return nil, err
	}
	status.PendingIdentity = len(pending)
	status.NeedsMigration = status.OldFormatUsers > 0 || len(pending) > 0
	return status, nil
}

// isEligible reports whether a profile record still needs migration: no
// external_id marker and a key shaped like an opaque provider UID.
func isEligible(e docstore.Entry) bool {
	if marker, _ := e.Doc["external_id"].(string); marker != "" {
		return false
	}
	return models.IsLegacyKey(e.Key)
}

// pendingIdentity is an identity mid-migration: its profile copy and mapping
// exist but later steps have not all committed.
type pendingIdentity struct {
	oldID string
	newID string
	role  models.Role
	stage Stage
}

func (c *Coordinator) loadPending(ctx context.Context) (map[string]*pendingIdentity, error) {
	entries, err := c.store.List(ctx, models.CollectionMigrationState)
	if err != nil {
		return nil, fmt.Errorf("migration: scanning stage records: %w", err)
	}
	pending := make(map[string]*pendingIdentity)
	for _, e := range entries {
		var rec stateRecord
		if err := models.FromDoc(e.Doc, &rec); err != nil {
			return nil, fmt.Errorf("migration: decoding stage record %s: %w", e.Key, err)
		}
		if rec.Stage == StageCompleted {
			continue
		}
		role, _ := models.ParseRole(rec.Role)
		pending[e.Key] = &pendingIdentity{oldID: e.Key, newID: rec.NewID, role: role, stage: rec.Stage}
	}
	return pending, nil
}

// Run executes the migration. Per-record and fan-out failures are collected
// in the result rather than aborting the run; the Result reports exactly what
// an operator needs to decide whether to re-run.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	result := &Result{Success: true}

	pending, err := c.loadPending(ctx)
	if err != nil {
		return nil, err
	}

	users, err := c.store.List(ctx, models.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("migration: scanning profiles: %w", err)
	}

	// Step 2: sequential per-record migration of newly discovered records.
	for _, e := range users {
		if _, resumed := pending[e.Key]; resumed {
			continue
		}
		if !isEligible(e) {
			continue
		}
		p, err := c.migrateRecord(ctx, e)
		if err != nil {
			result.fail(e.Key, "allocate", err)
			c.log.Error().Err(err).Str("old_id", e.Key).Msg("record migration failed")
			continue
		}
		pending[p.oldID] = p
		result.MigratedCount++
		result.Mappings = append(result.Mappings, MappedUser{OldID: p.oldID, NewID: p.newID, Role: p.role})
		c.log.Info().Str("old_id", p.oldID).Str("new_id", p.newID).Msg("profile migrated")
	}

	if len(pending) == 0 {
		return result, nil
	}

	// Deterministic processing order for the remaining steps.
	ordered := make([]*pendingIdentity, 0, len(pending))
	for _, p := range pending {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].oldID < ordered[j].oldID })

	lookup := make(map[string]string, len(pending))
	for _, p := range ordered {
		lookup[p.oldID] = p.newID
	}

	// Step 3: fan-out rewrite, one atomic batch per collection. Rewriting is
	// idempotent: already-substituted values no longer match the lookup
	// table, so a resumed run stages nothing for them.
	rewriteOK := c.rewriteReferences(ctx, lookup, result)
	if rewriteOK {
		muts := make([]docstore.Mutation, 0, len(ordered))
		for _, p := range ordered {
			if p.stage.atLeast(StageReferencesRewritten) {
				continue
			}
			p.stage = StageReferencesRewritten
			muts = append(muts, docstore.Merge(models.CollectionMigrationState, p.oldID, stageDoc(StageReferencesRewritten)))
		}
		if len(muts) > 0 {
			if err := c.store.ApplyBatch(ctx, muts); err != nil {
				result.fail("", "references", fmt.Errorf("advancing stage records: %w", err))
			}
		}
	}

	// Step 4: address relocation, one atomic batch per identity.
	for _, p := range ordered {
		if p.stage.atLeast(StageAddressesMoved) {
			continue
		}
		if err := c.relocateAddresses(ctx, p); err != nil {
			result.fail(p.oldID, "addresses", err)
			c.log.Error().Err(err).Str("old_id", p.oldID).Msg("address relocation failed")
			continue
		}
		p.stage = StageAddressesMoved
	}

	// Step 5: delete superseded profiles in one final batch. Identities whose
	// fan-out or relocation is still outstanding keep their old profile and
	// stage record for the next run.
	var cleanup []docstore.Mutation
	for _, p := range ordered {
		if !rewriteOK || !p.stage.atLeast(StageAddressesMoved) {
			continue
		}
		cleanup = append(cleanup,
			docstore.Delete(models.CollectionUsers, p.oldID),
			docstore.Merge(models.CollectionMigrationState, p.oldID, stageDoc(StageCompleted)),
		)
	}
	if len(cleanup) > 0 {
		if err := c.store.ApplyBatch(ctx, cleanup); err != nil {
			result.fail("", "cleanup", err)
			c.log.Error().Err(err).Msg("cleanup batch failed")
		}
	}

	c.log.Info().
		Int("migrated", result.MigratedCount).
		Int("errors", len(result.Errors)).
		Bool("success", result.Success).
		Msg("migration run finished")
	return result, nil
}

// migrateRecord performs step 2 for one eligible profile: allocate, map, and
// write the profile copy under the new key. If a prior interrupted run
// already established the mapping, its identifier is reused instead of
// allocating a second one.
func (c *Coordinator) migrateRecord(ctx context.Context, e docstore.Entry) (*pendingIdentity, error) {
	roleStr, _ := e.Doc["role"].(string)
	role, err := models.ParseRole(roleStr)
	if err != nil {
		return nil, fmt.Errorf("profile has no usable role: %w", err)
	}

	humanID, ok, err := c.mappings.ResolveHumanID(ctx, e.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		humanID, err = c.alloc.Allocate(ctx, role)
		if err != nil {
			return nil, err
		}
		if err := c.mappings.CreateMapping(ctx, e.Key, humanID); err != nil {
			return nil, err
		}
	}

	newDoc := make(docstore.Doc, len(e.Doc)+1)
	for k, v := range e.Doc {
		newDoc[k] = v
	}
	newDoc["external_id"] = e.Key
	newDoc["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	state, err := models.ToDoc(stateRecord{
		NewID:     humanID.String(),
		Role:      string(role),
		Stage:     StageAllocated,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	err = c.store.ApplyBatch(ctx, []docstore.Mutation{
		docstore.Put(models.CollectionUsers, humanID.String(), newDoc),
		docstore.Put(models.CollectionMigrationState, e.Key, state),
	})
	if err != nil {
		return nil, fmt.Errorf("writing migrated profile: %w", err)
	}
	return &pendingIdentity{oldID: e.Key, newID: humanID.String(), role: role, stage: StageAllocated}, nil
}

// rewriteReferences performs step 3 and reports whether every collection
// batch committed.
func (c *Coordinator) rewriteReferences(ctx context.Context, lookup map[string]string, result *Result) bool {
	collections := make([]string, 0, len(referenceFields))
	for coll := range referenceFields {
		collections = append(collections, coll)
	}
	sort.Strings(collections)

	ok := true
	for _, coll := range collections {
		entries, err := c.store.List(ctx, coll)
		if err != nil {
			result.fail("", "references:"+coll, err)
			ok = false
			continue
		}
		var muts []docstore.Mutation
		for _, e := range entries {
			changed := docstore.Doc{}
			for _, field := range referenceFields[coll] {
				old, isStr := e.Doc[field].(string)
				if !isStr {
					continue
				}
				if newID, hit := lookup[old]; hit {
					changed[field] = newID
				}
			}
			if len(changed) > 0 {
				muts = append(muts, docstore.Merge(coll, e.Key, changed))
			}
		}
		if len(muts) == 0 {
			continue
		}
		if err := c.store.ApplyBatch(ctx, muts); err != nil {
			result.fail("", "references:"+coll, err)
			ok = false
			continue
		}
		c.log.Info().Str("collection", coll).Int("rewritten", len(muts)).Msg("references rewritten")
	}
	return ok
}

// relocateAddresses performs step 4 for one identity: copy every address
// document under the new parent, delete the originals, and advance the stage
// record, all in one batch.
func (c *Coordinator) relocateAddresses(ctx context.Context, p *pendingIdentity) error {
	oldColl := models.AddressCollection(p.oldID)
	entries, err := c.store.List(ctx, oldColl)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", oldColl, err)
	}
	newColl := models.AddressCollection(p.newID)
	muts := make([]docstore.Mutation, 0, len(entries)*2+1)
	for _, e := range entries {
		muts = append(muts,
			docstore.Put(newColl, e.Key, e.Doc),
			docstore.Delete(oldColl, e.Key),
		)
	}
	muts = append(muts, docstore.Merge(models.CollectionMigrationState, p.oldID, stageDoc(StageAddressesMoved)))
	if err := c.store.ApplyBatch(ctx, muts); err != nil {
		return fmt.Errorf("relocating %d addresses: %w", len(entries), err)
	}
	return nil
}

func stageDoc(s Stage) docstore.Doc {
	return docstore.Doc{
		"stage":      string(s),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
}
