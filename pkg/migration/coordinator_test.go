package migration

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore/memory"
	"github.com/Gokkul-M/istri-sub000/pkg/identity"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// Provider-shaped opaque keys, comfortably past the legacy length threshold.
const (
	legacyCustomer  = "x7Kd93jfA8sLq0ZrT2mN"
	legacyLaunderer = "zQ81mPf4Yw6cRd2sVb7L"
)

func newTestCoordinator(store docstore.Store) *Coordinator {
	alloc := identity.NewAllocator(store)
	mappings := identity.NewMappingStore(store)
	return NewCoordinator(store, alloc, mappings, zerolog.Nop())
}

// seedLegacyData populates the store the way the pre-allocation app left it:
// profiles keyed by provider UIDs, references pointing at those UIDs, and
// addresses nested under the old keys.
func seedLegacyData(t *testing.T, store docstore.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, models.CollectionUsers, legacyCustomer, docstore.Doc{
		"role": "customer", "name": "Asha", "email": "asha@example.com",
	}))
	require.NoError(t, store.Put(ctx, models.CollectionUsers, legacyLaunderer, docstore.Doc{
		"role": "launderer", "name": "Ravi", "email": "ravi@example.com", "verified": true,
	}))

	require.NoError(t, store.Put(ctx, models.CollectionOrders, "order-1", docstore.Doc{
		"customer_id": legacyCustomer, "launderer_id": legacyLaunderer, "status": "placed",
	}))
	require.NoError(t, store.Put(ctx, models.CollectionOrders, "order-2", docstore.Doc{
		"customer_id": "CUST-0099", "launderer_id": legacyLaunderer, "status": "delivered",
	}))
	require.NoError(t, store.Put(ctx, models.CollectionDisputes, "dispute-1", docstore.Doc{
		"order_id": "order-1", "customer_id": legacyCustomer, "launderer_id": legacyLaunderer,
		"raised_by": legacyCustomer, "reason": "late", "status": "open",
	}))
	require.NoError(t, store.Put(ctx, models.CollectionMessages, "msg-1", docstore.Doc{
		"sender_id": legacyCustomer, "receiver_id": legacyLaunderer, "body": "hello",
	}))

	addrColl := models.AddressCollection(legacyCustomer)
	require.NoError(t, store.Put(ctx, addrColl, "addr-1", docstore.Doc{"line1": "12 MG Road", "city": "Pune"}))
	require.NoError(t, store.Put(ctx, addrColl, "addr-2", docstore.Doc{"line1": "5 FC Road", "city": "Pune"}))
}

func TestRunMigratesEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedLegacyData(t, store)
	coord := newTestCoordinator(store)

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.MigratedCount)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Mappings, 2)

	newIDs := make(map[string]string)
	for _, m := range result.Mappings {
		newIDs[m.OldID] = m.NewID
	}
	custID := newIDs[legacyCustomer]
	launID := newIDs[legacyLaunderer]
	assert.Equal(t, "CUST-0001", custID)
	assert.Equal(t, "LAUN-0001", launID)

	// New profiles exist, carry the marker, and keep every original field.
	doc, err := store.Get(ctx, models.CollectionUsers, custID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, legacyCustomer, doc["external_id"])
	assert.Equal(t, "Asha", doc["name"])

	doc, err = store.Get(ctx, models.CollectionUsers, launID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, true, doc["verified"])

	// Old profiles are gone.
	doc, err = store.Get(ctx, models.CollectionUsers, legacyCustomer)
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Both mapping directions resolve.
	mappings := identity.NewMappingStore(store)
	humanID, ok, err := mappings.ResolveHumanID(ctx, legacyCustomer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.HumanID(custID), humanID)

	externalID, ok, err := mappings.ResolveExternalID(ctx, models.HumanID(launID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, legacyLaunderer, externalID)

	// References were rewritten in every collection.
	doc, err = store.Get(ctx, models.CollectionOrders, "order-1")
	require.NoError(t, err)
	assert.Equal(t, custID, doc["customer_id"])
	assert.Equal(t, launID, doc["launderer_id"])
	assert.Equal(t, "placed", doc["status"])

	// Already-new references are left alone.
	doc, err = store.Get(ctx, models.CollectionOrders, "order-2")
	require.NoError(t, err)
	assert.Equal(t, "CUST-0099", doc["customer_id"])
	assert.Equal(t, launID, doc["launderer_id"])

	doc, err = store.Get(ctx, models.CollectionDisputes, "dispute-1")
	require.NoError(t, err)
	assert.Equal(t, custID, doc["customer_id"])
	assert.Equal(t, custID, doc["raised_by"])

	doc, err = store.Get(ctx, models.CollectionMessages, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, custID, doc["sender_id"])
	assert.Equal(t, launID, doc["receiver_id"])

	// Addresses moved under the new key.
	moved, err := store.List(ctx, models.AddressCollection(custID))
	require.NoError(t, err)
	assert.Len(t, moved, 2)
	left, err := store.List(ctx, models.AddressCollection(legacyCustomer))
	require.NoError(t, err)
	assert.Empty(t, left)

	// Stage records report completion.
	doc, err = store.Get(ctx, models.CollectionMigrationState, legacyCustomer)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, string(StageCompleted), doc["stage"])
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedLegacyData(t, store)
	coord := newTestCoordinator(store)

	_, err := coord.Run(ctx)
	require.NoError(t, err)

	// A second run finds nothing to do and allocates nothing.
	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.MigratedCount)
	assert.Empty(t, result.Mappings)
	assert.Empty(t, result.Errors)

	counters, err := identity.NewAllocator(store).Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Customer)
	assert.Equal(t, int64(1), counters.Launderer)
}

func TestRunSkipsBadRecordAndMigratesTheRest(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedLegacyData(t, store)

	const badKey = "pB4tWn9xKe2jHs6dQm1R"
	require.NoError(t, store.Put(ctx, models.CollectionUsers, badKey, docstore.Doc{
		"role": "driver", "name": "Mystery",
	}))

	coord := newTestCoordinator(store)
	result, err := coord.Run(ctx)
	require.NoError(t, err)

	// The run reports the failure but still migrates the healthy records.
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.MigratedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, badKey, result.Errors[0].OldID)
	assert.Equal(t, "allocate", result.Errors[0].Stage)

	// The bad record stays untouched for the operator to inspect.
	doc, err := store.Get(ctx, models.CollectionUsers, badKey)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Mystery", doc["name"])

	// The healthy records completed all the way through cleanup.
	doc, err = store.Get(ctx, models.CollectionUsers, legacyCustomer)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRunSkipsIneligibleProfiles(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// Already-allocated profile: human-readable key plus marker.
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "CUST-0001", docstore.Doc{
		"role": "customer", "name": "Asha", "external_id": legacyCustomer,
	}))
	// Long opaque key but the marker says it was already handled.
	require.NoError(t, store.Put(ctx, models.CollectionUsers, legacyLaunderer, docstore.Doc{
		"role": "launderer", "name": "Ravi", "external_id": "provider-uid-kept-on-purpose",
	}))
	// Short key, ambiguous shape, stays untouched.
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "ravi", docstore.Doc{
		"role": "launderer", "name": "Old Ravi",
	}))

	coord := newTestCoordinator(store)

	status, err := coord.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.NeedsMigration)
	assert.Equal(t, 0, status.OldFormatUsers)
	assert.Equal(t, 3, status.NewFormatUsers)

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.MigratedCount)
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedLegacyData(t, store)
	coord := newTestCoordinator(store)

	status, err := coord.CheckStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.NeedsMigration)
	assert.Equal(t, 2, status.OldFormatUsers)
	assert.Equal(t, 0, status.NewFormatUsers)

	_, err = coord.Run(ctx)
	require.NoError(t, err)

	status, err = coord.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.NeedsMigration)
	assert.Equal(t, 0, status.OldFormatUsers)
	assert.Equal(t, 2, status.NewFormatUsers)
	assert.Equal(t, 0, status.PendingIdentity)
}

// TestRunResumesInterruptedIdentity simulates a crash after the per-record
// step committed: profile copy, mapping, and an "allocated" stage record
// exist, but references, addresses, and cleanup never ran.
func TestRunResumesInterruptedIdentity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedLegacyData(t, store)
	coord := newTestCoordinator(store)

	mappings := identity.NewMappingStore(store)
	alloc := identity.NewAllocator(store)

	custID, err := alloc.Allocate(ctx, models.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, mappings.CreateMapping(ctx, legacyCustomer, custID))
	require.NoError(t, store.Put(ctx, models.CollectionUsers, custID.String(), docstore.Doc{
		"role": "customer", "name": "Asha", "external_id": legacyCustomer,
	}))
	require.NoError(t, store.Put(ctx, models.CollectionMigrationState, legacyCustomer, docstore.Doc{
		"new_id": custID.String(), "role": "customer", "stage": string(StageAllocated),
	}))

	status, err := coord.CheckStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.NeedsMigration)
	assert.Equal(t, 1, status.PendingIdentity)

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// The resumed identity is finished without a second allocation; only the
	// launderer counts as newly migrated.
	assert.Equal(t, 1, result.MigratedCount)
	counters, err := alloc.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Customer)

	// Its remaining steps all committed.
	doc, err := store.Get(ctx, models.CollectionOrders, "order-1")
	require.NoError(t, err)
	assert.Equal(t, custID.String(), doc["customer_id"])

	moved, err := store.List(ctx, models.AddressCollection(custID.String()))
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	doc, err = store.Get(ctx, models.CollectionUsers, legacyCustomer)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = store.Get(ctx, models.CollectionMigrationState, legacyCustomer)
	require.NoError(t, err)
	assert.Equal(t, string(StageCompleted), doc["stage"])
}

// TestRunResumesFromAddressesMoved starts an identity at the second-to-last
// stage; the run must only perform cleanup for it.
func TestRunResumesFromAddressesMoved(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	coord := newTestCoordinator(store)

	require.NoError(t, store.Put(ctx, models.CollectionUsers, legacyCustomer, docstore.Doc{
		"role": "customer", "name": "Asha",
	}))
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "CUST-0001", docstore.Doc{
		"role": "customer", "name": "Asha", "external_id": legacyCustomer,
	}))
	require.NoError(t, store.Put(ctx, models.CollectionMigrationState, legacyCustomer, docstore.Doc{
		"new_id": "CUST-0001", "role": "customer", "stage": string(StageAddressesMoved),
	}))

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.MigratedCount)

	doc, err := store.Get(ctx, models.CollectionUsers, legacyCustomer)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = store.Get(ctx, models.CollectionMigrationState, legacyCustomer)
	require.NoError(t, err)
	assert.Equal(t, string(StageCompleted), doc["stage"])
}

func TestRunOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(memory.New())

	result, err := coord.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.MigratedCount)

	status, err := coord.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.NeedsMigration)
}
