package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore/memory"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

const testExternalID = "x7Kd93jfA8sLq0ZrT2mN"

func TestMappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	mappings := NewMappingStore(memory.New())

	require.NoError(t, mappings.CreateMapping(ctx, testExternalID, "CUST-0001"))

	humanID, ok, err := mappings.ResolveHumanID(ctx, testExternalID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.HumanID("CUST-0001"), humanID)

	externalID, ok, err := mappings.ResolveExternalID(ctx, "CUST-0001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testExternalID, externalID)
}

func TestResolveAbsentMapping(t *testing.T) {
	ctx := context.Background()
	mappings := NewMappingStore(memory.New())

	// Absence is a signal, not an error.
	_, ok, err := mappings.ResolveHumanID(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = mappings.ResolveExternalID(ctx, "CUST-9999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateMappingRejectsEmptyPair(t *testing.T) {
	ctx := context.Background()
	mappings := NewMappingStore(memory.New())

	var mapErr *MappingError
	err := mappings.CreateMapping(ctx, "", "CUST-0001")
	require.ErrorAs(t, err, &mapErr)

	err = mappings.CreateMapping(ctx, testExternalID, "")
	require.ErrorAs(t, err, &mapErr)
}

func TestDeleteMappingRemovesBothDirections(t *testing.T) {
	ctx := context.Background()
	mappings := NewMappingStore(memory.New())

	require.NoError(t, mappings.CreateMapping(ctx, testExternalID, "CUST-0001"))
	require.NoError(t, mappings.DeleteMapping(ctx, testExternalID, "CUST-0001"))

	_, ok, err := mappings.ResolveHumanID(ctx, testExternalID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = mappings.ResolveExternalID(ctx, "CUST-0001")
	require.NoError(t, err)
	assert.False(t, ok)
}
