package identity

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gokkul-M/istri-sub000/pkg/auth"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore/memory"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

func newTestService(store docstore.Store) *Service {
	return NewService(store, NewAllocator(store), NewMappingStore(store), auth.NewFakeProvider(), zerolog.Nop())
}

func TestSignUpAllocatesAndMaps(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store)

	profile, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "asha@example.com",
		Password: "secret",
		Name:     "Asha",
		Role:     models.RoleCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, models.HumanID("CUST-0001"), profile.ID)
	assert.NotEmpty(t, profile.ExternalID)

	// Profile is stored under the allocated identifier with the marker set.
	doc, err := store.Get(ctx, models.CollectionUsers, "CUST-0001")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, profile.ExternalID, doc["external_id"])

	// Both mapping directions resolve.
	humanID, ok, err := svc.Mappings().ResolveHumanID(ctx, profile.ExternalID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, profile.ID, humanID)

	externalID, ok, err := svc.Mappings().ResolveExternalID(ctx, profile.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, profile.ExternalID, externalID)
}

func TestSignUpSequencesPerRole(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	first, err := svc.SignUp(ctx, SignUpRequest{Email: "c1@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)
	second, err := svc.SignUp(ctx, SignUpRequest{Email: "c2@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)
	launderer, err := svc.SignUp(ctx, SignUpRequest{Email: "l1@example.com", Password: "pw", Role: models.RoleLaunderer})
	require.NoError(t, err)

	assert.Equal(t, models.HumanID("CUST-0001"), first.ID)
	assert.Equal(t, models.HumanID("CUST-0002"), second.ID)
	assert.Equal(t, models.HumanID("LAUN-0001"), launderer.ID)
}

func TestSignUpRejectsInvalidRole(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: "driver"})
	assert.Error(t, err)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

// batchFailingStore makes every batch write fail, which sinks mapping
// creation while allocation still succeeds.
type batchFailingStore struct {
	docstore.Store
}

func (s *batchFailingStore) ApplyBatch(ctx context.Context, muts []docstore.Mutation) error {
	return assert.AnError
}

func TestSignUpAbortsBeforeProfileOnMappingFailure(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	store := &batchFailingStore{Store: inner}
	svc := NewService(store, NewAllocator(store), NewMappingStore(store), auth.NewFakeProvider(), zerolog.Nop())

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.Error(t, err)

	var mapErr *MappingError
	assert.ErrorAs(t, err, &mapErr)

	// No profile may exist that the mapping cannot reach.
	entries, err := inner.List(ctx, models.CollectionUsers)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProfileAbsent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	profile, err := svc.Profile(ctx, "CUST-0042")
	require.NoError(t, err)
	assert.Nil(t, profile)

	profile, err = svc.ProfileByExternalID(ctx, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestProfileByExternalID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	created, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Name: "Asha", Role: models.RoleCustomer})
	require.NoError(t, err)

	profile, err := svc.ProfileByExternalID(ctx, created.ExternalID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, created.ID, profile.ID)
	assert.Equal(t, "Asha", profile.Name)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store)

	created, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, created.ID))

	profile, err := svc.Profile(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	_, ok, err := svc.Mappings().ResolveHumanID(ctx, created.ExternalID)
	require.NoError(t, err)
	assert.False(t, ok)

	// The identifier is retired, not reused: the next signup gets a new one.
	next, err := svc.SignUp(ctx, SignUpRequest{Email: "b@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, models.HumanID("CUST-0002"), next.ID)
}

// replayProvider always hands back the same external identifier, the way a
// real provider does when credentials already exist for the email.
type replayProvider struct {
	id string
}

func (p *replayProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	return p.id, nil
}

func (p *replayProvider) DeleteAccount(ctx context.Context, externalID string) error {
	return nil
}

func TestSignUpResumesInterruptedSignup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := &replayProvider{id: "x7Kd93jfA8sLq0ZrT2mN"}
	svc := NewService(store, NewAllocator(store), NewMappingStore(store), provider, zerolog.Nop())

	first, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Name: "Asha", Role: models.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, models.HumanID("CUST-0001"), first.ID)

	// Same provider account, same role: the existing identity is returned
	// without allocating a second identifier.
	again, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	counters, err := NewAllocator(store).Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Customer)
}

func TestSignUpRejectsRoleChangeForExistingAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := &replayProvider{id: "x7Kd93jfA8sLq0ZrT2mN"}
	svc := NewService(store, NewAllocator(store), NewMappingStore(store), provider, zerolog.Nop())

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleCustomer})
	require.NoError(t, err)

	// The account is already a customer; asking for launderer must fail,
	// not silently return the customer identity.
	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "pw", Role: models.RoleLaunderer})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// No launderer identifier was allocated for the rejected request.
	counters, err := NewAllocator(store).Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counters.Launderer)
}
