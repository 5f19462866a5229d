package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gokkul-M/istri-sub000/pkg/auth"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// SignUpRequest carries the fields needed to open an account.
type SignUpRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Phone    string      `json:"phone,omitempty"`
	Role     models.Role `json:"role"`
}

// Service is the signup-flow owner: it turns a provider account into a
// profile keyed by a freshly allocated human-readable identifier.
//
// The ordering is load-bearing: allocate first, establish the mapping second,
// create the profile last. If allocation or mapping fails the profile is
// never created, so no profile can exist that lookups cannot reach.
type Service struct {
	store    docstore.Store
	alloc    *Allocator
	mappings *MappingStore
	provider auth.Provider
	log      zerolog.Logger
}

// NewService wires the signup service.
func NewService(store docstore.Store, alloc *Allocator, mappings *MappingStore, provider auth.Provider, log zerolog.Logger) *Service {
	return &Service{store: store, alloc: alloc, mappings: mappings, provider: provider, log: log}
}

// Mappings exposes the mapping store for read-side callers.
func (s *Service) Mappings() *MappingStore { return s.mappings }

// SignUp registers the account with the provider, allocates an identifier for
// the requested role, records the mapping pair, and creates the profile.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*models.UserProfile, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("identity: invalid role %q", string(req.Role))
	}

	externalID, err := s.provider.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("identity: creating auth account: %w", err)
	}

	// The provider may hand back an account that signed up before but never
	// finished profile creation; resolve before allocating a fresh ID. The
	// identifier encodes the role it was allocated for, and roles are fixed
	// at first signup, so a repeat request under a different role is
	// rejected rather than silently answered with the old identity.
	if humanID, ok, err := s.mappings.ResolveHumanID(ctx, externalID); err != nil {
		return nil, err
	} else if ok {
		if role, _ := humanID.Role(); role != req.Role {
			return nil, fmt.Errorf("identity: account %s already registered as role %q", humanID, role)
		}
		return s.Profile(ctx, humanID)
	}

	humanID, err := s.alloc.Allocate(ctx, req.Role)
	if err != nil {
		return nil, err
	}
	if err := s.mappings.CreateMapping(ctx, externalID, humanID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	profile := &models.UserProfile{
		ID:         humanID,
		Role:       req.Role,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		ExternalID: externalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	doc, err := models.ToDoc(profile)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, models.CollectionUsers, humanID.String(), doc); err != nil {
		return nil, fmt.Errorf("identity: creating profile %s: %w", humanID, err)
	}

	s.log.Info().
		Str("human_id", humanID.String()).
		Str("role", string(req.Role)).
		Msg("account created")
	return profile, nil
}

// Profile loads a profile by its human identifier. Returns (nil, nil) when no
// profile exists.
func (s *Service) Profile(ctx context.Context, humanID models.HumanID) (*models.UserProfile, error) {
	doc, err := s.store.Get(ctx, models.CollectionUsers, humanID.String())
	if err != nil || doc == nil {
		return nil, err
	}
	var profile models.UserProfile
	if err := models.FromDoc(doc, &profile); err != nil {
		return nil, err
	}
	profile.ID = humanID
	return &profile, nil
}

// ProfileByExternalID resolves a provider UID through the mapping store and
// loads the profile it points at. Returns (nil, nil) when the mapping is
// absent, which callers treat as first-time signup.
func (s *Service) ProfileByExternalID(ctx context.Context, externalID string) (*models.UserProfile, error) {
	humanID, ok, err := s.mappings.ResolveHumanID(ctx, externalID)
	if err != nil || !ok {
		return nil, err
	}
	return s.Profile(ctx, humanID)
}

// DeleteAccount removes the profile, both mapping records, and the provider
// account. The allocated identifier is retired, never reused.
func (s *Service) DeleteAccount(ctx context.Context, humanID models.HumanID) error {
	externalID, ok, err := s.mappings.ResolveExternalID(ctx, humanID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, models.CollectionUsers, humanID.String()); err != nil {
		return err
	}
	if ok {
		if err := s.mappings.DeleteMapping(ctx, externalID, humanID); err != nil {
			return err
		}
		if err := s.provider.DeleteAccount(ctx, externalID); err != nil {
			// The profile and mapping are already gone; surface the provider
			// failure to the operator rather than resurrecting them.
			s.log.Error().Err(err).Str("human_id", humanID.String()).Msg("auth account deletion failed")
			return err
		}
	}
	s.log.Info().Str("human_id", humanID.String()).Msg("account deleted")
	return nil
}
