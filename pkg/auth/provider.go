// Package auth abstracts the external authentication provider. The identity
// core depends only on this contract: the provider hands out an opaque,
// globally unique, immutable external identifier per account at signup time
// and supports deleting an account by that identifier.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrDuplicateEmail is returned when an account already exists for the email.
var ErrDuplicateEmail = errors.New("auth: account already exists for email")

// Provider is the authentication collaborator consumed by the signup flow.
type Provider interface {
	// CreateAccount registers credentials and returns the opaque external
	// identifier for the new account.
	CreateAccount(ctx context.Context, email, password string) (string, error)
	// DeleteAccount removes the account registered under externalID.
	DeleteAccount(ctx context.Context, externalID string) error
}

// FakeProvider is an in-memory Provider used by the memory backend and tests.
// External identifiers are uuid-derived 32-character opaque strings, well
// past the legacy-key length threshold, mirroring the shape of real provider
// UIDs.
type FakeProvider struct {
	mu       sync.Mutex
	byEmail  map[string]string
	accounts map[string]string
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		byEmail:  make(map[string]string),
		accounts: make(map[string]string),
	}
}

func (p *FakeProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("auth: empty email")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[email]; ok {
		return "", ErrDuplicateEmail
	}
	externalID := strings.ReplaceAll(uuid.NewString(), "-", "")
	p.byEmail[email] = externalID
	p.accounts[externalID] = email
	return externalID, nil
}

func (p *FakeProvider) DeleteAccount(ctx context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.accounts[externalID]
	if !ok {
		return fmt.Errorf("auth: unknown account %q", externalID)
	}
	delete(p.accounts, externalID)
	delete(p.byEmail, email)
	return nil
}
