// Package client provides a typed HTTP client for the istri API.
//
// It mirrors the server's endpoint structure: account signup and lookup,
// identifier resolution, order, dispute, message and address operations, and
// the administrative migration endpoints. All operations use the same
// [github.com/Gokkul-M/istri-sub000/pkg/models] entities as the server.
//
// The client is used by the end-to-end tests and is safe for concurrent use
// by multiple goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gokkul-M/istri-sub000/pkg/identity"
	"github.com/Gokkul-M/istri-sub000/pkg/migration"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// Client provides typed access to the istri REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. The baseURL should include protocol
// and host without a trailing slash, e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into the target struct
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Profile pairs an allocated identifier with its profile body, matching the
// server's user responses.
type Profile struct {
	ID      models.HumanID      `json:"id"`
	Profile *models.UserProfile `json:"profile"`
}

// Entity pairs a document key with its body, matching the server's create,
// get, and list responses for orders, disputes, messages, and addresses.
type Entity struct {
	ID  string          `json:"id"`
	Doc json.RawMessage `json:"doc"`
}

// Decode unmarshals the entity body into a typed value.
func (e Entity) Decode(v any) error {
	return json.Unmarshal(e.Doc, v)
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SignUp registers an account and returns the profile with its allocated
// identifier.
func (c *Client) SignUp(ctx context.Context, req identity.SignUpRequest) (*Profile, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/signup", req)
	if err != nil {
		return nil, err
	}

	var result Profile
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUser retrieves a profile by its human identifier.
func (c *Client) GetUser(ctx context.Context, id models.HumanID) (*Profile, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/users/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result Profile
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteUser removes an account, its profile, and its mapping records.
func (c *Client) DeleteUser(ctx context.Context, id models.HumanID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/users/%s", id), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// ResolveHumanID returns the human identifier a provider UID maps to.
func (c *Client) ResolveHumanID(ctx context.Context, externalID string) (models.HumanID, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/resolve/external/%s", externalID), nil)
	if err != nil {
		return "", err
	}

	var result map[string]string
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return models.HumanID(result["human_id"]), nil
}

// ResolveExternalID returns the provider UID a human identifier maps to.
func (c *Client) ResolveExternalID(ctx context.Context, id models.HumanID) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/resolve/human/%s", id), nil)
	if err != nil {
		return "", err
	}

	var result map[string]string
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	return result["external_id"], nil
}

// CreateOrder places a new order.
func (c *Client) CreateOrder(ctx context.Context, order *models.Order) (*Entity, error) {
	return c.createEntity(ctx, "/api/orders", order)
}

// GetOrder retrieves an order by ID.
func (c *Client) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := c.getEntity(ctx, fmt.Sprintf("/api/orders/%s", id), &order); err != nil {
		return nil, err
	}
	order.ID = id
	return &order, nil
}

// ListOrders lists the orders placed by a customer.
func (c *Client) ListOrders(ctx context.Context, customerID string) ([]Entity, error) {
	return c.listEntities(ctx, fmt.Sprintf("/api/users/%s/orders", customerID))
}

// CreateDispute raises a dispute against an order.
func (c *Client) CreateDispute(ctx context.Context, dispute *models.Dispute) (*Entity, error) {
	return c.createEntity(ctx, "/api/disputes", dispute)
}

// GetDispute retrieves a dispute by ID.
func (c *Client) GetDispute(ctx context.Context, id string) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := c.getEntity(ctx, fmt.Sprintf("/api/disputes/%s", id), &dispute); err != nil {
		return nil, err
	}
	dispute.ID = id
	return &dispute, nil
}

// CreateMessage sends a message between two accounts.
func (c *Client) CreateMessage(ctx context.Context, msg *models.Message) (*Entity, error) {
	return c.createEntity(ctx, "/api/messages", msg)
}

// ListMessages lists the messages addressed to an account.
func (c *Client) ListMessages(ctx context.Context, receiverID string) ([]Entity, error) {
	return c.listEntities(ctx, fmt.Sprintf("/api/users/%s/messages", receiverID))
}

// CreateAddress adds an address to a profile's address subcollection.
func (c *Client) CreateAddress(ctx context.Context, userID string, addr *models.Address) (*Entity, error) {
	return c.createEntity(ctx, fmt.Sprintf("/api/users/%s/addresses", userID), addr)
}

// ListAddresses lists a profile's addresses.
func (c *Client) ListAddresses(ctx context.Context, userID string) ([]Entity, error) {
	return c.listEntities(ctx, fmt.Sprintf("/api/users/%s/addresses", userID))
}

// MigrationStatus reports the old/new format classification of the user
// collection.
func (c *Client) MigrationStatus(ctx context.Context) (*migration.Status, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/admin/migration/status", nil)
	if err != nil {
		return nil, err
	}

	var status migration.Status
	if err := decodeResponse(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RunMigration triggers a migration pass and returns its result.
func (c *Client) RunMigration(ctx context.Context) (*migration.Result, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/admin/migration/run", nil)
	if err != nil {
		return nil, err
	}

	var result migration.Result
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) createEntity(ctx context.Context, path string, body any) (*Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var result Entity
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getEntity(ctx context.Context, path string, target any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	var result Entity
	if err := decodeResponse(resp, &result); err != nil {
		return err
	}
	return result.Decode(target)
}

func (c *Client) listEntities(ctx context.Context, path string) ([]Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result []Entity
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}
