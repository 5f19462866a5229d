package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Collection names shared by every storage backend. Subcollections are nested
// path strings; see [AddressCollection].
const (
	CollectionUsers           = "users"
	CollectionOrders          = "orders"
	CollectionDisputes        = "disputes"
	CollectionMessages        = "messages"
	CollectionMappings        = "user_mappings"
	CollectionReverseMappings = "reverse_mappings"
	CollectionMeta            = "meta"
	CollectionMigrationState  = "migration_state"
)

// KeyUserCounters is the well-known key of the shared counter document in the
// meta collection. It is the only hot shared-mutable document in the system
// and must only be written through the allocator's atomic update.
const KeyUserCounters = "user_counters"

// AddressCollection returns the address subcollection path for a profile key.
func AddressCollection(userKey string) string {
	return CollectionUsers + "/" + userKey + "/addresses"
}

// Counters holds the per-role sequence counters. Each field is monotonically
// non-decreasing and only ever mutated inside the store's atomic update.
type Counters struct {
	Customer  int64 `json:"customer"`
	Launderer int64 `json:"launderer"`
	Admin     int64 `json:"admin"`
}

// Get returns the current counter value for the role.
func (c Counters) Get(role Role) int64 {
	switch role {
	case RoleCustomer:
		return c.Customer
	case RoleLaunderer:
		return c.Launderer
	case RoleAdmin:
		return c.Admin
	}
	return 0
}

// Set stores the counter value for the role, leaving the others untouched.
func (c *Counters) Set(role Role, v int64) {
	switch role {
	case RoleCustomer:
		c.Customer = v
	case RoleLaunderer:
		c.Launderer = v
	case RoleAdmin:
		c.Admin = v
	}
}

// CounterDocument is the shape of the meta/user_counters document.
type CounterDocument struct {
	Counters Counters `json:"counters"`
}

// Mapping is the forward identity-mapping record, keyed by the external
// identifier in the user_mappings collection.
type Mapping struct {
	HumanID   HumanID   `json:"human_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReverseMapping is the reverse identity-mapping record, keyed by the human
// identifier in the reverse_mappings collection.
type ReverseMapping struct {
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProfile is an account profile. It is keyed by the human-readable
// identifier; legacy records (pre-migration) are keyed by the external
// identifier and have an empty ExternalID field.
type UserProfile struct {
	ID         HumanID `json:"-"`
	Role       Role    `json:"role"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone,omitempty"`
	ExternalID string  `json:"external_id,omitempty"`

	// Launderer-specific fields.
	Verified    bool    `json:"verified,omitempty"`
	PricePerKg  float64 `json:"price_per_kg,omitempty"`
	ServiceArea string  `json:"service_area,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderPlaced    OrderStatus = "placed"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderWashing   OrderStatus = "washing"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderItem is a single line on an order.
type OrderItem struct {
	Label    string  `json:"label"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is a laundry order connecting a customer and a launderer.
type Order struct {
	ID          string      `json:"-"`
	CustomerID  string      `json:"customer_id"`
	LaundererID string      `json:"launderer_id"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items,omitempty"`
	TotalAmount float64     `json:"total_amount"`
	AddressID   string      `json:"address_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Dispute is a complaint raised against an order by either party.
type Dispute struct {
	ID          string    `json:"-"`
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	LaundererID string    `json:"launderer_id"`
	RaisedBy    string    `json:"raised_by"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a chat message between two accounts.
type Message struct {
	ID         string    `json:"-"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	Read       bool      `json:"read,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Address is a pickup/delivery address stored in a profile's address
// subcollection.
type Address struct {
	ID        string `json:"-"`
	Label     string `json:"label,omitempty"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	Pincode   string `json:"pincode"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// ToDoc converts a typed entity into its document form using its JSON field
// names. Identifier fields tagged "-" stay out of the document; the document
// key carries them.
func ToDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDoc fills a typed entity from its document form.
func FromDoc(doc map[string]any, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// JSONMap stores a schemaless document in a relational column. It marshals to
// JSON for PostgreSQL's jsonb type while remaining a plain map in Go.
type JSONMap map[string]any

// Value implements driver.Valuer for database storage.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database retrieval.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// GormDataType tells GORM to back JSONMap columns with jsonb.
func (JSONMap) GormDataType() string { return "jsonb" }
