package istri

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/identity"
	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// handleHealth reports service status and the active backend. Used by load
// balancers and deployment checks.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": a.config.Backend,
	})
}

// handleSignUp registers an account with the auth provider, allocates a
// role-scoped identifier, and creates the profile. Returns the profile keyed
// by its new human identifier.
func (a *App) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req identity.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	profile, err := a.service.SignUp(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, signUpResponse{ID: profile.ID, Profile: profile})
}

// signUpResponse surfaces the allocated identifier alongside the profile,
// whose own ID field stays out of the JSON body.
type signUpResponse struct {
	ID      models.HumanID      `json:"id"`
	Profile *models.UserProfile `json:"profile"`
}

func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	humanID, err := models.ParseHumanID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	profile, err := a.service.Profile(r.Context(), humanID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, signUpResponse{ID: profile.ID, Profile: profile})
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	humanID, err := models.ParseHumanID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := a.service.DeleteAccount(r.Context(), humanID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleResolveExternal returns the human identifier a provider UID maps to.
func (a *App) handleResolveExternal(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["externalId"]

	humanID, ok, err := a.service.Mappings().ResolveHumanID(r.Context(), externalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "Mapping not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"human_id": humanID.String()})
}

// handleResolveHuman returns the provider UID a human identifier maps to.
func (a *App) handleResolveHuman(w http.ResponseWriter, r *http.Request) {
	humanID, err := models.ParseHumanID(mux.Vars(r)["humanId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid human ID")
		return
	}

	externalID, ok, err := a.service.Mappings().ResolveExternalID(r.Context(), humanID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "Mapping not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"external_id": externalID})
}

func (a *App) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if order.CustomerID == "" || order.LaundererID == "" {
		respondError(w, http.StatusBadRequest, "customer_id and launderer_id are required")
		return
	}

	order.ID = uuid.NewString()
	order.Status = models.OrderPlaced
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := a.putEntity(r, models.CollectionOrders, order.ID, order); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entityResponse{ID: order.ID, Doc: order})
}

func (a *App) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	a.getEntity(w, r, models.CollectionOrders, new(models.Order))
}

// handleListOrders lists the orders where the account appears as the
// customer.
func (a *App) handleListOrders(w http.ResponseWriter, r *http.Request) {
	a.listEntities(w, r, models.CollectionOrders, "customer_id", mux.Vars(r)["id"])
}

func (a *App) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var dispute models.Dispute
	if err := json.NewDecoder(r.Body).Decode(&dispute); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if dispute.OrderID == "" || dispute.RaisedBy == "" {
		respondError(w, http.StatusBadRequest, "order_id and raised_by are required")
		return
	}

	dispute.ID = uuid.NewString()
	if dispute.Status == "" {
		dispute.Status = "open"
	}
	dispute.CreatedAt = time.Now().UTC()

	if err := a.putEntity(r, models.CollectionDisputes, dispute.ID, dispute); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entityResponse{ID: dispute.ID, Doc: dispute})
}

func (a *App) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	a.getEntity(w, r, models.CollectionDisputes, new(models.Dispute))
}

func (a *App) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if msg.SenderID == "" || msg.ReceiverID == "" {
		respondError(w, http.StatusBadRequest, "sender_id and receiver_id are required")
		return
	}

	msg.ID = uuid.NewString()
	msg.SentAt = time.Now().UTC()

	if err := a.putEntity(r, models.CollectionMessages, msg.ID, msg); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entityResponse{ID: msg.ID, Doc: msg})
}

// handleListMessages lists messages addressed to the account.
func (a *App) handleListMessages(w http.ResponseWriter, r *http.Request) {
	a.listEntities(w, r, models.CollectionMessages, "receiver_id", mux.Vars(r)["id"])
}

func (a *App) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["id"]

	var addr models.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if addr.Line1 == "" || addr.City == "" {
		respondError(w, http.StatusBadRequest, "line1 and city are required")
		return
	}

	addr.ID = uuid.NewString()
	if err := a.putEntity(r, models.AddressCollection(userKey), addr.ID, addr); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entityResponse{ID: addr.ID, Doc: addr})
}

func (a *App) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["id"]

	entries, err := a.store.List(r.Context(), models.AddressCollection(userKey))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entriesResponse(entries))
}

// handleMigrationStatus reports how many profiles still use old-format keys
// and how many identities have an unfinished migration.
func (a *App) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleMigrationRun triggers a migration pass and returns the per-run
// result, including any per-record failures.
func (a *App) handleMigrationRun(w http.ResponseWriter, r *http.Request) {
	result, err := a.coordinator.Run(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// entityResponse pairs a document key with its body for create and get
// responses. Entity structs keep their keys out of the JSON body, the key
// lives on the document, so responses carry it explicitly.
type entityResponse struct {
	ID  string `json:"id"`
	Doc any    `json:"doc"`
}

// putEntity converts a typed entity to its document form and stores it.
func (a *App) putEntity(r *http.Request, collection, key string, entity any) error {
	doc, err := models.ToDoc(entity)
	if err != nil {
		return err
	}
	return a.store.Put(r.Context(), collection, key, doc)
}

// getEntity loads a document by the {id} path variable into the given entity
// and writes it as JSON, or 404 when absent.
func (a *App) getEntity(w http.ResponseWriter, r *http.Request, collection string, entity any) {
	key := mux.Vars(r)["id"]

	doc, err := a.store.Get(r.Context(), collection, key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err := models.FromDoc(doc, entity); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entityResponse{ID: key, Doc: entity})
}

// listEntities writes the documents in a collection matching a field filter.
func (a *App) listEntities(w http.ResponseWriter, r *http.Request, collection, field, value string) {
	entries, err := a.store.ListWhere(r.Context(), collection, field, value)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entriesResponse(entries))
}

func entriesResponse(entries []docstore.Entry) []entityResponse {
	out := make([]entityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entityResponse{ID: e.Key, Doc: e.Doc})
	}
	return out
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends a JSON error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
