package istri

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server and blocks until the context is cancelled or a
// fatal server error occurs. On shutdown, active requests get up to 5
// seconds to complete.
//
// Endpoints:
//
//	GET    /api/health                          - Service health
//	POST   /api/auth/signup                     - Register an account and allocate its identifier
//	GET    /api/users/{id}                      - Get profile by human identifier
//	DELETE /api/users/{id}                      - Delete account, profile, and mapping
//	GET    /api/resolve/external/{externalId}   - Resolve provider UID to human identifier
//	GET    /api/resolve/human/{humanId}         - Resolve human identifier to provider UID
//	POST   /api/orders                          - Place an order
//	GET    /api/orders/{id}                     - Get order
//	GET    /api/users/{id}/orders               - List a customer's orders
//	POST   /api/disputes                        - Raise a dispute
//	GET    /api/disputes/{id}                   - Get dispute
//	POST   /api/messages                        - Send a message
//	GET    /api/users/{id}/messages             - List messages received by an account
//	POST   /api/users/{id}/addresses            - Add an address
//	GET    /api/users/{id}/addresses            - List addresses
//	GET    /api/admin/migration/status          - Old/new format classification
//	POST   /api/admin/migration/run             - Trigger the identifier migration
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.Router()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Str("backend", a.config.Backend).Msg("starting istri server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Router builds the HTTP route table. Exposed separately so tests can mount
// it on an httptest server.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/auth/signup", a.handleSignUp).Methods("POST")

	api.HandleFunc("/users/{id}", a.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}", a.handleDeleteUser).Methods("DELETE")
	api.HandleFunc("/resolve/external/{externalId}", a.handleResolveExternal).Methods("GET")
	api.HandleFunc("/resolve/human/{humanId}", a.handleResolveHuman).Methods("GET")

	api.HandleFunc("/orders", a.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", a.handleGetOrder).Methods("GET")
	api.HandleFunc("/users/{id}/orders", a.handleListOrders).Methods("GET")

	api.HandleFunc("/disputes", a.handleCreateDispute).Methods("POST")
	api.HandleFunc("/disputes/{id}", a.handleGetDispute).Methods("GET")

	api.HandleFunc("/messages", a.handleCreateMessage).Methods("POST")
	api.HandleFunc("/users/{id}/messages", a.handleListMessages).Methods("GET")

	api.HandleFunc("/users/{id}/addresses", a.handleCreateAddress).Methods("POST")
	api.HandleFunc("/users/{id}/addresses", a.handleListAddresses).Methods("GET")

	api.HandleFunc("/admin/migration/status", a.handleMigrationStatus).Methods("GET")
	api.HandleFunc("/admin/migration/run", a.handleMigrationRun).Methods("POST")

	return router
}
