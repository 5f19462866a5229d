package istri

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/Gokkul-M/istri-sub000/pkg/auth"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore/memory"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore/postgres"
	"github.com/Gokkul-M/istri-sub000/pkg/docstore/surreal"
	"github.com/Gokkul-M/istri-sub000/pkg/identity"
	"github.com/Gokkul-M/istri-sub000/pkg/logger"
	"github.com/Gokkul-M/istri-sub000/pkg/migration"
)

// Store backends selectable through the -backend flag.
const (
	BackendMemory   = "memory"
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	Backend string

	SurrealURL  string
	SurrealNS   string
	SurrealDB   string
	SurrealUser string
	SurrealPass string

	PostgresDSN string

	// SnapshotPath persists the memory backend across restarts. Ignored by
	// the other backends.
	SnapshotPath string

	ServerPort string
	LogPath    string
}

// App holds the wired application state.
type App struct {
	store       docstore.Store
	service     *identity.Service
	coordinator *migration.Coordinator
	config      *Config
	log         zerolog.Logger
}

// New builds the application for the configured backend.
func New(ctx context.Context, config *Config) (*App, error) {
	log, err := logger.New().ToPath(config.LogPath).Make()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	var store docstore.Store
	switch config.Backend {
	case BackendSurreal:
		store, err = surreal.New(ctx, surreal.Config{
			URL:       config.SurrealURL,
			Namespace: config.SurrealNS,
			Database:  config.SurrealDB,
			Username:  config.SurrealUser,
			Password:  config.SurrealPass,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
		}
		log.Info().Str("url", config.SurrealURL).Msg("connected to SurrealDB")
	case BackendPostgres:
		store, err = postgres.New(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
	case BackendMemory:
		mem := memory.New()
		if config.SnapshotPath != "" {
			if err := loadSnapshot(mem, config.SnapshotPath); err != nil {
				return nil, fmt.Errorf("loading snapshot %s: %w", config.SnapshotPath, err)
			}
		}
		store = mem
		log.Info().Msg("using in-memory store")
	default:
		return nil, fmt.Errorf("unknown backend %q", config.Backend)
	}

	return NewWithStore(config, store, auth.NewFakeProvider(), log), nil
}

// NewWithStore wires the application around an existing store and auth
// provider. Tests use it to run against the in-memory store directly.
func NewWithStore(config *Config, store docstore.Store, provider auth.Provider, log zerolog.Logger) *App {
	alloc := identity.NewAllocator(store)
	mappings := identity.NewMappingStore(store)
	return &App{
		store:       store,
		service:     identity.NewService(store, alloc, mappings, provider, log),
		coordinator: migration.NewCoordinator(store, alloc, mappings, log),
		config:      config,
		log:         log,
	}
}

// Close releases the store connection. For the memory backend with a
// snapshot path configured, the store contents are written out first.
func (a *App) Close() error {
	if mem, ok := a.store.(*memory.Store); ok && a.config.SnapshotPath != "" {
		if err := saveSnapshot(mem, a.config.SnapshotPath); err != nil {
			a.log.Error().Err(err).Str("path", a.config.SnapshotPath).Msg("snapshot write failed")
		}
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// loadSnapshot restores a memory store from a snapshot file if one exists.
func loadSnapshot(mem *memory.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return mem.ReadSnapshot(f)
}

// saveSnapshot writes the memory store contents to the snapshot file.
func saveSnapshot(mem *memory.Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mem.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Store exposes the underlying store, useful for tests and seeds.
func (a *App) Store() docstore.Store { return a.store }

// getEnv reads an environment variable with a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
