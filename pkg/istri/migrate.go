package istri

import (
	"context"
	"fmt"

	"github.com/Gokkul-M/istri-sub000/pkg/migration"
)

// Status runs the read-only migration check and logs the classification.
func (a *App) Status(ctx context.Context) (*migration.Status, error) {
	status, err := a.coordinator.CheckStatus(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Info().
		Bool("needs_migration", status.NeedsMigration).
		Int("old_format_users", status.OldFormatUsers).
		Int("new_format_users", status.NewFormatUsers).
		Int("pending_identities", status.PendingIdentity).
		Msg("migration status")
	return status, nil
}

// Migrate runs the one-time identifier migration and logs the outcome. The
// run itself is partial-failure tolerant; Migrate only returns an error when
// the run could not start at all. A run that finished with per-record errors
// is reported through the logged result, matching its operator-facing role.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	status, err := a.Status(ctx)
	if err != nil {
		return fmt.Errorf("checking migration status: %w", err)
	}
	if !status.NeedsMigration {
		a.log.Info().Msg("nothing to migrate")
		return nil
	}

	result, err := a.coordinator.Run(ctx)
	if err != nil {
		return fmt.Errorf("running migration: %w", err)
	}
	for _, m := range result.Mappings {
		a.log.Info().Str("old_id", m.OldID).Str("new_id", m.NewID).Str("role", string(m.Role)).Msg("migrated")
	}
	for _, f := range result.Errors {
		a.log.Error().Str("old_id", f.OldID).Str("stage", f.Stage).Msg(f.Message)
	}
	if !result.Success {
		a.log.Warn().Int("errors", len(result.Errors)).Msg("migration finished with errors; re-run after resolving them")
	}
	return nil
}
