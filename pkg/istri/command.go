package istri

// Command is a discrete application operation selected on the command line.
// Each implementation carries the options of its operation; the application
// layer routes execution through [Main].
type Command interface {
	// Name returns the command identifier used for routing.
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// StatusCommand reports how many profiles still use old-format keys without
// writing anything. Operators run it to decide whether migrate is needed.
type StatusCommand struct{}

func (c *StatusCommand) Name() string { return "status" }

// MigrateCommand runs the one-time identifier migration: allocating
// human-readable identifiers for legacy profiles, rewriting references, and
// relocating address subcollections. Safe to re-run; a run over a migrated
// dataset is a no-op.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }
