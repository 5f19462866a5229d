package migration

import "github.com/Gokkul-M/istri-sub000/pkg/models"

// Stage tracks how far an individual identity has progressed through the
// migration pipeline. The stage record survives crashes, so a re-run resumes
// an identity exactly where the prior run left it instead of only retrying
// never-started records.
type Stage string

const (
	StageAllocated           Stage = "allocated"
	StageReferencesRewritten Stage = "references_rewritten"
	StageAddressesMoved      Stage = "addresses_moved"
	StageCompleted           Stage = "completed"
)

var stageRank = map[Stage]int{
	StageAllocated:           1,
	StageReferencesRewritten: 2,
	StageAddressesMoved:      3,
	StageCompleted:           4,
}

func (s Stage) atLeast(other Stage) bool {
	return stageRank[s] >= stageRank[other]
}

// stateRecord is the per-identity migration_state document, keyed by the old
// external identifier.
type stateRecord struct {
	NewID     string `json:"new_id"`
	Role      string `json:"role"`
	Stage     Stage  `json:"stage"`
	UpdatedAt string `json:"updated_at"`
}

// MappedUser records one old→new identifier substitution performed by a run.
type MappedUser struct {
	OldID string      `json:"old_id"`
	NewID string      `json:"new_id"`
	Role  models.Role `json:"role"`
}

// Failure records one error encountered during a run. Per-record failures
// name the identity; fan-out failures name the collection being rewritten.
type Failure struct {
	OldID   string `json:"old_id,omitempty"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Result is the outcome of one migration run. Success is false whenever any
// failure was recorded, even if other identities migrated cleanly.
type Result struct {
	Success       bool         `json:"success"`
	MigratedCount int          `json:"migrated_count"`
	Mappings      []MappedUser `json:"mappings"`
	Errors        []Failure    `json:"errors"`
}

func (r *Result) fail(oldID, stage string, err error) {
	r.Success = false
	r.Errors = append(r.Errors, Failure{OldID: oldID, Stage: stage, Message: err.Error()})
}

// Status is the read-only classification returned by CheckStatus.
type Status struct {
	NeedsMigration  bool `json:"needs_migration"`
	OldFormatUsers  int  `json:"old_format_users"`
	NewFormatUsers  int  `json:"new_format_users"`
	PendingIdentity int  `json:"pending_identities,omitempty"`
}
