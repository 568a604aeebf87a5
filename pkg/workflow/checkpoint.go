package workflow

import "context"

// Checkpoint is the durable snapshot written at every node boundary.
// Append-only; cleanup (keep-latest-N) is handled by pkg/retention, not
// by this package.
type Checkpoint struct {
	ExecutionID string `json:"execution_id"`
	StepNo      int    `json:"step_no"`
	NodeID      string `json:"node_id"`
	State       State  `json:"state"`
	StateHash   string `json:"state_hash"`
}

// CheckpointStore persists and retrieves checkpoints for an execution.
// Defined narrow to the runtime's own needs, the same way L8's
// consent.Store and L9's retention.Archiver are — no generic
// checkpoint-storage abstraction pre-exists in the codebase.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Latest(ctx context.Context, executionID string) (*Checkpoint, error)
}

// KillSwitch reports whether a named agent type is currently allowed to
// run. Implemented by pkg/killswitch.Manager; defined here narrow to
// decouple the runtime from that package's Redis-backed implementation.
type KillSwitch interface {
	IsActive(ctx context.Context, agentType string) (bool, error)
}

// DivergenceInfo explains why a replay attempt could not resume: the
// recomputed hash of the resumed-from checkpoint's state didn't match the
// stored hash, meaning the stored state blob has been tampered with or
// corrupted. Mirrors pkg/replay/engine.go's DivergenceInfo shape.
type DivergenceInfo struct {
	StepNumber int
	Reason     string
}

func (d *DivergenceInfo) Error() string {
	return d.Reason
}
