// Package remediate implements the bounded remediation state machine:
// probe, pick at most one repair by priority, re-probe, repeat up to
// maxPasses. The priority table is plain data (priority.go), so "at most
// one REBUILD_DB per run" is a guard in the executor rather than something
// re-derived from the transcript.
package remediate

import (
	"time"

	"github.com/prplanit/rpmdoctor/probe"
	"github.com/prplanit/rpmdoctor/supervisor"
)

// ActionKind names a single repair.
type ActionKind string

const (
	RecoverDB   ActionKind = "RECOVER_DB"
	RebuildDB   ActionKind = "REBUILD_DB"
	CleanYumTx  ActionKind = "CLEAN_YUM_TX"
	KillHolders ActionKind = "KILL_HOLDERS"
	Noop        ActionKind = "NOOP"
)

// Status is the final classification of a run.
type Status string

const (
	OK         Status = "OK"
	Remediated Status = "REMEDIATED"
	Partial    Status = "PARTIAL"
	Failed     Status = "FAILED"
)

// RepairAction records one repair attempt within a pass.
type RepairAction struct {
	Action        ActionKind
	AttemptIndex  int
	Result        *supervisor.CommandResult
	BecameHealthy *bool
	Simulated     bool
	Blocked       string // e.g. "BLOCKED_BY_LOCK", set instead of running
}

// PassRecord is one probe→repair→reprobe triple.
type PassRecord struct {
	SymptomObserved   probe.Symptom
	RepairsApplied    []RepairAction
	PostRepairSymptom probe.Symptom
}

// Transcript is the full, append-only record of one run.
type Transcript struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Passes       []PassRecord
	Status       Status
	RebuildsUsed int
	DeadlineHit  bool
}

// Duration returns the wall-clock time the run took.
func (t *Transcript) Duration() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}
