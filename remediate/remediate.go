package remediate

import (
	"context"
	"syscall"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/prplanit/rpmdoctor/handles"
	"github.com/prplanit/rpmdoctor/probe"
)

// Options bundles everything the state machine needs that isn't already
// carried by the Probe/Inspector it's given.
type Options struct {
	MaxPasses              int
	CheckTables            bool
	VerifyTables           bool
	CheckIndexConsistency  bool
	CleanupYumTransactions bool
	KillStuck              bool
	AllowMultipleRebuilds  bool
	MinFreePct             int
	KillSignal             syscall.Signal
	DryRun                 bool
	OverallTimeout         time.Duration
	DBPath                 string
}

// Machine runs the bounded probe→repair loop.
type Machine struct {
	Probe     *probe.Probe
	Inspector *handles.Inspector
	Opts      Options

	rebuildsUsed int
}

// Run executes the state machine until a pass is healthy or maxPasses is
// exhausted (or the overall deadline fires). It always runs every pass up
// to maxPasses — "no progress between passes" is not an early-exit
// condition, only the signal used to pick PARTIAL vs FAILED once maxPasses
// is exhausted.
func (m *Machine) Run(ctx context.Context) (*Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Opts.OverallTimeout)
	defer cancel()

	t := &Transcript{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	anyRepairApplied := false
	var prevSymptoms []probe.SymptomKind

	for pass := 0; pass < m.Opts.MaxPasses; pass++ {
		symptom := m.runProbes(ctx)
		if ctx.Err() != nil {
			t.DeadlineHit = true
			t.Status = Failed
			break
		}

		if symptom.Kind == probe.Healthy {
			if anyRepairApplied {
				t.Status = Remediated
			} else {
				t.Status = OK
			}
			break
		}

		record := PassRecord{SymptomObserved: symptom}
		plan, known := priority[symptom.Kind]
		if !known {
			record.RepairsApplied = []RepairAction{{Action: Noop}}
			record.PostRepairSymptom = symptom
			t.Passes = append(t.Passes, record)
			prevSymptoms = append(prevSymptoms, symptom.Kind)
			continue
		}

		repairs, post := m.applyPlan(ctx, plan, symptom)
		record.RepairsApplied = repairs
		record.PostRepairSymptom = post
		t.Passes = append(t.Passes, record)

		if len(repairs) > 0 && repairs[0].Action != Noop {
			anyRepairApplied = true
		}

		if ctx.Err() != nil {
			t.DeadlineHit = true
			t.Status = Failed
			break
		}

		if post.Kind == probe.Healthy {
			t.Status = Remediated
			break
		}

		prevSymptoms = append(prevSymptoms, post.Kind)
	}

	if t.Status == "" {
		// maxPasses exhausted without a healthy pass. PARTIAL requires both
		// that some repair was attempted and that the observed symptom was
		// still changing pass to pass; a run stuck on the same symptom with
		// nothing left to try is FAILED.
		t.Status = Partial
		stuck := len(prevSymptoms) >= 2 &&
			noProgress(prevSymptoms[:len(prevSymptoms)-1], prevSymptoms[len(prevSymptoms)-1])
		if !anyRepairApplied || stuck {
			t.Status = Failed
		}
	}

	t.RebuildsUsed = m.rebuildsUsed
	t.FinishedAt = time.Now()
	return t, nil
}

// noProgress reports whether kind repeats the immediately preceding
// symptom, i.e. the symptom set did not change between passes.
func noProgress(prev []probe.SymptomKind, kind probe.SymptomKind) bool {
	if len(prev) == 0 {
		return false
	}
	return cmp.Equal(prev[len(prev)-1], kind)
}

// runProbes walks the fixed probe order from spec.md §4.4: query, tables
// (if enabled), index consistency (if enabled), yum transactions. The
// first non-HEALTHY classification wins.
func (m *Machine) runProbes(ctx context.Context) probe.Symptom {
	sym, _ := m.Probe.ProbeQuery(ctx)
	if sym.Kind != probe.Healthy {
		return sym
	}

	if m.Opts.CheckTables && m.Opts.VerifyTables {
		sym, _ = m.Probe.ProbeTables(ctx)
		if sym.Kind != probe.Healthy {
			return sym
		}
	}

	if m.Opts.CheckIndexConsistency {
		sym, _ = m.Probe.ProbeIndexConsistency(ctx)
		if sym.Kind != probe.Healthy {
			return sym
		}
	}

	ySym, err := m.Probe.ProbeYumTransactions()
	if err == nil && ySym.Kind != probe.Healthy {
		return ySym
	}

	return probe.Symptom{Kind: probe.Healthy}
}

// applyPlan executes one priority-table entry's action sequence, honoring
// the "at most one REBUILD_DB per run" and "KILL_HOLDERS always brackets
// REBUILD_DB" invariants, then returns the actions taken plus the symptom
// from the plan's designated reprobe.
func (m *Machine) applyPlan(ctx context.Context, plan repairPlan, symptom probe.Symptom) ([]RepairAction, probe.Symptom) {
	var repairs []RepairAction
	attempt := 0

	dbDirs := []string{m.Opts.DBPath}

	runAction := func(kind ActionKind) RepairAction {
		ra := RepairAction{Action: kind, AttemptIndex: attempt, Simulated: m.Opts.DryRun}
		attempt++

		if m.Opts.DryRun {
			return ra
		}

		switch kind {
		case KillHolders:
			if !m.Opts.KillStuck {
				ra.Blocked = "KILL_STUCK_DISABLED"
				return ra
			}
			kr, err := m.Inspector.Kill(ctx, dbDirs, m.Opts.KillSignal)
			if err != nil {
				ra.Blocked = err.Error()
				return ra
			}
			ok := len(kr.Failed) == 0
			ra.BecameHealthy = &ok
		case RecoverDB:
			if free, ferr := m.Probe.ProbeDiskSpace(m.Opts.MinFreePct); ferr == nil && free.Kind == probe.DiskCritical {
				ra.Blocked = "DISK_CRITICAL"
				return ra
			}
			result, err := m.Probe.RecoverDB(ctx)
			if err == nil {
				ra.Result = result
			}
		case RebuildDB:
			if free, ferr := m.Probe.ProbeDiskSpace(m.Opts.MinFreePct); ferr == nil && free.Kind == probe.DiskCritical {
				ra.Blocked = "DISK_CRITICAL"
				return ra
			}
			result, err := m.Probe.RebuildDB(ctx)
			if err == nil {
				ra.Result = result
			}
		case CleanYumTx:
			locked, lerr := m.Probe.YumLocked(ctx, m.Inspector)
			if lerr == nil && locked {
				ra.Blocked = "BLOCKED_BY_LOCK"
				return ra
			}
			if !m.Opts.CleanupYumTransactions {
				ra.Blocked = "CLEANUP_DISABLED"
				return ra
			}
			result, err := m.Probe.CleanYumTransactions(ctx)
			if err == nil {
				ra.Result = result
			}
		}
		return ra
	}

	rebuildBudgetOK := func() bool {
		return m.canRebuild()
	}

	for _, action := range plan.actions {
		if action == RebuildDB {
			if !rebuildBudgetOK() {
				ra := RepairAction{Action: RebuildDB, AttemptIndex: attempt, Blocked: "REBUILD_BUDGET_EXHAUSTED"}
				attempt++
				repairs = append(repairs, ra)
				continue
			}
			if len(repairs) == 0 || repairs[len(repairs)-1].Action != KillHolders {
				repairs = append(repairs, runAction(KillHolders))
			}
			ra := runAction(RebuildDB)
			repairs = append(repairs, ra)
			if ra.Blocked == "" && ra.Result != nil && ra.Result.Success() {
				m.markRebuildUsed()
			}
			repairs = append(repairs, runAction(KillHolders))
			continue
		}

		repairs = append(repairs, runAction(action))

		if plan.stopIfBad && action == RecoverDB {
			// Fresh probe between repair attempts, never inferred from
			// stale data: decide whether RebuildDB is still needed.
			sym, _ := m.Probe.ProbeQuery(ctx)
			if sym.Kind == probe.Healthy {
				return repairs, sym
			}
		}
	}

	return repairs, m.reprobe(ctx, plan.reprobe)
}

func (m *Machine) reprobe(ctx context.Context, kind reprobeKind) probe.Symptom {
	switch kind {
	case reprobeTablesAndQuery:
		if sym, _ := m.Probe.ProbeTables(ctx); sym.Kind != probe.Healthy {
			return sym
		}
		sym, _ := m.Probe.ProbeQuery(ctx)
		return sym
	case reprobeAll:
		return m.runProbes(ctx)
	case reprobeYum:
		sym, err := m.Probe.ProbeYumTransactions()
		if err != nil {
			return probe.Symptom{Kind: probe.Unknown, Raw: err.Error()}
		}
		return sym
	default: // reprobeQuery
		sym, _ := m.Probe.ProbeQuery(ctx)
		return sym
	}
}

// canRebuild/markRebuildUsed enforce "at most one REBUILD_DB per run"
// (spec.md §8), overridable by AllowMultipleRebuilds.
func (m *Machine) canRebuild() bool {
	if m.Opts.AllowMultipleRebuilds {
		return true
	}
	return m.rebuildsUsed == 0
}

func (m *Machine) markRebuildUsed() {
	m.rebuildsUsed++
}
