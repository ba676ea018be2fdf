package remediate

import "github.com/prplanit/rpmdoctor/probe"

// reprobeKind names which probes to re-run after a repair, so the
// executor doesn't need a bespoke branch per symptom.
type reprobeKind int

const (
	reprobeQuery reprobeKind = iota
	reprobeTablesAndQuery
	reprobeAll
	reprobeYum
)

// repairPlan is the data-driven priority-table entry for one symptom:
// which repairs to apply, in order, and what to re-check afterward. This
// makes "at most one REBUILD_DB per run" a guard the executor checks
// before dispatching RebuildDB, not something re-derived from the
// transcript after the fact.
type repairPlan struct {
	actions   []ActionKind
	stopIfBad bool // for QUERY_EMPTY/QUERY_SHORT: only escalate to REBUILD_DB if RECOVER_DB didn't fix it
	reprobe   reprobeKind
}

// priority is the symptom → repair-plan table from spec.md §4.4,
// expressed as data rather than a chain of branches.
var priority = map[probe.SymptomKind]repairPlan{
	probe.QueryHung:           {actions: []ActionKind{KillHolders, RecoverDB}, reprobe: reprobeQuery},
	probe.DBNeedsRecover:      {actions: []ActionKind{RecoverDB, KillHolders}, reprobe: reprobeQuery},
	probe.TableCorrupt:        {actions: []ActionKind{RebuildDB, KillHolders}, reprobe: reprobeTablesAndQuery},
	probe.TableMissing:        {actions: []ActionKind{RebuildDB, KillHolders}, reprobe: reprobeTablesAndQuery},
	probe.IndexInconsistent:   {actions: []ActionKind{RebuildDB}, reprobe: reprobeAll},
	probe.QueryEmpty:          {actions: []ActionKind{RecoverDB, RebuildDB}, stopIfBad: true, reprobe: reprobeQuery},
	probe.QueryShort:          {actions: []ActionKind{RecoverDB, RebuildDB}, stopIfBad: true, reprobe: reprobeQuery},
	probe.StaleYumTransaction: {actions: []ActionKind{CleanYumTx}, reprobe: reprobeYum},
}
