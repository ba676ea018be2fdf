// Package probe wraps the external rpm/db4/yum binaries with typed
// operations that each return a classified Symptom. Classification is a
// pure function of exit code and stderr/stdout (see classify.go), so it
// is deterministic and unit-testable against recorded CommandResult
// fixtures without shelling out to real binaries.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prplanit/rpmdoctor/supervisor"
)

// Timeouts holds the per-operation deadlines from spec.md Table A.
type Timeouts struct {
	Query   time.Duration
	Recover time.Duration
	Rebuild time.Duration
	Verify  time.Duration
	Yum     time.Duration
}

// Probe wraps the external RPM/db4/yum tools for one database.
type Probe struct {
	Sup *supervisor.Supervisor

	DBPath  string
	YumPath string

	RPMBin     string
	RecoverBin string
	VerifyBin  string
	YumBin     string

	Timeouts Timeouts

	MinExpectedPackages int
	IndexSampleSize     int

	Classifiers []classifier

	// ExperimentalPackageCleanup gates --removenewestdupes on the yum
	// cleanup call (spec.md §9's disabled-by-default feature flag).
	ExperimentalPackageCleanup bool
}

// tableFiles lists the db4 table files in dbPath: regular files whose
// basename starts with an uppercase letter (Packages, Name, Providename,
// ...), per spec.md §4.3.
func (p *Probe) tableFiles() ([]string, error) {
	entries, err := os.ReadDir(p.DBPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.DBPath, err)
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" {
			continue
		}
		if r := rune(name[0]); r < 'A' || r > 'Z' {
			continue
		}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// ProbeQuery runs `rpm -qa --dbpath=<dbPath>` and classifies the outcome.
func (p *Probe) ProbeQuery(ctx context.Context) (Symptom, *supervisor.CommandResult) {
	argv := []string{p.RPMBin, "-qa", "--dbpath=" + p.DBPath}
	result, err := p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Query})
	if err != nil {
		return unknown(err.Error()), nil
	}

	if result.TerminatedByUs {
		return Symptom{Kind: QueryHung}, result
	}

	lines := nonBlankLines(result.Stdout)

	if !result.Success() {
		sym := classify(p.Classifiers, "rpm", result.Stderr)
		if sym.Kind == Unknown {
			sym.Raw = string(result.Stderr)
		}
		return sym, result
	}

	if len(lines) == 0 {
		return Symptom{Kind: QueryEmpty, Expected: 1, Got: 0}, result
	}
	if len(lines) < p.MinExpectedPackages {
		return Symptom{Kind: QueryShort, Expected: int64(p.MinExpectedPackages), Got: int64(len(lines))}, result
	}
	return healthy(), result
}

// ProbeTables runs db_verify over every db4 table file in dbPath. The
// first corrupt or missing table wins, per spec.md's first-match rule.
func (p *Probe) ProbeTables(ctx context.Context) (Symptom, *supervisor.CommandResult) {
	tables, err := p.tableFiles()
	if err != nil {
		return unknown(err.Error()), nil
	}

	hasPackages := false
	for _, t := range tables {
		if t == "Packages" {
			hasPackages = true
		}
	}
	if !hasPackages {
		return Symptom{Kind: TableMissing, Table: "Packages"}, nil
	}

	for _, t := range tables {
		argv := []string{p.VerifyBin, filepath.Join(p.DBPath, t)}
		result, err := p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Verify})
		if err != nil {
			return unknown(err.Error()), nil
		}
		if !result.Success() {
			return Symptom{Kind: TableCorrupt, Table: t, Detail: string(result.Stderr)}, result
		}
	}
	return healthy(), nil
}

// ProbeIndexConsistency queries every package name from the primary index
// and attempts a per-package lookup for a bounded sample, so the probe's
// cost does not grow with database size.
func (p *Probe) ProbeIndexConsistency(ctx context.Context) (Symptom, *supervisor.CommandResult) {
	argv := []string{p.RPMBin, "-qa", "--dbpath=" + p.DBPath, "--qf", "%{NAME}\n"}
	listResult, err := p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Query})
	if err != nil {
		return unknown(err.Error()), nil
	}
	if !listResult.Success() {
		return classify(p.Classifiers, "rpm", listResult.Stderr), listResult
	}

	names := nonBlankLines(listResult.Stdout)
	sample := names
	if len(sample) > p.IndexSampleSize {
		sample = sample[:p.IndexSampleSize]
	}

	var failing []string
	var last *supervisor.CommandResult
	for _, name := range sample {
		argv := []string{p.RPMBin, "-q", "--dbpath=" + p.DBPath, name}
		result, err := p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Query})
		if err != nil {
			continue
		}
		last = result
		if !result.Success() {
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		return Symptom{Kind: IndexInconsistent, Detail: strings.Join(failing, ", "), Count: int64(len(failing))}, last
	}
	return healthy(), last
}

// ProbeYumTransactions enumerates transaction-* files under yumPath; any
// present is a stale yum transaction per spec.md §4.3.
func (p *Probe) ProbeYumTransactions() (Symptom, error) {
	matches, err := filepath.Glob(filepath.Join(p.YumPath, "transaction-*"))
	if err != nil {
		return unknown(err.Error()), err
	}
	if len(matches) == 0 {
		return healthy(), nil
	}
	return Symptom{Kind: StaleYumTransaction, Count: int64(len(matches))}, nil
}

// RecoverDB runs `db_recover -v` with CWD set to dbPath.
func (p *Probe) RecoverDB(ctx context.Context) (*supervisor.CommandResult, error) {
	argv := []string{p.RecoverBin, "-v"}
	return p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Recover, Dir: p.DBPath})
}

// RebuildDB runs `rpm --rebuilddb --dbpath=<dbPath>` with the extended
// rebuild timeout.
func (p *Probe) RebuildDB(ctx context.Context) (*supervisor.CommandResult, error) {
	argv := []string{p.RPMBin, "--rebuilddb", "--dbpath=" + p.DBPath}
	return p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Rebuild})
}

// CleanYumTransactions runs yum-complete-transaction --cleanup-only (or
// the configured binary, e.g. a dnf equivalent). When
// ExperimentalPackageCleanup is set it also passes --removenewestdupes,
// the experimental duplicate-package removal spec.md §9 leaves behind as
// a disabled-by-default flag.
func (p *Probe) CleanYumTransactions(ctx context.Context) (*supervisor.CommandResult, error) {
	argv := []string{p.YumBin, "--cleanup-only"}
	if p.ExperimentalPackageCleanup {
		argv = append(argv, "--removenewestdupes")
	}
	return p.Sup.Run(ctx, argv, supervisor.Options{Timeout: p.Timeouts.Yum})
}

func nonBlankLines(out []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
