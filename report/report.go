// Package report turns a remediation transcript into the three outward
// forms rpmdoctor produces: a console summary, an optional JSON file for
// downstream tooling, and the process exit code.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prplanit/rpmdoctor/config"
	"github.com/prplanit/rpmdoctor/metrics"
	"github.com/prplanit/rpmdoctor/notify"
	"github.com/prplanit/rpmdoctor/output"
	"github.com/prplanit/rpmdoctor/probe"
	"github.com/prplanit/rpmdoctor/remediate"
)

// Exit codes, spec.md §6.
const (
	ExitOK            = 0
	ExitPartial       = 1
	ExitFailed        = 2
	ExitConfigError   = 64
	ExitMissingBinary = 65
)

// jsonSummary is the on-disk shape of --json-summary. Deliberately a plain
// struct marshaled with encoding/json: this is an internal record with no
// external schema to match, so a schema-aware marshaler would buy nothing.
type jsonSummary struct {
	RunID        string            `json:"run_id"`
	Status       string            `json:"status"`
	StartedAt    string            `json:"started_at"`
	FinishedAt   string            `json:"finished_at"`
	DurationSecs float64           `json:"duration_seconds"`
	DeadlineHit  bool              `json:"deadline_hit"`
	RebuildsUsed int               `json:"rebuilds_used"`
	Passes       []jsonPassSummary `json:"passes"`
}

type jsonPassSummary struct {
	SymptomObserved   string              `json:"symptom_observed"`
	RepairsApplied    []jsonRepairSummary `json:"repairs_applied"`
	PostRepairSymptom string              `json:"post_repair_symptom"`
}

type jsonRepairSummary struct {
	Action    string `json:"action"`
	Attempt   int    `json:"attempt_index"`
	Blocked   string `json:"blocked,omitempty"`
	Simulated bool   `json:"simulated"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// Finalize prints the console summary, writes --json-summary if configured,
// fires the Slack notifier and metrics push, and returns the process exit
// code for the transcript's terminal status.
func Finalize(cfg *config.Config, t *remediate.Transcript) int {
	printConsole(t)

	if cfg.JSONSummaryPath != "" {
		if err := writeJSON(cfg.JSONSummaryPath, t); err != nil {
			config.ErrorLog("writing --json-summary: %v", err)
		}
	}

	if n := notify.New(cfg.SlackWebhook); n != nil {
		if err := n.Notify(notify.RunSummary{
			RunID:         t.RunID,
			Status:        string(t.Status),
			Passes:        len(t.Passes),
			RepairActions: repairActionNames(t),
			DeadlineHit:   t.DeadlineHit,
		}); err != nil {
			config.WarnLog("slack notification failed: %v", err)
		}
	}

	for _, pass := range t.Passes {
		for _, r := range pass.RepairsApplied {
			metrics.RecordRepairAction(string(r.Action), r.Blocked)
		}
	}
	metrics.RecordRun(string(t.Status), len(t.Passes), t.RebuildsUsed, t.Duration().Seconds())
	if err := metrics.Push(cfg.MetricsPushgateway, "rpmdoctor", t.RunID); err != nil {
		config.WarnLog("metrics push failed: %v", err)
	}

	return exitCodeFor(t.Status)
}

// ConfigErrorExit prints a config-time failure and returns the right exit
// code, distinguishing a missing required binary (65) from any other
// configuration problem (64).
func ConfigErrorExit(err error) int {
	fmt.Fprintf(os.Stderr, "rpmdoctor: %v\n", err)
	var missing *config.MissingBinaryError
	if errors.As(err, &missing) {
		return ExitMissingBinary
	}
	return ExitConfigError
}

func exitCodeFor(status remediate.Status) int {
	switch status {
	case remediate.OK, remediate.Remediated:
		return ExitOK
	case remediate.Partial:
		return ExitPartial
	default:
		return ExitFailed
	}
}

func repairActionNames(t *remediate.Transcript) []string {
	var names []string
	for _, pass := range t.Passes {
		for _, r := range pass.RepairsApplied {
			if r.Action == remediate.Noop {
				continue
			}
			names = append(names, string(r.Action))
		}
	}
	return names
}

func printConsole(t *remediate.Transcript) {
	output.Banner(fmt.Sprintf("rpmdoctor run %s", t.RunID))
	output.Field("Status", string(t.Status))
	output.Field("Passes", fmt.Sprintf("%d", len(t.Passes)))
	output.Field("Duration", t.Duration().String())
	if t.DeadlineHit {
		output.Warn("overall deadline was hit before the run converged")
	}

	for i, pass := range t.Passes {
		output.Section(fmt.Sprintf("Pass %d", i+1))
		output.Field("Symptom", symptomLine(pass.SymptomObserved))
		for _, r := range pass.RepairsApplied {
			switch {
			case r.Blocked != "":
				output.Warn("%s blocked: %s", r.Action, r.Blocked)
			case r.Simulated:
				output.Bullet(1, "%s (dry-run, not executed)", r.Action)
			default:
				output.Bullet(1, "%s", r.Action)
			}
		}
		output.Field("Result", symptomLine(pass.PostRepairSymptom))
	}

	switch t.Status {
	case remediate.OK:
		output.Success("database is healthy")
	case remediate.Remediated:
		output.Success("database repaired and healthy")
	case remediate.Partial:
		output.Warn("partial progress; manual follow-up recommended")
	case remediate.Failed:
		output.Fail("unable to remediate")
	}
	output.Complete("rpmdoctor finished")
}

func symptomLine(s probe.Symptom) string {
	if s.Kind == probe.Healthy {
		return "HEALTHY"
	}
	line := string(s.Kind)
	if s.Table != "" {
		line += " table=" + s.Table
	}
	if s.Count > 0 {
		line += fmt.Sprintf(" count=%d", s.Count)
	}
	return line
}

func writeJSON(path string, t *remediate.Transcript) error {
	summary := jsonSummary{
		RunID:        t.RunID,
		Status:       string(t.Status),
		StartedAt:    t.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FinishedAt:   t.FinishedAt.Format("2006-01-02T15:04:05Z07:00"),
		DurationSecs: t.Duration().Seconds(),
		DeadlineHit:  t.DeadlineHit,
		RebuildsUsed: t.RebuildsUsed,
	}

	for _, pass := range t.Passes {
		jp := jsonPassSummary{
			SymptomObserved:   string(pass.SymptomObserved.Kind),
			PostRepairSymptom: string(pass.PostRepairSymptom.Kind),
		}
		for _, r := range pass.RepairsApplied {
			jr := jsonRepairSummary{
				Action:    string(r.Action),
				Attempt:   r.AttemptIndex,
				Blocked:   r.Blocked,
				Simulated: r.Simulated,
			}
			if r.Result != nil {
				code := r.Result.ExitCode
				jr.ExitCode = &code
			}
			jp.RepairsApplied = append(jp.RepairsApplied, jr)
		}
		summary.Passes = append(summary.Passes, jp)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
