// Package metrics publishes one Prometheus push per rpmdoctor run. There is
// no scrape target for a cron job, so metrics go out via the pushgateway
// client instead of an exposed /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "rpmdoctor"

var registry = prometheus.NewRegistry()

var (
	RunStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_status",
		Help:      "Result of the last run: 0=OK, 1=REMEDIATED, 2=PARTIAL, 3=FAILED.",
	})

	PassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "passes_total",
		Help:      "Total number of probe/repair passes executed.",
	})

	RepairActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repair_actions_total",
		Help:      "Total number of repair actions dispatched, by action.",
	}, []string{"action", "blocked"})

	RunDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of the last run.",
	})

	RebuildsUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rebuilds_used",
		Help:      "Number of REBUILD_DB invocations dispatched in the last run.",
	})
)

func init() {
	registry.MustRegister(
		RunStatus,
		PassesTotal,
		RepairActionsTotal,
		RunDurationSeconds,
		RebuildsUsed,
	)
}

// statusCode maps a remediate.Status string to the run_status gauge value.
// Defined here rather than imported from remediate to avoid a dependency
// cycle; report owns translating the real Status value.
func statusCode(status string) float64 {
	switch status {
	case "OK":
		return 0
	case "REMEDIATED":
		return 1
	case "PARTIAL":
		return 2
	case "FAILED":
		return 3
	default:
		return 3
	}
}

// RecordRun fills in the gauges/counters for one completed run.
func RecordRun(status string, passes, rebuildsUsed int, durationSeconds float64) {
	RunStatus.Set(statusCode(status))
	PassesTotal.Add(float64(passes))
	RunDurationSeconds.Set(durationSeconds)
	RebuildsUsed.Set(float64(rebuildsUsed))
}

// RecordRepairAction increments the per-action counter. blocked is the
// RepairAction.Blocked reason, or "" if the action actually ran.
func RecordRepairAction(action, blocked string) {
	RepairActionsTotal.With(prometheus.Labels{"action": action, "blocked": blocked}).Inc()
}

// Push ships the registry to a pushgateway. job identifies the job group in
// the gateway UI; runID becomes the "run_id" grouping key so consecutive
// runs don't overwrite each other's last-pushed values. gatewayURL empty is
// a no-op: metrics push is optional, configured via --metrics-pushgateway.
func Push(gatewayURL, job, runID string) error {
	if gatewayURL == "" {
		return nil
	}
	return push.New(gatewayURL, job).
		Grouping("run_id", runID).
		Gatherer(registry).
		Push()
}
