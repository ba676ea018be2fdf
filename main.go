package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prplanit/rpmdoctor/config"
	"github.com/prplanit/rpmdoctor/handles"
	"github.com/prplanit/rpmdoctor/probe"
	"github.com/prplanit/rpmdoctor/remediate"
	"github.com/prplanit/rpmdoctor/report"
	"github.com/prplanit/rpmdoctor/supervisor"
)

var cfg = config.Defaults()
var killSignalName string
var ignorePIDs []int

func main() {
	config.InitLogging(false)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rpmdoctor: %v\n", err)
		os.Exit(report.ExitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rpmdoctor",
	Short: "Detect and repair a corrupted RPM (db4) package database",
	Long: `rpmdoctor probes an RPM database for hung queries, corrupt or
missing db4 tables, an inconsistent primary/secondary index, and stale
yum transactions, then applies the least invasive repair that fixes
what it found. It runs once and exits; it is meant to be invoked from
cron or a systemd timer, not left running.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&cfg.DBPath, "dbpath", config.Env("DBPATH", cfg.DBPath), "path to the RPM database directory")
	f.StringVar(&cfg.YumPath, "yumpath", config.Env("YUMPATH", cfg.YumPath), "path to the yum state directory")

	f.StringVar(&cfg.RPMBin, "rpm", config.Env("RPM_BIN", cfg.RPMBin), "path or name of the rpm binary")
	f.StringVar(&cfg.RecoverBin, "db-recover", config.Env("DB_RECOVER_BIN", cfg.RecoverBin), "path or name of db_recover")
	f.StringVar(&cfg.VerifyBin, "db-verify", config.Env("DB_VERIFY_BIN", cfg.VerifyBin), "path or name of db_verify")
	f.StringVar(&cfg.YumBin, "yum", config.Env("YUM_BIN", cfg.YumBin), "path or name of yum-complete-transaction")
	f.StringVar(&cfg.LsofBin, "lsof", config.Env("LSOF_BIN", cfg.LsofBin), "path or name of lsof")

	f.DurationVar(&cfg.TimeoutQuery, "timeout-query", cfg.TimeoutQuery, "timeout for rpm -qa probes")
	f.DurationVar(&cfg.TimeoutRecover, "timeout-recover", cfg.TimeoutRecover, "timeout for db_recover")
	f.DurationVar(&cfg.TimeoutRebuild, "timeout-rebuild", cfg.TimeoutRebuild, "timeout for rpm --rebuilddb")
	f.DurationVar(&cfg.TimeoutVerify, "timeout-verify", cfg.TimeoutVerify, "timeout for db_verify, per table")
	f.DurationVar(&cfg.TimeoutYum, "timeout-yum", cfg.TimeoutYum, "timeout for yum-complete-transaction")
	f.DurationVar(&cfg.TimeoutLsof, "timeout-lsof", cfg.TimeoutLsof, "timeout for lsof")
	f.DurationVar(&cfg.TimeoutOverall, "timeout-overall", cfg.TimeoutOverall, "overall deadline for the whole run")

	f.IntVar(&cfg.MaxPasses, "max-passes", cfg.MaxPasses, "maximum probe/repair passes before giving up")
	f.IntVar(&cfg.MinExpectedPackages, "min-packages", cfg.MinExpectedPackages, "fewer packages than this from rpm -qa is QUERY_SHORT")
	f.IntVar(&cfg.IndexSampleSize, "index-sample-size", cfg.IndexSampleSize, "number of package names sampled for index consistency")
	f.IntVar(&cfg.MinFreePct, "min-free-pct", cfg.MinFreePct, "refuse to recover/rebuild below this free-space percentage")

	f.BoolVar(&cfg.CheckTables, "check-tables", cfg.CheckTables, "verify individual db4 table files")
	f.BoolVar(&cfg.VerifyTables, "verify-tables", cfg.VerifyTables, "run db_verify as part of table checks")
	f.BoolVar(&cfg.CheckIndexConsistency, "check-index-consistency", cfg.CheckIndexConsistency, "sample package names and verify index lookups resolve")
	f.BoolVar(&cfg.RebuildDB, "rebuild-db", cfg.RebuildDB, "allow rpm --rebuilddb as a repair")
	f.BoolVar(&cfg.CleanupYumTransactions, "cleanup-yum-transactions", cfg.CleanupYumTransactions, "allow cleaning stale yum transactions")
	f.BoolVar(&cfg.KillStuck, "kill-stuck", cfg.KillStuck, "allow killing processes holding the database open")
	f.BoolVar(&cfg.AllowMultipleRebuilds, "allow-multiple-rebuilds", cfg.AllowMultipleRebuilds, "permit more than one REBUILD_DB in a single run")
	f.BoolVar(&cfg.ExperimentalPackageCleanup, "experimental-package-cleanup", cfg.ExperimentalPackageCleanup, "(experimental, off by default) remove duplicate newest packages")

	f.StringVar(&killSignalName, "kill-signal", cfg.KillSignal, "signal sent to holders: SIGTERM or SIGKILL")
	f.IntSliceVar(&ignorePIDs, "ignore-pid", nil, "PID to never report or kill (repeatable)")
	f.BoolVar(&cfg.DryRun, "dry-run", config.EnvBool("DRY_RUN", false), "probe and plan repairs without executing them")
	f.StringVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "quiet, info, or debug")
	f.StringVar(&cfg.JSONSummaryPath, "json-summary", config.Env("JSON_SUMMARY", ""), "write a machine-readable run summary to this path")

	f.StringVar(&cfg.ClassifiersPath, "classifiers", config.Env("CLASSIFIERS", ""), "YAML file overriding the default stderr classifier table")
	f.StringVar(&cfg.Schedule, "schedule", config.Env("SCHEDULE", ""), "cron expression, validated and logged only; rpmdoctor never self-schedules")

	f.StringVar(&cfg.SlackWebhook, "slack-webhook", config.EnvRaw("SLACK_WEBHOOK", ""), "Slack incoming webhook URL for PARTIAL/FAILED notifications")
	f.StringVar(&cfg.MetricsPushgateway, "metrics-pushgateway", config.Env("METRICS_PUSHGATEWAY", ""), "Prometheus pushgateway URL")

	f.StringVar(&cfg.ConfigPath, "config", config.Env("CONFIG", ""), "optional YAML config file; flags override its values")
}

func run(cmd *cobra.Command, args []string) error {
	if cfg.ConfigPath != "" {
		fileCfg := cfg
		if err := config.LoadFile(&fileCfg, cfg.ConfigPath); err != nil {
			os.Exit(report.ConfigErrorExit(err))
		}
		mergeFlagOverrides(cmd, &fileCfg)
		cfg = fileCfg
	}

	cfg.KillSignal = killSignalName
	cfg.IgnorePIDs = ignorePIDs

	if cfg.Verbosity == "debug" {
		os.Setenv(config.EnvPrefix+"LOG_LEVEL", "debug")
		config.InitLogging(false)
	}

	if err := config.Validate(&cfg); err != nil {
		os.Exit(report.ConfigErrorExit(err))
	}

	if cfg.Schedule != "" {
		if next, err := config.NextScheduledRun(cfg.Schedule); err == nil {
			config.InfoLog("--schedule %q recognized (informational only); next match would be %s", cfg.Schedule, next.Format(time.RFC3339))
		}
	}

	sig := syscall.SIGKILL
	if cfg.KillSignal == "SIGTERM" {
		sig = syscall.SIGTERM
	}

	classifiers, err := probe.LoadClassifiers(cfg.ClassifiersPath)
	if err != nil {
		os.Exit(report.ConfigErrorExit(err))
	}

	sup := supervisor.Default()
	insp := handles.New(sup, cfg.LsofBin, cfg.TimeoutLsof, 2*time.Second, os.Getpid(), cfg.IgnorePIDs)

	p := &probe.Probe{
		Sup:     sup,
		DBPath:  cfg.DBPath,
		YumPath: cfg.YumPath,

		RPMBin:     cfg.RPMBin,
		RecoverBin: cfg.RecoverBin,
		VerifyBin:  cfg.VerifyBin,
		YumBin:     cfg.YumBin,

		Timeouts: probe.Timeouts{
			Query:   cfg.TimeoutQuery,
			Recover: cfg.TimeoutRecover,
			Rebuild: cfg.TimeoutRebuild,
			Verify:  cfg.TimeoutVerify,
			Yum:     cfg.TimeoutYum,
		},

		MinExpectedPackages: cfg.MinExpectedPackages,
		IndexSampleSize:     cfg.IndexSampleSize,

		Classifiers: classifiers,

		ExperimentalPackageCleanup: cfg.ExperimentalPackageCleanup,
	}

	machine := &remediate.Machine{
		Probe:     p,
		Inspector: insp,
		Opts: remediate.Options{
			MaxPasses:              cfg.MaxPasses,
			CheckTables:            cfg.CheckTables,
			VerifyTables:           cfg.VerifyTables,
			CheckIndexConsistency:  cfg.CheckIndexConsistency,
			CleanupYumTransactions: cfg.CleanupYumTransactions,
			KillStuck:              cfg.KillStuck,
			AllowMultipleRebuilds:  cfg.AllowMultipleRebuilds,
			MinFreePct:             cfg.MinFreePct,
			KillSignal:             sig,
			DryRun:                 cfg.DryRun,
			OverallTimeout:         cfg.TimeoutOverall,
			DBPath:                 cfg.DBPath,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transcript, err := machine.Run(ctx)
	if err != nil {
		return err
	}

	os.Exit(report.Finalize(&cfg, transcript))
	return nil
}

// mergeFlagOverrides copies the values of the flags checked below (--dbpath,
// --yumpath, --rpm, --db-recover, --db-verify, --yum, --lsof, --max-passes,
// --dry-run, --slack-webhook, --metrics-pushgateway, --json-summary) back
// onto the config loaded from --config when they were set explicitly, so for
// these flags the precedence is flags > file > env defaults. Any other flag
// set explicitly does not override a value present in the file.
// --kill-signal and --ignore-pid are applied in run after this merge and
// always replace the file's kill_signal and ignore_pids.
func mergeFlagOverrides(cmd *cobra.Command, fileCfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dbpath") {
		fileCfg.DBPath = cfg.DBPath
	}
	if flags.Changed("yumpath") {
		fileCfg.YumPath = cfg.YumPath
	}
	if flags.Changed("rpm") {
		fileCfg.RPMBin = cfg.RPMBin
	}
	if flags.Changed("db-recover") {
		fileCfg.RecoverBin = cfg.RecoverBin
	}
	if flags.Changed("db-verify") {
		fileCfg.VerifyBin = cfg.VerifyBin
	}
	if flags.Changed("yum") {
		fileCfg.YumBin = cfg.YumBin
	}
	if flags.Changed("lsof") {
		fileCfg.LsofBin = cfg.LsofBin
	}
	if flags.Changed("max-passes") {
		fileCfg.MaxPasses = cfg.MaxPasses
	}
	if flags.Changed("dry-run") {
		fileCfg.DryRun = cfg.DryRun
	}
	if flags.Changed("slack-webhook") {
		fileCfg.SlackWebhook = cfg.SlackWebhook
	}
	if flags.Changed("metrics-pushgateway") {
		fileCfg.MetricsPushgateway = cfg.MetricsPushgateway
	}
	if flags.Changed("json-summary") {
		fileCfg.JSONSummaryPath = cfg.JSONSummaryPath
	}
}
