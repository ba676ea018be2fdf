// Package config defines the typed configuration surface rpmdoctor reads
// from flags, environment variables, and an optional YAML file, and
// validates before any probe or repair runs.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for a single rpmdoctor invocation.
// It is built once at startup and is read-only for the rest of the run.
type Config struct {
	DBPath  string `yaml:"db_path" validate:"required"`
	YumPath string `yaml:"yum_path" validate:"required"`

	RPMBin     string `yaml:"rpm_bin" validate:"required"`
	RecoverBin string `yaml:"recover_bin" validate:"required"`
	VerifyBin  string `yaml:"verify_bin" validate:"required"`
	YumBin     string `yaml:"yum_bin"`
	LsofBin    string `yaml:"lsof_bin" validate:"required"`

	TimeoutQuery   time.Duration `yaml:"timeout_query" validate:"gt=0"`
	TimeoutRecover time.Duration `yaml:"timeout_recover" validate:"gt=0"`
	TimeoutRebuild time.Duration `yaml:"timeout_rebuild" validate:"gt=0"`
	TimeoutVerify  time.Duration `yaml:"timeout_verify" validate:"gt=0"`
	TimeoutYum     time.Duration `yaml:"timeout_yum" validate:"gt=0"`
	TimeoutLsof    time.Duration `yaml:"timeout_lsof" validate:"gt=0"`
	TimeoutOverall time.Duration `yaml:"timeout_overall" validate:"gt=0"`

	MaxPasses           int `yaml:"max_passes" validate:"gt=0"`
	MinExpectedPackages int `yaml:"min_packages" validate:"gt=0"`
	IndexSampleSize     int `yaml:"index_sample_size" validate:"gt=0"`
	MinFreePct          int `yaml:"min_free_pct" validate:"gte=0,lte=100"`

	CheckTables            bool `yaml:"check_tables"`
	RebuildDB              bool `yaml:"rebuild_db"`
	CleanupYumTransactions bool `yaml:"cleanup_yum_transactions"`
	KillStuck              bool `yaml:"kill_stuck"`
	VerifyTables           bool `yaml:"verify_tables"`
	CheckIndexConsistency  bool `yaml:"check_index_consistency"`

	AllowMultipleRebuilds      bool `yaml:"allow_multiple_rebuilds"`
	ExperimentalPackageCleanup bool `yaml:"experimental_package_cleanup"`

	KillSignal      string `yaml:"kill_signal"`
	IgnorePIDs      []int  `yaml:"ignore_pids"`
	DryRun          bool   `yaml:"dry_run"`
	Verbosity       string `yaml:"verbosity" validate:"omitempty,oneof=quiet info debug"`
	JSONSummaryPath string `yaml:"json_summary_path"`

	ClassifiersPath string `yaml:"classifiers_path"`
	Schedule        string `yaml:"schedule"`

	SlackWebhook       string `yaml:"slack_webhook"`
	MetricsPushgateway string `yaml:"metrics_pushgateway"`

	// ConfigPath is the --config file that was loaded, if any. Not part of
	// the YAML shape itself.
	ConfigPath string `yaml:"-"`
}

// Defaults returns a Config populated with spec Table A defaults and the
// feature switches enabled by default, before flags/env/file are applied.
func Defaults() Config {
	return Config{
		DBPath:  "/var/lib/rpm",
		YumPath: "/var/lib/yum",

		RPMBin:     "rpm",
		RecoverBin: "db_recover",
		VerifyBin:  "db_verify",
		YumBin:     "yum-complete-transaction",
		LsofBin:    "lsof",

		TimeoutQuery:   5 * time.Second,
		TimeoutRecover: 90 * time.Second,
		TimeoutRebuild: 600 * time.Second,
		TimeoutVerify:  5 * time.Second,
		TimeoutYum:     120 * time.Second,
		TimeoutLsof:    10 * time.Second,
		TimeoutOverall: 900 * time.Second,

		MaxPasses:           3,
		MinExpectedPackages: 30,
		IndexSampleSize:     50,
		MinFreePct:          5,

		CheckTables:            true,
		RebuildDB:              true,
		CleanupYumTransactions: true,
		KillStuck:              true,
		VerifyTables:           true,
		CheckIndexConsistency:  true,

		KillSignal: "SIGKILL",
		Verbosity:  "info",
	}
}

// LoadFile merges a YAML config file into cfg. Values present in the file
// overwrite whatever cfg already holds (defaults, env values, parsed flags);
// keys absent from the file leave cfg unchanged. main.go re-applies a fixed
// set of explicitly-set flags afterwards (see mergeFlagOverrides there).
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.ConfigPath = path
	return nil
}

var validate = validator.New()

// Validate checks the typed configuration, resolves required binaries
// against PATH, and validates an optional cron schedule hint. It returns
// either a *MissingBinaryError or a plain error for any other problem;
// callers map these to exit codes 65 and 64 respectively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	required := map[string]*string{
		"--rpm":        &cfg.RPMBin,
		"--db-recover": &cfg.RecoverBin,
		"--db-verify":  &cfg.VerifyBin,
		"--lsof":       &cfg.LsofBin,
	}
	if cfg.CleanupYumTransactions {
		required["--yum"] = &cfg.YumBin
	}
	for flag, bin := range required {
		resolved, err := resolveBinary(*bin)
		if err != nil {
			return &MissingBinaryError{Flag: flag, Binary: *bin}
		}
		*bin = resolved
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid --schedule %q: %w", cfg.Schedule, err)
		}
	}

	if cfg.KillSignal != "SIGKILL" && cfg.KillSignal != "SIGTERM" {
		return fmt.Errorf("invalid --kill-signal %q: must be SIGKILL or SIGTERM", cfg.KillSignal)
	}

	return nil
}

// resolveBinary returns an absolute path for bin, looking it up on PATH
// when it isn't already absolute.
func resolveBinary(bin string) (string, error) {
	if bin == "" {
		return "", fmt.Errorf("empty binary path")
	}
	if strings.HasPrefix(bin, "/") {
		if _, err := os.Stat(bin); err != nil {
			return "", err
		}
		return bin, nil
	}
	return exec.LookPath(bin)
}

// MissingBinaryError indicates a required external binary could not be
// resolved. Mapped to exit code 65 by the report package.
type MissingBinaryError struct {
	Flag   string
	Binary string
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("required binary for %s (%q) not found on PATH", e.Flag, e.Binary)
}

// NextScheduledRun returns the next time cfg.Schedule would fire, for
// startup-banner logging only. rpmdoctor never schedules itself.
func NextScheduledRun(schedule string) (time.Time, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(time.Now()), nil
}
