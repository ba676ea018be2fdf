// Package handles finds and terminates processes holding open file
// descriptors on the RPM database files, via lsof's machine-readable -F
// output. It guards against a missing or hanging lsof with a circuit
// breaker so a single unavailable dependency doesn't stall every pass of
// the remediation loop.
package handles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sony/gobreaker"

	"github.com/prplanit/rpmdoctor/supervisor"
)

// ErrInspectorUnavailable is returned when lsof is missing, hanging, or
// has failed repeatedly enough to trip the circuit breaker. The caller
// (the remediation state machine) treats this as blocking only when a
// repair explicitly requires the inspector.
var ErrInspectorUnavailable = errors.New("handles: file-handle inspector unavailable")

// Holder describes one process holding a file open.
type Holder struct {
	PID     int
	Command string
	Name    string
}

// KillResult reports the outcome of a Kill call.
type KillResult struct {
	Killed []int
	Failed []int
}

// Inspector enumerates and terminates processes holding files open under
// a set of paths.
type Inspector struct {
	sup        *supervisor.Supervisor
	lsofBin    string
	timeout    time.Duration
	reapWait   time.Duration
	selfPID    int
	ignorePIDs map[int]bool
	breaker    *gobreaker.CircuitBreaker
}

// New builds an Inspector. ignorePIDs is a configurable allow-list of PIDs
// that should never be reported or killed (e.g. a supervising init).
func New(sup *supervisor.Supervisor, lsofBin string, timeout, reapWait time.Duration, selfPID int, ignorePIDs []int) *Inspector {
	ignore := make(map[int]bool, len(ignorePIDs))
	for _, p := range ignorePIDs {
		ignore[p] = true
	}

	st := gobreaker.Settings{
		Name:        "lsof",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Inspector{
		sup:        sup,
		lsofBin:    lsofBin,
		timeout:    timeout,
		reapWait:   reapWait,
		selfPID:    selfPID,
		ignorePIDs: ignore,
		breaker:    gobreaker.NewCircuitBreaker(st),
	}
}

// Holders returns every live process holding a file open under any of the
// given directories (recursively, via lsof's +D), excluding self and the
// ignore list.
func (i *Inspector) Holders(ctx context.Context, dirs []string) ([]Holder, error) {
	raw, err := i.breaker.Execute(func() (any, error) {
		return i.runLsof(ctx, dirs)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrInspectorUnavailable
		}
		return nil, err
	}

	holders := parseLsofF(raw.([]byte))
	filtered := holders[:0]
	for _, h := range holders {
		if h.PID == i.selfPID || i.ignorePIDs[h.PID] {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered, nil
}

func (i *Inspector) runLsof(ctx context.Context, dirs []string) ([]byte, error) {
	argv := []string{i.lsofBin, "-F", "pcn"}
	for _, dir := range dirs {
		argv = append(argv, "+D", dir)
	}
	result, err := i.sup.Run(ctx, argv, supervisor.Options{Timeout: i.timeout})
	if err != nil {
		return nil, err
	}
	// lsof exits non-zero when nothing is found; that's not a failure.
	// Only a spawn failure or a timeout trips the breaker.
	if result.ExitCode == supervisor.SpawnFailed || result.TerminatedByUs {
		return nil, fmt.Errorf("%w: lsof unavailable: %s", ErrInspectorUnavailable, result.Stderr)
	}
	return result.Stdout, nil
}

// parseLsofF parses `lsof -F pcn` output: a stream of single-letter-
// prefixed fields, one per line, starting a new record at each 'p' field.
// Field handling is table-driven so a new field type is a one-line change.
func parseLsofF(out []byte) []Holder {
	var holders []Holder
	var current *Holder

	apply := map[byte]func(*Holder, string){
		'p': func(h *Holder, v string) { h.PID, _ = strconv.Atoi(v) },
		'c': func(h *Holder, v string) { h.Command = v },
		'n': func(h *Holder, v string) { h.Name = v },
	}

	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		kind, value := line[0], line[1:]
		if kind == 'p' {
			if current != nil {
				holders = append(holders, *current)
			}
			current = &Holder{}
		}
		if current == nil {
			continue
		}
		if fn, ok := apply[kind]; ok {
			fn(current, value)
		}
	}
	if current != nil && current.PID != 0 {
		holders = append(holders, *current)
	}
	return holders
}

// Kill sends sig to every holder of dirs, then waits up to reapWait for
// dirs to quiesce (via fsnotify, falling back to a single re-poll if the
// watch cannot be established) before re-checking Holders. Any PID still
// present after that counts as Failed.
func (i *Inspector) Kill(ctx context.Context, dirs []string, sig syscall.Signal) (*KillResult, error) {
	holders, err := i.Holders(ctx, dirs)
	if err != nil {
		return nil, err
	}
	if len(holders) == 0 {
		return &KillResult{}, nil
	}

	result := &KillResult{}
	for _, h := range holders {
		if err := syscall.Kill(h.PID, sig); err != nil {
			slog.Debug("kill failed", "pid", h.PID, "command", h.Command, "error", err)
			continue
		}
		result.Killed = append(result.Killed, h.PID)
	}

	i.waitForQuiet(ctx, dirs)

	remaining, err := i.Holders(ctx, dirs)
	if err != nil {
		// Inspector went unavailable between the kill and the recheck;
		// conservatively treat every killed PID as unconfirmed.
		result.Failed = result.Killed
		result.Killed = nil
		return result, nil
	}
	stillHere := make(map[int]bool, len(remaining))
	for _, h := range remaining {
		stillHere[h.PID] = true
	}

	var confirmed []int
	for _, pid := range result.Killed {
		if stillHere[pid] {
			result.Failed = append(result.Failed, pid)
		} else {
			confirmed = append(confirmed, pid)
		}
	}
	result.Killed = confirmed
	return result, nil
}

// waitForQuiet blocks until reapWait elapses or a filesystem event fires
// on one of dirs, whichever comes first.
func (i *Inspector) waitForQuiet(ctx context.Context, dirs []string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		time.Sleep(i.reapWait)
		return
	}
	defer watcher.Close()

	watched := false
	for _, dir := range dirs {
		if watcher.Add(dir) == nil {
			watched = true
		}
	}
	if !watched {
		time.Sleep(i.reapWait)
		return
	}

	timer := time.NewTimer(i.reapWait)
	defer timer.Stop()

	select {
	case <-watcher.Events:
	case <-watcher.Errors:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func dirOf(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx > 0 {
		return path[:idx]
	}
	return path
}
