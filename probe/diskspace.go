//go:build linux || darwin

package probe

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/prplanit/rpmdoctor/output"
)

// ProbeDiskSpace refuses recovery when the filesystem backing dbPath is
// critically full: db_recover and rebuilddb both need scratch space, and
// a full disk turns a recoverable database into a destroyed one. Returns
// DiskCritical when free space falls below minFreePct.
func (p *Probe) ProbeDiskSpace(minFreePct int) (Symptom, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(p.DBPath, &stat); err != nil {
		return unknown(err.Error()), err
	}
	if stat.Blocks == 0 {
		return healthy(), nil
	}
	freePct := int(stat.Bavail * 100 / stat.Blocks)
	freeBytes := int64(stat.Bavail) * int64(stat.Bsize)
	if freePct < minFreePct {
		detail := fmt.Sprintf("%s free (%d%%), below the %d%% threshold", output.FormatBytes(freeBytes), freePct, minFreePct)
		slog.Warn("disk space critical", "path", p.DBPath, "detail", detail)
		return Symptom{Kind: DiskCritical, Detail: detail, Got: int64(freePct), Expected: int64(minFreePct)}, nil
	}
	return healthy(), nil
}
