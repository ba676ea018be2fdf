package probe

import (
	"context"

	"github.com/prplanit/rpmdoctor/handles"
)

// YumLocked reports whether a live yum/dnf process still holds the yum
// state directory open. If so, CLEAN_YUM_TX must be skipped this pass
// (BLOCKED_BY_LOCK, per spec.md §5) rather than racing the other package
// manager instance.
func (p *Probe) YumLocked(ctx context.Context, inspector *handles.Inspector) (bool, error) {
	holders, err := inspector.Holders(ctx, []string{p.YumPath})
	if err != nil {
		return false, err
	}
	return len(holders) > 0, nil
}
