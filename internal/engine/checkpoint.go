package engine

import "github.com/smersh1307n2/ESPB-sub001/api"

// frameSnapshot is the blocking-import checkpoint spec.md §4.3 step 7
// describes: the live register frame copied aside before a blocking
// native call and restored after, protecting it from a re-entrant
// callback trampoline running on the same thread during the call.
type frameSnapshot struct {
	values []api.Value
}

func (ec *execContext) saveFrameSnapshot() frameSnapshot {
	cp := make([]api.Value, len(ec.frame))
	copy(cp, ec.frame)
	return frameSnapshot{values: cp}
}

// restoreFrameSnapshot writes the saved values back into the current
// frame. It re-fetches ec.frame first in case a re-entrant call grew
// the shadow stack while this import call was blocked.
func (ec *execContext) restoreFrameSnapshot(snap frameSnapshot) {
	ec.refreshFrame()
	if len(snap.values) == len(ec.frame) {
		copy(ec.frame, snap.values)
	}
}
