package marshal

import (
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
)

// ArgPlan is the computed marshalling plan for one argument (spec.md
// §4.3 step 4): direction, handler kind, resolved buffer size, and the
// original guest-side pointer.
type ArgPlan struct {
	Meta     espbmod.ArgMeta
	GuestPtr uint32
	Size     uint32
}

// BuildPlans computes one ArgPlan per ArgMeta entry and reports
// whether any OUT/INOUT argument uses the async handler, which marks
// the whole call async (spec.md §4.3 step 4, last sentence).
func BuildPlans(mem Memory, metas []espbmod.ArgMeta, args []api.Value) (plans []ArgPlan, async bool, err error) {
	plans = make([]ArgPlan, 0, len(metas))
	for _, meta := range metas {
		if meta.ArgIndex < 0 || meta.ArgIndex >= len(args) {
			return nil, false, fmt.Errorf("marshal: immeta arg index %d out of range", meta.ArgIndex)
		}
		guestPtr := args[meta.ArgIndex].Ptr()

		var size uint32
		switch meta.SizeKind {
		case espbmod.SizeConst:
			size = meta.SizeValue
		case espbmod.SizeFromArg:
			if int(meta.SizeValue) >= len(args) {
				return nil, false, fmt.Errorf("marshal: size-from-arg index %d out of range", meta.SizeValue)
			}
			size = args[meta.SizeValue].U32()
		case espbmod.SizeNullTerminated:
			n, ok := mem.CStrLen(guestPtr)
			if !ok {
				return nil, false, fmt.Errorf("marshal: unterminated string at %#x", guestPtr)
			}
			size = n + 1
		default:
			return nil, false, fmt.Errorf("marshal: unknown size kind %d", meta.SizeKind)
		}

		plans = append(plans, ArgPlan{Meta: meta, GuestPtr: guestPtr, Size: size})
		if meta.Handler == espbmod.HandlerAsync && (meta.Direction == espbmod.DirectionOut || meta.Direction == espbmod.DirectionInOut) {
			async = true
		}
	}
	return plans, async, nil
}
