package marshal

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/smersh1307n2/ESPB-sub001/espbmod"
)

// Buffer is one live temp native buffer backing a marshalled argument,
// kept around between the copy-in and copy-out halves of a call
// (spec.md §4.3 step 5).
type Buffer struct {
	Plan ArgPlan
	data []byte
}

// CopyIn allocates the temp buffers for a synchronous standard call
// and copies guest memory into every IN/INOUT one. The returned ABI
// word for each plan already points at its temp buffer - the
// dispatcher only needs to splice these words into the right argument
// positions of the FFI call.
func CopyIn(mem Memory, plans []ArgPlan) ([]Buffer, []uintptr, error) {
	bufs := make([]Buffer, len(plans))
	words := make([]uintptr, len(plans))
	for i, p := range plans {
		buf := make([]byte, p.Size)
		if p.Meta.Direction == espbmod.DirectionIn || p.Meta.Direction == espbmod.DirectionInOut {
			src, ok := mem.ReadBytes(p.GuestPtr, p.Size)
			if !ok {
				return nil, nil, fmt.Errorf("marshal: copy-in read out of bounds at %#x size %d", p.GuestPtr, p.Size)
			}
			copy(buf, src)
		}
		bufs[i] = Buffer{Plan: p, data: buf}
		if p.Size == 0 {
			words[i] = 0
		} else {
			words[i] = uintptr(unsafe.Pointer(&buf[0]))
		}
	}
	return bufs, words, nil
}

// CopyOut writes every OUT/INOUT buffer back into guest memory after
// the native call returns (spec.md §4.3 step 5, second half). It calls
// runtime.KeepAlive on the Buffer slice itself, so the temp allocations
// outlive the native call that wrote into them.
func CopyOut(mem Memory, bufs []Buffer) error {
	for _, b := range bufs {
		if b.Plan.Meta.Direction == espbmod.DirectionOut || b.Plan.Meta.Direction == espbmod.DirectionInOut {
			if !mem.WriteBytes(b.Plan.GuestPtr, b.data) {
				return fmt.Errorf("marshal: copy-out write out of bounds at %#x size %d", b.Plan.GuestPtr, b.Plan.Size)
			}
		}
	}
	runtime.KeepAlive(bufs)
	return nil
}
