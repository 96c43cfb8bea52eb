package engine

import (
	"unsafe"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

// shadowStack is the single grow-on-demand byte buffer backing every
// live register frame, in LIFO order (spec.md §3 "Shadow stack", §4.5
// "Shadow stack growth").
//
// Saved frame bases are stored as byte offsets into this buffer
// (callFrame.savedFrameOffset), not raw pointers - the alternative
// spec.md §9 explicitly sanctions ("an implementation MAY store
// offsets and reconstruct pointers on each use"), which behaves the
// same and leaves no pointers to fix up. Because offsets are relative to the buffer's own
// base, growing and reallocating the backing array needs no pointer
// fixup pass: every saved offset remains valid automatically, which is
// what satisfies invariant 2 and property P3 in this build.
type shadowStack struct {
	buf       []byte
	sp        uint32 // high-water mark
	fp        uint32 // base of the currently executing frame
	increment uint32
}

func newShadowStack(initialSize, increment uint32) *shadowStack {
	if initialSize == 0 {
		initialSize = 4096
	}
	if increment == 0 {
		increment = 4096
	}
	return &shadowStack{buf: make([]byte, initialSize), increment: increment}
}

func (s *shadowStack) capacity() uint32 { return uint32(len(s.buf)) }

const valueSize = uint32(unsafe.Sizeof(api.Value{}))

// ensure grows the buffer, by fixed increments, until it can hold
// `required` bytes (spec.md §4.5). Growth never shrinks.
func (s *shadowStack) ensure(required uint32) {
	if required <= s.capacity() {
		return
	}
	newCap := s.capacity()
	for newCap < required {
		newCap += s.increment
	}
	grown := make([]byte, newCap)
	copy(grown, s.buf)
	s.buf = grown
}

// frame returns a live view of numRegs registers starting at byte
// offset fp. The caller must re-fetch this after any call that could
// have grown the stack (ensure) - spec.md §4.5: "the caller
// refetches the locals pointer ... after any potential growth."
func (s *shadowStack) frame(fp uint32, numRegs uint16) []api.Value {
	if numRegs == 0 {
		return nil
	}
	return unsafe.Slice((*api.Value)(unsafe.Pointer(&s.buf[fp])), int(numRegs))
}

func (s *shadowStack) frameSizeBytes(numRegs uint16) uint32 {
	return uint32(numRegs) * valueSize
}
