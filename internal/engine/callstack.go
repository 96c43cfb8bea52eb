package engine

import (
	"github.com/smersh1307n2/ESPB-sub001/internal/espbheap"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// noSavedFrame is callFrame.savedFrameOffset's "null" sentinel: the
// leaf fast path elides register preservation entirely (spec.md §3,
// "saved_frame_ptr is null for leaf callers").
const noSavedFrame = ^uint32(0)

// callFrame is one RuntimeFrame record (spec.md §3). returnPC is the
// program counter at which to resume the caller on RETURN; for the
// base frame pushed by the entry protocol it carries -1 instead, the
// completion sentinel (spec.md §4.2
// "if the popped frame had return_pc == -1, execution is complete").
type callFrame struct {
	returnPC            int
	callerFunctionIndex uint32
	savedFP             uint32
	savedFrameOffset    uint32 // noSavedFrame if this is a leaf callee
	savedNumRegs        uint16

	allocaOffsets [espbheap.MaxAllocaPerFrame]uint32
	allocaCount   int
	hasCustomAligned bool
	allocasFreed  bool
}

func (f *callFrame) isBase() bool { return f.returnPC == -1 }

func (f *callFrame) pushAlloca(offset uint32) error {
	if f.allocaCount >= espbheap.MaxAllocaPerFrame {
		return espbruntime.ErrOutOfMemory
	}
	f.allocaOffsets[f.allocaCount] = offset
	f.allocaCount++
	f.allocasFreed = false
	return nil
}

// callStack is the fixed-depth array of RuntimeFrame records (spec.md
// §3 "Call stack", distinct from the shadow stack).
type callStack struct {
	frames []callFrame
	depth  int
	limit  int
}

func newCallStack(limit int) *callStack {
	return &callStack{frames: make([]callFrame, limit), limit: limit}
}

func (c *callStack) push(f callFrame) (*callFrame, error) {
	if c.depth >= c.limit {
		return nil, espbruntime.ErrStackOverflow
	}
	c.frames[c.depth] = f
	c.depth++
	return &c.frames[c.depth-1], nil
}

func (c *callStack) pop() (callFrame, error) {
	if c.depth == 0 {
		return callFrame{}, espbruntime.ErrStackUnderflow
	}
	c.depth--
	return c.frames[c.depth], nil
}

func (c *callStack) top() *callFrame {
	if c.depth == 0 {
		return nil
	}
	return &c.frames[c.depth-1]
}

func (c *callStack) len() int { return c.depth }

// freeAllocas releases every heap allocation this frame owns, exactly
// once, no later than the RETURN that pops it (spec.md invariant 4).
// debugChecks panics instead of silently tolerating a second free of
// the same frame record, which would mean RETURN ran twice without an
// intervening ALLOCA - a dispatcher bug, not a guest error.
func freeAllocas(h *espbheap.Heap, f *callFrame, debugChecks bool) {
	if f == nil {
		return
	}
	if debugChecks && f.allocasFreed && f.allocaCount == 0 {
		panic(espbruntime.ErrDoubleFree)
	}
	for i := 0; i < f.allocaCount; i++ {
		_ = h.Free(f.allocaOffsets[i])
	}
	f.allocaCount = 0
	f.allocasFreed = true
}
