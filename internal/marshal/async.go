package marshal

import (
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/internal/ffi"
)

// AsyncWrapper is the C6 async-OUT wrapper (spec.md §4.3 step 6): a
// closure cached per import that runs the native call and then copies
// every OUT/INOUT buffer back, without exposing a native function
// pointer to the host. The dispatcher calls the resolved import
// directly rather than handing the host a callable pointer at this
// stage, so the wrapper only ever needs to be a plain Go value - it
// does not need purego.NewCallback the way internal/trampoline does
// for guest callbacks the host stores and invokes later.
type AsyncWrapper struct {
	mem Memory
}

// NewAsyncWrapper builds the wrapper for one Instance's memory. One
// wrapper is cached per import that has at least one async OUT/INOUT
// argument (spec.md §4.3 step 6: "lazily created... cached for
// subsequent calls").
func NewAsyncWrapper(mem Memory) *AsyncWrapper {
	return &AsyncWrapper{mem: mem}
}

// Invoke copies the marshalled IN/INOUT buffers in, calls fn, copies
// the OUT/INOUT buffers back, and returns the raw native result words.
//
// fixedWords must already be sized len(args) with every plan-covered
// position zeroed by the caller, matching the synchronous path in
// sync.go: each plan's buffer word is spliced back into fixedWords at
// its own Meta.ArgIndex rather than appended, so a marshalled argument
// keeps its original positional slot in the native call.
func (w *AsyncWrapper) Invoke(fn uintptr, plans []ArgPlan, fixedWords []uintptr) (r1, r2 uintptr, err error) {
	bufs, words, err := CopyIn(w.mem, plans)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal: async copy-in: %w", err)
	}
	for i, p := range plans {
		fixedWords[p.Meta.ArgIndex] = words[i]
	}

	r1, r2 = ffi.Call(fn, fixedWords)

	if err := CopyOut(w.mem, bufs); err != nil {
		return r1, r2, fmt.Errorf("marshal: async copy-out: %w", err)
	}
	return r1, r2, nil
}
