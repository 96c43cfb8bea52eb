package engine

import (
	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/internal/ffi"
)

// execNativePointerCall is CALL_INDIRECT_PTR path C (spec.md §4.2):
// the register held a native function pointer, not a guest function
// reference. Prepare a native calling-convention descriptor from the
// expected signature and invoke directly through the FFI bridge.
func (ec *execContext) execNativePointerCall(ptr uint32, sig espbmod.Signature, args []api.Value) error {
	words := make([]uintptr, len(args))
	for i, a := range args {
		words[i] = ffi.ToWord(a)
	}
	r1, _ := ffi.Call(uintptr(ptr), words)

	resultType := api.TypeVoid
	if len(sig.Results) > 0 {
		resultType = sig.Results[0]
	}
	if len(ec.frame) > 0 {
		ec.frame[0] = ffi.FromWord(r1, resultType)
	}
	return nil
}
