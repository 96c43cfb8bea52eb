// Package ffi is the C4 "FFI bridge": it maps a VM value to a native
// ABI word and performs the actual native call. It is grounded on
// github.com/ebitengine/purego (see
// other_examples/0279f2c1_pdf-purego__syscall_sysv.go.go in the
// retrieval pack, which shows purego's cgo-free calling convention
// trampoline), wired in place of a hand-rolled per-arch syscall frame.
package ffi

import (
	"math"

	"github.com/ebitengine/purego"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

// ABIType is the native calling-convention class a VM Type maps to.
// Two VM types can share one ABI slot (e.g. I8/U8/I16/.../I32/U32 all
// pass as a single 32-bit-in-64-bit integer register).
type ABIType byte

const (
	ABIInteger ABIType = iota
	ABIFloat
	ABIPointer
)

// MapType implements spec.md §4.3 step 2: "map the VM type tag to a
// native ABI type".
func MapType(t api.Type) ABIType {
	switch t {
	case api.TypeF32, api.TypeF64:
		return ABIFloat
	case api.TypePtr:
		return ABIPointer
	default:
		return ABIInteger
	}
}

// ToWord converts a register Value into the uintptr word purego.SyscallN
// expects in that argument position. 64-bit integers passed through a
// 32-bit ABI slot are sign/zero-extended by the Value's own accessor
// before truncation to uintptr width, matching spec.md §4.3 step 2.
func ToWord(v api.Value) uintptr {
	switch v.Type() {
	case api.TypeF32:
		return uintptr(math.Float32bits(v.F32()))
	case api.TypeF64:
		return uintptr(v.U64())
	default:
		return uintptr(v.U64())
	}
}

// FromWord converts a native return word back into a Value (spec.md
// §4.3 step 8). F32, F64, Ptr and Void keep their declared type; I64
// and U64 come back tagged U64, and every other type comes back tagged
// U32 holding the low 32 bits of the word.
func FromWord(word uintptr, t api.Type) api.Value {
	switch t {
	case api.TypeF32:
		return api.F32(math.Float32frombits(uint32(word)))
	case api.TypeF64:
		return api.F64(math.Float64frombits(uint64(word)))
	case api.TypePtr:
		return api.Ptr(uint32(word))
	case api.TypeI64, api.TypeU64:
		return api.U64(uint64(word))
	case api.TypeVoid:
		return api.Void
	default:
		return api.U32(uint32(word))
	}
}

// Call performs the actual native call through purego.SyscallN. args
// must already be ABI words (see ToWord); fn is a native function
// pointer, e.g. one resolved by espbresolve or produced by
// internal/trampoline.
func Call(fn uintptr, args []uintptr) (r1, r2 uintptr) {
	r1, r2, _ = purego.SyscallN(fn, args...)
	return r1, r2
}
