// Package espbmod defines the read-only, load-time module structure
// spec.md §3 describes: signatures, function bodies, imports, globals,
// data segments, the function-pointer map, element segments, and the
// per-import marshalling metadata (immeta/cbmeta).
//
// The binary loader/parser that would normally produce a Module from
// an on-disk ESPB file is an external collaborator (spec.md §1) and is
// out of scope here; Builder exists instead so the engine and
// its tests can construct a Module programmatically, the way the
// teacher's wazero.HostModuleBuilder lets a caller build up a host
// module without ever parsing a %.wasm file.
package espbmod

import (
	"sort"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbjit"
)

// Feature flags carried in the module header (spec.md §6).
const (
	FeatureCallbackAuto      uint32 = 1 << 0
	FeatureMarshallingMeta   uint32 = 1 << 1
)

// NoFuncPtr is the func_ptr_map_by_index sentinel meaning "this
// function has no address recorded in the data section".
const NoFuncPtr uint32 = 0xFFFFFFFF

// Function body flags (spec.md §3).
const (
	FuncFlagIsLeaf uint8 = 1 << 0
)

// Signature is a function type: parameter and result type sequences.
type Signature struct {
	Params  []api.Type
	Results []api.Type
}

// Compatible reports whether two signatures have the same arity and
// sequence of type tags, the looser equality CALL_INDIRECT accepts
// once a target has been resolved via FuncPtrMap (spec.md §4.2).
func (s Signature) Compatible(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// FunctionBody is a local (non-imported) function's compiled bytecode.
type FunctionBody struct {
	SignatureIndex uint32
	NumVirtualRegs uint16
	MaxRegUsed     uint16
	Flags          uint8
	Code           []byte

	// JIT is nil unless an external compiler has replaced this body.
	JIT espbjit.CompiledFunction
}

func (f *FunctionBody) IsLeaf() bool { return f.Flags&FuncFlagIsLeaf != 0 }

// Import is a host function descriptor: (module_id, entity_name)
// resolves through espbresolve.Registry to a native or Go callback.
type Import struct {
	ModuleID       byte
	EntityName     string
	SignatureIndex uint32
	Blocking       bool
}

// Global is a module-level global variable definition plus its
// initial value (the loader is assumed to have already evaluated any
// initializer expression into a concrete Value).
type Global struct {
	Type    api.Type
	Mutable bool
	Init    api.Value
}

// DataSegment is a passive or active initializer for linear memory.
type DataSegment struct {
	Offset uint32
	Data   []byte
	Active bool
	Dropped bool
}

// FuncPtrEntry maps a data-segment byte offset to the local function
// index whose address was recorded there at load time, used by
// CALL_INDIRECT/CALL_INDIRECT_PTR to classify a guest pointer that
// falls inside memory_data (spec.md §4.2).
type FuncPtrEntry struct {
	DataOffset uint32
	FuncIndex  uint32
}

// ElementSegment initializes a slice of an indirect-call table with a
// sequence of local function indices.
type ElementSegment struct {
	TableIndex  uint32
	Offset      uint32
	FuncIndices []uint32
}

// Direction is the copy-in/copy-out direction of a marshalled import
// argument (spec.md §4.3 step 4).
type Direction byte

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionInOut
)

// HandlerKind selects the synchronous or async-OUT marshalling path
// for one argument (spec.md §4.3 steps 5-6).
type HandlerKind byte

const (
	HandlerStandard HandlerKind = iota
	HandlerAsync
)

// SizeKind says how to compute a marshalled buffer's size.
type SizeKind byte

const (
	SizeConst SizeKind = iota
	SizeFromArg
	SizeNullTerminated
)

// ArgMeta is one "immeta" record: the marshalling plan input for a
// single argument of a single import.
type ArgMeta struct {
	ArgIndex  int
	Direction Direction
	Handler   HandlerKind
	SizeKind  SizeKind
	// SizeValue is the constant size when SizeKind==SizeConst, or the
	// index of the argument carrying the size when SizeKind==SizeFromArg.
	SizeValue uint32
}

// NoUserData is the cbmeta user_data_param_idx sentinel meaning "this
// callback has no paired user_data argument" (spec.md §4.3 step 3).
const NoUserData = 0x0F

// CallbackPair pairs a callback-parameter index with its user_data
// parameter index for one import ("cbmeta", spec.md §3/§6).
type CallbackPair struct {
	CallbackParamIndex int
	UserDataParamIndex int // NoUserData if absent
}

// Module is the read-only structure shared by every Instance created
// from it (spec.md §3 "Module (read-only, shared)").
type Module struct {
	Signatures  []Signature
	Imports     []Import
	Functions   []*FunctionBody
	Globals     []Global
	DataSegments []DataSegment

	FuncPtrMap        []FuncPtrEntry // sorted by DataOffset for binary search
	FuncPtrMapByIndex []uint32       // parallel to Functions, NoFuncPtr if absent

	ElementSegments []ElementSegment

	// ImportArgMeta and CallbackMeta are keyed by import index.
	ImportArgMeta map[uint32][]ArgMeta
	CallbackMeta  map[uint32][]CallbackPair

	Features uint32

	MemoryMin, MemoryMax uint32 // pages; loader-resolved, advisory only here
	TableInitialSize, TableMaxSize uint32
}

// NumImports is the number of entries occupying the low end of the
// global function-index namespace (spec.md §6: "imports precede locals").
func (m *Module) NumImports() uint32 { return uint32(len(m.Imports)) }

// NumFunctions is the number of local functions.
func (m *Module) NumFunctions() uint32 { return uint32(len(m.Functions)) }

// HasFeature reports whether a header feature bit is set.
func (m *Module) HasFeature(bit uint32) bool { return m.Features&bit != 0 }

// FunctionIndexByDataOffset resolves a func_ptr_map lookup: the data
// section offset a guest pointer evaluates to, binary-searched against
// the sorted FuncPtrMap, as spec.md §4.2 requires for CALL_INDIRECT and
// CALL_INDIRECT_PTR path A.
func (m *Module) FunctionIndexByDataOffset(offset uint32) (uint32, bool) {
	i := sort.Search(len(m.FuncPtrMap), func(i int) bool {
		return m.FuncPtrMap[i].DataOffset >= offset
	})
	if i < len(m.FuncPtrMap) && m.FuncPtrMap[i].DataOffset == offset {
		return m.FuncPtrMap[i].FuncIndex, true
	}
	return 0, false
}

// DataOffsetByFunctionIndex is the reverse of FunctionIndexByDataOffset,
// used by LD_GLOBAL when a symbol's high bit marks it as a function
// reference (spec.md §4.1, "Global access").
func (m *Module) DataOffsetByFunctionIndex(funcIndex uint32) (uint32, bool) {
	if int(funcIndex) >= len(m.FuncPtrMapByIndex) {
		return 0, false
	}
	off := m.FuncPtrMapByIndex[funcIndex]
	if off == NoFuncPtr {
		return 0, false
	}
	return off, true
}

// SignatureOf returns the signature for a global function index
// (imports first, then locals), per spec.md §6.
func (m *Module) SignatureOf(globalFuncIndex uint32) (Signature, bool) {
	n := m.NumImports()
	if globalFuncIndex < n {
		imp := m.Imports[globalFuncIndex]
		if int(imp.SignatureIndex) >= len(m.Signatures) {
			return Signature{}, false
		}
		return m.Signatures[imp.SignatureIndex], true
	}
	local := globalFuncIndex - n
	if int(local) >= len(m.Functions) {
		return Signature{}, false
	}
	sigIdx := m.Functions[local].SignatureIndex
	if int(sigIdx) >= len(m.Signatures) {
		return Signature{}, false
	}
	return m.Signatures[sigIdx], true
}
