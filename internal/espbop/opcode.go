// Package espbop defines the fixed opcode byte values and their
// per-opcode operand encodings (spec.md §4.1). Operand bytes are
// always little-endian for multi-byte fields; the dispatcher treats
// the code stream as bytecode, never as parseable text.
package espbop

type Opcode byte

const (
	OpNop0        Opcode = 0x00
	OpNop1        Opcode = 0x01
	OpBr          Opcode = 0x02 // i16 offset, from the start of this instruction
	OpBrIf        Opcode = 0x03 // reg, i16 offset
	OpBrTable     Opcode = 0x04 // reg, u16 count, [i16]*count, i16 default
	OpUnreachable Opcode = 0x05
	OpEnd         Opcode = 0x0F

	OpCallImport      Opcode = 0x09 // u16 import index, optional 0xAA variadic block
	OpCall            Opcode = 0x0A // u16 local function index
	OpCallIndirect    Opcode = 0x0B // u8 reg, u16 expected signature index
	OpCallIndirectPtr Opcode = 0x0D // u8 reg, u16 expected signature index

	// VariadicMarker precedes a variadic-info block in CALL_IMPORT's
	// operand stream: u8 marker(0xAA), u8 num_total_args, type bytes.
	VariadicMarker byte = 0xAA

	OpLdcI32Imm Opcode = 0x18 // reg, i32 imm
	OpLdcI64Imm Opcode = 0x19 // reg, i64 imm
	OpLdcF32Imm Opcode = 0x1A // reg, f32 imm
	OpLdcF64Imm Opcode = 0x1B // reg, f64 imm
	OpLdcPtrImm Opcode = 0x1C // reg, u32 imm

	OpLdGlobalAddr Opcode = 0x1D // dst reg, u16 global/symbol index
	OpLdGlobal     Opcode = 0x1E // dst reg, u16 global/symbol index
	OpStGlobal     Opcode = 0x1F // src reg, u16 global index

	// FuncRefFlag marks a LD_GLOBAL/LD_GLOBAL_ADDR symbol index as "this
	// is a function pointer": the high bit of the u16 operand.
	FuncRefFlag uint16 = 0x8000

	OpMov Opcode = 0x10 // dst reg, src reg - raw 64-bit copy

	OpAddrOf   Opcode = 0x8E // dst reg, src reg (register's own address)
	OpAllocaOp Opcode = 0x8F // dst reg, u32 size (no alignment operand)

	OpExtendedPrefix byte = 0xFC
)

// Arithmetic family. ArithType/ArithOp select operation and operand
// width independent of raw byte value, the same way the teacher's
// wazeroir.OperationKind+UnsignedType pair works.
type ArithType byte

const (
	ArithI32 ArithType = iota
	ArithI64
	ArithF32
	ArithF64
)

type ArithOp byte

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithRem
	ArithAnd
	ArithOr
	ArithXor
	ArithShl
	ArithShr // logical
	ArithSar // arithmetic
	ArithNot
)

// OpArithBase lays ArithType*numArithOps+ArithOp out as one byte per
// (type, op) pair: 4 types * 12 ops = 48 opcodes, 0x20..0x4F.
const OpArithBase Opcode = 0x20
const numArithOps = 12

func ArithOpcode(t ArithType, op ArithOp) Opcode {
	return OpArithBase + Opcode(int(t)*numArithOps+int(op))
}

// DecodeArith inverts ArithOpcode for the dispatcher's opcode switch.
func DecodeArith(op Opcode) (ArithType, ArithOp, bool) {
	d := int(op - OpArithBase)
	if d < 0 || d >= 4*numArithOps {
		return 0, 0, false
	}
	return ArithType(d / numArithOps), ArithOp(d % numArithOps), true
}

// Imm8 arithmetic: same (type, op) addressing. Only the first 6
// ArithOp values (Add/Sub/Mul/Div/Rem/And) have an immediate-8 form;
// ArithImm8Opcode does not reject a later op, whose byte aliases
// another (type, op) pair. 4 types * 6 ops = 24 opcodes, 0x50..0x67.
const OpArithImm8Base Opcode = 0x50
const numArithImm8Ops = 6

func ArithImm8Opcode(t ArithType, op ArithOp) Opcode {
	return OpArithImm8Base + Opcode(int(t)*numArithImm8Ops+int(op))
}

func DecodeArithImm8(op Opcode) (ArithType, ArithOp, bool) {
	d := int(op - OpArithImm8Base)
	if d < 0 || d >= 4*numArithImm8Ops {
		return 0, 0, false
	}
	return ArithType(d / numArithImm8Ops), ArithOp(d % numArithImm8Ops), true
}

// Select, 4 variants: dst reg, cond reg, true-val reg, false-val reg.
// Placed between the imm8-arithmetic block and the memory block.
const (
	OpSelectI32 Opcode = 0x68
	OpSelectI64 Opcode = 0x69
	OpSelectF32 Opcode = 0x6A
	OpSelectF64 Opcode = 0x6B
)

// Memory family: (dest_or_src_reg, address_reg, i16 offset).
type MemType byte

const (
	MemI8 MemType = iota
	MemU8
	MemI16
	MemU16
	MemI32
	MemI64
	MemF32
	MemF64
	MemPtr
	MemBool
)

const (
	OpLoadBase  Opcode = 0x70
	OpStoreBase Opcode = 0x7A
)

const numMemTypes = 10

func LoadOpcode(t MemType) Opcode  { return OpLoadBase + Opcode(t) }
func StoreOpcode(t MemType) Opcode { return OpStoreBase + Opcode(t) }

func DecodeLoad(op Opcode) (MemType, bool) {
	d := int(op - OpLoadBase)
	if d < 0 || d >= numMemTypes {
		return 0, false
	}
	return MemType(d), true
}

func DecodeStore(op Opcode) (MemType, bool) {
	d := int(op - OpStoreBase)
	if d < 0 || d >= numMemTypes {
		return 0, false
	}
	return MemType(d), true
}

// Conversions, 0x90-0xA0.
const (
	OpI32WrapI64     Opcode = 0x90
	OpI64ExtendI32S  Opcode = 0x91
	OpI64ExtendI32U  Opcode = 0x92
	OpI32TruncF32S   Opcode = 0x93
	OpI32TruncF32U   Opcode = 0x94
	OpI32TruncF64S   Opcode = 0x95
	OpI32TruncF64U   Opcode = 0x96
	OpI64TruncF32S   Opcode = 0x97
	OpI64TruncF64S   Opcode = 0x98
	OpF32ConvertI32S Opcode = 0x99
	OpF32ConvertI64S Opcode = 0x9A
	OpF64ConvertI32S Opcode = 0x9B
	OpF64ConvertI64S Opcode = 0x9C
	OpF32DemoteF64   Opcode = 0x9D
	OpF64PromoteF32  Opcode = 0x9E
	OpPtrToI32       Opcode = 0x9F
	OpI32ToPtr       Opcode = 0xA0
)

type CmpType byte

const (
	CmpI32S CmpType = iota
	CmpI32U
	CmpI64S
	CmpI64U
	CmpF32
	CmpF64
)

type CmpOp byte

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpGt
	CmpLe
	CmpGe
)

// OpCmpBase: 6 types * 6 ops = 36 opcodes, 0xB0..0xD3.
const OpCmpBase Opcode = 0xB0
const numCmpOps = 6

func CmpOpcode(t CmpType, op CmpOp) Opcode { return OpCmpBase + Opcode(int(t)*numCmpOps+int(op)) }

func DecodeCmp(op Opcode) (CmpType, CmpOp, bool) {
	d := int(op - OpCmpBase)
	if d < 0 || d >= 6*numCmpOps {
		return 0, 0, false
	}
	return CmpType(d / numCmpOps), CmpOp(d % numCmpOps), true
}

// Atomics, 0xD4-0xDC: RMW add and CMPXCHG on I32/I64, atomic
// LOAD/STORE, and a fence. No RMW sub/and/or/xor/exchange opcode is
// defined.
const (
	OpAtomicRmwAddI32  Opcode = 0xD4
	OpAtomicRmwAddI64  Opcode = 0xD5
	OpAtomicCmpxchgI32 Opcode = 0xD6
	OpAtomicCmpxchgI64 Opcode = 0xD7
	OpAtomicLoadI32    Opcode = 0xD8
	OpAtomicLoadI64    Opcode = 0xD9
	OpAtomicStoreI32   Opcode = 0xDA
	OpAtomicStoreI64   Opcode = 0xDB
	OpAtomicFence      Opcode = 0xDC
)

// Extended-prefix (0xFC) sub-opcodes: MEMORY.*, DATA.DROP, HEAP.*, TABLE.*.
type ExtOp byte

const (
	ExtMemoryInit ExtOp = iota
	ExtMemoryCopy
	ExtMemoryFill
	ExtDataDrop
	ExtHeapMalloc
	ExtHeapCalloc
	ExtHeapRealloc
	ExtHeapFree
	ExtTableInit
	ExtTableGet
	ExtTableSet
	ExtTableSize
	ExtTableCopy
	ExtTableFill
)
