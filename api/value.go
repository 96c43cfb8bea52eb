// Package api includes the types shared by every layer of the ESPB
// virtual machine: the tagged register value, its type discriminants,
// and the result/listener types an embedder observes from the outside.
package api

import (
	"fmt"
	"math"
)

// Type is the discriminant stored alongside a register's 8-byte payload.
//
// Type tags exist for debugging and for the handful of polymorphic
// opcodes (LD_GLOBAL dispatches on a global's declared type); most
// arithmetic opcodes are type-specialized by opcode byte and ignore
// the tag on their operands.
type Type byte

const (
	TypeI8 Type = iota
	TypeU8
	TypeI16
	TypeU16
	TypeI32
	TypeU32
	TypeI64
	TypeU64
	TypeF32
	TypeF64
	TypePtr
	TypeBool
	TypeV128 // reserved, not produced by any opcode in this build
	TypeVoid
)

// String returns the lower-case mnemonic used in error messages and
// backtrace signatures, e.g. "i32".
func (t Type) String() string {
	switch t {
	case TypeI8:
		return "i8"
	case TypeU8:
		return "u8"
	case TypeI16:
		return "i16"
	case TypeU16:
		return "u16"
	case TypeI32:
		return "i32"
	case TypeU32:
		return "u32"
	case TypeI64:
		return "i64"
	case TypeU64:
		return "u64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypePtr:
		return "ptr"
	case TypeBool:
		return "bool"
	case TypeV128:
		return "v128"
	case TypeVoid:
		return "void"
	default:
		return fmt.Sprintf("type(%#x)", byte(t))
	}
}

// Value is a single register cell: an 8-byte payload plus its type
// tag. It is always passed by value and is safe to copy with `=`.
//
// Most opcodes perform a raw 64-bit move (Raw/SetRaw) and rely on the
// destination opcode's own type specialization rather than the tag;
// the typed accessors exist for globals, debugging, and the
// marshalling planner, which must know the declared type independent
// of any one opcode.
type Value struct {
	payload uint64
	tag     Type
}

// Void is the zero Value, used for R0 on functions with no return.
var Void = Value{tag: TypeVoid}

func (v Value) Type() Type { return v.tag }

// Raw returns the payload as a type-agnostic 64-bit word, used by MOV
// and by argument copy where the declared type is irrelevant.
func (v Value) Raw() uint64 { return v.payload }

// SetRaw overwrites the payload bits, keeping the existing tag. Used
// by raw moves that should not change a register's declared type.
func (v *Value) SetRaw(bits uint64) { v.payload = bits }

func I32(v int32) Value  { return Value{payload: uint64(uint32(v)), tag: TypeI32} }
func U32(v uint32) Value { return Value{payload: uint64(v), tag: TypeU32} }
func I64(v int64) Value  { return Value{payload: uint64(v), tag: TypeI64} }
func U64(v uint64) Value { return Value{payload: v, tag: TypeU64} }
func Ptr(v uint32) Value { return Value{payload: uint64(v), tag: TypePtr} }
func Bool(v bool) Value {
	var p uint64
	if v {
		p = 1
	}
	return Value{payload: p, tag: TypeBool}
}
func F32(v float32) Value { return Value{payload: uint64(math.Float32bits(v)), tag: TypeF32} }
func F64(v float64) Value { return Value{payload: math.Float64bits(v), tag: TypeF64} }

func (v Value) I32() int32   { return int32(uint32(v.payload)) }
func (v Value) U32() uint32  { return uint32(v.payload) }
func (v Value) I64() int64   { return int64(v.payload) }
func (v Value) U64() uint64  { return v.payload }
func (v Value) Ptr() uint32  { return uint32(v.payload) }
func (v Value) Bool() bool   { return v.payload != 0 }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.payload)) }
func (v Value) F64() float64 { return math.Float64frombits(v.payload) }

func (v Value) String() string {
	switch v.tag {
	case TypeF32:
		return fmt.Sprintf("%s(%v)", v.tag, v.F32())
	case TypeF64:
		return fmt.Sprintf("%s(%v)", v.tag, v.F64())
	case TypeBool:
		return fmt.Sprintf("%s(%v)", v.tag, v.Bool())
	case TypeVoid:
		return "void"
	default:
		return fmt.Sprintf("%s(%#x)", v.tag, v.payload)
	}
}
