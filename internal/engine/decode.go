package engine

import (
	"encoding/binary"
	"math"
)

// The methods below are a tiny little-endian operand reader over one
// function's bytecode, advancing ec.pc as each handler "reads its
// operand bytes in declared order" (spec.md §4.1).

func (ec *execContext) u8() byte {
	b := ec.fn.body.Code[ec.pc]
	ec.pc++
	return b
}

func (ec *execContext) i8() int8 { return int8(ec.u8()) }

func (ec *execContext) u16() uint16 {
	v := binary.LittleEndian.Uint16(ec.fn.body.Code[ec.pc:])
	ec.pc += 2
	return v
}

func (ec *execContext) i16() int16 { return int16(ec.u16()) }

func (ec *execContext) u32() uint32 {
	v := binary.LittleEndian.Uint32(ec.fn.body.Code[ec.pc:])
	ec.pc += 4
	return v
}

func (ec *execContext) i32() int32 { return int32(ec.u32()) }

func (ec *execContext) u64() uint64 {
	v := binary.LittleEndian.Uint64(ec.fn.body.Code[ec.pc:])
	ec.pc += 8
	return v
}

func (ec *execContext) i64() int64 { return int64(ec.u64()) }

func (ec *execContext) f32() float32 { return math.Float32frombits(ec.u32()) }
func (ec *execContext) f64() float64 { return math.Float64frombits(ec.u64()) }
