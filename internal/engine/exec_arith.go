package engine

import (
	"math"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbop"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// execArith implements the ADD/SUB/MUL/DIV/REM/shift/bitwise family
// and its immediate-8 variants (spec.md §4.1). imm8 selects whether
// the second operand is a register (false) or a signed byte immediate
// (true) - only Add/Sub/Mul/Div/Rem/And have an imm8 form.
func (ec *execContext) execArith(t espbop.ArithType, op espbop.ArithOp, imm8 bool) error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	a, err := ec.readReg()
	if err != nil {
		return err
	}

	if op == espbop.ArithNot {
		return ec.execNot(dst, t, a)
	}

	var b api.Value
	if imm8 {
		imm := ec.i8()
		switch t {
		case espbop.ArithI32:
			b = api.I32(int32(imm))
		case espbop.ArithI64:
			b = api.I64(int64(imm))
		case espbop.ArithF32:
			b = api.F32(float32(imm))
		case espbop.ArithF64:
			b = api.F64(float64(imm))
		}
	} else {
		b, err = ec.readReg()
		if err != nil {
			return err
		}
	}

	switch t {
	case espbop.ArithI32:
		return ec.execArithI32(dst, op, a.I32(), b.I32())
	case espbop.ArithI64:
		return ec.execArithI64(dst, op, a.I64(), b.I64())
	case espbop.ArithF32:
		return ec.execArithF32(dst, op, a.F32(), b.F32())
	case espbop.ArithF64:
		return ec.execArithF64(dst, op, a.F64(), b.F64())
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) execNot(dst int, t espbop.ArithType, a api.Value) error {
	switch t {
	case espbop.ArithI32:
		return ec.setReg(dst, api.I32(^a.I32()))
	case espbop.ArithI64:
		return ec.setReg(dst, api.I64(^a.I64()))
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) execArithI32(dst int, op espbop.ArithOp, a, b int32) error {
	switch op {
	case espbop.ArithAdd:
		return ec.setReg(dst, api.I32(a+b))
	case espbop.ArithSub:
		return ec.setReg(dst, api.I32(a-b))
	case espbop.ArithMul:
		r := int64(a) * int64(b)
		if r > math.MaxInt32 || r < math.MinInt32 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I32(int32(r)))
	case espbop.ArithDiv:
		if b == 0 {
			return espbruntime.ErrDivByZero
		}
		if a == math.MinInt32 && b == -1 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I32(a/b))
	case espbop.ArithRem:
		if b == 0 {
			return espbruntime.ErrDivByZero
		}
		if a == math.MinInt32 && b == -1 {
			return ec.setReg(dst, api.I32(0))
		}
		return ec.setReg(dst, api.I32(a%b))
	case espbop.ArithAnd:
		return ec.setReg(dst, api.I32(a&b))
	case espbop.ArithOr:
		return ec.setReg(dst, api.I32(a|b))
	case espbop.ArithXor:
		return ec.setReg(dst, api.I32(a^b))
	case espbop.ArithShl:
		return ec.setReg(dst, api.I32(a<<(uint32(b)&31)))
	case espbop.ArithShr:
		return ec.setReg(dst, api.I32(int32(uint32(a)>>(uint32(b)&31))))
	case espbop.ArithSar:
		return ec.setReg(dst, api.I32(a>>(uint32(b)&31)))
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) execArithI64(dst int, op espbop.ArithOp, a, b int64) error {
	switch op {
	case espbop.ArithAdd:
		return ec.setReg(dst, api.I64(a+b))
	case espbop.ArithSub:
		return ec.setReg(dst, api.I64(a-b))
	case espbop.ArithMul:
		return ec.setReg(dst, api.I64(a*b)) // "64-bit MUL wraps silently" (spec.md §4.1)
	case espbop.ArithDiv:
		if b == 0 {
			return espbruntime.ErrDivByZero
		}
		if a == math.MinInt64 && b == -1 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I64(a/b))
	case espbop.ArithRem:
		if b == 0 {
			return espbruntime.ErrDivByZero
		}
		if a == math.MinInt64 && b == -1 {
			return ec.setReg(dst, api.I64(0))
		}
		return ec.setReg(dst, api.I64(a%b))
	case espbop.ArithAnd:
		return ec.setReg(dst, api.I64(a&b))
	case espbop.ArithOr:
		return ec.setReg(dst, api.I64(a|b))
	case espbop.ArithXor:
		return ec.setReg(dst, api.I64(a^b))
	case espbop.ArithShl:
		return ec.setReg(dst, api.I64(a<<(uint64(b)&63)))
	case espbop.ArithShr:
		return ec.setReg(dst, api.I64(int64(uint64(a)>>(uint64(b)&63))))
	case espbop.ArithSar:
		return ec.setReg(dst, api.I64(a>>(uint64(b)&63)))
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) execArithF32(dst int, op espbop.ArithOp, a, b float32) error {
	switch op {
	case espbop.ArithAdd:
		return ec.setReg(dst, api.F32(a+b))
	case espbop.ArithSub:
		return ec.setReg(dst, api.F32(a-b))
	case espbop.ArithMul:
		return ec.setReg(dst, api.F32(a*b))
	case espbop.ArithDiv:
		return ec.setReg(dst, api.F32(a/b))
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) execArithF64(dst int, op espbop.ArithOp, a, b float64) error {
	switch op {
	case espbop.ArithAdd:
		return ec.setReg(dst, api.F64(a+b))
	case espbop.ArithSub:
		return ec.setReg(dst, api.F64(a-b))
	case espbop.ArithMul:
		return ec.setReg(dst, api.F64(a*b))
	case espbop.ArithDiv:
		return ec.setReg(dst, api.F64(a/b))
	}
	return espbruntime.ErrInvalidOperand
}
