package engine

import (
	"math"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbop"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// execConvert implements the truncation/extend/round/promote/demote
// and int<->float<->ptr conversion family (spec.md §4.1, "0x90-0xA0").
func (ec *execContext) execConvert(op espbop.Opcode) error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	src, err := ec.readReg()
	if err != nil {
		return err
	}

	switch op {
	case espbop.OpI32WrapI64:
		return ec.setReg(dst, api.I32(int32(src.I64())))
	case espbop.OpI64ExtendI32S:
		return ec.setReg(dst, api.I64(int64(src.I32())))
	case espbop.OpI64ExtendI32U:
		return ec.setReg(dst, api.I64(int64(src.U32())))
	case espbop.OpI32TruncF32S:
		f := src.F32()
		if math.IsNaN(float64(f)) || f < math.MinInt32 || f > math.MaxInt32 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I32(int32(f)))
	case espbop.OpI32TruncF32U:
		f := src.F32()
		if math.IsNaN(float64(f)) || f < 0 || f > math.MaxUint32 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.U32(uint32(f)))
	case espbop.OpI32TruncF64S:
		f := src.F64()
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I32(int32(f)))
	case espbop.OpI32TruncF64U:
		f := src.F64()
		if math.IsNaN(f) || f < 0 || f > math.MaxUint32 {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.U32(uint32(f)))
	case espbop.OpI64TruncF32S:
		f := src.F32()
		if math.IsNaN(float64(f)) {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I64(int64(f)))
	case espbop.OpI64TruncF64S:
		f := src.F64()
		if math.IsNaN(f) {
			return espbruntime.ErrIntegerOverflow
		}
		return ec.setReg(dst, api.I64(int64(f)))
	case espbop.OpF32ConvertI32S:
		return ec.setReg(dst, api.F32(float32(src.I32())))
	case espbop.OpF32ConvertI64S:
		return ec.setReg(dst, api.F32(float32(src.I64())))
	case espbop.OpF64ConvertI32S:
		return ec.setReg(dst, api.F64(float64(src.I32())))
	case espbop.OpF64ConvertI64S:
		return ec.setReg(dst, api.F64(float64(src.I64())))
	case espbop.OpF32DemoteF64:
		return ec.setReg(dst, api.F32(float32(src.F64())))
	case espbop.OpF64PromoteF32:
		return ec.setReg(dst, api.F64(float64(src.F32())))
	case espbop.OpPtrToI32:
		return ec.setReg(dst, api.I32(int32(src.Ptr())))
	case espbop.OpI32ToPtr:
		return ec.setReg(dst, api.Ptr(src.U32()))
	}
	return espbruntime.ErrUnknownOpcode
}
