package engine

import (
	"context"
	"math"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbop"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// run is the dispatcher (C9): "a single tight loop reads a one-byte
// opcode and jumps to the corresponding handler" (spec.md §4.1). It
// returns the value left in R0 when the base frame is popped.
func (ec *execContext) run(ctx context.Context) (api.Value, error) {
	ec.ctx = ctx
	for {
		instrPC := ec.pc
		op := espbop.Opcode(ec.u8())

		done, retVal, err := ec.step(ctx, op, instrPC)
		if err != nil {
			return api.Void, err
		}
		if done {
			return retVal, nil
		}
	}
}

// step executes one instruction. instrPC is the offset of the opcode
// byte itself, needed by BR/BR_IF/BR_TABLE which count their offset
// "from the start of the branch instruction" (spec.md §4.1).
func (ec *execContext) step(ctx context.Context, op espbop.Opcode, instrPC int) (done bool, retVal api.Value, err error) {
	switch op {
	case espbop.OpNop0, espbop.OpNop1:
		return false, api.Void, nil

	case espbop.OpUnreachable:
		return false, api.Void, espbruntime.ErrUnreachable

	case espbop.OpEnd:
		var rv api.Value
		if len(ec.frame) > 0 {
			rv = ec.frame[0]
		}
		finished, err := ec.returnFromCall(rv)
		if err != nil {
			return false, api.Void, err
		}
		if finished {
			return true, rv, nil
		}
		return false, api.Void, nil

	case espbop.OpBr:
		off := int(ec.i16())
		if off == 0 && ec.listener != nil {
			ec.listener.BadBranch(ec.ctx, ec.currentFuncIndex(), instrPC)
		}
		ec.pc = instrPC + off
		return false, api.Void, nil

	case espbop.OpBrIf:
		v, err := ec.readReg()
		if err != nil {
			return false, api.Void, err
		}
		off := int(ec.i16())
		if v.Bool() {
			if off == 0 && ec.listener != nil {
				ec.listener.BadBranch(ec.ctx, ec.currentFuncIndex(), instrPC)
			}
			ec.pc = instrPC + off
		}
		return false, api.Void, nil

	case espbop.OpBrTable:
		v, err := ec.readReg()
		if err != nil {
			return false, api.Void, err
		}
		idx := v.U32()
		count := ec.u16()
		offs := make([]int16, count)
		for i := range offs {
			offs[i] = ec.i16()
		}
		def := ec.i16()
		if int(idx) < len(offs) {
			ec.pc = instrPC + int(offs[idx])
		} else {
			ec.pc = instrPC + int(def)
		}
		return false, api.Void, nil

	case espbop.OpCallImport:
		importIndex := uint32(ec.u16())
		if err := ec.execImportCall(ctx, importIndex); err != nil {
			return false, api.Void, err
		}
		return false, api.Void, nil

	case espbop.OpCall:
		localIndex := uint32(ec.u16())
		return false, api.Void, ec.execLocalCall(ec.instance.Module.NumImports() + localIndex)

	case espbop.OpCallIndirect:
		return false, api.Void, ec.execCallIndirect(false)

	case espbop.OpCallIndirectPtr:
		return false, api.Void, ec.execCallIndirect(true)

	case espbop.OpLdcI32Imm:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, api.I32(ec.i32()))

	case espbop.OpLdcI64Imm:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, api.I64(ec.i64()))

	case espbop.OpLdcF32Imm:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, api.F32(ec.f32()))

	case espbop.OpLdcF64Imm:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, api.F64(ec.f64()))

	case espbop.OpLdcPtrImm:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, api.Ptr(ec.u32()))

	case espbop.OpMov:
		dst, err := ec.readRegIndex()
		if err != nil {
			return false, api.Void, err
		}
		src, err := ec.readReg()
		if err != nil {
			return false, api.Void, err
		}
		return false, api.Void, ec.setReg(dst, src)

	case espbop.OpLdGlobalAddr:
		return false, api.Void, ec.execLdGlobalAddr()
	case espbop.OpLdGlobal:
		return false, api.Void, ec.execLdGlobal()
	case espbop.OpStGlobal:
		return false, api.Void, ec.execStGlobal()

	case espbop.OpAddrOf:
		return false, api.Void, ec.execAddrOf()
	case espbop.OpAllocaOp:
		return false, api.Void, ec.execAlloca()

	case espbop.OpSelectI32, espbop.OpSelectI64, espbop.OpSelectF32, espbop.OpSelectF64:
		return false, api.Void, ec.execSelect(op)

	case espbop.OpI32WrapI64, espbop.OpI64ExtendI32S, espbop.OpI64ExtendI32U,
		espbop.OpI32TruncF32S, espbop.OpI32TruncF32U, espbop.OpI32TruncF64S, espbop.OpI32TruncF64U,
		espbop.OpI64TruncF32S, espbop.OpI64TruncF64S,
		espbop.OpF32ConvertI32S, espbop.OpF32ConvertI64S, espbop.OpF64ConvertI32S, espbop.OpF64ConvertI64S,
		espbop.OpF32DemoteF64, espbop.OpF64PromoteF32, espbop.OpPtrToI32, espbop.OpI32ToPtr:
		return false, api.Void, ec.execConvert(op)

	case espbop.OpAtomicRmwAddI32, espbop.OpAtomicRmwAddI64, espbop.OpAtomicCmpxchgI32, espbop.OpAtomicCmpxchgI64,
		espbop.OpAtomicLoadI32, espbop.OpAtomicLoadI64, espbop.OpAtomicStoreI32, espbop.OpAtomicStoreI64, espbop.OpAtomicFence:
		return false, api.Void, ec.execAtomic(op)
	}

	if t, aop, ok := espbop.DecodeArith(op); ok {
		return false, api.Void, ec.execArith(t, aop, false)
	}
	if t, aop, ok := espbop.DecodeArithImm8(op); ok {
		return false, api.Void, ec.execArith(t, aop, true)
	}
	if t, ok := espbop.DecodeLoad(op); ok {
		return false, api.Void, ec.execLoad(t)
	}
	if t, ok := espbop.DecodeStore(op); ok {
		return false, api.Void, ec.execStore(t)
	}
	if t, cop, ok := espbop.DecodeCmp(op); ok {
		return false, api.Void, ec.execCmp(t, cop)
	}
	if byte(op) == espbop.OpExtendedPrefix {
		return false, api.Void, ec.execExtended()
	}

	return false, api.Void, espbruntime.ErrUnknownOpcode
}

// execLocalCall implements the CALL(0x0A) protocol of spec.md §4.2:
// isolate arguments into a temp array, then run the leaf/non-leaf
// frame-push logic.
func (ec *execContext) execLocalCall(globalIndex uint32) error {
	target, ok := localFunction(ec.instance.Module, globalIndex)
	if !ok {
		return espbruntime.ErrInvalidFuncIndex
	}
	n := len(target.signature.Params)
	if n > maxCallArgs {
		n = maxCallArgs
	}
	args := make([]api.Value, n)
	for i := 0; i < n && i < len(ec.frame); i++ {
		args[i] = ec.frame[i]
	}

	if ec.jitEnabled && target.body.JIT != nil {
		return ec.callCompiled(target, args)
	}
	return ec.callLocal(target, ec.pc, args)
}

// callCompiled is the JIT-coupling seam (spec.md §4.2, §9): a function
// body carrying compiled code runs outside the dispatcher loop
// entirely, with R0 of the current frame receiving its result exactly
// as END would have left it there.
func (ec *execContext) callCompiled(target *function, args []api.Value) error {
	if ec.listener != nil {
		ec.ctx = ec.listener.Before(ec.ctx, target.globalIndex, args)
	}
	results, err := target.body.JIT.Call(args)
	if ec.listener != nil {
		ec.listener.After(ec.ctx, target.globalIndex, err, results)
	}
	if err != nil {
		return err
	}
	if len(results) > 0 && len(ec.frame) > 0 {
		ec.frame[0] = results[0]
	}
	return nil
}

// execCallIndirect implements CALL_INDIRECT(0x0B)/CALL_INDIRECT_PTR(0x0D),
// spec.md §4.2's three-path classification.
func (ec *execContext) execCallIndirect(allowNative bool) error {
	fnRegIdx, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	expectedSig := ec.u16()
	fnVal := ec.frame[fnRegIdx]
	raw := fnVal.U32()

	mod := ec.instance.Module

	if raw < mod.NumFunctions() {
		target, ok := localFunction(mod, mod.NumImports()+raw)
		if !ok {
			return espbruntime.ErrInvalidFuncIndex
		}
		if target.body.SignatureIndex != uint32(expectedSig) {
			return espbruntime.ErrIndirectCallTypeMismatch
		}
		return ec.execLocalCall(target.globalIndex)
	}

	ptr := raw
	if funcIndex, ok := mod.FunctionIndexByDataOffset(ptr); ok {
		target, ok := localFunction(mod, mod.NumImports()+funcIndex)
		if !ok {
			return espbruntime.ErrInvalidFuncIndex
		}
		expected := mod.Signatures[expectedSig]
		if !target.signature.Compatible(expected) {
			return espbruntime.ErrIndirectCallTypeMismatch
		}
		return ec.execLocalCall(target.globalIndex)
	}

	if !allowNative {
		return espbruntime.ErrIndirectCallTargetUnmapped
	}

	expected := mod.Signatures[expectedSig]
	n := len(expected.Params)
	args := make([]api.Value, n)
	for i := 0; i < n; i++ {
		idx, err := ec.readRegIndex()
		if err != nil {
			return err
		}
		args[i] = ec.frame[idx]
	}
	return ec.execNativePointerCall(ptr, expected, args)
}

func (ec *execContext) execLdGlobalAddr() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	sym := ec.u16()
	if sym&espbop.FuncRefFlag != 0 {
		off, ok := ec.instance.Module.DataOffsetByFunctionIndex(uint32(sym &^ espbop.FuncRefFlag))
		if !ok {
			return espbruntime.ErrInvalidGlobalIndex
		}
		return ec.setReg(dst, api.Ptr(off))
	}
	return ec.setReg(dst, api.Ptr(uint32(sym)))
}

func (ec *execContext) execLdGlobal() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	sym := ec.u16()
	if sym&espbop.FuncRefFlag != 0 {
		off, ok := ec.instance.Module.DataOffsetByFunctionIndex(uint32(sym &^ espbop.FuncRefFlag))
		if !ok {
			return espbruntime.ErrInvalidGlobalIndex
		}
		return ec.setReg(dst, api.Ptr(off))
	}
	globals := ec.instance.Globals()
	if int(sym) >= len(globals) {
		return espbruntime.ErrInvalidGlobalIndex
	}
	return ec.setReg(dst, globals[sym])
}

func (ec *execContext) execStGlobal() error {
	src, err := ec.readReg()
	if err != nil {
		return err
	}
	idx := ec.u16()
	globals := ec.instance.Globals()
	mod := ec.instance.Module
	if int(idx) >= len(globals) || int(idx) >= len(mod.Globals) {
		return espbruntime.ErrInvalidGlobalIndex
	}
	if !mod.Globals[idx].Mutable {
		return espbruntime.ErrInvalidGlobalIndex
	}
	globals[idx] = src
	return nil
}

func (ec *execContext) execAddrOf() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	src, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addr := ec.shadow.fp + uint32(src)*valueSize
	return ec.setReg(dst, api.Ptr(addr))
}

func (ec *execContext) execAlloca() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	size := ec.u32()
	off, err := ec.instance.heap.Malloc(size)
	if err != nil {
		return espbruntime.ErrMemoryAlloc
	}
	top := ec.calls.top()
	if top != nil {
		if err := top.pushAlloca(off); err != nil {
			_ = ec.instance.heap.Free(off)
			return err
		}
	}
	return ec.setReg(dst, api.Ptr(off))
}

func (ec *execContext) execSelect(op espbop.Opcode) error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	cond, err := ec.readReg()
	if err != nil {
		return err
	}
	tVal, err := ec.readReg()
	if err != nil {
		return err
	}
	fVal, err := ec.readReg()
	if err != nil {
		return err
	}
	if cond.Bool() {
		return ec.setReg(dst, tVal)
	}
	return ec.setReg(dst, fVal)
}

// execLoad/execStore compute the target as the address register's
// pointer plus the signed i16 offset and bounds-check it against
// memory_data. Every access goes through that check: an address outside
// memory_data fails with ErrOutOfBoundsMemory and is never dereferenced
// as an absolute native address.
func (ec *execContext) execLoad(t espbop.MemType) error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addrReg, err := ec.readReg()
	if err != nil {
		return err
	}
	offset := ec.i16()
	addr := uint32(int64(addrReg.Ptr()) + int64(offset))
	return ec.loadInto(dst, t, addr)
}

func (ec *execContext) execStore(t espbop.MemType) error {
	srcIdx, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addrReg, err := ec.readReg()
	if err != nil {
		return err
	}
	offset := ec.i16()
	addr := uint32(int64(addrReg.Ptr()) + int64(offset))
	return ec.storeFrom(ec.frame[srcIdx], t, addr)
}

func (ec *execContext) loadInto(dst int, t espbop.MemType, addr uint32) error {
	mem := ec.instance.memoryData
	width := memWidth(t)
	if uint64(addr)+uint64(width) > uint64(len(mem)) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	raw := mem[addr : addr+width]
	switch t {
	case espbop.MemI8:
		return ec.setReg(dst, api.I32(int32(int8(raw[0]))))
	case espbop.MemU8:
		return ec.setReg(dst, api.I32(int32(raw[0])))
	case espbop.MemI16:
		return ec.setReg(dst, api.I32(int32(int16(leU16(raw)))))
	case espbop.MemU16:
		return ec.setReg(dst, api.I32(int32(leU16(raw))))
	case espbop.MemI32:
		return ec.setReg(dst, api.I32(int32(leU32(raw))))
	case espbop.MemI64:
		return ec.setReg(dst, api.I64(int64(leU64(raw))))
	case espbop.MemF32:
		return ec.setReg(dst, api.F32(math.Float32frombits(leU32(raw))))
	case espbop.MemF64:
		return ec.setReg(dst, api.F64(math.Float64frombits(leU64(raw))))
	case espbop.MemPtr:
		return ec.setReg(dst, api.Ptr(leU32(raw)))
	case espbop.MemBool:
		return ec.setReg(dst, api.Bool(raw[0] != 0))
	}
	return espbruntime.ErrInvalidOperand
}

func (ec *execContext) storeFrom(v api.Value, t espbop.MemType, addr uint32) error {
	mem := ec.instance.memoryData
	width := memWidth(t)
	if uint64(addr)+uint64(width) > uint64(len(mem)) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	raw := mem[addr : addr+width]
	switch t {
	case espbop.MemI8, espbop.MemU8:
		raw[0] = byte(v.I32())
	case espbop.MemI16, espbop.MemU16:
		putU16(raw, uint16(v.I32()))
	case espbop.MemI32:
		putU32(raw, uint32(v.I32()))
	case espbop.MemI64:
		putU64(raw, uint64(v.I64()))
	case espbop.MemF32:
		putU32(raw, math.Float32bits(v.F32()))
	case espbop.MemF64:
		putU64(raw, math.Float64bits(v.F64()))
	case espbop.MemPtr:
		putU32(raw, v.Ptr())
	case espbop.MemBool:
		if v.Bool() {
			raw[0] = 1
		} else {
			raw[0] = 0
		}
	default:
		return espbruntime.ErrInvalidOperand
	}
	return nil
}

func memWidth(t espbop.MemType) uint32 {
	switch t {
	case espbop.MemI8, espbop.MemU8, espbop.MemBool:
		return 1
	case espbop.MemI16, espbop.MemU16:
		return 2
	case espbop.MemI32, espbop.MemF32, espbop.MemPtr:
		return 4
	case espbop.MemI64, espbop.MemF64:
		return 8
	}
	return 0
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (ec *execContext) execCmp(t espbop.CmpType, op espbop.CmpOp) error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	a, err := ec.readReg()
	if err != nil {
		return err
	}
	b, err := ec.readReg()
	if err != nil {
		return err
	}

	var result bool
	switch t {
	case espbop.CmpI32S:
		result = cmpOrdered(int64(a.I32()), int64(b.I32()), op)
	case espbop.CmpI32U:
		result = cmpOrdered(uint64(a.U32()), uint64(b.U32()), op)
	case espbop.CmpI64S:
		result = cmpOrdered(a.I64(), b.I64(), op)
	case espbop.CmpI64U:
		result = cmpOrdered(a.U64(), b.U64(), op)
	case espbop.CmpF32:
		af, bf := a.F32(), b.F32()
		if math.IsNaN(float64(af)) || math.IsNaN(float64(bf)) {
			if op == espbop.CmpEq || op == espbop.CmpNe {
				return espbruntime.ErrTypeMismatch
			}
			return ec.setReg(dst, api.Bool(false))
		}
		result = cmpOrdered(float64(af), float64(bf), op)
	case espbop.CmpF64:
		af, bf := a.F64(), b.F64()
		if math.IsNaN(af) || math.IsNaN(bf) {
			if op == espbop.CmpEq || op == espbop.CmpNe {
				return espbruntime.ErrTypeMismatch
			}
			return ec.setReg(dst, api.Bool(false))
		}
		result = cmpOrdered(af, bf, op)
	}
	return ec.setReg(dst, api.Bool(result))
}

type ordered interface {
	~int64 | ~uint64 | ~float64
}

func cmpOrdered[T ordered](a, b T, op espbop.CmpOp) bool {
	switch op {
	case espbop.CmpEq:
		return a == b
	case espbop.CmpNe:
		return a != b
	case espbop.CmpLt:
		return a < b
	case espbop.CmpGt:
		return a > b
	case espbop.CmpLe:
		return a <= b
	case espbop.CmpGe:
		return a >= b
	}
	return false
}

func (ec *execContext) execAtomic(op espbop.Opcode) error {
	switch op {
	case espbop.OpAtomicFence:
		return nil
	case espbop.OpAtomicLoadI32:
		dst, err := ec.readRegIndex()
		if err != nil {
			return err
		}
		addr, err := ec.readReg()
		if err != nil {
			return err
		}
		return ec.loadInto(dst, espbop.MemI32, addr.Ptr())
	case espbop.OpAtomicLoadI64:
		dst, err := ec.readRegIndex()
		if err != nil {
			return err
		}
		addr, err := ec.readReg()
		if err != nil {
			return err
		}
		return ec.loadInto(dst, espbop.MemI64, addr.Ptr())
	case espbop.OpAtomicStoreI32:
		addr, err := ec.readReg()
		if err != nil {
			return err
		}
		v, err := ec.readReg()
		if err != nil {
			return err
		}
		return ec.storeFrom(v, espbop.MemI32, addr.Ptr())
	case espbop.OpAtomicStoreI64:
		addr, err := ec.readReg()
		if err != nil {
			return err
		}
		v, err := ec.readReg()
		if err != nil {
			return err
		}
		return ec.storeFrom(v, espbop.MemI64, addr.Ptr())
	case espbop.OpAtomicRmwAddI32:
		return ec.execAtomicRmwAdd32()
	case espbop.OpAtomicRmwAddI64:
		return ec.execAtomicRmwAdd64()
	case espbop.OpAtomicCmpxchgI32:
		return ec.execAtomicCmpxchg32()
	case espbop.OpAtomicCmpxchgI64:
		return ec.execAtomicCmpxchg64()
	}
	return espbruntime.ErrUnknownOpcode
}

// execAtomicRmwAdd32/64 and execAtomicCmpxchg32/64: dst reg, addr reg,
// value reg [, cmp reg for CMPXCHG]. Single-threaded-per-context
// dispatch makes these operations trivially sequentially consistent
// within one context (spec.md §5); cross-context consistency is the
// host's concern, same as real CPU atomics.
func (ec *execContext) execAtomicRmwAdd32() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addr, err := ec.readReg()
	if err != nil {
		return err
	}
	delta, err := ec.readReg()
	if err != nil {
		return err
	}
	old := api.Void
	if err := ec.loadIntoValue(&old, espbop.MemI32, addr.Ptr()); err != nil {
		return err
	}
	if err := ec.storeFrom(api.I32(old.I32()+delta.I32()), espbop.MemI32, addr.Ptr()); err != nil {
		return err
	}
	return ec.setReg(dst, old)
}

func (ec *execContext) execAtomicRmwAdd64() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addr, err := ec.readReg()
	if err != nil {
		return err
	}
	delta, err := ec.readReg()
	if err != nil {
		return err
	}
	var old api.Value
	if err := ec.loadIntoValue(&old, espbop.MemI64, addr.Ptr()); err != nil {
		return err
	}
	if err := ec.storeFrom(api.I64(old.I64()+delta.I64()), espbop.MemI64, addr.Ptr()); err != nil {
		return err
	}
	return ec.setReg(dst, old)
}

func (ec *execContext) execAtomicCmpxchg32() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addr, err := ec.readReg()
	if err != nil {
		return err
	}
	expect, err := ec.readReg()
	if err != nil {
		return err
	}
	newVal, err := ec.readReg()
	if err != nil {
		return err
	}
	var old api.Value
	if err := ec.loadIntoValue(&old, espbop.MemI32, addr.Ptr()); err != nil {
		return err
	}
	if old.I32() == expect.I32() {
		if err := ec.storeFrom(newVal, espbop.MemI32, addr.Ptr()); err != nil {
			return err
		}
	}
	return ec.setReg(dst, old)
}

func (ec *execContext) execAtomicCmpxchg64() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	addr, err := ec.readReg()
	if err != nil {
		return err
	}
	expect, err := ec.readReg()
	if err != nil {
		return err
	}
	newVal, err := ec.readReg()
	if err != nil {
		return err
	}
	var old api.Value
	if err := ec.loadIntoValue(&old, espbop.MemI64, addr.Ptr()); err != nil {
		return err
	}
	if old.I64() == expect.I64() {
		if err := ec.storeFrom(newVal, espbop.MemI64, addr.Ptr()); err != nil {
			return err
		}
	}
	return ec.setReg(dst, old)
}

// loadIntoValue is loadInto without a destination register, used by
// the atomic RMW/CMPXCHG handlers that need the prior value in hand
// before writing a new one.
func (ec *execContext) loadIntoValue(out *api.Value, t espbop.MemType, addr uint32) error {
	mem := ec.instance.memoryData
	width := memWidth(t)
	if uint64(addr)+uint64(width) > uint64(len(mem)) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	raw := mem[addr : addr+width]
	switch t {
	case espbop.MemI32:
		*out = api.I32(int32(leU32(raw)))
	case espbop.MemI64:
		*out = api.I64(int64(leU64(raw)))
	default:
		return espbruntime.ErrInvalidOperand
	}
	return nil
}

func (ec *execContext) execExtended() error {
	sub := espbop.ExtOp(ec.u8())
	switch sub {
	case espbop.ExtMemoryInit:
		return ec.execMemoryInit()
	case espbop.ExtMemoryCopy:
		return ec.execMemoryCopy()
	case espbop.ExtMemoryFill:
		return ec.execMemoryFill()
	case espbop.ExtDataDrop:
		return ec.execDataDrop()
	case espbop.ExtHeapMalloc:
		return ec.execHeapMalloc()
	case espbop.ExtHeapCalloc:
		return ec.execHeapCalloc()
	case espbop.ExtHeapRealloc:
		return ec.execHeapRealloc()
	case espbop.ExtHeapFree:
		return ec.execHeapFree()
	case espbop.ExtTableInit:
		return ec.execTableInit()
	case espbop.ExtTableGet:
		return ec.execTableGet()
	case espbop.ExtTableSet:
		return ec.execTableSet()
	case espbop.ExtTableSize:
		return ec.execTableSize()
	case espbop.ExtTableCopy:
		return ec.execTableCopy()
	case espbop.ExtTableFill:
		return ec.execTableFill()
	}
	return espbruntime.ErrUnknownOpcode
}
