package engine

import (
	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// execMemoryInit/execMemoryCopy/execMemoryFill/execDataDrop implement
// the MEMORY.* and DATA.DROP extended (0xFC) opcodes (spec.md §4.1).
// Operand layouts: INIT is dst addr reg, u16 segment, src offset reg,
// size reg; COPY is dst addr reg, src addr reg, size reg; FILL is dst
// addr reg, value reg, size reg; DATA.DROP is u16 segment.
func (ec *execContext) execMemoryInit() error {
	dstReg, err := ec.readReg()
	if err != nil {
		return err
	}
	segIdx := ec.u16()
	srcOffReg, err := ec.readReg()
	if err != nil {
		return err
	}
	lenReg, err := ec.readReg()
	if err != nil {
		return err
	}

	segs := ec.instance.Module.DataSegments
	if int(segIdx) >= len(segs) {
		return espbruntime.ErrInvalidOperand
	}
	seg := segs[segIdx]
	if seg.Dropped {
		return espbruntime.ErrInvalidOperand
	}
	srcOff := srcOffReg.U32()
	n := lenReg.U32()
	if uint64(srcOff)+uint64(n) > uint64(len(seg.Data)) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	if !ec.instance.WriteBytes(dstReg.Ptr(), seg.Data[srcOff:srcOff+n]) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	return nil
}

func (ec *execContext) execMemoryCopy() error {
	dstReg, err := ec.readReg()
	if err != nil {
		return err
	}
	srcReg, err := ec.readReg()
	if err != nil {
		return err
	}
	lenReg, err := ec.readReg()
	if err != nil {
		return err
	}
	n := lenReg.U32()
	data, ok := ec.instance.ReadBytes(srcReg.Ptr(), n)
	if !ok {
		return espbruntime.ErrOutOfBoundsMemory
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	if !ec.instance.WriteBytes(dstReg.Ptr(), buf) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	return nil
}

func (ec *execContext) execMemoryFill() error {
	dstReg, err := ec.readReg()
	if err != nil {
		return err
	}
	valReg, err := ec.readReg()
	if err != nil {
		return err
	}
	lenReg, err := ec.readReg()
	if err != nil {
		return err
	}
	n := lenReg.U32()
	buf := make([]byte, n)
	b := byte(valReg.I32())
	for i := range buf {
		buf[i] = b
	}
	if !ec.instance.WriteBytes(dstReg.Ptr(), buf) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	return nil
}

func (ec *execContext) execDataDrop() error {
	segIdx := ec.u16()
	segs := ec.instance.Module.DataSegments
	if int(segIdx) >= len(segs) {
		return espbruntime.ErrInvalidOperand
	}
	segs[segIdx].Dropped = true
	return nil
}

// execHeapMalloc/Calloc/Realloc/Free: dst reg [, size/ptr regs].
func (ec *execContext) execHeapMalloc() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	sizeReg, err := ec.readReg()
	if err != nil {
		return err
	}
	off, err := ec.instance.heap.Malloc(sizeReg.U32())
	if err != nil {
		return espbruntime.ErrMemoryAlloc
	}
	return ec.setReg(dst, api.Ptr(off))
}

func (ec *execContext) execHeapCalloc() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	nReg, err := ec.readReg()
	if err != nil {
		return err
	}
	sizeReg, err := ec.readReg()
	if err != nil {
		return err
	}
	off, err := ec.instance.heap.Calloc(nReg.U32(), sizeReg.U32())
	if err != nil {
		return espbruntime.ErrMemoryAlloc
	}
	return ec.setReg(dst, api.Ptr(off))
}

func (ec *execContext) execHeapRealloc() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	ptrReg, err := ec.readReg()
	if err != nil {
		return err
	}
	sizeReg, err := ec.readReg()
	if err != nil {
		return err
	}
	off, err := ec.instance.heap.Realloc(ptrReg.Ptr(), sizeReg.U32())
	if err != nil {
		return espbruntime.ErrMemoryAlloc
	}
	return ec.setReg(dst, api.Ptr(off))
}

func (ec *execContext) execHeapFree() error {
	ptrReg, err := ec.readReg()
	if err != nil {
		return err
	}
	return ec.instance.heap.Free(ptrReg.Ptr())
}

// execTableInit/Get/Set/Size/Copy/Fill: indirect-call table
// management (spec.md §4.1).
func (ec *execContext) execTableInit() error {
	segIdx := ec.u16()
	dstOffReg, err := ec.readReg()
	if err != nil {
		return err
	}
	segs := ec.instance.Module.ElementSegments
	if int(segIdx) >= len(segs) {
		return espbruntime.ErrInvalidOperand
	}
	seg := segs[segIdx]
	base := dstOffReg.U32()
	for i, fn := range seg.FuncIndices {
		ec.instance.TableSet(base+uint32(i), fn)
	}
	return nil
}

func (ec *execContext) execTableGet() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	slotReg, err := ec.readReg()
	if err != nil {
		return err
	}
	v, ok := ec.instance.TableGet(slotReg.U32())
	if !ok {
		return espbruntime.ErrOutOfBoundsMemory
	}
	return ec.setReg(dst, api.U32(v))
}

func (ec *execContext) execTableSet() error {
	slotReg, err := ec.readReg()
	if err != nil {
		return err
	}
	valReg, err := ec.readReg()
	if err != nil {
		return err
	}
	if !ec.instance.TableSet(slotReg.U32(), valReg.U32()) {
		return espbruntime.ErrOutOfBoundsMemory
	}
	return nil
}

func (ec *execContext) execTableSize() error {
	dst, err := ec.readRegIndex()
	if err != nil {
		return err
	}
	return ec.setReg(dst, api.U32(ec.instance.TableSize()))
}

func (ec *execContext) execTableCopy() error {
	dstReg, err := ec.readReg()
	if err != nil {
		return err
	}
	srcReg, err := ec.readReg()
	if err != nil {
		return err
	}
	nReg, err := ec.readReg()
	if err != nil {
		return err
	}
	dstBase, srcBase, n := dstReg.U32(), srcReg.U32(), nReg.U32()
	tmp := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		v, ok := ec.instance.TableGet(srcBase + i)
		if !ok {
			return espbruntime.ErrOutOfBoundsMemory
		}
		tmp[i] = v
	}
	for i, v := range tmp {
		if !ec.instance.TableSet(dstBase+uint32(i), v) {
			return espbruntime.ErrOutOfBoundsMemory
		}
	}
	return nil
}

func (ec *execContext) execTableFill() error {
	dstReg, err := ec.readReg()
	if err != nil {
		return err
	}
	valReg, err := ec.readReg()
	if err != nil {
		return err
	}
	nReg, err := ec.readReg()
	if err != nil {
		return err
	}
	base, val, n := dstReg.U32(), valReg.U32(), nReg.U32()
	for i := uint32(0); i < n; i++ {
		if !ec.instance.TableSet(base+i, val) {
			return espbruntime.ErrOutOfBoundsMemory
		}
	}
	return nil
}
