package engine

import (
	"context"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// maxCallArgs is "Maximum copied arguments per call is 16" (spec.md §4.2).
const maxCallArgs = 16

// execContext is one execution context: its own shadow stack and call
// stack, plus the function/pc currently executing (spec.md §5: "a
// single instance MAY be invoked concurrently by multiple host threads
// only if each thread passes its own execution context").
type execContext struct {
	instance    *Instance
	listener    api.FunctionListener
	jitEnabled  bool
	debugChecks bool
	ffiArgsMax  int

	shadow *shadowStack
	calls  *callStack

	ctx   context.Context
	fn    *function
	pc    int
	frame []api.Value
}

func newExecContext(instance *Instance, shadowInitial, shadowIncrement uint32, callDepth int, listener api.FunctionListener, jitEnabled, debugChecks bool, ffiArgsMax int) *execContext {
	if ffiArgsMax <= 0 {
		ffiArgsMax = maxCallArgs
	}
	return &execContext{
		instance:    instance,
		listener:    listener,
		jitEnabled:  jitEnabled,
		debugChecks: debugChecks,
		ffiArgsMax:  ffiArgsMax,
		shadow:      newShadowStack(shadowInitial, shadowIncrement),
		calls:       newCallStack(callDepth),
	}
}

// currentFuncIndex returns the global function index currently
// executing, or 0 if no function is active.
func (ec *execContext) currentFuncIndex() uint32 {
	if ec.fn == nil {
		return 0
	}
	return ec.fn.globalIndex
}

// refreshFrame re-fetches the current frame view from the shadow
// stack's own base, the discipline spec.md §4.5 requires after any
// operation that could have grown the buffer.
func (ec *execContext) refreshFrame() {
	numRegs := uint16(0)
	if ec.fn != nil {
		numRegs = ec.fn.body.NumVirtualRegs
	}
	if ec.debugChecks {
		required := uint64(ec.shadow.fp) + uint64(ec.shadow.frameSizeBytes(numRegs))
		if required > uint64(ec.shadow.capacity()) {
			panic(espbruntime.ErrStackOverflow)
		}
	}
	ec.frame = ec.shadow.frame(ec.shadow.fp, numRegs)
}

// callLocal implements spec.md §4.2's leaf/non-leaf CALL paths. args
// holds the caller-isolated argument vector (copied into a temp array
// by the caller before this runs, "so that re-entering the source
// frame... does not corrupt values").
func (ec *execContext) callLocal(target *function, returnPC int, args []api.Value) error {
	callerFn := ec.fn
	callerIndex := uint32(0)
	if callerFn != nil {
		callerIndex = callerFn.globalIndex
	}

	calleeSize := ec.shadow.frameSizeBytes(target.body.NumVirtualRegs)

	cf := callFrame{
		returnPC:            returnPC,
		callerFunctionIndex: callerIndex,
		savedFP:             ec.shadow.fp,
		savedFrameOffset:    noSavedFrame,
	}

	var newFP uint32
	if target.isLeaf() {
		// Leaf fast path: no register preservation (spec.md §4.2).
		required := uint64(ec.shadow.sp) + uint64(calleeSize)
		ec.shadow.ensure(uint32(required))
		newFP = ec.shadow.sp
		ec.shadow.sp = newFP + calleeSize
	} else {
		callerNumRegs := uint16(0)
		if callerFn != nil {
			callerNumRegs = callerFn.body.NumVirtualRegs
		}
		savedSize := ec.shadow.frameSizeBytes(callerNumRegs)

		required := uint64(ec.shadow.sp) + uint64(savedSize) + uint64(calleeSize)
		ec.shadow.ensure(uint32(required))

		savedOffset := ec.shadow.sp
		if savedSize > 0 {
			callerFrame := ec.shadow.frame(ec.shadow.fp, callerNumRegs)
			copy(ec.shadow.frame(savedOffset, callerNumRegs), callerFrame)
		}
		cf.savedFrameOffset = savedOffset
		cf.savedNumRegs = callerNumRegs

		newFP = savedOffset + savedSize
		ec.shadow.sp = newFP + calleeSize
	}

	if _, err := ec.calls.push(cf); err != nil {
		return err
	}

	ec.shadow.fp = newFP
	ec.fn = target
	ec.pc = 0
	ec.refreshFrame()

	n := len(args)
	if n > maxCallArgs {
		n = maxCallArgs
	}
	if n > len(ec.frame) {
		n = len(ec.frame)
	}
	for i := 0; i < len(ec.frame); i++ {
		ec.frame[i] = api.Void
	}
	copy(ec.frame[:n], args[:n])

	if ec.listener != nil {
		ec.ctx = ec.listener.Before(ec.ctx, target.globalIndex, args[:n])
	}

	return nil
}

// returnFromCall implements END (spec.md §4.2 "Return"): frees
// ALLOCAs, pops the call frame, restores the caller's saved registers
// if any, and reports whether execution is complete.
func (ec *execContext) returnFromCall(retVal api.Value) (done bool, err error) {
	freeAllocas(ec.instance.heap, ec.calls.top(), ec.debugChecks)

	finishedIndex := uint32(0)
	if ec.fn != nil {
		finishedIndex = ec.fn.globalIndex
	}

	popped, poperr := ec.calls.pop()
	if poperr != nil {
		if ec.listener != nil {
			ec.listener.After(ec.ctx, finishedIndex, poperr, nil)
		}
		return false, poperr
	}

	if ec.listener != nil {
		ec.listener.After(ec.ctx, finishedIndex, nil, []api.Value{retVal})
	}

	if popped.isBase() {
		return true, nil
	}

	ec.shadow.fp = popped.savedFP
	ec.shadow.sp = popped.savedFP + ec.shadow.frameSizeBytes(popped.savedNumRegs)

	if popped.savedFrameOffset != noSavedFrame {
		dst := ec.shadow.frame(popped.savedFP, popped.savedNumRegs)
		src := ec.shadow.frame(popped.savedFrameOffset, popped.savedNumRegs)
		copy(dst, src)
	}

	callerFn, ok := localFunction(ec.instance.Module, popped.callerFunctionIndex)
	if !ok {
		return false, espbruntime.ErrInvalidFuncIndex
	}
	ec.fn = callerFn
	ec.pc = popped.returnPC
	ec.refreshFrame()
	if len(ec.frame) > 0 {
		ec.frame[0] = retVal
	}
	return false, nil
}
