package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/espbresolve"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbop"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// asm is a minimal little-endian bytecode assembler for these tests -
// there is no on-disk ESPB encoder in scope (spec.md §1), so tests
// build FunctionBody.Code by hand the same way the builder lets a
// Module be assembled without a binary loader.
type asm struct{ buf []byte }

func (a *asm) op(o espbop.Opcode) *asm { a.buf = append(a.buf, byte(o)); return a }
func (a *asm) u8(v byte) *asm          { a.buf = append(a.buf, v); return a }
func (a *asm) i8(v int8) *asm          { return a.u8(byte(v)) }
func (a *asm) u16(v uint16) *asm       { return a.u8(byte(v)).u8(byte(v >> 8)) }
func (a *asm) i16(v int16) *asm        { return a.u16(uint16(v)) }
func (a *asm) u32(v uint32) *asm {
	return a.u8(byte(v)).u8(byte(v >> 8)).u8(byte(v >> 16)).u8(byte(v >> 24))
}
func (a *asm) i32(v int32) *asm    { return a.u32(uint32(v)) }
func (a *asm) f32(v float32) *asm  { return a.u32(math.Float32bits(v)) }
func (a *asm) bytes() []byte       { return a.buf }
func (a *asm) pc() int16           { return int16(len(a.buf)) }

func TestEngine_LeafArithmetic(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{
		Params:  []api.Type{api.TypeI32, api.TypeI32},
		Results: []api.Type{api.TypeI32},
	})
	code := new(asm).op(espbop.ArithOpcode(espbop.ArithI32, espbop.ArithAdd)).u8(0).u8(0).u8(1).
		op(espbop.OpEnd).bytes()
	localIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: sig, NumVirtualRegs: 2, Flags: espbmod.FuncFlagIsLeaf, Code: code,
	})
	mod := b.Build()

	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+localIdx,
		[]api.Value{api.I32(3), api.I32(4)})
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(7), results[0].I32())
}

// TestEngine_NonLeafCall_PreservesCallerRegisters is scenario-adjacent
// to S1/P2: a non-leaf caller's own registers survive a CALL to a leaf
// callee untouched, except R0 which receives the callee's result.
// The callee is a leaf, so callLocal takes the leaf fast path: the
// callee's frame is placed above the caller's and no register snapshot
// is saved or restored.
func TestEngine_NonLeafCall_PreservesCallerRegisters(t *testing.T) {
	b := espbmod.NewBuilder()
	addSig := b.WithSignature(espbmod.Signature{
		Params:  []api.Type{api.TypeI32, api.TypeI32},
		Results: []api.Type{api.TypeI32},
	})
	addCode := new(asm).op(espbop.ArithOpcode(espbop.ArithI32, espbop.ArithAdd)).u8(0).u8(0).u8(1).
		op(espbop.OpEnd).bytes()
	addIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: addSig, NumVirtualRegs: 2, Flags: espbmod.FuncFlagIsLeaf, Code: addCode,
	})

	callerSig := b.WithSignature(espbmod.Signature{
		Params:  []api.Type{api.TypeI32},
		Results: []api.Type{api.TypeI32},
	})
	const sentinel = int32(0x0CAFE)
	callerCode := new(asm).
		op(espbop.OpLdcI32Imm).u8(1).i32(sentinel).
		op(espbop.OpCall).u16(uint16(addIdx)).
		op(espbop.OpStGlobal).u8(1).u16(0).
		op(espbop.OpEnd).bytes()
	callerIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: callerSig, NumVirtualRegs: 2, Code: callerCode,
	})
	b.WithGlobal(espbmod.Global{Type: api.TypeI32, Mutable: true, Init: api.I32(0)})

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+callerIdx, []api.Value{api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(5)+sentinel, results[0].I32())
	require.Equal(t, sentinel, eng.Instance().Globals()[0].I32())
}

func TestEngine_DivByZeroTrap(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	code := new(asm).op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithDiv)).u8(0).u8(0).i8(0).
		op(espbop.OpEnd).bytes()
	idx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf, Code: code})
	mod := b.Build()

	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+idx, []api.Value{api.I32(10)})
	require.ErrorIs(t, err, espbruntime.ErrDivByZero)
	require.Equal(t, api.ResultRuntimeTrapDivByZero, result)
}

func TestEngine_IntegerOverflowTrap(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	code := new(asm).op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithDiv)).u8(0).u8(0).i8(-1).
		op(espbop.OpEnd).bytes()
	idx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf, Code: code})
	mod := b.Build()

	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	const intMin32 = int32(-2147483648)
	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+idx, []api.Value{api.I32(intMin32)})
	require.ErrorIs(t, err, espbruntime.ErrIntegerOverflow)
	require.Equal(t, api.ResultRuntimeTrapIntegerOverflow, result)
}

// TestEngine_FloatCompareNaN is spec.md §4.1's "Float EQ/NE on NaN
// traps": CMP.EQ.F32 with one NaN operand must trap rather than
// return IEEE-754's default `false`. Ordering comparisons (LT/GT/...)
// have no such requirement and simply report `false`, matching IEEE
// 754 unordered comparisons.
func TestEngine_FloatCompareNaN(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Results: []api.Type{api.TypeBool}})
	code := new(asm).
		op(espbop.OpLdcF32Imm).u8(0).f32(float32(math.NaN())).
		op(espbop.OpLdcF32Imm).u8(1).f32(1.0).
		op(espbop.CmpOpcode(espbop.CmpF32, espbop.CmpEq)).u8(2).u8(0).u8(1).
		op(espbop.OpEnd).bytes()
	idx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 3, Flags: espbmod.FuncFlagIsLeaf, Code: code})
	mod := b.Build()

	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+idx, nil)
	require.ErrorIs(t, err, espbruntime.ErrTypeMismatch)
	require.Equal(t, api.ResultTypeMismatch, result)
}

// TestEngine_FloatCompareNaN_OrderingDoesNotTrap exercises the same
// NaN operand through an ordering comparison (CMP.LT.F32): unlike
// EQ/NE, spec.md does not require these to trap, so the handler must
// report the IEEE-754 "unordered" result of false instead.
func TestEngine_FloatCompareNaN_OrderingDoesNotTrap(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Results: []api.Type{api.TypeBool}})
	code := new(asm).
		op(espbop.OpLdcF32Imm).u8(0).f32(float32(math.NaN())).
		op(espbop.OpLdcF32Imm).u8(1).f32(1.0).
		op(espbop.CmpOpcode(espbop.CmpF32, espbop.CmpLt)).u8(2).u8(0).u8(1).
		op(espbop.OpEnd).bytes()
	idx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 3, Flags: espbmod.FuncFlagIsLeaf, Code: code})
	mod := b.Build()

	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+idx, nil)
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
}

// TestEngine_StackOverflowTrap is property B3: unconditional self-
// recursion with no base case exhausts the fixed-depth call stack and
// traps deterministically, regardless of shadow-stack sizing.
func TestEngine_StackOverflowTrap(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{})
	fb := &espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 0}
	selfIdx := b.WithFunction(fb)
	fb.Code = new(asm).op(espbop.OpCall).u16(uint16(selfIdx)).op(espbop.OpEnd).bytes()

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry(), WithCallStackDepth(8))
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+selfIdx, nil)
	require.ErrorIs(t, err, espbruntime.ErrStackOverflow)
	require.Equal(t, api.ResultStackOverflow, result)
}

// TestEngine_TrapLeavesNoStaleStateForNextInvoke is scenario S6: a
// trapped call must not corrupt state a later, independent Invoke on
// the same Engine/Instance relies on (each Invoke runs its own fresh
// execContext, so the call stack and shadow stack never leak between
// invocations).
func TestEngine_TrapLeavesNoStaleStateForNextInvoke(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	trapCode := new(asm).op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithDiv)).u8(0).u8(0).i8(0).
		op(espbop.OpEnd).bytes()
	trapIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf, Code: trapCode})

	okCode := new(asm).op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithAdd)).u8(0).u8(0).i8(1).
		op(espbop.OpEnd).bytes()
	okIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf, Code: okCode})

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+trapIdx, []api.Value{api.I32(1)})
	require.Error(t, err)
	require.Equal(t, api.ResultRuntimeTrapDivByZero, result)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+okIdx, []api.Value{api.I32(41)})
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(42), results[0].I32())
}

// TestEngine_CallIndirect_ByFunctionIndex covers CALL_INDIRECT path A
// (spec.md §4.2): the register already holds a small local function
// index.
func TestEngine_CallIndirect_ByFunctionIndex(t *testing.T) {
	b := espbmod.NewBuilder()
	identitySig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	identityIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: identitySig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf,
		Code: new(asm).op(espbop.OpEnd).bytes(),
	})

	callerSig := b.WithSignature(espbmod.Signature{Results: []api.Type{api.TypeI32}})
	callerCode := new(asm).
		op(espbop.OpLdcI32Imm).u8(0).i32(7).
		op(espbop.OpLdcI32Imm).u8(1).i32(int32(identityIdx)).
		op(espbop.OpCallIndirect).u8(1).u16(uint16(identitySig)).
		op(espbop.OpEnd).bytes()
	callerIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: callerSig, NumVirtualRegs: 2, Code: callerCode})

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+callerIdx, nil)
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(7), results[0].I32())
}

// TestEngine_CallIndirect_ByFuncPtrMap is scenario S5: a guest pointer
// that does not fall inside the small local-index range resolves
// through the function-pointer map instead (spec.md §4.2 path B).
func TestEngine_CallIndirect_ByFuncPtrMap(t *testing.T) {
	b := espbmod.NewBuilder()

	// Two throwaway functions precede the target, so its local index (2)
	// differs from the register value. That value, 0x100, is not below
	// NumFunctions() (4), which forces the ptr-map path.
	dummySig := b.WithSignature(espbmod.Signature{})
	b.WithFunction(&espbmod.FunctionBody{SignatureIndex: dummySig, NumVirtualRegs: 0, Flags: espbmod.FuncFlagIsLeaf, Code: new(asm).op(espbop.OpEnd).bytes()})
	b.WithFunction(&espbmod.FunctionBody{SignatureIndex: dummySig, NumVirtualRegs: 0, Flags: espbmod.FuncFlagIsLeaf, Code: new(asm).op(espbop.OpEnd).bytes()})

	identitySig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	identityIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: identitySig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf,
		Code: new(asm).op(espbop.OpEnd).bytes(),
	})
	const dataOffset = 0x100
	b.WithFuncPtrAt(dataOffset, identityIdx)

	callerSig := b.WithSignature(espbmod.Signature{Results: []api.Type{api.TypeI32}})
	callerCode := new(asm).
		op(espbop.OpLdcI32Imm).u8(0).i32(11).
		op(espbop.OpLdcPtrImm).u8(1).u32(dataOffset).
		op(espbop.OpCallIndirectPtr).u8(1).u16(uint16(identitySig)).
		op(espbop.OpEnd).bytes()
	callerIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: callerSig, NumVirtualRegs: 2, Code: callerCode})

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+callerIdx, nil)
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(11), results[0].I32())
}

func TestEngine_CallIndirect_SignatureMismatchTraps(t *testing.T) {
	b := espbmod.NewBuilder()
	identitySig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	identityIdx := b.WithFunction(&espbmod.FunctionBody{
		SignatureIndex: identitySig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf,
		Code: new(asm).op(espbop.OpEnd).bytes(),
	})
	wrongSig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeF64}, Results: []api.Type{api.TypeI32}})

	callerSig := b.WithSignature(espbmod.Signature{Results: []api.Type{api.TypeI32}})
	callerCode := new(asm).
		op(espbop.OpLdcI32Imm).u8(0).i32(1).
		op(espbop.OpLdcI32Imm).u8(1).i32(int32(identityIdx)).
		op(espbop.OpCallIndirect).u8(1).u16(uint16(wrongSig)).
		op(espbop.OpEnd).bytes()
	callerIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: callerSig, NumVirtualRegs: 2, Code: callerCode})

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), mod.NumImports()+callerIdx, nil)
	require.ErrorIs(t, err, espbruntime.ErrIndirectCallTypeMismatch)
	require.Equal(t, api.ResultTypeMismatch, result)
}

// TestEngine_HostImportCall exercises CALL_IMPORT against a Go
// callback (spec.md §4.3's no-marshalling-metadata path: args/results
// pass through as api.Value with no native ABI involved).
func TestEngine_HostImportCall(t *testing.T) {
	b := espbmod.NewBuilder()
	importSig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	importIdx := b.WithImport(espbmod.Import{ModuleID: 1, EntityName: "double", SignatureIndex: importSig})

	fnSig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})
	code := new(asm).
		op(espbop.OpCallImport).u16(uint16(importIdx)).u8(0).
		op(espbop.OpEnd).bytes()
	fnIdx := b.WithFunction(&espbmod.FunctionBody{SignatureIndex: fnSig, NumVirtualRegs: 1, Flags: espbmod.FuncFlagIsLeaf, Code: code})

	mod := b.Build()

	registry := espbresolve.NewRegistry()
	require.NoError(t, registry.Register(1, "double", espbresolve.ResolvedImport{
		GoFn: func(ctx context.Context, args []api.Value) ([]api.Value, error) {
			return []api.Value{api.I32(args[0].I32() * 2)}, nil
		},
	}))

	eng, err := NewEngine(mod, registry)
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+fnIdx, []api.Value{api.I32(21)})
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(42), results[0].I32())
}

// TestEngine_ShadowStackGrowth is property P3/B4: a deeply recursive
// non-leaf function (no base-case shortcut) forces the shadow stack to
// grow and relocate several times over the course of one call, and the
// byte-offset-based saved frames (shadowStack doc comment) must still
// resolve correctly across every growth.
//
// countdown(n) = 1 + countdown(n-1), countdown(0) = 0, so the result
// equals the input - a cheap correctness check that also proves every
// saved register frame survived relocation intact.
func TestEngine_ShadowStackGrowth(t *testing.T) {
	b := espbmod.NewBuilder()
	sig := b.WithSignature(espbmod.Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}})

	var idx uint32
	fb := &espbmod.FunctionBody{SignatureIndex: sig, NumVirtualRegs: 3}
	idx = b.WithFunction(fb)

	code := new(asm)
	code.op(espbop.OpLdcI32Imm).u8(1).i32(0)                                      // R1 = 0
	code.op(espbop.CmpOpcode(espbop.CmpI32S, espbop.CmpEq)).u8(2).u8(0).u8(1)     // R2 = (R0 == R1)
	brIfPC := code.pc()
	code.op(espbop.OpBrIf).u8(2).i16(0) // patched below
	code.op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithSub)).u8(1).u8(0).i8(1) // R1 = R0 - 1
	code.op(espbop.OpMov).u8(0).u8(1)                                             // R0 = R1
	code.op(espbop.OpCall).u16(uint16(idx))                                       // R0 = countdown(R0)
	code.op(espbop.ArithImm8Opcode(espbop.ArithI32, espbop.ArithAdd)).u8(0).u8(0).i8(1) // R0 = R0 + 1
	code.op(espbop.OpEnd)
	baseCaseEndPC := code.pc()
	code.op(espbop.OpEnd)

	raw := code.bytes()
	offset := int16(baseCaseEndPC) - int16(brIfPC)
	// patch the BR_IF's i16 offset operand (opcode, reg, then the two
	// offset bytes) now that the base-case target's pc is known.
	raw[brIfPC+2] = byte(offset)
	raw[brIfPC+3] = byte(offset >> 8)
	fb.Code = raw

	mod := b.Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry(),
		WithShadowStackSizing(64, 64), WithCallStackDepth(200))
	require.NoError(t, err)

	results, result, err := eng.Invoke(context.Background(), mod.NumImports()+idx, []api.Value{api.I32(50)})
	require.NoError(t, err)
	require.Equal(t, api.ResultOK, result)
	require.Equal(t, int32(50), results[0].I32())
}

func TestEngine_InvalidFuncIndex(t *testing.T) {
	mod := espbmod.NewBuilder().Build()
	eng, err := NewEngine(mod, espbresolve.NewRegistry())
	require.NoError(t, err)

	_, result, err := eng.Invoke(context.Background(), 0, nil)
	require.ErrorIs(t, err, espbruntime.ErrInvalidFuncIndex)
	require.Equal(t, api.ResultInvalidFuncIndex, result)
}
