package espbmod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

func TestSignature_Compatible(t *testing.T) {
	a := Signature{Params: []api.Type{api.TypeI32, api.TypePtr}, Results: []api.Type{api.TypeI32}}
	b := Signature{Params: []api.Type{api.TypeI32, api.TypePtr}, Results: []api.Type{api.TypeI32}}
	c := Signature{Params: []api.Type{api.TypeI32}, Results: []api.Type{api.TypeI32}}
	d := Signature{Params: []api.Type{api.TypeI32, api.TypeF32}, Results: []api.Type{api.TypeI32}}

	require.True(t, a.Compatible(b))
	require.False(t, a.Compatible(c))
	require.False(t, a.Compatible(d))
}

func TestBuilder_FunctionIndexRoundTrip(t *testing.T) {
	b := NewBuilder()
	sig := b.WithSignature(Signature{Results: []api.Type{api.TypeI32}})
	localIdx := b.WithFunction(&FunctionBody{SignatureIndex: sig, NumVirtualRegs: 1})
	require.Equal(t, uint32(0), localIdx)

	m := b.Build()
	require.Equal(t, uint32(0), m.NumImports())
	require.Equal(t, uint32(1), m.NumFunctions())

	sigOut, ok := m.SignatureOf(m.NumImports() + localIdx)
	require.True(t, ok)
	require.Equal(t, []api.Type{api.TypeI32}, sigOut.Results)
}

// TestBuilder_FuncPtrMap exercises scenario S5's lookup: a function
// pointer recorded at a data-segment offset resolves back to its
// function index via binary search, and the reverse lookup (used by
// LD_GLOBAL's function-reference flag) agrees.
func TestBuilder_FuncPtrMap(t *testing.T) {
	b := NewBuilder()
	sig := b.WithSignature(Signature{Results: []api.Type{api.TypeI32}})
	fn0 := b.WithFunction(&FunctionBody{SignatureIndex: sig})
	fn1 := b.WithFunction(&FunctionBody{SignatureIndex: sig})

	// Register out of ascending order to exercise the builder's sort.
	b.WithFuncPtrAt(0x200, fn1)
	b.WithFuncPtrAt(0x100, fn0)

	m := b.Build()

	idx, ok := m.FunctionIndexByDataOffset(0x100)
	require.True(t, ok)
	require.Equal(t, fn0, idx)

	idx, ok = m.FunctionIndexByDataOffset(0x200)
	require.True(t, ok)
	require.Equal(t, fn1, idx)

	_, ok = m.FunctionIndexByDataOffset(0x999)
	require.False(t, ok)

	off, ok := m.DataOffsetByFunctionIndex(fn0)
	require.True(t, ok)
	require.Equal(t, uint32(0x100), off)

	_, ok = m.DataOffsetByFunctionIndex(99)
	require.False(t, ok)
}

func TestModule_SignatureOf_Import(t *testing.T) {
	b := NewBuilder()
	sig := b.WithSignature(Signature{Params: []api.Type{api.TypePtr}, Results: []api.Type{api.TypeI32}})
	impIdx := b.WithImport(Import{ModuleID: 1, EntityName: "printf", SignatureIndex: sig})
	m := b.Build()

	got, ok := m.SignatureOf(impIdx)
	require.True(t, ok)
	require.Equal(t, []api.Type{api.TypePtr}, got.Params)
}

func TestModule_HasFeature(t *testing.T) {
	b := NewBuilder().WithFeatures(FeatureCallbackAuto)
	m := b.Build()
	require.True(t, m.HasFeature(FeatureCallbackAuto))
	require.False(t, m.HasFeature(FeatureMarshallingMeta))
}
