package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		in       Type
		expected string
	}{
		{TypeI8, "i8"},
		{TypeU8, "u8"},
		{TypeI16, "i16"},
		{TypeU16, "u16"},
		{TypeI32, "i32"},
		{TypeU32, "u32"},
		{TypeI64, "i64"},
		{TypeU64, "u64"},
		{TypeF32, "f32"},
		{TypeF64, "f64"},
		{TypePtr, "ptr"},
		{TypeBool, "bool"},
		{TypeV128, "v128"},
		{TypeVoid, "void"},
		{Type(0xEE), "type(0xee)"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.in.String())
		})
	}
}

func TestValue_IntRoundTrip(t *testing.T) {
	require.Equal(t, int32(-1), I32(-1).I32())
	require.Equal(t, uint32(0xFFFFFFFF), U32(0xFFFFFFFF).U32())
	require.Equal(t, int64(-42), I64(-42).I64())
	require.Equal(t, uint64(0xDEADBEEFCAFEF00D), U64(0xDEADBEEFCAFEF00D).U64())
	require.Equal(t, uint32(0x1000), Ptr(0x1000).Ptr())
}

func TestValue_FloatRoundTrip(t *testing.T) {
	require.Equal(t, float32(3.5), F32(3.5).F32())
	require.Equal(t, 2.71828, F64(2.71828).F64())
}

func TestValue_Bool(t *testing.T) {
	require.True(t, Bool(true).Bool())
	require.False(t, Bool(false).Bool())
}

func TestValue_Type(t *testing.T) {
	require.Equal(t, TypeI32, I32(1).Type())
	require.Equal(t, TypePtr, Ptr(1).Type())
	require.Equal(t, TypeVoid, Void.Type())
}

// TestValue_RawMove exercises the type-agnostic 64-bit copy MOV relies
// on: a raw move must not corrupt a typed read of a differently-typed
// source bit pattern, only change the destination's existing payload.
func TestValue_RawMove(t *testing.T) {
	src := F64(1.5)
	var dst Value
	dst.SetRaw(src.Raw())
	require.Equal(t, src.Raw(), dst.Raw())
}

func TestValue_String(t *testing.T) {
	require.Equal(t, "void", Void.String())
	require.Contains(t, I32(5).String(), "i32")
	require.Contains(t, Bool(true).String(), "true")
}
