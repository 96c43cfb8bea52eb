package ffi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

func TestMapType(t *testing.T) {
	require.Equal(t, ABIFloat, MapType(api.TypeF32))
	require.Equal(t, ABIFloat, MapType(api.TypeF64))
	require.Equal(t, ABIPointer, MapType(api.TypePtr))
	require.Equal(t, ABIInteger, MapType(api.TypeI32))
	require.Equal(t, ABIInteger, MapType(api.TypeI64))
	require.Equal(t, ABIInteger, MapType(api.TypeBool))
}

func TestToWord_FromWord_IntegerRoundTrip(t *testing.T) {
	v := api.I32(-7)
	word := ToWord(v)
	back := FromWord(word, api.TypeI32)
	require.Equal(t, int32(-7), back.I32())
}

func TestToWord_FromWord_FloatRoundTrip(t *testing.T) {
	v := api.F32(3.25)
	word := ToWord(v)
	require.Equal(t, uintptr(math.Float32bits(3.25)), word)
	back := FromWord(word, api.TypeF32)
	require.Equal(t, float32(3.25), back.F32())

	v64 := api.F64(1.5)
	word64 := ToWord(v64)
	back64 := FromWord(word64, api.TypeF64)
	require.Equal(t, 1.5, back64.F64())
}

func TestToWord_FromWord_PtrRoundTrip(t *testing.T) {
	v := api.Ptr(0x1000)
	word := ToWord(v)
	back := FromWord(word, api.TypePtr)
	require.Equal(t, uint32(0x1000), back.Ptr())
}

func TestFromWord_Void(t *testing.T) {
	back := FromWord(0xFF, api.TypeVoid)
	require.Equal(t, api.TypeVoid, back.Type())
}

func TestFromWord_U64(t *testing.T) {
	back := FromWord(uintptr(0xABCD), api.TypeU64)
	require.Equal(t, uint64(0xABCD), back.U64())
}
