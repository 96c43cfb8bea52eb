package espbheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeap_MallocFree(t *testing.T) {
	h := New(make([]byte, 256))

	a, err := h.Malloc(32)
	require.NoError(t, err)

	b, err := h.Malloc(64)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b))

	// After freeing both, a single allocation spanning (close to) the
	// full region should succeed again once the free blocks coalesce.
	c, err := h.Malloc(200)
	require.NoError(t, err)
	require.Equal(t, uint32(0), c)
}

func TestHeap_FreeUnknownOffsetErrors(t *testing.T) {
	h := New(make([]byte, 64))
	require.Error(t, h.Free(999))
}

func TestHeap_DoubleFreeErrors(t *testing.T) {
	h := New(make([]byte, 64))
	off, err := h.Malloc(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(off))
	require.Error(t, h.Free(off))
}

func TestHeap_OutOfMemory(t *testing.T) {
	h := New(make([]byte, 16))
	_, err := h.Malloc(17)
	require.Error(t, err)
}

func TestHeap_Calloc_ZeroesMemory(t *testing.T) {
	region := make([]byte, 32)
	for i := range region {
		region[i] = 0xFF
	}
	h := New(region)
	off, err := h.Calloc(4, 4)
	require.NoError(t, err)
	for i := uint32(0); i < 16; i++ {
		require.Equal(t, byte(0), region[off+i])
	}
}

func TestHeap_Realloc_PreservesContent(t *testing.T) {
	h := New(make([]byte, 128))
	off, err := h.Malloc(8)
	require.NoError(t, err)
	copy(h.Region()[off:], []byte("ABCDEFGH"))

	newOff, err := h.Realloc(off, 16)
	require.NoError(t, err)
	require.Equal(t, []byte("ABCDEFGH"), h.Region()[newOff:newOff+8])

	// The old offset must now be reusable (realloc frees it).
	_, err = h.Malloc(8)
	require.NoError(t, err)
}

func TestHeap_Reserve_CarvesOutRange(t *testing.T) {
	h := New(make([]byte, 64))
	require.NoError(t, h.Reserve(0, 16))

	// The reserved range must not be handed out by Malloc.
	off, err := h.Malloc(48)
	require.NoError(t, err)
	require.Equal(t, uint32(16), off)
}

func TestHeap_Reserve_OverlapErrors(t *testing.T) {
	h := New(make([]byte, 64))
	off, err := h.Malloc(16)
	require.NoError(t, err)
	require.Error(t, h.Reserve(off, 8))
}

func TestHeap_ZeroSizeMallocErrors(t *testing.T) {
	h := New(make([]byte, 64))
	_, err := h.Malloc(0)
	require.Error(t, err)
}
