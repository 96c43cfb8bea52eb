// Package espbheap is the bounds-checked allocator that stands in for
// "the heap manager" spec.md §1 names as an external collaborator: a
// first-fit free-list allocator over a single []byte region, used by
// HEAP.MALLOC/CALLOC/REALLOC/FREE and by ALLOCA (spec.md §4.1, §9
// "ALLOCA on the heap").
package espbheap

import (
	"fmt"
)

// MaxAllocaPerFrame is the documented (not hard-API) limit on how many
// ALLOCA pointers a single call frame may record, spec.md §9(c).
const MaxAllocaPerFrame = 32

type block struct {
	offset, size uint32
	free         bool
}

// Heap is a first-fit allocator over a fixed-size byte region. It is
// not safe for concurrent use without external synchronization, per
// spec.md §5 ("writes ... require external synchronization by the host").
type Heap struct {
	region []byte
	blocks []block // kept sorted by offset; adjacent free blocks are merged
}

func New(region []byte) *Heap {
	h := &Heap{region: region}
	if len(region) > 0 {
		h.blocks = []block{{offset: 0, size: uint32(len(region)), free: true}}
	}
	return h
}

func (h *Heap) Region() []byte { return h.region }

// Reserve carves [offset, offset+size) out of the free list as
// already-occupied, without returning it through Malloc. Used to tell
// the allocator about bytes a loader placed directly into the region
// (e.g. active data segments) before any dynamic allocation runs, so
// a later Malloc can't hand out memory that is already in use.
func (h *Heap) Reserve(offset, size uint32) error {
	if size == 0 {
		return nil
	}
	for i := range h.blocks {
		b := h.blocks[i]
		if !b.free || offset < b.offset || offset+size > b.offset+b.size {
			continue
		}
		rest := make([]block, 0, len(h.blocks)+2)
		rest = append(rest, h.blocks[:i]...)
		if offset > b.offset {
			rest = append(rest, block{offset: b.offset, size: offset - b.offset, free: true})
		}
		rest = append(rest, block{offset: offset, size: size, free: false})
		if end := b.offset + b.size; offset+size < end {
			rest = append(rest, block{offset: offset + size, size: end - (offset + size), free: true})
		}
		rest = append(rest, h.blocks[i+1:]...)
		h.blocks = rest
		return nil
	}
	return fmt.Errorf("espbheap: reserve range %#x+%#x overlaps an existing allocation", offset, size)
}

// Malloc returns the byte offset of a size-byte region, or an error if
// the heap has no fit (ResultMemoryAlloc at the call site).
func (h *Heap) Malloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, fmt.Errorf("espbheap: zero-size allocation")
	}
	for i := range h.blocks {
		b := &h.blocks[i]
		if !b.free || b.size < size {
			continue
		}
		offset := b.offset
		if b.size > size {
			rem := block{offset: b.offset + size, size: b.size - size, free: true}
			b.size = size
			b.free = false
			h.blocks = append(h.blocks, block{})
			copy(h.blocks[i+2:], h.blocks[i+1:])
			h.blocks[i+1] = rem
		} else {
			b.free = false
		}
		return offset, nil
	}
	return 0, fmt.Errorf("espbheap: out of memory allocating %d bytes", size)
}

func (h *Heap) Calloc(n, size uint32) (uint32, error) {
	total := n * size
	off, err := h.Malloc(total)
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < total; i++ {
		h.region[off+i] = 0
	}
	return off, nil
}

// Free releases a previously allocated offset, merging with adjacent
// free neighbors. Freeing an unknown offset is a no-op error, never a
// panic: callers decide whether that is fatal.
func (h *Heap) Free(offset uint32) error {
	for i := range h.blocks {
		if h.blocks[i].offset == offset && !h.blocks[i].free {
			h.blocks[i].free = true
			h.coalesce()
			return nil
		}
	}
	return fmt.Errorf("espbheap: free of unknown offset %#x", offset)
}

func (h *Heap) coalesce() {
	for i := 0; i < len(h.blocks)-1; {
		if h.blocks[i].free && h.blocks[i+1].free {
			h.blocks[i].size += h.blocks[i+1].size
			h.blocks = append(h.blocks[:i+1], h.blocks[i+2:]...)
			continue
		}
		i++
	}
}

// Realloc grows or shrinks an allocation, copying bytes on move.
func (h *Heap) Realloc(offset, newSize uint32) (uint32, error) {
	var oldSize uint32
	found := false
	for _, b := range h.blocks {
		if b.offset == offset && !b.free {
			oldSize = b.size
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("espbheap: realloc of unknown offset %#x", offset)
	}
	newOff, err := h.Malloc(newSize)
	if err != nil {
		return 0, err
	}
	n := oldSize
	if newSize < n {
		n = newSize
	}
	copy(h.region[newOff:newOff+n], h.region[offset:offset+n])
	_ = h.Free(offset)
	return newOff, nil
}
