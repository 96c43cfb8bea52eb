package engine

import (
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/espbresolve"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbheap"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
	"github.com/smersh1307n2/ESPB-sub001/internal/marshal"
	"github.com/smersh1307n2/ESPB-sub001/internal/trampoline"
)

const pageSize = 65536

// Instance is the per-activation, writable state spec.md §3 describes:
// linear memory, the heap manager, resolved host imports, the
// indirect-call table, globals storage, and the async-wrapper cache.
// Many instances may share one *espbmod.Module.
type Instance struct {
	Module *espbmod.Module

	memoryData []byte
	heap       *espbheap.Heap

	resolvedImports []espbresolve.ResolvedImport
	importBlocking  []bool

	tableData []uint32 // indirect-call table: slot -> global function index
	tableMax  uint32

	globals []api.Value

	asyncWrappers []*marshal.AsyncWrapper // one slot per import, lazily populated
	trampolines   *trampoline.Factory
}

// InstanceOption configures a new Instance (functional-options, the
// teacher's config idiom generalized to instance construction).
type InstanceOption func(*Instance)

// WithMemoryPages overrides the module's advisory MemoryMin page count
// with a concrete initial size for this activation.
func WithMemoryPages(initial uint32) InstanceOption {
	return func(i *Instance) {
		i.memoryData = make([]byte, initial*pageSize)
	}
}

// NewInstance builds a writable activation of module, resolving every
// import against registry (spec.md §3/§6) and sizing linear memory,
// the heap, and the indirect table from the module header.
func NewInstance(module *espbmod.Module, registry *espbresolve.Registry, reentry trampoline.ReentryFunc, opts ...InstanceOption) (*Instance, error) {
	inst := &Instance{
		Module:     module,
		memoryData: make([]byte, uint32(module.MemoryMin)*pageSize),
		tableData:  make([]uint32, module.TableInitialSize),
		tableMax:   module.TableMaxSize,
		globals:    make([]api.Value, len(module.Globals)),
	}
	for i, g := range module.Globals {
		inst.globals[i] = g.Init
	}
	for _, opt := range opts {
		opt(inst)
	}

	inst.heap = espbheap.New(inst.memoryData)

	inst.resolvedImports = make([]espbresolve.ResolvedImport, len(module.Imports))
	inst.importBlocking = make([]bool, len(module.Imports))
	for idx, imp := range module.Imports {
		resolved, ok := registry.Resolve(imp.ModuleID, imp.EntityName, uint16(idx))
		if !ok {
			return nil, fmt.Errorf("%w: %s (module %#x)", espbruntime.ErrImportResolutionFailed, imp.EntityName, imp.ModuleID)
		}
		inst.resolvedImports[idx] = resolved
		inst.importBlocking[idx] = imp.Blocking || resolved.Blocking
	}
	inst.asyncWrappers = make([]*marshal.AsyncWrapper, len(module.Imports))

	for _, seg := range module.ElementSegments {
		for i, fn := range seg.FuncIndices {
			slot := seg.Offset + uint32(i)
			if int(slot) < len(inst.tableData) {
				inst.tableData[slot] = fn
			}
		}
	}

	inst.trampolines = trampoline.NewFactory(nil, reentry)

	for _, seg := range module.DataSegments {
		if seg.Active && !seg.Dropped {
			copy(inst.memoryData[seg.Offset:], seg.Data)
			// Carve the segment's bytes out of the free list so a later
			// HEAP.MALLOC/ALLOCA can never be handed a range that
			// overlaps static data placed directly into memoryData.
			if err := inst.heap.Reserve(seg.Offset, uint32(len(seg.Data))); err != nil {
				return nil, fmt.Errorf("%w: data segment at %#x: %v", espbruntime.ErrInvalidOperand, seg.Offset, err)
			}
		}
	}

	return inst, nil
}

func (i *Instance) Memory() []byte { return i.memoryData }
func (i *Instance) Heap() *espbheap.Heap { return i.heap }
func (i *Instance) Globals() []api.Value { return i.globals }
func (i *Instance) Trampolines() *trampoline.Factory { return i.trampolines }

func (i *Instance) ResolvedImport(idx uint32) espbresolve.ResolvedImport {
	return i.resolvedImports[idx]
}

func (i *Instance) ImportBlocking(idx uint32) bool {
	return i.importBlocking[idx]
}

// AsyncWrapperFor lazily creates and caches the per-import async OUT
// wrapper the first time an async call targets this import (spec.md
// §4.3 step 6: "lazily created... cached for subsequent calls").
func (i *Instance) AsyncWrapperFor(importIndex uint32) *marshal.AsyncWrapper {
	if i.asyncWrappers[importIndex] == nil {
		i.asyncWrappers[importIndex] = marshal.NewAsyncWrapper(i)
	}
	return i.asyncWrappers[importIndex]
}

// TableGet resolves one indirect-call table slot to a global function
// index, for TABLE.GET and TABLE.COPY.
func (i *Instance) TableGet(slot uint32) (uint32, bool) {
	if int(slot) >= len(i.tableData) {
		return 0, false
	}
	return i.tableData[slot], true
}

// TableSet writes one table slot (TABLE.SET), per spec.md §5 under
// external synchronization by the host.
func (i *Instance) TableSet(slot, funcIndex uint32) bool {
	if int(slot) >= len(i.tableData) {
		return false
	}
	i.tableData[slot] = funcIndex
	return true
}

// TableGrow grows the indirect table up to tableMax, filling new
// slots with fill, mirroring TABLE.SIZE/TABLE.INIT bookkeeping.
func (i *Instance) TableGrow(delta uint32, fill uint32) (oldSize uint32, ok bool) {
	oldSize = uint32(len(i.tableData))
	newSize := oldSize + delta
	if i.tableMax > 0 && newSize > i.tableMax {
		return oldSize, false
	}
	grown := make([]uint32, newSize)
	copy(grown, i.tableData)
	for s := oldSize; s < newSize; s++ {
		grown[s] = fill
	}
	i.tableData = grown
	return oldSize, true
}

func (i *Instance) TableSize() uint32 { return uint32(len(i.tableData)) }

// ReadBytes/WriteBytes/CStrLen implement internal/marshal.Memory so
// the marshalling planner can read/write guest buffers without
// depending on the engine package (avoids an import cycle: engine
// already imports marshal for AsyncWrapper).
func (i *Instance) ReadBytes(offset, n uint32) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	end := uint64(offset) + uint64(n)
	if end > uint64(len(i.memoryData)) {
		return nil, false
	}
	return i.memoryData[offset:end], true
}

func (i *Instance) WriteBytes(offset uint32, data []byte) bool {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(i.memoryData)) {
		return false
	}
	copy(i.memoryData[offset:], data)
	return true
}

func (i *Instance) CStrLen(offset uint32) (uint32, bool) {
	for n := offset; n < uint32(len(i.memoryData)); n++ {
		if i.memoryData[n] == 0 {
			return n - offset, true
		}
	}
	return 0, false
}
