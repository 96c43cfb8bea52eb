package espbmod

// Builder assembles a Module programmatically, standing in for the
// binary loader/parser spec.md §1 places out of scope. Each With*
// method mirrors one section of the module layout in spec.md §6 and
// returns the receiver so calls chain the way
// wazero.HostModuleBuilder.NewFunctionBuilder()...Export(...) does.
type Builder struct {
	m *Module
}

func NewBuilder() *Builder {
	return &Builder{m: &Module{
		ImportArgMeta: map[uint32][]ArgMeta{},
		CallbackMeta:  map[uint32][]CallbackPair{},
	}}
}

func (b *Builder) WithSignature(sig Signature) uint32 {
	b.m.Signatures = append(b.m.Signatures, sig)
	return uint32(len(b.m.Signatures) - 1)
}

func (b *Builder) WithImport(imp Import) uint32 {
	b.m.Imports = append(b.m.Imports, imp)
	return uint32(len(b.m.Imports) - 1)
}

func (b *Builder) WithImportArgMeta(importIndex uint32, meta ...ArgMeta) *Builder {
	b.m.ImportArgMeta[importIndex] = append(b.m.ImportArgMeta[importIndex], meta...)
	return b
}

func (b *Builder) WithCallbackMeta(importIndex uint32, pairs ...CallbackPair) *Builder {
	b.m.CallbackMeta[importIndex] = append(b.m.CallbackMeta[importIndex], pairs...)
	return b
}

// WithFunction appends a local function body and returns its local
// index (global index is NumImports()+localIndex, per spec.md §6).
func (b *Builder) WithFunction(fn *FunctionBody) uint32 {
	b.m.Functions = append(b.m.Functions, fn)
	b.m.FuncPtrMapByIndex = append(b.m.FuncPtrMapByIndex, NoFuncPtr)
	return uint32(len(b.m.Functions) - 1)
}

func (b *Builder) WithGlobal(g Global) uint32 {
	b.m.Globals = append(b.m.Globals, g)
	return uint32(len(b.m.Globals) - 1)
}

func (b *Builder) WithDataSegment(d DataSegment) *Builder {
	b.m.DataSegments = append(b.m.DataSegments, d)
	return b
}

// WithFuncPtrAt records that the data section contains, at dataOffset,
// the encoded address of local function funcIndex - used by guest code
// that loads a function pointer out of a data segment for
// CALL_INDIRECT_PTR (spec.md §4.2, scenario S5).
func (b *Builder) WithFuncPtrAt(dataOffset uint32, funcIndex uint32) *Builder {
	b.m.FuncPtrMap = append(b.m.FuncPtrMap, FuncPtrEntry{DataOffset: dataOffset, FuncIndex: funcIndex})
	for int(funcIndex) >= len(b.m.FuncPtrMapByIndex) {
		b.m.FuncPtrMapByIndex = append(b.m.FuncPtrMapByIndex, NoFuncPtr)
	}
	b.m.FuncPtrMapByIndex[funcIndex] = dataOffset
	return b
}

func (b *Builder) WithElementSegment(e ElementSegment) *Builder {
	b.m.ElementSegments = append(b.m.ElementSegments, e)
	return b
}

func (b *Builder) WithFeatures(f uint32) *Builder {
	b.m.Features |= f
	return b
}

func (b *Builder) WithMemoryLimits(min, max uint32) *Builder {
	b.m.MemoryMin, b.m.MemoryMax = min, max
	return b
}

func (b *Builder) WithTableLimits(initial, max uint32) *Builder {
	b.m.TableInitialSize, b.m.TableMaxSize = initial, max
	return b
}

// Build finalizes and sorts FuncPtrMap (binary search precondition).
func (b *Builder) Build() *Module {
	sortFuncPtrMap(b.m.FuncPtrMap)
	return b.m
}

func sortFuncPtrMap(entries []FuncPtrEntry) {
	// Small N in practice (one entry per escaped function pointer);
	// insertion sort keeps this file free of a sort.Slice closure alloc.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].DataOffset > entries[j].DataOffset; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
