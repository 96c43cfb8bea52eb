// Package espbresolve is the host-symbol registry spec.md §6 treats as
// an external collaborator: a lookup from (module_id, entity_name) to
// a resolved host function pointer, plus the two "indexed fast" tables
// (module ids 0xFF and 0xFE) that skip the name comparison entirely.
package espbresolve

import (
	"context"
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/api"
)

// Fast-table module ids (spec.md §6).
const (
	ModuleFastIDF    byte = 0xFF
	ModuleFastCustom byte = 0xFE
)

// GoFunc is a host function implemented directly in Go, the common
// case for tests and for embedders who don't need a real native
// calling convention (mirrors the teacher's api.GoModuleFunction).
type GoFunc func(ctx context.Context, args []api.Value) ([]api.Value, error)

// ResolvedImport is what a (module_id, name) lookup (or a fast-table
// index) yields: either a native function pointer to be invoked
// through internal/ffi, or a Go callback, plus the per-import flags
// spec.md §3/§6 track (blocking, fast-table).
type ResolvedImport struct {
	Native    uintptr // 0 if GoFn is set instead
	GoFn      GoFunc
	Blocking  bool
	FastTable bool
}

func (r ResolvedImport) IsNative() bool { return r.Native != 0 && r.GoFn == nil }

type nameKey struct {
	moduleID byte
	name     string
}

// Registry holds up to 10 registered symbol tables (spec.md §6) plus
// the two flat fast-index tables. Lookup order: exact module_id
// first; if module_id==0, fall through to other tables in ascending
// module_id order - matching the teacher's layered-namespace lookup
// philosophy (HostModuleBuilder namespaces) generalized to ESPB's
// numeric module ids instead of string module names.
type Registry struct {
	byName     map[nameKey]ResolvedImport
	moduleIDs  []byte // ascending, tables registered under these ids
	fastIDF    []ResolvedImport
	fastCustom []ResolvedImport
}

const maxTables = 10

func NewRegistry() *Registry {
	return &Registry{byName: map[nameKey]ResolvedImport{}}
}

// Register adds a (module_id, name) -> ResolvedImport binding to the
// generic table. Returns an error once 10 distinct module ids have
// been registered (spec.md §6: "up to 10 symbol tables").
func (r *Registry) Register(moduleID byte, name string, imp ResolvedImport) error {
	if moduleID == ModuleFastIDF || moduleID == ModuleFastCustom {
		return fmt.Errorf("espbresolve: module id %#x is reserved for a fast table", moduleID)
	}
	found := false
	for _, id := range r.moduleIDs {
		if id == moduleID {
			found = true
			break
		}
	}
	if !found {
		if len(r.moduleIDs) >= maxTables {
			return fmt.Errorf("espbresolve: at most %d symbol tables may be registered", maxTables)
		}
		r.moduleIDs = insertSorted(r.moduleIDs, moduleID)
	}
	r.byName[nameKey{moduleID, name}] = imp
	return nil
}

func insertSorted(ids []byte, id byte) []byte {
	i := 0
	for i < len(ids) && ids[i] < id {
		i++
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// RegisterFastIDF and RegisterFastCustom populate the indexed tables:
// lookup by (flag_mask, symbol_index) without names (spec.md §6).
func (r *Registry) RegisterFastIDF(table []ResolvedImport) {
	r.fastIDF = table
	for i := range r.fastIDF {
		r.fastIDF[i].FastTable = true
	}
}

func (r *Registry) RegisterFastCustom(table []ResolvedImport) {
	r.fastCustom = table
	for i := range r.fastCustom {
		r.fastCustom[i].FastTable = true
	}
}

// Resolve looks up one import descriptor. symbolIndex is only
// consulted for the two fast-table module ids; entityName is only
// consulted otherwise.
func (r *Registry) Resolve(moduleID byte, entityName string, symbolIndex uint16) (ResolvedImport, bool) {
	switch moduleID {
	case ModuleFastIDF:
		if int(symbolIndex) < len(r.fastIDF) {
			return r.fastIDF[symbolIndex], true
		}
		return ResolvedImport{}, false
	case ModuleFastCustom:
		if int(symbolIndex) < len(r.fastCustom) {
			return r.fastCustom[symbolIndex], true
		}
		return ResolvedImport{}, false
	}

	if imp, ok := r.byName[nameKey{moduleID, entityName}]; ok {
		return imp, true
	}
	if moduleID != 0 {
		return ResolvedImport{}, false
	}
	// module_id==0: fall through other tables in ascending module_id order.
	for _, id := range r.moduleIDs {
		if id == 0 {
			continue
		}
		if imp, ok := r.byName[nameKey{id, entityName}]; ok {
			return imp, true
		}
	}
	return ResolvedImport{}, false
}
