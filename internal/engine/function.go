package engine

import "github.com/smersh1307n2/ESPB-sub001/espbmod"

// function is the runtime view of one local function: its compiled
// body plus the global function index callers and trap reports use
// (spec.md §3, §4.2's "caller_function_index" bookkeeping).
type function struct {
	body        *espbmod.FunctionBody
	globalIndex uint32
	signature   espbmod.Signature
}

func (f *function) isLeaf() bool { return f.body.IsLeaf() }

// localFunction resolves a global function index (spec.md §6: imports
// occupy [0, NumImports), locals occupy [NumImports, NumImports+NumFunctions))
// into the runtime function record, or reports it names an import.
func localFunction(m *espbmod.Module, globalIndex uint32) (*function, bool) {
	n := m.NumImports()
	if globalIndex < n {
		return nil, false
	}
	local := globalIndex - n
	if int(local) >= len(m.Functions) {
		return nil, false
	}
	body := m.Functions[local]
	sig, ok := m.SignatureOf(globalIndex)
	if !ok {
		return nil, false
	}
	return &function{body: body, globalIndex: globalIndex, signature: sig}, true
}
