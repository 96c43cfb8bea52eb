package api

import "context"

// FunctionListener is an optional hook fired around local CALL and
// CALL_IMPORT instructions, mirroring experimental.FunctionListener in
// the teacher codebase this engine is derived from. wazero's own
// internal logger is exactly this: a Before/After pair the embedder
// supplies, never a package-level logger the engine imports itself.
//
// Implementations must not retain args/results slices beyond the call.
type FunctionListener interface {
	Before(ctx context.Context, funcIndex uint32, args []Value) context.Context
	After(ctx context.Context, funcIndex uint32, err error, results []Value)

	// BadBranch is fired whenever BR resolves to its own instruction
	// (offset 0). spec.md §9(d) preserves this as a literal, deliberate
	// infinite-loop bug in the source VM; this hook exists purely so a
	// host can detect and log it without the dispatcher itself paying
	// for a branch-history check on every BR.
	BadBranch(ctx context.Context, funcIndex uint32, pc int)
}
