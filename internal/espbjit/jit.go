// Package espbjit is the cold-path hook described in spec.md §4.2 and
// the "JIT coupling" design note in §9: the dispatcher's CALL and
// CALL_INDIRECT fast paths check whether a function carries compiled
// code and, if so, invoke it instead of interpreting the body.
//
// The JIT compiler itself is an external collaborator (spec.md §1)
// and is not implemented here - this package is only the seam a real
// compiler would plug into.
package espbjit

import "github.com/smersh1307n2/ESPB-sub001/api"

// CompiledFunction is attached to a FunctionBody by an external JIT.
// Call receives the argument registers already isolated into a slice
// (the same argument-isolation discipline spec.md §4.2 requires of the
// interpreter's own local CALL) and returns the result registers.
type CompiledFunction interface {
	Call(args []api.Value) ([]api.Value, error)
}
