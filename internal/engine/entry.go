package engine

import (
	"context"
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/espbresolve"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbdebug"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// Engine ties one Module + host registry to the execution contexts it
// creates, and supplies the ReentryFunc callback trampolines use to
// re-enter the VM (spec.md §4.4). Keeping InvokeFunctionIndex as a
// plain bound method - rather than internal/trampoline importing this
// package - avoids an engine<->trampoline import cycle.
type Engine struct {
	instance *Instance

	shadowInitial, shadowIncrement uint32
	callDepth                      int
	listener                       api.FunctionListener
	jitEnabled                     bool
	debugChecks                    bool
	ffiArgsMax                     int
}

// EngineOption configures shadow-stack growth and call-stack depth
// per execution context this Engine creates (spec.md §4.5, §3).
type EngineOption func(*Engine)

func WithShadowStackSizing(initial, increment uint32) EngineOption {
	return func(e *Engine) { e.shadowInitial, e.shadowIncrement = initial, increment }
}

func WithCallStackDepth(depth int) EngineOption {
	return func(e *Engine) { e.callDepth = depth }
}

// WithFunctionListener attaches the optional Before/After/BadBranch
// hook fired around CALL and CALL_IMPORT (spec.md §2's ambient-logging
// analogue; see api.FunctionListener).
func WithFunctionListener(l api.FunctionListener) EngineOption {
	return func(e *Engine) { e.listener = l }
}

// WithJITEnabled lets CALL/CALL_INDIRECT consult a target function's
// attached espbjit.CompiledFunction instead of always interpreting.
func WithJITEnabled(enabled bool) EngineOption {
	return func(e *Engine) { e.jitEnabled = enabled }
}

// WithDebugChecks turns on the extra invariant assertions (frame-
// pointer bounds, alloca-freed-once) at some cost to dispatch speed.
func WithDebugChecks(enabled bool) EngineOption {
	return func(e *Engine) { e.debugChecks = enabled }
}

// WithFFIArgsMax bounds how many arguments a single host-import call
// may marshal (spec.md §4.2's 16-argument guardrail, applied to the
// FFI path).
func WithFFIArgsMax(n int) EngineOption {
	return func(e *Engine) { e.ffiArgsMax = n }
}

// NewEngine resolves module's imports against registry and returns an
// Engine ready to invoke exported functions. The Instance built here
// is shared by every execution context the Engine creates afterward
// (spec.md §5: "single instance MAY be invoked concurrently... each
// thread passes its own execution context").
func NewEngine(module *espbmod.Module, registry *espbresolve.Registry, opts ...EngineOption) (*Engine, error) {
	e := &Engine{shadowInitial: 4096, shadowIncrement: 4096, callDepth: 64}
	for _, opt := range opts {
		opt(e)
	}
	inst, err := NewInstance(module, registry, e.InvokeFunctionIndex)
	if err != nil {
		return nil, err
	}
	e.instance = inst
	return e, nil
}

// InvokeFunctionIndex is the trampoline.ReentryFunc binding: a fresh
// execution context per call, matching spec.md §4.4 step 2 ("fresh
// execution context (call stack, shadow stack)").
func (e *Engine) InvokeFunctionIndex(ctx context.Context, funcIndex uint32, args []api.Value) ([]api.Value, error) {
	return e.invoke(ctx, funcIndex, args)
}

// Invoke is the public C10 entry/return protocol: validates the
// function index, pushes the base frame, seeds arguments, runs the
// dispatcher, and converts any panic/error into a stable api.Result.
func (e *Engine) Invoke(ctx context.Context, funcIndex uint32, args []api.Value) (results []api.Value, result api.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = espbdebug.NewErrorBuilder().FromRecovered(r)
			result = espbruntime.Classify(err)
		}
	}()
	results, err = e.invoke(ctx, funcIndex, args)
	if err != nil {
		return nil, espbruntime.Classify(err), err
	}
	return results, api.ResultOK, nil
}

func (e *Engine) invoke(ctx context.Context, funcIndex uint32, args []api.Value) ([]api.Value, error) {
	mod := e.instance.Module
	n := mod.NumImports()
	if funcIndex < n || funcIndex >= n+mod.NumFunctions() {
		return nil, fmt.Errorf("%w: %d", espbruntime.ErrInvalidFuncIndex, funcIndex)
	}
	target, ok := localFunction(mod, funcIndex)
	if !ok {
		return nil, espbruntime.ErrInvalidFuncIndex
	}

	ec := newExecContext(e.instance, e.shadowInitial, e.shadowIncrement, e.callDepth, e.listener, e.jitEnabled, e.debugChecks, e.ffiArgsMax)
	ec.ctx = ctx

	// The entry frame's own returnPC is the completion sentinel -1, so
	// the RETURN that pops it reports "execution is complete" directly
	// (spec.md §4.2), with no separate caller frame needed.
	if err := ec.callLocal(target, -1, args); err != nil {
		return nil, err
	}

	retVal, err := ec.run(ctx)
	if err != nil {
		return nil, err
	}

	if len(target.signature.Results) == 0 {
		return nil, nil
	}
	return []api.Value{retVal}, nil
}

func (e *Engine) Instance() *Instance { return e.instance }
