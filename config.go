package espb

import "github.com/smersh1307n2/ESPB-sub001/api"

// Config collects every knob the execution engine exposes, following
// the teacher's RuntimeConfig/builder.go functional-options pattern
// (espb.NewConfig().WithShadowStackInitialSize(...)).
type Config struct {
	shadowStackInitialSize uint32
	shadowStackIncrement   uint32
	callStackSize          int
	ffiArgsMax             int
	debugChecks            bool
	jitEnabled             bool
	listener               api.FunctionListener
}

// NewConfig returns a Config seeded with the defaults spec.md §6
// documents for SHADOW_STACK_INITIAL_SIZE, SHADOW_STACK_INCREMENT,
// and CALL_STACK_SIZE.
func NewConfig() Config {
	return Config{
		shadowStackInitialSize: 4096,
		shadowStackIncrement:   4096,
		callStackSize:          64,
		ffiArgsMax:             16,
		debugChecks:            false,
		jitEnabled:             false,
	}
}

func (c Config) WithShadowStackInitialSize(n uint32) Config {
	c.shadowStackInitialSize = n
	return c
}

func (c Config) WithShadowStackIncrement(n uint32) Config {
	c.shadowStackIncrement = n
	return c
}

func (c Config) WithCallStackSize(n int) Config {
	c.callStackSize = n
	return c
}

// WithFFIArgsMax bounds how many arguments a single host-import call
// may marshal, matching spec.md §4.2's "maximum copied arguments per
// call is 16" guardrail applied to the FFI path as well.
func (c Config) WithFFIArgsMax(n int) Config {
	c.ffiArgsMax = n
	return c
}

// WithDebugChecks turns on the extra invariant assertions spec.md §3
// lists (frame-pointer bounds, alloca-freed-once) at some cost to
// dispatch speed; off by default, the way wazero's DEBUG build tag
// gates its own internal assertions.
func (c Config) WithDebugChecks(enabled bool) Config {
	c.debugChecks = enabled
	return c
}

// WithJITEnabled toggles whether the dispatcher's CALL/CALL_INDIRECT
// fast paths consult a function's attached espbjit.CompiledFunction
// (spec.md §4.2, §9's "JIT coupling" note) instead of always
// interpreting.
func (c Config) WithJITEnabled(enabled bool) Config {
	c.jitEnabled = enabled
	return c
}

// WithFunctionListener attaches the optional Before/After/BadBranch
// hook the engine fires around local CALL and CALL_IMPORT (api.FunctionListener).
func (c Config) WithFunctionListener(l api.FunctionListener) Config {
	c.listener = l
	return c
}
