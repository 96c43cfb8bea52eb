// Package espb is the embedder-facing entry point: wire a Module and
// a host Registry into a Runtime, then invoke exported functions by
// index. The split from internal/engine mirrors the teacher's
// wazero/Runtime split from its unexported internal wasm.Store -
// nothing below does real work itself, it only adapts Config into
// engine.EngineOption and delegates.
package espb

import (
	"context"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/espbresolve"
	"github.com/smersh1307n2/ESPB-sub001/internal/engine"
)

// Runtime binds a Config to the engine options it implies; every
// Module instantiated through it shares that configuration, the way
// one wazero.Runtime's RuntimeConfig applies to every module it
// instantiates.
type Runtime struct {
	config Config
}

// NewRuntime returns a Runtime that will apply config to every Module
// it instantiates.
func NewRuntime(config Config) *Runtime {
	return &Runtime{config: config}
}

// Instantiate resolves module's imports against registry and returns
// a Module ready to invoke exported functions (spec.md §3, §6).
func (r *Runtime) Instantiate(module *espbmod.Module, registry *espbresolve.Registry) (*Module, error) {
	opts := []engine.EngineOption{
		engine.WithShadowStackSizing(r.config.shadowStackInitialSize, r.config.shadowStackIncrement),
		engine.WithCallStackDepth(r.config.callStackSize),
		engine.WithJITEnabled(r.config.jitEnabled),
		engine.WithDebugChecks(r.config.debugChecks),
		engine.WithFFIArgsMax(r.config.ffiArgsMax),
	}
	if r.config.listener != nil {
		opts = append(opts, engine.WithFunctionListener(r.config.listener))
	}

	e, err := engine.NewEngine(module, registry, opts...)
	if err != nil {
		return nil, err
	}
	return &Module{engine: e}, nil
}

// Module is one instantiated, invocable Module (spec.md §3's
// "Instance (per invocation context)" made concrete for callers who
// don't need to touch internal/engine directly).
type Module struct {
	engine *engine.Engine
}

// Call invokes the exported function at funcIndex (a local function's
// global index, i.e. NumImports()+local) with args, returning its
// single result value if the signature declares one.
func (m *Module) Call(ctx context.Context, funcIndex uint32, args ...api.Value) ([]api.Value, api.Result, error) {
	return m.engine.Invoke(ctx, funcIndex, args)
}
