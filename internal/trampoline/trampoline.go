// Package trampoline is the C7 callback trampoline factory: it turns
// a guest function index into a native-callable function pointer the
// host can store and invoke later (spec.md §4.4).
//
// Grounded on github.com/ebitengine/purego's NewCallback, the same
// dependency internal/ffi uses for the outbound direction -
// purego.NewCallback converts a Go function value into a C
// calling-convention pointer, which is exactly the
// (native_entry, context) pair spec.md §4.4 asks the factory to
// produce. Trampolines are kept in Factory.active, the "instance-wide
// active-closure set" spec.md §3 invariant 5 and §4.4 describe.
package trampoline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/ffi"
)

// ReentryFunc re-enters the VM to run a guest function by global
// function index with the given argument vector - the "Invokes the
// guest function by index with those arguments" step of spec.md §4.4.
// Implemented by internal/engine.(*Engine).InvokeFunctionIndex; kept
// as a plain func value here so this package never imports engine.
type ReentryFunc func(ctx context.Context, funcIndex uint32, args []api.Value) ([]api.Value, error)

// Context is the per-trampoline state spec.md §4.4 requires: "the
// originating instance [implicit in the closed-over reentry func],
// the guest function index, and the preserved user_data."
type Context struct {
	FuncIndex       uint32
	ParamTypes      []api.Type
	UserData        api.Value
	UserDataIndex   int // index into ParamTypes, or -1 if this callback has none
	ResultType      api.Type
}

// MaxHostArgs bounds the native arity a trampoline can expose. Each
// arity 0..MaxHostArgs gets its own purego.NewCallback closure because
// purego's reflection-driven signature matching wants a concrete Go
// function type, not a variadic one.
const MaxHostArgs = 8

// Factory creates and tracks trampolines for one Instance.
type Factory struct {
	reentry ReentryFunc
	ctx     context.Context

	mu     sync.Mutex
	active []*Context // the active-closure set (spec.md §3 invariant 5)
}

func NewFactory(ctx context.Context, reentry ReentryFunc) *Factory {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Factory{reentry: reentry, ctx: ctx}
}

// New builds a trampoline for guest function funcIndex. hostArgc is
// the arity the host will actually invoke the pointer with (may be
// less than len(paramTypes) when userDataIndex >= 0, since the user_data
// slot is supplied from cb, not from the host's call site).
func (f *Factory) New(funcIndex uint32, paramTypes []api.Type, resultType api.Type, userData api.Value, userDataIndex int) (uintptr, *Context, error) {
	hostArgc := len(paramTypes)
	if userDataIndex >= 0 {
		hostArgc--
	}
	if hostArgc < 0 || hostArgc > MaxHostArgs {
		return 0, nil, fmt.Errorf("trampoline: unsupported arity %d (max %d)", hostArgc, MaxHostArgs)
	}

	cb := &Context{
		FuncIndex:     funcIndex,
		ParamTypes:    paramTypes,
		UserData:      userData,
		UserDataIndex: userDataIndex,
		ResultType:    resultType,
	}

	handler := func(hostArgs []uintptr) uintptr {
		args := make([]api.Value, len(paramTypes))
		hi := 0
		for i, t := range paramTypes {
			if i == cb.UserDataIndex {
				args[i] = cb.UserData
				continue
			}
			args[i] = ffi.FromWord(hostArgs[hi], t)
			hi++
		}
		results, err := f.reentry(f.ctx, cb.FuncIndex, args)
		if err != nil || len(results) == 0 {
			return 0
		}
		return ffi.ToWord(results[0])
	}

	entry := newCallback(hostArgc, handler)

	f.mu.Lock()
	f.active = append(f.active, cb)
	f.mu.Unlock()

	return entry, cb, nil
}

// newCallback dispatches to the fixed-arity purego.NewCallback
// closures below; every branch forwards to the same handler so the
// marshalling logic lives in one place.
func newCallback(argc int, handler func([]uintptr) uintptr) uintptr {
	switch argc {
	case 0:
		return purego.NewCallback(func() uintptr { return handler(nil) })
	case 1:
		return purego.NewCallback(func(a0 uintptr) uintptr { return handler([]uintptr{a0}) })
	case 2:
		return purego.NewCallback(func(a0, a1 uintptr) uintptr { return handler([]uintptr{a0, a1}) })
	case 3:
		return purego.NewCallback(func(a0, a1, a2 uintptr) uintptr { return handler([]uintptr{a0, a1, a2}) })
	case 4:
		return purego.NewCallback(func(a0, a1, a2, a3 uintptr) uintptr { return handler([]uintptr{a0, a1, a2, a3}) })
	case 5:
		return purego.NewCallback(func(a0, a1, a2, a3, a4 uintptr) uintptr { return handler([]uintptr{a0, a1, a2, a3, a4}) })
	case 6:
		return purego.NewCallback(func(a0, a1, a2, a3, a4, a5 uintptr) uintptr {
			return handler([]uintptr{a0, a1, a2, a3, a4, a5})
		})
	case 7:
		return purego.NewCallback(func(a0, a1, a2, a3, a4, a5, a6 uintptr) uintptr {
			return handler([]uintptr{a0, a1, a2, a3, a4, a5, a6})
		})
	default:
		return purego.NewCallback(func(a0, a1, a2, a3, a4, a5, a6, a7 uintptr) uintptr {
			return handler([]uintptr{a0, a1, a2, a3, a4, a5, a6, a7})
		})
	}
}

// Release drops a trampoline from the active set once the host is
// known not to hold the pointer anymore (spec.md invariant 5: "they
// may be reclaimed" when the host hasn't registered the closure).
func (f *Factory) Release(cb *Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.active {
		if c == cb {
			f.active = append(f.active[:i], f.active[i+1:]...)
			return
		}
	}
}

func (f *Factory) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}
