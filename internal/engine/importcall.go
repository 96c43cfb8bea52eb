package engine

import (
	"context"
	"fmt"

	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/espbmod"
	"github.com/smersh1307n2/ESPB-sub001/espbresolve"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbop"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
	"github.com/smersh1307n2/ESPB-sub001/internal/ffi"
	"github.com/smersh1307n2/ESPB-sub001/internal/marshal"
)

// callbackFlagBit marks an I32/PTR register value as a guest function
// reference rather than a plain integer (spec.md §3 invariant 6,
// "CALLBACK_FLAG_BIT = 0x8000_0000").
const callbackFlagBit uint32 = 0x8000_0000

// execImportCall implements CALL_IMPORT (0x09), spec.md §4.3: decode
// the optional variadic block, build the argument vector, run
// callback detection and the marshalling plan, dispatch native or Go,
// and write the converted result back into R0.
func (ec *execContext) execImportCall(ctx context.Context, importIndex uint32) error {
	mod := ec.instance.Module
	if int(importIndex) >= len(mod.Imports) {
		return espbruntime.ErrInvalidFuncIndex
	}
	sig, ok := mod.SignatureOf(importIndex)
	if !ok {
		return espbruntime.ErrInvalidFuncIndex
	}

	paramTypes := sig.Params
	if ec.pc < len(ec.fn.body.Code) && ec.fn.body.Code[ec.pc] == espbop.VariadicMarker {
		ec.u8() // marker
		n := int(ec.u8())
		types := make([]api.Type, n)
		for i := range types {
			types[i] = api.Type(ec.u8())
		}
		paramTypes = types
	}
	if len(paramTypes) > ec.ffiArgsMax {
		return fmt.Errorf("%w: import call with %d args exceeds max %d", espbruntime.ErrInvalidOperand, len(paramTypes), ec.ffiArgsMax)
	}

	args := make([]api.Value, len(paramTypes))
	for i := range paramTypes {
		reg, err := ec.readReg()
		if err != nil {
			return err
		}
		args[i] = reg
	}

	if mod.HasFeature(espbmod.FeatureCallbackAuto) {
		if err := ec.applyCallbackDetection(importIndex, args); err != nil {
			return err
		}
	}

	resolved := ec.instance.ResolvedImport(importIndex)
	blocking := ec.instance.ImportBlocking(importIndex)

	var checkpoint frameSnapshot
	if blocking {
		checkpoint = ec.saveFrameSnapshot()
	}

	if ec.listener != nil {
		ctx = ec.listener.Before(ctx, importIndex, args)
	}

	var result api.Value
	var err error
	if resolved.GoFn != nil {
		result, err = ec.invokeGoFunc(ctx, resolved, args)
	} else {
		result, err = ec.invokeNative(importIndex, resolved, mod, args)
	}

	if ec.listener != nil {
		if err != nil {
			ec.listener.After(ctx, importIndex, err, nil)
		} else {
			ec.listener.After(ctx, importIndex, nil, []api.Value{result})
		}
	}

	if blocking {
		ec.restoreFrameSnapshot(checkpoint)
	}

	if err != nil {
		return err
	}
	if len(ec.frame) > 0 {
		ec.frame[0] = result
	}
	return nil
}

// applyCallbackDetection implements spec.md §4.3 step 3: any tagged
// guest-function argument gets a real trampoline built and is
// rewritten in place to a native pointer value before the call.
func (ec *execContext) applyCallbackDetection(importIndex uint32, args []api.Value) error {
	pairs := ec.instance.Module.CallbackMeta[importIndex]
	for _, pair := range pairs {
		i := pair.CallbackParamIndex
		if i < 0 || i >= len(args) {
			continue
		}
		raw := args[i].U32()
		if raw&callbackFlagBit == 0 {
			continue
		}
		funcIndex := raw &^ callbackFlagBit
		target, ok := localFunction(ec.instance.Module, ec.instance.Module.NumImports()+funcIndex)
		if !ok {
			// Malformed callback tag (high bit set, low bits not a valid
			// local function index): spec.md §9(b)'s "cleaner design"
			// rejects rather than treating the argument as user_data.
			// SPEC_FULL.md §7(b) records this as ErrInvalidOperand, not
			// ErrInvalidFuncIndex - the tag itself is what's malformed,
			// not a call targeting an out-of-range function.
			return espbruntime.ErrInvalidOperand
		}

		userDataIdx := -1
		var userData api.Value
		if pair.UserDataParamIndex != espbmod.NoUserData {
			userDataIdx = pair.UserDataParamIndex
			if userDataIdx < len(args) {
				userData = args[userDataIdx]
			}
		}

		resultType := api.TypeVoid
		if len(target.signature.Results) > 0 {
			resultType = target.signature.Results[0]
		}

		entry, _, err := ec.instance.Trampolines().New(target.globalIndex, target.signature.Params, resultType, userData, userDataIdx)
		if err != nil {
			return fmt.Errorf("importcall: callback trampoline: %w", err)
		}
		args[i] = api.Ptr(uint32(entry))
	}
	return nil
}

// invokeGoFunc is the host-function-implemented-in-Go path (no native
// ABI, no marshalling buffers - args/results pass through as Values).
func (ec *execContext) invokeGoFunc(ctx context.Context, resolved espbresolve.ResolvedImport, args []api.Value) (api.Value, error) {
	results, err := resolved.GoFn(ctx, args)
	if err != nil {
		return api.Void, err
	}
	if len(results) == 0 {
		return api.Void, nil
	}
	return results[0], nil
}

// invokeNative runs the FEATURE_MARSHALLING_META plan (spec.md §4.3
// steps 4-8) around one native call, choosing the synchronous or
// cached-async path per BuildPlans' verdict.
func (ec *execContext) invokeNative(importIndex uint32, resolved espbresolve.ResolvedImport, mod *espbmod.Module, args []api.Value) (api.Value, error) {
	resultType := ec.resultTypeOf(importIndex)

	if !mod.HasFeature(espbmod.FeatureMarshallingMeta) {
		words := make([]uintptr, len(args))
		for i, a := range args {
			words[i] = ffi.ToWord(a)
		}
		r1, _ := ffi.Call(resolved.Native, words)
		return ffi.FromWord(r1, resultType), nil
	}

	metas := mod.ImportArgMeta[importIndex]
	plans, async, err := marshal.BuildPlans(ec.instance, metas, args)
	if err != nil {
		return api.Void, err
	}

	fixedWords := make([]uintptr, len(args))
	for i, a := range args {
		fixedWords[i] = ffi.ToWord(a)
	}
	for _, p := range plans {
		fixedWords[p.Meta.ArgIndex] = 0
	}

	if async {
		wrapper := ec.instance.AsyncWrapperFor(importIndex)
		r1, _, err := wrapper.Invoke(resolved.Native, plans, fixedWords)
		if err != nil {
			return api.Void, err
		}
		return ffi.FromWord(r1, resultType), nil
	}

	bufs, bufWords, err := marshal.CopyIn(ec.instance, plans)
	if err != nil {
		return api.Void, err
	}
	for i, p := range plans {
		fixedWords[p.Meta.ArgIndex] = bufWords[i]
	}
	r1, _ := ffi.Call(resolved.Native, fixedWords)
	if err := marshal.CopyOut(ec.instance, bufs); err != nil {
		return api.Void, err
	}
	return ffi.FromWord(r1, resultType), nil
}

func (ec *execContext) resultTypeOf(importIndex uint32) api.Type {
	sig, ok := ec.instance.Module.SignatureOf(importIndex)
	if !ok || len(sig.Results) == 0 {
		return api.TypeVoid
	}
	return sig.Results[0]
}
