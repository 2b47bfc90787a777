// Package nir implements the sircc native-IR lowering pass (spec
// component G): SIR nodes to github.com/llir/llvm ir.Module/ir.Func/
// ir.Block values. Grounded on golint-fixer-exp/cmd/bin2ll/ll.go's use of
// the llir/llvm builder API (types.NewFunc, ir.NewAlloca, block.NewAdd,
// block.NewICmp, block.NewCall, block.NewCondBr, block.NewGetElementPtr,
// constant.NewInt) and on compiler_types.c/compiler_layout.c for the
// type-lowering and ABI rules it must preserve.
package nir

import (
	"fmt"

	"github.com/llir/llvm/ir/types"

	"github.com/frogfishio/sircc/internal/layout"
	"github.com/frogfishio/sircc/internal/sir"
)

// TypeLowerer memoizes SIR type id -> llir/llvm type, mirroring lower_type's
// per-module type cache in compiler_native.c.
type TypeLowerer struct {
	prog    *sir.Program
	res     *layout.Resolver
	cache   map[int64]types.Type
}

func NewTypeLowerer(prog *sir.Program, res *layout.Resolver) *TypeLowerer {
	return &TypeLowerer{prog: prog, res: res, cache: map[int64]types.Type{}}
}

// Lower returns the llir/llvm type for the SIR type id, lowering and
// caching it first if necessary.
func (tl *TypeLowerer) Lower(id int64) (types.Type, error) {
	if id == 0 {
		return types.Void, nil
	}
	if t, ok := tl.cache[id]; ok {
		return t, nil
	}
	st := tl.prog.GetType(id)
	if st == nil {
		return nil, fmt.Errorf("sircc.nir.type.unknown: no type record for id %d", id)
	}
	// Guard against self-referential struct/ptr cycles the same way
	// compiler_native.c's lower_type does: seed the cache with a named
	// placeholder before recursing into field types.
	lt, err := tl.lowerRec(st)
	if err != nil {
		return nil, err
	}
	tl.cache[id] = lt
	return lt, nil
}

func (tl *TypeLowerer) lowerRec(t *sir.Type) (types.Type, error) {
	switch t.Kind {
	case sir.KindPrim:
		return tl.lowerPrim(t.Prim)
	case sir.KindPtr:
		of, err := tl.Lower(t.Of)
		if err != nil {
			return nil, err
		}
		if of == types.Void {
			return types.NewPointer(types.I8), nil
		}
		return types.NewPointer(of), nil
	case sir.KindArray:
		of, err := tl.Lower(t.Of)
		if err != nil {
			return nil, err
		}
		return types.NewArray(uint64(t.Len), of), nil
	case sir.KindStruct:
		fields := make([]types.Type, 0, len(t.Fields))
		for _, f := range t.Fields {
			ft, err := tl.Lower(f.TypeRef)
			if err != nil {
				return nil, err
			}
			fields = append(fields, ft)
		}
		st := types.NewStruct(fields...)
		if t.Name != "" {
			st.TypeName = t.Name
		}
		return st, nil
	case sir.KindVec:
		lane, err := tl.Lower(t.Lane)
		if err != nil {
			return nil, err
		}
		return types.NewVector(uint64(t.Lanes), lane), nil
	case sir.KindFn:
		ret, err := tl.Lower(t.Ret)
		if err != nil {
			return nil, err
		}
		params := make([]types.Type, 0, len(t.Params))
		for _, p := range t.Params {
			pt, err := tl.Lower(p)
			if err != nil {
				return nil, err
			}
			params = append(params, pt)
		}
		return types.NewFunc(ret, params...), nil
	case sir.KindFun:
		sig, err := tl.Lower(t.Sig)
		if err != nil {
			return nil, err
		}
		fnt, ok := sig.(*types.FuncType)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.type.bad_sig: fun type %d's sig is not a fn type", t.ID)
		}
		return types.NewPointer(fnt), nil
	case sir.KindClosure:
		// {code_ptr, env} per the normative closure layout; env is
		// represented opaquely as i8* since its concrete type is only
		// known to the allocation site (spec.md §3, "Closure layout").
		sig, err := tl.Lower(t.CallSig)
		if err != nil {
			return nil, err
		}
		fnt, ok := sig.(*types.FuncType)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.type.bad_sig: closure type %d's call_sig is not a fn type", t.ID)
		}
		return types.NewStruct(types.NewPointer(fnt), types.NewPointer(types.I8)), nil
	case sir.KindSum:
		sp, err := tl.res.SumLayout(t, map[int64]bool{})
		if err != nil {
			return nil, err
		}
		// {i32 tag; i8[pad]; i8[payload]}: the pad member puts the payload
		// at layout.SumPayload's PayloadOffset.
		pad := types.NewArray(uint64(sp.PayloadOffset-4), types.I8)
		return types.NewStruct(types.I32, pad, types.NewArray(uint64(sp.PayloadSize), types.I8)), nil
	default:
		return nil, fmt.Errorf("sircc.nir.type.unhandled: type %d has unhandled kind", t.ID)
	}
}

func (tl *TypeLowerer) lowerPrim(p sir.Prim) (types.Type, error) {
	switch p {
	case sir.PrimI1, sir.PrimBool:
		return types.I1, nil
	case sir.PrimI8:
		return types.I8, nil
	case sir.PrimI16:
		return types.I16, nil
	case sir.PrimI32:
		return types.I32, nil
	case sir.PrimI64:
		return types.I64, nil
	case sir.PrimF32:
		return types.Float, nil
	case sir.PrimF64:
		return types.Double, nil
	case sir.PrimVoid:
		return types.Void, nil
	default:
		return nil, fmt.Errorf("sircc.nir.type.bad_prim: unknown primitive kind")
	}
}
