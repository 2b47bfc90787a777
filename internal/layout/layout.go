// Package layout implements the sircc type-layout engine (spec component
// C): size/alignment/field-offset resolution for every type kind in
// spec.md §3. Ported from type_size_align_rec/type_size_align in
// compiler_types.c, with the C "visiting" byte array replaced by a Go
// map[int64]bool cycle guard and out-parameters replaced by a (Layout,
// error) return.
package layout

import (
	"fmt"
	"math"

	"github.com/frogfishio/sircc/internal/sir"
)

// Layout is a resolved (size, align) pair in bytes.
type Layout struct {
	Size  int64
	Align int64
}

// ABI carries the primitive alignments and pointer size consulted while
// resolving layouts (spec.md §4.B: "primitive alignments ... pointer size
// in bytes"). Zero fields fall back to natural alignment, mirroring
// compiler_types.c's `p->align_i8 ? p->align_i8 : 1` pattern.
type ABI struct {
	PtrBytes  int64
	AlignPtr  int64
	AlignI8   int64
	AlignI16  int64
	AlignI32  int64
	AlignI64  int64
	AlignF32  int64
	AlignF64  int64
}

// DefaultABI returns natural host-like alignments (LP64): used when a
// program declares no target overrides and the caller has not yet
// consulted the backend (component J fills this in for real compiles).
func DefaultABI() ABI {
	return ABI{PtrBytes: 8, AlignPtr: 8, AlignI8: 1, AlignI16: 2, AlignI32: 4, AlignI64: 8, AlignF32: 4, AlignF64: 8}
}

// Resolver computes layouts against one program's type table and ABI,
// memoizing nothing across calls (compiler_types.c's type_size_align
// allocates a fresh visiting bitmap per call; callers needing memoized
// layouts should cache Resolver.Layout results themselves, same as the
// original's LLVMTypeRef memoization lives one layer up in lower_type).
type Resolver struct {
	prog *sir.Program
	abi  ABI
}

func NewResolver(prog *sir.Program, abi ABI) *Resolver {
	return &Resolver{prog: prog, abi: abi}
}

// Layout resolves the (size, align) pair for typeID, failing on unsized
// kinds (fn, void), cycles, unresolved refs, or overflow — exactly the
// failure set of type_size_align_rec.
func (r *Resolver) Layout(typeID int64) (Layout, error) {
	return r.layoutRec(typeID, make(map[int64]bool))
}

func (r *Resolver) layoutRec(typeID int64, visiting map[int64]bool) (Layout, error) {
	t := r.prog.GetType(typeID)
	if t == nil {
		return Layout{}, fmt.Errorf("sircc.type.unresolved: type %d does not exist", typeID)
	}
	if visiting[typeID] {
		return Layout{}, fmt.Errorf("sircc.type.cycle: type %d participates in a layout cycle", typeID)
	}
	visiting[typeID] = true
	defer delete(visiting, typeID)

	switch t.Kind {
	case sir.KindPrim:
		return r.primLayout(t)
	case sir.KindPtr:
		return r.ptrLayout(), nil
	case sir.KindArray:
		return r.arrayLayout(t, visiting)
	case sir.KindVec:
		return r.vecLayout(t, visiting)
	case sir.KindStruct:
		return r.structLayout(t, visiting)
	case sir.KindFun:
		return r.ptrLayout(), nil
	case sir.KindClosure:
		return r.closureLayout(t, visiting)
	case sir.KindSum:
		return r.sumLayout(t, visiting)
	case sir.KindFn:
		return Layout{}, fmt.Errorf("sircc.type.unsized: fn type %d is not sized (function type, not function-pointer)", typeID)
	default:
		return Layout{}, fmt.Errorf("sircc.type.bad_kind: type %d has unrecognized kind", typeID)
	}
}

func (r *Resolver) primLayout(t *sir.Type) (Layout, error) {
	switch t.Prim {
	case sir.PrimI1, sir.PrimBool, sir.PrimI8:
		return Layout{Size: 1, Align: orDefault(r.abi.AlignI8, 1)}, nil
	case sir.PrimI16:
		return Layout{Size: 2, Align: orDefault(r.abi.AlignI16, 2)}, nil
	case sir.PrimI32:
		return Layout{Size: 4, Align: orDefault(r.abi.AlignI32, 4)}, nil
	case sir.PrimI64:
		return Layout{Size: 8, Align: orDefault(r.abi.AlignI64, 8)}, nil
	case sir.PrimF32:
		return Layout{Size: 4, Align: orDefault(r.abi.AlignF32, 4)}, nil
	case sir.PrimF64:
		return Layout{Size: 8, Align: orDefault(r.abi.AlignF64, 8)}, nil
	case sir.PrimVoid:
		return Layout{}, fmt.Errorf("sircc.type.unsized: void is not sized")
	default:
		return Layout{}, fmt.Errorf("sircc.type.bad_kind: unrecognized primitive")
	}
}

func (r *Resolver) ptrLayout() Layout {
	ptrBytes := orDefault(r.abi.PtrBytes, 8)
	align := r.abi.AlignPtr
	if align == 0 {
		align = ptrBytes
	}
	return Layout{Size: ptrBytes, Align: align}
}

func roundUp(off, align int64) int64 {
	if align <= 0 {
		return off
	}
	rem := off % align
	if rem == 0 {
		return off
	}
	return off + (align - rem)
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func (r *Resolver) arrayLayout(t *sir.Type, visiting map[int64]bool) (Layout, error) {
	el, err := r.layoutRec(t.Of, visiting)
	if err != nil {
		return Layout{}, err
	}
	if el.Align <= 0 {
		return Layout{}, fmt.Errorf("sircc.type.bad_shape: array element has non-positive alignment")
	}
	if t.Len < 0 {
		return Layout{}, fmt.Errorf("sircc.type.bad_shape: array length must be non-negative")
	}
	stride := roundUp(el.Size, el.Align)
	if t.Len == 0 {
		return Layout{Size: 0, Align: el.Align}, nil
	}
	if stride != 0 && t.Len > math.MaxInt64/stride {
		return Layout{}, fmt.Errorf("sircc.type.overflow: array size overflows")
	}
	return Layout{Size: stride * t.Len, Align: el.Align}, nil
}

func (r *Resolver) vecLayout(t *sir.Type, visiting map[int64]bool) (Layout, error) {
	lane, err := r.layoutRec(t.Lane, visiting)
	if err != nil {
		return Layout{}, err
	}
	if lane.Size < 0 || lane.Align <= 0 {
		return Layout{}, fmt.Errorf("sircc.vec.bad_lane: vec lane has bad layout")
	}
	if t.Lanes <= 0 {
		return Layout{}, fmt.Errorf("sircc.vec.bad_lanes: vec lanes must be positive")
	}
	if lane.Size != 0 && t.Lanes > math.MaxInt64/lane.Size {
		return Layout{}, fmt.Errorf("sircc.type.overflow: vec size overflows")
	}
	return Layout{Size: lane.Size * t.Lanes, Align: lane.Align}, nil
}

func (r *Resolver) structLayout(t *sir.Type, visiting map[int64]bool) (Layout, error) {
	var off int64
	maxAlign := int64(1)
	for _, f := range t.Fields {
		fl, err := r.layoutRec(f.TypeRef, visiting)
		if err != nil {
			return Layout{}, err
		}
		if fl.Align <= 0 {
			return Layout{}, fmt.Errorf("sircc.type.bad_shape: struct field %q has non-positive alignment", f.Name)
		}
		if fl.Align > maxAlign {
			maxAlign = fl.Align
		}
		off = roundUp(off, fl.Align)
		if fl.Size != 0 && off > math.MaxInt64-fl.Size {
			return Layout{}, fmt.Errorf("sircc.type.overflow: struct size overflows")
		}
		off += fl.Size
	}
	off = roundUp(off, maxAlign)
	return Layout{Size: off, Align: maxAlign}, nil
}

func (r *Resolver) closureLayout(t *sir.Type, visiting map[int64]bool) (Layout, error) {
	// {code_ptr, env}: code pointer precedes env, natural alignment (spec.md §3).
	code := r.ptrLayout()
	off := code.Size
	maxAlign := code.Align

	env, err := r.layoutRec(t.EnvTy, visiting)
	if err != nil {
		return Layout{}, err
	}
	if env.Align <= 0 {
		return Layout{}, fmt.Errorf("sircc.type.bad_shape: closure env has non-positive alignment")
	}
	if env.Align > maxAlign {
		maxAlign = env.Align
	}
	off = roundUp(off, env.Align)
	if env.Size != 0 && off > math.MaxInt64-env.Size {
		return Layout{}, fmt.Errorf("sircc.type.overflow: closure size overflows")
	}
	off += env.Size
	off = roundUp(off, maxAlign)
	return Layout{Size: off, Align: maxAlign}, nil
}

// SumPayload describes the normative sum-type layout contract of spec.md
// §3/§4.C: {tag:i32, payload:bytes}, payload at roundup(4, max_payload_align).
type SumPayload struct {
	Layout
	PayloadOffset int64
	PayloadAlign  int64
	PayloadSize   int64
}

func (r *Resolver) sumLayout(t *sir.Type, visiting map[int64]bool) (Layout, error) {
	sp, err := r.SumLayout(t, visiting)
	if err != nil {
		return Layout{}, err
	}
	return sp.Layout, nil
}

// SumLayout computes the full sum-type layout, including the payload
// offset needed by native-IR lowering's variant construction/extraction.
func (r *Resolver) SumLayout(t *sir.Type, visiting map[int64]bool) (SumPayload, error) {
	var payloadSize, payloadAlign int64 = 0, 1
	for _, v := range t.Variants {
		if v.Ty == 0 {
			continue
		}
		vl, err := r.layoutRec(v.Ty, visiting)
		if err != nil {
			return SumPayload{}, err
		}
		if vl.Size > payloadSize {
			payloadSize = vl.Size
		}
		if vl.Align > payloadAlign {
			payloadAlign = vl.Align
		}
	}
	if payloadAlign < 1 {
		payloadAlign = 1
	}
	alignSum := payloadAlign
	if alignSum < 4 {
		alignSum = 4
	}
	payloadOff := roundUp(4, payloadAlign)
	total := payloadOff + payloadSize
	total = roundUp(total, alignSum)
	return SumPayload{
		Layout:        Layout{Size: total, Align: alignSum},
		PayloadOffset: payloadOff,
		PayloadAlign:  payloadAlign,
		PayloadSize:   payloadSize,
	}, nil
}
