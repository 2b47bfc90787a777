package nir

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/frogfishio/sircc/internal/sir"
)

// lowerPtrOp covers the pointer operation family of spec.md §4.G:
// ptr.sym/add/sub/offset/to_i64/from_i64/cmp.eq/cmp.ne/sizeof/alignof.
func (fc *funcCtx) lowerPtrOp(blk *ir.Block, n *sir.Node) (value.Value, error) {
	op := n.Tag[len("ptr."):]
	switch op {
	case "sym":
		name := n.Fields.Get("name").String()
		if f := fc.findFunc(name); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("sircc.nir.ptr.sym.unresolved: no symbol named %q", name)

	case "add", "sub":
		base, idx, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		if op == "sub" {
			idx = blk.NewSub(constant.NewInt(types.I64, 0), idx)
		}
		return blk.NewGetElementPtr(types.I8, base, idx), nil

	case "offset":
		args := n.Fields.Get("args")
		if !args.IsArray() || len(args.Items) != 2 {
			return nil, fmt.Errorf("sircc.nir.ptr.offset.bad_shape: node %d requires 2 args", n.ID)
		}
		base, err := fc.valueOf(args.Items[0])
		if err != nil {
			return nil, err
		}
		idx, err := fc.valueOf(args.Items[1])
		if err != nil {
			return nil, err
		}
		pt, ok := base.Type().(*types.PointerType)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.ptr.offset.not_ptr: ptr.offset base is not a pointer")
		}
		return blk.NewGetElementPtr(pt.ElemType, base, idx), nil

	case "to_i64":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		return blk.NewPtrToInt(a, types.I64), nil

	case "from_i64":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		resTy, err := fc.m.types.Lower(n.TypeRef)
		if err != nil {
			return nil, err
		}
		return blk.NewIntToPtr(a, resTy), nil

	case "cmp.eq", "cmp.ne":
		a, b, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		pred := ir.IntEQ
		if op == "cmp.ne" {
			pred = ir.IntNE
		}
		return blk.NewICmp(pred, a, b), nil

	case "sizeof":
		tyRef := n.Fields.Get("of")
		id, _ := sir.ParseRef(tyRef)
		l, err := fc.m.res.Layout(id)
		if err != nil {
			return nil, err
		}
		return constant.NewInt(types.I64, int64(l.Size)), nil

	case "alignof":
		tyRef := n.Fields.Get("of")
		id, _ := sir.ParseRef(tyRef)
		l, err := fc.m.res.Layout(id)
		if err != nil {
			return nil, err
		}
		return constant.NewInt(types.I64, int64(l.Align)), nil

	default:
		return nil, fmt.Errorf("sircc.nir.ptr_op.unhandled: pointer op %q not supported", op)
	}
}
