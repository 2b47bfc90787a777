package nir

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/frogfishio/sircc/internal/sir"
)

// lowerVecOp covers vec.splat/extract/replace/bitcast, gated on simd:v1 by
// the validator before lowering ever sees these tags (spec.md §3,
// feature gating table).
func (fc *funcCtx) lowerVecOp(blk *ir.Block, n *sir.Node) (value.Value, error) {
	op := n.Tag[len("vec."):]
	switch op {
	case "splat":
		lane, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		vt, err := fc.m.types.Lower(n.TypeRef)
		if err != nil {
			return nil, err
		}
		vecTy, ok := vt.(*types.VectorType)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.vec.splat.bad_type: vec.splat node %d's type is not a vector", n.ID)
		}
		var cur value.Value = constant.NewUndef(vecTy)
		for i := uint64(0); i < vecTy.Len; i++ {
			cur = blk.NewInsertElement(cur, lane, constant.NewInt(types.I32, int64(i)))
		}
		return cur, nil

	case "extract":
		args := n.Fields.Get("args")
		if !args.IsArray() || len(args.Items) != 2 {
			return nil, fmt.Errorf("sircc.nir.vec.extract.bad_shape: node %d requires vec and index", n.ID)
		}
		vec, err := fc.valueOf(args.Items[0])
		if err != nil {
			return nil, err
		}
		idxRef := args.Items[1]
		idxVal, err := fc.valueOf(idxRef)
		if err != nil {
			return nil, err
		}
		if vecTy, ok := vec.Type().(*types.VectorType); ok {
			if ci, ok := idxVal.(*constant.Int); ok {
				lanes := int64(vecTy.Len)
				if ci.X.Int64() < 0 || ci.X.Int64() >= lanes {
					return nil, fmt.Errorf("sircc.nir.vec.extract.oob: lane index out of bounds for %d-lane vector", lanes)
				}
			}
		}
		return blk.NewExtractElement(vec, idxVal), nil

	case "replace":
		args := n.Fields.Get("args")
		if !args.IsArray() || len(args.Items) != 3 {
			return nil, fmt.Errorf("sircc.nir.vec.replace.bad_shape: node %d requires vec, index, value", n.ID)
		}
		vec, err := fc.valueOf(args.Items[0])
		if err != nil {
			return nil, err
		}
		idx, err := fc.valueOf(args.Items[1])
		if err != nil {
			return nil, err
		}
		lane, err := fc.valueOf(args.Items[2])
		if err != nil {
			return nil, err
		}
		return blk.NewInsertElement(vec, lane, idx), nil

	case "bitcast":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		destTy, err := fc.m.types.Lower(n.TypeRef)
		if err != nil {
			return nil, err
		}
		return blk.NewBitCast(a, destTy), nil

	default:
		return nil, fmt.Errorf("sircc.nir.vec_op.unhandled: vector op %q not supported", op)
	}
}
