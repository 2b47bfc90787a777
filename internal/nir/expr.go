package nir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// valueOf resolves a fields entry that may be either a plain node ref
// (number or {"ref":id}) or an inline {"kind":"val","v":ref} branch
// wrapper (the shape lowerhl normalizes sem.if/sem.and_sc/sem.or_sc into)
// to the SSA value already produced for that node.
func (fc *funcCtx) valueOf(v *sirjson.Value) (value.Value, error) {
	if v == nil {
		return nil, fmt.Errorf("sircc.nir.ref.missing: expected a node reference, found none")
	}
	if v.IsObject() && v.Get("kind") != nil {
		return fc.valueOf(v.Get("v"))
	}
	id, ok := sir.ParseRef(v)
	if !ok {
		return nil, fmt.Errorf("sircc.nir.ref.bad: value is not a node reference")
	}
	if val, ok := fc.vals[id]; ok {
		return val, nil
	}
	n := fc.m.prog.GetNode(id)
	if n == nil {
		return nil, fmt.Errorf("sircc.nir.ref.unknown: node %d not found", id)
	}
	val, err := fc.lowerNode(fc.curBlock(), n)
	if err != nil {
		return nil, err
	}
	fc.vals[id] = val
	return val, nil
}

// curBlock returns the block statement lowering is currently appending
// to, tracked in fc.cur so that diamond-building ops (trapping div/rem,
// saturating casts) can repoint it at their merge block.
func (fc *funcCtx) curBlock() *ir.Block { return fc.cur }

func (fc *funcCtx) constInt(v *sirjson.Value) (*constant.Int, error) {
	val, err := fc.valueOf(v)
	if err != nil {
		return nil, err
	}
	ci, ok := val.(*constant.Int)
	if !ok {
		return nil, fmt.Errorf("sircc.nir.switch.case.not_const: switch case value must be a constant integer")
	}
	return ci, nil
}

// lowerNode lowers one expression node to an SSA value. blk is nil for
// nodes that don't need an insertion point (constants, symbol names);
// every instruction-producing op requires a non-nil blk.
func (fc *funcCtx) lowerNode(blk *ir.Block, n *sir.Node) (value.Value, error) {
	switch {
	case n.Tag == "name":
		return fc.lowerName(n)
	case len(n.Tag) >= 6 && n.Tag[:6] == "const.":
		return fc.lowerConst(n)
	case n.Tag == "select":
		return fc.lowerSelect(blk, n)
	case n.Tag == "bool.and" || n.Tag == "bool.or" || n.Tag == "bool.xor":
		return fc.lowerBoolBin(blk, n)
	case n.Tag == "bool.not":
		return fc.lowerBoolNot(blk, n)
	case n.Tag == "alloca" || hasPrefix(n.Tag, "alloca."):
		return fc.lowerAlloca(blk, n)
	case hasPrefix(n.Tag, "load."):
		return fc.lowerLoad(blk, n)
	case hasPrefix(n.Tag, "store."):
		return fc.lowerStore(blk, n)
	case n.Tag == "call":
		return fc.lowerCall(blk, n)
	case hasPrefix(n.Tag, "ptr."):
		return fc.lowerPtrOp(blk, n)
	case hasPrefix(n.Tag, "vec."):
		return fc.lowerVecOp(blk, n)
	default:
		if family, op, ok := splitTag(n.Tag); ok {
			if it, ok := intType(family); ok {
				return fc.lowerIntOp(blk, n, it, op)
			}
			if ft, ok := floatType(family); ok {
				return fc.lowerFloatOp(blk, n, ft, op)
			}
		}
		return nil, fmt.Errorf("sircc.nir.node.unhandled: node %d tag %q not supported by native-IR lowering", n.ID, n.Tag)
	}
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

// findFunc looks up a previously-declared function by name within the
// module under construction.
func (fc *funcCtx) findFunc(name string) *ir.Func {
	for _, cand := range fc.m.M.Funcs {
		if cand.Name() == name {
			return cand
		}
	}
	return nil
}

func (fc *funcCtx) lowerName(n *sir.Node) (value.Value, error) {
	name := n.Fields.Get("name").String()
	if f := fc.findFunc(name); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("sircc.nir.name.unresolved: no symbol named %q", name)
}

func (fc *funcCtx) lowerConst(n *sir.Node) (value.Value, error) {
	kind := n.Tag[len("const."):]
	switch kind {
	case "i1", "bool":
		return constant.NewBool(n.Fields.Get("value").BoolVal()), nil
	case "i8", "i16", "i32", "i64":
		it, _ := intType(kind)
		val, ok := n.Fields.Get("value").Int64()
		if !ok {
			return nil, fmt.Errorf("sircc.nir.const.bad_literal: node %d: value is not an integer", n.ID)
		}
		return constant.NewInt(it, val), nil
	case "f32":
		bits, err := parseHexBits(n.Fields.Get("bits"), 32)
		if err != nil {
			return nil, fmt.Errorf("sircc.nir.const.bad_literal: %v", err)
		}
		return constant.NewFloat(types.Float, float64(math.Float32frombits(uint32(bits)))), nil
	case "f64":
		bits, err := parseHexBits(n.Fields.Get("bits"), 64)
		if err != nil {
			return nil, fmt.Errorf("sircc.nir.const.bad_literal: %v", err)
		}
		return constant.NewFloat(types.Double, math.Float64frombits(bits)), nil
	case "cstr":
		g, err := fc.m.internCStr(n.Fields.Get("value").String())
		if err != nil {
			return nil, err
		}
		return constant.NewGetElementPtr(g.ContentType, g, constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0)), nil
	default:
		return nil, fmt.Errorf("sircc.nir.const.unhandled: const kind %q not supported", kind)
	}
}

// parseHexBits reads a const.f* node's bits:"0x..." field (spec.md §4.G:
// "const.f* reads bits:\"0x…\" and bit-casts ... to the float type") into
// its raw bit pattern, truncated to width bits.
func parseHexBits(v *sirjson.Value, width int) (uint64, error) {
	s := v.String()
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	bits, err := strconv.ParseUint(s, 16, width)
	if err != nil {
		return 0, err
	}
	return bits, nil
}

func (fc *funcCtx) lowerSelect(blk *ir.Block, n *sir.Node) (value.Value, error) {
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 3 {
		return nil, fmt.Errorf("sircc.nir.select.bad_shape: select node %d requires 3 args", n.ID)
	}
	cond, err := fc.valueOf(args.Items[0])
	if err != nil {
		return nil, err
	}
	a, err := fc.valueOf(args.Items[1])
	if err != nil {
		return nil, err
	}
	b, err := fc.valueOf(args.Items[2])
	if err != nil {
		return nil, err
	}
	return blk.NewSelect(cond, a, b), nil
}

func (fc *funcCtx) lowerBoolBin(blk *ir.Block, n *sir.Node) (value.Value, error) {
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 2 {
		return nil, fmt.Errorf("sircc.nir.bool_bin.bad_shape: node %d requires 2 args", n.ID)
	}
	a, err := fc.valueOf(args.Items[0])
	if err != nil {
		return nil, err
	}
	b, err := fc.valueOf(args.Items[1])
	if err != nil {
		return nil, err
	}
	switch n.Tag {
	case "bool.and":
		return blk.NewAnd(a, b), nil
	case "bool.xor":
		return blk.NewXor(a, b), nil
	default:
		return blk.NewOr(a, b), nil
	}
}

func (fc *funcCtx) lowerBoolNot(blk *ir.Block, n *sir.Node) (value.Value, error) {
	a, err := fc.unArg(n)
	if err != nil {
		return nil, err
	}
	return blk.NewXor(a, constant.NewBool(true)), nil
}

// lowerAlloca handles both the scalar form (the node's type_ref names the
// allocated type directly) and the array form (fields.len gives an
// element count), with an optional explicit alignment override (spec.md
// §4.G, "alloca (scalar vs array, explicit align override)").
func (fc *funcCtx) lowerAlloca(blk *ir.Block, n *sir.Node) (value.Value, error) {
	elemTyID := n.TypeRef
	elemTy, err := fc.m.types.Lower(elemTyID)
	if err != nil {
		return nil, err
	}
	a := blk.NewAlloca(elemTy)
	if lenV := n.Fields.Get("len"); lenV != nil {
		count, err := fc.valueOf(lenV)
		if err != nil {
			return nil, err
		}
		a.NElems = count
	}
	if alignV := n.Fields.Get("align"); alignV != nil {
		if iv, ok := alignV.Int64(); ok {
			a.Align = ir.Align(iv)
		}
	}
	return a, nil
}

// lowerLoad grounds spec.md §4.G's load.T: "emits an alignment-trap guard
// when align > 1; loads with the requested alignment; canonicalizes float
// results." align==0/1 needs no guard (the common case); align>1 gets the
// same trap_if-style diamond as lowerTrapIf, masking the low bits of the
// address's integer view against align-1.
func (fc *funcCtx) lowerLoad(blk *ir.Block, n *sir.Node) (value.Value, error) {
	ptr, err := fc.valueOf(n.Fields.Get("addr"))
	if err != nil {
		return nil, err
	}
	elemTy, err := fc.m.types.Lower(n.TypeRef)
	if err != nil {
		return nil, err
	}
	if align, ok := n.Fields.Get("align").Int64(); ok && align > 1 {
		blk, err = fc.emitAlignTrap(blk, n, ptr, align)
		if err != nil {
			return nil, err
		}
	}
	v := blk.NewLoad(elemTy, ptr)
	fc.cur = blk
	if _, isFloat := elemTy.(*types.FloatType); isFloat {
		return fc.canonicalizeFloat(blk, v, elemTy), nil
	}
	return v, nil
}

func (fc *funcCtx) lowerStore(blk *ir.Block, n *sir.Node) (value.Value, error) {
	ptr, err := fc.valueOf(n.Fields.Get("addr"))
	if err != nil {
		return nil, err
	}
	v, err := fc.valueOf(n.Fields.Get("value"))
	if err != nil {
		return nil, err
	}
	if align, ok := n.Fields.Get("align").Int64(); ok && align > 1 {
		blk, err = fc.emitAlignTrap(blk, n, ptr, align)
		if err != nil {
			return nil, err
		}
	}
	blk.NewStore(v, ptr)
	fc.cur = blk
	return nil, nil
}

// emitAlignTrap builds spec.md §4.G's misalignment-trap diamond
// (compiler_lower_util.c's emit_trap_if_misaligned): bitcast the address
// to an integer view, mask its low bits against align-1, and branch to a
// trap intrinsic + unreachable block when any are set. align must be a
// power of two (spec.md §4.H, "Traps"). Returns the continuation block
// subsequent lowering should use.
func (fc *funcCtx) emitAlignTrap(blk *ir.Block, n *sir.Node, ptr value.Value, align int64) (*ir.Block, error) {
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("sircc.align.not_pow2: node %d alignment %d is not a power of two", n.ID, align)
	}
	addrInt := blk.NewPtrToInt(ptr, types.I64)
	mask := blk.NewAnd(addrInt, constant.NewInt(types.I64, align-1))
	bad := blk.NewICmp(ir.IntNE, mask, constant.NewInt(types.I64, 0))
	trapBlk := fc.fn.NewBlock(fmt.Sprintf("aligntrap%d", n.ID))
	fc.emitTrapIntrinsic(trapBlk)
	trapBlk.NewUnreachable()
	okBlk := fc.fn.NewBlock(fmt.Sprintf("alignok%d", n.ID))
	blk.NewCondBr(bad, trapBlk, okBlk)
	return okBlk, nil
}

// emitTrapIntrinsic calls llvm.trap(), declaring it on first use, matching
// spec.md §4.G's "a trap intrinsic then unreachable" for every trap
// diamond (misalignment, div/rem-by-zero, INT_MIN/-1 overflow).
func (fc *funcCtx) emitTrapIntrinsic(blk *ir.Block) {
	fn := fc.findFunc("llvm.trap")
	if fn == nil {
		fn = fc.m.M.NewFunc("llvm.trap", types.Void)
	}
	blk.NewCall(fn)
}

// canonicalizeFloat replaces v with the canonical qNaN pattern when v is
// NaN, per spec.md §4.G's "every float result is canonicalized".
func (fc *funcCtx) canonicalizeFloat(blk *ir.Block, v value.Value, ft types.Type) value.Value {
	isNaN := blk.NewFCmp(ir.FloatUNO, v, v)
	return blk.NewSelect(isNaN, canonQNaN(ft), v)
}

// lowerCall lowers direct calls, checking the callee signature's arity
// matches exactly (spec.md §8 scenario 6): fewer or more args than the
// callee's declared parameter count is rejected before emitting the call.
func (fc *funcCtx) lowerCall(blk *ir.Block, n *sir.Node) (value.Value, error) {
	calleeRef := n.Fields.Get("fn")
	calleeID, ok := sir.ParseRef(calleeRef)
	if !ok {
		return nil, fmt.Errorf("sircc.nir.call.bad_shape: call node %d missing callee", n.ID)
	}
	calleeNode := fc.m.prog.GetNode(calleeID)
	if calleeNode == nil || calleeNode.Tag != "name" {
		return nil, fmt.Errorf("sircc.nir.call.bad_callee: call node %d callee is not a name", n.ID)
	}
	calleeName := calleeNode.Fields.Get("name").String()
	callee := fc.findFunc(calleeName)
	if callee == nil {
		return nil, fmt.Errorf("sircc.nir.call.unresolved: no function named %q", calleeName)
	}
	argsV := n.Fields.Get("args")
	var args []value.Value
	if argsV.IsArray() {
		for _, a := range argsV.Items {
			v, err := fc.valueOf(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}
	if len(args) != len(callee.Params) {
		return nil, fmt.Errorf("sircc.nir.call.arity: call to %q supplies %d args, expected %d", calleeName, len(args), len(callee.Params))
	}
	return blk.NewCall(callee, args...), nil
}

// lowerIntOp handles the integer arithmetic/bitwise/comparison/cast family
// named by a dotted tag like "i32.add" or "i32.cmp.eq" (spec.md §3/§4.G).
// Dispatch mirrors compiler_lower_expr_a.c's op-name switch: plain mnemonics
// for arithmetic/bitwise ops, "cmp.*" for comparisons, "shl"/"shr.s"/"shr.u"
// and "rotl"/"rotr" with the shift/rotate amount masked to operand width,
// "clz"/"ctz"/"popc" via llvm.ctlz/cttz/ctpop, "div|rem.{s,u}.trap" via the
// trapping-division diamond, "div|rem.{s,u}.sat" via the saturating-division
// diamond, "trunc_sat_fM.{s,u}" via the float-to-int saturating diamond, and
// "zext.iM"/"sext.iM"/"trunc.iM" with the source width parsed from the tag.
func (fc *funcCtx) lowerIntOp(blk *ir.Block, n *sir.Node, it *types.IntType, op string) (value.Value, error) {
	switch op {
	case "add", "sub", "mul", "and", "or", "xor":
		a, b, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		switch op {
		case "add":
			return blk.NewAdd(a, b), nil
		case "sub":
			return blk.NewSub(a, b), nil
		case "mul":
			return blk.NewMul(a, b), nil
		case "and":
			return blk.NewAnd(a, b), nil
		case "or":
			return blk.NewOr(a, b), nil
		default:
			return blk.NewXor(a, b), nil
		}

	case "shl", "shr.s", "shr.u":
		a, b, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		amt := fc.maskShiftAmount(blk, b, it)
		switch op {
		case "shl":
			return blk.NewShl(a, amt), nil
		case "shr.s":
			return blk.NewAShr(a, amt), nil
		default:
			return blk.NewLShr(a, amt), nil
		}

	case "rotl", "rotr":
		a, b, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		amt := fc.maskShiftAmount(blk, b, it)
		iname := "llvm.fshl"
		if op == "rotr" {
			iname = "llvm.fshr"
		}
		fn := fc.intrinsic(fmt.Sprintf("%s.i%d", iname, intWidth(it)), it, it, it, it)
		return blk.NewCall(fn, a, a, amt), nil

	case "clz", "ctz":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		iname := "llvm.ctlz"
		if op == "ctz" {
			iname = "llvm.cttz"
		}
		fn := fc.intrinsic(fmt.Sprintf("%s.i%d", iname, intWidth(it)), it, it, types.I1)
		return blk.NewCall(fn, a, constant.NewBool(false)), nil

	case "popc":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		fn := fc.intrinsic(fmt.Sprintf("llvm.ctpop.i%d", intWidth(it)), it, it)
		return blk.NewCall(fn, a), nil

	case "not":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		return blk.NewXor(a, constant.NewInt(it, -1)), nil

	case "neg":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		return blk.NewSub(constant.NewInt(it, 0), a), nil

	case "eqz":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		return blk.NewICmp(ir.IntEQ, a, constant.NewInt(it, 0)), nil

	case "min.s", "min.u", "max.s", "max.u":
		return fc.lowerIntMinMax(blk, n, op)

	case "div.s.trap", "div.u.trap", "rem.s.trap", "rem.u.trap":
		return fc.lowerTrappingDivRem(blk, n, op)

	case "div.s.sat", "div.u.sat", "rem.s.sat", "rem.u.sat":
		return fc.lowerSatDivRem(n, op)

	default:
		switch {
		case hasPrefix(op, "cmp."):
			a, b, err := fc.binArgs(n)
			if err != nil {
				return nil, err
			}
			pred, ok := intPred(op)
			if !ok {
				return nil, fmt.Errorf("sircc.nir.int_op.unhandled: integer compare %q not supported", op)
			}
			return blk.NewICmp(pred, a, b), nil

		case hasPrefix(op, "zext.i"), hasPrefix(op, "sext.i"), hasPrefix(op, "trunc.i"):
			return fc.lowerIntCast(blk, n, it, op)

		case hasPrefix(op, "trunc_sat_f"):
			return fc.lowerTruncSat(n, it, op)
		}
		return nil, fmt.Errorf("sircc.nir.int_op.unhandled: integer op %q not supported", op)
	}
}

func intPred(op string) (ir.IntPred, bool) {
	switch op {
	case "cmp.eq":
		return ir.IntEQ, true
	case "cmp.ne":
		return ir.IntNE, true
	case "cmp.slt":
		return ir.IntSLT, true
	case "cmp.sle":
		return ir.IntSLE, true
	case "cmp.sgt":
		return ir.IntSGT, true
	case "cmp.sge":
		return ir.IntSGE, true
	case "cmp.ult":
		return ir.IntULT, true
	case "cmp.ule":
		return ir.IntULE, true
	case "cmp.ugt":
		return ir.IntUGT, true
	case "cmp.uge":
		return ir.IntUGE, true
	default:
		return 0, false
	}
}

// intWidth returns the bit width of one of the five SIR integer types.
func intWidth(it *types.IntType) int64 {
	switch it {
	case types.I1:
		return 1
	case types.I8:
		return 8
	case types.I16:
		return 16
	case types.I32:
		return 32
	default:
		return 64
	}
}

// maskShiftAmount casts amt to it's width (zext if narrower, trunc if
// wider) then masks it to width-1 bits, grounding
// compiler_lower_expr_a.c's uniform treatment of shl/shr.s/shr.u/rotl/rotr
// amounts (spec.md §4.G, "Integer shift masking").
func (fc *funcCtx) maskShiftAmount(blk *ir.Block, amt value.Value, it *types.IntType) value.Value {
	width := intWidth(it)
	if at, ok := amt.Type().(*types.IntType); ok && at != it {
		if intWidth(at) < width {
			amt = blk.NewZExt(amt, it)
		} else if intWidth(at) > width {
			amt = blk.NewTrunc(amt, it)
		}
	}
	mask := constant.NewInt(it, width-1)
	return blk.NewAnd(amt, mask)
}

// intrinsic looks up (or declares) a module-level intrinsic function by its
// full LLVM name, matching compiler_lower_util.c's get_or_declare_intrinsic.
func (fc *funcCtx) intrinsic(name string, ret types.Type, paramTypes ...types.Type) *ir.Func {
	if f := fc.findFunc(name); f != nil {
		return f
	}
	params := make([]*ir.Param, len(paramTypes))
	for i, pt := range paramTypes {
		params[i] = ir.NewParam(fmt.Sprintf("x%d", i), pt)
	}
	return fc.m.M.NewFunc(name, ret, params...)
}

// lowerIntCast implements zext.iM/sext.iM/trunc.iM, parsing the source
// width M from the tag suffix and validating the width relationship the
// way compiler_lower_expr_a.c does: zext/sext require dst wider than src,
// trunc requires dst narrower than src.
func (fc *funcCtx) lowerIntCast(blk *ir.Block, n *sir.Node, it *types.IntType, op string) (value.Value, error) {
	var kind, rest string
	switch {
	case hasPrefix(op, "zext."):
		kind, rest = "zext", op[len("zext."):]
	case hasPrefix(op, "sext."):
		kind, rest = "sext", op[len("sext."):]
	default:
		kind, rest = "trunc", op[len("trunc."):]
	}
	if !hasPrefix(rest, "i") {
		return nil, fmt.Errorf("sircc.nir.int_op.bad_cast: malformed cast tag %q", op)
	}
	src, err := strconv.Atoi(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("sircc.nir.int_op.bad_cast: malformed cast width in %q", op)
	}
	dstWidth := intWidth(it)
	switch kind {
	case "zext", "sext":
		if dstWidth <= int64(src) {
			return nil, fmt.Errorf("sircc.nir.int_op.cast_width: %q requires a destination wider than i%d", op, src)
		}
	default:
		if dstWidth >= int64(src) {
			return nil, fmt.Errorf("sircc.nir.int_op.cast_width: %q requires a destination narrower than i%d", op, src)
		}
	}
	a, err := fc.unArg(n)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "zext":
		return blk.NewZExt(a, it), nil
	case "sext":
		return blk.NewSExt(a, it), nil
	default:
		return blk.NewTrunc(a, it), nil
	}
}

func (fc *funcCtx) binArgs(n *sir.Node) (value.Value, value.Value, error) {
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 2 {
		return nil, nil, fmt.Errorf("sircc.nir.op.bad_shape: node %d requires 2 args", n.ID)
	}
	a, err := fc.valueOf(args.Items[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := fc.valueOf(args.Items[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (fc *funcCtx) unArg(n *sir.Node) (value.Value, error) {
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 1 {
		return nil, fmt.Errorf("sircc.nir.op.bad_shape: node %d requires 1 arg", n.ID)
	}
	return fc.valueOf(args.Items[0])
}

// lowerTrappingDivRem builds the div/rem-by-zero guard diamond spec.md
// §4.G requires for the *.trap variants (compiler_lower_expr_a.c's
// trap_cond = (b==0)), additionally OR-ing in the INT_MIN/-1 overflow
// check but only for div.s.trap (the original's "is_div && is_signed"
// condition — rem.s.trap never overflows, since the remainder of
// INT_MIN/-1 is always 0).
func (fc *funcCtx) lowerTrappingDivRem(blk *ir.Block, n *sir.Node, op string) (value.Value, error) {
	a, b, err := fc.binArgs(n)
	if err != nil {
		return nil, err
	}
	it := a.Type().(*types.IntType)
	zero := constant.NewInt(it, 0)
	trapCond := blk.NewICmp(ir.IntEQ, b, zero)

	if op == "div.s.trap" {
		width := intWidth(it)
		minI := constant.NewInt(it, int64(1)<<uint(width-1))
		neg1 := constant.NewInt(it, -1)
		aIsMin := blk.NewICmp(ir.IntEQ, a, minI)
		bIsNeg1 := blk.NewICmp(ir.IntEQ, b, neg1)
		overflow := blk.NewAnd(aIsMin, bIsNeg1)
		trapCond = blk.NewOr(trapCond, overflow)
	}

	trapBlk := fc.fn.NewBlock(fmt.Sprintf("divtrap%d", n.ID))
	fc.emitTrapIntrinsic(trapBlk)
	trapBlk.NewUnreachable()
	okBlk := fc.fn.NewBlock(fmt.Sprintf("divok%d", n.ID))
	blk.NewCondBr(trapCond, trapBlk, okBlk)
	fc.cur = okBlk

	switch op {
	case "div.s.trap":
		return okBlk.NewSDiv(a, b), nil
	case "div.u.trap":
		return okBlk.NewUDiv(a, b), nil
	case "rem.s.trap":
		return okBlk.NewSRem(a, b), nil
	default:
		return okBlk.NewURem(a, b), nil
	}
}

// lowerSatDivRem builds the saturating div/rem diamond spec.md §4.G
// requires for the *.sat variants: divide-by-zero yields 0, and for
// div.s.sat specifically the INT_MIN/-1 overflow case yields INT_MIN,
// grounded on compiler_lower_expr_a.c's sat.zero/sat.chk/sat.over/
// sat.norm/sat.merge diamond.
func (fc *funcCtx) lowerSatDivRem(n *sir.Node, op string) (value.Value, error) {
	a, b, err := fc.binArgs(n)
	if err != nil {
		return nil, err
	}
	it, ok := a.Type().(*types.IntType)
	if !ok {
		return nil, fmt.Errorf("sircc.nir.int_op.bad_operand: %s node %d requires integer operands", op, n.ID)
	}
	isDiv := hasPrefix(op, "div.")
	signed := op[4] == 's'
	width := intWidth(it)

	blk := fc.cur
	zero := constant.NewInt(it, 0)
	zeroBlk := fc.fn.NewBlock(fmt.Sprintf("sat.zero%d", n.ID))
	chkBlk := fc.fn.NewBlock(fmt.Sprintf("sat.chk%d", n.ID))
	normBlk := fc.fn.NewBlock(fmt.Sprintf("sat.norm%d", n.ID))
	mergeBlk := fc.fn.NewBlock(fmt.Sprintf("sat.merge%d", n.ID))

	isZero := blk.NewICmp(ir.IntEQ, b, zero)
	blk.NewCondBr(isZero, zeroBlk, chkBlk)
	zeroBlk.NewBr(mergeBlk)

	incs := []*ir.Incoming{ir.NewIncoming(zero, zeroBlk)}

	if isDiv && signed {
		overBlk := fc.fn.NewBlock(fmt.Sprintf("sat.over%d", n.ID))
		minI := constant.NewInt(it, int64(1)<<uint(width-1))
		neg1 := constant.NewInt(it, -1)
		aIsMin := chkBlk.NewICmp(ir.IntEQ, a, minI)
		bIsNeg1 := chkBlk.NewICmp(ir.IntEQ, b, neg1)
		overflow := chkBlk.NewAnd(aIsMin, bIsNeg1)
		chkBlk.NewCondBr(overflow, overBlk, normBlk)
		overBlk.NewBr(mergeBlk)
		incs = append(incs, ir.NewIncoming(minI, overBlk))
	} else {
		chkBlk.NewBr(normBlk)
	}

	var norm value.Value
	switch {
	case isDiv && signed:
		norm = normBlk.NewSDiv(a, b)
	case isDiv && !signed:
		norm = normBlk.NewUDiv(a, b)
	case !isDiv && signed:
		norm = normBlk.NewSRem(a, b)
	default:
		norm = normBlk.NewURem(a, b)
	}
	normBlk.NewBr(mergeBlk)
	incs = append(incs, ir.NewIncoming(norm, normBlk))

	phi := mergeBlk.NewPhi(incs...)
	fc.cur = mergeBlk
	return phi, nil
}

// lowerTruncSat implements trunc_sat_f32.{s,u}/trunc_sat_f64.{s,u}: a
// four-way diamond (NaN->0, too-low->min, too-high->max, otherwise the
// converted value), grounded on compiler_lower_expr_a.c's sat.nan/
// sat.chk1/sat.min/sat.chk2/sat.max/sat.conv/sat.merge blocks.
func (fc *funcCtx) lowerTruncSat(n *sir.Node, it *types.IntType, op string) (value.Value, error) {
	rest := op[len("trunc_sat_f"):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return nil, fmt.Errorf("sircc.nir.int_op.bad_trunc_sat: malformed tag %q", op)
	}
	srcw, su := rest[:dot], rest[dot+1:]
	var fty types.Type
	switch srcw {
	case "32":
		fty = types.Float
	case "64":
		fty = types.Double
	default:
		return nil, fmt.Errorf("sircc.nir.int_op.bad_trunc_sat: unsupported source width in %q", op)
	}
	var signed bool
	switch su {
	case "s":
		signed = true
	case "u":
		signed = false
	default:
		return nil, fmt.Errorf("sircc.nir.int_op.bad_trunc_sat: unsupported sign suffix in %q", op)
	}

	x, err := fc.unArg(n)
	if err != nil {
		return nil, err
	}
	blk := fc.cur
	width := intWidth(it)
	zero := constant.NewInt(it, 0)

	nanBlk := fc.fn.NewBlock(fmt.Sprintf("sat.nan%d", n.ID))
	chk1Blk := fc.fn.NewBlock(fmt.Sprintf("sat.chk1.%d", n.ID))
	minBlk := fc.fn.NewBlock(fmt.Sprintf("sat.min%d", n.ID))
	chk2Blk := fc.fn.NewBlock(fmt.Sprintf("sat.chk2.%d", n.ID))
	maxBlk := fc.fn.NewBlock(fmt.Sprintf("sat.max%d", n.ID))
	convBlk := fc.fn.NewBlock(fmt.Sprintf("sat.conv%d", n.ID))
	mergeBlk := fc.fn.NewBlock(fmt.Sprintf("sat.merge%d", n.ID))

	isNaN := blk.NewFCmp(ir.FloatUNO, x, x)
	blk.NewCondBr(isNaN, nanBlk, chk1Blk)
	nanBlk.NewBr(mergeBlk)

	var minI, maxI *constant.Int
	if signed {
		minI = constant.NewInt(it, int64(1)<<uint(width-1))
		maxI = constant.NewInt(it, (int64(1)<<uint(width-1))-1)
		minF := chk1Blk.NewSIToFP(minI, fty)
		tooLow := chk1Blk.NewFCmp(ir.FloatOLT, x, minF)
		chk1Blk.NewCondBr(tooLow, minBlk, chk2Blk)
	} else {
		minI = constant.NewInt(it, 0)
		maxI = constant.NewInt(it, -1)
		zeroF := constant.NewFloat(fty, 0)
		tooLow := chk1Blk.NewFCmp(ir.FloatOLE, x, zeroF)
		chk1Blk.NewCondBr(tooLow, minBlk, chk2Blk)
	}
	minBlk.NewBr(mergeBlk)

	var maxF value.Value
	if signed {
		maxF = chk2Blk.NewSIToFP(maxI, fty)
	} else {
		maxF = chk2Blk.NewUIToFP(maxI, fty)
	}
	tooHigh := chk2Blk.NewFCmp(ir.FloatOGE, x, maxF)
	chk2Blk.NewCondBr(tooHigh, maxBlk, convBlk)
	maxBlk.NewBr(mergeBlk)

	var conv value.Value
	if signed {
		conv = convBlk.NewFPToSI(x, it)
	} else {
		conv = convBlk.NewFPToUI(x, it)
	}
	convBlk.NewBr(mergeBlk)

	phi := mergeBlk.NewPhi(
		ir.NewIncoming(zero, nanBlk),
		ir.NewIncoming(minI, minBlk),
		ir.NewIncoming(maxI, maxBlk),
		ir.NewIncoming(conv, convBlk),
	)
	fc.cur = mergeBlk
	return phi, nil
}

// lowerIntMinMax uses inclusive predicates (SLE/ULE for min, SGE/UGE for
// max), matching compiler_lower_expr_a.c's is_min ? SLE/ULE : SGE/UGE —
// not the strict variants, which would select the wrong operand on ties.
func (fc *funcCtx) lowerIntMinMax(blk *ir.Block, n *sir.Node, op string) (value.Value, error) {
	a, b, err := fc.binArgs(n)
	if err != nil {
		return nil, err
	}
	isMin := hasPrefix(op, "min.")
	signed := op[4] == 's'
	var pred ir.IntPred
	switch {
	case isMin && signed:
		pred = ir.IntSLE
	case isMin && !signed:
		pred = ir.IntULE
	case !isMin && signed:
		pred = ir.IntSGE
	default:
		pred = ir.IntUGE
	}
	cmp := blk.NewICmp(pred, a, b)
	return blk.NewSelect(cmp, a, b), nil
}

// canonQNaN returns the canonical quiet-NaN bit pattern for the given
// float type (0x7FC00000 for f32, 0x7FF8000000000000 for f64), matching
// compiler_lower_util.c's canonical_qnan bitcast-of-integer-constant
// technique, not a numerically-constructed NaN.
func canonQNaN(ft types.Type) constant.Constant {
	if ft == types.Float {
		return constant.NewFloat(ft, float64(math.Float32frombits(0x7fc00000)))
	}
	return constant.NewFloat(ft, math.Float64frombits(0x7ff8000000000000))
}

func floatWidth(ft types.Type) int {
	if ft == types.Float {
		return 32
	}
	return 64
}

// lowerFloatOp handles the float arithmetic/comparison/conversion family
// named by a dotted tag like "f32.add" or "f64.cmp.oeq" (spec.md §3/§4.G).
// add/sub/mul/div/neg/abs/sqrt each canonicalize their result, matching
// compiler_lower_expr_b.c's uniform canonicalize_float wrapping.
func (fc *funcCtx) lowerFloatOp(blk *ir.Block, n *sir.Node, ft types.Type, op string) (value.Value, error) {
	switch op {
	case "add", "sub", "mul", "div":
		a, b, err := fc.binArgs(n)
		if err != nil {
			return nil, err
		}
		var v value.Value
		switch op {
		case "add":
			v = blk.NewFAdd(a, b)
		case "sub":
			v = blk.NewFSub(a, b)
		case "mul":
			v = blk.NewFMul(a, b)
		default:
			v = blk.NewFDiv(a, b)
		}
		return fc.canonicalizeFloat(blk, v, ft), nil

	case "neg":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		return fc.canonicalizeFloat(blk, blk.NewFNeg(a), ft), nil

	case "abs", "sqrt":
		a, err := fc.unArg(n)
		if err != nil {
			return nil, err
		}
		iname := "llvm.fabs"
		if op == "sqrt" {
			iname = "llvm.sqrt"
		}
		fn := fc.intrinsic(fmt.Sprintf("%s.f%d", iname, floatWidth(ft)), ft, ft)
		return fc.canonicalizeFloat(blk, blk.NewCall(fn, a), ft), nil

	case "min", "max":
		return fc.lowerFloatMinMax(blk, n, ft, op)

	default:
		switch {
		case hasPrefix(op, "cmp."):
			a, b, err := fc.binArgs(n)
			if err != nil {
				return nil, err
			}
			pred, ok := floatPred(op)
			if !ok {
				return nil, fmt.Errorf("sircc.nir.float_op.unhandled: float compare %q not supported", op)
			}
			return blk.NewFCmp(pred, a, b), nil

		case hasPrefix(op, "from_i"):
			return fc.lowerFloatFromInt(blk, n, ft, op)
		}
		return nil, fmt.Errorf("sircc.nir.float_op.unhandled: float op %q not supported", op)
	}
}

// lowerFloatFromInt implements from_iM.{s,u}: signed/unsigned int-to-float
// conversion (compiler_lower_expr_b.c's from_i dispatch), canonicalized
// like every other float result even though these conversions never
// themselves produce a NaN.
func (fc *funcCtx) lowerFloatFromInt(blk *ir.Block, n *sir.Node, ft types.Type, op string) (value.Value, error) {
	rest := op[len("from_i"):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return nil, fmt.Errorf("sircc.nir.float_op.bad_from_i: malformed tag %q", op)
	}
	su := rest[dot+1:]
	a, err := fc.unArg(n)
	if err != nil {
		return nil, err
	}
	switch su {
	case "s":
		return fc.canonicalizeFloat(blk, blk.NewSIToFP(a, ft), ft), nil
	case "u":
		return fc.canonicalizeFloat(blk, blk.NewUIToFP(a, ft), ft), nil
	default:
		return nil, fmt.Errorf("sircc.nir.float_op.bad_from_i: unsupported sign suffix in %q", op)
	}
}

func floatPred(op string) (ir.FloatPred, bool) {
	switch op {
	case "cmp.oeq":
		return ir.FloatOEQ, true
	case "cmp.one":
		return ir.FloatONE, true
	case "cmp.olt":
		return ir.FloatOLT, true
	case "cmp.ole":
		return ir.FloatOLE, true
	case "cmp.ogt":
		return ir.FloatOGT, true
	case "cmp.oge":
		return ir.FloatOGE, true
	case "cmp.ueq":
		return ir.FloatUEQ, true
	case "cmp.une":
		return ir.FloatUNE, true
	case "cmp.ult":
		return ir.FloatULT, true
	case "cmp.ule":
		return ir.FloatULE, true
	case "cmp.ugt":
		return ir.FloatUGT, true
	case "cmp.uge":
		return ir.FloatUGE, true
	default:
		return 0, false
	}
}

// lowerFloatMinMax emits an ordered compare and select in the current
// block (no extra blocks), with a canonical-qNaN fallback select when
// either operand is NaN (spec.md §4.G).
func (fc *funcCtx) lowerFloatMinMax(blk *ir.Block, n *sir.Node, ft types.Type, op string) (value.Value, error) {
	a, b, err := fc.binArgs(n)
	if err != nil {
		return nil, err
	}
	pred := ir.FloatOLT
	if op == "max" {
		pred = ir.FloatOGT
	}
	cmp := blk.NewFCmp(pred, a, b)
	aIsNaN := blk.NewFCmp(ir.FloatUNO, a, a)
	bIsNaN := blk.NewFCmp(ir.FloatUNO, b, b)
	anyNaN := blk.NewOr(aIsNaN, bIsNaN)
	sel := blk.NewSelect(cmp, a, b)
	return blk.NewSelect(anyNaN, canonQNaN(ft), sel), nil
}
