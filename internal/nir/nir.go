package nir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/frogfishio/sircc/internal/layout"
	"github.com/frogfishio/sircc/internal/sir"
)

// Module wraps one lowered llir/llvm module plus the bookkeeping the
// lowering pass needs across functions: the type cache, one global string
// table (for cstr literals), and the resolved target ABI.
type Module struct {
	prog  *sir.Program
	abi   layout.ABI
	types *TypeLowerer
	res   *layout.Resolver
	M     *ir.Module

	strs map[string]*ir.Global // interned cstr constants, by contents
}

func NewModule(prog *sir.Program, abi layout.ABI) *Module {
	res := layout.NewResolver(prog, abi)
	return &Module{
		prog:  prog,
		abi:   abi,
		res:   res,
		types: NewTypeLowerer(prog, res),
		M:     ir.NewModule(),
		strs:  map[string]*ir.Global{},
	}
}

// funcCtx carries one function's lowering state: the value map from SIR
// node id to llir/llvm SSA value, and the block map from SIR block node id
// to llir/llvm *ir.Block, both populated as lowering walks the CFG in
// entry-first, declared-block order (spec.md §4.G, "For each function
// node... create a backend function").
type funcCtx struct {
	m      *Module
	fn     *ir.Func
	vals   map[int64]value.Value
	blocks map[int64]*ir.Block
	slots  map[int64]*ir.InstAlloca

	// cur is the block statement lowering is currently appending to.
	// Ops that build their own diamond (trapping div/rem, saturating
	// casts) create new blocks mid-statement and must repoint cur at
	// the diamond's merge block so the statement after them, and the
	// block's terminator, land in the right place.
	cur *ir.Block
}

// LowerFunction lowers one "fn" SIR node into an *ir.Func, covering both
// the legacy single-block `fields.body` form and the CFG `entry`/`blocks`
// form (SPEC_FULL.md §4, "legacy single-block form").
func (m *Module) LowerFunction(n *sir.Node) (*ir.Func, error) {
	if n.Tag != "fn" {
		return nil, fmt.Errorf("sircc.nir.fn.bad_tag: node %d is not a fn node", n.ID)
	}
	name := n.Fields.Get("name").String()
	if name == "" {
		return nil, fmt.Errorf("sircc.nir.fn.no_name: fn node %d has no name", n.ID)
	}
	sig := m.prog.GetType(n.TypeRef)
	var ret types.Type = types.Void
	var paramTypes []types.Type
	if sig != nil && sig.Kind == sir.KindFn {
		rt, err := m.types.Lower(sig.Ret)
		if err != nil {
			return nil, err
		}
		ret = rt
		for _, p := range sig.Params {
			pt, err := m.types.Lower(p)
			if err != nil {
				return nil, err
			}
			paramTypes = append(paramTypes, pt)
		}
	}

	params := make([]*ir.Param, len(paramTypes))
	for i, pt := range paramTypes {
		params[i] = ir.NewParam(fmt.Sprintf("p%d", i), pt)
	}
	fn := m.M.NewFunc(name, ret, params...)

	fc := &funcCtx{m: m, fn: fn, vals: map[int64]value.Value{}, blocks: map[int64]*ir.Block{}}

	entryID, _ := sir.ParseRef(n.Fields.Get("entry"))
	blocksArr := n.Fields.Get("blocks")
	bodyRef := n.Fields.Get("body")

	if entryID == 0 {
		// Legacy single-block form: fields.body references a single
		// "block" node with a linear stmts list, not a CFG (spec.md §3,
		// "fn.fields.body references a single block").
		bodyID, ok := sir.ParseRef(bodyRef)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.fn.no_body: fn node %d has neither a CFG entry nor a legacy body", n.ID)
		}
		bn := m.prog.GetNode(bodyID)
		if bn == nil || bn.Tag != "block" {
			return nil, fmt.Errorf("sircc.nir.fn.bad_body: fn node %d's body %d is not a block node", n.ID, bodyID)
		}
		stmts := bn.Fields.Get("stmts")
		blk := fn.NewBlock("entry")
		if err := fc.lowerStmts(blk, stmts.Items); err != nil {
			return nil, err
		}
		return fn, nil
	}

	if !blocksArr.IsArray() {
		return nil, fmt.Errorf("sircc.nir.fn.no_body: fn node %d has an entry but no blocks array", n.ID)
	}

	// First pass: create every block and bind its bparams to llir/llvm
	// block parameters are not native to llir/llvm's ir.Block, so block
	// parameters are instead realized as a slot per bparam id, written by
	// every predecessor branch and read back at block entry (the same
	// SSA-to-alloca-slot technique ll.go uses for locals).
	order := make([]int64, 0, len(blocksArr.Items))
	for _, item := range blocksArr.Items {
		id, ok := sir.ParseRef(item)
		if !ok {
			return nil, fmt.Errorf("sircc.nir.fn.bad_block_ref: fn node %d has a non-ref block entry", n.ID)
		}
		order = append(order, id)
	}
	// The entry block is created first: llir/llvm treats a function's first
	// block as its entry.
	for i, id := range order {
		if id == entryID && i > 0 {
			order = append([]int64{id}, append(order[:i:i], order[i+1:]...)...)
			break
		}
	}
	for _, id := range order {
		bn := m.prog.GetNode(id)
		if bn == nil {
			return nil, fmt.Errorf("sircc.cfg.block.unknown: block %d referenced by fn %d does not exist", id, n.ID)
		}
		fc.blocks[id] = fn.NewBlock(fmt.Sprintf("b%d", id))
	}
	slots := map[int64]*ir.InstAlloca{}
	entryBlk := fc.blocks[entryID]
	if entryBlk == nil {
		return nil, fmt.Errorf("sircc.cfg.entry.unknown: fn %d's entry %d is not among its blocks", n.ID, entryID)
	}
	for _, id := range order {
		bn := m.prog.GetNode(id)
		params := bn.Fields.Get("params")
		if !params.IsArray() {
			continue
		}
		for _, pref := range params.Items {
			pid, _ := sir.ParseRef(pref)
			pn := m.prog.GetNode(pid)
			pt, err := m.types.Lower(pn.TypeRef)
			if err != nil {
				return nil, err
			}
			slot := entryBlk.NewAlloca(pt)
			slot.SetName(fmt.Sprintf("bp%d.slot", pid))
			slots[pid] = slot
		}
	}
	fc.slots = slots

	for _, id := range order {
		bn := m.prog.GetNode(id)
		blk := fc.blocks[id]
		params := bn.Fields.Get("params")
		if params.IsArray() {
			for i, pref := range params.Items {
				pid, _ := sir.ParseRef(pref)
				if id == entryID {
					// The entry block's bparams bind to the function's
					// actual arguments directly — no predecessor branch
					// ever writes into them, so there is no slot to load.
					if i < len(fn.Params) {
						fc.vals[pid] = fn.Params[i]
					}
					continue
				}
				fc.vals[pid] = blk.NewLoad(slots[pid].ElemType, slots[pid])
			}
		}
		stmts := bn.Fields.Get("stmts")
		if err := fc.lowerStmts(blk, stmts.Items); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func intBits(prim string) int {
	switch prim {
	case "i1", "bool":
		return 1
	case "i8":
		return 8
	case "i16":
		return 16
	case "i32":
		return 32
	case "i64":
		return 64
	}
	return 0
}

// intType returns the llir/llvm integer type for a SIR primitive tag
// prefix like "i32" appearing in a dotted operation tag (e.g. "i32.add").
func intType(prim string) (*types.IntType, bool) {
	switch prim {
	case "i1", "bool":
		return types.I1, true
	case "i8":
		return types.I8, true
	case "i16":
		return types.I16, true
	case "i32":
		return types.I32, true
	case "i64":
		return types.I64, true
	}
	return nil, false
}

func floatType(prim string) (types.Type, bool) {
	switch prim {
	case "f32":
		return types.Float, true
	case "f64":
		return types.Double, true
	}
	return nil, false
}

func splitTag(tag string) (string, string, bool) {
	i := strings.IndexByte(tag, '.')
	if i < 0 {
		return "", "", false
	}
	return tag[:i], tag[i+1:], true
}

func parseIntLiteral(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sircc.nir.const.bad_literal: %v", err)
	}
	return n, nil
}

// internCStr returns (creating if needed) a private global array constant,
// named `.str.<n>` in creation order, holding s plus a trailing NUL, per
// SPEC_FULL.md's
// zero-NUL-byte STR-directive re-validation carried over from the ZASM
// path: cstr constants here are likewise rejected if s itself contains a
// NUL byte, since the single trailing NUL is the only terminator emitted.
func (m *Module) internCStr(s string) (*ir.Global, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("sircc.nir.cstr.embedded_nul: string literal contains an embedded NUL byte")
	}
	if g, ok := m.strs[s]; ok {
		return g, nil
	}
	data := append([]byte(s), 0)
	bytes := make([]constant.Constant, len(data))
	for i, b := range data {
		bytes[i] = constant.NewInt(types.I8, int64(b))
	}
	arrTyp := types.NewArray(uint64(len(data)), types.I8)
	g := m.M.NewGlobalDef(fmt.Sprintf(".str.%d", len(m.strs)), constant.NewArray(arrTyp, bytes...))
	g.Linkage = ir.LinkagePrivate
	g.Immutable = true
	m.strs[s] = g
	return g, nil
}
