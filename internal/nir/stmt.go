package nir

import (
	"fmt"

	"github.com/llir/llvm/ir"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// lowerStmts lowers a block's statement list in order, writing each
// statement's node id into fc.vals as it's produced. The final statement
// is expected to be a terminator (validate has already enforced this), so
// it's dispatched to lowerTerminator instead of lowerNode.
func (fc *funcCtx) lowerStmts(blk *ir.Block, stmtRefs []*sirjson.Value) error {
	fc.cur = blk
	for i, ref := range stmtRefs {
		id, ok := sir.ParseRef(ref)
		if !ok {
			return fmt.Errorf("sircc.nir.stmt.bad_ref: statement %d is not a node ref", i)
		}
		n := fc.m.prog.GetNode(id)
		if n == nil {
			return fmt.Errorf("sircc.nir.stmt.unknown: statement refers to unknown node %d", id)
		}
		if i == len(stmtRefs)-1 && isTerminatorTag(n.Tag) {
			return fc.lowerTerminator(fc.cur, n)
		}
		v, err := fc.lowerNode(fc.cur, n)
		if err != nil {
			return err
		}
		if v != nil {
			fc.vals[id] = v
		}
	}
	return nil
}

func isTerminatorTag(tag string) bool {
	switch tag {
	case "term.br", "term.cbr", "term.condbr", "term.switch", "return", "trap_if":
		return true
	}
	return false
}

// lowerTerminator lowers a block's final statement: br writes any branch
// args into the target's bparam slots then jumps; cbr/condbr (treated as
// one contract per spec.md §9's Open Question) branch on an i1 condition;
// switch dispatches on an integer scrutinee against const.* case labels
// (spec.md §8 scenario 5); return yields the function's result.
func (fc *funcCtx) lowerTerminator(blk *ir.Block, n *sir.Node) error {
	switch n.Tag {
	case "return":
		vref := n.Fields.Get("value")
		if vref == nil {
			blk.NewRet(nil)
			return nil
		}
		v, err := fc.valueOf(vref)
		if err != nil {
			return err
		}
		blk.NewRet(v)
		return nil

	case "term.br":
		return fc.lowerBr(blk, n)

	case "term.cbr", "term.condbr":
		return fc.lowerCondBr(blk, n)

	case "term.switch":
		return fc.lowerSwitch(blk, n)

	case "trap_if":
		return fc.lowerTrapIf(blk, n)

	default:
		return fmt.Errorf("sircc.nir.term.unhandled: terminator tag %q not supported", n.Tag)
	}
}

func (fc *funcCtx) lowerBr(blk *ir.Block, n *sir.Node) error {
	toID, ok := sir.ParseRef(n.Fields.Get("to"))
	if !ok {
		return fmt.Errorf("sircc.nir.term.br.bad_shape: term.br node %d missing 'to'", n.ID)
	}
	target := fc.blocks[toID]
	if target == nil {
		return fmt.Errorf("sircc.cfg.branch.unknown_target: term.br node %d targets unknown block %d", n.ID, toID)
	}
	if err := fc.writeBranchArgs(blk, toID, n.Fields.Get("args")); err != nil {
		return err
	}
	blk.NewBr(target)
	return nil
}

func (fc *funcCtx) lowerCondBr(blk *ir.Block, n *sir.Node) error {
	condRef := n.Fields.Get("cond")
	cond, err := fc.valueOf(condRef)
	if err != nil {
		return err
	}
	thenB, elseB := n.Fields.Get("then"), n.Fields.Get("else")
	thenID, ok1 := sir.ParseRef(thenB.Get("to"))
	elseID, ok2 := sir.ParseRef(elseB.Get("to"))
	if !ok1 || !ok2 {
		return fmt.Errorf("sircc.nir.term.cbr.bad_shape: node %d missing then/else target", n.ID)
	}
	thenBlk, elseBlk := fc.blocks[thenID], fc.blocks[elseID]
	if thenBlk == nil || elseBlk == nil {
		return fmt.Errorf("sircc.cfg.branch.unknown_target: node %d targets an unknown block", n.ID)
	}
	if err := fc.writeBranchArgs(blk, thenID, thenB.Get("args")); err != nil {
		return err
	}
	if err := fc.writeBranchArgs(blk, elseID, elseB.Get("args")); err != nil {
		return err
	}
	blk.NewCondBr(cond, thenBlk, elseBlk)
	return nil
}

// lowerSwitch grounds spec.md §8 scenario 5 against the term.switch shape
// internal/validate enforces: {scrut, default:{to,args?}, cases:[{to,lit,
// args?}]}. lit is a ref to a const.* node, not an inline literal, and
// both the default branch and every case branch write their own branch
// args into the target's bparam slots before the dispatch, same as
// lowerBr/lowerCondBr.
func (fc *funcCtx) lowerSwitch(blk *ir.Block, n *sir.Node) error {
	scrut, err := fc.valueOf(n.Fields.Get("scrut"))
	if err != nil {
		return err
	}
	def := n.Fields.Get("default")
	defID, ok := sir.ParseRef(def.Get("to"))
	if !ok {
		return fmt.Errorf("sircc.nir.term.switch.no_default: term.switch node %d has no default target", n.ID)
	}
	defBlk := fc.blocks[defID]
	if defBlk == nil {
		return fmt.Errorf("sircc.cfg.branch.unknown_target: term.switch node %d default targets unknown block", n.ID)
	}
	if err := fc.writeBranchArgs(blk, defID, def.Get("args")); err != nil {
		return err
	}
	cases := n.Fields.Get("cases")
	var irCases []*ir.Case
	if cases.IsArray() {
		for _, c := range cases.Items {
			toID, ok2 := sir.ParseRef(c.Get("to"))
			if !ok2 {
				return fmt.Errorf("sircc.nir.term.switch.bad_case: case in node %d missing 'to'", n.ID)
			}
			toBlk := fc.blocks[toID]
			if toBlk == nil {
				return fmt.Errorf("sircc.cfg.branch.unknown_target: term.switch node %d case targets unknown block", n.ID)
			}
			if err := fc.writeBranchArgs(blk, toID, c.Get("args")); err != nil {
				return err
			}
			cc, err := fc.constInt(c.Get("lit"))
			if err != nil {
				return err
			}
			irCases = append(irCases, ir.NewCase(cc, toBlk))
		}
	}
	blk.NewSwitch(scrut, defBlk, irCases...)
	return nil
}

func (fc *funcCtx) lowerTrapIf(blk *ir.Block, n *sir.Node) error {
	cond, err := fc.valueOf(n.Fields.Get("cond"))
	if err != nil {
		return err
	}
	trapBlk := fc.fn.NewBlock(fmt.Sprintf("trap%d", n.ID))
	fc.emitTrapIntrinsic(trapBlk)
	trapBlk.NewUnreachable()
	contBlk := fc.fn.NewBlock(fmt.Sprintf("cont%d", n.ID))
	blk.NewCondBr(cond, trapBlk, contBlk)
	contID, ok := sir.ParseRef(n.Fields.Get("cont"))
	if ok {
		fc.blocks[contID] = contBlk
	}
	return nil
}

// writeBranchArgs stores each branch argument into its target bparam's
// slot before the jump, realizing SIR block parameters without needing
// llir/llvm-native phi nodes (spec.md §3, "block-parameters bparam").
func (fc *funcCtx) writeBranchArgs(blk *ir.Block, targetID int64, args *sirjson.Value) error {
	if !args.IsArray() {
		return nil
	}
	target := fc.m.prog.GetNode(targetID)
	params := target.Fields.Get("params")
	if !params.IsArray() || len(params.Items) != len(args.Items) {
		return fmt.Errorf("sircc.cfg.branch.arity: branch to block %d supplies %d args for %d params", targetID, len(args.Items), len(params.Items))
	}
	for i, pref := range params.Items {
		pid, _ := sir.ParseRef(pref)
		slot := fc.slots[pid]
		if slot == nil {
			return fmt.Errorf("sircc.nir.bparam.no_slot: block parameter %d has no storage slot", pid)
		}
		v, err := fc.valueOf(args.Items[i])
		if err != nil {
			return err
		}
		blk.NewStore(v, slot)
	}
	return nil
}
