// Package validate implements the sircc CFG/feature validator (spec
// component E). Ported directly from compiler_validate.c: validate_program,
// block_param_count, validate_block_params, validate_branch_args,
// validate_terminator, validate_cfg_fn — same control flow, same dotted
// error codes via internal/diag instead of errf(), same membership-bitmap
// approach for entry-in-blocks checks (here a map[int64]bool instead of a
// calloc'd byte array, since node ids are not guaranteed dense in Go).
package validate

import (
	"strings"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// Validator runs the CFG/feature well-formedness checks of spec.md §4.E
// against one program, reporting failures on prog.Bus.
type Validator struct {
	prog *sir.Program
}

func New(prog *sir.Program) *Validator {
	return &Validator{prog: prog}
}

// Run validates every fn node in CFG form and every feature-gated
// construct. Mirrors validate_program's top-level loop. Returns true iff no
// diagnostics were recorded.
func (val *Validator) Run() bool {
	ok := true
	for _, id := range val.prog.NodeOrder {
		n := val.prog.Nodes[id]
		if n.Tag != "fn" || n.Fields == nil {
			continue
		}
		blocks := n.Fields.Get("blocks")
		entry := n.Fields.Get("entry")
		if blocks != nil || entry != nil {
			if !val.validateCFGFn(n) {
				ok = false
			}
		}
	}
	if !val.validateFeatureGates() {
		ok = false
	}
	return ok
}

func (val *Validator) blockParamCount(blockID int64) (int, bool) {
	b := val.prog.GetNode(blockID)
	if b == nil || b.Tag != "block" || b.Fields == nil {
		return 0, true
	}
	params := b.Fields.Get("params")
	if params == nil {
		return 0, true
	}
	if !params.IsArray() {
		return 0, false
	}
	return len(params.Items), true
}

func (val *Validator) validateBlockParams(blockID int64) bool {
	b := val.prog.GetNode(blockID)
	if b == nil || b.Tag != "block" {
		return val.prog.Bus.Errorf("sircc.cfg.block.ref.bad", "block ref %d is not a block node", blockID)
	}
	var params *sirjson.Value
	if b.Fields != nil {
		params = b.Fields.Get("params")
	}
	if params == nil {
		return true
	}
	if !params.IsArray() {
		return val.prog.Bus.Errorf("sircc.cfg.block.params.not_array", "block %d params must be an array", blockID)
	}
	for i, item := range params.Items {
		pid, ok := sir.ParseRef(item)
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.block.params.bad_ref", "block %d params[%d] must be node refs", blockID, i)
		}
		pn := val.prog.GetNode(pid)
		if pn == nil || pn.Tag != "bparam" {
			return val.prog.Bus.Errorf("sircc.cfg.block.params.not_bparam", "block %d params[%d] must reference bparam nodes", blockID, i)
		}
		if pn.TypeRef == 0 {
			return val.prog.Bus.Errorf("sircc.cfg.bparam.type_ref.missing", "bparam node %d missing type_ref", pid)
		}
	}
	return true
}

func (val *Validator) validateBranchArgs(toBlockID int64, args *sirjson.Value) bool {
	pc, okShape := val.blockParamCount(toBlockID)
	if !okShape {
		return val.prog.Bus.Errorf("sircc.cfg.block.params.not_array", "block %d params must be an array", toBlockID)
	}
	ac := 0
	if args != nil {
		if !args.IsArray() {
			return val.prog.Bus.Errorf("sircc.cfg.branch.args.not_array", "branch args must be an array")
		}
		ac = len(args.Items)
	}
	if pc != ac {
		return val.prog.Bus.Errorf("sircc.cfg.branch.arity", "block %d param/arg count mismatch (params=%d, args=%d)", toBlockID, pc, ac)
	}
	if args == nil {
		return true
	}
	for i, a := range args.Items {
		aid, ok := sir.ParseRef(a)
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.branch.args.bad_ref", "branch args[%d] must be node refs", i)
		}
		if val.prog.GetNode(aid) == nil {
			return val.prog.Bus.Errorf("sircc.cfg.branch.args.unresolved", "branch args[%d] references unknown node %d", i, aid)
		}
	}
	return true
}

func (val *Validator) validateTerminator(termID int64) bool {
	term := val.prog.GetNode(termID)
	if term == nil {
		return val.prog.Bus.Errorf("sircc.cfg.term.unresolved", "block terminator references unknown node %d", termID)
	}
	if !strings.HasPrefix(term.Tag, "term.") && term.Tag != "return" {
		return val.prog.Bus.Errorf("sircc.cfg.block.term.missing", "block must end with a terminator (got %q)", term.Tag)
	}

	switch term.Tag {
	case "term.br":
		if term.Fields == nil {
			return val.prog.Bus.Errorf("sircc.cfg.term.fields.missing", "term.br missing fields")
		}
		toID, ok := sir.ParseRef(term.Fields.Get("to"))
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.term.to.missing", "term.br missing to ref")
		}
		if !val.validateBlockParams(toID) {
			return false
		}
		return val.validateBranchArgs(toID, term.Fields.Get("args"))

	case "term.cbr", "term.condbr":
		if term.Fields == nil {
			return val.prog.Bus.Errorf("sircc.cfg.term.fields.missing", "%s missing fields", term.Tag)
		}
		condID, ok := sir.ParseRef(term.Fields.Get("cond"))
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.term.cond.missing", "%s missing cond ref", term.Tag)
		}
		if val.prog.GetNode(condID) == nil {
			return val.prog.Bus.Errorf("sircc.cfg.term.cond.unresolved", "%s cond references unknown node %d", term.Tag, condID)
		}
		thenB := term.Fields.Get("then")
		elseB := term.Fields.Get("else")
		if !thenB.IsObject() || !elseB.IsObject() {
			return val.prog.Bus.Errorf("sircc.cfg.term.branches.missing", "%s requires then/else objects", term.Tag)
		}
		thenID, ok1 := sir.ParseRef(thenB.Get("to"))
		elseID, ok2 := sir.ParseRef(elseB.Get("to"))
		if !ok1 || !ok2 {
			return val.prog.Bus.Errorf("sircc.cfg.term.branches.to.missing", "%s then/else missing to ref", term.Tag)
		}
		if !val.validateBlockParams(thenID) || !val.validateBlockParams(elseID) {
			return false
		}
		if !val.validateBranchArgs(thenID, thenB.Get("args")) {
			return false
		}
		return val.validateBranchArgs(elseID, elseB.Get("args"))

	case "term.switch":
		if term.Fields == nil {
			return val.prog.Bus.Errorf("sircc.cfg.term.fields.missing", "term.switch missing fields")
		}
		scrutID, ok := sir.ParseRef(term.Fields.Get("scrut"))
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.term.scrut.missing", "term.switch missing scrut ref")
		}
		if val.prog.GetNode(scrutID) == nil {
			return val.prog.Bus.Errorf("sircc.cfg.term.scrut.unresolved", "term.switch scrut references unknown node %d", scrutID)
		}
		def := term.Fields.Get("default")
		if !def.IsObject() {
			return val.prog.Bus.Errorf("sircc.cfg.term.switch.default.missing", "term.switch missing default branch")
		}
		defID, ok := sir.ParseRef(def.Get("to"))
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.term.switch.default.to.missing", "term.switch default missing to ref")
		}
		if !val.validateBlockParams(defID) {
			return false
		}
		if !val.validateBranchArgs(defID, def.Get("args")) {
			return false
		}
		cases := term.Fields.Get("cases")
		if !cases.IsArray() {
			return val.prog.Bus.Errorf("sircc.cfg.term.switch.cases.missing", "term.switch missing cases array")
		}
		for i, c := range cases.Items {
			if !c.IsObject() {
				return val.prog.Bus.Errorf("sircc.cfg.term.switch.case.bad", "term.switch case[%d] must be object", i)
			}
			toID, ok := sir.ParseRef(c.Get("to"))
			if !ok {
				return val.prog.Bus.Errorf("sircc.cfg.term.switch.case.to.missing", "term.switch case[%d] missing to ref", i)
			}
			if !val.validateBlockParams(toID) {
				return false
			}
			if !val.validateBranchArgs(toID, c.Get("args")) {
				return false
			}
			litID, ok := sir.ParseRef(c.Get("lit"))
			if !ok {
				return val.prog.Bus.Errorf("sircc.cfg.term.switch.case.lit.missing", "term.switch case[%d] missing lit ref", i)
			}
			lit := val.prog.GetNode(litID)
			if lit == nil || !strings.HasPrefix(lit.Tag, "const.") {
				return val.prog.Bus.Errorf("sircc.cfg.term.switch.case.lit.bad", "term.switch case[%d] lit must be const.* node", i)
			}
		}
		return true
	}
	return true
}

func (val *Validator) validateCFGFn(fn *sir.Node) bool {
	blocks := fn.Fields.Get("blocks")
	entry := fn.Fields.Get("entry")
	if !blocks.IsArray() || entry == nil {
		return val.prog.Bus.Errorf("sircc.cfg.fn.shape", "fn %d CFG form requires fields.blocks (array) and fields.entry (ref)", fn.ID)
	}
	entryID, ok := sir.ParseRef(entry)
	if !ok {
		return val.prog.Bus.Errorf("sircc.cfg.fn.entry.bad_ref", "fn %d entry must be a block ref", fn.ID)
	}

	inFn := make(map[int64]bool, len(blocks.Items))
	for i, item := range blocks.Items {
		bid, ok := sir.ParseRef(item)
		if !ok {
			return val.prog.Bus.Errorf("sircc.cfg.fn.blocks.bad_ref", "fn %d blocks[%d] must be block refs", fn.ID, i)
		}
		inFn[bid] = true
		if !val.validateBlockParams(bid) {
			return false
		}
	}
	if !inFn[entryID] {
		return val.prog.Bus.Errorf("sircc.cfg.fn.entry.not_in_blocks", "fn %d entry block %d not in blocks list", fn.ID, entryID)
	}

	for i, item := range blocks.Items {
		bid, _ := sir.ParseRef(item)
		b := val.prog.GetNode(bid)
		if b == nil || b.Tag != "block" {
			return val.prog.Bus.Errorf("sircc.cfg.fn.blocks.not_block", "fn %d blocks[%d] references non-block %d", fn.ID, i, bid)
		}
		var stmts *sirjson.Value
		if b.Fields != nil {
			stmts = b.Fields.Get("stmts")
		}
		if stmts == nil || !stmts.IsArray() || len(stmts.Items) == 0 {
			return val.prog.Bus.Errorf("sircc.cfg.block.stmts.empty", "block %d must have non-empty stmts array", bid)
		}
		for si, s := range stmts.Items {
			sid, ok := sir.ParseRef(s)
			if !ok {
				return val.prog.Bus.Errorf("sircc.cfg.block.stmts.bad_ref", "block %d stmts[%d] must be node refs", bid, si)
			}
			sn := val.prog.GetNode(sid)
			if sn == nil {
				return val.prog.Bus.Errorf("sircc.cfg.block.stmts.unresolved", "block %d stmts[%d] references unknown node %d", bid, si, sid)
			}
			isTerm := strings.HasPrefix(sn.Tag, "term.") || sn.Tag == "return"
			last := si+1 == len(stmts.Items)
			if isTerm && !last {
				return val.prog.Bus.Errorf("sircc.cfg.block.term.early", "block %d has terminator before end (stmt %d)", bid, si)
			}
			if last {
				if !isTerm {
					return val.prog.Bus.Errorf("sircc.cfg.block.term.missing", "block %d must end with a terminator (got %q)", bid, sn.Tag)
				}
				if !val.validateTerminator(sid) {
					return false
				}
			}
		}
	}
	return true
}
