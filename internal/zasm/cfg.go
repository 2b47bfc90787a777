package zasm

import (
	"fmt"
	"strings"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// cfgFunc carries the per-function state the CFG ZASM backend threads
// through every emit call: the register cache (compiler_zasm_regcache.c),
// one stack slot per bparam (ensure_bparam_slot), one stack slot per
// let-bound computed value, and one "pure" substitution per let that
// aliases a trivial value with no code emitted (emit_bind_op).
type cfgFunc struct {
	m       *Module
	entryID int64
	rc      regCache

	bpSlot   map[int64]Op
	tmpSlot  map[int64]Op
	tmpWidth map[int64]int64
	pureVal  map[int64]Op
}

// Emit lowers the program's zir_main function to the zasm-v1.1 record
// stream, dispatching on its shape: CFG form (fields.entry + fields.blocks)
// goes through EmitCFG, legacy single-block form (fields.body) through
// EmitLegacy.
func Emit(p *sir.Program) (*Module, error) {
	zirMain := findZirMain(p)
	if zirMain == nil {
		return nil, fmt.Errorf("sircc.zasm.no_zir_main: --emit-zasm currently requires a function named 'zir_main'")
	}
	if _, ok := sir.ParseRef(zirMain.Fields.Get("entry")); ok {
		return EmitCFG(p)
	}
	return EmitLegacy(p)
}

// EmitCFG lowers a program's CFG-form zir_main function (fields.entry +
// fields.blocks) to the zasm-v1.1 record stream. Mirrors EmitLegacy's
// structure (meta, EXTERNs, PUBLIC) but walks every block instead of a
// single linear body, emitting a "zir_main"/"b_<id>" label per block
// (label_for_block), one bp_<id> slot per block parameter
// (emit_cfg_branch_args), and the full statement/terminator lowering of
// compiler_zasm_backend_stmt.c and compiler_zasm_backend_cfg.c.
func EmitCFG(p *sir.Program) (*Module, error) {
	zirMain := findZirMain(p)
	if zirMain == nil {
		return nil, fmt.Errorf("sircc.zasm.cfg.no_zir_main: --emit-zasm currently requires a function named 'zir_main'")
	}
	entryID, ok := sir.ParseRef(zirMain.Fields.Get("entry"))
	if !ok {
		return nil, fmt.Errorf("sircc.zasm.cfg.no_entry: fn zir_main has no CFG entry")
	}
	blocksArr := zirMain.Fields.Get("blocks")
	if !blocksArr.IsArray() {
		return nil, fmt.Errorf("sircc.zasm.cfg.no_blocks: fn zir_main has an entry but no blocks array")
	}
	order := make([]int64, 0, len(blocksArr.Items))
	for _, item := range blocksArr.Items {
		id, ok := sir.ParseRef(item)
		if !ok {
			return nil, fmt.Errorf("sircc.zasm.cfg.bad_block_ref: fn zir_main has a non-ref block entry")
		}
		order = append(order, id)
	}

	m := NewModule(p)
	if err := m.collectCstrs(); err != nil {
		return nil, err
	}
	m.collectAllocas()
	m.collectDeclFns()

	cf := &cfgFunc{
		m:        m,
		entryID:  entryID,
		bpSlot:   map[int64]Op{},
		tmpSlot:  map[int64]Op{},
		tmpWidth: map[int64]int64{},
		pureVal:  map[int64]Op{},
	}

	for _, id := range order {
		bn := m.prog.GetNode(id)
		if bn == nil || bn.Tag != "block" {
			return nil, fmt.Errorf("sircc.zasm.cfg.unknown_block: block %d referenced by fn zir_main is not a block node", id)
		}
		params := bn.Fields.Get("params")
		if !params.IsArray() {
			continue
		}
		for _, pref := range params.Items {
			pid, ok := sir.ParseRef(pref)
			if !ok {
				return nil, fmt.Errorf("sircc.zasm.cfg.bad_bparam_ref: block %d has a non-ref param", id)
			}
			pn := m.prog.GetNode(pid)
			if pn == nil {
				return nil, fmt.Errorf("sircc.zasm.cfg.unknown_bparam: bparam %d does not exist", pid)
			}
			width, ok := widthForTypeRef(m.prog, pn.TypeRef)
			if !ok {
				return nil, fmt.Errorf("sircc.zasm.cfg.bparam_width: bparam %d has an unsupported or missing type", pid)
			}
			sym := fmt.Sprintf("bp_%d", pid)
			m.allocas = append(m.allocas, Alloca{NodeID: pid, Sym: sym, SizeBytes: width})
			cf.bpSlot[pid] = Sym(sym)
		}
	}

	metaLine := m.nextLine()
	m.writeHeader("meta")
	m.out.WriteString(`,"producer":"sircc"`)
	if p.Meta.Unit != "" {
		m.out.WriteString(`,"unit":`)
		writeJSONStr(&m.out, p.Meta.Unit)
	}
	m.writeLoc(metaLine)
	m.out.WriteString("}\n")

	for _, decl := range m.decls {
		line := m.dir("EXTERN", "", Str("c"), Str(decl), Sym(decl))
		m.record(line, "dir", zirMain.ID, "decl.fn")
	}

	pubLine := m.dir("PUBLIC", "", Sym("zir_main"))
	m.record(pubLine, "dir", zirMain.ID, "fn")
	m.out.WriteString("\n")

	for _, id := range order {
		bn := m.prog.GetNode(id)
		label := cf.labelForBlock(id)
		labLine := m.label(label)
		m.record(labLine, "label", id, "block")
		cf.rc.clearAll()

		// Entry bparams have no predecessor branch to write their slot
		// (zir_main is the program's sole entry point, never itself a
		// branch target), so their slots are left as whatever the runtime
		// loader initializes fresh stack memory to.
		stmts := bn.Fields.Get("stmts")
		if !stmts.IsArray() || len(stmts.Items) == 0 {
			return nil, fmt.Errorf("sircc.zasm.cfg.empty_block: block %d has no stmts", id)
		}
		for i, item := range stmts.Items {
			sid, err := refID(item)
			if err != nil {
				return nil, fmt.Errorf("sircc.zasm.cfg.bad_stmt: block %d stmts[%d] must be a node ref", id, i)
			}
			s := m.prog.GetNode(sid)
			if s == nil {
				return nil, fmt.Errorf("sircc.zasm.cfg.unknown_stmt: unknown stmt node %d", sid)
			}
			last := i == len(stmts.Items)-1
			if isTermTag(s.Tag) {
				if !last {
					return nil, fmt.Errorf("sircc.zasm.cfg.term_early: block %d terminator (stmt %d) is not the block's last statement", id, sid)
				}
				if err := cf.emitTerminator(s); err != nil {
					return nil, err
				}
				continue
			}
			if last {
				return nil, fmt.Errorf("sircc.zasm.cfg.block_missing_term: block %d must end with a terminator (got %q)", id, s.Tag)
			}
			if err := cf.emitNonTermStmt(s); err != nil {
				return nil, err
			}
		}
		m.out.WriteString("\n")
	}

	for _, s := range m.strs {
		line := m.dir("STR", fmt.Sprintf(`,"name":%s`, jsonStr(s.Sym)), Str(s.Value))
		m.record(line, "dir", s.NodeID, "cstr")
	}
	if len(m.strs) > 0 {
		m.out.WriteString("\n")
	}
	for _, a := range m.allocas {
		line := m.dir("RESB", fmt.Sprintf(`,"name":%s`, jsonStr(a.Sym)), Num(a.SizeBytes))
		m.record(line, "dir", a.NodeID, "alloca")
	}

	return m, nil
}

func isTermTag(tag string) bool {
	switch tag {
	case "term.br", "term.cbr", "term.condbr", "term.switch", "term.ret", "return":
		return true
	}
	return false
}

// labelForBlock mirrors label_for_block: the entry block keeps the
// function's public label, every other block gets a b_<id> label.
func (cf *cfgFunc) labelForBlock(id int64) string {
	if id == cf.entryID {
		return "zir_main"
	}
	return fmt.Sprintf("b_%d", id)
}

// labelForCbrEdge mirrors label_for_cbr_edge: the then/else arms of a
// conditional branch each get their own local label so branch-arg stores
// can run before the unconditional jump to the real target block.
func labelForCbrEdge(termID int64, which string) string {
	return fmt.Sprintf("cbr_%s_%d", which, termID)
}

func widthForTypeRef(p *sir.Program, typeRef int64) (int64, bool) {
	t := p.GetType(typeRef)
	if t == nil {
		return 0, false
	}
	switch t.Kind {
	case sir.KindPtr:
		return 8, true
	case sir.KindPrim:
		switch t.Prim {
		case sir.PrimI1, sir.PrimBool, sir.PrimI8:
			return 1, true
		case sir.PrimI16:
			return 2, true
		case sir.PrimI32, sir.PrimF32:
			return 4, true
		case sir.PrimI64, sir.PrimF64:
			return 8, true
		}
	}
	return 0, false
}

func regForWidth(width int64) string {
	if width == 1 {
		return "A"
	}
	return "HL"
}

func storeMnemonicForWidth(width int64) string {
	switch width {
	case 1:
		return "ST8"
	case 2:
		return "ST16"
	case 4:
		return "ST32"
	default:
		return "ST64"
	}
}

func splitFamilyOp(tag string) (string, string, bool) {
	i := strings.IndexByte(tag, '.')
	if i < 0 {
		return "", "", false
	}
	return tag[:i], tag[i+1:], true
}

// mnemonicForBinop mirrors zasm_mnemonic_for_binop: the 32-bit mnemonic
// set for i32.* tags, the same names 64-suffixed for i64.*.
func mnemonicForBinop(tag string) (string, bool) {
	fam, op, ok := splitFamilyOp(tag)
	if !ok {
		return "", false
	}
	var suffix string
	switch fam {
	case "i32":
	case "i64":
		suffix = "64"
	default:
		return "", false
	}
	switch op {
	case "add":
		return "ADD" + suffix, true
	case "sub":
		return "SUB" + suffix, true
	case "mul":
		return "MUL" + suffix, true
	case "div.s":
		return "DIVS" + suffix, true
	case "div.u":
		return "DIVU" + suffix, true
	case "rem.s":
		return "REMS" + suffix, true
	case "rem.u":
		return "REMU" + suffix, true
	case "and":
		return "AND" + suffix, true
	case "or":
		return "OR" + suffix, true
	case "xor":
		return "XOR" + suffix, true
	case "shl":
		return "SLA" + suffix, true
	case "shr.s":
		return "SRA" + suffix, true
	case "shr.u":
		return "SRL" + suffix, true
	case "rotl":
		return "ROL" + suffix, true
	case "rotr":
		return "ROR" + suffix, true
	}
	return "", false
}

// mnemonicForUnop mirrors zasm_mnemonic_for_unop.
func mnemonicForUnop(tag string) (string, bool) {
	fam, op, ok := splitFamilyOp(tag)
	if !ok {
		return "", false
	}
	var suffix string
	switch fam {
	case "i32":
	case "i64":
		suffix = "64"
	default:
		return "", false
	}
	switch op {
	case "clz":
		return "CLZ" + suffix, true
	case "ctz":
		return "CTZ" + suffix, true
	case "popc":
		return "POPC" + suffix, true
	}
	return "", false
}

// cmpSetMnemonicForTag mirrors zasm_cmp_set_mnemonic_for_node_tag.
func cmpSetMnemonicForTag(tag string) (string, bool) {
	fam, op, ok := splitFamilyOp(tag)
	if !ok {
		return "", false
	}
	var suffix string
	switch fam {
	case "i32":
	case "i64":
		suffix = "64"
	default:
		return "", false
	}
	if !strings.HasPrefix(op, "cmp.") {
		return "", false
	}
	switch op[len("cmp."):] {
	case "eq":
		return "EQ" + suffix, true
	case "ne":
		return "NE" + suffix, true
	case "slt":
		return "LTS" + suffix, true
	case "sle":
		return "LES" + suffix, true
	case "sgt":
		return "GTS" + suffix, true
	case "sge":
		return "GES" + suffix, true
	case "ult":
		return "LTU" + suffix, true
	case "ule":
		return "LEU" + suffix, true
	case "ugt":
		return "GTU" + suffix, true
	case "uge":
		return "GEU" + suffix, true
	}
	return "", false
}

type loadSpec struct {
	width int64
	mnem  string
	reg   string
}

// loadSpecForTag mirrors emit_zir_nonterm_stmt's width/mnemonic/register
// triples for load.T: (1,LD8U,A), (2,LD16U,HL), (4,LD32U64,HL),
// (8,LD64,HL) — i64 and ptr share the 8-byte form.
func loadSpecForTag(tag string) (loadSpec, bool) {
	switch tag {
	case "load.i8":
		return loadSpec{1, "LD8U", "A"}, true
	case "load.i16":
		return loadSpec{2, "LD16U", "HL"}, true
	case "load.i32", "load.f32":
		return loadSpec{4, "LD32U64", "HL"}, true
	case "load.i64", "load.f64", "load.ptr":
		return loadSpec{8, "LD64", "HL"}, true
	}
	return loadSpec{}, false
}

// slotFor reports the stack slot and width backing nodeID, if it is a
// bparam or a let that bound a computed (non-pure) value.
func (cf *cfgFunc) slotFor(nodeID int64) (Op, int64, bool) {
	if op, ok := cf.bpSlot[nodeID]; ok {
		n := cf.m.prog.GetNode(nodeID)
		width, _ := widthForTypeRef(cf.m.prog, n.TypeRef)
		return op, width, true
	}
	if op, ok := cf.tmpSlot[nodeID]; ok {
		return op, cf.tmpWidth[nodeID], true
	}
	return Op{}, 0, false
}

// valueOp resolves a node id to a directly-usable Op (Num/Sym), checking
// a pure-binding let alias before falling back to lowerValueToOp's
// trivial-node handling. Mirrors emit_bind_op's "pure-ish" substitution.
func (cf *cfgFunc) valueOp(nodeID int64) (Op, error) {
	if op, ok := cf.pureVal[nodeID]; ok {
		return op, nil
	}
	return cf.m.lowerValueToOp(nodeID)
}

func (cf *cfgFunc) addTempSlot(nodeID int64, width int64) Op {
	sym := fmt.Sprintf("t_%d", nodeID)
	cf.m.allocas = append(cf.m.allocas, Alloca{NodeID: nodeID, Sym: sym, SizeBytes: width})
	op := Sym(sym)
	cf.tmpSlot[nodeID] = op
	cf.tmpWidth[nodeID] = width
	return op
}

// loadOperandToReg puts nodeID's value into reg: a no-op if the register
// cache already mirrors that slot, a slot load if nodeID is a bparam or
// computed let, or a plain immediate/symbol load otherwise. Mirrors the
// slot-load-or-immediate half of emit_load_slot_to_reg/emit_ld_reg_or_imm.
func (cf *cfgFunc) loadOperandToReg(nodeID int64, reg string) error {
	n := cf.m.prog.GetNode(nodeID)
	if n == nil {
		return fmt.Errorf("sircc.zasm.cfg.ref.unknown: unknown node %d", nodeID)
	}
	if slot, width, ok := cf.slotFor(nodeID); ok {
		if cf.rc.matchesSlot(reg, slot.S, width) {
			return nil
		}
		l := cf.m.ld(reg, Mem(slot, 0, width))
		cf.m.record(l, "instr", nodeID, n.Tag)
		cf.rc.invalidateReg(reg)
		cf.rc.setSlot(reg, slot.S, width)
		return nil
	}
	op, err := cf.valueOp(nodeID)
	if err != nil {
		return err
	}
	l := cf.m.ld(reg, op)
	cf.m.record(l, "instr", nodeID, n.Tag)
	cf.rc.invalidateReg(reg)
	return nil
}

// emitBinopIntoHL mirrors emit_binop_into_hl: load a into HL, load b into
// DE unless a and b are the same slot (HL is then reused instead of
// reloading an identical operand), emit the mnemonic, invalidate HL.
func (cf *cfgFunc) emitBinopIntoHL(n *sir.Node, aID, bID int64) error {
	if err := cf.loadOperandToReg(aID, "HL"); err != nil {
		return err
	}
	aSlot, aWidth, aIsSlot := cf.slotFor(aID)
	bSlot, bWidth, bIsSlot := cf.slotFor(bID)
	sameSlot := aIsSlot && bIsSlot && aSlot.S == bSlot.S && aWidth == bWidth
	if !sameSlot {
		if err := cf.loadOperandToReg(bID, "DE"); err != nil {
			return err
		}
	}
	mnem, ok := mnemonicForBinop(n.Tag)
	if !ok {
		return fmt.Errorf("sircc.zasm.cfg.binop.unsupported: unsupported binop tag %q", n.Tag)
	}
	l := cf.m.instr(mnem, Reg("HL"), Reg("DE"))
	cf.m.record(l, "instr", n.ID, n.Tag)
	cf.rc.invalidateReg("HL")
	return nil
}

func (cf *cfgFunc) emitCmpSetHL(n *sir.Node, aID, bID int64) error {
	if err := cf.loadOperandToReg(aID, "HL"); err != nil {
		return err
	}
	if err := cf.loadOperandToReg(bID, "DE"); err != nil {
		return err
	}
	mnem, ok := cmpSetMnemonicForTag(n.Tag)
	if !ok {
		return fmt.Errorf("sircc.zasm.cfg.cmp.unsupported: unsupported cmp tag %q", n.Tag)
	}
	l := cf.m.instr(mnem, Reg("HL"), Reg("HL"), Reg("DE"))
	cf.m.record(l, "instr", n.ID, n.Tag)
	cf.rc.invalidateReg("HL")
	return nil
}

func (cf *cfgFunc) emitUnopIntoHL(n *sir.Node, xID int64) error {
	if err := cf.loadOperandToReg(xID, "HL"); err != nil {
		return err
	}
	mnem, ok := mnemonicForUnop(n.Tag)
	if !ok {
		return fmt.Errorf("sircc.zasm.cfg.unop.unsupported: unsupported unop tag %q", n.Tag)
	}
	l := cf.m.instr(mnem, Reg("HL"))
	cf.m.record(l, "instr", n.ID, n.Tag)
	cf.rc.invalidateReg("HL")
	return nil
}

// emitNonTermStmt dispatches one non-terminator CFG statement. Mirrors
// emit_zir_nonterm_stmt's top-level switch.
func (cf *cfgFunc) emitNonTermStmt(s *sir.Node) error {
	switch {
	case s.Tag == "let":
		return cf.emitLet(s)
	case s.Tag == "mem.fill":
		cf.rc.clearAll()
		err := cf.m.emitMemFillStmt(s)
		cf.rc.clearAll()
		return err
	case s.Tag == "mem.copy":
		cf.rc.clearAll()
		err := cf.m.emitMemCopyStmt(s)
		cf.rc.clearAll()
		return err
	case len(s.Tag) > 6 && s.Tag[:6] == "store.":
		cf.rc.clearAll()
		err := cf.m.emitStoreStmt(s)
		cf.rc.clearAll()
		return err
	}
	return fmt.Errorf("sircc.zasm.cfg.unsupported_stmt: unsupported stmt tag %q", s.Tag)
}

// emitLet lowers a let-bound value. Mirrors emit_zir_nonterm_stmt's
// let-bound forms: call, load.T, binop, cmp, unop, and otherwise a
// pure-ish value substitution with no instructions emitted.
func (cf *cfgFunc) emitLet(s *sir.Node) error {
	m := cf.m
	name := s.Fields.Get("name").String()
	bind := name != "" && name != "_"

	vid, err := refID(s.Fields.Get("value"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.let.bad_shape: let node %d missing fields.value ref", s.ID)
	}
	vn := m.prog.GetNode(vid)
	if vn == nil {
		return fmt.Errorf("sircc.zasm.cfg.let.unknown_value: let node %d value references unknown node %d", s.ID, vid)
	}

	if vn.Tag == "call" || vn.Tag == "call.indirect" {
		if err := m.emitCallStmt(vn); err != nil {
			return err
		}
		cf.rc.clearAll()
		if bind {
			slot := cf.addTempSlot(s.ID, 8)
			l := m.instr("ST64", slot, Reg("HL"))
			m.record(l, "instr", s.ID, s.Tag)
		}
		return nil
	}

	if ls, ok := loadSpecForTag(vn.Tag); ok {
		addrID, err := refID(vn.Fields.Get("addr"))
		if err != nil {
			return fmt.Errorf("sircc.zasm.cfg.load.bad_shape: %s node %d requires fields.addr ref", vn.Tag, vn.ID)
		}
		if a, ok := vn.Fields.Get("align").Int64(); ok && a > 1 {
			return fmt.Errorf("sircc.zasm.cfg.load.align_trap: %s node %d has align %d > 1, which zasm cannot lower (alignment traps require a runtime check not modeled here)", vn.Tag, vn.ID, a)
		}
		base, err := m.lowerValueToOp(addrID)
		if err != nil || base.Kind != OpSym {
			return fmt.Errorf("sircc.zasm.cfg.load.bad_addr: %s addr must be an alloca symbol (node %d)", vn.Tag, addrID)
		}
		cf.rc.invalidateReg(ls.reg)
		l := m.instr(ls.mnem, Reg(ls.reg), Mem(base, 0, ls.width))
		m.record(l, "instr", s.ID, vn.Tag)
		if bind {
			slot := cf.addTempSlot(s.ID, ls.width)
			st := storeMnemonicForWidth(ls.width)
			l2 := m.instr(st, slot, Reg(ls.reg))
			m.record(l2, "instr", s.ID, s.Tag)
			cf.rc.setSlot(ls.reg, slot.S, ls.width)
		}
		return nil
	}

	if _, ok := mnemonicForBinop(vn.Tag); ok {
		if !bind {
			return fmt.Errorf("sircc.zasm.cfg.binop.discarded: %s node %d must be let-bound to a name, not '_'", vn.Tag, vn.ID)
		}
		args, err := refList(vn, "args")
		if err != nil || len(args) != 2 {
			return fmt.Errorf("sircc.zasm.cfg.binop.bad_shape: %s node %d requires args:[a,b]", vn.Tag, vn.ID)
		}
		if err := cf.emitBinopIntoHL(vn, args[0], args[1]); err != nil {
			return err
		}
		width := int64(4)
		if fam, _, _ := splitFamilyOp(vn.Tag); fam == "i64" {
			width = 8
		}
		slot := cf.addTempSlot(s.ID, width)
		l := m.instr(storeMnemonicForWidth(width), slot, Reg("HL"))
		m.record(l, "instr", s.ID, s.Tag)
		return nil
	}

	if _, ok := cmpSetMnemonicForTag(vn.Tag); ok {
		if !bind {
			return fmt.Errorf("sircc.zasm.cfg.cmp.discarded: %s node %d must be let-bound to a name, not '_'", vn.Tag, vn.ID)
		}
		args, err := refList(vn, "args")
		if err != nil || len(args) != 2 {
			return fmt.Errorf("sircc.zasm.cfg.cmp.bad_shape: %s node %d requires args:[a,b]", vn.Tag, vn.ID)
		}
		if err := cf.emitCmpSetHL(vn, args[0], args[1]); err != nil {
			return err
		}
		slot := cf.addTempSlot(s.ID, 4)
		l := m.instr(storeMnemonicForWidth(4), slot, Reg("HL"))
		m.record(l, "instr", s.ID, s.Tag)
		return nil
	}

	if _, ok := mnemonicForUnop(vn.Tag); ok {
		if !bind {
			return fmt.Errorf("sircc.zasm.cfg.unop.discarded: %s node %d must be let-bound to a name, not '_'", vn.Tag, vn.ID)
		}
		args, err := refList(vn, "args")
		if err != nil || len(args) != 1 {
			return fmt.Errorf("sircc.zasm.cfg.unop.bad_shape: %s node %d requires args:[x]", vn.Tag, vn.ID)
		}
		if err := cf.emitUnopIntoHL(vn, args[0]); err != nil {
			return err
		}
		width := int64(4)
		if fam, _, _ := splitFamilyOp(vn.Tag); fam == "i64" {
			width = 8
		}
		slot := cf.addTempSlot(s.ID, width)
		l := m.instr(storeMnemonicForWidth(width), slot, Reg("HL"))
		m.record(l, "instr", s.ID, s.Tag)
		return nil
	}

	// Otherwise: a pure-ish binding of a stable const/symbol value with no
	// instructions emitted (emit_bind_op); later references to this let
	// resolve straight to the aliased Op via cf.valueOp.
	op, err := m.lowerValueToOp(vid)
	if err != nil {
		return err
	}
	if bind {
		cf.pureVal[s.ID] = op
	}
	return nil
}

// writeBranchArgs mirrors emit_cfg_branch_args: for each (arg, param)
// pair of a branch, load the arg's value into the register matching the
// target bparam slot's width, then store that register into the slot.
func (cf *cfgFunc) writeBranchArgs(termID, toID int64, args *sirjson.Value) error {
	m := cf.m
	toBlk := m.prog.GetNode(toID)
	if toBlk == nil || toBlk.Tag != "block" {
		return fmt.Errorf("sircc.zasm.cfg.branch.bad_target: branch target %d is not a block", toID)
	}
	params := toBlk.Fields.Get("params")
	var argItems []*sirjson.Value
	if args.IsArray() {
		argItems = args.Items
	}
	paramCount := 0
	if params.IsArray() {
		paramCount = len(params.Items)
	}
	if paramCount != len(argItems) {
		return fmt.Errorf("sircc.zasm.cfg.branch.arity: block %d param/arg count mismatch (params=%d, args=%d)", toID, paramCount, len(argItems))
	}
	for i := 0; i < paramCount; i++ {
		pid, ok := sir.ParseRef(params.Items[i])
		if !ok {
			return fmt.Errorf("sircc.zasm.cfg.branch.bad_param: block %d has a non-ref param", toID)
		}
		slot, ok := cf.bpSlot[pid]
		if !ok {
			return fmt.Errorf("sircc.zasm.cfg.branch.no_slot: bparam %d has no allocated slot", pid)
		}
		pn := m.prog.GetNode(pid)
		width, _ := widthForTypeRef(m.prog, pn.TypeRef)
		argID, err := refID(argItems[i])
		if err != nil {
			return fmt.Errorf("sircc.zasm.cfg.branch.bad_arg: branch to block %d arg[%d] must be a node ref", toID, i)
		}
		reg := regForWidth(width)
		if err := cf.loadOperandToReg(argID, reg); err != nil {
			return err
		}
		l := m.instr(storeMnemonicForWidth(width), slot, Reg(reg))
		m.record(l, "instr", termID, "term")
		cf.rc.invalidateSlot(slot.S, width)
		cf.rc.setSlot(reg, slot.S, width)
	}
	return nil
}

func (cf *cfgFunc) emitTerminator(s *sir.Node) error {
	switch s.Tag {
	case "term.ret", "return":
		return cf.emitReturn(s)
	case "term.br":
		return cf.emitBr(s)
	case "term.cbr", "term.condbr":
		return cf.emitCbr(s)
	case "term.switch":
		return cf.emitSwitch(s)
	}
	return fmt.Errorf("sircc.zasm.cfg.term.unhandled: terminator tag %q not supported", s.Tag)
}

func (cf *cfgFunc) emitReturn(s *sir.Node) error {
	m := cf.m
	if rid, ok := sir.ParseRef(s.Fields.Get("value")); ok {
		if _, _, ok := cf.slotFor(rid); ok {
			if err := cf.loadOperandToReg(rid, "HL"); err != nil {
				return err
			}
		} else if op, ok := cf.pureVal[rid]; ok {
			l := m.ld("HL", op)
			m.record(l, "instr", s.ID, s.Tag)
			cf.rc.invalidateReg("HL")
		} else if err := m.emitRetValueToHL(rid); err != nil {
			return err
		}
	} else {
		l := m.instr("LD", Reg("HL"), Num(0))
		m.record(l, "instr", s.ID, s.Tag)
	}
	l := m.instr("RET")
	m.record(l, "instr", s.ID, s.Tag)
	return nil
}

func (cf *cfgFunc) emitBr(s *sir.Node) error {
	m := cf.m
	toID, err := refID(s.Fields.Get("to"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.br.bad_shape: term.br node %d missing 'to' ref", s.ID)
	}
	if err := cf.writeBranchArgs(s.ID, toID, s.Fields.Get("args")); err != nil {
		return err
	}
	l := m.instr("JR", Lbl(cf.labelForBlock(toID)))
	m.record(l, "instr", s.ID, s.Tag)
	return nil
}

// emitCbr mirrors term.cbr lowering: the condition is tested once, then
// each arm gets its own cbr_then_/cbr_else_ label so its branch-arg
// stores run only on that arm before the unconditional jump to the real
// target block (JR). The conditional-branch mnemonic itself (CBR) has no
// surviving C source to ground on — see DESIGN.md.
func (cf *cfgFunc) emitCbr(s *sir.Node) error {
	m := cf.m
	condID, err := refID(s.Fields.Get("cond"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.cbr.bad_shape: %s node %d missing 'cond' ref", s.Tag, s.ID)
	}
	thenB := s.Fields.Get("then")
	elseB := s.Fields.Get("else")
	if !thenB.IsObject() || !elseB.IsObject() {
		return fmt.Errorf("sircc.zasm.cfg.cbr.bad_shape: %s node %d requires then/else objects", s.Tag, s.ID)
	}
	thenID, err := refID(thenB.Get("to"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.cbr.bad_shape: %s node %d then missing 'to' ref", s.Tag, s.ID)
	}
	elseID, err := refID(elseB.Get("to"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.cbr.bad_shape: %s node %d else missing 'to' ref", s.Tag, s.ID)
	}

	if err := cf.loadOperandToReg(condID, "HL"); err != nil {
		return err
	}
	thenLbl := labelForCbrEdge(s.ID, "then")
	elseLbl := labelForCbrEdge(s.ID, "else")
	l := m.instr("CBR", Reg("HL"), Lbl(thenLbl), Lbl(elseLbl))
	m.record(l, "instr", s.ID, s.Tag)

	thenLabLine := m.label(thenLbl)
	m.record(thenLabLine, "label", s.ID, s.Tag)
	if err := cf.writeBranchArgs(s.ID, thenID, thenB.Get("args")); err != nil {
		return err
	}
	l2 := m.instr("JR", Lbl(cf.labelForBlock(thenID)))
	m.record(l2, "instr", s.ID, s.Tag)

	elseLabLine := m.label(elseLbl)
	m.record(elseLabLine, "label", s.ID, s.Tag)
	if err := cf.writeBranchArgs(s.ID, elseID, elseB.Get("args")); err != nil {
		return err
	}
	l3 := m.instr("JR", Lbl(cf.labelForBlock(elseID)))
	m.record(l3, "instr", s.ID, s.Tag)
	return nil
}

// emitSwitch lowers term.switch as a chain of CP/JZ tests against each
// case's const literal (reusing emit_cp_hl's comparison pattern from
// compiler_zasm_backend_ops.c), falling through to the default arm.
func (cf *cfgFunc) emitSwitch(s *sir.Node) error {
	m := cf.m
	scrutID, err := refID(s.Fields.Get("scrut"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.switch.bad_shape: term.switch node %d missing 'scrut' ref", s.ID)
	}
	def := s.Fields.Get("default")
	if !def.IsObject() {
		return fmt.Errorf("sircc.zasm.cfg.switch.bad_shape: term.switch node %d missing default branch", s.ID)
	}
	defID, err := refID(def.Get("to"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.cfg.switch.bad_shape: term.switch node %d default missing 'to' ref", s.ID)
	}
	cases := s.Fields.Get("cases")
	if !cases.IsArray() {
		return fmt.Errorf("sircc.zasm.cfg.switch.bad_shape: term.switch node %d missing cases array", s.ID)
	}

	for i, c := range cases.Items {
		if !c.IsObject() {
			return fmt.Errorf("sircc.zasm.cfg.switch.case.bad: term.switch node %d case[%d] must be an object", s.ID, i)
		}
		toID, err := refID(c.Get("to"))
		if err != nil {
			return fmt.Errorf("sircc.zasm.cfg.switch.case.bad: term.switch node %d case[%d] missing 'to' ref", s.ID, i)
		}
		litID, err := refID(c.Get("lit"))
		if err != nil {
			return fmt.Errorf("sircc.zasm.cfg.switch.case.bad: term.switch node %d case[%d] missing 'lit' ref", s.ID, i)
		}
		litNode := m.prog.GetNode(litID)
		if litNode == nil || !strings.HasPrefix(litNode.Tag, "const.") {
			return fmt.Errorf("sircc.zasm.cfg.switch.case.lit: term.switch node %d case[%d] lit must be a const.* node", s.ID, i)
		}
		litOp, err := m.lowerValueToOp(litID)
		if err != nil || litOp.Kind != OpNum {
			return fmt.Errorf("sircc.zasm.cfg.switch.case.lit: term.switch node %d case[%d] lit must be an immediate const", s.ID, i)
		}

		if err := cf.loadOperandToReg(scrutID, "HL"); err != nil {
			return err
		}
		cl := m.instr("CP", Reg("HL"), litOp)
		m.record(cl, "instr", s.ID, s.Tag)
		cf.rc.invalidateReg("HL")

		caseLbl := fmt.Sprintf("case_%d_%d", s.ID, i)
		jl := m.instr("JZ", Lbl(caseLbl))
		m.record(jl, "instr", s.ID, s.Tag)

		caseLabLine := m.label(caseLbl)
		m.record(caseLabLine, "label", s.ID, s.Tag)
		if err := cf.writeBranchArgs(s.ID, toID, c.Get("args")); err != nil {
			return err
		}
		l2 := m.instr("JR", Lbl(cf.labelForBlock(toID)))
		m.record(l2, "instr", s.ID, s.Tag)
	}

	defLbl := fmt.Sprintf("default_%d", s.ID)
	defLabLine := m.label(defLbl)
	m.record(defLabLine, "label", s.ID, s.Tag)
	if err := cf.writeBranchArgs(s.ID, defID, def.Get("args")); err != nil {
		return err
	}
	l3 := m.instr("JR", Lbl(cf.labelForBlock(defID)))
	m.record(l3, "instr", s.ID, s.Tag)
	return nil
}
