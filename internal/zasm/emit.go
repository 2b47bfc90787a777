package zasm

import (
	"fmt"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// findZirMain returns the fn node literally named "zir_main", the sole
// entry point either ZASM backend knows how to lower (find_fn's hard
// requirement, shared by EmitLegacy and EmitCFG).
func findZirMain(p *sir.Program) *sir.Node {
	for _, id := range p.NodeOrder {
		n := p.Nodes[id]
		if n.Tag == "fn" && n.Fields.Get("name").String() == "zir_main" {
			return n
		}
	}
	return nil
}

// EmitLegacy lowers a program's legacy single-block zir_main function to
// the zasm-v1.1 record stream, mirroring emit_zasm_v11 end to end:
// meta, one EXTERN per declared fn, PUBLIC+label zir_main, the lowered
// body statements, then STR/RESB directives for every collected cstr
// and alloca in the whole program.
func EmitLegacy(p *sir.Program) (*Module, error) {
	zirMain := findZirMain(p)
	if zirMain == nil {
		return nil, fmt.Errorf("sircc.zasm.legacy.no_zir_main: --emit-zasm currently requires a function named 'zir_main'")
	}

	m := NewModule(p)
	if err := m.collectCstrs(); err != nil {
		return nil, err
	}
	m.collectAllocas()
	m.collectDeclFns()

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

	labLine := m.label("zir_main")
	m.record(labLine, "label", zirMain.ID, "fn")

	if err := m.emitZirMainBody(zirMain); err != nil {
		return nil, err
	}

	if len(m.strs) > 0 {
		m.out.WriteString("\n")
	}
	for _, s := range m.strs {
		line := m.dir("STR", fmt.Sprintf(`,"name":%s`, jsonStr(s.Sym)), Str(s.Value))
		m.record(line, "dir", s.NodeID, "cstr")
	}

	if len(m.allocas) > 0 {
		m.out.WriteString("\n")
	}
	for _, a := range m.allocas {
		line := m.dir("RESB", fmt.Sprintf(`,"name":%s`, jsonStr(a.Sym)), Num(a.SizeBytes))
		m.record(line, "dir", a.NodeID, "alloca")
	}

	return m, nil
}

func jsonStr(s string) string {
	w := sirjson.NewWriter()
	w.Str(s)
	return w.String()
}

// emitZirMainBody walks zir_main's legacy body block's stmts, lowering
// the small subset of statement tags the legacy backend understands:
// let-wrapped calls, mem.fill/mem.copy, store.i8, and the terminating
// return. A trivial value node listed among the stmts (anything
// lowerValueToOp accepts) emits nothing. Anything else is a hard
// "unsupported stmt tag" error.
func (m *Module) emitZirMainBody(zirMain *sir.Node) error {
	bodyID, err := refID(zirMain.Fields.Get("body"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.legacy.no_body: fn zir_main missing body ref")
	}
	body := m.prog.GetNode(bodyID)
	if body == nil || body.Tag != "block" {
		return fmt.Errorf("sircc.zasm.legacy.bad_body: zir_main body must be a block node")
	}
	stmtsV := body.Fields.Get("stmts")
	if !stmtsV.IsArray() {
		return fmt.Errorf("sircc.zasm.legacy.bad_body: zir_main body block missing stmts array")
	}

	for i, item := range stmtsV.Items {
		sid, err := refID(item)
		if err != nil {
			return fmt.Errorf("sircc.zasm.legacy.bad_stmt: block stmt[%d] must be node ref", i)
		}
		s := m.prog.GetNode(sid)
		if s == nil {
			return fmt.Errorf("sircc.zasm.legacy.unknown_stmt: unknown stmt node %d", sid)
		}

		switch {
		case s.Tag == "let":
			vid, err := refID(s.Fields.Get("value"))
			if err != nil {
				return fmt.Errorf("sircc.zasm.legacy.bad_let: let node %d missing fields.value ref", s.ID)
			}
			vn := m.prog.GetNode(vid)
			if vn == nil {
				return fmt.Errorf("sircc.zasm.legacy.bad_let: let node %d value references unknown node", s.ID)
			}
			if vn.Tag == "call" || vn.Tag == "call.indirect" {
				if err := m.emitCallStmt(vn); err != nil {
					return err
				}
			}

		case s.Tag == "mem.fill":
			if err := m.emitMemFillStmt(s); err != nil {
				return err
			}

		case s.Tag == "mem.copy":
			if err := m.emitMemCopyStmt(s); err != nil {
				return err
			}

		case len(s.Tag) > 6 && s.Tag[:6] == "store.":
			if err := m.emitStoreStmt(s); err != nil {
				return err
			}

		case s.Tag == "term.ret" || s.Tag == "return":
			rv := s.Fields.Get("value")
			if rid, ok := sir.ParseRef(rv); ok {
				if err := m.emitRetValueToHL(rid); err != nil {
					return err
				}
			} else {
				line := m.instr("LD", Reg("HL"), Num(0))
				m.record(line, "instr", s.ID, s.Tag)
			}
			retLine := m.instr("RET")
			m.record(retLine, "instr", s.ID, s.Tag)
			return nil

		default:
			if _, verr := m.lowerValueToOp(s.ID); verr == nil {
				continue
			}
			return fmt.Errorf("sircc.zasm.legacy.unsupported_stmt: unsupported stmt tag %q in zir_main", s.Tag)
		}
	}
	return nil
}
