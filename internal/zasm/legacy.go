package zasm

import (
	"fmt"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// collectCstrs walks every "cstr" node in the program and assigns it a
// str_<id> linker symbol, mirroring collect_cstrs. Rejects any literal
// containing an embedded NUL byte (SPEC_FULL.md's zero-NUL-byte
// STR-directive re-validation).
func (m *Module) collectCstrs() error {
	for _, id := range m.prog.NodeOrder {
		n := m.prog.Nodes[id]
		if n.Tag != "cstr" {
			continue
		}
		val := n.Fields.Get("value")
		if val == nil {
			continue
		}
		s := val.String()
		for i := 0; i < len(s); i++ {
			if s[i] == 0 {
				return fmt.Errorf("sircc.zasm.str.embedded_nul: cstr node %d contains a NUL byte", n.ID)
			}
		}
		m.strs = append(m.strs, Str{NodeID: n.ID, Sym: fmt.Sprintf("str_%d", n.ID), Value: s})
	}
	return nil
}

func allocaSizeForTag(tag string) (int64, bool) {
	if len(tag) < 7 || tag[:7] != "alloca." {
		return 0, false
	}
	switch tag[7:] {
	case "i8":
		return 1, true
	case "i16":
		return 2, true
	case "i32", "f32":
		return 4, true
	case "i64", "f64", "ptr":
		return 8, true
	}
	return 0, false
}

func (m *Module) collectAllocas() {
	for _, id := range m.prog.NodeOrder {
		n := m.prog.Nodes[id]
		size, ok := allocaSizeForTag(n.Tag)
		if !ok {
			continue
		}
		m.allocas = append(m.allocas, Alloca{NodeID: n.ID, Sym: fmt.Sprintf("alloc_%d", n.ID), SizeBytes: size})
	}
}

func (m *Module) collectDeclFns() {
	seen := map[string]bool{}
	for _, id := range m.prog.NodeOrder {
		n := m.prog.Nodes[id]
		if n.Tag != "decl.fn" {
			continue
		}
		name := n.Fields.Get("name").String()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		m.decls = append(m.decls, name)
	}
}

func (m *Module) symForAlloca(id int64) (string, bool) {
	for _, a := range m.allocas {
		if a.NodeID == id {
			return a.Sym, true
		}
	}
	return "", false
}

func (m *Module) symForStr(id int64) (string, bool) {
	for _, s := range m.strs {
		if s.NodeID == id {
			return s.Sym, true
		}
	}
	return "", false
}

// lowerValueToOp mirrors lower_value_to_op: a small set of "trivial"
// value-producing node tags (const.i*, alloca.*, cstr, decl.fn, ptr.sym,
// ptr.to_i64 pass-through) reduce to a single Op without emitting any
// instructions.
func (m *Module) lowerValueToOp(nodeID int64) (Op, error) {
	n := m.prog.GetNode(nodeID)
	if n == nil {
		return Op{}, fmt.Errorf("sircc.zasm.ref.unknown: unknown node %d", nodeID)
	}
	if len(n.Tag) > 7 && n.Tag[:7] == "const.i" {
		n64, ok := n.Fields.Get("value").Int64()
		if !ok {
			return Op{}, fmt.Errorf("sircc.zasm.const.bad_literal: node %d: value is not an integer", nodeID)
		}
		return Num(n64), nil
	}
	if len(n.Tag) > 7 && n.Tag[:7] == "alloca." {
		sym, ok := m.symForAlloca(nodeID)
		if !ok {
			return Op{}, fmt.Errorf("sircc.zasm.alloca.no_symbol: node %d has no alloca symbol mapping", nodeID)
		}
		return Sym(sym), nil
	}
	if n.Tag == "cstr" {
		sym, ok := m.symForStr(nodeID)
		if !ok {
			return Op{}, fmt.Errorf("sircc.zasm.cstr.no_symbol: node %d has no cstr symbol mapping", nodeID)
		}
		return Sym(sym), nil
	}
	if n.Tag == "decl.fn" {
		name := n.Fields.Get("name").String()
		if name == "" {
			return Op{}, fmt.Errorf("sircc.zasm.decl_fn.no_name: node %d missing fields.name", nodeID)
		}
		return Sym(name), nil
	}
	if n.Tag == "ptr.sym" {
		name := n.Fields.Get("name").String()
		if name == "" {
			return Op{}, fmt.Errorf("sircc.zasm.ptr_sym.no_name: node %d missing fields.name", nodeID)
		}
		return Sym(name), nil
	}
	if n.Tag == "ptr.to_i64" {
		// Pass-through: ptr.to_i64's operand, not the cast, is what has an
		// addressable zasm representation (SPEC_FULL.md §4, "ptr.to_i64
		// pass-through in ZASM value lowering").
		args := n.Fields.Get("args")
		if !args.IsArray() || len(args.Items) != 1 {
			return Op{}, fmt.Errorf("sircc.zasm.ptr_to_i64.bad_shape: node %d requires args:[x]", nodeID)
		}
		xID, ok := sir.ParseRef(args.Items[0])
		if !ok {
			return Op{}, fmt.Errorf("sircc.zasm.ptr_to_i64.bad_shape: node %d arg must be a node ref", nodeID)
		}
		return m.lowerValueToOp(xID)
	}
	if n.Tag == "name" {
		return Op{}, fmt.Errorf("sircc.zasm.name.unsupported: name %q not supported yet (node %d)", n.Fields.Get("name").String(), nodeID)
	}
	return Op{}, fmt.Errorf("sircc.zasm.value.unsupported: unsupported value node %q (node %d)", n.Tag, nodeID)
}

func refID(v *sirjson.Value) (int64, error) {
	id, ok := sir.ParseRef(v)
	if !ok {
		return 0, fmt.Errorf("sircc.zasm.ref.bad: expected a node reference")
	}
	return id, nil
}
