package zasm

import (
	"fmt"

	"github.com/frogfishio/sircc/internal/sir"
)

func refList(n *sir.Node, key string) ([]int64, error) {
	arr := n.Fields.Get(key)
	if !arr.IsArray() {
		return nil, fmt.Errorf("sircc.zasm.stmt.bad_shape: node %d missing fields.%s array", n.ID, key)
	}
	out := make([]int64, 0, len(arr.Items))
	for _, it := range arr.Items {
		id, err := refID(it)
		if err != nil {
			return nil, fmt.Errorf("sircc.zasm.stmt.bad_shape: node %d.%s: %v", n.ID, key, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// emitCallStmt lowers a call/call.indirect value node: args[0] is the
// callee (must resolve to a direct symbol), the rest are call operands
// passed through verbatim. Mirrors emit_call_stmt.
func (m *Module) emitCallStmt(n *sir.Node) error {
	args, err := refList(n, "args")
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("sircc.zasm.call.no_callee: %s node %d missing args array", n.Tag, n.ID)
	}
	callee, err := m.lowerValueToOp(args[0])
	if err != nil {
		return err
	}
	if callee.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.call.callee_not_sym: %s node %d callee must be a direct symbol (decl.fn/ptr.sym)", n.Tag, n.ID)
	}
	ops := make([]Op, 0, len(args))
	ops = append(ops, callee)
	for i := 1; i < len(args); i++ {
		op, err := m.lowerValueToOp(args[i])
		if err != nil {
			return fmt.Errorf("sircc.zasm.call.bad_arg: %s node %d arg[%d]: %v", n.Tag, n.ID, i, err)
		}
		if !op.isValue() {
			return fmt.Errorf("sircc.zasm.call.bad_arg: %s node %d arg[%d] unsupported", n.Tag, n.ID, i)
		}
		ops = append(ops, op)
	}
	line := m.instr("CALL", ops...)
	m.record(line, "instr", n.ID, n.Tag)
	return nil
}

// emitStoreStmt lowers store.i8 (the only width the legacy path
// supports, per emit_store_stmt): the addr must be an alloca symbol,
// the value an immediate const.
func (m *Module) emitStoreStmt(n *sir.Node) error {
	if n.Tag != "store.i8" {
		return fmt.Errorf("sircc.zasm.store.bad_width: unsupported store width %q (node %d)", n.Tag, n.ID)
	}
	addrID, err := refID(n.Fields.Get("addr"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.store.bad_shape: %s node %d requires fields.addr/value node refs", n.Tag, n.ID)
	}
	valID, err := refID(n.Fields.Get("value"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.store.bad_shape: %s node %d requires fields.addr/value node refs", n.Tag, n.ID)
	}
	addr, err := m.lowerValueToOp(addrID)
	if err != nil || addr.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.store.bad_addr: %s addr must be an alloca symbol (node %d)", n.Tag, addrID)
	}
	val, err := m.lowerValueToOp(valID)
	if err != nil || val.Kind != OpNum {
		return fmt.Errorf("sircc.zasm.store.bad_value: %s value must be an immediate const (node %d)", n.Tag, valID)
	}
	byte := Num(val.N & 0xff)
	l1 := m.ld("A", byte)
	m.record(l1, "instr", n.ID, n.Tag)
	l2 := m.instr("ST8", Mem(addr, 0, 1), Reg("A"))
	m.record(l2, "instr", n.ID, n.Tag)
	return nil
}

func (m *Module) memFillCopyArgs(n *sir.Node, wantLen int) ([]int64, error) {
	args, err := refList(n, "args")
	if err != nil {
		return nil, err
	}
	if len(args) != wantLen {
		return nil, fmt.Errorf("sircc.zasm.stmt.bad_arity: %s node %d requires %d args", n.Tag, n.ID, wantLen)
	}
	return args, nil
}

// emitMemFillStmt lowers mem.fill {args:[dst, byte, len]} into a
// LD HL,dst / LD A,byte / LD BC,len / FILL sequence (emit_mem_fill_stmt).
func (m *Module) emitMemFillStmt(n *sir.Node) error {
	args, err := m.memFillCopyArgs(n, 3)
	if err != nil {
		return err
	}
	dst, err := m.lowerValueToOp(args[0])
	if err != nil || dst.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.mem_fill.bad_dst: mem.fill dst must be an alloca symbol (node %d)", args[0])
	}
	byteOp, err := m.lowerValueToOp(args[1])
	if err != nil || byteOp.Kind != OpNum {
		return fmt.Errorf("sircc.zasm.mem_fill.bad_byte: mem.fill byte must be an immediate const (node %d)", args[1])
	}
	lenOp, err := m.lowerValueToOp(args[2])
	if err != nil || lenOp.Kind != OpNum {
		return fmt.Errorf("sircc.zasm.mem_fill.bad_len: mem.fill len must be an immediate const (node %d)", args[2])
	}

	l1 := m.ld("HL", dst)
	m.record(l1, "instr", n.ID, n.Tag)
	l2 := m.ld("A", Num(byteOp.N&0xff))
	m.record(l2, "instr", n.ID, n.Tag)
	l3 := m.ld("BC", lenOp)
	m.record(l3, "instr", n.ID, n.Tag)
	l4 := m.instr("FILL")
	m.record(l4, "instr", n.ID, n.Tag)
	return nil
}

// emitMemCopyStmt lowers mem.copy {args:[dst, src, len]} into a
// LD DE,dst / LD HL,src / LD BC,len / LDIR sequence (emit_mem_copy_stmt).
func (m *Module) emitMemCopyStmt(n *sir.Node) error {
	args, err := m.memFillCopyArgs(n, 3)
	if err != nil {
		return err
	}
	dst, err := m.lowerValueToOp(args[0])
	if err != nil || dst.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.mem_copy.bad_dst: mem.copy dst must be an alloca symbol (node %d)", args[0])
	}
	src, err := m.lowerValueToOp(args[1])
	if err != nil || src.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.mem_copy.bad_src: mem.copy src must be an alloca symbol (node %d)", args[1])
	}
	lenOp, err := m.lowerValueToOp(args[2])
	if err != nil || lenOp.Kind != OpNum {
		return fmt.Errorf("sircc.zasm.mem_copy.bad_len: mem.copy len must be an immediate const (node %d)", args[2])
	}

	l1 := m.ld("DE", dst)
	m.record(l1, "instr", n.ID, n.Tag)
	l2 := m.ld("HL", src)
	m.record(l2, "instr", n.ID, n.Tag)
	l3 := m.ld("BC", lenOp)
	m.record(l3, "instr", n.ID, n.Tag)
	l4 := m.instr("LDIR")
	m.record(l4, "instr", n.ID, n.Tag)
	return nil
}

// emitRetValueToHL lowers a return value into the HL register,
// special-casing i32.zext.i8 and load.i8 (both read a byte through an
// alloca symbol via LD8U) and falling back to a trivial const/sym
// return otherwise. Mirrors emit_ret_value_to_hl.
func (m *Module) emitRetValueToHL(valueID int64) error {
	v := m.prog.GetNode(valueID)
	if v == nil {
		return fmt.Errorf("sircc.zasm.ret.unknown: return references unknown node %d", valueID)
	}

	if v.Tag == "i32.zext.i8" {
		args := v.Fields.Get("args")
		if !args.IsArray() || len(args.Items) != 1 {
			return fmt.Errorf("sircc.zasm.zext.bad_shape: i32.zext.i8 node %d requires args:[x]", valueID)
		}
		xID, err := refID(args.Items[0])
		if err != nil {
			return fmt.Errorf("sircc.zasm.zext.bad_shape: i32.zext.i8 node %d arg must be node ref", valueID)
		}
		x := m.prog.GetNode(xID)
		if x == nil {
			return fmt.Errorf("sircc.zasm.zext.unknown: i32.zext.i8 references unknown node %d", xID)
		}
		if x.Tag == "load.i8" {
			return m.emitLoadI8ToHL(xID, x)
		}
		op, err := m.lowerValueToOp(xID)
		if err != nil || op.Kind != OpNum {
			return fmt.Errorf("sircc.zasm.zext.bad_arg: i32.zext.i8 arg must be load.i8 or const.i8 (node %d)", xID)
		}
		l := m.ld("HL", Num(op.N&0xff))
		m.record(l, "instr", valueID, v.Tag)
		return nil
	}

	if v.Tag == "load.i8" {
		return m.emitLoadI8ToHL(valueID, v)
	}

	// Trivial values: const, cstr, alloca, decl.fn, ptr.sym, ptr.to_i64.
	rop, err := m.lowerValueToOp(valueID)
	if err != nil {
		return err
	}
	if rop.Kind == OpNum || rop.Kind == OpSym {
		l := m.ld("HL", rop)
		m.record(l, "instr", valueID, v.Tag)
		return nil
	}
	if rop.Kind == OpReg {
		if rop.S == "" || rop.S == "HL" {
			return nil
		}
		l := m.ld("HL", rop)
		m.record(l, "instr", valueID, v.Tag)
		return nil
	}
	return fmt.Errorf("sircc.zasm.ret.bad_shape: unsupported return value shape (node %d)", valueID)
}

func (m *Module) emitLoadI8ToHL(nodeID int64, x *sir.Node) error {
	addrID, err := refID(x.Fields.Get("addr"))
	if err != nil {
		return fmt.Errorf("sircc.zasm.load.bad_shape: load.i8 node %d requires fields.addr node ref", x.ID)
	}
	base, err := m.lowerValueToOp(addrID)
	if err != nil || base.Kind != OpSym {
		return fmt.Errorf("sircc.zasm.load.bad_addr: load.i8 addr must be an alloca symbol (node %d)", addrID)
	}
	l := m.instr("LD8U", Reg("HL"), Mem(base, 0, 1))
	m.record(l, "instr", nodeID, x.Tag)
	return nil
}
