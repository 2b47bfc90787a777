// Package zasm implements the sircc ZASM lowering pass (spec components
// H + I): a retargetable assembly-IR, itself a JSON-Lines stream of
// instr/dir/label records (the "zasm-v1.1" wire format), plus the
// accompanying source-map emission. Two backends share this package's
// record writer and value-lowering helpers: EmitLegacy, grounded on
// compiler_zasm.c's single-block emit_zasm_v11, and EmitCFG, grounded on
// compiler_zasm_backend_cfg.c, compiler_zasm_backend_ops.c,
// compiler_zasm_backend_stmt.c, and compiler_zasm_regcache.c/.h for block
// labels, the bparam/temp slot scheme, the HL/DE register cache, and
// binop/unop/cmp/load statement lowering. The term.br/term.cbr/term.switch
// branch *instruction* mnemonics themselves (JR aside, which the CFG
// source names directly) have no surviving C source to ground on and are
// extrapolated from spec.md §4.H's prose, documented as such in DESIGN.md.
package zasm

import (
	"fmt"
	"strings"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// OpKind is the operand kind tag of the zasm-v1.1 wire format.
type OpKind int

const (
	OpNone OpKind = iota
	OpReg
	OpSym
	OpLbl
	OpNum
	OpStr
	OpMem
)

// Op is one zasm operand: a register name, a linker symbol, a label, an
// immediate number, a string literal (STR directive payload), or a
// memory reference (base + optional displacement/size hint).
type Op struct {
	Kind     OpKind
	S        string
	N        int64
	MemBase  *Op
	MemDisp  int64
	MemSize  int64
}

func Reg(name string) Op { return Op{Kind: OpReg, S: name} }
func Sym(name string) Op { return Op{Kind: OpSym, S: name} }
func Lbl(name string) Op { return Op{Kind: OpLbl, S: name} }
func Num(n int64) Op     { return Op{Kind: OpNum, N: n} }
func Str(s string) Op    { return Op{Kind: OpStr, S: s} }
func Mem(base Op, disp, size int64) Op {
	return Op{Kind: OpMem, MemBase: &base, MemDisp: disp, MemSize: size}
}

func (o Op) isValue() bool {
	return o.Kind == OpReg || o.Kind == OpSym || o.Kind == OpNum
}

// Alloca records a stack slot a legacy alloca.* node was assigned, mapped
// to a RESB-backed linker symbol (compiler_zasm.c's collect_allocas).
type Alloca struct {
	NodeID    int64
	Sym       string
	SizeBytes int64
}

// Str records a cstr literal assigned a STR-directive linker symbol
// (compiler_zasm.c's collect_cstrs).
type Str struct {
	NodeID int64
	Sym    string
	Value  string
}

// Module accumulates the zasm-v1.1 record stream plus the source-map
// entries, line-numbered the way compiler_zasm.c numbers instr/dir/label
// records (a running counter, not node ids).
type Module struct {
	prog *sir.Program
	out  strings.Builder
	line int64

	strs    []Str
	allocas []Alloca
	decls   []string

	SourceMap []MapEntry
}

func NewModule(prog *sir.Program) *Module {
	return &Module{prog: prog, line: 1}
}

func (m *Module) nextLine() int64 {
	l := m.line
	m.line++
	return l
}

func (m *Module) writeHeader(kind string) {
	m.out.WriteString(`{"ir":"zasm-v1.1","k":"`)
	m.out.WriteString(kind)
	m.out.WriteString(`"`)
}

func (m *Module) writeLoc(line int64) {
	fmt.Fprintf(&m.out, `,"loc":{"line":%d}`, line)
}

func (m *Module) writeOp(o Op) {
	switch o.Kind {
	case OpReg:
		m.out.WriteString(`{"t":"reg","v":`)
		writeJSONStr(&m.out, o.S)
		m.out.WriteString("}")
	case OpSym:
		m.out.WriteString(`{"t":"sym","v":`)
		writeJSONStr(&m.out, o.S)
		m.out.WriteString("}")
	case OpLbl:
		m.out.WriteString(`{"t":"lbl","v":`)
		writeJSONStr(&m.out, o.S)
		m.out.WriteString("}")
	case OpNum:
		fmt.Fprintf(&m.out, `{"t":"num","v":%d}`, o.N)
	case OpStr:
		m.out.WriteString(`{"t":"str","v":`)
		writeJSONStr(&m.out, o.S)
		m.out.WriteString("}")
	case OpMem:
		m.out.WriteString(`{"t":"mem","base":`)
		if o.MemBase.Kind == OpReg {
			m.out.WriteString(`{"t":"reg","v":`)
			writeJSONStr(&m.out, o.MemBase.S)
			m.out.WriteString("}")
		} else {
			m.out.WriteString(`{"t":"sym","v":`)
			writeJSONStr(&m.out, o.MemBase.S)
			m.out.WriteString("}")
		}
		if o.MemDisp != 0 {
			fmt.Fprintf(&m.out, `,"disp":%d`, o.MemDisp)
		}
		if o.MemSize != 0 {
			fmt.Fprintf(&m.out, `,"size":%d`, o.MemSize)
		}
		m.out.WriteString("}")
	}
}

func writeJSONStr(b *strings.Builder, s string) {
	w := sirjson.NewWriter()
	w.Str(s)
	b.WriteString(w.String())
}

// instr emits one {"k":"instr","m":MNEMONIC,"ops":[...]} record, zasm_k
// being the mnemonic, at a fresh line number; returns that line for the
// caller's source-map entry.
func (m *Module) instr(mnemonic string, ops ...Op) int64 {
	line := m.nextLine()
	m.writeHeader("instr")
	fmt.Fprintf(&m.out, `,"m":"%s","ops":[`, mnemonic)
	for i, o := range ops {
		if i > 0 {
			m.out.WriteString(",")
		}
		m.writeOp(o)
	}
	m.out.WriteString("]")
	m.writeLoc(line)
	m.out.WriteString("}\n")
	return line
}

func (m *Module) dir(name string, extra string, args ...Op) int64 {
	line := m.nextLine()
	m.writeHeader("dir")
	fmt.Fprintf(&m.out, `,"d":"%s"`, name)
	if extra != "" {
		m.out.WriteString(extra)
	}
	m.out.WriteString(`,"args":[`)
	for i, o := range args {
		if i > 0 {
			m.out.WriteString(",")
		}
		m.writeOp(o)
	}
	m.out.WriteString("]")
	m.writeLoc(line)
	m.out.WriteString("}\n")
	return line
}

func (m *Module) label(name string) int64 {
	line := m.nextLine()
	m.writeHeader("label")
	fmt.Fprintf(&m.out, `,"name":"%s"`, name)
	m.writeLoc(line)
	m.out.WriteString("}\n")
	return line
}

func (m *Module) ld(dstReg string, src Op) int64 {
	return m.instr("LD", Reg(dstReg), src)
}

// String returns the accumulated zasm-v1.1 record stream.
func (m *Module) String() string { return m.out.String() }
