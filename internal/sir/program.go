// Package sir holds the in-memory program tables (spec component B): typed
// tables of types, symbols and nodes indexed by numeric id, plus feature
// flags and target-ABI overrides. Grounded on SirProgram in
// compiler_internal.h (referenced throughout compiler_types.c and
// compiler_validate.c), translated from sparse C arrays indexed by id into
// Go maps — id space is producer-assigned and need not be dense.
package sir

import (
	"github.com/frogfishio/sircc/internal/diag"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// Node is one entry of the program's node table (spec.md §3).
type Node struct {
	ID      int64
	Tag     string
	TypeRef int64 // 0 means absent
	Fields  *sirjson.Value
}

// Sym is one entry of the program's symbol table (spec.md §3).
type Sym struct {
	ID      int64
	Name    string
	Kind    string
	Linkage string
	TypeRef int64
	Value   *sirjson.Value
}

// Features tracks which spec.md §3 feature gates are enabled for a program.
type Features struct {
	Simd    bool // simd:v1
	Fun     bool // fun:v1
	Closure bool // closure:v1
	Adt     bool // adt:v1
	Sem     bool // sem:v1
	Atomics bool // atomics:v1
	Coro    bool // coro:v1
	Eh      bool // eh:v1
	Gc      bool // gc:v1
}

// Set enables the feature flag named by s (e.g. "simd:v1"); unknown names
// are ignored, mirroring the original's tolerance of forward-declared flags.
func (f *Features) Set(s string) {
	switch s {
	case "simd:v1":
		f.Simd = true
	case "fun:v1":
		f.Fun = true
	case "closure:v1":
		f.Closure = true
	case "adt:v1":
		f.Adt = true
	case "sem:v1":
		f.Sem = true
	case "atomics:v1":
		f.Atomics = true
	case "coro:v1":
		f.Coro = true
	case "eh:v1":
		f.Eh = true
	case "gc:v1":
		f.Gc = true
	}
}

// Ordered returns the enabled feature strings in the fixed emission order
// used by emit_features (compiler_lower_hl.c), so canonical re-emission is
// byte-stable regardless of the order features were declared in.
func (f *Features) Ordered() []string {
	var out []string
	if f.Atomics {
		out = append(out, "atomics:v1")
	}
	if f.Simd {
		out = append(out, "simd:v1")
	}
	if f.Adt {
		out = append(out, "adt:v1")
	}
	if f.Fun {
		out = append(out, "fun:v1")
	}
	if f.Closure {
		out = append(out, "closure:v1")
	}
	if f.Coro {
		out = append(out, "coro:v1")
	}
	if f.Eh {
		out = append(out, "eh:v1")
	}
	if f.Gc {
		out = append(out, "gc:v1")
	}
	if f.Sem {
		out = append(out, "sem:v1")
	}
	return out
}

// Target carries target-ABI fields, each with a flag recording whether the
// producer declared (overrode) it versus leaving it to be adopted from the
// backend (spec.md §3, "Target ABI"; §4.J).
type Target struct {
	Triple   string
	CPU      string
	Features string

	PtrBits     int64
	PtrBitsSet  bool
	Endian      string // "little" | "big"
	EndianSet   bool
	IntAlign    int64
	IntAlignSet bool
	FloatAlign  int64
	FloatAlignSet bool
	StructAlign string
	StructAlignSet bool
}

// Meta carries the producer-supplied metadata of a `meta` record.
type Meta struct {
	Producer string
	Unit     string
}

// Program is the full set of per-compilation-unit state: the three tables,
// features, target overrides and the diagnostic bus. One Program exists per
// compilation (spec.md §5: "single-threaded per program").
type Program struct {
	Meta     Meta
	Features Features
	Target   Target

	Types map[int64]*Type
	Syms  map[int64]*Sym
	Nodes map[int64]*Node

	// NodeOrder preserves the order nodes were declared in, for validator
	// iteration and canonical re-emission (compiler_lower_hl.c walks
	// p->nodes_cap in index order, which for a well-formed producer is
	// declaration order).
	NodeOrder []int64

	Bus *diag.Bus
}

// NewProgram returns an empty Program with an initialized diagnostic bus.
func NewProgram() *Program {
	return &Program{
		Types: make(map[int64]*Type),
		Syms:  make(map[int64]*Sym),
		Nodes: make(map[int64]*Node),
		Bus:   diag.New("sircc"),
	}
}

// GetNode returns the node with the given id, or nil. Mirrors get_node.
func (p *Program) GetNode(id int64) *Node { return p.Nodes[id] }

// GetType returns the type with the given id, or nil.
func (p *Program) GetType(id int64) *Type { return p.Types[id] }

// GetSym returns the symbol with the given id, or nil.
func (p *Program) GetSym(id int64) *Sym { return p.Syms[id] }

// AddNode inserts n into the node table, recording declaration order.
func (p *Program) AddNode(n *Node) {
	if _, exists := p.Nodes[n.ID]; !exists {
		p.NodeOrder = append(p.NodeOrder, n.ID)
	}
	p.Nodes[n.ID] = n
}
