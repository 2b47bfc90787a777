// Package target implements the sircc target query (spec component J):
// triple-derived ABI layout reconciled against SIR-declared overrides.
// compiler_internal.h's init_target_for_module/init_target_info are the
// two nearly-identical C entry points the Open Questions of spec.md §9
// note as "unclear which is canonical" — SPEC_FULL.md treats them as one
// contract, implemented here as a single Resolve function, same as the
// spec directs.
package target

import (
	"fmt"
	"runtime"

	"github.com/frogfishio/sircc/internal/layout"
	"github.com/frogfishio/sircc/internal/sir"
)

// Info is the resolved, backend-reported ABI for one target triple.
type Info struct {
	Triple   string
	PtrBits  int64
	Endian   string
	IntAlign int64 // i32 alignment; other int widths derive from layout.ABI
	FloatAlign int64
	StructAlign string
	ABI      layout.ABI
}

// hostTriples maps runtime.GOARCH to a best-effort LLVM-style triple, used
// only when SIR declares no target.triple (spec.md §6, "Environment").
var hostTriples = map[string]string{
	"amd64": "x86_64-unknown-linux-gnu",
	"arm64": "aarch64-unknown-linux-gnu",
	"386":   "i386-unknown-linux-gnu",
	"arm":   "arm-unknown-linux-gnueabi",
}

// knownTargets is a small static per-triple ABI table, standing in for the
// backend's target-machine/data-layout query (spec.md §4.J). Grounded on
// LLVM's well-known data layouts for these triples; the narrow backend
// interface of spec.md §9 means any other triple's data layout can be
// added here without touching callers.
var knownTargets = map[string]Info{
	"x86_64-unknown-linux-gnu": {
		PtrBits: 64, Endian: "little", IntAlign: 4, FloatAlign: 4, StructAlign: "max",
		ABI: layout.ABI{PtrBytes: 8, AlignPtr: 8, AlignI8: 1, AlignI16: 2, AlignI32: 4, AlignI64: 8, AlignF32: 4, AlignF64: 8},
	},
	"aarch64-unknown-linux-gnu": {
		PtrBits: 64, Endian: "little", IntAlign: 4, FloatAlign: 4, StructAlign: "max",
		ABI: layout.ABI{PtrBytes: 8, AlignPtr: 8, AlignI8: 1, AlignI16: 2, AlignI32: 4, AlignI64: 8, AlignF32: 4, AlignF64: 8},
	},
	"i386-unknown-linux-gnu": {
		PtrBits: 32, Endian: "little", IntAlign: 4, FloatAlign: 4, StructAlign: "max",
		ABI: layout.ABI{PtrBytes: 4, AlignPtr: 4, AlignI8: 1, AlignI16: 2, AlignI32: 4, AlignI64: 4, AlignF32: 4, AlignF64: 4},
	},
}

// HostTriple returns the default triple for the running process's arch,
// used when a program declares none (spec.md §6, "Environment").
func HostTriple() string {
	if t, ok := hostTriples[runtime.GOARCH]; ok {
		return t
	}
	return "x86_64-unknown-linux-gnu"
}

// Resolve reconciles t against the backend-reported ABI for its (possibly
// defaulted) triple: a mismatch on ptrBits/endian/intAlign/floatAlign fails
// with sircc.target.align.mismatch; structAlign other than "max" is
// rejected; unset fields are adopted from the backend (spec.md §3, "Target
// ABI"; §4.J).
func Resolve(t sir.Target) (Info, error) {
	triple := t.Triple
	if triple == "" {
		triple = HostTriple()
	}
	backend, ok := knownTargets[triple]
	if !ok {
		return Info{}, fmt.Errorf("sircc.target.unknown_triple: no backend data layout known for triple %q", triple)
	}
	backend.Triple = triple

	if t.PtrBitsSet && t.PtrBits != backend.PtrBits {
		return Info{}, fmt.Errorf("sircc.target.align.mismatch: declared ptrBits=%d does not match backend ptrBits=%d for %q", t.PtrBits, backend.PtrBits, triple)
	}
	if t.EndianSet && t.Endian != backend.Endian {
		return Info{}, fmt.Errorf("sircc.target.align.mismatch: declared endian=%q does not match backend endian=%q for %q", t.Endian, backend.Endian, triple)
	}
	if t.IntAlignSet && t.IntAlign != backend.IntAlign {
		return Info{}, fmt.Errorf("sircc.target.align.mismatch: declared intAlign=%d does not match backend intAlign=%d for %q", t.IntAlign, backend.IntAlign, triple)
	}
	if t.FloatAlignSet && t.FloatAlign != backend.FloatAlign {
		return Info{}, fmt.Errorf("sircc.target.align.mismatch: declared floatAlign=%d does not match backend floatAlign=%d for %q", t.FloatAlign, backend.FloatAlign, triple)
	}
	if t.StructAlignSet && t.StructAlign != "max" {
		return Info{}, fmt.Errorf("sircc.target.struct_align.bad: structAlign %q is not supported (only \"max\")", t.StructAlign)
	}
	return backend, nil
}
