// Package sircc is the library surface of the SIR compiler toolchain: a
// validator, high-level lowering and canonical re-emission, a
// type-layout engine, native-IR lowering (via github.com/llir/llvm),
// and a retargetable ZASM assembly-IR backend, all reading and writing
// the JSON-Lines-encoded SIR wire format. Compile-only: no interpreter,
// linker, or runner.
package sircc

import (
	"io"
	"strings"

	"github.com/frogfishio/sircc/internal/diag"
	"github.com/frogfishio/sircc/internal/layout"
	"github.com/frogfishio/sircc/internal/lowerhl"
	"github.com/frogfishio/sircc/internal/nir"
	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
	"github.com/frogfishio/sircc/internal/target"
	"github.com/frogfishio/sircc/internal/validate"
	"github.com/frogfishio/sircc/internal/zasm"
)

// Result carries everything a Compile call may have produced. Which
// fields are populated depends on the Config's EmitKind: earlier passes
// always run, so e.g. EmitNativeIR also populates CanonicalSIR.
type Result struct {
	Program *sir.Program

	// CanonicalSIR is the re-emitted program, populated when Emit is
	// EmitCanonicalSIR or higher.
	CanonicalSIR string

	// NativeIR is the github.com/llir/llvm module's textual form,
	// populated when Emit is EmitNativeIR.
	NativeIR string

	// ZASM and ZASMSourceMap are populated when Emit is EmitZASM.
	ZASM          string
	ZASMSourceMap string

	Diagnostics []diag.Diagnostic
}

// HasErrors reports whether any pass recorded a diagnostic.
func (r *Result) HasErrors() bool { return len(r.Diagnostics) > 0 }

// DiagnosticsText renders prog's diagnostic bus in the mode json
// selects: one `producer: message` line per diagnostic in text mode, or
// one `{"k":"diag",...}` JSON object per line in JSON mode.
func DiagnosticsText(prog *sir.Program, json bool) string {
	var b strings.Builder
	if json {
		prog.Bus.WriteJSON(&b)
	} else {
		prog.Bus.WriteText(&b)
	}
	return b.String()
}

// Verify loads and validates a SIR Lines program without lowering
// anything, equivalent to Compile(r, NewConfig()).
func Verify(r io.Reader) (*Result, error) {
	return Compile(r, NewConfig())
}

// Compile loads a SIR Lines program from r and runs it through the
// passes cfg.emit selects: Load (component B) always runs; validate
// (component E) always runs next; lower-hl (component F) runs if
// cfg.lowerHL or cfg.emit >= EmitCanonicalSIR, and only for a program
// that enables sem:v1; native-IR lowering
// (component G) runs if cfg.emit == EmitNativeIR; ZASM lowering
// (components H/I) runs if cfg.emit == EmitZASM. Diagnostics recorded
// along the way never abort the remaining passes (spec.md §7's
// propagation policy) — Compile returns a non-nil error only for a
// structural failure (bad JSON, an unreadable stream) that leaves no
// Program to report diagnostics against.
func Compile(r io.Reader, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	arena := sirjson.NewArena()
	lines, err := sirjson.ReadLines(arena, r)
	if err != nil {
		return nil, err
	}
	prog, err := sir.Load(lines)
	if err != nil {
		return nil, err
	}

	res := &Result{Program: prog}

	validate.New(prog).Run()

	runLowerHL := cfg.lowerHL || cfg.emit >= EmitCanonicalSIR
	if runLowerHL && prog.Features.Sem {
		_ = lowerhl.Lower(prog)
	}

	if cfg.emit >= EmitCanonicalSIR {
		res.CanonicalSIR = lowerhl.EmitCanonicalSIR(prog)
	}

	if cfg.emit == EmitNativeIR {
		abi, terr := resolveABI(prog, cfg.triple)
		if terr != nil {
			prog.Bus.Errorf("sircc.target.resolve", "%v", terr)
		} else {
			m := nir.NewModule(prog, abi)
			for _, id := range prog.NodeOrder {
				n := prog.Nodes[id]
				if n.Tag != "fn" {
					continue
				}
				if _, lerr := m.LowerFunction(n); lerr != nil {
					prog.Bus.Errorf("sircc.nir.lower", "%v", lerr)
				}
			}
			res.NativeIR = m.M.String()
		}
	}

	if cfg.emit == EmitZASM {
		zm, zerr := zasm.Emit(prog)
		if zerr != nil {
			prog.Bus.Errorf("sircc.zasm.emit", "%v", zerr)
		} else {
			res.ZASM = zm.String()
			res.ZASMSourceMap = zm.WriteSourceMap()
		}
	}

	res.Diagnostics = prog.Bus.Diagnostics()
	return res, nil
}

func resolveABI(prog *sir.Program, tripleOverride string) (layout.ABI, error) {
	t := prog.Target
	if tripleOverride != "" {
		t.Triple = tripleOverride
	}
	info, err := target.Resolve(t)
	if err != nil {
		return layout.ABI{}, err
	}
	return info.ABI, nil
}
