// Package diag implements the sircc diagnostic bus (spec component D): a
// non-aborting sink for stable, dotted-code diagnostics, with a scoped
// "about" context stack and text/JSON emission modes. Grounded on the
// errf()/about-stack pattern of compiler_validate.c and compiler_lower_hl.c,
// translated from a thread-local C global into an explicit, per-program Go
// value threaded by the caller (spec.md §5: all state is program-local).
package diag

import (
	"fmt"
	"strings"
)

// ExitClass distinguishes ordinary diagnostic-driven failure from the
// internal/OOM exit path that compiler_lower_hl.c tracks separately via
// bump_exit_code(p, SIRCC_EXIT_INTERNAL) (see SPEC_FULL.md §4).
type ExitClass int

const (
	ExitOK ExitClass = iota
	ExitDiagnostic
	ExitInternal
)

// About identifies the node or type a diagnostic is reporting against.
type About struct {
	Kind string // "node" | "type"
	ID   int64
	Tag  string
}

// Diagnostic is one emitted error or warning.
type Diagnostic struct {
	Code    string
	Message string
	About   *About
}

// Bus accumulates diagnostics for one compilation unit. Never aborts: every
// call site keeps going (spec.md §7's propagation policy), so Bus only
// records state for the driver to consult afterward.
type Bus struct {
	producer string
	diags    []Diagnostic
	aboutStk []About
	exit     ExitClass
}

// New returns an empty Bus. producer labels text-mode output the way the
// original's `producer: message` lines did (spec.md §6).
func New(producer string) *Bus {
	return &Bus{producer: producer}
}

// PushAbout pushes a context frame, returning a function that pops it. Use
// as `defer bus.PushAbout(diag.About{...})()` so the frame is popped on
// every return path, including error returns — mirrors the scoped guard
// design in spec.md §9.
func (b *Bus) PushAbout(a About) func() {
	b.aboutStk = append(b.aboutStk, a)
	depth := len(b.aboutStk)
	return func() {
		if len(b.aboutStk) >= depth {
			b.aboutStk = b.aboutStk[:depth-1]
		}
	}
}

func (b *Bus) currentAbout() *About {
	if len(b.aboutStk) == 0 {
		return nil
	}
	a := b.aboutStk[len(b.aboutStk)-1]
	return &a
}

// Errorf records a diagnostic with the given stable code, attaching
// whatever "about" frame is currently in scope. Always returns false so
// call sites can write `return bus.Errorf(...)` as their failure path.
func (b *Bus) Errorf(code, format string, args ...interface{}) bool {
	b.diags = append(b.diags, Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		About:   b.currentAbout(),
	})
	if b.exit == ExitOK {
		b.exit = ExitDiagnostic
	}
	return false
}

// Internal records an internal-class diagnostic (allocation failure, backend
// initialization failure) that bumps the exit class to ExitInternal rather
// than ExitDiagnostic, mirroring SIRCC_EXIT_INTERNAL in the original.
func (b *Bus) Internal(code, format string, args ...interface{}) bool {
	b.diags = append(b.diags, Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		About:   b.currentAbout(),
	})
	b.exit = ExitInternal
	return false
}

// HasErrors reports whether any diagnostic was recorded.
func (b *Bus) HasErrors() bool { return len(b.diags) > 0 }

// Diagnostics returns all recorded diagnostics, in emission order.
func (b *Bus) Diagnostics() []Diagnostic { return b.diags }

// ExitCode maps the bus's exit class onto a process exit code: 0 on
// success, a distinct non-zero value for diagnostic vs internal failure
// (spec.md §6, "Exit codes").
func (b *Bus) ExitCode() int {
	switch b.exit {
	case ExitOK:
		return 0
	case ExitInternal:
		return 2
	default:
		return 1
	}
}

// WriteText renders every diagnostic as `producer: message` lines, the
// text-mode format of spec.md §6.
func (b *Bus) WriteText(w *strings.Builder) {
	for _, d := range b.diags {
		fmt.Fprintf(w, "%s: %s\n", b.producer, d.Message)
	}
}

// WriteJSON renders every diagnostic as one `{k:"diag",...}` JSON object
// per line, the JSON-mode format of spec.md §6.
func (b *Bus) WriteJSON(w *strings.Builder) {
	for _, d := range b.diags {
		fmt.Fprintf(w, `{"k":"diag","code":"%s","message":%s`, d.Code, jsonQuote(d.Message))
		if d.About != nil {
			fmt.Fprintf(w, `,"about":{"kind":"%s","id":%d`, d.About.Kind, d.About.ID)
			if d.About.Tag != "" {
				fmt.Fprintf(w, `,"tag":"%s"`, d.About.Tag)
			}
			w.WriteString("}")
		}
		w.WriteString("}\n")
	}
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
