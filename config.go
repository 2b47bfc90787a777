package sircc

import (
	"context"
)

// EmitKind selects which pass Compile runs to, mirroring the
// --validate-only/--lower-hl/--emit-native/--emit-zasm driver flags a
// sircc command-line frontend would expose (this package is the library
// surface those flags bind to, not a CLI itself).
type EmitKind int

const (
	// EmitValidateOnly runs the validator and stops; Result carries only
	// diagnostics and the loaded Program.
	EmitValidateOnly EmitKind = iota
	// EmitCanonicalSIR additionally runs high-level lowering (gated on
	// sem:v1) and re-emits canonical SIR JSON-Lines.
	EmitCanonicalSIR
	// EmitNativeIR additionally lowers every function to llir/llvm IR.
	EmitNativeIR
	// EmitZASM additionally lowers the zir_main function (CFG or legacy
	// body form) to the ZASM assembly IR, plus its source map.
	EmitZASM
)

// Config controls one Compile call, with the default implementation as
// NewConfig. Each With* method returns a new Config, leaving the
// receiver untouched, the same fluent-clone pattern wazero's
// RuntimeConfig uses for its own With* options.
type Config struct {
	ctx     context.Context
	emit    EmitKind
	triple  string // "" adopts the host triple
	lowerHL bool
	diagJSON bool
}

// NewConfig returns the default Config: validate only, host target,
// text-mode diagnostics.
func NewConfig() *Config {
	return &Config{
		ctx:  context.Background(),
		emit: EmitValidateOnly,
	}
}

func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// WithContext stores ctx on the Config (context.Background if nil).
// Compile does not read it.
func (c *Config) WithContext(ctx context.Context) *Config {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithEmit selects which pass Compile runs to.
func (c *Config) WithEmit(e EmitKind) *Config {
	ret := c.clone()
	ret.emit = e
	return ret
}

// WithTarget overrides the backend target triple Compile resolves
// against (internal/target.Resolve), instead of adopting the host
// triple (internal/target.HostTriple).
func (c *Config) WithTarget(triple string) *Config {
	ret := c.clone()
	ret.triple = triple
	return ret
}

// WithLowerHL enables high-level lowering (sem.if/sem.and_sc/sem.or_sc
// rewriting of a sem:v1 program) when Emit is EmitValidateOnly.
// EmitCanonicalSIR, EmitNativeIR and EmitZASM run it whatever this is set to.
func (c *Config) WithLowerHL(enabled bool) *Config {
	ret := c.clone()
	ret.lowerHL = enabled
	return ret
}

// WithJSONDiagnostics records a JSON-mode (internal/diag.Bus.WriteJSON)
// preference on the Config. Compile renders no diagnostic text and
// DiagnosticsText takes the mode as its own argument, so nothing reads it.
func (c *Config) WithJSONDiagnostics(enabled bool) *Config {
	ret := c.clone()
	ret.diagJSON = enabled
	return ret
}
