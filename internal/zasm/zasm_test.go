package zasm

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
	"github.com/frogfishio/sircc/internal/testing/require"
)

func loadProg(t *testing.T, src string) *sir.Program {
	t.Helper()
	arena := sirjson.NewArena()
	lines, err := sirjson.ReadLines(arena, strings.NewReader(src))
	require.NoError(t, err)
	p, err := sir.Load(lines)
	require.NoError(t, err)
	return p
}

// TestEmitLegacy_missingZirMainFails grounds the hard zir_main-name
// requirement the legacy ZASM path carries over from compiler_zasm.c's
// find_fn/emit_zasm_v11 (SPEC_FULL.md §4.H).
func TestEmitLegacy_missingZirMainFails(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"not_zir_main","body":20}}
`
	p := loadProg(t, src)
	_, err := EmitLegacy(p)
	require.Error(t, err)
}

// TestEmitLegacy_simpleReturn exercises the end-to-end legacy path: a
// const return through HL, EXTERN/PUBLIC/label preamble, RET
// terminator, and no STR/RESB directives since nothing allocates or
// interns a string.
func TestEmitLegacy_simpleReturn(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":7}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","body":20}}
`
	p := loadProg(t, src)
	m, err := EmitLegacy(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"d":"PUBLIC"`))
	require.True(t, strings.Contains(out, `"name":"zir_main"`))
	require.True(t, strings.Contains(out, `"m":"LD","ops":[{"t":"reg","v":"HL"},{"t":"num","v":7}]`))
	require.True(t, strings.Contains(out, `"m":"RET","ops":[]`))
	require.True(t, len(m.SourceMap) > 0)
}

// TestEmitLegacy_storeByteThroughAlloca exercises an alloca.i8 slot and
// a store.i8 into it, grounding the RESB-directive emission path.
func TestEmitLegacy_storeByteThroughAlloca(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":5,"tag":"alloca.i8","fields":{}}
{"ir":"sir-v1.0","k":"node","id":6,"tag":"const.i8","fields":{"value":65}}
{"ir":"sir-v1.0","k":"node","id":7,"tag":"store.i8","fields":{"addr":5,"value":6}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[5,6,7,10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","body":20}}
`
	p := loadProg(t, src)
	m, err := EmitLegacy(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"d":"RESB"`))
	require.True(t, strings.Contains(out, `"alloc_5"`))
	require.True(t, strings.Contains(out, `"m":"ST8"`))
}

// TestEmitLegacy_cstrInternedAndStrEmitted grounds cstr-literal
// interning into a str_<id> symbol plus its trailing STR directive.
func TestEmitLegacy_cstrInternedAndStrEmitted(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":8,"tag":"cstr","fields":{"value":"hi"}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","body":20}}
`
	p := loadProg(t, src)
	m, err := EmitLegacy(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"d":"STR"`))
	require.True(t, strings.Contains(out, `"str_8"`))
}

// TestEmit_dispatchesOnShape grounds Emit's shape dispatch: a CFG-form
// zir_main (fields.entry present) must go through EmitCFG, not
// EmitLegacy, which would reject its fields.blocks-only shape.
func TestEmit_dispatchesOnShape(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","entry":20,"blocks":[20]}}
`
	p := loadProg(t, src)
	m, err := Emit(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"name":"zir_main"`))
}

// TestEmitCFG_addThenBranchWithArg grounds the CFG backend end to end:
// an i32.add let-bound in the entry block, branched with its value as a
// block argument (emit_cfg_branch_args), landing in a block whose sole
// bparam is returned.
func TestEmitCFG_addThenBranchWithArg(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":21,"tag":"bparam","type_ref":1}
{"ir":"sir-v1.0","k":"node","id":40,"tag":"const.i32","type_ref":1,"fields":{"value":3}}
{"ir":"sir-v1.0","k":"node","id":41,"tag":"const.i32","type_ref":1,"fields":{"value":4}}
{"ir":"sir-v1.0","k":"node","id":42,"tag":"i32.add","type_ref":1,"fields":{"args":[40,41]}}
{"ir":"sir-v1.0","k":"node","id":43,"tag":"let","fields":{"name":"sum","value":42}}
{"ir":"sir-v1.0","k":"node","id":44,"tag":"term.br","fields":{"to":20,"args":[43]}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[43,44]}}
{"ir":"sir-v1.0","k":"node","id":45,"tag":"return","fields":{"value":21}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"params":[21],"stmts":[45]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","entry":10,"blocks":[10,20]}}
`
	p := loadProg(t, src)
	m, err := EmitCFG(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"name":"zir_main"`))
	require.True(t, strings.Contains(out, `"name":"b_20"`))
	require.True(t, strings.Contains(out, `"m":"ADD","ops":[{"t":"reg","v":"HL"},{"t":"reg","v":"DE"}]`))
	require.True(t, strings.Contains(out, `"m":"ST32"`))
	require.True(t, strings.Contains(out, `"bp_21"`))
	require.True(t, strings.Contains(out, `"m":"JR","ops":[{"t":"lbl","v":"b_20"}]`))
	require.True(t, strings.Contains(out, `"m":"RET","ops":[]`))
}

// TestEmitCFG_switchDispatch grounds term.switch lowering against the
// spec/validator schema {scrut, default:{to}, cases:[{lit,to}]} (not
// nir's legacy {value, default:<ref>, cases:[{value,to}]} shape).
func TestEmitCFG_switchDispatch(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[1],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"bparam","type_ref":1}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"const.i32","type_ref":1,"fields":{"value":7}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"term.switch","fields":{"scrut":1,"default":{"to":60},"cases":[{"lit":2,"to":40},{"lit":3,"to":50}]}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"params":[1],"stmts":[4]}}
{"ir":"sir-v1.0","k":"node","id":41,"tag":"const.i32","type_ref":1,"fields":{"value":20}}
{"ir":"sir-v1.0","k":"node","id":42,"tag":"return","fields":{"value":41}}
{"ir":"sir-v1.0","k":"node","id":40,"tag":"block","fields":{"stmts":[42]}}
{"ir":"sir-v1.0","k":"node","id":51,"tag":"const.i32","type_ref":1,"fields":{"value":99}}
{"ir":"sir-v1.0","k":"node","id":52,"tag":"return","fields":{"value":51}}
{"ir":"sir-v1.0","k":"node","id":50,"tag":"block","fields":{"stmts":[52]}}
{"ir":"sir-v1.0","k":"node","id":61,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":62,"tag":"return","fields":{"value":61}}
{"ir":"sir-v1.0","k":"node","id":60,"tag":"block","fields":{"stmts":[62]}}
{"ir":"sir-v1.0","k":"node","id":200,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","entry":10,"blocks":[10,40,50,60]}}
`
	p := loadProg(t, src)
	m, err := EmitCFG(p)
	require.NoError(t, err)
	out := m.String()
	require.True(t, strings.Contains(out, `"m":"CP","ops":[{"t":"reg","v":"HL"},{"t":"num","v":2}]`))
	require.True(t, strings.Contains(out, `"m":"JZ"`))
	require.True(t, strings.Contains(out, `"name":"default_4"`))
	require.True(t, strings.Contains(out, `"name":"b_40"`))
	require.True(t, strings.Contains(out, `"name":"b_60"`))
}
