package nir

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/layout"
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

// TestLowerFunction_i32AddReturnsValue grounds spec.md §8 scenario 1's
// shape (arithmetic feeding a return) at a reduced width: an i32 add of
// two constants, returned directly.
func TestLowerFunction_i32AddReturnsValue(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":9000}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"const.i32","type_ref":1,"fields":{"value":29}}
{"ir":"sir-v1.0","k":"node","id":12,"tag":"i32.add","type_ref":1,"fields":{"args":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":13,"tag":"return","fields":{"value":12}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11,12,13]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"addit","entry":20,"blocks":[20]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(30))
	require.NoError(t, err)
	require.Equal(t, "addit", fn.Name())
	require.Equal(t, 1, len(fn.Blocks))
}

// TestLowerFunction_legacyBodyForm exercises the single-block
// fields.body path (SPEC_FULL.md §4, "legacy single-block form").
func TestLowerFunction_legacyBodyForm(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":42}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","body":20}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(30))
	require.NoError(t, err)
	require.Equal(t, "zir_main", fn.Name())
	require.Equal(t, 1, len(fn.Blocks))
}

// TestLowerFunction_switchDispatch grounds spec.md §8 scenario 5: a
// two-way (plus default) switch whose case 2 and 7 targets return 20 and
// 99 respectively.
func TestLowerFunction_switchDispatch(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[1],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"bparam","type_ref":1}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"term.switch","fields":{"scrut":1,"default":{"to":60},"cases":[{"lit":100,"to":40},{"lit":101,"to":50}]}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"params":[1],"stmts":[3]}}
{"ir":"sir-v1.0","k":"node","id":100,"tag":"const.i32","type_ref":1,"fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":101,"tag":"const.i32","type_ref":1,"fields":{"value":7}}
{"ir":"sir-v1.0","k":"node","id":41,"tag":"const.i32","type_ref":1,"fields":{"value":20}}
{"ir":"sir-v1.0","k":"node","id":42,"tag":"return","fields":{"value":41}}
{"ir":"sir-v1.0","k":"node","id":40,"tag":"block","fields":{"stmts":[41,42]}}
{"ir":"sir-v1.0","k":"node","id":51,"tag":"const.i32","type_ref":1,"fields":{"value":99}}
{"ir":"sir-v1.0","k":"node","id":52,"tag":"return","fields":{"value":51}}
{"ir":"sir-v1.0","k":"node","id":50,"tag":"block","fields":{"stmts":[51,52]}}
{"ir":"sir-v1.0","k":"node","id":61,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":62,"tag":"return","fields":{"value":61}}
{"ir":"sir-v1.0","k":"node","id":60,"tag":"block","fields":{"stmts":[61,62]}}
{"ir":"sir-v1.0","k":"node","id":200,"tag":"fn","type_ref":2,"fields":{"name":"dispatch","entry":10,"blocks":[10,40,50,60]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(200))
	require.NoError(t, err)
	require.Equal(t, "dispatch", fn.Name())
	require.Equal(t, 4, len(fn.Blocks))
}

// TestLowerFunction_callArityMismatchRejected grounds spec.md §8
// scenario 6: calling a function with fewer args than its declared
// signature fails with a non-empty diagnostic.
func TestLowerFunction_callArityMismatchRejected(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[1,1],"ret":1}
{"ir":"sir-v1.0","k":"type","id":3,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"name","fields":{"name":"callee"}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"call","type_ref":1,"fields":{"fn":1,"args":[2]}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"return","fields":{"value":3}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[2,3,4]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":2,"fields":{"name":"callee","entry":30,"blocks":[30]}}
{"ir":"sir-v1.0","k":"node","id":31,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":32,"tag":"return","fields":{"value":31}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"block","fields":{"stmts":[31,32]}}
{"ir":"sir-v1.0","k":"node","id":40,"tag":"fn","type_ref":3,"fields":{"name":"caller","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	_, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	_, err = m.LowerFunction(p.GetNode(40))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.nir.call.arity"))
}

func TestLowerFunction_divByZeroTrapGuard(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"const.i32","type_ref":1,"fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"i32.div.s.trap","type_ref":1,"fields":{"args":[1,2]}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"return","fields":{"value":3}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[1,2,3,4]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":2,"fields":{"name":"divtest","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	// The trapping guard introduces two extra blocks (trap + ok) beyond
	// the original single declared block.
	require.Equal(t, 3, len(fn.Blocks))
}

// TestLowerFunction_satDivIntroducesDiamond grounds spec.md §4.G's
// div.s.sat: the zero/chk/over/norm/merge diamond adds five blocks beyond
// the function's one declared block.
func TestLowerFunction_satDivIntroducesDiamond(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"const.i32","type_ref":1,"fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":0}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"i32.div.s.sat","type_ref":1,"fields":{"args":[1,2]}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"return","fields":{"value":3}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[1,2,3,4]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":2,"fields":{"name":"divsat","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	require.Equal(t, 6, len(fn.Blocks))
}

// TestLowerFunction_truncSatIntroducesDiamond grounds spec.md §4.G's
// trunc_sat_f32.s: the nan/chk1/min/chk2/max/conv/merge diamond adds seven
// blocks beyond the function's one declared block.
func TestLowerFunction_truncSatIntroducesDiamond(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"prim","name":"f32"}
{"ir":"sir-v1.0","k":"type","id":3,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"const.f32","type_ref":2,"fields":{"bits":"0x41200000"}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"i32.trunc_sat_f32.s","type_ref":1,"fields":{"args":[1]}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"return","fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[1,2,3]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":3,"fields":{"name":"truncsat","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	require.Equal(t, 8, len(fn.Blocks))
}

// TestLowerFunction_rotlUsesFshlIntrinsic grounds spec.md §4.G's rotl,
// which lowers to a masked llvm.fshl.i32 call rather than a shift pair.
func TestLowerFunction_rotlUsesFshlIntrinsic(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"const.i32","type_ref":1,"fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","type_ref":1,"fields":{"value":4}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"i32.rotl","type_ref":1,"fields":{"args":[1,2]}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"return","fields":{"value":3}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"stmts":[1,2,3,4]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":2,"fields":{"name":"rotltest","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	require.Equal(t, 1, len(fn.Blocks))
	var found bool
	for _, f := range m.M.Funcs {
		if f.Name() == "llvm.fshl.i32" {
			found = true
		}
	}
	require.True(t, found)
}

// TestLowerFunction_loadMisalignedGuardIntroducesDiamond grounds spec.md
// §4.G's load.T alignment-trap guard: an explicit align>1 adds a
// trap/ok diamond beyond the function's one declared block.
func TestLowerFunction_loadMisalignedGuardIntroducesDiamond(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":1}
{"ir":"sir-v1.0","k":"type","id":3,"kind":"fn","params":[2],"ret":1}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"bparam","type_ref":2}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"load.i32","type_ref":1,"fields":{"addr":1,"align":4}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"return","fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"params":[1],"stmts":[2,3]}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"fn","type_ref":3,"fields":{"name":"loadtest","entry":10,"blocks":[10]}}
`
	p := loadProg(t, src)
	m := NewModule(p, layout.DefaultABI())
	fn, err := m.LowerFunction(p.GetNode(20))
	require.NoError(t, err)
	require.Equal(t, 3, len(fn.Blocks))
}
