package validate

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

func TestValidator_acceptsWellFormedCFG(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":42}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"return","fields":{"value":10}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","fields":{"name":"main","entry":20,"blocks":[20]}}
`
	p := loadProg(t, src)
	v := New(p)
	require.True(t, v.Run())
	require.False(t, p.Bus.HasErrors())
}

func TestValidator_rejectsMissingTerminator(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":42}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","fields":{"name":"main","entry":20,"blocks":[20]}}
`
	p := loadProg(t, src)
	v := New(p)
	require.False(t, v.Run())
	require.True(t, p.Bus.HasErrors())
	require.Equal(t, "sircc.cfg.block.term.missing", p.Bus.Diagnostics()[0].Code)
}

func TestValidator_rejectsBranchArityMismatch(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"bparam","type_ref":1}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"return","fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"block","fields":{"params":[1],"stmts":[2]}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"term.br","fields":{"to":3,"args":[]}}
{"ir":"sir-v1.0","k":"node","id":5,"tag":"block","fields":{"stmts":[4]}}
{"ir":"sir-v1.0","k":"node","id":6,"tag":"fn","fields":{"name":"main","entry":5,"blocks":[5,3]}}
`
	p := loadProg(t, src)
	v := New(p)
	require.False(t, v.Run())
	found := false
	for _, d := range p.Bus.Diagnostics() {
		if d.Code == "sircc.cfg.branch.arity" {
			found = true
		}
	}
	require.True(t, found)
}

// Scenario 6 of spec.md §8: a call with fewer args than the callee
// signature fails validation with a non-empty code and message. The
// validator itself checks CFG shape; call-arity is cross-checked during
// native-IR lowering (spec.md §4.G, "arg count must match exactly"), so
// this is exercised again in internal/nir; here we only assert the
// feature-gate/CFG layer doesn't silently accept garbage fields.
func TestValidator_rejectsUnknownBlockRef(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"fn","fields":{"name":"main","entry":99,"blocks":[99]}}
`
	p := loadProg(t, src)
	v := New(p)
	require.False(t, v.Run())
	require.True(t, p.Bus.HasErrors())
}

func TestValidator_featureGateVec(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"vec","lane":1,"lanes":4}
`
	p := loadProg(t, src)
	v := New(p)
	require.False(t, v.Run())
	require.Equal(t, "sircc.feature.gate", p.Bus.Diagnostics()[0].Code)
}

func TestValidator_closureRequiresFunDependency(t *testing.T) {
	p := sir.NewProgram()
	p.Features.Closure = true
	v := New(p)
	v.Run()
	require.True(t, p.Bus.HasErrors())
	require.Equal(t, "sircc.feature.dep", p.Bus.Diagnostics()[0].Code)
}
