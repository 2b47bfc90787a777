package lowerhl

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

func TestLower_semIfToSelect(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","ext":{"features":["sem:v1"]}}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"name","fields":{"name":"cond"}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i32","fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"const.i32","fields":{"value":2}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"sem.if","fields":{"args":[1,{"kind":"val","v":2},{"kind":"val","v":3}]}}
`
	p := loadProg(t, src)
	require.True(t, p.Features.Sem)
	err := Lower(p)
	require.NoError(t, err)

	n := p.GetNode(4)
	require.Equal(t, "select", n.Tag)
	args := n.Fields.Get("args")
	require.True(t, args.IsArray())
	require.Len(t, args.Items, 3)
	id0, _ := sir.ParseRef(args.Items[0])
	require.Equal(t, int64(1), id0)
}

func TestLower_semIfRejectsNonValBranch(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","ext":{"features":["sem:v1"]}}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"name","fields":{"name":"cond"}}
{"ir":"sir-v1.0","k":"node","id":4,"tag":"sem.if","fields":{"args":[1,{"kind":"thunk"},{"kind":"val","v":1}]}}
`
	p := loadProg(t, src)
	err := Lower(p)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.lower_hl.sem.if.thunk_unsupported"))
}

func TestLower_semAndScToBoolAnd(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","ext":{"features":["sem:v1"]}}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"name","fields":{"name":"a"}}
{"ir":"sir-v1.0","k":"node","id":2,"tag":"name","fields":{"name":"b"}}
{"ir":"sir-v1.0","k":"node","id":3,"tag":"sem.and_sc","fields":{"args":[1,{"kind":"val","v":2}]}}
`
	p := loadProg(t, src)
	require.NoError(t, Lower(p))
	n := p.GetNode(3)
	require.Equal(t, "bool.and", n.Tag)
}

func TestLower_unsupportedSemForm(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","ext":{"features":["sem:v1","adt:v1"]}}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"sem.match_sum","fields":{}}
`
	p := loadProg(t, src)
	err := Lower(p)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.lower_hl.sem.unsupported"))
}

func TestLower_noopWithoutSemFeature(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"node","id":1,"tag":"sem.if","fields":{}}
`
	p := loadProg(t, src)
	require.NoError(t, Lower(p))
	require.Equal(t, "sem.if", p.GetNode(1).Tag)
}

func TestEmitCanonicalSIR_featureOrderAndRoundTrip(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","unit":"main","ext":{"features":["sem:v1","simd:v1","adt:v1"]}}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":9029}}
`
	p := loadProg(t, src)
	out := EmitCanonicalSIR(p)
	require.True(t, strings.Contains(out, `"producer":"sircc-lower-hl"`))
	// Ordered() must emit simd:v1 before adt:v1 before sem:v1 regardless of
	// declared order (compiler_lower_hl.c's emit_features fixed order).
	idxSimd := strings.Index(out, `"simd:v1"`)
	idxAdt := strings.Index(out, `"adt:v1"`)
	idxSem := strings.Index(out, `"sem:v1"`)
	require.True(t, idxSimd < idxAdt)
	require.True(t, idxAdt < idxSem)
	require.True(t, strings.Contains(out, `"tag":"const.i32"`))
	require.True(t, strings.Contains(out, `9029`))

	// Idempotence: re-running Lower + EmitCanonicalSIR on the re-parsed
	// output produces the same canonical form (spec.md §8, "Round trip").
	arena := sirjson.NewArena()
	lines, err := sirjson.ReadLines(arena, strings.NewReader(out))
	require.NoError(t, err)
	p2, err := sir.Load(lines)
	require.NoError(t, err)
	require.NoError(t, Lower(p2))
	out2 := EmitCanonicalSIR(p2)
	require.Equal(t, out, out2)
}
