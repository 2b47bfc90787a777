package sir

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/sirjson"
	"github.com/frogfishio/sircc/internal/testing/require"
)

func parseLines(t *testing.T, src string) []sirjson.Line {
	t.Helper()
	arena := sirjson.NewArena()
	lines, err := sirjson.ReadLines(arena, strings.NewReader(src))
	require.NoError(t, err)
	return lines
}

func TestLoad_metaAndFeatures(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","producer":"sircc","unit":"main","ext":{"features":["simd:v1","adt:v1"],"target":{"triple":"x86_64","ptrBits":64,"endian":"little"}}}
`
	p, err := Load(parseLines(t, src))
	require.NoError(t, err)
	require.Equal(t, "sircc", p.Meta.Producer)
	require.True(t, p.Features.Simd)
	require.True(t, p.Features.Adt)
	require.False(t, p.Features.Fun)
	require.True(t, p.Target.PtrBitsSet)
	require.Equal(t, int64(64), p.Target.PtrBits)
}

func TestLoad_typesSymsNodes(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":1}
{"ir":"sir-v1.0","k":"sym","id":5,"name":"g","type_ref":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":42}}
`
	p, err := Load(parseLines(t, src))
	require.NoError(t, err)
	require.Equal(t, KindPrim, p.Types[1].Kind)
	require.Equal(t, PrimI32, p.Types[1].Prim)
	require.Equal(t, int64(1), p.Types[2].Of)
	require.Equal(t, "g", p.Syms[5].Name)
	n := p.GetNode(10)
	require.Equal(t, "const.i32", n.Tag)
	val, ok := n.Fields.Get("value").Int64()
	require.True(t, ok)
	require.Equal(t, int64(42), val)
}

func TestLoad_refObjectForm(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":{"ref":1}}
`
	p, err := Load(parseLines(t, src))
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Types[2].Of)
}

func TestLoad_rejectsBadIR(t *testing.T) {
	src := `{"ir":"sir-v0.9","k":"meta"}
`
	_, err := Load(parseLines(t, src))
	require.Error(t, err)
}
