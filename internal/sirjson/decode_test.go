package sirjson

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/testing/require"
)

func TestParse_preservesMemberOrder(t *testing.T) {
	arena := NewArena()
	v, err := Parse(arena, `{"id":3,"tag":"const.i32","fields":{"value":9029}}`)
	require.NoError(t, err)
	require.True(t, v.IsObject())
	require.Len(t, v.Members, 3)
	require.Equal(t, "id", v.Members[0].Key)
	require.Equal(t, "tag", v.Members[1].Key)
	require.Equal(t, "fields", v.Members[2].Key)

	tag := v.Get("tag")
	require.Equal(t, "const.i32", tag.String())

	id, ok := v.Get("id").Int64()
	require.True(t, ok)
	require.Equal(t, int64(3), id)
}

func TestParse_array(t *testing.T) {
	arena := NewArena()
	v, err := Parse(arena, `[1,2,3]`)
	require.NoError(t, err)
	require.True(t, v.IsArray())
	require.Len(t, v.Items, 3)
}

func TestParse_rejectsTrailingData(t *testing.T) {
	arena := NewArena()
	_, err := Parse(arena, `{} {}`)
	require.Error(t, err)
}

func TestHasOnlyKeys(t *testing.T) {
	arena := NewArena()
	v, err := Parse(arena, `{"a":1,"b":2}`)
	require.NoError(t, err)

	_, ok := v.HasOnlyKeys("a", "b")
	require.True(t, ok)

	bad, ok := v.HasOnlyKeys("a")
	require.False(t, ok)
	require.Equal(t, "b", bad)
}

func TestReadLines_skipsBlank(t *testing.T) {
	arena := NewArena()
	input := "{\"a\":1}\n\n{\"b\":2}\n"
	lines, err := ReadLines(arena, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, 1, lines[0].Num)
	require.Equal(t, 3, lines[1].Num)
}

func TestWriteEscaped(t *testing.T) {
	var b strings.Builder
	WriteEscaped(&b, "a\"b\nc")
	require.Equal(t, `"a\"b\nc"`, b.String())
}
