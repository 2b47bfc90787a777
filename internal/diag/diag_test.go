package diag

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/testing/require"
)

func TestBus_accumulatesWithoutAborting(t *testing.T) {
	b := New("sircc")
	b.Errorf("sircc.cfg.block.term.missing", "block %d missing terminator", 3)
	b.Errorf("sircc.feature.gate", "simd:v1 required")
	require.True(t, b.HasErrors())
	require.Equal(t, 2, len(b.Diagnostics()))
	require.Equal(t, 1, b.ExitCode())
}

func TestBus_internalExitClass(t *testing.T) {
	b := New("sircc")
	b.Internal("sircc.oom", "allocation failed")
	require.Equal(t, 2, b.ExitCode())
}

func TestBus_aboutStackScoping(t *testing.T) {
	b := New("sircc")
	func() {
		defer b.PushAbout(About{Kind: "node", ID: 7, Tag: "term.br"})()
		b.Errorf("sircc.cfg.block.term.missing", "bad terminator")
	}()
	b.Errorf("sircc.feature.gate", "no about frame here")

	ds := b.Diagnostics()
	require.NotNil(t, ds[0].About)
	require.Equal(t, int64(7), ds[0].About.ID)
	require.Nil(t, ds[1].About)
}

func TestBus_writeText(t *testing.T) {
	b := New("sircc")
	b.Errorf("sircc.cfg.block.term.missing", "block 3 missing terminator")
	var out strings.Builder
	b.WriteText(&out)
	require.Equal(t, "sircc: block 3 missing terminator\n", out.String())
}

func TestBus_writeJSON(t *testing.T) {
	b := New("sircc")
	func() {
		defer b.PushAbout(About{Kind: "node", ID: 1})()
		b.Errorf("sircc.feature.gate", "bad")
	}()
	var out strings.Builder
	b.WriteJSON(&out)
	require.Contains(t, out.String(), `"code":"sircc.feature.gate"`)
	require.Contains(t, out.String(), `"about":{"kind":"node","id":1}`)
}
