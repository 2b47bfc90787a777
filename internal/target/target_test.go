package target

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/testing/require"
)

func TestResolve_defaultsToHostTriple(t *testing.T) {
	info, err := Resolve(sir.Target{})
	require.NoError(t, err)
	require.Equal(t, HostTriple(), info.Triple)
	require.True(t, info.PtrBits == 32 || info.PtrBits == 64)
}

func TestResolve_acceptsMatchingDeclaration(t *testing.T) {
	info, err := Resolve(sir.Target{
		Triple: "x86_64-unknown-linux-gnu",
		PtrBits: 64, PtrBitsSet: true,
		Endian: "little", EndianSet: true,
		StructAlign: "max", StructAlignSet: true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(64), info.PtrBits)
	require.Equal(t, int64(8), info.ABI.PtrBytes)
}

func TestResolve_rejectsPtrBitsMismatch(t *testing.T) {
	_, err := Resolve(sir.Target{Triple: "x86_64-unknown-linux-gnu", PtrBits: 32, PtrBitsSet: true})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.target.align.mismatch"))
}

func TestResolve_rejectsNonMaxStructAlign(t *testing.T) {
	_, err := Resolve(sir.Target{Triple: "x86_64-unknown-linux-gnu", StructAlign: "packed", StructAlignSet: true})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.target.struct_align.bad"))
}

func TestResolve_rejectsUnknownTriple(t *testing.T) {
	_, err := Resolve(sir.Target{Triple: "nonsense-triple"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sircc.target.unknown_triple"))
}

func TestResolve_i386HasNarrowerPointer(t *testing.T) {
	info, err := Resolve(sir.Target{Triple: "i386-unknown-linux-gnu"})
	require.NoError(t, err)
	require.Equal(t, int64(32), info.PtrBits)
	require.Equal(t, int64(4), info.ABI.PtrBytes)
}
