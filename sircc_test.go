package sircc

import (
	"strings"
	"testing"

	"github.com/frogfishio/sircc/internal/testing/require"
)

const simpleProgram = `{"ir":"sir-v1.0","k":"meta","producer":"test"}
{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","name":"i32"}
{"ir":"sir-v1.0","k":"type","id":2,"kind":"fn","params":[],"ret":1}
{"ir":"sir-v1.0","k":"node","id":10,"tag":"const.i32","type_ref":1,"fields":{"value":41}}
{"ir":"sir-v1.0","k":"node","id":11,"tag":"const.i32","type_ref":1,"fields":{"value":1}}
{"ir":"sir-v1.0","k":"node","id":12,"tag":"i32.add","type_ref":1,"fields":{"args":[10,11]}}
{"ir":"sir-v1.0","k":"node","id":13,"tag":"return","fields":{"value":12}}
{"ir":"sir-v1.0","k":"node","id":20,"tag":"block","fields":{"stmts":[10,11,12,13]}}
{"ir":"sir-v1.0","k":"node","id":30,"tag":"fn","type_ref":2,"fields":{"name":"zir_main","entry":20,"blocks":[20]}}
`

func TestVerify_validProgramHasNoDiagnostics(t *testing.T) {
	res, err := Verify(strings.NewReader(simpleProgram))
	require.NoError(t, err)
	require.False(t, res.HasErrors())
	require.Equal(t, 6, len(res.Program.Nodes))
}

func TestCompile_canonicalSIRRoundTrips(t *testing.T) {
	res, err := Compile(strings.NewReader(simpleProgram), NewConfig().WithEmit(EmitCanonicalSIR))
	require.NoError(t, err)
	require.False(t, res.HasErrors())
	require.True(t, strings.Contains(res.CanonicalSIR, `"ir":"sir-v1.0"`))
}

func TestCompile_nativeIRLowersEveryFunction(t *testing.T) {
	res, err := Compile(strings.NewReader(simpleProgram), NewConfig().WithEmit(EmitNativeIR))
	require.NoError(t, err)
	require.False(t, res.HasErrors())
	require.True(t, strings.Contains(res.NativeIR, "zir_main"))
}

func TestCompile_zasmRequiresZirMain(t *testing.T) {
	res, err := Compile(strings.NewReader(simpleProgram), NewConfig().WithEmit(EmitZASM))
	require.NoError(t, err)
	require.False(t, res.HasErrors())
	require.True(t, strings.Contains(res.ZASM, `"d":"PUBLIC"`))
}

func TestCompile_badTargetTripleRecordsDiagnostic(t *testing.T) {
	src := strings.Replace(simpleProgram, `"k":"meta","producer":"test"}`,
		`"k":"meta","producer":"test"}
{"ir":"sir-v1.0","k":"meta","ext":{"target":{"triple":"bogus-triple"}}}`, 1)
	res, err := Compile(strings.NewReader(src), NewConfig().WithEmit(EmitNativeIR))
	require.NoError(t, err)
	require.True(t, res.HasErrors())
}
