package deobfuscate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/jsast"
)

func runPipeline(t *testing.T, source string, opts Options) *Result {
	t.Helper()
	return New(nil).Deobfuscate(context.Background(), source, opts)
}

func findRecord(res *Result, kind string) *Transformation {
	for i := range res.Transformations {
		if res.Transformations[i].Kind == kind {
			return &res.Transformations[i]
		}
	}
	return nil
}

func TestStringArrayDecryption(t *testing.T) {
	src := `var _0xabcd=['hello','world'];console[_0xabcd[0]](_0xabcd[1]);`
	res := runPipeline(t, src, Options{})

	extract := findRecord(res, "extract-string-arrays")
	require.NotNil(t, extract)
	assert.True(t, extract.Success)
	assert.Equal(t, 1, extract.Count)

	decrypt := findRecord(res, "decrypt-arrays")
	require.NotNil(t, decrypt)
	assert.True(t, decrypt.Success)
	assert.GreaterOrEqual(t, decrypt.Count, 1)

	assert.Contains(t, res.Source, "console['hello']('world')")
	assert.NotContains(t, res.Source, "_0xabcd[0]")
	assert.GreaterOrEqual(t, res.Confidence, 0.5)

	// Output still parses.
	tree, err := jsast.Parse(res.Source)
	require.NoError(t, err)
	assert.Empty(t, tree.Errors)
	tree.Close()
}

func TestDeadCodeElimination(t *testing.T) {
	src := `function t(){if(false){x=1;}else{x=2;}return 3;var y=4;}`
	res := runPipeline(t, src, Options{})

	basic := findRecord(res, "basic-ast-transform")
	require.NotNil(t, basic)
	assert.True(t, basic.Success)
	assert.GreaterOrEqual(t, basic.Count, 2)

	assert.Contains(t, res.Source, "x=2;")
	assert.Contains(t, res.Source, "return 3;")
	assert.NotContains(t, res.Source, "x=1")
	assert.NotContains(t, res.Source, "var y=4")
}

func TestConstantFoldingCascades(t *testing.T) {
	src := `var a = 1 + 2; if (3 < 4) { keep(); } var s = 'ab' + 'cd';`
	res := runPipeline(t, src, Options{})

	assert.Contains(t, res.Source, "var a = 3;")
	assert.Contains(t, res.Source, "keep();")
	assert.Contains(t, res.Source, "'abcd'")
	assert.NotContains(t, res.Source, "3 < 4")
}

func TestOpaquePredicates(t *testing.T) {
	src := `if(!![]){run();}var flag = ![];`
	res := runPipeline(t, src, Options{})

	assert.Contains(t, res.Source, "run();")
	assert.NotContains(t, res.Source, "!![]")
	assert.Contains(t, res.Source, "var flag = false;")
}

func TestStringDecoding(t *testing.T) {
	src := `var a = '\x68\x69';var b = String.fromCharCode(104,105);`
	res := runPipeline(t, src, Options{})

	decode := findRecord(res, "decode-strings")
	require.NotNil(t, decode)
	assert.True(t, decode.Success)
	assert.Equal(t, 2, decode.Count)
	assert.Equal(t, 2, strings.Count(res.Source, "'hi'"))
}

func TestRotationIIFERemoved(t *testing.T) {
	src := `var _0x1a=['a','b','c'];` +
		`(function(arr,n){while(!![]){try{arr.push(arr.shift());n--;if(!n)break;}catch(e){arr.push(arr.shift());}}})(_0x1a,2);` +
		`use(_0x1a[0]);`
	res := runPipeline(t, src, Options{})

	rot := findRecord(res, "remove-array-rotation")
	require.NotNil(t, rot)
	assert.True(t, rot.Success)
	assert.Equal(t, 1, rot.Count)
	assert.NotContains(t, res.Source, "push")
}

func TestRenameMangledIdentifiers(t *testing.T) {
	src := `var _0xdead = 1; function f(){ return _0xdead + _0xbeef; } var _0xbeef = 2;`
	res := runPipeline(t, src, Options{Rename: true})

	ren := findRecord(res, "rename-identifiers")
	require.NotNil(t, ren)
	assert.True(t, ren.Success)
	assert.NotContains(t, res.Source, "_0xdead")
	assert.NotContains(t, res.Source, "_0xbeef")
	assert.Contains(t, res.Source, "var_0")
	assert.Contains(t, res.Source, "var_1")

	// Same name resolves to the same placeholder in every scope.
	assert.Equal(t, 2, strings.Count(res.Source, "var_0 "))
}

func TestEmptySource(t *testing.T) {
	res := runPipeline(t, "", Options{})

	assert.Equal(t, "", res.Source)
	assert.GreaterOrEqual(t, res.Confidence, 0.1)
	for _, rec := range res.Transformations {
		if rec.Success {
			assert.Zero(t, rec.Count)
		}
	}
}

func TestUnchangedPassesRecordZeroCountOrFailure(t *testing.T) {
	res := runPipeline(t, "function clean(a, b) { return a + b; }", Options{})
	for _, rec := range res.Transformations {
		if rec.Count == 0 || !rec.Success {
			continue
		}
		t.Errorf("pass %s claims success with count %d on clean code", rec.Kind, rec.Count)
	}
}

func TestSecondRunIsQuiescent(t *testing.T) {
	src := `var _0xabcd=['hello','world'];console[_0xabcd[0]](_0xabcd[1]);if(false){dead();}`
	first := runPipeline(t, src, Options{})
	second := runPipeline(t, first.Source, Options{})

	effective := 0
	for _, rec := range second.Transformations {
		if rec.Success && rec.Count > 0 {
			effective++
		}
	}
	assert.LessOrEqual(t, effective, 1, "a clean second run performs at most one transform")
}

func TestUnflattenWithoutModelRecordsUnresolved(t *testing.T) {
	src := `var s=0;while(!![]){switch(s){case 0:a();s=1;break;case 1:b();s=2;break;default:run();s=99;break;}}`
	res := runPipeline(t, src, Options{Aggressive: true})

	unflatten := findRecord(res, "unflatten")
	require.NotNil(t, unflatten)
	assert.False(t, unflatten.Success, "no model: flattened loop is recorded, not resolved")
	assert.Contains(t, res.Source, "switch", "source left unchanged")
}

func TestConfidenceBounds(t *testing.T) {
	res := runPipeline(t, "var x = 1;", Options{})
	assert.GreaterOrEqual(t, res.Confidence, 0.1)
	assert.LessOrEqual(t, res.Confidence, 0.95)
}
