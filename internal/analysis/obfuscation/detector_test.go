package obfuscation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectStringArray(t *testing.T) {
	src := `var _0xabcd=['hello','world'];console[_0xabcd[0]](_0xabcd[1]);`
	res := Detect(src)

	assert.Contains(t, res.Types, FamilyStringArray)
	assert.Contains(t, res.Types, FamilyHexIdentifiers)
	assert.Equal(t, 0.9, res.Confidence[FamilyStringArray])
	assert.NotEmpty(t, res.Recommendations)
}

func TestDetectRotationIIFE(t *testing.T) {
	src := `var _0x1=['a','b'];(function(arr,n){while(!![]){try{arr.push(arr.shift());n--;}catch(e){}}})( _0x1, 3);`
	res := Detect(src)
	assert.Contains(t, res.Types, FamilyStringArrayRotation)
}

func TestDetectControlFlowFlattening(t *testing.T) {
	src := `var state=0;while(!![]){switch(state){case 0: a(); state=2; break; case 2: b(); state=1; break; default: return;}}`
	res := Detect(src)
	assert.Contains(t, res.Types, FamilyControlFlow)
}

func TestDetectPacker(t *testing.T) {
	src := `eval(function(p,a,c,k,e,d){while(c--)d[c]=k[c]||c;return p}('x',62,2,'a|b'.split('|'),0,{}))`
	res := Detect(src)
	assert.Contains(t, res.Types, FamilyPacker)
	assert.Contains(t, res.Types, FamilyEvalChain)
}

func TestVMProtectionRequiresCoOccurrence(t *testing.T) {
	// A plain switch is not a VM.
	res := Detect(`switch(x){case 1: a(); break; default: b();}`)
	assert.NotContains(t, res.Types, FamilyVMProtection)

	// Switch + bytecode array + pc increment is.
	nums := make([]string, 64)
	for i := range nums {
		nums[i] = fmt.Sprint(i * 7 % 255)
	}
	var cases strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&cases, "case %d: r=%d; break;", i, i)
	}
	src := fmt.Sprintf(`var code=[%s];var pc=0;function run(){while(true){switch(code[pc++]){%s}}}`,
		strings.Join(nums, ","), cases.String())

	res = Detect(src)
	require.Contains(t, res.Types, FamilyVMProtection)
	require.NotNil(t, res.VMFeatures)
	assert.True(t, res.VMFeatures.HasSwitch)
	assert.True(t, res.VMFeatures.HasInstructionArray)
	assert.True(t, res.VMFeatures.HasProgramCounter)
	assert.GreaterOrEqual(t, res.VMFeatures.InstructionCount, 12)
	assert.NotEmpty(t, res.VMFeatures.InterpreterLocation)
}

func TestDetectDebuggerTraps(t *testing.T) {
	res := Detect(`setInterval(function(){debugger;},100);`)
	assert.Contains(t, res.Types, FamilyDebuggerTraps)
}

func TestUnknownFallback(t *testing.T) {
	res := Detect(`function add(a, b) { return a + b; }`)
	assert.Equal(t, []string{FamilyUnknown}, res.Types)
	assert.Equal(t, 0.5, res.Confidence[FamilyUnknown])
	assert.Nil(t, res.VMFeatures)
}

func TestDetectDomainLock(t *testing.T) {
	res := Detect(`if(location.hostname!=='example.com'){throw new Error('nope');}`)
	assert.Contains(t, res.Types, FamilyDomainLock)
}

func TestDetectCharCodeConcealing(t *testing.T) {
	res := Detect(`var s=String.fromCharCode(104,101,108,108,111);`)
	assert.Contains(t, res.Types, FamilyCharCodeConcealing)
}
