package envsim

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/jsast"
)

const probeScript = `
const ua = navigator.userAgent;
const w = screen.width;
if (window.innerWidth > 800) {
  console.log(location.href, document.title);
}
const secret = navigator.nonexistentProbe;
`

func TestDetectsAndGroupsPaths(t *testing.T) {
	res, err := New(nil, nil).Analyze(context.Background(), Request{Source: probeScript})
	require.NoError(t, err)

	assert.Contains(t, res.DetectedVariables["navigator"], "navigator.userAgent")
	assert.Contains(t, res.DetectedVariables["screen"], "screen.width")
	assert.Contains(t, res.DetectedVariables["window"], "window.innerWidth")
	assert.Contains(t, res.DetectedVariables["location"], "location.href")
	assert.Contains(t, res.DetectedVariables["document"], "document.title")
}

func TestManifestAndMissingAPIs(t *testing.T) {
	res, err := New(nil, nil).Analyze(context.Background(), Request{Source: probeScript})
	require.NoError(t, err)

	assert.NotEmpty(t, res.VariableManifest["navigator.userAgent"])
	assert.Contains(t, res.MissingAPIs, "navigator.nonexistentProbe")
	assert.Equal(t, res.Stats.Total, res.Stats.Filled+res.Stats.Manual)
	assert.NotEmpty(t, res.Recommendations)
}

func TestNodeShimEmission(t *testing.T) {
	res, err := New(nil, nil).Analyze(context.Background(), Request{
		Source:          probeScript,
		TargetRuntime:   RuntimeNodeJS,
		IncludeComments: true,
	})
	require.NoError(t, err)

	shim := res.EmulationCode.NodeJS
	assert.Contains(t, shim, "const __env = globalThis;")
	assert.Contains(t, shim, `__set("navigator.userAgent"`)
	assert.Empty(t, res.EmulationCode.Python)

	// The emitted shim must itself be parseable JavaScript.
	tree, perr := jsast.Parse(shim)
	require.NoError(t, perr)
	assert.Empty(t, tree.Errors)
	tree.Close()
}

func TestBothRuntimes(t *testing.T) {
	res, err := New(nil, nil).Analyze(context.Background(), Request{
		Source:        probeScript,
		TargetRuntime: RuntimeBoth,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EmulationCode.NodeJS)
	assert.Contains(t, res.EmulationCode.Python, "class JSObject(dict):")
	assert.Contains(t, res.EmulationCode.Python, `_set(window, "screen.width"`)
}

func TestFunctionMarkersEmitStubs(t *testing.T) {
	src := `document.createElement('div'); performance.now();`
	res, err := New(nil, nil).Analyze(context.Background(), Request{Source: src})
	require.NoError(t, err)
	assert.Contains(t, res.EmulationCode.NodeJS, "function createElement() {}")
}

type fakePage struct {
	values map[string]interface{}
}

func (f *fakePage) Evaluate(_ context.Context, _ string) (json.RawMessage, error) {
	data, err := json.Marshal(f.values)
	return data, err
}

func TestLiveExtractionOverlaysCatalog(t *testing.T) {
	page := &fakePage{values: map[string]interface{}{
		"navigator.userAgent":      "LiveAgent/1.0",
		"navigator.nonexistentProbe": "live-value",
	}}
	res, err := New(nil, page).Analyze(context.Background(), Request{
		Source:    probeScript,
		AutoFetch: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "LiveAgent/1.0", res.VariableManifest["navigator.userAgent"],
		"live values win over the static catalog")
	assert.NotContains(t, res.MissingAPIs, "navigator.nonexistentProbe")
}

func TestWindowPrefixNormalized(t *testing.T) {
	res, err := New(nil, nil).Analyze(context.Background(), Request{
		Source: `var x = window.navigator.userAgent;`,
	})
	require.NoError(t, err)

	var all []string
	for _, g := range res.DetectedVariables {
		all = append(all, g...)
	}
	assert.Contains(t, all, "navigator.userAgent")
	for _, p := range all {
		assert.False(t, strings.HasPrefix(p, "window.navigator"), "window prefix folds away")
	}
}
