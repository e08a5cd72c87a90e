package taint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) *Result {
	t.Helper()
	res, err := New(nil).Analyze(context.Background(), src)
	require.NoError(t, err)
	return res
}

func TestEvalFromLocation(t *testing.T) {
	res := analyze(t, "const u = location.hash;\neval(u);")

	require.Len(t, res.TaintPaths, 1)
	p := res.TaintPaths[0]
	assert.Equal(t, KindUserInput, p.Source.Kind)
	assert.Equal(t, SinkEval, p.Sink.Kind)
	assert.Equal(t, []int{1, 2}, p.Lines)
}

func TestSanitizedFlowEmitsNoPath(t *testing.T) {
	src := "const u = location.hash;\n" +
		"const safe = encodeURIComponent(u);\n" +
		"document.body.innerHTML = safe;"
	res := analyze(t, src)
	assert.Empty(t, res.TaintPaths)
}

func TestUnsanitizedHTMLSink(t *testing.T) {
	src := "const u = location.search;\ndocument.body.innerHTML = u;"
	res := analyze(t, src)

	require.Len(t, res.TaintPaths, 1)
	assert.Equal(t, SinkHTML, res.TaintPaths[0].Sink.Kind)
}

func TestPropagationThroughCopiesAndConcat(t *testing.T) {
	src := "const a = document.cookie;\n" +
		"const b = a;\n" +
		"const c = 'prefix-' + b;\n" +
		"eval(c);"
	res := analyze(t, src)

	require.Len(t, res.TaintPaths, 1)
	assert.Equal(t, KindUserInput, res.TaintPaths[0].Source.Kind)
	assert.Equal(t, 4, res.TaintPaths[0].Sink.Location)
}

func TestReassignmentClearsTaint(t *testing.T) {
	src := "let u = location.hash;\nu = 'constant';\neval(u);"
	res := analyze(t, src)
	assert.Empty(t, res.TaintPaths, "rebinding to a literal erases taint")
}

func TestStorageSourceToFunctionConstructor(t *testing.T) {
	src := "const payload = localStorage.getItem('code');\nconst f = Function(payload);"
	res := analyze(t, src)

	require.Len(t, res.TaintPaths, 1)
	assert.Equal(t, KindStorage, res.TaintPaths[0].Source.Kind)
	assert.Equal(t, SinkFunction, res.TaintPaths[0].Sink.Kind)
}

func TestSQLStyleMemberSink(t *testing.T) {
	src := "const q = location.search;\ndb.query(q);"
	res := analyze(t, src)

	require.Len(t, res.TaintPaths, 1)
	assert.Equal(t, SinkSQL, res.TaintPaths[0].Sink.Kind)
}

func TestMethodCallOnTaintedValueStaysTainted(t *testing.T) {
	src := "const u = location.hash;\nconst v = u.slice(1);\neval(v);"
	res := analyze(t, src)
	require.Len(t, res.TaintPaths, 1)
}

func TestDedupeBySourceAndSinkLine(t *testing.T) {
	src := "const u = location.hash;\neval(u); eval(u);"
	res := analyze(t, src)
	assert.Len(t, res.TaintPaths, 1, "same (source,sink) line pair reports once")
}

func TestGraphShape(t *testing.T) {
	res := analyze(t, "const u = location.hash;\neval(u);")

	assert.NotEmpty(t, res.Graph.Nodes)
	require.Len(t, res.Graph.Edges, 1)
	assert.Contains(t, res.Graph.Edges[0].From, "source")
	assert.Contains(t, res.Graph.Edges[0].To, "sink")
}

func TestRuntimeSanitizerExtension(t *testing.T) {
	src := "const u = location.hash;\nconst s = myEscape(u);\neval(s);"

	res := analyze(t, src)
	assert.Len(t, res.TaintPaths, 1, "unknown callee propagates its tainted argument")

	res2, err := New(nil).WithSanitizers("myEscape").Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, res2.TaintPaths)
}

func TestTimerWithStringArgument(t *testing.T) {
	src := "const u = location.hash;\nsetTimeout(u, 100);"
	res := analyze(t, src)
	require.Len(t, res.TaintPaths, 1)
	assert.Equal(t, SinkTimer, res.TaintPaths[0].Sink.Kind)
}
