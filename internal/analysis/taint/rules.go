package taint

import "strings"

// Source kinds.
const (
	KindUserInput = "user-input"
	KindNetwork   = "network"
	KindStorage   = "storage"
	KindMessage   = "message"
	KindDOM       = "dom"
)

// Sink kinds.
const (
	SinkEval       = "eval"
	SinkFunction   = "function-constructor"
	SinkTimer      = "timer-string"
	SinkHTML       = "html"
	SinkSQL        = "sql"
	SinkCommand    = "command"
	SinkFilesystem = "filesystem"
)

// sourcePaths maps member paths that introduce untrusted data to their
// kind. Matched against the flattened member chain.
var sourcePaths = map[string]string{
	"location.hash":     KindUserInput,
	"location.search":   KindUserInput,
	"location.href":     KindUserInput,
	"location.pathname": KindUserInput,
	"document.cookie":   KindUserInput,
	"document.URL":      KindUserInput,
	"document.referrer": KindUserInput,
	"window.name":       KindUserInput,
	"event.data":        KindMessage,
	"e.data":            KindMessage,
	"message.data":      KindMessage,
	"msg.data":          KindMessage,
}

// sourcePrefixes catch deeper accesses (location.hash.slice -> the
// location.hash prefix taints the whole chain).
var sourcePrefixes = map[string]string{
	"location.":       KindUserInput,
	"localStorage.":   KindStorage,
	"sessionStorage.": KindStorage,
}

// sourceCalls maps called function names to source kinds: the call's
// result is tainted.
var sourceCalls = map[string]string{
	"fetch":                       KindNetwork,
	"axios.get":                   KindNetwork,
	"axios.post":                  KindNetwork,
	"axios.request":               KindNetwork,
	"$.ajax":                      KindNetwork,
	"$.get":                       KindNetwork,
	"$.post":                      KindNetwork,
	"localStorage.getItem":        KindStorage,
	"sessionStorage.getItem":      KindStorage,
	"document.querySelector":      KindDOM,
	"document.querySelectorAll":   KindDOM,
	"document.getElementById":     KindDOM,
	"document.getElementsByName":  KindDOM,
}

// sourceConstructors taint via `new X(...)` results.
var sourceConstructors = map[string]string{
	"XMLHttpRequest": KindNetwork,
	"WebSocket":      KindNetwork,
}

// htmlSinkProps are member properties whose assignment is an HTML sink.
var htmlSinkProps = map[string]bool{
	"innerHTML": true,
	"outerHTML": true,
	"srcdoc":    true,
}

// sinkCalls maps callee names to sink kinds for direct calls.
var sinkCalls = map[string]string{
	"eval":             SinkEval,
	"Function":         SinkFunction,
	"document.write":   SinkHTML,
	"document.writeln": SinkHTML,
	"execScript":       SinkEval,
}

// sqlMethodNames are method names that form a SQL-style sink when
// invoked on a member expression (db.query, conn.execute, ...).
var sqlMethodNames = map[string]bool{
	"query":   true,
	"execute": true,
	"exec":    true,
	"run":     true,
}

// commandMethodNames are command-execution-style member sinks.
var commandMethodNames = map[string]bool{
	"execSync":  true,
	"spawn":     true,
	"spawnSync": true,
	"system":    true,
}

// fsMethodNames are filesystem-style member sinks.
var fsMethodNames = map[string]bool{
	"writeFile":     true,
	"writeFileSync": true,
	"appendFile":    true,
	"readFile":      true,
	"readFileSync":  true,
	"unlink":        true,
	"createReadStream":  true,
	"createWriteStream": true,
}

// defaultSanitizers clear taint when their return value is bound. The
// set is extensible at runtime via WithSanitizers.
var defaultSanitizers = map[string]bool{
	"encodeURIComponent":  true,
	"encodeURI":           true,
	"escape":              true,
	"parseInt":            true,
	"parseFloat":          true,
	"Number":              true,
	"String":              true,
	"Boolean":             true,
	"JSON.parse":          true,
	"JSON.stringify":      true,
	"DOMPurify.sanitize":  true,
	"validator.escape":    true,
	"validator.isAlphanumeric": true,
	"crypto.subtle.digest":     true,
	"btoa":                true,
	"db.prepare":          true,
}

// timerNames are the string-argument timer sinks.
var timerNames = map[string]bool{
	"setTimeout":  true,
	"setInterval": true,
}

// matchSourcePath resolves a member path against the source tables.
func matchSourcePath(path string) (string, bool) {
	if kind, ok := sourcePaths[path]; ok {
		return kind, true
	}
	for prefix, kind := range sourcePrefixes {
		if strings.HasPrefix(path, prefix) {
			return kind, true
		}
	}
	return "", false
}
