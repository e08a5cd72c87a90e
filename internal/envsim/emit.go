package envsim

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxEmitDepth caps value rendering recursion; deeper structures and
// circular references render as empty objects.
const maxEmitDepth = 6

var functionMarker = regexp.MustCompile(`^\[Function(?::\s*(\w+))?\]$`)

// emitNodeJS renders the manifest as a Node.js prelude: a boilerplate
// block installing the globals plus one assignment per entry.
func emitNodeJS(manifest map[string]interface{}, comments bool) string {
	var b strings.Builder
	if comments {
		b.WriteString("// Browser environment shim. Load before the target script:\n")
		b.WriteString("//   node --require ./env.js target.js\n")
	}
	b.WriteString(`const __env = globalThis;
__env.window = __env;
__env.self = __env;
function __set(path, value) {
  const segs = path.split('.');
  let cur = __env;
  for (let i = 0; i < segs.length - 1; i++) {
    if (typeof cur[segs[i]] !== 'object' || cur[segs[i]] === null) cur[segs[i]] = {};
    cur = cur[segs[i]];
  }
  if (cur[segs[segs.length - 1]] === undefined) cur[segs[segs.length - 1]] = value;
}
`)

	for _, path := range sortedKeys(manifest) {
		clean := strings.TrimPrefix(path, "window.")
		if clean == "window" || clean == "" {
			continue
		}
		if comments {
			fmt.Fprintf(&b, "// %s\n", path)
		}
		fmt.Fprintf(&b, "__set(%q, %s);\n", clean, renderJS(manifest[path], 0))
	}
	return b.String()
}

// emitPython renders the manifest as nested attribute-dicts for use
// with an embedded JS engine or request-replay scripts.
func emitPython(manifest map[string]interface{}, comments bool) string {
	var b strings.Builder
	if comments {
		b.WriteString("# Browser environment shim: nested attribute-dicts mirroring window.*\n")
	}
	b.WriteString(`class JSObject(dict):
    def __getattr__(self, name):
        return self.get(name)

    def __setattr__(self, name, value):
        self[name] = value


def _set(root, path, value):
    segs = path.split(".")
    cur = root
    for seg in segs[:-1]:
        if not isinstance(cur.get(seg), JSObject):
            cur[seg] = JSObject()
        cur = cur[seg]
    cur.setdefault(segs[-1], value)


window = JSObject()
`)

	for _, path := range sortedKeys(manifest) {
		clean := strings.TrimPrefix(path, "window.")
		if clean == "window" || clean == "" {
			continue
		}
		fmt.Fprintf(&b, "_set(window, %q, %s)\n", clean, renderPython(manifest[path], 0))
	}
	b.WriteString("\nnavigator = window.navigator\ndocument = window.document\nlocation = window.location\nscreen = window.screen\n")
	return b.String()
}

func renderJS(v interface{}, depth int) string {
	if depth > maxEmitDepth {
		return "{}"
	}
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		if m := functionMarker.FindStringSubmatch(val); m != nil {
			name := m[1]
			if name == "" {
				return "function () {}"
			}
			return fmt.Sprintf("function %s() {}", name)
		}
		data, _ := json.Marshal(val)
		return string(data)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for i := range val {
			parts = append(parts, renderJS(val[i], depth+1))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		// Values arrive JSON-decoded, so cycles cannot occur; the depth
		// cap alone bounds recursion.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			kq, _ := json.Marshal(k)
			parts = append(parts, fmt.Sprintf("%s: %s", kq, renderJS(val[k], depth+1)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "null"
		}
		return string(data)
	}
}

func renderPython(v interface{}, depth int) string {
	if depth > maxEmitDepth {
		return "JSObject()"
	}
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		if m := functionMarker.FindStringSubmatch(val); m != nil {
			return "lambda *a, **k: None"
		}
		data, _ := json.Marshal(val)
		return string(data)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for i := range val {
			parts = append(parts, renderPython(val[i], depth+1))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			kq, _ := json.Marshal(k)
			parts = append(parts, fmt.Sprintf("%s: %s", kq, renderPython(val[k], depth+1)))
		}
		return "JSObject({" + strings.Join(parts, ", ") + "})"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "None"
		}
		return string(data)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
