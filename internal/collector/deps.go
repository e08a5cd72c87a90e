package collector

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"jsrecon/internal/types"
)

var (
	importRe  = regexp.MustCompile(`import\s+(?:[\w{}\s,*]+\s+from\s+)?['"]([^'"]+)['"]`)
	requireRe = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	dynImpRe  = regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

// extractDependencies scans harvested sources for module specifiers.
func extractDependencies(files []types.ScriptFile) []string {
	set := make(map[string]bool)
	for _, f := range files {
		if f.Source == "" {
			continue
		}
		for _, re := range []*regexp.Regexp{importRe, requireRe, dynImpRe} {
			for _, m := range re.FindAllStringSubmatch(f.Source, -1) {
				if len(m) > 1 && m[1] != "" {
					set[m[1]] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// inlineScriptsFromHTML is the fallback extractor when page evaluation
// is unavailable: parse the document and read <script> bodies without
// a src attribute.
func inlineScriptsFromHTML(doc string) []string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			hasSrc := false
			for _, attr := range n.Attr {
				if attr.Key == "src" {
					hasSrc = true
					break
				}
			}
			if !hasSrc {
				var b strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						b.WriteString(c.Data)
					}
				}
				if strings.TrimSpace(b.String()) != "" {
					out = append(out, b.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
