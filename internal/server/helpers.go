package server

import (
	"encoding/json"

	"github.com/go-rod/rod"
	"github.com/mark3labs/mcp-go/mcp"

	"jsrecon/internal/rerr"
)

// activePage returns the current page or a hinted failure.
func (s *Server) activePage() (*rod.Page, error) {
	page := s.collector.GetActivePage()
	if page == nil {
		return nil, rerr.New(rerr.KindCDP, "no active page").
			WithHint("call browser_launch then page_navigate first")
	}
	return page, nil
}

// argInt reads a numeric argument (JSON numbers arrive as float64).
func argInt(req mcp.CallToolRequest, key string, def int) int {
	if v, ok := req.GetArguments()[key].(float64); ok {
		return int(v)
	}
	return def
}

// argStrings reads a string-array argument.
func argStrings(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// jsonUnmarshal decodes a JSON string argument.
func jsonUnmarshal(raw string, out interface{}) error {
	return json.Unmarshal([]byte(raw), out)
}

// evalJSON runs a page-context function and decodes its JSON value.
func evalJSON(page *rod.Page, js string, out interface{}) error {
	res, err := page.Evaluate(&rod.EvalOptions{JS: js, ByValue: true, AwaitPromise: true})
	if err != nil {
		return rerr.Wrap(rerr.KindCDP, "evaluate in page", err)
	}
	if res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
