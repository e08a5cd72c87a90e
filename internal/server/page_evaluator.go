package server

import (
	"context"
	"encoding/json"

	"github.com/go-rod/rod"

	"jsrecon/internal/rerr"
)

// pageEvaluator adapts a rod page to envsim.PageEvaluator.
type pageEvaluator struct {
	page *rod.Page
}

func (p *pageEvaluator) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "live extraction evaluate", err)
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("{}"), nil
	}
	return res.Value.MarshalJSON()
}
