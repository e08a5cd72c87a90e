package collector

import (
	"regexp"
	"sort"

	"jsrecon/internal/types"
)

// PatternResult is the bounded response of GetFilesByPattern.
type PatternResult struct {
	Files     []types.ScriptFile `json:"files"`
	Matched   int                `json:"matched"`
	Returned  int                `json:"returned"`
	Truncated bool               `json:"truncated"`
}

// GetCollectedFilesSummary lists every buffered file without bodies.
func (c *Collector) GetCollectedFilesSummary() []types.ScriptSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.ScriptSummary
	for _, url := range c.order {
		b := c.buffers[url]
		for _, f := range b.files {
			out = append(out, types.ScriptSummary{
				URL:          f.URL,
				Size:         f.Size,
				Kind:         f.Kind,
				Truncated:    f.Truncated,
				OriginalSize: f.OriginalSize,
			})
		}
	}
	return out
}

// GetFileByURL returns a buffered file by exact URL, or nil.
func (c *Collector) GetFileByURL(url string) *types.ScriptFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, bufURL := range c.order {
		for _, f := range c.buffers[bufURL].files {
			if f.URL == url {
				out := f
				return &out
			}
		}
	}
	return nil
}

// GetFilesByPattern returns files whose URL matches pattern, capped by
// limit and maxTotalSize. Matching stops adding files at the first one
// that would overflow the size budget; matched keeps counting so the
// caller can see what it missed.
func (c *Collector) GetFilesByPattern(pattern string, limit, maxTotalSize int) (*PatternResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if maxTotalSize <= 0 || maxTotalSize > c.cfg.MaxResponseSize {
		maxTotalSize = c.cfg.MaxResponseSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := &PatternResult{Files: []types.ScriptFile{}}
	total := 0
	sizeStopped := false
	for _, url := range c.order {
		for _, f := range c.buffers[url].files {
			if !re.MatchString(f.URL) {
				continue
			}
			res.Matched++
			if sizeStopped || (limit > 0 && len(res.Files) >= limit) {
				continue
			}
			if total+f.Size > maxTotalSize {
				sizeStopped = true
				continue
			}
			res.Files = append(res.Files, f)
			total += f.Size
		}
	}
	res.Returned = len(res.Files)
	res.Truncated = res.Matched > res.Returned
	return res, nil
}

// GetTopPriorityFiles returns the topN highest-priority files within
// the size budget, ordered by score with insertion order as the tie
// break.
func (c *Collector) GetTopPriorityFiles(topN, maxTotalSize int) []types.ScriptFile {
	if maxTotalSize <= 0 || maxTotalSize > c.cfg.MaxResponseSize {
		maxTotalSize = c.cfg.MaxResponseSize
	}

	c.mu.Lock()
	type scored struct {
		file  types.ScriptFile
		score int
		order int
	}
	var all []scored
	i := 0
	for _, url := range c.order {
		for _, f := range c.buffers[url].files {
			all = append(all, scored{file: f, score: priorityScore(f, nil), order: i})
			i++
		}
	}
	c.mu.Unlock()

	sort.SliceStable(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].order < all[b].order
	})

	out := []types.ScriptFile{}
	total := 0
	for _, s := range all {
		if topN > 0 && len(out) >= topN {
			break
		}
		if total+s.file.Size > maxTotalSize {
			break
		}
		out = append(out, s.file)
		total += s.file.Size
	}
	return out
}

// smartSelect reorders (and in filter mode prunes) a harvest by
// priority while preserving the size budget.
func (c *Collector) smartSelect(files []types.ScriptFile, opts Options) []types.ScriptFile {
	type scored struct {
		file  types.ScriptFile
		score int
		order int
	}
	all := make([]scored, len(files))
	for i, f := range files {
		all[i] = scored{file: f, score: priorityScore(f, opts.Priorities), order: i}
	}
	sort.SliceStable(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].order < all[b].order
	})

	out := make([]types.ScriptFile, 0, len(all))
	for _, s := range all {
		if opts.SmartMode == "filter" && s.score < 0 {
			continue // vendor noise drops in filter mode
		}
		out = append(out, s.file)
	}
	return out
}
