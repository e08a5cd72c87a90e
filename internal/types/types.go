// Package types holds the wire-level records shared between the
// collector, the analysis engines and the tool dispatcher.
package types

import "time"

// ScriptKind classifies where a harvested script came from.
type ScriptKind string

const (
	ScriptInline        ScriptKind = "inline"
	ScriptExternal      ScriptKind = "external"
	ScriptServiceWorker ScriptKind = "service-worker"
	ScriptWebWorker     ScriptKind = "web-worker"
)

// ScriptFile is one harvested script. Immutable once stored.
type ScriptFile struct {
	ID     string     `json:"id"` // CDP request id or synthesized
	URL    string     `json:"url"`
	Kind   ScriptKind `json:"kind"`
	Source string     `json:"source,omitempty"`
	Size   int        `json:"size"`

	// Truncation metadata, present when the body exceeded the
	// single-file bound.
	Truncated    bool `json:"truncated,omitempty"`
	OriginalSize int  `json:"originalSize,omitempty"`

	// Compression metadata, present when post-processing compressed
	// the body.
	Compressed     bool `json:"compressed,omitempty"`
	CompressedSize int  `json:"compressedSize,omitempty"`
}

// ScriptSummary is the lightweight listing shape.
type ScriptSummary struct {
	URL          string     `json:"url"`
	Size         int        `json:"size"`
	Kind         ScriptKind `json:"type"`
	Truncated    bool       `json:"truncated,omitempty"`
	OriginalSize int        `json:"originalSize,omitempty"`
}

// CollectedRequest is one observed network exchange. The body is
// retrieved lazily over CDP and may be empty.
type CollectedRequest struct {
	RequestID string            `json:"requestId"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	PostData  string            `json:"postData,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	MIME      string            `json:"mime,omitempty"`
	Status    int               `json:"status,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// ConsoleLog is one captured console event.
type ConsoleLog struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Line      int       `json:"line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PageException is one uncaught exception captured from a page.
type PageException struct {
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Line      int       `json:"line,omitempty"`
	Column    int       `json:"column,omitempty"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
