package model

import "time"

// LogRow is one exported text row reduced to the columns the decoder needs.
type LogRow struct {
	AppID     string
	ContextID string
	Timestamp string
	Payload   string
}

// TaggedPayload is the marker-protocol content of a LogRow payload.
type TaggedPayload struct {
	MessageType string
	HexBody     string
}

// NewRecord builds a decoded record: a map whose first key is the injected
// timestamp, followed by the decoded fields. A decoded field named
// "timestamp" wins over the injected value but keeps the first position.
func NewRecord(timestamp string, fields Node) Node {
	b := NewMapBuilder(fields.Len() + 1)
	b.Set(TimestampField, Scalar(timestamp))
	for _, k := range fields.Keys() {
		v, _ := fields.Get(k)
		b.Set(k, v)
	}
	return b.Node()
}

// Pair is one path-query hit: the leaf reached and the root record it came
// from, kept for timestamp correlation.
type Pair struct {
	Root Node
	Leaf Node
}

// Series is an index-aligned numeric series ready for plotting.
type Series struct {
	Path  string    `json:"path"`
	Field string    `json:"field"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
	// Total is the number of points before downsampling.
	Total int `json:"total"`
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.X) }

// FileStatus is the lifecycle state of a loaded source file.
type FileStatus string

const (
	FileLoading FileStatus = "loading"
	FileReady   FileStatus = "ready"
	FileFailed  FileStatus = "failed"
)

// FileInfo describes one source file known to the catalog.
type FileInfo struct {
	ID          string      `json:"id"`
	Path        string      `json:"path"`
	Status      FileStatus  `json:"status"`
	Error       string      `json:"error,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	Records     int         `json:"records"`
	Stats       DecodeStats `json:"stats"`
	// Warnings holds decode diagnostics, such as unknown message types.
	Warnings   []string  `json:"warnings,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// DecodeStats counts row outcomes for one decode run.
type DecodeStats struct {
	Rows       int `json:"rows"`
	Decoded    int `json:"decoded"`
	Unparsable int `json:"unparsable"`
	Untagged   int `json:"untagged"`
	Malformed  int `json:"malformed"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// TypeCount is the number of records stored for one message type.
type TypeCount struct {
	MessageType string `json:"message_type"`
	Records     int    `json:"records"`
}

// ContextTree lists the message types recorded under one context id.
type ContextTree struct {
	ContextID string      `json:"context_id"`
	Types     []TypeCount `json:"types"`
}

// AppTree lists the contexts recorded under one app id.
type AppTree struct {
	AppID    string        `json:"app_id"`
	Contexts []ContextTree `json:"contexts"`
}

// SeriesRequest selects one series out of a loaded file.
type SeriesRequest struct {
	FileID    string
	AppID     string
	ContextID string
	Path      string
	Field     string
	MaxPoints int
}
