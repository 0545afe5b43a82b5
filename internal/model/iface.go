package model

import (
	"context"
	"io"
)

// SchemaInfo describes the message schema currently used for decoding.
type SchemaInfo struct {
	Codec     string   `json:"codec"`
	Path      string   `json:"path,omitempty"`
	Namespace string   `json:"namespace"`
	Types     []string `json:"types"`
}

// FileQuerier provides read-only queries over decoded files.
type FileQuerier interface {
	ListFiles() []FileInfo
	GetFile(id string) (FileInfo, error)
	Tree(id string) ([]AppTree, error)
	Paths(id, app, ctx string) ([]string, error)
	Fields(id, app, ctx, path string) ([]string, error)
	Series(req SeriesRequest) (Series, error)
	Export(id string, w io.Writer, format string) error
}

// FileLoader starts and discards decode runs.
type FileLoader interface {
	LoadFile(ctx context.Context, path string) (FileInfo, error)
	RemoveFile(id string) error
	LoadSchema(ctx context.Context, path string) (SchemaInfo, error)
	Schema() SchemaInfo
}

// SQLQuerier provides arbitrary read-only SQL over the record index.
type SQLQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// ReadAPI is the read contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	FileQuerier
	SQLQuerier
}

// API is the full contract served to clients.
type API interface {
	ReadAPI
	FileLoader
}
