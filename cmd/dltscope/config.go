package main

import (
	"time"

	"github.com/tinytelemetry/dltscope/internal/catalog"
	"github.com/tinytelemetry/dltscope/internal/convert"
	"github.com/tinytelemetry/dltscope/internal/duckdb"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/schema"
)

const (
	defaultBindHost        = "127.0.0.1"
	defaultAPIPort         = 3000
	defaultQueryTimeout    = model.DefaultQueryTimeout
	defaultInsertBatchSize = duckdb.DefaultBatchSize
	defaultMaxPoints       = model.DefaultMaxPoints
	defaultSniffSize       = model.DefaultSniffSize
	defaultCodec           = catalog.CodecProtobuf
	defaultDuplicatePolicy = string(catalog.DuplicateReject)
	defaultConverter       = convert.DefaultCommand
	defaultProtoc          = schema.DefaultProtoc
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	SocketPath       string        `mapstructure:"socket-path"`
	WorkDir          string        `mapstructure:"work-dir"`
	ConverterCommand string        `mapstructure:"converter-command"`
	ConverterArgs    []string      `mapstructure:"converter-args"`
	SchemaPath       string        `mapstructure:"schema-path"`
	ProtocCommand    string        `mapstructure:"protoc-command"`
	ProtocIncludes   []string      `mapstructure:"protoc-include"`
	Codec            string        `mapstructure:"codec"`
	DefaultNamespace string        `mapstructure:"default-namespace"`
	MarkerPrefix     string        `mapstructure:"marker-prefix"`
	MarkerSeparator  string        `mapstructure:"marker-separator"`
	MarkerType       string        `mapstructure:"marker-message-type"`
	MaxPoints        int           `mapstructure:"max-points"`
	DuplicatePolicy  string        `mapstructure:"duplicate-policy"`
	IndexEnabled     bool          `mapstructure:"index-enabled"`
	DBPath           string        `mapstructure:"db-path"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize  int           `mapstructure:"insert-batch-size"`
	SniffSize        int           `mapstructure:"sniff-size"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}
