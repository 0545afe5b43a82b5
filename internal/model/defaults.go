package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultNamespace       = "logger"
	DefaultMarkerPrefix    = "$%.&"
	DefaultMarkerSeparator = "&*.%"
	// DefaultMarkerMessageType names the payloads of single-token markers.
	DefaultMarkerMessageType = "Message"
	DefaultMaxPoints         = 10000
	DefaultSniffSize         = 1024
	DefaultQueryTimeout      = 30 * time.Second

	// TimestampField is injected into every decoded record.
	TimestampField = "timestamp"
	// MetadataPrefix marks fields that are never offered for plotting.
	MetadataPrefix = "@"
)
