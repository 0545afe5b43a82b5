package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.API over a Unix domain socket.
// Requests and responses are newline-delimited JSON objects.
//
//   Method                 Params                                                  Result
//   ────────────────────   ─────────────────────────────────────────────────────   ──────────────────
//   ListFiles              (none)                                                  []FileInfo
//   GetFile                {ID: string}                                            FileInfo
//   LoadFile               {Path: string}                                          FileInfo
//   RemoveFile             {ID: string}                                            null
//   Tree                   {ID: string}                                            []AppTree
//   Paths                  {ID, App, Ctx: string}                                  []string
//   Fields                 {ID, App, Ctx, Path: string}                            []string
//   Series                 {FileID, AppID, ContextID, Path, Field: string,
//                           MaxPoints: int}                                        Series
//   Export                 {ID: string, Format: string}                            bytes (base64)
//   LoadSchema             {Path: string}                                          SchemaInfo
//   Schema                 (none)                                                  SchemaInfo
//   ExecuteQuery           {SQL: string}                                           []map[string]any
//   GetSchemaDescription   (none)                                                  string
//   TableRowCounts         (none)                                                  map[string]int64
//
// File ids are the URL-safe base64 of the file's absolute path, as
// returned by ListFiles and LoadFile.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/dltscope/dltscope.sock, falling back to
// ~/.local/state/dltscope/dltscope.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "dltscope", "dltscope.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/dltscope.sock"
	}
	return filepath.Join(home, ".local", "state", "dltscope", "dltscope.sock")
}
