package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// maxResponseSize bounds one response line; exports of large files are the
// biggest results.
const maxResponseSize = 512 * 1024 * 1024

// Client calls a socket RPC server over a Unix domain socket using JSON-RPC
// 2.0. Its methods mirror model.API with every failure returned as an error.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxResponseSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) ListFiles() ([]model.FileInfo, error) {
	var result []model.FileInfo
	err := c.call("ListFiles", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) GetFile(id string) (model.FileInfo, error) {
	var result model.FileInfo
	err := c.call("GetFile", map[string]interface{}{"ID": id}, &result)
	return result, err
}

// LoadFile asks the server to start loading path. The server resolves
// relative paths against its own working directory.
func (c *Client) LoadFile(path string) (model.FileInfo, error) {
	var result model.FileInfo
	err := c.call("LoadFile", map[string]interface{}{"Path": path}, &result)
	return result, err
}

func (c *Client) RemoveFile(id string) error {
	return c.call("RemoveFile", map[string]interface{}{"ID": id}, nil)
}

func (c *Client) Tree(id string) ([]model.AppTree, error) {
	var result []model.AppTree
	err := c.call("Tree", map[string]interface{}{"ID": id}, &result)
	return result, err
}

func (c *Client) Paths(id, app, ctx string) ([]string, error) {
	var result []string
	err := c.call("Paths", map[string]interface{}{"ID": id, "App": app, "Ctx": ctx}, &result)
	return result, err
}

func (c *Client) Fields(id, app, ctx, path string) ([]string, error) {
	var result []string
	err := c.call("Fields", map[string]interface{}{"ID": id, "App": app, "Ctx": ctx, "Path": path}, &result)
	return result, err
}

func (c *Client) Series(req model.SeriesRequest) (model.Series, error) {
	var result model.Series
	err := c.call("Series", req, &result)
	return result, err
}

// Export returns the exported document of a file.
func (c *Client) Export(id, format string) ([]byte, error) {
	var result []byte
	err := c.call("Export", map[string]interface{}{"ID": id, "Format": format}, &result)
	return result, err
}

func (c *Client) LoadSchema(path string) (model.SchemaInfo, error) {
	var result model.SchemaInfo
	err := c.call("LoadSchema", map[string]interface{}{"Path": path}, &result)
	return result, err
}

func (c *Client) Schema() (model.SchemaInfo, error) {
	var result model.SchemaInfo
	err := c.call("Schema", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	var result []map[string]interface{}
	err := c.call("ExecuteQuery", map[string]interface{}{"SQL": query}, &result)
	return result, err
}

func (c *Client) GetSchemaDescription() (string, error) {
	var result string
	err := c.call("GetSchemaDescription", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) TableRowCounts() (map[string]int64, error) {
	var result map[string]int64
	err := c.call("TableRowCounts", map[string]interface{}{}, &result)
	return result, err
}
