// Package catalog owns the decoded files of a running instance. It starts
// one decode worker per loaded file, installs each sealed store when its
// worker finishes, and answers queries against the installed stores.
package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/dltscope/internal/convert"
	"github.com/tinytelemetry/dltscope/internal/decode"
	"github.com/tinytelemetry/dltscope/internal/duckdb"
	"github.com/tinytelemetry/dltscope/internal/marker"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/schema"
	"github.com/tinytelemetry/dltscope/internal/store"
	"github.com/tinytelemetry/dltscope/internal/workspace"
)

var (
	// ErrFileNotFound means no file with the given id is loaded.
	ErrFileNotFound = errors.New("catalog: file not found")
	// ErrNotReady means the file is still loading or its load failed.
	ErrNotReady = errors.New("catalog: file not ready")
	// ErrScopeNotFound means the file has no records for the app/context pair.
	ErrScopeNotFound = errors.New("catalog: app/context not found")
	// ErrDuplicateFile means the file is already loaded or loading.
	ErrDuplicateFile = errors.New("catalog: file already loaded")
	// ErrNoSchema means protobuf decoding was requested before a schema was loaded.
	ErrNoSchema = errors.New("catalog: no message schema loaded")
	// ErrIndexDisabled means SQL was requested with the record index turned off.
	ErrIndexDisabled = errors.New("catalog: record index disabled")
	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("catalog: closed")
)

// Codecs. Only protobuf needs a schema; the others decode any type name.
const (
	CodecProtobuf = "protobuf"
	CodecCBOR     = "cbor"
	CodecMsgPack  = "msgpack"
	CodecJSON     = "json"
)

// Codecs lists the accepted codec names.
var Codecs = []string{CodecProtobuf, CodecCBOR, CodecMsgPack, CodecJSON}

// ValidateCodec reports whether name is a known codec.
func ValidateCodec(name string) error {
	for _, c := range Codecs {
		if c == name {
			return nil
		}
	}
	return fmt.Errorf("catalog: unknown codec %q (want one of %s)", name, strings.Join(Codecs, ", "))
}

func schemalessRegistry(codec string) schema.Registry {
	switch codec {
	case CodecCBOR:
		return schema.CBOR{}
	case CodecMsgPack:
		return schema.MsgPack{}
	case CodecJSON:
		return schema.JSON{}
	}
	return nil
}

// DuplicatePolicy decides what loading an already loaded file does.
type DuplicatePolicy string

const (
	// DuplicateReject fails the second load with ErrDuplicateFile.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateReplace decodes the file again and swaps in the new store
	// once the run finishes.
	DuplicateReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy validates a policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case DuplicateReject, DuplicateReplace:
		return p, nil
	case "":
		return DuplicateReject, nil
	}
	return "", fmt.Errorf("catalog: unknown duplicate policy %q (want reject or replace)", s)
}

// Config configures a Catalog.
type Config struct {
	// WorkDir is the parent of per-run workspaces. Empty uses the system
	// temp directory.
	WorkDir   string
	Converter convert.Converter
	Compiler  schema.Compiler
	Protocol  marker.Protocol
	Codec     string
	Namespace string

	DuplicatePolicy DuplicatePolicy
	MaxPoints       int
	SniffSize       int

	// Index receives every installed store. Nil disables SQL.
	Index *duckdb.Store
	// Registerer receives decode and catalog metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// LoadResult reports the end of one load.
type LoadResult struct {
	Info model.FileInfo
	Err  error
}

type entry struct {
	info  model.FileInfo
	store *store.Store
	// running is set while a worker owns this id, indexing included; gen
	// tells a finishing worker whether the entry it started for still exists.
	running bool
	gen     uint64
	cancel  context.CancelFunc
}

// Catalog is safe for concurrent use.
type Catalog struct {
	cfg     Config
	metrics *decode.Metrics
	indexed prometheus.Counter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	files    map[string]*entry
	order    []string
	gen      uint64
	registry schema.Registry
	schema   model.SchemaInfo
	closed   bool

	// indexMu serializes writes to the record index.
	indexMu sync.Mutex

	subMu sync.Mutex
	subs  map[int]chan LoadResult
	subID int
}

// New returns an empty catalog. With a schema-less codec every message
// type resolves; with protobuf a schema must be loaded before files.
func New(cfg Config) (*Catalog, error) {
	if cfg.Converter == nil {
		cfg.Converter = convert.Passthrough{}
	}
	if cfg.Codec == "" {
		cfg.Codec = CodecProtobuf
	}
	if err := ValidateCodec(cfg.Codec); err != nil {
		return nil, err
	}
	if cfg.Namespace == "" {
		cfg.Namespace = model.DefaultNamespace
	}
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = DuplicateReject
	}
	if cfg.MaxPoints == 0 {
		cfg.MaxPoints = model.DefaultMaxPoints
	}
	if cfg.Compiler.Command == "" {
		cfg.Compiler.Command = schema.DefaultProtoc
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Catalog{
		cfg:     cfg,
		metrics: decode.NewMetrics(cfg.Registerer),
		indexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dltscope",
			Subsystem: "catalog",
			Name:      "records_indexed_total",
			Help:      "Records written to the SQL index.",
		}),
		ctx:    ctx,
		cancel: cancel,
		files:  make(map[string]*entry),
		subs:   make(map[int]chan LoadResult),
		schema: model.SchemaInfo{Codec: cfg.Codec, Namespace: cfg.Namespace, Types: []string{}},
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(c.indexed)
	}
	c.registry = schemalessRegistry(cfg.Codec)
	return c, nil
}

// FileID returns the identifier of the file at an absolute path.
func FileID(absPath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(absPath))
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("catalog: resolve %s: %w", path, err)
	}
	return abs, nil
}

// Close cancels running loads and waits for their workers to return.
func (c *Catalog) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Subscribe returns a channel receiving every finished load, and a
// function that ends the subscription. Results are dropped for
// subscribers whose buffer is full. Loads finish in no particular order.
func (c *Catalog) Subscribe(buffer int) (<-chan LoadResult, func()) {
	ch := make(chan LoadResult, buffer)
	c.subMu.Lock()
	id := c.subID
	c.subID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Catalog) notify(res LoadResult) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- res:
		default:
		}
	}
}

// Load registers path and starts decoding it in the background. The
// returned channel receives the outcome once the store is installed (and
// indexed) and is then closed. ctx only bounds registration; the run
// itself lasts until it finishes, the file is removed, or Close is called.
func (c *Catalog) Load(ctx context.Context, path string) (<-chan LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := absPath(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("catalog: %s is a directory", abs)
	}
	id := FileID(abs)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.registry == nil {
		c.mu.Unlock()
		return nil, ErrNoSchema
	}
	e, exists := c.files[id]
	switch {
	case exists && e.running:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is still loading or indexing", ErrDuplicateFile, abs)
	case exists && c.cfg.DuplicatePolicy != DuplicateReplace:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFile, abs)
	case !exists:
		e = &entry{info: model.FileInfo{ID: id, Path: abs}}
		c.files[id] = e
		c.order = append(c.order, id)
	}

	ws, err := workspace.New(c.cfg.WorkDir)
	if err != nil {
		if !exists {
			c.dropLocked(id)
		}
		c.mu.Unlock()
		return nil, err
	}

	var warnings []string
	w, err := decode.New(decode.Config{
		Source:    abs,
		Converter: c.cfg.Converter,
		Resolver:  schema.Resolver{Registry: c.registry, Namespace: c.cfg.Namespace},
		Protocol:  c.cfg.Protocol,
		Workspace: ws,
		SniffSize: c.cfg.SniffSize,
		Metrics:   c.metrics,
		OnDiagnostic: func(msg string) {
			warnings = append(warnings, msg)
		},
	})
	if err != nil {
		ws.Release()
		if !exists {
			c.dropLocked(id)
		}
		c.mu.Unlock()
		return nil, err
	}

	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(c.ctx)
	e.running = true
	e.gen = gen
	e.cancel = cancel
	if e.store == nil {
		e.info.Status = model.FileLoading
		e.info.Error = ""
	}
	e.info.LoadedAt = time.Now()
	c.wg.Add(1)
	c.mu.Unlock()

	log.Printf("catalog: loading %s", abs)
	out := make(chan LoadResult, 1)
	results := w.Start(runCtx)
	go func() {
		defer c.wg.Done()
		defer close(out)
		defer cancel()

		res := <-results
		if err := ws.Release(); err != nil {
			log.Printf("catalog: %v", err)
		}
		lr := c.finish(id, gen, res, warnings)
		out <- lr
		c.notify(lr)
	}()
	return out, nil
}

// finish installs the result of the run gen of id. Results of runs whose
// entry was removed or superseded are discarded.
func (c *Catalog) finish(id string, gen uint64, res decode.Result, warnings []string) LoadResult {
	c.mu.Lock()
	e, ok := c.files[id]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return LoadResult{Info: model.FileInfo{ID: id, Path: res.Source}, Err: ErrFileNotFound}
	}
	e.info.FinishedAt = time.Now()
	e.info.Stats = res.Stats
	e.info.Warnings = warnings

	if res.Err != nil {
		e.running = false
		e.cancel = nil
		if e.store != nil {
			// A failed reload keeps the previous store.
			e.info.Error = res.Err.Error()
			info := e.info
			c.mu.Unlock()
			log.Printf("catalog: reload of %s failed, keeping previous result: %v", info.Path, res.Err)
			return LoadResult{Info: info, Err: res.Err}
		}
		e.info.Status = model.FileFailed
		e.info.Error = res.Err.Error()
		info := e.info
		c.mu.Unlock()
		return LoadResult{Info: info, Err: res.Err}
	}

	e.store = res.Store
	e.info.Status = model.FileReady
	e.info.Error = ""
	e.info.Fingerprint = res.Fingerprint
	e.info.Records = res.Store.Len()
	info := e.info
	c.mu.Unlock()

	// The entry stays running until its rows are indexed, so a reload
	// cannot interleave with this run's inserts.
	c.index(id, gen, info, res.Store)
	c.mu.Lock()
	if e, ok := c.files[id]; ok && e.gen == gen {
		e.running = false
		e.cancel = nil
	}
	c.mu.Unlock()
	log.Printf("catalog: %s ready with %d records", info.Path, info.Records)
	return LoadResult{Info: info}
}

func (c *Catalog) index(id string, gen uint64, info model.FileInfo, st *store.Store) {
	if c.cfg.Index == nil {
		return
	}
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	if c.stale(id, gen) {
		return
	}
	n, err := c.cfg.Index.IndexFile(id, info.Path, info.Fingerprint, st)
	if err != nil {
		log.Printf("catalog: index %s: %v", info.Path, err)
	}
	c.indexed.Add(float64(n))

	// The file may have been removed while it was being indexed.
	if c.stale(id, gen) {
		if _, err := c.cfg.Index.DeleteFile(id); err != nil {
			log.Printf("catalog: unindex %s: %v", info.Path, err)
		}
	}
}

func (c *Catalog) stale(id string, gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.files[id]
	return !ok || e.gen != gen
}

func (c *Catalog) dropLocked(id string) {
	delete(c.files, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Remove unloads a file, cancelling its run if one is in progress, and
// deletes its index rows.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	e, ok := c.files[id]
	if !ok {
		c.mu.Unlock()
		return ErrFileNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	c.dropLocked(id)
	c.mu.Unlock()

	if c.cfg.Index != nil {
		c.indexMu.Lock()
		_, err := c.cfg.Index.DeleteFile(id)
		c.indexMu.Unlock()
		if err != nil {
			return fmt.Errorf("catalog: unindex: %w", err)
		}
	}
	log.Printf("catalog: removed %s", e.info.Path)
	return nil
}

// Files returns every known file in load order.
func (c *Catalog) Files() []model.FileInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.FileInfo, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.files[id].info)
	}
	return out
}

// File returns one file's status.
func (c *Catalog) File(id string) (model.FileInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.files[id]
	if !ok {
		return model.FileInfo{}, ErrFileNotFound
	}
	return e.info, nil
}

// Store returns the sealed store of a ready file.
func (c *Catalog) Store(id string) (*store.Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	if e.store == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, e.info.Path, e.info.Status)
	}
	return e.store, nil
}

// LoadSchema replaces the protobuf schema used by later loads. Runs in
// progress keep the schema they started with.
func (c *Catalog) LoadSchema(ctx context.Context, path string) (model.SchemaInfo, error) {
	if c.cfg.Codec != CodecProtobuf {
		return model.SchemaInfo{}, fmt.Errorf("catalog: codec %s takes no schema", c.cfg.Codec)
	}
	abs, err := absPath(path)
	if err != nil {
		return model.SchemaInfo{}, err
	}

	ws, err := workspace.New(c.cfg.WorkDir)
	if err != nil {
		return model.SchemaInfo{}, err
	}
	defer ws.Release()

	table, err := schema.Load(ctx, abs, ws.Path(), c.cfg.Compiler)
	if err != nil {
		return model.SchemaInfo{}, err
	}

	info := model.SchemaInfo{
		Codec:     c.cfg.Codec,
		Path:      abs,
		Namespace: c.cfg.Namespace,
		Types:     table.Names(),
	}
	c.mu.Lock()
	c.registry = table
	c.schema = info
	c.mu.Unlock()
	log.Printf("catalog: schema %s loaded with %d message types", abs, len(info.Types))
	return info, nil
}

// Schema describes the current decoding schema.
func (c *Catalog) Schema() model.SchemaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema
}
