package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/query"
	"github.com/tinytelemetry/dltscope/internal/series"
	"github.com/tinytelemetry/dltscope/internal/store"
)

var _ model.API = (*Catalog)(nil)

// ListFiles implements model.FileQuerier.
func (c *Catalog) ListFiles() []model.FileInfo { return c.Files() }

// GetFile implements model.FileQuerier.
func (c *Catalog) GetFile(id string) (model.FileInfo, error) { return c.File(id) }

// Tree returns the app > context > message type hierarchy of a ready file.
func (c *Catalog) Tree(id string) ([]model.AppTree, error) {
	st, err := c.Store(id)
	if err != nil {
		return nil, err
	}
	return st.Tree(), nil
}

func (c *Catalog) scope(id, app, ctx string) (*store.Scope, error) {
	st, err := c.Store(id)
	if err != nil {
		return nil, err
	}
	sc, ok := st.Scope(app, ctx)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrScopeNotFound, app, ctx)
	}
	return sc, nil
}

// Paths lists every key path recorded under app and ctx.
func (c *Catalog) Paths(id, app, ctx string) ([]string, error) {
	sc, err := c.scope(id, app, ctx)
	if err != nil {
		return nil, err
	}
	return query.Paths(sc), nil
}

// Fields lists the plottable fields at path.
func (c *Catalog) Fields(id, app, ctx, path string) ([]string, error) {
	pairs, _, err := c.run(id, app, ctx, path)
	if err != nil {
		return nil, err
	}
	return query.Fields(pairs)
}

func (c *Catalog) run(id, app, ctx, path string) ([]model.Pair, []string, error) {
	sc, err := c.scope(id, app, ctx)
	if err != nil {
		return nil, nil, err
	}
	hops, err := query.ParsePath(sc, path)
	if err != nil {
		return nil, nil, err
	}
	pairs, err := query.Run(sc, hops)
	if err != nil {
		return nil, nil, err
	}
	return pairs, hops, nil
}

// Series extracts and downsamples one field. A MaxPoints of zero uses the
// configured cap; a negative value returns every point.
func (c *Catalog) Series(req model.SeriesRequest) (model.Series, error) {
	pairs, hops, err := c.run(req.FileID, req.AppID, req.ContextID, req.Path)
	if err != nil {
		return model.Series{}, err
	}
	s, err := series.Extract(pairs, req.Field)
	if err != nil {
		return model.Series{}, fmt.Errorf("%w: %s at %s", err, req.Field, strings.Join(hops, query.PathSeparator))
	}
	s.Path = strings.Join(hops, query.PathSeparator)

	limit := req.MaxPoints
	if limit == 0 {
		limit = c.cfg.MaxPoints
	}
	return series.Downsample(s, limit), nil
}

// Export writes the whole store of a ready file. format is json, yaml, or
// either with a .zst suffix; empty means json.
func (c *Catalog) Export(id string, w io.Writer, format string) error {
	if format == "" {
		format = store.EncodingJSON
	}
	f, err := store.ParseFormat(format)
	if err != nil {
		return err
	}
	st, err := c.Store(id)
	if err != nil {
		return err
	}
	return st.Export(w, f)
}

// LoadFile starts loading path and returns its initial status.
func (c *Catalog) LoadFile(ctx context.Context, path string) (model.FileInfo, error) {
	if _, err := c.Load(ctx, path); err != nil {
		return model.FileInfo{}, err
	}
	abs, err := absPath(path)
	if err != nil {
		return model.FileInfo{}, err
	}
	return c.File(FileID(abs))
}

// RemoveFile implements model.FileLoader.
func (c *Catalog) RemoveFile(id string) error { return c.Remove(id) }

// ExecuteQuery runs read-only SQL against the record index.
func (c *Catalog) ExecuteQuery(q string) ([]map[string]interface{}, error) {
	if c.cfg.Index == nil {
		return nil, ErrIndexDisabled
	}
	return c.cfg.Index.ExecuteQuery(q)
}

// GetSchemaDescription describes the SQL tables.
func (c *Catalog) GetSchemaDescription() string {
	if c.cfg.Index == nil {
		return "The record index is disabled."
	}
	return c.cfg.Index.GetSchemaDescription()
}

// TableRowCounts returns the row count of each index table.
func (c *Catalog) TableRowCounts() (map[string]int64, error) {
	if c.cfg.Index == nil {
		return map[string]int64{}, nil
	}
	return c.cfg.Index.TableRowCounts()
}
