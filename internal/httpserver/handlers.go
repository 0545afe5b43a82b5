package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/dltscope/internal/catalog"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/plot"
	"github.com/tinytelemetry/dltscope/internal/query"
	"github.com/tinytelemetry/dltscope/internal/series"
	"github.com/tinytelemetry/dltscope/internal/store"
)

// statusFor maps API errors to HTTP status codes; unknown errors get fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, catalog.ErrFileNotFound),
		errors.Is(err, catalog.ErrScopeNotFound),
		errors.Is(err, query.ErrNoData),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNotReady),
		errors.Is(err, catalog.ErrDuplicateFile):
		return http.StatusConflict
	case errors.Is(err, query.ErrNoPlottableFields),
		errors.Is(err, series.ErrNoNumericData),
		errors.Is(err, catalog.ErrNoSchema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrIndexDisabled):
		return http.StatusServiceUnavailable
	}
	return fallback
}

func writeError(c *gin.Context, err error, fallback int) {
	c.JSON(statusFor(err, fallback), gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	files := s.api.ListFiles()
	records := 0
	for _, f := range files {
		records += f.Records
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"files":   len(files),
		"records": records,
	})
}

func (s *Server) handleListFiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": s.api.ListFiles()})
}

func (s *Server) handleLoadFile(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing path field"})
		return
	}

	info, err := s.api.LoadFile(c.Request.Context(), req.Path)
	if err != nil {
		writeError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusAccepted, info)
}

func (s *Server) handleGetFile(c *gin.Context) {
	info, err := s.api.GetFile(c.Param("id"))
	if err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleRemoveFile(c *gin.Context) {
	if err := s.api.RemoveFile(c.Param("id")); err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTree(c *gin.Context) {
	tree, err := s.api.Tree(c.Param("id"))
	if err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": tree})
}

func (s *Server) handlePaths(c *gin.Context) {
	paths, err := s.api.Paths(c.Param("id"), c.Query("app"), c.Query("ctx"))
	if err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

func (s *Server) handleFields(c *gin.Context) {
	fields, err := s.api.Fields(c.Param("id"), c.Query("app"), c.Query("ctx"), c.Query("path"))
	if err != nil {
		writeError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields})
}

func seriesRequest(c *gin.Context) (model.SeriesRequest, error) {
	req := model.SeriesRequest{
		FileID:    c.Param("id"),
		AppID:     c.Query("app"),
		ContextID: c.Query("ctx"),
		Path:      c.Query("path"),
		Field:     c.Query("field"),
	}
	if req.Field == "" {
		return req, fmt.Errorf("field is required")
	}
	if v := c.Query("max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid max_points %q", v)
		}
		req.MaxPoints = n
	}
	return req, nil
}

func (s *Server) handleSeries(c *gin.Context) {
	req, err := seriesRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sr, err := s.api.Series(req)
	if err != nil {
		writeError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, sr)
}

func (s *Server) handlePlot(c *gin.Context) {
	req, err := seriesRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format, err := plot.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sr, err := s.api.Series(req)
	if err != nil {
		writeError(c, err, http.StatusBadRequest)
		return
	}

	contentType := "image/png"
	if format == plot.SVG {
		contentType = "image/svg+xml"
	}
	var buf bytes.Buffer
	if err := plot.Render(&buf, sr, format, plot.Options{}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) handleExport(c *gin.Context) {
	id := c.Param("id")
	f, err := store.ParseFormat(c.DefaultQuery("format", store.EncodingJSON))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Fail before headers are written.
	if _, err := s.api.Tree(id); err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}

	contentType := "application/json; charset=utf-8"
	switch {
	case f.Compressed:
		contentType = "application/zstd"
	case f.Encoding == store.EncodingYAML:
		contentType = "application/yaml; charset=utf-8"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="export.%s"`, f))
	c.Status(http.StatusOK)
	if err := s.api.Export(id, c.Writer, f.String()); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) handleSchema(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.Schema())
}

func (s *Server) handleLoadSchema(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing path field"})
		return
	}
	info, err := s.api.LoadSchema(c.Request.Context(), req.Path)
	if err != nil {
		writeError(c, err, http.StatusUnprocessableEntity)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleSQLSchema(c *gin.Context) {
	description := s.api.GetSchemaDescription()

	tables, err := s.api.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' AND table_name <> 'schema_migrations' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		writeError(c, err, http.StatusInternalServerError)
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.api.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.api.ExecuteQuery(req.SQL)
	if err != nil {
		writeError(c, err, http.StatusBadRequest)
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
