package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// Server provides an HTTP API over the loaded files.
type Server struct {
	addr      string
	api       model.API
	gatherer  prometheus.Gatherer
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. A nil gatherer serves the
// default Prometheus registry on /metrics.
func NewServer(addr string, api model.API, gatherer prometheus.Gatherer) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		api:      api,
		gatherer: gatherer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)

	files := r.Group("/api/files")
	files.GET("", s.handleListFiles)
	files.POST("", s.handleLoadFile)
	files.GET("/:id", s.handleGetFile)
	files.DELETE("/:id", s.handleRemoveFile)
	files.GET("/:id/tree", s.handleTree)
	files.GET("/:id/paths", s.handlePaths)
	files.GET("/:id/fields", s.handleFields)
	files.GET("/:id/series", s.handleSeries)
	files.GET("/:id/plot", s.handlePlot)
	files.GET("/:id/export", s.handleExport)

	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/schema", s.handleLoadSchema)
	r.GET("/api/sql", s.handleSQLSchema)
	r.POST("/api/query", s.handleQuery)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
