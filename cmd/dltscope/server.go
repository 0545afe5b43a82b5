package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/dltscope/internal/catalog"
	"github.com/tinytelemetry/dltscope/internal/convert"
	"github.com/tinytelemetry/dltscope/internal/duckdb"
	"github.com/tinytelemetry/dltscope/internal/httpserver"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/schema"
	"github.com/tinytelemetry/dltscope/internal/socketrpc"
)

// runServer starts the catalog with its HTTP and socket front ends and
// loads the given files.
func runServer(cfg appConfig, files []string) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize the DuckDB record index
	var index *duckdb.Store
	if cfg.IndexEnabled {
		var err error
		index, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer index.Close()
		if cfg.InsertBatchSize > 0 {
			index.BatchSize = cfg.InsertBatchSize
		}
	}

	protocol, err := newProtocol(cfg)
	if err != nil {
		return err
	}
	policy, err := catalog.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}

	cat, err := catalog.New(catalog.Config{
		WorkDir:         cfg.WorkDir,
		Converter:       convert.FromConfig(cfg.ConverterCommand, cfg.ConverterArgs),
		Compiler:        schema.Compiler{Command: cfg.ProtocCommand, IncludePaths: cfg.ProtocIncludes},
		Protocol:        protocol,
		Codec:           cfg.Codec,
		Namespace:       cfg.DefaultNamespace,
		DuplicatePolicy: policy,
		MaxPoints:       cfg.MaxPoints,
		SniffSize:       cfg.SniffSize,
		Index:           index,
		Registerer:      reg,
	})
	if err != nil {
		return err
	}
	defer cat.Close()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var schemaInfo model.SchemaInfo
	if cfg.SchemaPath != "" {
		schemaInfo, err = cat.LoadSchema(ctx, cfg.SchemaPath)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}
	}

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, cat, reg)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for the CLI
	sockServer := socketrpc.NewServer(cfg.SocketPath, cat)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, schemaInfo)

	events, unsubscribe := cat.Subscribe(16)
	defer unsubscribe()

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Report every finished load, whichever front end started it.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events:
				printLoadResult(ev)
			}
		}
	})

	g.Go(func() error {
		preload(gctx, cat, files)
		return nil
	})

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

// preload starts loading every file concurrently and waits for all of them.
func preload(ctx context.Context, cat *catalog.Catalog, files []string) {
	if len(files) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			done, err := cat.Load(gctx, path)
			if err != nil {
				log.Printf("server: preload %s: %v", path, err)
				fmt.Printf("    %s  %s  %v\n", failMark(), filepath.Base(path), err)
				return nil
			}
			select {
			case <-done:
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Printf("server: preloaded %d files", len(files))
}

func failMark() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("●")
}

func printLoadResult(ev catalog.LoadResult) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	name := filepath.Base(ev.Info.Path)
	if ev.Err != nil {
		fmt.Printf("    %s  %s  %s\n", failMark(), name, dim.Render(ev.Err.Error()))
		return
	}
	fmt.Printf("    %s  %s  %s\n", green.Render("●"), name,
		dim.Render(fmt.Sprintf("%d records from %d rows", ev.Info.Records, ev.Info.Stats.Rows)))
	for _, w := range ev.Info.Warnings {
		fmt.Printf("       %s\n", yellow.Render(w))
	}
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "dltscope")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "dltscope.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, schemaInfo model.SchemaInfo) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╦╗╦ ╔╦╗╔═╗╔═╗╔═╗╔═╗╔═╗
     ║║║  ║ ╚═╗║  ║ ║╠═╝║╣
    ═╩╝╩═╝╩ ╚═╝╚═╝╚═╝╩  ╚═╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	// Decoding
	lines = append(lines, bold.Render("    Decoding"))
	lines = append(lines, "")

	if cfg.ConverterCommand == convert.PassthroughCommand {
		lines = append(lines, fmt.Sprintf("    %s  Converter      %s", dot, dim.Render("none (reads exported rows)")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Converter      %s", check, dim.Render(cfg.ConverterCommand)))
	}
	switch {
	case cfg.Codec != catalog.CodecProtobuf:
		lines = append(lines, fmt.Sprintf("    %s  Codec          %s", check, dim.Render(cfg.Codec+" (schema-less)")))
	case schemaInfo.Path != "":
		lines = append(lines, fmt.Sprintf("    %s  Schema         %s", check,
			dim.Render(fmt.Sprintf("%s (%d types)", shortenPath(schemaInfo.Path), len(schemaInfo.Types)))))
	default:
		lines = append(lines, fmt.Sprintf("    %s  Schema         %s", dot, yellow.Render("none loaded")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Namespace      %s", check, dim.Render(cfg.DefaultNamespace)))
	lines = append(lines, "")

	// Storage
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")

	switch {
	case !cfg.IndexEnabled:
		lines = append(lines, fmt.Sprintf("    %s  SQL Index      %s", dot, dim.Render("disabled")))
	case cfg.DBPath == "":
		lines = append(lines, fmt.Sprintf("    %s  SQL Index      %s", check, dim.Render("in-memory")))
	default:
		lines = append(lines, fmt.Sprintf("    %s  SQL Index      %s", check, dim.Render(shortenPath(cfg.DBPath))))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
