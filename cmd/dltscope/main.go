package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/dltscope/internal/catalog"
	"github.com/tinytelemetry/dltscope/internal/marker"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/dltscope/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [file ...]\n\nFiles given as arguments are loaded at startup.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("dltscope - DLT payload decoder and plotter\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DLTSCOPE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("work-dir", "")
	v.SetDefault("converter-command", defaultConverter)
	v.SetDefault("converter-args", []string{})
	v.SetDefault("schema-path", "")
	v.SetDefault("protoc-command", defaultProtoc)
	v.SetDefault("protoc-include", []string{})
	v.SetDefault("codec", defaultCodec)
	v.SetDefault("default-namespace", model.DefaultNamespace)
	v.SetDefault("marker-prefix", model.DefaultMarkerPrefix)
	v.SetDefault("marker-separator", model.DefaultMarkerSeparator)
	v.SetDefault("marker-message-type", model.DefaultMarkerMessageType)
	v.SetDefault("max-points", defaultMaxPoints)
	v.SetDefault("duplicate-policy", defaultDuplicatePolicy)
	v.SetDefault("index-enabled", true)
	v.SetDefault("db-path", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("sniff-size", defaultSniffSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "dltscope", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if err := catalog.ValidateCodec(cfg.Codec); err != nil {
		return cfg, fmt.Errorf("invalid codec: %w", err)
	}
	if _, err := catalog.ParseDuplicatePolicy(cfg.DuplicatePolicy); err != nil {
		return cfg, err
	}
	if _, err := newProtocol(cfg); err != nil {
		return cfg, err
	}
	if cfg.SniffSize <= 0 {
		return cfg, fmt.Errorf("invalid sniff-size: %d", cfg.SniffSize)
	}

	// Expand ~ in paths
	cfg.WorkDir = expandHome(home, cfg.WorkDir)
	cfg.SchemaPath = expandHome(home, cfg.SchemaPath)
	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

// newProtocol builds the marker protocol. An empty marker-separator selects
// single-token markers whose payloads are all marker-message-type.
func newProtocol(cfg appConfig) (marker.Protocol, error) {
	if cfg.MarkerSeparator == "" {
		return marker.NewSingle(cfg.MarkerPrefix, cfg.MarkerType)
	}
	return marker.New(cfg.MarkerPrefix, cfg.MarkerSeparator)
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
