// Package main is the docindex CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/docindex/internal/cli"
	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/pipeline"
	"github.com/hyperjump/docindex/internal/server"
	"github.com/hyperjump/docindex/internal/storage"
	"github.com/hyperjump/docindex/internal/watcher"
	"github.com/hyperjump/docindex/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docindex/config.yaml"

// loadConfig loads config from path. When path is the default, ./config.yaml is
// preferred if it exists, and built-in defaults are used if neither file exists.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "init":
		runInit(args)
	case "chunk":
		runChunk(args)
	case "index":
		runPipeline("index", args)
	case "build":
		runPipeline("build", args)
	case "server":
		runServer(args)
	case "status":
		runStatus(args)
	case "chunks":
		runChunks(args)
	case "version", "--version", "-v":
		fmt.Printf("docindex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and creates the logger shared by every command.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	if resolved == "" {
		resolved = "(defaults)"
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config")
	force := fs.Bool("force", false, "overwrite an existing config")
	_ = fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fatalf("Config %s already exists (use --force to overwrite)", *configPath)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(*configPath, cfg); err != nil {
		fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

func runChunk(args []string) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	p, err := pipeline.New(cfg, nil, pipeline.WithLogger(logger))
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	ctx, stop := signalContext()
	defer stop()

	sum, err := p.Chunk(ctx)
	if err != nil {
		fatalf("Chunk failed: %v", err)
	}
	if err := cli.WriteSummary(os.Stdout, sum, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// runPipeline runs "index" (embed the existing chunk store) or "build" (all stages).
func runPipeline(command string, args []string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	run := components.Pipeline.Run
	if command == "index" {
		run = components.Pipeline.Index
	}
	sum, err := run(ctx)
	if err != nil {
		fatalf("%s failed: %v", strings.ToUpper(command[:1])+command[1:], err)
	}
	if err := cli.WriteSummary(os.Stdout, sum, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "rebuild when files under the raw dir change")
	_ = fs.Parse(args)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if *watch || cfg.Watch.Enabled {
		w := newRebuildWatcher(cfg, components.Pipeline, logger)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(cfg, components.Pipeline, components.Catalog, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// newRebuildWatcher watches the raw dir (and the manifest's directory when it
// lives elsewhere) and runs a full build after changes settle.
func newRebuildWatcher(cfg *config.Config, p *pipeline.Pipeline, logger *zap.Logger) *watcher.Watcher {
	roots := watchRoots(cfg)
	return watcher.New(roots, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, changed []string) error {
			sum, err := p.Run(ctx)
			if errors.Is(err, pipeline.ErrBuildInProgress) {
				logger.Warn("rebuild skipped, a build is already running", zap.Int("changed", len(changed)))
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("rebuild finished",
				zap.String("run_id", sum.RunID),
				zap.Int("chunks", sum.Chunks),
				zap.Int("vectors", sum.Vectors))
			return nil
		},
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithIgnore(cfg.Storage.ChunksPath),
		watcher.WithLogger(logger),
	)
}

func watchRoots(cfg *config.Config) []string {
	roots := []string{cfg.Storage.RawDir}
	manifestDir := filepath.Dir(cfg.Storage.ManifestPath)
	if rel, err := filepath.Rel(cfg.Storage.RawDir, manifestDir); err != nil || !filepath.IsLocal(rel) {
		roots = append(roots, manifestDir)
	}
	return roots
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = read directly from disk)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	var st *server.Status
	if *serverURL != "" {
		st = new(server.Status)
		if err := getJSON(*serverURL+"/api/v1/status", st); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
		if err != nil {
			fatalf("Failed to open catalog: %v", err)
		}
		defer catalog.Close()
		if st, err = server.CollectStatus(context.Background(), cfg, catalog); err != nil {
			fatalf("Status failed: %v", err)
		}
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runChunks(args []string) {
	if len(args) < 1 || args[0] != "show" {
		fmt.Println("Usage: docindex chunks show [flags] <chunk-id>")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("chunks show", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = read directly from disk)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args[1:])
	format := parseFormat(*output)
	if fs.NArg() != 1 {
		fatalf("Usage: docindex chunks show [flags] <chunk-id>")
	}
	id := fs.Arg(0)

	var chunk *models.Chunk
	if *serverURL != "" {
		chunk = new(models.Chunk)
		if err := getJSON(*serverURL+"/api/v1/chunks/"+escapeChunkID(id), chunk); err != nil {
			fatalf("Lookup failed: %v", err)
		}
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
		if err != nil {
			fatalf("Failed to open catalog: %v", err)
		}
		defer catalog.Close()
		if chunk, err = catalog.GetChunk(context.Background(), id); err != nil {
			fatalf("Lookup failed: %v", err)
		}
	}
	if err := cli.WriteChunk(os.Stdout, chunk, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// escapeChunkID escapes each path segment of id so it can follow a URL prefix.
func escapeChunkID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func getJSON(target string, v any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`docindex - chunk, embed and index a markdown corpus

Usage:
  docindex init [flags]               Write a starter config.yaml
  docindex chunk [flags]              Write the chunk store from the manifest
  docindex index [flags]              Embed the chunk store and build the index
  docindex build [flags]              Run chunk, index and sidecar stages
  docindex server [flags]             Start the HTTP API
  docindex status [flags]             Show counts, index metadata and disk usage
  docindex chunks show [flags] <id>   Show one chunk from the catalog
  docindex version                    Show version
  docindex help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/docindex/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Server Flags:
  --watch            Rebuild when files under the raw dir change

Status / Chunks Flags:
  --server string    Server URL; empty reads directly from disk

Environment:
  OPENAI_API_KEY, DOCINDEX_EMBEDDING_MODEL, DOCINDEX_EMBEDDING_PROVIDER and the
  other DOCINDEX_* variables override the config. A .env file is loaded if present.

Examples:
  docindex init
  docindex build
  docindex build --output json
  docindex server --watch
  docindex status --server http://localhost:8080
  docindex chunks show "guide/install.md::0003"`)
}
