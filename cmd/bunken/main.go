// Package main is the Bunken CLI entry point.
package main

import (
	"bytes"
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

	"github.com/hyperjump/bunken/internal/cli"
	"github.com/hyperjump/bunken/internal/compose"
	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/embedding"
	"github.com/hyperjump/bunken/internal/extract"
	"github.com/hyperjump/bunken/internal/ingest"
	"github.com/hyperjump/bunken/internal/keyword"
	"github.com/hyperjump/bunken/internal/library"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/retrieval"
	"github.com/hyperjump/bunken/internal/server"
	"github.com/hyperjump/bunken/internal/vector"
	"github.com/hyperjump/bunken/internal/watcher"
	"github.com/hyperjump/bunken/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunken/config.yaml"

// errServerUnreachable marks transport-level failures so callers can fall
// back to direct component access.
var errServerUnreachable = errors.New("server unreachable")

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "bunken server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "retrieve":
		runRetrieve()
	case "context":
		runContext()
	case "list":
		runList()
	case "remove":
		runRemove()
	case "clear":
		runClear()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("bunken version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ing := components.Ingestor
	exts := cfg.WatchExtensions()
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			ctx := context.Background()
			if _, err := ing.IngestFile(ctx, path); err != nil {
				logger.Warn("watch ingest file failed", zap.String("path", path), zap.Error(err))
				return
			}
			if err := ing.Flush(ctx); err != nil {
				logger.Warn("watch flush failed", zap.Error(err))
			}
		},
		func(path string) {
			ctx := context.Background()
			if err := ing.RemoveByPath(ctx, path); err != nil {
				logger.Warn("watch remove by path failed", zap.String("path", path), zap.Error(err))
				return
			}
			if err := ing.Flush(ctx); err != nil {
				logger.Warn("watch flush failed", zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Ingestor,
		components.Retriever,
		components.Store,
		&cfg.Server,
		&cfg.Compose,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := components.Ingestor.Flush(context.Background()); err != nil {
		logger.Warn("index save on shutdown failed", zap.Error(err))
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunken ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if fs.NArg() > 1 {
		report := components.Ingestor.IngestPaths(ctx, fs.Args())
		flushOrWarn(ctx, components.Ingestor, logger)
		if err := cli.WriteReport(os.Stdout, report, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		if report.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		report, err := components.Ingestor.IngestDirectory(ctx, path)
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		flushOrWarn(ctx, components.Ingestor, logger)
		if err := cli.WriteReport(os.Stdout, report, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		if report.Failed > 0 {
			os.Exit(1)
		}
		return
	}
	outcome, err := components.Ingestor.IngestFile(ctx, path)
	if err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	flushOrWarn(ctx, components.Ingestor, logger)
	fmt.Printf("%s: %s\n", outcome, path)
}

func flushOrWarn(ctx context.Context, ing *ingest.Ingestor, logger *zap.Logger) {
	if err := ing.Flush(ctx); err != nil {
		logger.Warn("index save failed", zap.Error(err))
	}
}

// printRetrieveUsage prints retrieve subcommand usage.
func printRetrieveUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: bunken retrieve [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are literature chunks ranked by semantic similarity.
  Use --top-k to control how many chunks come back.
  Use --min-score to filter low-similarity hits (cosine similarity, -1..1).

Examples:
  bunken retrieve transfer learning
  bunken retrieve "transfer learning"              # same as above
  bunken retrieve --top-k 10 --min-score 0.3 bayesian optimization
  bunken retrieve --output json few-shot prompting
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "bunken retrieve \"query\" -top-k 10"
// would otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(name string) (cli.OutputFormat, error) {
	switch name {
	case "json":
		return cli.OutputJSON, nil
	case "text":
		return cli.OutputText, nil
	default:
		return cli.OutputText, fmt.Errorf("unknown output format %q; use text or json", name)
	}
}

// retrievalMinScoreDefault loads config at path and returns its minimum score,
// so the -min-score flag default matches the config. On load failure it
// returns 0.1.
func retrievalMinScoreDefault(path string) float64 {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return 0.1
	}
	return cfg.Retrieval.MinScore
}

func runRetrieve() {
	args := argsReorder(os.Args[2:])
	defaultMinScore := retrievalMinScoreDefault(configPathFromArgs(args, defaultConfigPath))

	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = always use direct storage)")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = config default)")
	minScore := fs.Float64("min-score", defaultMinScore, "minimum cosine similarity")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printRetrieveUsage(fs) }
	_ = fs.Parse(args)

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printRetrieveUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	query := &models.RetrievalQuery{
		Query:    queryStr,
		TopK:     *topK,
		MinScore: *minScore,
	}

	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids
		// Bleve/SQLite lock conflict); fall back to direct access below
		// when it is not.
		response, err := retrieveViaHTTP(*serverURL, query)
		switch {
		case err == nil:
			if err := cli.WriteRetrievalResults(os.Stdout, response, format); err != nil {
				fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
				os.Exit(1)
			}
			return
		case errors.Is(err, errServerUnreachable):
		default:
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			os.Exit(1)
		}
	}

	components, logger := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	response, err := components.Retriever.Retrieve(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRetrievalResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runContext() {
	args := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet("context", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = always use direct storage)")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = config default)")
	minScore := fs.Float64("min-score", 0, "minimum cosine similarity (0 = config default)")
	maxChars := fs.Int("max-chars", 0, "context budget in characters (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: bunken context [flags] <query>")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	query := &models.RetrievalQuery{
		Query:    queryStr,
		TopK:     *topK,
		MinScore: *minScore,
	}

	if *serverURL != "" {
		result, err := contextViaHTTP(*serverURL, query, *maxChars)
		switch {
		case err == nil:
			if err := cli.WriteContext(os.Stdout, result, format); err != nil {
				fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
				os.Exit(1)
			}
			return
		case errors.Is(err, errServerUnreachable):
		default:
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	var result *models.ContextResult
	response, err := components.Retriever.Retrieve(context.Background(), query)
	if err != nil {
		// Proposal generation proceeds without citations rather than failing.
		fmt.Fprintf(os.Stderr, "Warning: retrieval failed, continuing without citations: %v\n", err)
		result = &models.ContextResult{References: make([]*models.Reference, 0), Degraded: true}
	} else {
		cc := cfg.Compose
		if *maxChars > 0 {
			cc.MaxContextChars = *maxChars
		}
		result = compose.NewComposer(&cc).Compose(response.Results)
		result.Degraded = response.Degraded
	}
	if err := cli.WriteContext(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	offset := fs.Int("offset", 0, "pagination offset")
	limit := fs.Int("limit", 50, "page size")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	docs, err := components.Store.ListDocuments(ctx, *offset, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	total, err := components.Store.CountDocuments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, total, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunken remove [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if err := components.Ingestor.RemoveDocument(ctx, docID); err != nil {
		fmt.Printf("Removal failed: %v\n", err)
		os.Exit(1)
	}
	flushOrWarn(ctx, components.Ingestor, logger)
	fmt.Printf("Document removed: %s\n", docID)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "confirm clearing the whole library")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fmt.Println("This deletes every document, chunk and index entry. Re-run with --yes to confirm.")
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	if err := components.Ingestor.Clear(context.Background()); err != nil {
		fmt.Printf("Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Library cleared.")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = always use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		status, err := statusViaHTTP(*serverURL)
		switch {
		case err == nil:
			if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
				fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
				os.Exit(1)
			}
			return
		case errors.Is(err, errServerUnreachable):
		default:
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	components, logger := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	status, err := components.Ingestor.Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: bunken watch <add|remove|list> [path]")
		fmt.Println("  bunken watch add <path>     Add directory to watch")
		fmt.Println("  bunken watch remove <path>  Remove directory from watch")
		fmt.Println("  bunken watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: bunken watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: bunken watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func retrieveViaHTTP(serverURL string, query *models.RetrievalQuery) (*models.RetrievalResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errServerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.RetrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func contextViaHTTP(serverURL string, query *models.RetrievalQuery, maxChars int) (*models.ContextResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query.Query,
		"top_k":     query.TopK,
		"min_score": query.MinScore,
		"max_chars": maxChars,
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/context", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errServerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.ContextResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func statusViaHTTP(serverURL string) (*models.LibraryStatus, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errServerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.LibraryStatus
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// mustInitialize loads config, builds a logger and initializes components,
// exiting the process on failure. For subcommands that always need direct
// storage access.
func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return components, logger
}

// Components holds initialized services.
type Components struct {
	Store     library.Store
	Embedder  embedding.Embedder
	Index     vector.Index
	Keywords  keyword.KeywordIndex
	Ingestor  *ingest.Ingestor
	Retriever *retrieval.Retriever
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
}

func newEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	switch cfg.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			if logger != nil {
				logger.Warn("onnx embedder unavailable, falling back to mock",
					zap.String("model_path", cfg.ModelPath),
					zap.Error(err))
			}
			return embedding.NewMockEmbedder(cfg.Dimensions)
		}
		return onnxEmbedder
	default:
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return embedding.NewOllamaEmbedder(cfg.Endpoint, cfg.Model, cfg.Dimensions, timeout)
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := library.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	var embedder embedding.Embedder = newEmbedder(&cfg.Embedding, logger)
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	index, err := vector.NewFlatIndex(cfg.Embedding.Dimensions, embedder.ModelID())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if loadErr := index.Load(cfg.Storage.IndexPath); loadErr != nil {
		if errors.Is(loadErr, vector.ErrDimensionMismatch) || errors.Is(loadErr, vector.ErrIndexCorrupt) {
			return nil, fmt.Errorf("vector index at %s is unusable (%w); clear the library and re-ingest to rebuild",
				cfg.Storage.IndexPath, loadErr)
		}
		return nil, fmt.Errorf("failed to load vector index: %w", loadErr)
	}
	if logger != nil {
		logger.Info("vector index loaded",
			zap.String("path", cfg.Storage.IndexPath),
			zap.Int("entries", index.Size()),
			zap.String("model", embedder.ModelID()))
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	if report, err := library.ValidateConsistency(context.Background(), store, index.ChunkIDs()); err == nil {
		if len(report.MissingFromIndex) > 0 || len(report.OrphanedInIndex) > 0 {
			if logger != nil {
				logger.Warn("store and index disagree",
					zap.Int("missing_from_index", len(report.MissingFromIndex)),
					zap.Int("orphaned_in_index", len(report.OrphanedInIndex)))
			}
		}
	}

	ingOpts := []ingest.IngestorOption{}
	retrOpts := []retrieval.RetrieverOption{retrieval.WithLogger(logger)}
	if debug && logger != nil {
		ingOpts = append(ingOpts, ingest.WithLogger(logger))
	}
	ingestor := ingest.NewIngestor(store, embedder, index, keywordIndex, cfg, extract.NewExtractor(), ingOpts...)
	retriever := retrieval.NewRetriever(store, embedder, index, keywordIndex, &cfg.Retrieval, retrOpts...)

	return &Components{
		Store:     store,
		Embedder:  embedder,
		Index:     index,
		Keywords:  keywordIndex,
		Ingestor:  ingestor,
		Retriever: retriever,
	}, nil
}

func printUsage() {
	fmt.Println(`bunken - Literature library and retrieval for grant proposals

Usage:
  bunken server [flags]             Start the HTTP server
  bunken ingest [flags] <path>...   Ingest files or directories into the library
  bunken retrieve [flags] <query>   Retrieve relevant literature chunks
  bunken context [flags] <query>    Compose a citation-ready context block
  bunken list [flags]               List library documents
  bunken remove [flags] <id>        Remove a document
  bunken clear [flags]              Remove every document (requires --yes)
  bunken status [flags]             Show library/index status
  bunken watch <add|remove|list>    Manage watched directories
  bunken version                    Show version
  bunken help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/bunken/config.yaml)
  --debug            Enable debug logging (directory changes, file ingestion, etc.)

Retrieve Flags:
  --config string      Config file path (also supplies the default min-score)
  --server string      Server URL (default: http://localhost:8080). Falls back to direct storage when unreachable.
  --top-k int          Number of chunks to retrieve (default from config)
  --min-score float    Minimum cosine similarity (default from config, or 0.1)
  --output string      Output format: text or json (default: text)

Context Flags:
  --config string      Config file path
  --server string      Server URL (default: http://localhost:8080). Falls back to direct storage when unreachable.
  --top-k int          Number of chunks to retrieve (default from config)
  --min-score float    Minimum cosine similarity (default from config)
  --max-chars int      Context budget in characters (default from config)
  --output string      Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path
  --output string    Output format for batch reports: text or json

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Falls back to direct storage when unreachable.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  bunken server
  bunken ingest ~/library/papers
  bunken retrieve "transfer learning for low-resource languages"
  bunken retrieve --top-k 10 --min-score 0.3 bayesian optimization
  bunken context --max-chars 2000 "few-shot prompting"
  bunken list
  bunken remove doc:2f7c81a94b...
  bunken status --output json
  bunken watch add ~/library/incoming`)
}
