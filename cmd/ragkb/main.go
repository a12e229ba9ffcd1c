// Package main is the ragkb CLI entry point.
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

	"github.com/hyperjump/ragkb/internal/answer"
	"github.com/hyperjump/ragkb/internal/cli"
	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/embedding"
	"github.com/hyperjump/ragkb/internal/indexer"
	"github.com/hyperjump/ragkb/internal/llm"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/search"
	"github.com/hyperjump/ragkb/internal/server"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vectorstore"
	"github.com/hyperjump/ragkb/internal/watcher"
	"github.com/hyperjump/ragkb/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// defaultConfigPath is looked up in the working directory. When it does not exist the
// built-in defaults are used.
const defaultConfigPath = "config.yaml"

const defaultServerURL = "http://localhost:8000"

// loadConfig loads config from path. A missing default config file is not an error: defaults
// apply and the returned path is empty, so nothing is written back.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, "", err
	}
	return cfg, abs, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "query":
		err = runQuery(args, os.Stdout)
	case "ingest":
		err = runIngest(args, os.Stdout)
	case "delete":
		err = runDelete(args, os.Stdout)
	case "list":
		err = runList(args, os.Stdout)
	case "stats":
		err = runStats(args, os.Stdout)
	case "reindex":
		err = runReindex(args, os.Stdout)
	case "clear":
		err = runClear(args, os.Stdout)
	case "watch":
		err = runWatch(args, os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("ragkb version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

// commonFlags are shared by every command that opens the knowledge base.
type commonFlags struct {
	configPath *string
	debug      *bool
	format     *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		format:     fs.String("format", "text", "output format: text or json"),
	}
}

func (f commonFlags) outputFormat() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(*f.format)
}

// open loads the config and initializes every component. Callers must Close the result.
func (f commonFlags) open() (*Components, error) {
	cfg, resolved, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	debugMode := cfg.Debug || *f.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	c, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	c.ConfigPath = resolved
	return c, nil
}

// argsReorder moves any flags (and their values) that appear after positional arguments to the
// front so flag.Parse sees them. "ragkb query what is go --top-k 3" would otherwise leave --top-k
// in the query text.
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

// buildQuery joins positional args with spaces so multi-word queries work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	flags := addCommonFlags(fs)
	noWatch := fs.Bool("no-watch", false, "disable the directory watcher")
	_ = fs.Parse(args)

	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.Config, c.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watchSvc server.WatchService
	if !*noWatch {
		w := watcher.New(c.Indexer, watcher.Options{
			Roots:      cfg.Watch.Directories,
			Extensions: cfg.Watch.Extensions,
			Recursive:  cfg.Watch.RecursiveOrDefault(),
			Logger:     logger,
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Stop()
		go w.SyncExistingFiles()
		watchSvc = w
	}

	srv := server.NewServer(c.Engine, c.Indexer, c.Storage, cfg, logger, watchSvc, c.ConfigPath)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	logger.Info("shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.Stop(shutdownCtx)
}

func runQuery(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	flags := addCommonFlags(fs)
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = configured default)")
	serverURL := fs.String("server", "", "query a running server at this URL instead of opening the index")
	_ = fs.Parse(argsReorder(args))

	text := buildQuery(fs.Args())
	if text == "" {
		return errors.New("usage: ragkb query [flags] <question>")
	}
	format, err := flags.outputFormat()
	if err != nil {
		return err
	}

	var resp *models.QueryResponse
	if *serverURL != "" {
		resp = &models.QueryResponse{}
		req := models.QueryRequest{Query: text, TopK: *topK}
		if err := postJSON(*serverURL+"/api/v1/query", req, http.StatusOK, resp); err != nil {
			return err
		}
	} else {
		c, err := flags.open()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err = c.Engine.Query(context.Background(), text, *topK)
		if err != nil {
			return err
		}
	}
	return cli.WriteQueryResponse(out, resp, format)
}

func runIngest(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	flags := addCommonFlags(fs)
	text := fs.String("text", "", "ingest this text instead of a file")
	filename := fs.String("filename", "", "display name for --text input")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	_ = fs.Parse(argsReorder(args))

	format, err := flags.outputFormat()
	if err != nil {
		return err
	}
	if *text == "" && fs.NArg() < 1 {
		return errors.New("usage: ragkb ingest [flags] <file-or-directory> | ragkb ingest --text <text> --filename <name>")
	}

	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()

	if *text != "" {
		doc, err := c.Indexer.IndexText(ctx, &models.DocumentInput{Filename: *filename, Content: *text})
		if err != nil {
			return err
		}
		return cli.WriteIngestResult(out, doc, format)
	}

	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		n, err := c.Indexer.IndexDirectory(ctx, path, c.Config.Watch.Extensions, *recursive)
		if err != nil {
			return fmt.Errorf("indexed %d file(s) before failing: %w", n, err)
		}
		if format == cli.OutputJSON {
			return json.NewEncoder(out).Encode(map[string]interface{}{"directory": path, "files_indexed": n})
		}
		fmt.Fprintf(out, "Indexed %d file(s) from %s\n", n, path)
		return nil
	}
	doc, err := c.Indexer.IndexFile(ctx, path, nil)
	if err != nil {
		return err
	}
	return cli.WriteIngestResult(out, doc, format)
}

func runDelete(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		return errors.New("usage: ragkb delete [flags] <document-id>")
	}
	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	doc, err := c.Indexer.DeleteDocument(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Document %s deleted successfully\n", doc.Filename)
	return nil
}

func runList(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	flags := addCommonFlags(fs)
	offset := fs.Int("offset", 0, "skip this many documents")
	limit := fs.Int("limit", 0, "maximum number of documents (0 = all)")
	_ = fs.Parse(args)
	format, err := flags.outputFormat()
	if err != nil {
		return err
	}
	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	docs, err := c.Storage.ListDocuments(context.Background(), *offset, *limit)
	if err != nil {
		return err
	}
	return cli.WriteDocuments(out, docs, format)
}

func runStats(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	flags := addCommonFlags(fs)
	serverURL := fs.String("server", "", "read stats from a running server at this URL")
	_ = fs.Parse(args)
	format, err := flags.outputFormat()
	if err != nil {
		return err
	}
	var stats *search.Stats
	if *serverURL != "" {
		stats = &search.Stats{}
		if err := getJSON(*serverURL+"/api/v1/stats", stats); err != nil {
			return err
		}
	} else {
		c, err := flags.open()
		if err != nil {
			return err
		}
		defer c.Close()
		stats, err = c.Engine.Stats(context.Background())
		if err != nil {
			return err
		}
	}
	return cli.WriteStats(out, stats, format)
}

func runReindex(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	n, err := c.Indexer.Reindex(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reindexed %d chunk(s) with %s\n", n, c.Encoder.ModelName())
	return nil
}

func runClear(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	flags := addCommonFlags(fs)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	_ = fs.Parse(args)
	if !*yes {
		return errors.New("clear removes every document and the vector index; rerun with --yes to confirm")
	}
	c, err := flags.open()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Indexer.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(out, "Knowledge base cleared")
	return nil
}

func runWatch(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: ragkb watch <add|remove|list> [--server URL] [path]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(args[1:]))
	endpoint := *serverURL + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			return errors.New("usage: ragkb watch add <path>")
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		body := map[string]interface{}{"path": path, "sync": true}
		if err := postJSON(endpoint, body, http.StatusCreated, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			return errors.New("usage: ragkb watch remove <path>")
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if err := checkStatus(resp, http.StatusOK); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed: %s\n", path)
	case "list":
		var list struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(endpoint, &list); err != nil {
			return err
		}
		for _, d := range list.Directories {
			fmt.Fprintln(out, d)
		}
	default:
		return fmt.Errorf("unknown watch subcommand: %s", sub)
	}
	return nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// postJSON posts body to endpoint and decodes the response into out when out is non-nil.
func postJSON(endpoint string, body interface{}, want int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, want); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Storage    storage.Storage
	Encoder    embedding.Encoder
	Store      *vectorstore.Store
	Engine     *search.Engine
	Indexer    *indexer.Indexer
}

// Close releases storage, the vector store and the encoder, then flushes the logger.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Encoder != nil {
		_ = c.Encoder.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	logger = utils.LoggerOrNop(logger)
	c := &Components{Config: cfg, Logger: logger}

	enc, err := embedding.NewEncoder(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	c.Encoder = enc

	store, err := vectorstore.Open(enc, vectorstore.Options{
		Path:               cfg.Storage.IndexPath,
		IndexType:          cfg.Vector.IndexType,
		AllowModelMismatch: cfg.Vector.AllowModelMismatch,
		Workers:            cfg.Embedding.Workers,
		BatchSize:          cfg.Embedding.BatchSize,
		EncodeTimeout:      cfg.Embedding.Timeout(),
		Logger:             logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	c.Store = store

	backend, err := llm.NewBackend(cfg.LLM)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize llm backend: %w", err)
	}
	synth := answer.NewSynthesizer(backend, answer.Options{
		Temperature:     cfg.LLM.TemperatureOrDefault(),
		MaxTokens:       cfg.LLM.MaxTokens,
		GenerateTimeout: cfg.LLM.Timeout(),
		Logger:          logger,
	})
	logger.Info("answer synthesizer ready", zap.String("mode", synth.Mode()))

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = st

	c.Indexer = indexer.NewIndexer(st, store, cfg.Chunking,
		indexer.WithUploadDir(cfg.Storage.UploadDir),
		indexer.WithLogger(logger),
	)
	c.Engine = search.NewEngine(store, synth, cfg.Query,
		search.WithStorage(st),
		search.WithDiskPaths(
			cfg.Storage.DatabasePath,
			cfg.Storage.IndexPath+".index",
			cfg.Storage.IndexPath+".meta",
			cfg.Storage.UploadDir,
		),
		search.WithLogger(logger),
	)
	return c, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `ragkb - local knowledge base with retrieval-augmented answers

Usage:
  ragkb server [flags]                 Start the HTTP API (and the directory watcher)
  ragkb query [flags] <question>       Answer a question from the knowledge base
  ragkb ingest [flags] <file|dir>      Ingest a file or every supported file in a directory
  ragkb ingest --text <t> --filename n Ingest raw text
  ragkb delete [flags] <document-id>   Delete a document and rebuild the index
  ragkb list [flags]                   List documents
  ragkb stats [flags]                  Show knowledge base statistics
  ragkb reindex [flags]                Re-encode every stored chunk (after a model change)
  ragkb clear --yes [flags]            Remove every document and the vector index
  ragkb watch <add|remove|list>        Manage watched directories of a running server
  ragkb version                        Show version
  ragkb help                           Show this help

Common Flags:
  --config string   Config file path (default: ./config.yaml, built-in defaults when absent)
  --debug           Enable debug logging
  --format string   Output format: text or json (default: text)

Query Flags:
  --top-k int       Number of chunks to retrieve (default from config)
  --server string   Use a running server instead of opening the index directly

Server Flags:
  --no-watch        Do not start the directory watcher

Examples:
  ragkb ingest ./docs
  ragkb query what is the refund policy
  ragkb query --format json --top-k 3 "refund policy"
  ragkb watch add ./notes`)
}
