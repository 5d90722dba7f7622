// Package main is the bunrui CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/cli"
	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/server"
	"github.com/hyperjump/bunrui/internal/watcher"
	"github.com/hyperjump/bunrui/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/bunrui/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present; when neither exists, defaults plus
// BUNRUI_* variables are used. Returns the path actually loaded, or "" when
// running without a file.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			if err := config.ApplyEnv(cfg); err != nil {
				return nil, "", err
			}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "upload":
		runUpload(args)
	case "cluster":
		runCluster(args)
	case "search":
		runSearch(args)
	case "predict":
		runPredict(args)
	case "list":
		runList(args)
	case "contents":
		runContents(args)
	case "get":
		runGet(args)
	case "label":
		runLabel(args)
	case "delete":
		runDelete(args)
	case "clear":
		runClear(args)
	case "status":
		runStatus(args)
	case "watch":
		runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("bunrui version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

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
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("vectorizer", cfg.Vectorizer.Strategy),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	inbox := watcher.NewInbox(components.Corpus,
		watcher.WithInboxLogger(logger),
		watcher.WithIngestTimeout(cfg.Server.RequestTimeout),
	)
	watchSvc := watcher.New(inbox, watcher.Options{
		Roots:      cfg.Watch.Directories,
		Extensions: cfg.Upload.AllowedExtensions,
		Recursive:  cfg.Watch.RecursiveOrDefault(),
	}, watcher.WithLogger(logger))
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}

	srv := server.NewServer(components.Corpus, cfg,
		server.WithLogger(logger),
		server.WithMetrics(components.Metrics),
		server.WithWatch(watchSvc, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// clientFlags are shared by every subcommand that talks to a running server.
type clientFlags struct {
	server  *string
	output  *string
	timeout *time.Duration
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	def := defaultServerURL
	if v := os.Getenv("BUNRUI_SERVER"); v != "" {
		def = v
	}
	return clientFlags{
		server:  fs.String("server", def, "server URL"),
		output:  fs.String("output", "text", "output format: text or json"),
		timeout: fs.Duration("timeout", 5*time.Minute, "request timeout"),
	}
}

func (f clientFlags) client() *cli.Client {
	return cli.NewClient(*f.server, *f.timeout)
}

func (f clientFlags) format() cli.OutputFormat {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fail("%v", err)
	}
	return format
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// reorderArgs moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func reorderArgs(args []string) []string {
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

// joinArgs joins positional args with spaces so multi-word input works with
// or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// expandUploadPaths replaces directories with the files directly inside them.
func expandUploadPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	return out, nil
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() < 1 {
		fmt.Println("Usage: bunrui upload [flags] <file-or-directory>...")
		os.Exit(1)
	}
	paths, err := expandUploadPaths(fs.Args())
	if err != nil {
		fail("Upload failed: %v", err)
	}
	if len(paths) == 0 {
		fail("Upload failed: no files found")
	}
	results, err := cf.client().Upload(context.Background(), paths)
	if err != nil {
		fail("Upload failed: %v", err)
	}
	if err := cli.WriteUploadResults(os.Stdout, results, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runCluster(args []string) {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	cf := addClientFlags(fs)
	k := fs.Int("k", 0, "number of clusters (0 = server default)")
	_ = fs.Parse(args)
	summary, err := cf.client().Cluster(context.Background(), *k)
	if err != nil {
		fail("Cluster failed: %v", err)
	}
	if err := cli.WriteClusterSummary(os.Stdout, summary, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 0, "number of results (0 = server default)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: bunrui search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(args))
	query := joinArgs(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	resp, err := cf.client().Search(context.Background(), query, *limit)
	if err != nil {
		fail("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runPredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	text := joinArgs(fs.Args())
	if text == "" {
		fmt.Println("Usage: bunrui predict [flags] <text>")
		os.Exit(1)
	}
	label, err := cf.client().Predict(context.Background(), text)
	if err != nil {
		fail("Predict failed: %v", err)
	}
	_ = cli.Write(os.Stdout, cf.format(), map[string]int{"cluster": label}, func(w io.Writer) {
		fmt.Fprintf(w, "cluster %d\n", label)
	})
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(args)
	docs, err := cf.client().List(context.Background())
	if err != nil {
		fail("List failed: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runContents(args []string) {
	fs := flag.NewFlagSet("contents", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(args)
	groups, err := cf.client().ClusterContents(context.Background())
	if err != nil {
		fail("Cluster contents failed: %v", err)
	}
	if err := cli.WriteClusterContents(os.Stdout, groups, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() < 1 {
		fmt.Println("Usage: bunrui get [flags] <document-id>")
		os.Exit(1)
	}
	doc, err := cf.client().Get(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Get failed: %v", err)
	}
	_ = cli.Write(os.Stdout, cf.format(), doc, func(w io.Writer) {
		fmt.Fprintf(w, "id:        %s\nfilename:  %s\nstatus:    %s\n", doc.ID, doc.Filename, doc.Status)
		if doc.Cluster != nil {
			fmt.Fprintf(w, "cluster:   %d\n", *doc.Cluster)
		}
		fmt.Fprintf(w, "\n%s\n", doc.Text)
	})
}

func runLabel(args []string) {
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() < 2 {
		fmt.Println("Usage: bunrui label [flags] <document-id> <cluster|none>")
		os.Exit(1)
	}
	fields, err := labelFields(fs.Arg(1))
	if err != nil {
		fail("%v", err)
	}
	doc, err := cf.client().Update(context.Background(), fs.Arg(0), fields)
	if err != nil {
		fail("Label failed: %v", err)
	}
	_ = cli.Write(os.Stdout, cf.format(), doc, func(w io.Writer) {
		if doc.Cluster == nil {
			fmt.Fprintf(w, "Document %s is unclustered\n", doc.ID)
			return
		}
		fmt.Fprintf(w, "Document %s moved to cluster %d\n", doc.ID, *doc.Cluster)
	})
}

// labelFields builds the update body for a cluster label; "none" clears it.
func labelFields(arg string) (map[string]interface{}, error) {
	if strings.EqualFold(arg, "none") {
		return map[string]interface{}{"cluster": nil}, nil
	}
	k, err := strconv.Atoi(arg)
	if err != nil || k < 0 {
		return nil, fmt.Errorf("cluster must be a non-negative integer or \"none\", got %q", arg)
	}
	return map[string]interface{}{"cluster": k}, nil
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() < 1 {
		fmt.Println("Usage: bunrui delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)
	if err := cf.client().Delete(context.Background(), docID); err != nil {
		fail("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runClear(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	cf := addClientFlags(fs)
	yes := fs.Bool("yes", false, "confirm removing every document")
	_ = fs.Parse(args)
	if !*yes {
		fail("Refusing to clear the corpus without --yes")
	}
	if err := cf.client().Clear(context.Background()); err != nil {
		fail("Clear failed: %v", err)
	}
	fmt.Println("All documents removed")
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(args)
	st, err := cf.client().Status(context.Background())
	if err != nil {
		fail("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, cf.format()); err != nil {
		fail("Output failed: %v", err)
	}
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bunrui watch <add|remove|list> [path]")
		fmt.Println("  bunrui watch add <path>     Add an inbox directory")
		fmt.Println("  bunrui watch remove <path>  Stop watching an inbox directory")
		fmt.Println("  bunrui watch list           List inbox directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(reorderArgs(args[1:]))
	c := cf.client()
	ctx := context.Background()
	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: bunrui watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if sub == "add" {
			if err := c.AddWatchDirectory(ctx, path); err != nil {
				fail("Add failed: %v", err)
			}
			fmt.Printf("Added: %s\n", path)
			return
		}
		if err := c.RemoveWatchDirectory(ctx, path); err != nil {
			fail("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := c.WatchDirectories(ctx)
		if err != nil {
			fail("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fail("Unknown watch subcommand: %s", sub)
	}
}

func printUsage() {
	fmt.Println(`bunrui - document clustering and semantic search server

Usage:
  bunrui server [flags]                Start the HTTP server
  bunrui upload [flags] <path>...      Upload files (directories upload their files)
  bunrui cluster [flags]               Cluster the corpus
  bunrui search [flags] <query>        Semantic search
  bunrui predict [flags] <text>        Predict the cluster of a text
  bunrui list [flags]                  List documents
  bunrui contents [flags]              Show documents per cluster
  bunrui get [flags] <id>              Show one document
  bunrui label [flags] <id> <k|none>   Set or clear a document's cluster label
  bunrui delete [flags] <id>           Delete a document
  bunrui clear --yes                   Delete every document and fitted model
  bunrui status [flags]                Show corpus, model and storage status
  bunrui watch <add|remove|list>       Manage inbox directories
  bunrui version                       Show version
  bunrui help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/bunrui/config.yaml)
  --debug            Enable debug logging

Client Flags (all commands except server):
  --server string    Server URL (default: $BUNRUI_SERVER or http://localhost:8080)
  --output string    Output format: text or json (default: text)
  --timeout duration Request timeout (default: 5m)

Cluster Flags:
  -k int             Number of clusters (default: server's clustering.default_clusters)

Search Flags:
  --limit int        Number of results (default: server's search.default_limit)

Examples:
  bunrui server
  bunrui upload report.pdf notes.txt ./inbox
  bunrui cluster -k 5
  bunrui search "quarterly revenue"
  bunrui search --output json engine trouble
  bunrui predict "a banana smoothie recipe"
  bunrui watch add ~/Documents/inbox`)
}
