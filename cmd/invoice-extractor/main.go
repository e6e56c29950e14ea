package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	fs := ff.NewFlagSet("invoice-extractor")
	var (
		sourceDir    = fs.StringLong("source", "./sample_PDFs", "Directory of PDFs and images to process")
		outputDir    = fs.StringLong("output", "./extracted_data", "Directory for JSON, CSV and XLSX output")
		oracle       = fs.StringLong("oracle", scanning.BackendGemini, "Vision model backend: 'gemini', 'claude' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		claudeKey    = fs.StringLong("claude-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		claudeModel  = fs.StringLong("claude-model", "claude-sonnet-4-20250514", "Anthropic model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl)")
		dpi          = fs.IntLong("dpi", scanning.DefaultDPI, "Resolution used to render PDF pages")
		maxDimension = fs.IntLong("max-dimension", scanning.DefaultMaxDimension, "Longest page edge in pixels sent to the model")
		maxPages     = fs.IntLong("max-pages", 0, "Reject PDFs with more pages than this (0 = unlimited)")
		pageWorkers  = fs.IntLong("page-workers", 1, "Pages of one document classified at once")
		retries      = fs.IntLong("retries", 3, "Retries per page after the first failed model call")
		retryBackoff = fs.DurationLong("retry-backoff", 0, "Base wait between retries, multiplied by the attempt number (default 2s)")
		rpm          = fs.IntLong("requests-per-minute", 0, "Model calls allowed per minute (0 = unlimited)")
		ledgerPath   = fs.StringLong("ledger", "", "Run ledger file (default <output>/ledger.db)")
		resume       = fs.BoolLong("resume", "Reuse recorded results for documents already processed successfully")
		writeXLSX    = fs.BoolLong("xlsx", "Also write invoices_summary.xlsx")
		mode         = fs.StringLong("mode", "batch", "Run mode: 'batch' or 'serve'")
		port         = fs.IntLong("port", 8080, "HTTP server port (serve mode)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_            = fs.StringLong("config", "", "Config file with one 'flag value' per line (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("INVOICE_EXTRACTOR"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	if *ledgerPath == "" {
		*ledgerPath = filepath.Join(*outputDir, "ledger.db")
	}
	cfg := extraction.Config{
		SourceDir:   *sourceDir,
		OutputDir:   *outputDir,
		LedgerPath:  *ledgerPath,
		PageWorkers: *pageWorkers,
		Resume:      *resume,
		WriteXLSX:   *writeXLSX,
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}
	if *mode != "batch" && *mode != "serve" {
		slog.Error("Invalid mode", "mode", *mode, "valid", "batch or serve")
		return 1
	}

	// Get API keys from flags or the provider's usual environment variable
	if *geminiKey == "" {
		*geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if *claudeKey == "" {
		*claudeKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	classifier, err := scanning.New(scanning.Config{
		Backend:           *oracle,
		GeminiKey:         *geminiKey,
		GeminiModel:       *geminiModel,
		ClaudeKey:         *claudeKey,
		ClaudeModel:       *claudeModel,
		OllamaURL:         *ollamaURL,
		OllamaModel:       *ollamaModel,
		Retries:           *retries,
		RetryBackoff:      *retryBackoff,
		RequestsPerMinute: *rpm,
	})
	if err != nil {
		slog.Error("Failed to initialize classifier", "error", err)
		return 1
	}
	defer classifier.Close()

	slog.Info("Initializing storage...", "output", cfg.OutputDir)
	store, err := extraction.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		return 1
	}

	slog.Info("Initializing ledger...", "path", cfg.LedgerPath)
	ledger, err := extraction.NewBoltLedger(cfg.LedgerPath)
	if err != nil {
		slog.Error("Failed to initialize ledger", "error", err)
		return 1
	}
	defer ledger.Close()

	rasterizer := scanning.NewRasterizer(scanning.RenderOptions{
		DPI:          float64(*dpi),
		MaxDimension: *maxDimension,
		MaxPages:     *maxPages,
	})
	service := extraction.NewService(cfg, ledger, classifier, rasterizer, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *mode == "serve" {
		return serve(ctx, service, *port, extraction.BasicAuth{Username: *authUser, Password: *authPass})
	}
	return batch(ctx, service, cfg.SourceDir)
}

func batch(ctx context.Context, service *extraction.Service, sourceDir string) int {
	report, err := service.ProcessDirectory(ctx, sourceDir)
	if err != nil {
		slog.Error("Batch failed", "error", err)
		if report == nil {
			return 1
		}
	}

	fmt.Printf("Processed %d documents: %d succeeded, %d failed\n", len(report.Results), report.Succeeded, report.Failed)
	for _, result := range report.Results {
		if result.Error != "" {
			fmt.Printf("  %s: %s\n", result.Filename, result.Error)
		}
	}
	if report.CSVPath != "" {
		fmt.Printf("Summary: %s\n", report.CSVPath)
	}
	if report.XLSXPath != "" {
		fmt.Printf("Workbook: %s\n", report.XLSXPath)
	}
	if err != nil {
		return 1
	}
	return 0
}

func serve(ctx context.Context, service *extraction.Service, port int, auth extraction.BasicAuth) int {
	server := extraction.NewServer(service, auth)

	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if auth.Username != "" || auth.Password != "" {
		slog.Info("Basic auth enabled", "user", auth.Username)
	}

	select {
	case err := <-errCh:
		slog.Error("Server error", "error", err)
		return 1
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return 0
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
