package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/scanning"
	"golang.org/x/sync/errgroup"
)

const rawPreviewLimit = 200

// Rasterizer turns a source file into one PNG image per page
type Rasterizer interface {
	Render(data []byte, contentType string) ([][]byte, error)
}

// IDGenerator generates unique IDs for runs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs documents through rendering, classification, assembly and reporting
type Service struct {
	ledger      Ledger
	classifier  scanning.PageClassifier
	rasterizer  Rasterizer
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	pageWorkers int
	resume      bool
	writeXLSX   bool
}

// NewService creates a new Service with a UUID generator and the wall clock
func NewService(cfg Config, ledger Ledger, classifier scanning.PageClassifier, rasterizer Rasterizer, storage Storage) *Service {
	return NewServiceWithDeps(cfg, ledger, classifier, rasterizer, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(cfg Config, ledger Ledger, classifier scanning.PageClassifier, rasterizer Rasterizer, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	workers := cfg.PageWorkers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		ledger:      ledger,
		classifier:  classifier,
		rasterizer:  rasterizer,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		pageWorkers: workers,
		resume:      cfg.Resume,
		writeXLSX:   cfg.WriteXLSX,
	}
}

// ProcessDocument renders, classifies and assembles one file. Failures are reported in
// the result rather than returned.
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte) invoice.DocumentResult {
	logger := slog.With("file", filename)
	result := invoice.DocumentResult{
		Filename: filename,
		Invoices: []invoice.CompletedInvoice{},
	}

	pages, err := s.rasterizer.Render(data, scanning.ContentTypeFor(filename))
	if err != nil {
		docErr := &DocumentError{Filename: filename, Err: err}
		logger.Error("Failed to render document", "error", docErr)
		result.Status = invoice.StatusError
		result.Error = err.Error()
		return result
	}
	result.Pages = len(pages)
	logger.Info("Classifying pages", "pages", len(pages))

	results := s.classifyPages(ctx, logger, pages)
	if err := ctx.Err(); err != nil {
		result.Status = invoice.StatusError
		result.Error = fmt.Sprintf("interrupted: %v", err)
		return result
	}

	assembler := invoice.NewAssembler(logger)
	for i, r := range results {
		if r.IsError() {
			result.Skipped = append(result.Skipped, invoice.SkippedPage{Page: i + 1, Reason: r.Reason})
		}
		assembler.Feed(r)
	}
	result.Invoices = assembler.Finish()
	result.Status = invoice.StatusSuccess

	logger.Info("Document processed", "invoices", len(result.Invoices), "skipped_pages", len(result.Skipped))
	return result
}

// classifyPages runs up to pageWorkers oracle calls at once; results keep page order
func (s *Service) classifyPages(ctx context.Context, logger *slog.Logger, pages [][]byte) []invoice.NormalizedResult {
	results := make([]invoice.NormalizedResult, len(pages))

	var g errgroup.Group
	g.SetLimit(s.pageWorkers)
	for i, page := range pages {
		g.Go(func() error {
			results[i] = s.classifyPage(ctx, logger, i+1, page)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) classifyPage(ctx context.Context, logger *slog.Logger, number int, page []byte) invoice.NormalizedResult {
	if err := ctx.Err(); err != nil {
		return invoice.Failed((&scanning.PageError{Page: number, Err: err}).Error())
	}

	raw, err := s.classifier.ClassifyPage(ctx, page)
	if err != nil {
		pageErr := &scanning.PageError{Page: number, Err: err}
		logger.Warn("Page classification failed", "page", number, "error", pageErr)
		return invoice.Failed(pageErr.Error())
	}
	logger.Debug("Oracle response", "page", number, "raw", preview(raw))

	return invoice.Normalize(raw)
}

// ProcessDirectory processes every supported file in dir, in name order, and writes the
// per-document JSON files and the summary reports
func (s *Service) ProcessDirectory(ctx context.Context, dir string) (*BatchReport, error) {
	report := &BatchReport{
		RunID:   s.idGenerator.Generate(),
		Results: []invoice.DocumentResult{},
	}
	logger := slog.With("run_id", report.RunID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && scanning.IsSupported(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		logger.Warn("No documents found", "dir", dir)
		return report, nil
	}
	logger.Info("Starting batch", "dir", dir, "documents", len(names))

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			logger.Warn("Batch interrupted", "processed", i, "remaining", len(names)-i)
			break
		}
		logger.Info("Processing document", "file", name, "index", i+1, "total", len(names))
		report.add(s.processFile(ctx, report.RunID, filepath.Join(dir, name)))
	}

	if err := s.writeSummary(report); err != nil {
		return report, err
	}

	logger.Info("Batch complete", "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// processFile reads one source file, reusing the ledger entry when resuming
func (s *Service) processFile(ctx context.Context, runID, path string) invoice.DocumentResult {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		docErr := &DocumentError{Filename: name, Err: err}
		slog.Error("Failed to read document", "error", docErr)
		return invoice.DocumentResult{
			Filename: name,
			Status:   invoice.StatusError,
			Invoices: []invoice.CompletedInvoice{},
			Error:    err.Error(),
		}
	}

	id := contentHash(data)
	if s.resume {
		record, err := s.ledger.GetRecord(id)
		if err == nil && record.Result.Status == invoice.StatusSuccess {
			slog.Info("Reusing recorded result", "file", name, "recorded_run", record.RunID)
			result := record.Result
			result.Filename = name
			s.saveInvoices(result)
			return result
		}
	}

	result := s.ProcessDocument(ctx, name, data)
	s.saveInvoices(result)
	s.record(id, runID, result)
	return result
}

// saveInvoices writes <stem>.json for a successful document
func (s *Service) saveInvoices(result invoice.DocumentResult) {
	if result.Status != invoice.StatusSuccess {
		return
	}
	data, err := EncodeInvoices(result.Invoices)
	if err != nil {
		slog.Error("Failed to encode invoices", "file", result.Filename, "error", err)
		return
	}
	if _, err := s.storage.Save(outputName(result.Filename), data); err != nil {
		slog.Error("Failed to save invoices", "file", result.Filename, "error", err)
	}
}

func (s *Service) record(id, runID string, result invoice.DocumentResult) {
	record := &Record{
		ID:          id,
		RunID:       runID,
		Result:      result,
		ProcessedAt: s.timeSource.Now(),
	}
	if err := s.ledger.SaveRecord(record); err != nil {
		slog.Error("Failed to record result", "file", result.Filename, "error", err)
	}
}

// writeSummary writes the CSV and, when enabled, the XLSX report
func (s *Service) writeSummary(report *BatchReport) error {
	rows := invoice.Project(report.Results)

	csvData, err := EncodeCSV(rows)
	if err != nil {
		return err
	}
	if _, err := s.storage.Save(summaryCSV, csvData); err != nil {
		return fmt.Errorf("saving csv summary: %w", err)
	}
	report.CSVPath = s.storage.Path(summaryCSV)

	if !s.writeXLSX {
		return nil
	}
	xlsxData, err := EncodeXLSX(rows)
	if err != nil {
		return err
	}
	if _, err := s.storage.Save(summaryXLSX, xlsxData); err != nil {
		return fmt.Errorf("saving xlsx summary: %w", err)
	}
	report.XLSXPath = s.storage.Path(summaryXLSX)
	return nil
}

// ProcessUpload processes one uploaded file and records it under a fresh run ID
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte) (*Record, error) {
	name := sanitizeFilename(filename)
	if !scanning.IsSupported(name) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}

	result := s.ProcessDocument(ctx, name, data)
	s.saveInvoices(result)

	record := &Record{
		ID:          contentHash(data),
		RunID:       s.idGenerator.Generate(),
		Result:      result,
		ProcessedAt: s.timeSource.Now(),
	}
	if err := s.ledger.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving record: %w", err)
	}
	return record, nil
}

// GetRecord retrieves a ledger record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.ledger.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all ledger records
func (s *Service) ListRecords() ([]*Record, error) {
	records, err := s.ledger.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// RecordSummaryCSV projects a single record into summary CSV
func (s *Service) RecordSummaryCSV(id string) ([]byte, error) {
	record, err := s.GetRecord(id)
	if err != nil {
		return nil, err
	}
	return EncodeCSV(invoice.Project([]invoice.DocumentResult{record.Result}))
}

// RecordInvoices returns the JSON invoice file written for a record. When the file
// has gone missing it is rebuilt from the ledger copy.
func (s *Service) RecordInvoices(id string) ([]byte, error) {
	record, err := s.GetRecord(id)
	if err != nil {
		return nil, err
	}
	if record.Result.Status != invoice.StatusSuccess {
		return nil, fmt.Errorf("%w: no invoices for %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(outputName(record.Result.Filename))
	if err != nil {
		slog.Warn("Invoice file unavailable, encoding from ledger", "file", record.Result.Filename, "error", err)
		return EncodeInvoices(record.Result.Invoices)
	}
	return data, nil
}

// DeleteRecord removes a record and its JSON output
func (s *Service) DeleteRecord(id string) error {
	record, err := s.ledger.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if record.Result.Status == invoice.StatusSuccess {
		if err := s.storage.Delete(outputName(record.Result.Filename)); err != nil {
			// Log error but continue with ledger deletion
			slog.Warn("Failed to delete output file", "file", record.Result.Filename, "error", err)
		}
	}

	if err := s.ledger.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record from ledger: %w", err)
	}
	return nil
}

// outputName maps a source file name to its JSON output name
func outputName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips directories and special characters and truncates long names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "document"
	}

	return base + ext
}

// preview shortens raw oracle text for logs
func preview(s string) string {
	if utf8.RuneCountInString(s) <= rawPreviewLimit {
		return s
	}
	return string([]rune(s)[:rawPreviewLimit]) + "..."
}
