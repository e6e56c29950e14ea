package extraction

import (
	"errors"
	"fmt"
	"time"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// ErrNotFound is returned when the ledger holds no record for an ID
var ErrNotFound = errors.New("record not found")

// Record is the ledger entry for one processed document, keyed by content hash
type Record struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	Result      invoice.DocumentResult `json:"result"`
	ProcessedAt time.Time              `json:"processed_at"`
}

// BatchReport is the outcome of one directory run
type BatchReport struct {
	RunID     string                   `json:"run_id"`
	Results   []invoice.DocumentResult `json:"results"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	CSVPath   string                   `json:"csv_path,omitempty"`
	XLSXPath  string                   `json:"xlsx_path,omitempty"`
}

func (r *BatchReport) add(result invoice.DocumentResult) {
	r.Results = append(r.Results, result)
	if result.Status == invoice.StatusSuccess {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// DocumentError is a failure that aborts one document, such as a corrupt PDF
type DocumentError struct {
	Filename string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("processing %s: %v", e.Filename, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}
