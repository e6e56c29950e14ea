package scanning

import (
	"context"
	"errors"
	"fmt"
)

// pageClassificationPrompt is the shared prompt used by all LLM providers for classifying one invoice page
const pageClassificationPrompt = `You are looking at ONE page of a scanned PDF that may contain several invoices, and a single invoice may run across several pages. Extract only what is printed on THIS page and say where the page sits within an invoice.

Return one JSON object with two keys, "status" and "data".

"status" must contain these booleans:
- "is_start_of_invoice": the page shows an invoice header (invoice number, vendor, bill-to block).
- "is_continuation": the page only carries line items or totals belonging to an invoice started on an earlier page.
- "is_end_of_invoice": the page shows the final total or amount due.
- "is_blank_or_misc": the page has no invoice content (cover sheet, terms, blank scan).

"data" holds whichever of these fields appear on this page:
invoiceNumber, invoiceDate, vendorName, customerName, totalAmount, subtotal, tax, dueDate,
and "lineItems": an array with one object per line, each with at least "description" and "amount".

Example for a first page:
{
  "status": {"is_start_of_invoice": true, "is_continuation": false, "is_end_of_invoice": false, "is_blank_or_misc": false},
  "data": {"invoiceNumber": "INV-123", "vendorName": "Acme Corp", "lineItems": [{"description": "Item A", "amount": 100.00}]}
}

Important:
- Dates in YYYY-MM-DD format
- Amounts as numbers, not strings
- Use null for a field you cannot find
- Respond with the JSON object only, no markdown and no commentary`

// ErrEmptyResponse is returned when a model replies without any text
var ErrEmptyResponse = errors.New("empty response from model")

// PageClassifier defines the interface for sending one rendered page to a vision model
type PageClassifier interface {
	// ClassifyPage sends a PNG page image with the classification prompt and returns the raw reply
	ClassifyPage(ctx context.Context, pageImage []byte) (string, error)
	// Close closes the classifier and releases resources
	Close() error
}

// PageError is a page that could not be classified after all retries
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("classifying page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
