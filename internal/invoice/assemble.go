package invoice

import (
	"log/slog"
	"maps"
)

// accumulator is the invoice being built across pages. Only the Assembler touches it.
type accumulator struct {
	fields    map[string]any
	lineItems []LineItem
}

func newAccumulator(page *PageClassification) *accumulator {
	acc := &accumulator{fields: make(map[string]any, len(page.Fields))}
	acc.merge(page.Fields)
	acc.appendItems(page.LineItems)
	return acc
}

// merge copies non-null values over existing ones; null never erases
func (a *accumulator) merge(fields map[string]any) {
	for k, v := range fields {
		if v == nil || k == FieldLineItems {
			continue
		}
		a.fields[k] = v
	}
}

func (a *accumulator) appendItems(items []LineItem) {
	for _, item := range items {
		a.lineItems = append(a.lineItems, maps.Clone(item))
	}
}

func (a *accumulator) empty() bool {
	return len(a.fields) == 0 && len(a.lineItems) == 0
}

// Assembler turns the ordered page results of one document into completed invoices.
// It must be fed pages in order from a single goroutine.
type Assembler struct {
	logger    *slog.Logger
	current   *accumulator
	completed []CompletedInvoice
	page      int
}

// NewAssembler returns an Assembler with no open invoice
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Feed applies one page. Start handling runs before end handling on the same page,
// and a start flag wins over a continuation flag.
func (a *Assembler) Feed(result NormalizedResult) {
	a.page++
	if result.IsError() {
		a.logger.Warn("Skipping page that failed to classify", "page", a.page, "reason", result.Reason)
		return
	}
	page := result.Page

	itemsTaken := false
	switch {
	case page.IsStart:
		a.closeOut()
		a.current = newAccumulator(page)
		itemsTaken = true
	case page.IsContinuation && a.current != nil:
		a.current.appendItems(page.LineItems)
		itemsTaken = true
	case page.IsContinuation:
		a.logger.Warn("Continuation page with no open invoice", "page", a.page)
	}

	if page.IsEnd {
		if a.current == nil {
			a.logger.Warn("End page with no open invoice", "page", a.page)
			return
		}
		if !itemsTaken {
			a.current.appendItems(page.LineItems)
		}
		a.current.merge(page.Fields)
		a.closeOut()
	}
}

// Finish flushes any invoice still open and returns everything completed, in order
func (a *Assembler) Finish() []CompletedInvoice {
	if a.current != nil {
		a.logger.Debug("Flushing invoice without an end page", "pages", a.page)
	}
	a.closeOut()
	completed := a.completed
	if completed == nil {
		completed = []CompletedInvoice{}
	}
	a.completed = nil
	a.page = 0
	return completed
}

func (a *Assembler) closeOut() {
	if a.current == nil {
		return
	}
	if a.current.empty() {
		a.logger.Debug("Discarding invoice with no data", "page", a.page)
	} else {
		a.completed = append(a.completed, NewCompletedInvoice(a.current.fields, a.current.lineItems))
	}
	a.current = nil
}

// Assemble runs the page results of one document through a fresh Assembler
func Assemble(results []NormalizedResult) []CompletedInvoice {
	a := NewAssembler(nil)
	for _, r := range results {
		a.Feed(r)
	}
	return a.Finish()
}
