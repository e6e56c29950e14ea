package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Field names requested from the model in the page "data" object
const (
	FieldInvoiceNumber = "invoiceNumber"
	FieldInvoiceDate   = "invoiceDate"
	FieldVendorName    = "vendorName"
	FieldCustomerName  = "customerName"
	FieldTotalAmount   = "totalAmount"
	FieldSubtotal      = "subtotal"
	FieldTax           = "tax"
	FieldDueDate       = "dueDate"
	FieldLineItems     = "lineItems"
)

// LineItem is a single invoice line as returned by the model, e.g. {"description": "x", "amount": 1}
type LineItem map[string]any

// Description returns the line item description, or "" if absent
func (l LineItem) Description() string {
	return FormatValue(l["description"])
}

// PageClassification is the decoded model output for one page
type PageClassification struct {
	IsStart        bool
	IsContinuation bool
	IsEnd          bool
	IsBlank        bool
	// Fields holds every data value except line items. Values are strings, json.Number, bools, nil
	// or nested objects exactly as the model returned them.
	Fields    map[string]any
	LineItems []LineItem
}

// NormalizedResult is either a decoded page or the reason it could not be decoded
type NormalizedResult struct {
	Page   *PageClassification
	Reason string
}

// OK wraps a successfully decoded page
func OK(page PageClassification) NormalizedResult {
	return NormalizedResult{Page: &page}
}

// Failed records a page that could not be classified
func Failed(reason string) NormalizedResult {
	if reason == "" {
		reason = "unknown error"
	}
	return NormalizedResult{Reason: reason}
}

// IsError reports whether the page failed to classify
func (r NormalizedResult) IsError() bool {
	return r.Page == nil
}

// CompletedInvoice is a closed-out invoice. It is never mutated after creation;
// accessors return copies.
type CompletedInvoice struct {
	fields    map[string]any
	lineItems []LineItem
}

// NewCompletedInvoice builds an invoice from fields and line items, copying both
func NewCompletedInvoice(fields map[string]any, items []LineItem) CompletedInvoice {
	inv := CompletedInvoice{
		fields:    make(map[string]any, len(fields)),
		lineItems: make([]LineItem, 0, len(items)),
	}
	for k, v := range fields {
		if k == FieldLineItems {
			continue
		}
		inv.fields[k] = v
	}
	for _, item := range items {
		inv.lineItems = append(inv.lineItems, maps.Clone(item))
	}
	return inv
}

// Field returns the value stored under name, or nil
func (c CompletedInvoice) Field(name string) any {
	return c.fields[name]
}

// Fields returns a copy of all scalar fields
func (c CompletedInvoice) Fields() map[string]any {
	return maps.Clone(c.fields)
}

// LineItems returns a copy of the line items in page order
func (c CompletedInvoice) LineItems() []LineItem {
	out := make([]LineItem, 0, len(c.lineItems))
	for _, item := range c.lineItems {
		out = append(out, maps.Clone(item))
	}
	return out
}

// LineItemCount returns the number of line items
func (c CompletedInvoice) LineItemCount() int {
	return len(c.lineItems)
}

// MarshalJSON flattens the invoice into a single object with a "lineItems" array
func (c CompletedInvoice) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.fields)+1)
	maps.Copy(out, c.fields)
	items := c.lineItems
	if items == nil {
		items = []LineItem{}
	}
	out[FieldLineItems] = items

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON restores an invoice written by MarshalJSON, preserving number text
func (c *CompletedInvoice) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding invoice: %w", err)
	}
	*c = NewCompletedInvoice(raw, lineItemsFrom(raw[FieldLineItems]))
	return nil
}

// Status is the processing outcome of one source document
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SkippedPage records a page whose classification failed
type SkippedPage struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// DocumentResult is the terminal outcome for one source file
type DocumentResult struct {
	Filename string             `json:"filename"`
	Status   Status             `json:"status"`
	Invoices []CompletedInvoice `json:"invoices"`
	Error    string             `json:"error,omitempty"`
	Pages    int                `json:"pages"`
	Skipped  []SkippedPage      `json:"skipped_pages,omitempty"`
}
