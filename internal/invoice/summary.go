package invoice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoInvoicesFound is written in the invoiceNumber column of a successful document with no invoices
const NoInvoicesFound = "No invoices found"

const lineItemsSummaryLimit = 300

// Columns is the fixed summary column set, in order
var Columns = []string{
	"filename", "status", "invoiceNumber", "invoiceDate",
	"vendorName", "customerName", "totalAmount", "subtotal", "tax",
	"dueDate", "lineItemsCount", "lineItemsSummary", "error",
}

// Row is one line of the summary report
type Row struct {
	Filename         string `json:"filename"`
	Status           Status `json:"status"`
	InvoiceNumber    string `json:"invoiceNumber"`
	InvoiceDate      string `json:"invoiceDate"`
	VendorName       string `json:"vendorName"`
	CustomerName     string `json:"customerName"`
	TotalAmount      string `json:"totalAmount"`
	Subtotal         string `json:"subtotal"`
	Tax              string `json:"tax"`
	DueDate          string `json:"dueDate"`
	LineItemsCount   int    `json:"lineItemsCount"`
	LineItemsSummary string `json:"lineItemsSummary"`
	Error            string `json:"error"`

	// HasInvoice is false for error and placeholder rows, whose count column is left blank
	HasInvoice bool `json:"-"`
}

// Values returns the row as strings in Columns order
func (r Row) Values() []string {
	count := ""
	if r.HasInvoice {
		count = strconv.Itoa(r.LineItemsCount)
	}
	return []string{
		r.Filename, string(r.Status), r.InvoiceNumber, r.InvoiceDate,
		r.VendorName, r.CustomerName, r.TotalAmount, r.Subtotal, r.Tax,
		r.DueDate, count, r.LineItemsSummary, r.Error,
	}
}

// Project flattens document results into summary rows: one per invoice, one per failed
// document and one placeholder per successful document without invoices
func Project(results []DocumentResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, result := range results {
		if result.Status == StatusError {
			rows = append(rows, Row{
				Filename: result.Filename,
				Status:   StatusError,
				Error:    result.Error,
			})
			continue
		}
		if len(result.Invoices) == 0 {
			rows = append(rows, Row{
				Filename:      result.Filename,
				Status:        StatusSuccess,
				InvoiceNumber: NoInvoicesFound,
			})
			continue
		}
		for _, inv := range result.Invoices {
			rows = append(rows, invoiceRow(result.Filename, inv))
		}
	}
	return rows
}

func invoiceRow(filename string, inv CompletedInvoice) Row {
	return Row{
		Filename:         filename,
		Status:           StatusSuccess,
		InvoiceNumber:    FormatValue(inv.Field(FieldInvoiceNumber)),
		InvoiceDate:      FormatValue(inv.Field(FieldInvoiceDate)),
		VendorName:       FormatValue(inv.Field(FieldVendorName)),
		CustomerName:     FormatValue(inv.Field(FieldCustomerName)),
		TotalAmount:      FormatValue(inv.Field(FieldTotalAmount)),
		Subtotal:         FormatValue(inv.Field(FieldSubtotal)),
		Tax:              FormatValue(inv.Field(FieldTax)),
		DueDate:          FormatValue(inv.Field(FieldDueDate)),
		LineItemsCount:   inv.LineItemCount(),
		LineItemsSummary: summarizeLineItems(inv.lineItems),
		HasInvoice:       true,
	}
}

func summarizeLineItems(items []LineItem) string {
	descriptions := make([]string, 0, len(items))
	for _, item := range items {
		if d := item.Description(); d != "" {
			descriptions = append(descriptions, d)
		}
	}
	return truncate(strings.Join(descriptions, ", "), lineItemsSummaryLimit)
}

// FormatValue renders a model-supplied value for a report cell
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
