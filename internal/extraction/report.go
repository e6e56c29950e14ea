package extraction

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"
	"github.com/zombor/invoice-extractor/internal/invoice"
)

const (
	summaryCSV  = "invoices_summary.csv"
	summaryXLSX = "invoices_summary.xlsx"
	sheetName   = "Invoices"
)

// EncodeInvoices renders one document's invoices as indented JSON
func EncodeInvoices(invoices []invoice.CompletedInvoice) ([]byte, error) {
	if invoices == nil {
		invoices = []invoice.CompletedInvoice{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(invoices); err != nil {
		return nil, fmt.Errorf("encoding invoices: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeCSV renders summary rows under the fixed header
func EncodeCSV(rows []invoice.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(invoice.Columns); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.Values()); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeXLSX renders summary rows as a single-sheet workbook
func EncodeXLSX(rows []invoice.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range invoice.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for r, row := range rows {
		for c, v := range row.Values() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var value any = v
			// count cells stay numeric
			if invoice.Columns[c] == "lineItemsCount" && row.HasInvoice {
				value = row.LineItemsCount
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", r+1, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 32)
	_ = f.SetColWidth(sheetName, "C", "F", 20)
	_ = f.SetColWidth(sheetName, "L", "M", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
