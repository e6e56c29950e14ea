package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// DefaultDPI matches a 2x zoom of the 72 DPI PDF user space
	DefaultDPI = 144
	// DefaultMaxDimension bounds the longest side of a page image sent to a model
	DefaultMaxDimension = 2048

	contentTypePDF = "application/pdf"
)

// RenderOptions controls how source documents become page images
type RenderOptions struct {
	DPI          float64
	MaxDimension int
	// MaxPages rejects documents with more pages; 0 means no limit
	MaxPages int
}

// Rasterizer turns a PDF or a single image into one PNG per page
type Rasterizer struct {
	opts RenderOptions
}

// NewRasterizer creates a Rasterizer, filling in defaults for zero options
func NewRasterizer(opts RenderOptions) *Rasterizer {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	return &Rasterizer{opts: opts}
}

// Render returns the pages of the document as PNG images, in page order.
// Images are treated as single-page documents.
func (r *Rasterizer) Render(data []byte, contentType string) ([][]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == contentTypePDF {
		return r.renderPDF(data)
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("converting image to PNG: %w", err)
	}
	page, err := r.encodePage(img)
	if err != nil {
		return nil, err
	}
	return [][]byte{page}, nil
}

// renderPDF checks the page limit with pdfcpu before handing the document to fitz.
// fitz only enforces the limit itself when pdfcpu could not read the page tree.
func (r *Rasterizer) renderPDF(data []byte) ([][]byte, error) {
	counted := false
	if r.opts.MaxPages > 0 {
		count, err := CountPages(data)
		if err != nil {
			slog.Warn("Could not count PDF pages, leaving the limit to the renderer", "error", err)
		} else if count > r.opts.MaxPages {
			return nil, r.pageLimitError(count)
		} else {
			counted = true
		}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if r.opts.MaxPages > 0 && !counted && numPages > r.opts.MaxPages {
		return nil, r.pageLimitError(numPages)
	}

	pages := make([][]byte, 0, numPages)
	for i := 0; i < numPages; i++ {
		img, err := doc.ImageDPI(i, r.opts.DPI)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		page, err := r.encodePage(img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (r *Rasterizer) pageLimitError(pages int) error {
	return fmt.Errorf("document has %d pages, limit is %d", pages, r.opts.MaxPages)
}

// encodePage scales the image down to MaxDimension if needed and encodes it as PNG
func (r *Rasterizer) encodePage(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() > r.opts.MaxDimension || bounds.Dy() > r.opts.MaxDimension {
		img = imaging.Fit(img, r.opts.MaxDimension, r.opts.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

var disableConfigDir sync.Once

// CountPages reads the page count without rendering, using relaxed validation
func CountPages(data []byte) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("counting PDF pages: %w", err)
	}
	return count, nil
}

// decodeImage decodes any supported image format
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// Check for ftyp at offset 4 followed by a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// ContentTypeFor maps a file name to the MIME type Render expects
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return contentTypePDF
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// IsSupported reports whether the file can be rendered into pages
func IsSupported(filename string) bool {
	return ContentTypeFor(filename) != "application/octet-stream"
}
