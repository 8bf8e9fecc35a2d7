package pdf

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/spherical/slide-creator/internal/domain"
)

// PlainTextExtractor reads the embedded text layer with a pure Go parser.
// Scanned pages yield empty strings.
type PlainTextExtractor struct {
	validator *Validator
}

// NewPlainTextExtractor creates a PlainTextExtractor
func NewPlainTextExtractor(validator *Validator) *PlainTextExtractor {
	if validator == nil {
		validator = NewValidator(0, nil)
	}
	return &PlainTextExtractor{validator: validator}
}

// ExtractText returns one string per page, in page order
func (e *PlainTextExtractor) ExtractText(ctx context.Context, pdfPath string) ([]string, error) {
	if err := e.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, domain.ExtractionError("Failed to open PDF", err)
	}
	defer func() { _ = f.Close() }()

	numPages := r.NumPage()
	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.CancelledError("text extraction cancelled", err)
		}

		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}

		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, domain.ExtractionError(fmt.Sprintf("Failed to read text of page %d", i), err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
