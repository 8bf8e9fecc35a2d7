package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
)

const defaultMaxSizeMB = 100

// Validator provides input validation for PDF files
type Validator struct {
	maxSizeMB int64
	logger    *observability.Logger
}

// NewValidator creates a validator. Files above maxSizeMB are logged, not rejected.
func NewValidator(maxSizeMB int64, logger *observability.Logger) *Validator {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Validator{maxSizeMB: maxSizeMB, logger: logger}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if info.Size() > v.maxSizeMB*1024*1024 {
		v.logger.Warn().
			Str("path", path).
			Int("size_mb", int(info.Size()/(1024*1024))).
			Msg("PDF file is very large, processing may take a while")
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}

// ValidateStructure checks the PDF's cross reference table and object graph
func (v *Validator) ValidateStructure(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return domain.ValidationError("PDF failed structural validation", err)
	}
	return nil
}

// Inspect validates path and reports its size and page count
func (v *Validator) Inspect(path string) (*domain.Document, error) {
	if err := v.ValidatePDFPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.IOError("cannot stat PDF", err)
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, domain.ValidationError("cannot count PDF pages", err)
	}

	return &domain.Document{
		FilePath:   path,
		TotalPages: pages,
		SizeBytes:  info.Size(),
	}, nil
}
