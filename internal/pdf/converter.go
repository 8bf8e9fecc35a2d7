// Package pdf renders PDF pages to images and reads their text layer.
package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/slide-creator/internal/domain"
)

// Converter implements page rendering and text extraction using go-fitz
type Converter struct {
	mu        sync.Mutex
	tempFiles []string
	tempDir   string
	validator *Validator
}

// NewConverter creates a new PDF converter instance
func NewConverter(validator *Validator) *Converter {
	if validator == nil {
		validator = NewValidator(0, nil)
	}
	return &Converter{
		tempFiles: make([]string, 0),
		validator: validator,
	}
}

// Convert converts a PDF file to a series of JPG images in a temporary directory
func (c *Converter) Convert(ctx context.Context, pdfPath string, quality int) ([]domain.PageImage, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateQuality(quality); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	tempDir, err := os.MkdirTemp("", "slide-creator-pages-*")
	if err != nil {
		return nil, domain.IOError("Failed to create temp directory", err)
	}
	c.mu.Lock()
	c.tempDir = tempDir
	c.mu.Unlock()

	images := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, domain.CancelledError("page rendering cancelled", ctx.Err())
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to convert page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.jpg", pageNum+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("Failed to create output file for page %d", pageNum+1), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: quality})
		outputFile.Close()
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNum+1), err)
		}

		c.mu.Lock()
		c.tempFiles = append(c.tempFiles, outputPath)
		c.mu.Unlock()

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return images, nil
}

// ExtractText returns the text layer of every page, in page order
func (c *Converter) ExtractText(ctx context.Context, pdfPath string) ([]string, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.ExtractionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.CancelledError("text extraction cancelled", err)
		}
		text, err := doc.Text(pageNum)
		if err != nil {
			return nil, domain.ExtractionError(fmt.Sprintf("Failed to read text of page %d", pageNum+1), err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Cleanup removes the rendered page images
func (c *Converter) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.tempDir != "" {
		if err := os.RemoveAll(c.tempDir); err != nil {
			errs = append(errs, err)
		}
		c.tempDir = ""
	}
	c.tempFiles = nil

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
