package domain

import (
	"context"
	"fmt"
	"strings"
)

// MediaReference points at a local file attached to a completion request
type MediaReference struct {
	Path     string
	MIMEType string
}

// CompletionRequest is a single instruction-following call to a text model
type CompletionRequest struct {
	SystemInstruction string
	UserInstruction   string
	Media             *MediaReference
	// JSONMode asks the provider to emit a single JSON object
	JSONMode bool
}

// NewCompletionRequest builds a request and rejects empty instructions
func NewCompletionRequest(system, user string, jsonMode bool) (CompletionRequest, error) {
	if strings.TrimSpace(system) == "" {
		return CompletionRequest{}, ValidationError("system instruction is empty", nil)
	}
	if strings.TrimSpace(user) == "" {
		return CompletionRequest{}, ValidationError("user instruction is empty", nil)
	}
	return CompletionRequest{
		SystemInstruction: system,
		UserInstruction:   user,
		JSONMode:          jsonMode,
	}, nil
}

// WithMedia attaches a local file to the request
func (r CompletionRequest) WithMedia(path, mimeType string) CompletionRequest {
	r.Media = &MediaReference{Path: path, MIMEType: mimeType}
	return r
}

// Completion is the raw text answer of a text model
type Completion struct {
	Text             string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// TextCompleter sends a completion request to an LLM provider
type TextCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ImageGenerator turns a prompt into encoded image bytes
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// PageRenderer converts a PDF into page images
type PageRenderer interface {
	// Convert turns a PDF into a slice of page images
	Convert(ctx context.Context, pdfPath string, quality int) ([]PageImage, error)

	// Cleanup removes temporary files created during conversion
	Cleanup() error
}

// TextExtractor reads the text layer of a PDF, one entry per page in page order
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) ([]string, error)
}

// PresentationWriter renders a slide deck to a file
type PresentationWriter interface {
	Write(deck *SlideDeck, outputPath string) error
}

// Pipeline orchestrates the complete PDF to presentation workflow
type Pipeline interface {
	// Process handles the complete workflow and streams events while it runs
	Process(ctx context.Context, pdfPath, outputPath string) (<-chan StreamEvent, error)
}

// PageText joins page texts as "=== PAGE n ===" blocks
func PageText(pages []string) string {
	var b strings.Builder
	for i, text := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== PAGE %d ===\n%s", i+1, text)
	}
	return b.String()
}
