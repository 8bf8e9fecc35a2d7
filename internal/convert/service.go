// Package convert runs a PDF through the slide pipeline and writes the deck.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/pdf"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/visual"
	"github.com/spherical/slide-creator/internal/workflow"
)

const eventBuffer = 100

// Failure reasons for errors outside the workflow
const (
	reasonExtractionFailed = "extraction_failed"
	reasonOutputFailed     = "output_failed"
)

// Deps are the collaborators of a Service. Renderer, Detector and Runs
// are optional.
type Deps struct {
	Validator    *pdf.Validator
	Renderer     domain.PageRenderer
	Text         domain.TextExtractor
	Detector     *visual.Detector
	Orchestrator *workflow.Orchestrator
	Writer       domain.PresentationWriter
	Runs         *storage.RunRepository
}

// Options tunes a Service
type Options struct {
	Quality           int
	ValidateStructure bool
	// RenderPages is needed for detection and page analysis
	RenderPages bool
	KeepWorkDir bool
}

// Outcome is what a conversion produced
type Outcome struct {
	Result     *workflow.Result
	OutputPath string
	Written    bool
}

// Service orchestrates the PDF to presentation process
type Service struct {
	deps   Deps
	opts   Options
	logger *observability.Logger
}

var _ domain.Pipeline = (*Service)(nil)

// NewService creates a new conversion service
func NewService(deps Deps, opts Options, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if deps.Validator == nil {
		deps.Validator = pdf.NewValidator(0, logger)
	}
	if opts.Quality == 0 {
		opts.Quality = 85
	}
	return &Service{deps: deps, opts: opts, logger: logger.WithOperation("convert")}
}

// Process validates the input and runs the conversion in the background.
// The returned channel is closed when the run ends.
func (s *Service) Process(ctx context.Context, pdfPath, outputPath string) (<-chan domain.StreamEvent, error) {
	if err := s.deps.Validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent, eventBuffer)
	go func() {
		defer close(events)
		if _, err := s.Convert(ctx, pdfPath, outputPath, events); err != nil {
			s.logger.Debug().Err(err).Msg("Conversion ended with error")
		}
	}()
	return events, nil
}

// Convert runs one conversion and blocks until it ends. The outcome is
// returned whenever the pipeline ran, also when the run did not succeed;
// the error then describes why.
func (s *Service) Convert(ctx context.Context, pdfPath, outputPath string, eventCh chan<- domain.StreamEvent) (*Outcome, error) {
	runID := uuid.New()
	logger := s.logger.WithRun(runID.String())
	ctx = observability.ContextWithRunID(ctx, runID.String())

	if outputPath == "" {
		outputPath = DefaultOutputPath(pdfPath)
	}

	if err := s.deps.Validator.ValidatePDFPath(pdfPath); err != nil {
		s.emitError(eventCh, err)
		return nil, err
	}
	if s.opts.ValidateStructure {
		if err := s.deps.Validator.ValidateStructure(pdfPath); err != nil {
			s.emitError(eventCh, err)
			return nil, err
		}
	}

	record := s.startRecord(ctx, runID, pdfPath, outputPath)

	logger.Info().Str("pdf", pdfPath).Msg("Extracting text")
	pages, err := s.deps.Text.ExtractText(ctx, pdfPath)
	if err != nil {
		s.emitError(eventCh, err)
		s.finishRecord(ctx, record, nil, err)
		return nil, err
	}

	in := workflow.Input{
		RunID:    runID.String(),
		Pages:    pages,
		ImageDir: ImageDir(outputPath),
	}

	if s.opts.RenderPages && s.deps.Renderer != nil {
		if !s.opts.KeepWorkDir {
			defer func() {
				if err := s.deps.Renderer.Cleanup(); err != nil {
					logger.Warn().Err(err).Msg("Failed to remove page images")
				}
			}()
		}
		in.PageImages, in.Elements = s.render(ctx, logger, pdfPath)
	}

	result := s.deps.Orchestrator.Run(ctx, in, eventCh)
	out := &Outcome{Result: result, OutputPath: outputPath}

	if !result.Succeeded() {
		err := runError(result)
		s.finishRecord(ctx, record, result, err)
		return out, err
	}

	s.cropRecommended(logger, result.Deck, in.ImageDir)

	if err := s.deps.Writer.Write(result.Deck, outputPath); err != nil {
		s.emitError(eventCh, err)
		s.finishRecord(ctx, record, result, err)
		return out, err
	}
	out.Written = true

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventPresentationWritten,
		Payload:   outputPath,
		Timestamp: time.Now(),
	})
	logger.Info().
		Str("output", outputPath).
		Int("slides", result.Metadata.SlideCount).
		Int("images", result.Metadata.ImageCount).
		Dur("duration", result.Metadata.TotalDuration).
		Msg("Conversion complete")

	s.finishRecord(ctx, record, result, nil)
	return out, nil
}

// render turns pages into images and detects visuals on them. Failures
// only cost the visual features, so they are logged and swallowed.
func (s *Service) render(ctx context.Context, logger *observability.Logger, pdfPath string) ([]domain.PageImage, []domain.VisualElement) {
	images, err := s.deps.Renderer.Convert(ctx, pdfPath, s.opts.Quality)
	if err != nil {
		logger.Warn().Err(err).Msg("Page rendering failed, continuing without page images")
		return nil, nil
	}
	logger.Info().Int("pages", len(images)).Msg("Rendered pages")

	if s.deps.Detector == nil {
		return images, nil
	}
	elements, err := s.deps.Detector.DetectPages(ctx, images)
	if err != nil {
		logger.Warn().Err(err).Msg("Visual detection failed, continuing without visual elements")
		return images, nil
	}
	logger.Info().Int("elements", len(elements)).Msg("Detected visual elements")
	return images, elements
}

// cropRecommended replaces the page path of each recommended visual with
// a crop of the element, while the page images still exist.
func (s *Service) cropRecommended(logger *observability.Logger, deck *domain.SlideDeck, dir string) {
	if deck == nil {
		return
	}
	crops := make(map[string]string)
	for i := range deck.Slides {
		rec := deck.Slides[i].RecommendedExistingVisual
		if rec == nil || rec.VisualElement.ImagePath == "" {
			continue
		}
		el := rec.VisualElement
		key := fmt.Sprintf("%s|%d|%d|%d|%d", el.ImagePath, el.BBox.X, el.BBox.Y, el.BBox.Width, el.BBox.Height)
		path, ok := crops[key]
		if !ok {
			var err error
			if path, err = visual.Crop(el, filepath.Join(dir, "existing")); err != nil {
				logger.Warn().Err(err).Str("slide_id", deck.Slides[i].SlideID).Msg("Failed to crop recommended visual")
				rec.VisualElement.ImagePath = ""
				continue
			}
			crops[key] = path
		}
		rec.VisualElement.ImagePath = path
	}
}

func (s *Service) startRecord(ctx context.Context, id uuid.UUID, pdfPath, outputPath string) *storage.Run {
	if s.deps.Runs == nil {
		return nil
	}
	run := &storage.Run{ID: id, PDFPath: pdfPath, OutputPath: outputPath, State: string(workflow.StateStart)}
	if err := s.deps.Runs.Create(ctx, run); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record run start")
		return nil
	}
	return run
}

func (s *Service) finishRecord(ctx context.Context, run *storage.Run, result *workflow.Result, runErr error) {
	if run == nil {
		return
	}
	run.State = string(workflow.StateFailed)
	if result != nil {
		run.State = string(result.State)
		run.SlideCount = result.Metadata.SlideCount
		run.ConceptCount = result.Metadata.ConceptCount
		run.ImageCount = result.Metadata.ImageCount
		if md, err := json.Marshal(result.Metadata); err == nil {
			run.Metadata = md
		}
		if result.Failure != nil {
			run.FailureReason = result.Failure.Reason
			run.FailureMessage = result.Failure.Message
		}
	}
	if runErr != nil && run.FailureMessage == "" {
		run.State = string(workflow.StateFailed)
		run.FailureReason = reasonOutputFailed
		if result == nil {
			run.FailureReason = reasonExtractionFailed
		}
		run.FailureMessage = runErr.Error()
	}

	// the run is over even when the caller's context is not
	if err := s.deps.Runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record run outcome")
	}
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}

func runError(result *workflow.Result) error {
	msg := fmt.Sprintf("run ended in state %s", result.State)
	if f := result.Failure; f != nil {
		msg = fmt.Sprintf("%s: %s", f.Reason, f.Message)
	}
	if result.Failure != nil && result.Failure.Reason == workflow.ReasonCancelled {
		return domain.CancelledError(msg, nil)
	}
	return domain.ExtractionError(msg, nil)
}

// DefaultOutputPath puts the deck next to the PDF
func DefaultOutputPath(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".pptx"
}

// ImageDir is where images for a deck are stored
func ImageDir(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_images"
}
