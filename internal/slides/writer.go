package slides

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/unidoc/unioffice/v2/common"
	"github.com/unidoc/unioffice/v2/common/license"
	"github.com/unidoc/unioffice/v2/measurement"
	"github.com/unidoc/unioffice/v2/presentation"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
)

const (
	titleFontSize    = 28
	bodyFontSize     = 18
	takeawayFontSize = 16
	defaultSubtitle  = "Created from PDF Content"
)

// Options configures the pptx writer
type Options struct {
	LicenseKey string
	TitleSlide bool
	// EmitJSON writes the deck next to the pptx as <name>.json
	EmitJSON bool
}

// Writer renders slide decks with unioffice
type Writer struct {
	opts   Options
	logger *observability.Logger

	licenseOnce sync.Once
	licenseErr  error
}

// NewWriter creates a pptx writer
func NewWriter(opts Options, logger *observability.Logger) *Writer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Writer{opts: opts, logger: logger}
}

var _ domain.PresentationWriter = (*Writer)(nil)

// Write renders deck to outputPath. Images that cannot be loaded are
// logged and left out; the slide keeps its text.
func (w *Writer) Write(deck *domain.SlideDeck, outputPath string) error {
	if deck == nil || len(deck.Slides) == 0 {
		return domain.ValidationError("Slide deck has no slides", nil)
	}
	if strings.TrimSpace(outputPath) == "" {
		return domain.ValidationError("Output path is required", nil)
	}
	if err := w.applyLicense(); err != nil {
		return domain.ConfigError("Failed to apply presentation license key", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.IOError("Failed to create output directory", err)
		}
	}

	ppt := presentation.New()
	if w.opts.TitleSlide {
		addTitleSlide(ppt, deck)
	}

	images := 0
	for i := range deck.Slides {
		if w.addContentSlide(ppt, &deck.Slides[i]) {
			images++
		}
	}

	if err := ppt.SaveToFile(outputPath); err != nil {
		return domain.IOError("Failed to save presentation", err)
	}

	if w.opts.EmitJSON {
		if err := writeSidecar(deck, SidecarPath(outputPath)); err != nil {
			return err
		}
	}

	w.logger.Info().
		Str("output", outputPath).
		Int("slides", len(deck.Slides)).
		Int("images", images).
		Msg("Presentation written")
	return nil
}

func (w *Writer) applyLicense() error {
	if w.opts.LicenseKey == "" {
		return nil
	}
	w.licenseOnce.Do(func() {
		w.licenseErr = license.SetMeteredKey(w.opts.LicenseKey)
	})
	return w.licenseErr
}

func addTitleSlide(ppt *presentation.Presentation, deck *domain.SlideDeck) {
	slide := ppt.AddSlide()

	title := deck.PresentationTitle
	if !usable(title) {
		title = "Generated Presentation"
	}
	addText(slide, Rect{Left: 0.5, Top: 2.5, Width: 9, Height: 1.5}, []string{title}, 36, true)

	subtitle := defaultSubtitle
	if usable(deck.Disclaimer) {
		subtitle = deck.Disclaimer
	}
	addText(slide, Rect{Left: 1, Top: 4.2, Width: 8, Height: 1.5}, []string{subtitle}, bodyFontSize, false)
}

// addContentSlide reports whether an image was placed
func (w *Writer) addContentSlide(ppt *presentation.Presentation, s *domain.Slide) bool {
	slide := ppt.AddSlide()

	path, placement := visualFor(s)
	layout := LayoutFor(placement)
	if path == "" {
		layout.Body = fullBodyRect
	}

	placed := false
	if path != "" && layout.ImageBehind {
		placed = w.addImage(ppt, slide, path, layout.Image, s.SlideID)
	}

	title := s.Title
	if !usable(title) {
		title = "Untitled Slide"
	}
	addText(slide, layout.Title, []string{title}, titleFontSize, true)

	lines := make([]string, 0, len(s.BulletPoints))
	for _, l := range BodyLines(s) {
		lines = append(lines, "• "+l)
	}
	if len(lines) > 0 {
		addText(slide, layout.Body, lines, bodyFontSize, false)
	}

	if path != "" && !layout.ImageBehind {
		placed = w.addImage(ppt, slide, path, layout.Image, s.SlideID)
	}

	if usable(s.CallToActionOrTakeaway) && placement != PlacementBottomHalf && placement != PlacementFullSlide {
		addText(slide, Rect{Left: 0.5, Top: 6.6, Width: 9, Height: 0.6}, []string{s.CallToActionOrTakeaway}, takeawayFontSize, true)
	}
	return placed
}

func (w *Writer) addImage(ppt *presentation.Presentation, slide presentation.Slide, path string, box Rect, slideID string) bool {
	img, err := common.ImageFromFile(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("slide_id", slideID).Str("path", path).Msg("Image not found, slide keeps text only")
		return false
	}
	ref, err := ppt.AddImage(img)
	if err != nil {
		w.logger.Warn().Err(err).Str("slide_id", slideID).Str("path", path).Msg("Failed to embed image")
		return false
	}

	box = box.Fit(img.Size.X, img.Size.Y)
	pic := slide.AddImage(ref)
	pic.Properties().SetPosition(inches(box.Left), inches(box.Top))
	pic.Properties().SetSize(inches(box.Width), inches(box.Height))
	return true
}

func addText(slide presentation.Slide, box Rect, lines []string, size float64, bold bool) {
	tb := slide.AddTextBox()
	tb.Properties().SetPosition(inches(box.Left), inches(box.Top))
	tb.Properties().SetSize(inches(box.Width), inches(box.Height))

	for _, line := range lines {
		run := tb.AddParagraph().AddRun()
		run.SetText(line)
		run.Properties().SetSize(measurement.Distance(size) * measurement.Point)
		if bold {
			run.Properties().SetBold(true)
		}
	}
}

func inches(v float64) measurement.Distance {
	return measurement.Distance(v) * measurement.Inch
}

// SidecarPath is where the JSON copy of a deck is written
func SidecarPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".json"
}

func writeSidecar(deck *domain.SlideDeck, path string) error {
	data, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return domain.ParseError("Failed to encode slide deck", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.IOError("Failed to write slide deck JSON", err)
	}
	return nil
}
