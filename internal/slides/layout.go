// Package slides renders a slide deck into a PowerPoint file.
package slides

import (
	"strings"

	"github.com/spherical/slide-creator/internal/domain"
)

// Slide geometry in inches. Decks use the 4:3 default of 10in x 7.5in.
const (
	SlideWidth  = 10.0
	SlideHeight = 7.5

	bottomMargin = 0.3
)

// Placement values a slide may request for its visual
const (
	PlacementFullSlide  = "FULL_SLIDE"
	PlacementLeftHalf   = "LEFT_HALF"
	PlacementRightHalf  = "RIGHT_HALF"
	PlacementTopHalf    = "TOP_HALF"
	PlacementBottomHalf = "BOTTOM_HALF"
	PlacementBackground = "BACKGROUND_OVERLAY"
)

// Rect is a box on the slide in inches. A zero Height means the height
// follows the image aspect ratio.
type Rect struct {
	Left, Top, Width, Height float64
}

// Layout is where the pieces of one content slide go
type Layout struct {
	Title Rect
	Body  Rect
	Image Rect
	// ImageBehind draws the image before the text
	ImageBehind bool
}

var (
	titleRect    = Rect{Left: 0.5, Top: 0.3, Width: 9, Height: 1}
	fullBodyRect = Rect{Left: 0.5, Top: 1.5, Width: 9, Height: 5.5}
)

// LayoutFor returns the slide geometry for a placement value. Unknown or
// missing placements use the right half.
func LayoutFor(placement string) Layout {
	l := Layout{Title: titleRect, Body: fullBodyRect}

	switch strings.ToUpper(strings.TrimSpace(placement)) {
	case PlacementFullSlide:
		l.Image = Rect{Left: 0.5, Top: 1.5, Width: 9, Height: 4.2}
		l.Body = Rect{Left: 0.5, Top: 5.8, Width: 9, Height: 1.4}
	case PlacementLeftHalf:
		l.Image = Rect{Left: 0.5, Top: 2, Width: 4.5}
		l.Body = Rect{Left: 5.5, Top: 1.5, Width: 4, Height: 5.5}
	case PlacementTopHalf:
		l.Image = Rect{Left: 2, Top: 1.5, Width: 6, Height: 2.5}
		l.Body = Rect{Left: 0.5, Top: 4.2, Width: 9, Height: 2.8}
	case PlacementBottomHalf:
		l.Image = Rect{Left: 2, Top: 4.5, Width: 6, Height: 2.5}
		l.Body = Rect{Left: 0.5, Top: 1.5, Width: 9, Height: 2.8}
	case PlacementBackground:
		l.Image = Rect{Left: 1, Top: 1, Width: 8, Height: 6}
		l.ImageBehind = true
	default:
		l.Image = Rect{Left: 5.5, Top: 2, Width: 4}
		l.Body = Rect{Left: 0.5, Top: 1.5, Width: 5, Height: 5.5}
	}
	return l
}

// Fit resolves a zero height from the image pixel size and shrinks the
// box so it stays on the slide.
func (r Rect) Fit(pixelWidth, pixelHeight int) Rect {
	if r.Height > 0 || pixelWidth <= 0 || pixelHeight <= 0 {
		return r
	}
	ratio := float64(pixelHeight) / float64(pixelWidth)
	r.Height = r.Width * ratio

	if room := SlideHeight - bottomMargin - r.Top; r.Height > room {
		r.Height = room
		r.Width = room / ratio
	}
	return r
}

// BodyLines returns the text lines shown in a slide's body
func BodyLines(s *domain.Slide) []string {
	lines := make([]string, 0, len(s.BulletPoints)+1)
	for _, b := range s.BulletPoints {
		if b = strings.TrimSpace(b); b != "" {
			lines = append(lines, b)
		}
	}
	if len(lines) == 0 && usable(s.MainTextSummary) {
		lines = append(lines, strings.TrimSpace(s.MainTextSummary))
	}
	return lines
}

// visualFor picks the image file for a slide: a generated image first,
// then a recommended visual cropped from the source document.
func visualFor(s *domain.Slide) (path, placement string) {
	if p := s.GeneratedVisualPlaceholder; p != nil && p.NeedImage && p.ImagePath != "" {
		return p.ImagePath, p.RecommendedPlacement
	}
	if rec := s.RecommendedExistingVisual; rec != nil && rec.VisualElement.ImagePath != "" {
		return rec.VisualElement.ImagePath, PlacementRightHalf
	}
	return "", ""
}

func usable(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, "NA")
}
