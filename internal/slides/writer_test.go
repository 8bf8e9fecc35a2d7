package slides

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-creator/internal/domain"
)

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		placement string
		image     Rect
		body      Rect
		behind    bool
	}{
		{PlacementFullSlide, Rect{0.5, 1.5, 9, 4.2}, Rect{0.5, 5.8, 9, 1.4}, false},
		{PlacementLeftHalf, Rect{0.5, 2, 4.5, 0}, Rect{5.5, 1.5, 4, 5.5}, false},
		{PlacementRightHalf, Rect{5.5, 2, 4, 0}, Rect{0.5, 1.5, 5, 5.5}, false},
		{PlacementTopHalf, Rect{2, 1.5, 6, 2.5}, Rect{0.5, 4.2, 9, 2.8}, false},
		{PlacementBottomHalf, Rect{2, 4.5, 6, 2.5}, Rect{0.5, 1.5, 9, 2.8}, false},
		{PlacementBackground, Rect{1, 1, 8, 6}, fullBodyRect, true},
		{"left_half", Rect{0.5, 2, 4.5, 0}, Rect{5.5, 1.5, 4, 5.5}, false},
		{"NA", Rect{5.5, 2, 4, 0}, Rect{0.5, 1.5, 5, 5.5}, false},
		{"", Rect{5.5, 2, 4, 0}, Rect{0.5, 1.5, 5, 5.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.placement, func(t *testing.T) {
			l := LayoutFor(tt.placement)
			assert.Equal(t, titleRect, l.Title)
			assert.Equal(t, tt.image, l.Image)
			assert.Equal(t, tt.body, l.Body)
			assert.Equal(t, tt.behind, l.ImageBehind)
		})
	}
}

func TestRect_Fit(t *testing.T) {
	fixed := Rect{Left: 1, Top: 1, Width: 4, Height: 2}
	assert.Equal(t, fixed, fixed.Fit(100, 900))

	wide := Rect{Left: 5.5, Top: 2, Width: 4}.Fit(400, 200)
	assert.InDelta(t, 4, wide.Width, 1e-9)
	assert.InDelta(t, 2, wide.Height, 1e-9)

	tall := Rect{Left: 5.5, Top: 2, Width: 4}.Fit(100, 400)
	assert.InDelta(t, 5.2, tall.Height, 1e-9)
	assert.InDelta(t, 1.3, tall.Width, 1e-9)

	unknown := Rect{Left: 5.5, Top: 2, Width: 4}.Fit(0, 0)
	assert.Zero(t, unknown.Height)
}

func TestBodyLines(t *testing.T) {
	s := &domain.Slide{BulletPoints: []string{" one ", "", "two"}, MainTextSummary: "summary"}
	assert.Equal(t, []string{"one", "two"}, BodyLines(s))

	s = &domain.Slide{MainTextSummary: "summary only"}
	assert.Equal(t, []string{"summary only"}, BodyLines(s))

	s = &domain.Slide{MainTextSummary: "NA"}
	assert.Empty(t, BodyLines(s))
}

func TestVisualFor(t *testing.T) {
	generated := &domain.Slide{GeneratedVisualPlaceholder: &domain.VisualPlaceholder{
		NeedImage: true, ImagePath: "img.png", RecommendedPlacement: PlacementLeftHalf,
	}}
	path, placement := visualFor(generated)
	assert.Equal(t, "img.png", path)
	assert.Equal(t, PlacementLeftHalf, placement)

	existing := &domain.Slide{
		GeneratedVisualPlaceholder: &domain.VisualPlaceholder{NeedImage: false},
		RecommendedExistingVisual: &domain.VisualSuggestion{
			VisualElement: domain.VisualElement{ImagePath: "page_3_chart.png"},
		},
	}
	path, placement = visualFor(existing)
	assert.Equal(t, "page_3_chart.png", path)
	assert.Equal(t, PlacementRightHalf, placement)

	unresolved := &domain.Slide{GeneratedVisualPlaceholder: &domain.VisualPlaceholder{NeedImage: true}}
	path, _ = visualFor(unresolved)
	assert.Empty(t, path)
}

func TestWriter_RejectsEmptyInput(t *testing.T) {
	w := NewWriter(Options{}, nil)

	err := w.Write(nil, filepath.Join(t.TempDir(), "out.pptx"))
	require.Error(t, err)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrorTypeValidation, de.Type)

	err = w.Write(&domain.SlideDeck{}, filepath.Join(t.TempDir(), "out.pptx"))
	assert.Error(t, err)

	err = w.Write(&domain.SlideDeck{Slides: []domain.Slide{{SlideID: "s1"}}}, " ")
	assert.Error(t, err)
}

func TestSidecar(t *testing.T) {
	assert.Equal(t, "out/deck.json", SidecarPath("out/deck.pptx"))
	assert.Equal(t, "deck.json", SidecarPath("deck"))

	deck := &domain.SlideDeck{
		PresentationTitle: "Quarterly Review",
		NumberOfSlides:    1,
		Slides:            []domain.Slide{{SlideID: "s1", Title: "Results", BulletPoints: []string{"Up 30%"}}},
	}
	path := filepath.Join(t.TempDir(), "deck.json")
	require.NoError(t, writeSidecar(deck, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got domain.SlideDeck
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Quarterly Review", got.PresentationTitle)
	require.Len(t, got.Slides, 1)
	assert.Equal(t, []string{"Up 30%"}, got.Slides[0].BulletPoints)
}
