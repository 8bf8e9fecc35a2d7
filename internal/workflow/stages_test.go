package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-creator/internal/cache"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/llm"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/validate"
)

func TestDecodeConcepts_KeepsDecodableItems(t *testing.T) {
	data := map[string]interface{}{
		"concepts": []interface{}{
			map[string]interface{}{"id": "a", "title": "A", "keywords": []interface{}{"x"}},
			map[string]interface{}{"id": "b", "keywords": "not a list"},
			map[string]interface{}{"title": "no id"},
			"not an object",
		},
		"overall_confidence_score": 0.5,
		"notes":                    []interface{}{"n1"},
	}

	got, dropped, ok := decodeConcepts(data)
	require.True(t, ok)
	require.Len(t, got.Concepts, 1)
	assert.Equal(t, "a", got.Concepts[0].ID)
	assert.Equal(t, []string{"x"}, got.Concepts[0].Keywords)
	assert.InDelta(t, 0.5, got.OverallConfidenceScore, 1e-9)
	assert.Equal(t, []string{"n1"}, got.Notes)
	assert.Len(t, dropped, 3)
	assert.True(t, strings.HasPrefix(dropped[0], "concepts[1]"))

	_, _, ok = decodeConcepts([]interface{}{})
	assert.False(t, ok)
}

func TestStages_ConceptsRecoversWrappedJSON(t *testing.T) {
	c := newScripted().on(schema.Concepts, "Here is the result:\n"+defaultConcepts(t)+"\nHope that helps")

	got, report := newTestStages(c).Concepts(context.Background(), "text")

	require.NotNil(t, got)
	assert.Len(t, got.Concepts, 2)
	assert.Equal(t, StatusOK, report.Status)
	assert.Contains(t, report.Warnings, validate.WrappedWarning)
	assert.Equal(t, 1, report.Attempts)
}

func TestStages_ImagePromptsBatches(t *testing.T) {
	concepts := &domain.ConceptExtraction{}
	for _, id := range []string{"a", "b", "c"} {
		concepts.Concepts = append(concepts.Concepts, domain.Concept{
			ID:                       id,
			VisualizationOpportunity: domain.VisualizationOpportunity{NeedsNewGeneration: true},
		})
	}

	c := newScripted().on(schema.ImagePrompts,
		imagePromptsJSON(t, imagePrompt("a", "img_a", "pa")),
		imagePromptsJSON(t, imagePrompt("b", "img_b", "pb")),
		imagePromptsJSON(t, imagePrompt("c", "img_c", "pc"), imagePrompt("a", "img_a", "duplicate")),
	)

	stages := newTestStages(c)
	WithBatchSize(1)(stages)
	got, report := stages.ImagePrompts(context.Background(), concepts)

	assert.Equal(t, 3, c.count(schema.ImagePrompts))
	require.Len(t, got, 3)
	assert.Equal(t, "pc", got[2].ImagePrompt)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Errors[0], "duplicate image placeholder id 'img_a'")
}

func TestStages_ImagePromptsBatchFailureIsAdvisory(t *testing.T) {
	concepts := &domain.ConceptExtraction{Concepts: []domain.Concept{{
		ID:                       "a",
		VisualizationOpportunity: domain.VisualizationOpportunity{NeedsNewGeneration: true},
	}}}
	c := newScripted().on(schema.ImagePrompts, "not json")

	got, report := newTestStages(c).ImagePrompts(context.Background(), concepts)

	assert.Empty(t, got)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.False(t, report.Failed())
	assert.Equal(t, 2, report.Attempts)
}

func TestStages_SlidesRejectsStructuralErrors(t *testing.T) {
	broken := slide("s1", []string{"growth"}, nil)
	delete(broken, "title")

	c := newScripted().on(schema.Slides, deckJSON(t, 3, broken, slide("s2", []string{}, nil), slide("s3", []string{}, nil)))
	deck, report := newTestStages(c).Slides(context.Background(), &domain.ConceptExtraction{})

	assert.Nil(t, deck)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, ReasonSlideValidationFailed, report.Reason)
	assert.Contains(t, report.Errors[0], "Missing required field 'title'")
}

func TestStages_RejectedAnswerIsNotReplayedFromCache(t *testing.T) {
	ctx := context.Background()
	mismatch := deckJSON(t, 5, slide("s1", []string{}, nil), slide("s2", []string{}, nil),
		slide("s3", []string{}, nil), slide("s4", []string{}, nil))
	good := deckJSON(t, 3, slide("s1", []string{}, nil), slide("s2", []string{}, nil), slide("s3", []string{}, nil))

	scripted := newScripted().on(schema.Slides, mismatch, good)
	cc := llm.NewCachedCompleter(scripted, cache.NewMemoryClient(10), validate.New(), time.Hour, "m", nil)
	stages := newTestStages(cc)
	concepts := &domain.ConceptExtraction{Concepts: []domain.Concept{{ID: "growth"}, {ID: "risk"}}}

	deck, report := stages.Slides(ctx, concepts)
	assert.Nil(t, deck)
	assert.Equal(t, ReasonSlideCountMismatch, report.Reason)

	deck, report = stages.Slides(ctx, concepts)
	require.NotNil(t, deck, report.Errors)
	assert.False(t, report.Failed())
	assert.Len(t, deck.Slides, 3)
	assert.Equal(t, 2, scripted.count(schema.Slides))
}

func TestStages_SlidesPlaceholderEnumIsAdvisory(t *testing.T) {
	p := placeholder("img", "growth")
	p["recommended_placement"] = "CENTER"

	c := newScripted().on(schema.Slides, deckJSON(t, 3,
		slide("s1", []string{"growth"}, p), slide("s2", []string{}, nil), slide("s3", []string{}, nil)))
	deck, report := newTestStages(c).Slides(context.Background(), &domain.ConceptExtraction{
		Concepts: []domain.Concept{{ID: "growth"}},
	})

	require.NotNil(t, deck)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Errors[0], "invalid value 'CENTER'")
	assert.Equal(t, "CENTER", deck.Slides[0].GeneratedVisualPlaceholder.RecommendedPlacement)
}

func TestStages_AnalyzePages(t *testing.T) {
	dir := t.TempDir()
	page1 := filepath.Join(dir, "page_001.jpg")
	require.NoError(t, os.WriteFile(page1, []byte("jpeg"), 0o644))

	analysis := `{"visual_elements": [{"type": "bar chart", "data_insight": "Sales rise", "key_points": ["Q4 peak"], "slide_suitability": "high", "suggested_context": "results", "location_description": "top half"}], "text_content_summary": "Sales by quarter.", "overall_page_purpose": "Reports results."}`
	c := newScripted().on(schema.VisualElements, analysis, "garbage", "garbage")

	pages := []domain.PageImage{
		{PageNumber: 1, ImagePath: page1},
		{PageNumber: 2, ImagePath: page1},
	}
	got, report := newTestStages(c).AnalyzePages(context.Background(), pages)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].PageNumber)
	assert.Empty(t, got[0].Error)
	require.Len(t, got[0].VisualElements, 1)
	assert.Equal(t, "high", got[0].VisualElements[0].SlideSuitability)
	assert.Equal(t, "Reports results. Sales by quarter.", got[0].Summary())

	assert.Equal(t, 2, got[1].PageNumber)
	assert.NotEmpty(t, got[1].Error)
	assert.Empty(t, got[1].Summary())
	assert.Equal(t, StatusDegraded, report.Status)

	require.NotEmpty(t, c.requests)
	require.NotNil(t, c.requests[0].Media)
	assert.Equal(t, page1, c.requests[0].Media.Path)
	assert.Equal(t, "image/jpeg", c.requests[0].Media.MIMEType)
}

func TestStages_ReportsDuration(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	c := newScripted().on(schema.Malicious, safeVerdict)
	v := validate.New()
	stages := NewStages(c, llm.NewRetrier(nil, v, nil), v, nil, WithClock(now))

	_, report := stages.Security(context.Background(), "text")
	assert.Equal(t, time.Second, report.Duration)
}

func TestOutcomeMessage(t *testing.T) {
	assert.Equal(t, "unknown failure", outcomeMessage(llm.Outcome{}))
	out := llm.Outcome{Err: context.Canceled, ErrType: llm.ErrTypeContext, Attempts: 1}
	assert.Equal(t, "context canceled (context, 1 attempts)", outcomeMessage(out))
}
