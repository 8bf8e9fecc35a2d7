package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/schema"
)

var samplePages = []string{
	"Revenue grew 30% in 2023 across all regions of the company.",
	"Supply chain risk remains the largest threat to margins next year.",
}

func newTestOrchestrator(c domain.TextCompleter, gen domain.ImageGenerator, workers int) *Orchestrator {
	var images *ImageStep
	if gen != nil {
		images = NewImageStep(gen, workers, nil)
	}
	return NewOrchestrator(newTestStages(c), nil, images, Options{}, nil)
}

func TestRun_Success(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, defaultConcepts(t)).
		on(schema.ImagePrompts, imagePromptsJSON(t,
			imagePrompt("growth", "img_growth", "```\nA bar chart showing revenue growth\n```"),
			imagePrompt("ghost", "img_ghost", "A ghost"),
		)).
		on(schema.Slides, defaultDeck(t))

	var mu sync.Mutex
	var prompts []string
	gen := imageFunc(func(_ context.Context, prompt string) ([]byte, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return pngBytes, nil
	})

	dir := t.TempDir()
	res := newTestOrchestrator(c, gen, 2).Run(context.Background(), Input{RunID: "run-1", Pages: samplePages, ImageDir: dir}, nil)

	require.Equal(t, StateDone, res.State)
	assert.Nil(t, res.Failure)
	assert.True(t, res.Succeeded())
	require.NotNil(t, res.Security)
	assert.True(t, res.Security.IsSafe)
	require.NotNil(t, res.Concepts)
	assert.Len(t, res.Concepts.Concepts, 2)

	require.Len(t, res.ImagePrompts, 1)
	assert.Equal(t, "growth", res.ImagePrompts[0].ConceptIDReference)

	require.NotNil(t, res.Deck)
	require.Len(t, res.Deck.Slides, 3)
	p := res.Deck.Slides[0].GeneratedVisualPlaceholder
	require.NotNil(t, p)
	assert.True(t, p.NeedImage)
	assert.Equal(t, filepath.Join(dir, "img_growth.png"), p.ImagePath)
	assert.FileExists(t, p.ImagePath)
	assert.Equal(t, []string{"A bar chart showing revenue growth"}, prompts)

	promptReport, ok := res.Report(StageImagePrompts)
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, promptReport.Status)
	assert.Contains(t, promptReport.Errors[0], "unknown concept id 'ghost'")

	md := res.Metadata
	assert.Equal(t, 2, md.PageCount)
	assert.Equal(t, 2, md.ConceptCount)
	assert.Equal(t, 1, md.VisualConceptCount)
	assert.Equal(t, 1, md.ImagePromptCount)
	assert.Equal(t, 3, md.SlideCount)
	assert.Equal(t, 1, md.ImageCount)
	assert.Equal(t, 0, md.FailedImageCount)
	assert.InDelta(t, 0.85, md.ConceptConfidence, 1e-9)
	assert.Contains(t, md.StageDurations, StageSecurity)

	for _, name := range []string{schema.Malicious, schema.Concepts, schema.ImagePrompts, schema.Slides} {
		assert.Equal(t, 1, c.count(name), name)
	}
}

func TestRun_SafeVerdictProceedsToConcepts(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, defaultConcepts(t)).
		on(schema.ImagePrompts, imagePromptsJSON(t, imagePrompt("growth", "img_growth", "A chart"))).
		on(schema.Slides, defaultDeck(t))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	assert.Equal(t, 1, c.count(schema.Concepts))
	assert.Equal(t, StateDone, res.State)
}

func TestRun_UnsafeHalts(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, unsafeVerdict).
		on(schema.Concepts, defaultConcepts(t)).
		on(schema.Slides, defaultDeck(t))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	assert.Equal(t, StateHaltUnsafe, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonUnsafeContent, res.Failure.Reason)
	assert.Equal(t, StageSecurity, res.Failure.Stage)
	assert.Contains(t, res.Failure.Message, "HIGH")
	assert.Contains(t, res.Failure.Message, "risky")
	require.NotNil(t, res.Security)
	require.Len(t, res.Security.Findings, 1)
	assert.Equal(t, "PHISHING", res.Security.Findings[0].Type)

	assert.Zero(t, c.count(schema.Concepts))
	assert.Zero(t, c.count(schema.ImagePrompts))
	assert.Zero(t, c.count(schema.Slides))
	assert.Nil(t, res.Concepts)
	assert.Nil(t, res.Deck)
}

func TestRun_UnsafeVerdictWithIncompleteFindings(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, `{"is_safe": false, "threat_level": "HIGH", "findings": [{"type": "PHISHING", "description": "link"}], "overall_assessment": "phishing"}`).
		on(schema.Concepts, defaultConcepts(t))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	assert.Equal(t, StateHaltUnsafe, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonUnsafeContent, res.Failure.Reason)
	assert.Equal(t, StageSecurity, res.Failure.Stage)
	require.NotNil(t, res.Security)
	assert.Equal(t, "HIGH", res.Security.ThreatLevel)
	require.Len(t, res.Security.Findings, 1)
	assert.Equal(t, "PHISHING", res.Security.Findings[0].Type)

	report, ok := res.Report(StageSecurity)
	require.True(t, ok)
	assert.False(t, report.Failed())
	assert.Contains(t, strings.Join(report.Warnings, "\n"), "Missing required field")
	assert.Zero(t, c.count(schema.Concepts))
}

func TestRun_SecurityFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"unparseable", "I cannot help with that"},
		{"schema violation", `{"is_safe": true, "threat_level": "SEVERE", "findings": [], "overall_assessment": "ok"}`},
		{"missing field", `{"threat_level": "NONE", "findings": [], "overall_assessment": "ok"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScripted().
				on(schema.Malicious, tt.response).
				on(schema.Concepts, defaultConcepts(t))

			res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

			assert.Equal(t, StateFailed, res.State)
			require.NotNil(t, res.Failure)
			assert.Equal(t, ReasonSecurityCheckFailed, res.Failure.Reason)
			assert.Zero(t, c.count(schema.Concepts))
		})
	}
}

func TestRun_ConceptErrorsAreAdvisory(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, conceptsJSON(t,
			concept("growth", "Page 1", false, noSourceText, "missing_concept"),
			concept("risk", "Page 2", false, noSourceText),
		)).
		on(schema.Slides, defaultDeck(t))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	require.Equal(t, StateDone, res.State)
	report, ok := res.Report(StageConcepts)
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "missing_concept")
	assert.Contains(t, strings.Join(res.Warnings(), "\n"), "missing_concept")

	prompts, ok := res.Report(StageImagePrompts)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, prompts.Status)
	assert.Zero(t, c.count(schema.ImagePrompts))
	assert.Equal(t, 1, c.count(schema.Slides))
}

func TestRun_ConceptsUnavailable(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, "no json here")

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonConceptsUnavailable, res.Failure.Reason)
	assert.Equal(t, 2, c.count(schema.Concepts))
	assert.Zero(t, c.count(schema.Slides))
}

func TestRun_SlideCountMismatchIsFatal(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, defaultConcepts(t)).
		on(schema.ImagePrompts, imagePromptsJSON(t, imagePrompt("growth", "img_growth", "A chart"))).
		on(schema.Slides, deckJSON(t, 5,
			slide("s1", []string{"growth"}, nil),
			slide("s2", []string{"risk"}, nil),
			slide("s3", []string{"growth"}, nil),
			slide("s4", []string{"risk"}, nil),
		))

	called := false
	gen := imageFunc(func(context.Context, string) ([]byte, error) {
		called = true
		return pngBytes, nil
	})

	res := newTestOrchestrator(c, gen, 1).Run(context.Background(), Input{Pages: samplePages, ImageDir: t.TempDir()}, nil)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonSlideCountMismatch, res.Failure.Reason)
	assert.Equal(t, StageSlides, res.Failure.Stage)
	assert.Nil(t, res.Deck)
	assert.False(t, called)

	report, ok := res.Report(StageSlides)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, []string{"Slide count mismatch: expected 5, got 4"}, report.Errors)
}

func TestRun_SlideStyleFindingsAreAdvisory(t *testing.T) {
	long := slide("s3", []string{"growth"}, nil)
	long["title"] = "This slide title has far too many words to fit on a single slide comfortably"

	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, conceptsJSON(t, concept("growth", "Page 1", false, noSourceText))).
		on(schema.Slides, deckJSON(t, 3,
			slide("s1", []string{"growth"}, nil),
			slide("s2", []string{"unknown"}, nil),
			long,
		))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	require.Equal(t, StateDone, res.State)
	report, _ := res.Report(StageSlides)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Errors[0], "Title too long")
	assert.Contains(t, strings.Join(report.Warnings, "\n"), "unknown concept id 'unknown'")
}

func TestRun_ImageFailureIsIsolated(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, conceptsJSON(t,
			concept("growth", "Page 1", true, "Revenue grew 30% in 2023"),
			concept("risk", "Page 2", true, "Supply chain risk remains"),
		)).
		on(schema.ImagePrompts, imagePromptsJSON(t,
			imagePrompt("growth", "img_growth", "growth chart"),
			imagePrompt("risk", "img_risk", "risk diagram"),
		)).
		on(schema.Slides, deckJSON(t, 3,
			slide("s1", []string{"growth"}, placeholder("img_growth", "growth")),
			slide("s2", []string{"risk"}, placeholder("img_risk", "risk")),
			slide("s3", []string{"growth"}, nil),
		))

	gen := imageFunc(func(_ context.Context, prompt string) ([]byte, error) {
		if prompt == "risk diagram" {
			return nil, errors.New("content policy violation")
		}
		return pngBytes, nil
	})

	res := newTestOrchestrator(c, gen, 2).Run(context.Background(), Input{Pages: samplePages, ImageDir: t.TempDir()}, nil)

	require.Equal(t, StateDone, res.State)
	generated := res.Deck.Slides[0].GeneratedVisualPlaceholder
	assert.True(t, generated.NeedImage)
	assert.FileExists(t, generated.ImagePath)

	failed := res.Deck.Slides[1].GeneratedVisualPlaceholder
	assert.False(t, failed.NeedImage)
	assert.Empty(t, failed.ImagePath)
	assert.Contains(t, failed.UnresolvedReason, "content policy violation")

	report, _ := res.Report(StageImages)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, res.Metadata.ImageCount)
	assert.Equal(t, 1, res.Metadata.FailedImageCount)
}

func TestRun_NoImageGenerator(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, defaultConcepts(t)).
		on(schema.ImagePrompts, imagePromptsJSON(t, imagePrompt("growth", "img_growth", "A chart"))).
		on(schema.Slides, defaultDeck(t))

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, nil)

	require.Equal(t, StateDone, res.State)
	p := res.Deck.Slides[0].GeneratedVisualPlaceholder
	assert.False(t, p.NeedImage)
	assert.Equal(t, "image generation disabled", p.UnresolvedReason)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	c := newScripted().on(schema.Malicious, safeVerdict)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestOrchestrator(c, nil, 0).Run(ctx, Input{Pages: samplePages}, nil)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonCancelled, res.Failure.Reason)
	assert.Zero(t, c.count(schema.Malicious))
}

func TestRun_CancelDuringImagesRemovesFiles(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, conceptsJSON(t,
			concept("growth", "Page 1", true, "Revenue grew 30% in 2023"),
			concept("risk", "Page 2", true, "Supply chain risk remains"),
		)).
		on(schema.ImagePrompts, imagePromptsJSON(t,
			imagePrompt("growth", "img_growth", "growth chart"),
			imagePrompt("risk", "img_risk", "risk diagram"),
		)).
		on(schema.Slides, deckJSON(t, 3,
			slide("s1", []string{"growth"}, placeholder("img_growth", "growth")),
			slide("s2", []string{"risk"}, placeholder("img_risk", "risk")),
			slide("s3", []string{"growth"}, nil),
		))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := imageFunc(func(ctx context.Context, prompt string) ([]byte, error) {
		if prompt == "risk diagram" {
			cancel()
			return nil, ctx.Err()
		}
		return pngBytes, nil
	})

	dir := t.TempDir()
	res := newTestOrchestrator(c, gen, 1).Run(ctx, Input{Pages: samplePages, ImageDir: dir}, nil)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonCancelled, res.Failure.Reason)

	_, err := os.Stat(filepath.Join(dir, "img_growth.png"))
	assert.True(t, os.IsNotExist(err))
	for _, s := range res.Deck.Slides {
		if p := s.GeneratedVisualPlaceholder; p != nil {
			assert.False(t, p.NeedImage)
			assert.Empty(t, p.ImagePath)
		}
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	c := newScripted()
	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: []string{"  ", "\n"}}, nil)

	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonInvalidInput, res.Failure.Reason)
	assert.Empty(t, c.requests)
}

func TestRun_EmitsEvents(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, unsafeVerdict)

	events := make(chan domain.StreamEvent, 64)
	newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, events)
	close(events)

	var types []domain.EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventStart, types[0])
	assert.Equal(t, domain.EventComplete, types[len(types)-1])
	assert.Contains(t, types, domain.EventStageStarted)
	assert.Contains(t, types, domain.EventStageCompleted)
	assert.Contains(t, types, domain.EventError)
}

func TestRun_FullEventChannelDoesNotBlock(t *testing.T) {
	c := newScripted().on(schema.Malicious, unsafeVerdict)
	events := make(chan domain.StreamEvent)

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: samplePages}, events)
	assert.Equal(t, StateHaltUnsafe, res.State)
}

func TestRun_VisualIntegration(t *testing.T) {
	c := newScripted().
		on(schema.Malicious, safeVerdict).
		on(schema.Concepts, conceptsJSON(t,
			concept("growth", "Section 1, Page 1", false, noSourceText),
			concept("risk", "Section 2, Page 2", false, noSourceText),
		)).
		on(schema.Slides, defaultDeck(t))

	pages := []string{
		"Figure 1 shows the revenue growth data across all regions for the year.",
		"Supply chain risk remains the largest threat to margins next year.",
	}
	elements := []domain.VisualElement{{
		PageNumber:  1,
		ElementType: domain.ElementChart,
		BBox:        domain.BoundingBox{X: 10, Y: 20, Width: 300, Height: 200},
		Confidence:  0.8,
	}}

	res := newTestOrchestrator(c, nil, 0).Run(context.Background(), Input{Pages: pages, Elements: elements}, nil)

	require.Equal(t, StateDone, res.State)
	growth := res.Deck.Slides[0]
	require.NotEmpty(t, growth.ExistingVisualSuggestions)
	assert.Equal(t, 1, growth.ExistingVisualSuggestions[0].VisualElement.PageNumber)
	assert.Nil(t, growth.RecommendedExistingVisual, "slide asks for a generated image")

	assert.Empty(t, res.Deck.Slides[1].ExistingVisualSuggestions, "page 2 has no visual")

	both := res.Deck.Slides[2]
	require.NotEmpty(t, both.ExistingVisualSuggestions)
	require.NotNil(t, both.RecommendedExistingVisual)
	assert.Equal(t, domain.RelationExplanation, both.RecommendedExistingVisual.RelationshipType)
	assert.InDelta(t, 1.0, both.RecommendedExistingVisual.Confidence, 1e-9)
	assert.Positive(t, res.Metadata.MappingCount)
	assert.Positive(t, res.Metadata.SlidesWithSuggestions)
}
