package convert

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/llm"
	"github.com/spherical/slide-creator/internal/prompts"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/validate"
	"github.com/spherical/slide-creator/internal/workflow"
)

const (
	safeJSON   = `{"is_safe": true, "threat_level": "NONE", "findings": [], "overall_assessment": "ok"}`
	unsafeJSON = `{"is_safe": false, "threat_level": "HIGH", "findings": [], "overall_assessment": "phishing"}`

	conceptsJSON = `{"concepts": [{"id": "growth", "title": "Growth", "summary": "Revenue grew.", "keywords": ["revenue"],
		"context_reference": "Page 1", "relationships": [],
		"visualization_opportunity": {"needs_new_generation": false, "data_present_for_graph": false,
			"suggested_visual_types": [], "visual_purpose": "NA", "key_visual_elements_hint": [],
			"source_text_for_visual": "NA"}}],
		"overall_confidence_score": 0.9, "notes": []}`

	deckJSON = `{"presentation_title": "Review", "number_of_slides": 3, "slides": [
		{"slide_id": "s1", "concept_ids_covered": ["growth"], "title": "Growth", "main_text_summary": "Up",
			"bullet_points": ["Revenue grew"], "generated_visual_placeholder": null,
			"speaking_notes_key_points": [], "suggested_layout_type": "TITLE_BULLETS"},
		{"slide_id": "s2", "concept_ids_covered": [], "title": "Detail", "main_text_summary": "More",
			"bullet_points": ["Detail"], "generated_visual_placeholder": null,
			"speaking_notes_key_points": [], "suggested_layout_type": "TITLE_BULLETS"},
		{"slide_id": "s3", "concept_ids_covered": [], "title": "Close", "main_text_summary": "End",
			"bullet_points": ["Thanks"], "generated_visual_placeholder": null,
			"speaking_notes_key_points": [], "suggested_layout_type": "TITLE_BULLETS"}],
		"overall_presentation_guidance": [], "disclaimer": "Generated"}`
)

// fakeCompleter answers by schema, recognised from the system prompt
type fakeCompleter map[string]string

func (f fakeCompleter) Complete(_ context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	for _, name := range schema.Default().Names() {
		if prompts.MustForSchema(name).System == req.SystemInstruction {
			if text, ok := f[name]; ok {
				return &domain.Completion{Text: text}, nil
			}
		}
	}
	return nil, errors.New("unexpected request")
}

type fakeText struct {
	pages []string
	err   error
}

func (f fakeText) ExtractText(context.Context, string) ([]string, error) { return f.pages, f.err }

type fakeWriter struct {
	mu   sync.Mutex
	deck *domain.SlideDeck
	path string
	err  error
}

func (w *fakeWriter) Write(deck *domain.SlideDeck, outputPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deck, w.path = deck, outputPath
	return w.err
}

func (w *fakeWriter) written() *domain.SlideDeck {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deck
}

type harness struct {
	service *Service
	writer  *fakeWriter
	runs    *storage.RunRepository
	pdf     string
}

func newHarness(t *testing.T, completer fakeCompleter, text fakeText) *harness {
	t.Helper()

	pdfPath := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4\n"), 0o644))

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	runs := storage.NewRunRepository(db)
	require.NoError(t, runs.EnsureSchema(context.Background()))

	v := validate.New()
	retrier := llm.NewRetrier(&llm.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond}, v, nil).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	orch := workflow.NewOrchestrator(workflow.NewStages(completer, retrier, v, nil), nil, nil, workflow.Options{}, nil)

	writer := &fakeWriter{}
	svc := NewService(Deps{
		Text:         text,
		Orchestrator: orch,
		Writer:       writer,
		Runs:         runs,
	}, Options{}, nil)

	return &harness{service: svc, writer: writer, runs: runs, pdf: pdfPath}
}

func happyCompleter() fakeCompleter {
	return fakeCompleter{
		schema.Malicious: safeJSON,
		schema.Concepts:  conceptsJSON,
		schema.Slides:    deckJSON,
	}
}

func drain(ch <-chan domain.StreamEvent) []domain.StreamEvent {
	var out []domain.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestService_Convert(t *testing.T) {
	h := newHarness(t, happyCompleter(), fakeText{pages: []string{"Revenue grew 30% in 2023."}})
	output := filepath.Join(t.TempDir(), "deck.pptx")

	events := make(chan domain.StreamEvent, 100)
	out, err := h.service.Convert(context.Background(), h.pdf, output, events)
	close(events)

	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Written)
	assert.Equal(t, output, out.OutputPath)
	assert.Equal(t, workflow.StateDone, out.Result.State)

	deck := h.writer.written()
	require.NotNil(t, deck)
	assert.Len(t, deck.Slides, 3)
	assert.Equal(t, output, h.writer.path)

	var types []domain.EventType
	for _, ev := range drain(events) {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, domain.EventComplete)
	assert.Equal(t, domain.EventPresentationWritten, types[len(types)-1])

	runs, err := h.runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(workflow.StateDone), runs[0].State)
	assert.Equal(t, 3, runs[0].SlideCount)
	assert.Equal(t, 1, runs[0].ConceptCount)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestService_ConvertUnsafeDocument(t *testing.T) {
	c := happyCompleter()
	c[schema.Malicious] = unsafeJSON
	h := newHarness(t, c, fakeText{pages: []string{"Click here to verify your password."}})

	out, err := h.service.Convert(context.Background(), h.pdf, filepath.Join(t.TempDir(), "deck.pptx"), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), workflow.ReasonUnsafeContent)
	require.NotNil(t, out)
	assert.False(t, out.Written)
	assert.Equal(t, workflow.StateHaltUnsafe, out.Result.State)
	assert.Nil(t, h.writer.written())

	runs, err := h.runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(workflow.StateHaltUnsafe), runs[0].State)
	assert.Equal(t, workflow.ReasonUnsafeContent, runs[0].FailureReason)
}

func TestService_ConvertWriterFailure(t *testing.T) {
	h := newHarness(t, happyCompleter(), fakeText{pages: []string{"Revenue grew."}})
	h.writer.err = errors.New("disk full")

	out, err := h.service.Convert(context.Background(), h.pdf, filepath.Join(t.TempDir(), "deck.pptx"), nil)

	require.Error(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Written)
	assert.True(t, out.Result.Succeeded())

	runs, err := h.runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(workflow.StateFailed), runs[0].State)
	assert.Equal(t, reasonOutputFailed, runs[0].FailureReason)
	assert.Contains(t, runs[0].FailureMessage, "disk full")
}

func TestService_ConvertInputErrors(t *testing.T) {
	h := newHarness(t, happyCompleter(), fakeText{err: domain.ExtractionError("broken text layer", nil)})

	out, err := h.service.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "", nil)
	assert.Error(t, err)
	assert.Nil(t, out)

	out, err = h.service.Convert(context.Background(), h.pdf, "", nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "broken text layer")

	runs, err := h.runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(workflow.StateFailed), runs[0].State)
	assert.Equal(t, reasonExtractionFailed, runs[0].FailureReason)
}

func TestService_Process(t *testing.T) {
	h := newHarness(t, happyCompleter(), fakeText{pages: []string{"Revenue grew."}})

	_, err := h.service.Process(context.Background(), "notes.txt", "")
	assert.Error(t, err)

	ch, err := h.service.Process(context.Background(), h.pdf, filepath.Join(t.TempDir(), "deck.pptx"))
	require.NoError(t, err)

	events := drain(ch)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventStart, events[0].Type)
	assert.Equal(t, domain.EventPresentationWritten, events[len(events)-1].Type)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "docs/report.pptx", DefaultOutputPath("docs/report.pdf"))
	assert.Equal(t, "out/deck_images", ImageDir("out/deck.pptx"))
}
