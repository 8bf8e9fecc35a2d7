package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/llm"
	"github.com/spherical/slide-creator/internal/prompts"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/validate"
)

// scriptedCompleter answers each schema's prompt from a queue. The last
// response of a queue repeats.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string]int
	requests  []domain.CompletionRequest
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (s *scriptedCompleter) on(schemaName string, responses ...string) *scriptedCompleter {
	s.responses[schemaName] = responses
	return s
}

func (s *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := schemaOf(req.SystemInstruction)
	s.calls[name]++
	s.requests = append(s.requests, req)

	if err := s.errs[name]; err != nil {
		return nil, err
	}
	queue := s.responses[name]
	if len(queue) == 0 {
		return nil, errors.New("no scripted response for " + name)
	}
	i := s.calls[name] - 1
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return &domain.Completion{Text: queue[i]}, nil
}

func (s *scriptedCompleter) count(schemaName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[schemaName]
}

func schemaOf(system string) string {
	for _, name := range schema.Default().Names() {
		if prompts.MustForSchema(name).System == system {
			return name
		}
	}
	return "unknown"
}

type imageFunc func(ctx context.Context, prompt string) ([]byte, error)

func (f imageFunc) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return f(ctx, prompt)
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newTestStages(c domain.TextCompleter) *Stages {
	v := validate.New()
	retrier := llm.NewRetrier(&llm.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond}, v, nil).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	return NewStages(c, retrier, v, nil)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

const (
	safeVerdict   = `{"is_safe": true, "threat_level": "NONE", "findings": [], "overall_assessment": "ok"}`
	unsafeVerdict = `{"is_safe": false, "threat_level": "HIGH", "findings": [{"type": "PHISHING", "description": "Credential harvesting link", "confidence": 0.9, "location_hint": "page 2", "recommended_action": "REJECT_DOCUMENT_PROCESSING", "excerpt": "verify your password"}], "overall_assessment": "risky"}`
)

func concept(id, ref string, needsVisual bool, source string, related ...string) map[string]interface{} {
	rels := []interface{}{}
	for _, r := range related {
		rels = append(rels, map[string]interface{}{
			"related_concept_id": r,
			"type":               "SUPPORTS",
			"description":        "linked",
		})
	}
	return map[string]interface{}{
		"id":                id,
		"title":             "Concept " + id,
		"summary":           "Summary of " + id,
		"keywords":          []string{id, "data"},
		"context_reference": ref,
		"relationships":     rels,
		"visualization_opportunity": map[string]interface{}{
			"needs_new_generation":     needsVisual,
			"data_present_for_graph":   needsVisual,
			"suggested_visual_types":   []string{"Bar Chart"},
			"visual_purpose":           "show " + id,
			"key_visual_elements_hint": []string{"bars"},
			"source_text_for_visual":   source,
		},
	}
}

func conceptsJSON(t *testing.T, concepts ...map[string]interface{}) string {
	return mustJSON(t, map[string]interface{}{
		"concepts":                 concepts,
		"overall_confidence_score": 0.85,
		"notes":                    []string{},
	})
}

// defaultConcepts relate to each other in both directions
func defaultConcepts(t *testing.T) string {
	return conceptsJSON(t,
		concept("growth", "Section 1, Page 1", true, "Revenue grew 30% in 2023", "risk"),
		concept("risk", "Section 2, Page 2", false, noSourceText, "growth"),
	)
}

func imagePromptsJSON(t *testing.T, records ...map[string]interface{}) string {
	return mustJSON(t, map[string]interface{}{"image_prompts": records})
}

func imagePrompt(conceptID, placeholderID, prompt string) map[string]interface{} {
	return map[string]interface{}{
		"concept_id_reference":  conceptID,
		"image_placeholder_id":  placeholderID,
		"suggested_visual_type": "Bar Chart",
		"image_prompt":          prompt,
		"purpose_on_slide":      "illustrate " + conceptID,
	}
}

func placeholder(id, conceptID string) map[string]interface{} {
	return map[string]interface{}{
		"image_placeholder_id":     id,
		"concept_id_link":          conceptID,
		"description_for_audience": "A chart of " + conceptID,
		"recommended_placement":    "RIGHT_HALF",
		"need_image":               true,
		"caption":                  "Figure for " + conceptID,
		"source_text_for_visual":   "Revenue grew 30% in 2023",
	}
}

func slide(id string, concepts []string, visual map[string]interface{}) map[string]interface{} {
	var p interface{}
	if visual != nil {
		p = visual
	}
	return map[string]interface{}{
		"slide_id":                     id,
		"concept_ids_covered":          concepts,
		"title":                        "Slide " + id,
		"main_text_summary":            "Summary",
		"bullet_points":                []string{"one", "two", "three"},
		"generated_visual_placeholder": p,
		"speaking_notes_key_points":    []string{"note"},
		"suggested_layout_type":        "TITLE_BULLETS",
	}
}

func deckJSON(t *testing.T, reported int, slides ...map[string]interface{}) string {
	return mustJSON(t, map[string]interface{}{
		"presentation_title":            "Quarterly Review",
		"number_of_slides":              reported,
		"slides":                        slides,
		"overall_presentation_guidance": []string{"keep it short"},
		"disclaimer":                    "Generated",
	})
}

func defaultDeck(t *testing.T) string {
	return deckJSON(t, 3,
		slide("s1", []string{"growth"}, placeholder("img_growth", "growth")),
		slide("s2", []string{"risk"}, nil),
		slide("s3", []string{"growth", "risk"}, nil),
	)
}
