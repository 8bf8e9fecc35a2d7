package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical/slide-creator/internal/domain"
)

const noSourceText = "No specific text directly prompts this visual."

var pageRefPattern = regexp.MustCompile(`(?i)\bpages?\s+(\d+)`)

// integrateVisuals attaches existing document visuals to slides. A mapping
// qualifies for a slide when its confidence exceeds floor and its visual sits
// on a page the slide's concepts come from. When no page can be resolved for
// a slide every mapping above floor qualifies. It returns the number of
// slides that received suggestions.
func integrateVisuals(deck *domain.SlideDeck, concepts *domain.ConceptExtraction, mappings []domain.ContentVisualMapping, analyses []domain.PageAnalysis, floor float64) int {
	if deck == nil || len(mappings) == 0 {
		return 0
	}

	summaries := make(map[int]string, len(analyses))
	for _, a := range analyses {
		if s := a.Summary(); s != "" {
			summaries[a.PageNumber] = s
		}
	}

	withSuggestions := 0
	for i := range deck.Slides {
		slide := &deck.Slides[i]
		pages := slidePages(slide, concepts, mappings)

		suggestions := suggestionsFor(pages, mappings, summaries, floor)
		if len(suggestions) == 0 {
			continue
		}

		slide.ExistingVisualSuggestions = suggestions
		if !slide.NeedsGeneratedImage() {
			best := suggestions[0]
			slide.RecommendedExistingVisual = &best
		}
		withSuggestions++
	}
	return withSuggestions
}

// slidePages resolves the source pages of the concepts a slide covers, from
// page numbers in the context reference and from text sections that contain
// the concept's source excerpt.
func slidePages(slide *domain.Slide, concepts *domain.ConceptExtraction, mappings []domain.ContentVisualMapping) map[int]bool {
	pages := make(map[int]bool)
	for _, id := range slide.ConceptIDsCovered {
		concept, ok := concepts.Find(id)
		if !ok {
			continue
		}
		for _, m := range pageRefPattern.FindAllStringSubmatch(concept.ContextReference, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				pages[n] = true
			}
		}

		source := normalize(concept.VisualizationOpportunity.SourceTextForVisual)
		if source == "" || source == normalize(noSourceText) {
			continue
		}
		if len(source) > 60 {
			source = source[:60]
		}
		for _, m := range mappings {
			if strings.Contains(normalize(m.TextSection.Content), source) {
				pages[m.TextSection.PageNumber] = true
			}
		}
	}
	return pages
}

func suggestionsFor(pages map[int]bool, mappings []domain.ContentVisualMapping, summaries map[int]string, floor float64) []domain.VisualSuggestion {
	best := make(map[string]domain.VisualSuggestion)
	for _, m := range mappings {
		if m.ConfidenceScore <= floor {
			continue
		}
		if len(pages) > 0 && !pages[m.VisualElement.PageNumber] {
			continue
		}

		key := elementKey(m.VisualElement)
		if cur, ok := best[key]; ok && cur.Confidence >= m.ConfidenceScore {
			continue
		}
		best[key] = domain.VisualSuggestion{
			VisualElement:    m.VisualElement,
			Confidence:       m.ConfidenceScore,
			RelationshipType: m.RelationshipType,
			PageAnalysis:     summaries[m.VisualElement.PageNumber],
			UsageSuggestion:  usage(m),
		}
	}

	out := make([]domain.VisualSuggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].VisualElement.PageNumber != out[j].VisualElement.PageNumber {
			return out[i].VisualElement.PageNumber < out[j].VisualElement.PageNumber
		}
		return out[i].VisualElement.BBox.Y < out[j].VisualElement.BBox.Y
	})
	return out
}

func elementKey(e domain.VisualElement) string {
	return fmt.Sprintf("%d:%d:%d:%d:%d", e.PageNumber, e.BBox.X, e.BBox.Y, e.BBox.Width, e.BBox.Height)
}

func usage(m domain.ContentVisualMapping) string {
	kind := m.VisualElement.ElementType
	switch m.RelationshipType {
	case domain.RelationDirectReference:
		return fmt.Sprintf("Show the %s the slide text refers to directly", kind)
	case domain.RelationExplanation:
		return fmt.Sprintf("Use the %s with its caption as the slide's main visual", kind)
	case domain.RelationSupportingData:
		return fmt.Sprintf("Use the %s as supporting data for the bullet points", kind)
	}
	return fmt.Sprintf("Consider the %s as background context", kind)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
