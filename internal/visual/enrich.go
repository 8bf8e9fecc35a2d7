package visual

import (
	"fmt"
	"strings"

	"github.com/spherical/slide-creator/internal/domain"
)

const relatedTextLimit = 200

// Enrich joins page texts as "=== PAGE n ===" blocks and appends a visual
// context section listing mappings above the context floor, followed by any
// page image analyses. Sections with nothing to list are omitted.
func (m *Mapper) Enrich(pages []string, mappings []domain.ContentVisualMapping, analyses []domain.PageAnalysis) string {
	var b strings.Builder
	b.WriteString(domain.PageText(pages))

	var strong []domain.ContentVisualMapping
	for _, mapping := range mappings {
		if mapping.ConfidenceScore > m.cfg.ContextFloor {
			strong = append(strong, mapping)
		}
	}

	if len(strong) > 0 {
		b.WriteString("\n\n=== VISUAL ELEMENTS CONTEXT ===\n")
		for _, mapping := range strong {
			box := mapping.VisualElement.BBox
			fmt.Fprintf(&b, "\nVISUAL ELEMENT on Page %d:\n", mapping.VisualElement.PageNumber)
			fmt.Fprintf(&b, "- Type: %s\n", mapping.VisualElement.ElementType)
			fmt.Fprintf(&b, "- Relationship: %s (confidence: %.2f)\n", mapping.RelationshipType, mapping.ConfidenceScore)
			fmt.Fprintf(&b, "- Related Text: %q\n", excerpt(mapping.TextSection.Content, relatedTextLimit))
			fmt.Fprintf(&b, "- Location: (%d, %d, %d, %d)\n", box.X, box.Y, box.Width, box.Height)
		}
	}

	var summaries []string
	for _, a := range analyses {
		if s := a.Summary(); s != "" {
			summaries = append(summaries, fmt.Sprintf("Page %d: %s", a.PageNumber, s))
		}
	}
	if len(summaries) > 0 {
		b.WriteString("\n\n=== PAGE IMAGE ANALYSIS ===\n")
		b.WriteString(strings.Join(summaries, "\n"))
	}

	return b.String()
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
