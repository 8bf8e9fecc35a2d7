// Package visual relates visual regions detected on rendered pages to the
// surrounding text so later stages can reuse figures the document already has.
package visual

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/spherical/slide-creator/internal/domain"
)

// Config holds the mapping and detection thresholds
type Config struct {
	MinMappingScore  float64 // mappings scoring at or below are discarded
	ContextFloor     float64 // mappings above are written into the enriched text
	ChartThreshold   float64 // chart candidates need a confidence above this
	DetectionWidth   int     // pages are scaled to this width before detection
	MinParagraphSize int     // shorter paragraphs are not sections
}

// DefaultConfig returns the heuristic thresholds
func DefaultConfig() Config {
	return Config{
		MinMappingScore:  0.3,
		ContextFloor:     0.5,
		ChartThreshold:   0.6,
		DetectionWidth:   1000,
		MinParagraphSize: 50,
	}
}

var dataKeywords = []string{
	"figure", "chart", "graph", "table", "diagram", "plot", "analysis",
	"results", "data", "statistics", "percentage", "ratio", "correlation",
	"trend", "comparison", "distribution", "frequency", "average", "median",
}

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)figure\s+\d+`),
	regexp.MustCompile(`(?i)table\s+\d+`),
	regexp.MustCompile(`(?i)chart\s+\d+`),
	regexp.MustCompile(`(?i)graph\s+\d+`),
	regexp.MustCompile(`(?i)see\s+above`),
	regexp.MustCompile(`(?i)see\s+below`),
	regexp.MustCompile(`(?i)as\s+shown`),
	regexp.MustCompile(`(?i)depicted\s+in`),
}

// Mapper scores text/visual pairs. It holds no per-document state.
type Mapper struct {
	cfg Config
}

// NewMapper creates a Mapper
func NewMapper(cfg Config) *Mapper {
	if cfg.MinParagraphSize <= 0 {
		cfg.MinParagraphSize = DefaultConfig().MinParagraphSize
	}
	return &Mapper{cfg: cfg}
}

// Config returns the thresholds in use
func (m *Mapper) Config() Config { return m.cfg }

// ExtractTextSections splits page text on blank lines and classifies each
// paragraph long enough to matter.
func (m *Mapper) ExtractTextSections(text string, page int) []domain.TextSection {
	var sections []domain.TextSection
	for _, para := range strings.Split(text, "\n\n") {
		if len(strings.TrimSpace(para)) < m.cfg.MinParagraphSize {
			continue
		}
		sections = append(sections, domain.TextSection{
			Content:        para,
			PageNumber:     page,
			SectionType:    classify(para),
			Keywords:       keywords(para),
			DataReferences: references(para),
		})
	}
	return sections
}

// ExtractAll runs ExtractTextSections over pages numbered from 1
func (m *Mapper) ExtractAll(pages []string) []domain.TextSection {
	var out []domain.TextSection
	for i, text := range pages {
		out = append(out, m.ExtractTextSections(text, i+1)...)
	}
	return out
}

// Score returns the clamped relationship score and type of one pair
func (m *Mapper) Score(section domain.TextSection, element domain.VisualElement) (float64, string) {
	score := 0.0
	relation := domain.RelationSupportingData

	if len(section.DataReferences) > 0 {
		score += 0.5
		relation = domain.RelationDirectReference
	}

	score += float64(len(section.Keywords)) * 0.1

	switch distance := pageDistance(section, element); {
	case distance == 0:
		score += 0.3
	case distance == 1:
		score += 0.2
	case distance <= 3:
		score += 0.1
	}

	if section.SectionType == domain.SectionCaption {
		score += 0.4
		relation = domain.RelationExplanation
	}

	if score > 1 {
		score = 1
	}
	return score, relation
}

// CreateMappings scores every pair, drops weak ones and sorts the rest by
// descending score. Ties keep text order.
func (m *Mapper) CreateMappings(sections []domain.TextSection, elements []domain.VisualElement) []domain.ContentVisualMapping {
	var mappings []domain.ContentVisualMapping
	for _, section := range sections {
		for _, element := range elements {
			score, relation := m.Score(section, element)
			if score <= m.cfg.MinMappingScore {
				continue
			}
			mappings = append(mappings, domain.ContentVisualMapping{
				TextSection:        section,
				VisualElement:      element,
				RelationshipType:   relation,
				ConfidenceScore:    score,
				ContextualDistance: pageDistance(section, element),
			})
		}
	}

	sort.SliceStable(mappings, func(i, j int) bool {
		return mappings[i].ConfidenceScore > mappings[j].ConfidenceScore
	})
	return mappings
}

func pageDistance(section domain.TextSection, element domain.VisualElement) int {
	d := section.PageNumber - element.PageNumber
	if d < 0 {
		return -d
	}
	return d
}

func classify(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "figure", "table", "chart"):
		return domain.SectionCaption
	case len(text) < 200 && isUpper(text):
		return domain.SectionHeading
	case containsAny(lower, "reference", "cite", "bibliography"):
		return domain.SectionReference
	default:
		return domain.SectionParagraph
	}
}

func keywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range dataKeywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func references(text string) []string {
	var out []string
	for _, re := range referencePatterns {
		out = append(out, re.FindAllString(text, -1)...)
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isUpper reports whether s has at least one letter and no lowercase letters
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
