package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry names of the built-in schemas.
const (
	Malicious      = "malicious"
	Concepts       = "breakdownConcepts"
	ImagePrompts   = "generateImagePrompts"
	Slides         = "convertToSlides"
	VisualElements = "visual_element_extraction"
	SlideContent   = "slide_content_extraction"
	ChartData      = "chart_data_extraction"
)

// ErrSchemaNotFound is returned when a name is not registered.
var ErrSchemaNotFound = errors.New("schema not found")

// Registry is a read-only set of schemas keyed by name.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry builds a registry. Later schemas replace earlier ones with the same name.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.name] = s
	}
	return r
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template returns the JSON template for name, or "{}" when unknown.
func (r *Registry) Template(name string) string {
	if s, ok := r.schemas[name]; ok {
		return s.template
	}
	return "{}"
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(builtins()...)
})

// Default returns the process-wide registry of built-in schemas.
func Default() *Registry {
	return defaultRegistry()
}

var (
	threatLevels       = []string{"NONE", "LOW", "MEDIUM", "HIGH", "CRITICAL"}
	findingTypes       = []string{"OBFUSCATION", "MALICIOUS_URL", "SCRIPT_INJECTION", "PHISHING", "ANOMALY", "OTHER"}
	recommendedActions = []string{"CONTINUE_WITH_CAUTION", "REVIEW_MANUALLY", "REJECT_DOCUMENT_PROCESSING"}
	relationshipTypes  = []string{
		"SUPPORTS", "CONTRADICTS", "IS_EXAMPLE_OF", "DEPENDS_ON", "LEADS_TO",
		"CONTRASTS_WITH", "PART_OF", "SIMILAR_TO", "APPLIES_TO", "DISCUSSED_IN_CONJUNCTION_WITH",
	}
	placements = []string{
		"FULL_SLIDE", "LEFT_HALF", "RIGHT_HALF", "TOP_HALF", "BOTTOM_HALF", "BACKGROUND_OVERLAY",
	}
	layoutTypes = []string{
		"TITLE_ONLY", "TITLE_BULLETS", "TITLE_CONTENT_BULLETS", "TITLE_IMAGE_RIGHT",
		"TITLE_IMAGE_LEFT", "TITLE_IMAGE_FULL", "TITLE_TWO_COLUMNS", "SECTION_HEADER",
	}
	suitability = []string{"high", "medium", "low"}
)

func builtins() []*Schema {
	return []*Schema{
		maliciousSchema(),
		conceptsSchema(),
		imagePromptsSchema(),
		slidesSchema(),
		visualElementsSchema(),
		slideContentSchema(),
		chartDataSchema(),
	}
}

func maliciousSchema() *Schema {
	finding := newSchema("finding", "Single security finding", "",
		required("type", TypeString).oneOf(findingTypes...),
		required("description", TypeString),
		required("confidence", TypeFloat),
		required("location_hint", TypeString),
		required("recommended_action", TypeString).oneOf(recommendedActions...),
		required("excerpt", TypeString),
	)

	return newSchema(Malicious,
		"Security analysis response with threat assessment and findings",
		maliciousTemplate,
		required("is_safe", TypeBoolean),
		required("threat_level", TypeString).oneOf(threatLevels...),
		required("findings", TypeList).of(finding),
		required("overall_assessment", TypeString),
	)
}

func conceptsSchema() *Schema {
	relationship := newSchema("relationship", "Link to another concept of the same response", "",
		required("related_concept_id", TypeString),
		required("type", TypeString).oneOf(relationshipTypes...),
		required("description", TypeString),
	)

	opportunity := newSchema("visualization_opportunity", "How a concept could be illustrated", "",
		required("needs_new_generation", TypeBoolean),
		required("data_present_for_graph", TypeBoolean),
		required("suggested_visual_types", TypeList),
		required("visual_purpose", TypeString),
		required("key_visual_elements_hint", TypeList),
		required("source_text_for_visual", TypeString),
	)

	concept := newSchema("concept", "Atomic unit of document meaning", "",
		required("id", TypeString),
		required("title", TypeString),
		required("summary", TypeString),
		required("keywords", TypeList),
		required("context_reference", TypeString),
		required("relationships", TypeList).of(relationship),
		required("visualization_opportunity", TypeMapping).of(opportunity),
	)

	return newSchema(Concepts,
		"Structured concept extraction with visualization opportunities",
		conceptsTemplate,
		required("concepts", TypeList).of(concept),
		required("overall_confidence_score", TypeFloat),
		required("notes", TypeList),
	)
}

func imagePromptsSchema() *Schema {
	prompt := newSchema("image_prompt", "Text-to-image prompt for one concept", "",
		required("concept_id_reference", TypeString),
		required("image_placeholder_id", TypeString),
		required("suggested_visual_type", TypeString),
		required("image_prompt", TypeString),
		required("purpose_on_slide", TypeString),
		optional("expected_resolution", TypeString),
		optional("aspect_ratio", TypeString),
	)

	return newSchema(ImagePrompts,
		"Image generation prompts linked to concept ids",
		imagePromptsTemplate,
		required("image_prompts", TypeList).of(prompt),
	)
}

func slidesSchema() *Schema {
	placeholder := newSchema("generated_visual_placeholder", "Generated image slot on a slide", "",
		required("image_placeholder_id", TypeString),
		optional("concept_id_link", TypeString),
		optional("description_for_audience", TypeString),
		required("recommended_placement", TypeString).oneOf(placements...),
		required("need_image", TypeBoolean),
		optional("caption", TypeString),
		optional("source_text_for_visual", TypeString),
	).gatedBy("need_image")

	slide := newSchema("slide", "One presentation slide", "",
		required("slide_id", TypeString),
		required("concept_ids_covered", TypeList),
		required("title", TypeString),
		required("main_text_summary", TypeString),
		required("bullet_points", TypeList),
		required("generated_visual_placeholder", TypeNullableMapping).of(placeholder),
		required("speaking_notes_key_points", TypeList),
		required("suggested_layout_type", TypeString).oneOf(layoutTypes...),
		optional("call_to_action_or_takeaway", TypeString),
	)

	return newSchema(Slides,
		"Complete slide presentation structure with visual placeholders",
		slidesTemplate,
		required("presentation_title", TypeString),
		required("number_of_slides", TypeInteger),
		required("slides", TypeList).of(slide),
		required("overall_presentation_guidance", TypeList),
		required("disclaimer", TypeString),
	)
}

func visualElementsSchema() *Schema {
	element := newSchema("visual_element", "Visual element found on a page image", "",
		required("type", TypeString),
		required("data_insight", TypeString),
		required("key_points", TypeList),
		required("slide_suitability", TypeString).oneOf(suitability...),
		required("suggested_context", TypeString),
		required("location_description", TypeString),
	)

	return newSchema(VisualElements,
		"Analysis of visual elements in images for slide integration",
		visualElementsTemplate,
		required("visual_elements", TypeList).of(element),
		required("text_content_summary", TypeString),
		required("overall_page_purpose", TypeString),
	)
}

func slideContentSchema() *Schema {
	return newSchema(SlideContent,
		"Slide-ready content extraction from images",
		slideContentTemplate,
		required("potential_slide_titles", TypeList),
		required("key_bullet_points", TypeList),
		required("supporting_data", TypeList),
		required("main_takeaway", TypeString),
		required("audience_relevance", TypeString),
	)
}

func chartDataSchema() *Schema {
	chart := newSchema("chart", "Data extracted from one chart", "",
		required("chart_type", TypeString),
		required("title", TypeString),
		required("data_points", TypeList),
		required("insights", TypeList),
		required("axis_labels", TypeMapping),
	)

	return newSchema(ChartData,
		"Detailed data extraction from charts and graphs",
		chartDataTemplate,
		required("charts_data", TypeList).of(chart),
		required("summary", TypeString),
	)
}

const maliciousTemplate = `{
    "is_safe": true,
    "threat_level": "NONE",
    "findings": [
        {
            "type": "OBFUSCATION",
            "description": "Detailed description of the potential threat found.",
            "confidence": 0.85,
            "location_hint": "paragraph 3, sentence 2",
            "recommended_action": "CONTINUE_WITH_CAUTION",
            "excerpt": "Short snippet of suspicious text"
        }
    ],
    "overall_assessment": "Concise overall conclusion on safety."
}`

const conceptsTemplate = `{
    "concepts": [
        {
            "id": "concept_unique_id",
            "title": "Concept Title (max 10 words)",
            "summary": "Brief summary (max 50 words)",
            "keywords": ["keyword1", "keyword2"],
            "context_reference": "Section reference, Page 3",
            "relationships": [
                {
                    "related_concept_id": "other_concept_id",
                    "type": "SUPPORTS",
                    "description": "Relationship description"
                }
            ],
            "visualization_opportunity": {
                "needs_new_generation": true,
                "data_present_for_graph": false,
                "suggested_visual_types": ["Conceptual Diagram"],
                "visual_purpose": "Purpose description",
                "key_visual_elements_hint": ["element1", "element2"],
                "source_text_for_visual": "Exact text from source"
            }
        }
    ],
    "overall_confidence_score": 0.95,
    "notes": ["Processing notes"]
}`

const imagePromptsTemplate = `{
    "image_prompts": [
        {
            "concept_id_reference": "concept_unique_id",
            "image_placeholder_id": "concept_unique_id_visual_01",
            "suggested_visual_type": "Conceptual Diagram",
            "image_prompt": "A minimalist conceptual diagram with clean lines and a blue and gold palette.",
            "purpose_on_slide": "Explain the concept visually",
            "expected_resolution": "1920x1080",
            "aspect_ratio": "16:9"
        }
    ]
}`

const slidesTemplate = `{
    "presentation_title": "Presentation Title",
    "number_of_slides": 3,
    "slides": [
        {
            "slide_id": "slide_01_intro",
            "concept_ids_covered": ["concept_id1"],
            "title": "Slide Title",
            "main_text_summary": "Brief slide summary",
            "bullet_points": ["Point 1", "Point 2", "Point 3"],
            "generated_visual_placeholder": {
                "image_placeholder_id": "slide_01_visual_01",
                "concept_id_link": "concept_id1",
                "description_for_audience": "Figure 1: Description",
                "recommended_placement": "FULL_SLIDE",
                "need_image": true,
                "caption": "Visual caption",
                "source_text_for_visual": "Source text for visual"
            },
            "speaking_notes_key_points": ["Note 1", "Note 2"],
            "suggested_layout_type": "TITLE_CONTENT_BULLETS",
            "call_to_action_or_takeaway": "Main takeaway"
        }
    ],
    "overall_presentation_guidance": ["Guidance 1", "Guidance 2"],
    "disclaimer": "AI-generated content disclaimer"
}`

const visualElementsTemplate = `{
    "visual_elements": [
        {
            "type": "bar_chart",
            "data_insight": "Shows quarterly revenue growth",
            "key_points": ["Q4 shows 30% increase", "Consistent upward trend"],
            "slide_suitability": "high",
            "suggested_context": "Financial performance overview",
            "location_description": "Center of page, below heading"
        }
    ],
    "text_content_summary": "Brief summary of non-visual text",
    "overall_page_purpose": "What this page aims to communicate"
}`

const slideContentTemplate = `{
    "potential_slide_titles": ["Title option 1", "Title option 2"],
    "key_bullet_points": ["Point 1", "Point 2"],
    "supporting_data": ["Revenue grew 30% in Q4"],
    "main_takeaway": "Single sentence takeaway",
    "audience_relevance": "Why the audience should care"
}`

const chartDataTemplate = `{
    "charts_data": [
        {
            "chart_type": "bar_chart",
            "title": "Quarterly Revenue",
            "data_points": [{"label": "Q1", "value": 10}],
            "insights": ["Q4 is the strongest quarter"],
            "axis_labels": {"x": "Quarter", "y": "Revenue"}
        }
    ],
    "summary": "What the charts show overall"
}`
