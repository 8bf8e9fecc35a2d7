package domain

import (
	"time"
)

// Document represents the source PDF file being processed
type Document struct {
	FilePath   string
	TotalPages int
	SizeBytes  int64
}

// PageImage represents a single rendered PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path to temporary JPG file
	Width      int
	Height     int
}

// Threat levels reported by the security stage
const (
	ThreatNone     = "NONE"
	ThreatLow      = "LOW"
	ThreatMedium   = "MEDIUM"
	ThreatHigh     = "HIGH"
	ThreatCritical = "CRITICAL"
)

// SecurityVerdict is the validated output of the security stage
type SecurityVerdict struct {
	IsSafe            bool      `json:"is_safe"`
	ThreatLevel       string    `json:"threat_level"`
	Findings          []Finding `json:"findings"`
	OverallAssessment string    `json:"overall_assessment"`
}

// Finding is a single suspicious element reported by the security stage
type Finding struct {
	Type              string  `json:"type"`
	Description       string  `json:"description"`
	Confidence        float64 `json:"confidence"`
	LocationHint      string  `json:"location_hint"`
	RecommendedAction string  `json:"recommended_action"`
	Excerpt           string  `json:"excerpt"`
}

// Relationship links a concept to another concept of the same extraction
type Relationship struct {
	RelatedConceptID string `json:"related_concept_id"`
	Type             string `json:"type"`
	Description      string `json:"description"`
}

// VisualizationOpportunity describes how a concept could be illustrated
type VisualizationOpportunity struct {
	NeedsNewGeneration    bool     `json:"needs_new_generation"`
	DataPresentForGraph   bool     `json:"data_present_for_graph"`
	SuggestedVisualTypes  []string `json:"suggested_visual_types"`
	VisualPurpose         string   `json:"visual_purpose"`
	KeyVisualElementsHint []string `json:"key_visual_elements_hint"`
	SourceTextForVisual   string   `json:"source_text_for_visual"`
}

// Concept is an atomic unit of extracted document meaning
type Concept struct {
	ID                       string                   `json:"id"`
	Title                    string                   `json:"title"`
	Summary                  string                   `json:"summary"`
	Keywords                 []string                 `json:"keywords"`
	ContextReference         string                   `json:"context_reference"`
	Relationships            []Relationship           `json:"relationships"`
	VisualizationOpportunity VisualizationOpportunity `json:"visualization_opportunity"`
}

// ConceptExtraction is the output of the concept stage
type ConceptExtraction struct {
	Concepts               []Concept `json:"concepts"`
	OverallConfidenceScore float64   `json:"overall_confidence_score"`
	Notes                  []string  `json:"notes"`
}

// NeedingVisuals returns the concepts flagged for a newly generated visual
func (c *ConceptExtraction) NeedingVisuals() []Concept {
	if c == nil {
		return nil
	}
	var out []Concept
	for _, concept := range c.Concepts {
		if concept.VisualizationOpportunity.NeedsNewGeneration {
			out = append(out, concept)
		}
	}
	return out
}

// IDs returns the set of concept ids in the extraction
func (c *ConceptExtraction) IDs() map[string]struct{} {
	ids := make(map[string]struct{})
	if c == nil {
		return ids
	}
	for _, concept := range c.Concepts {
		ids[concept.ID] = struct{}{}
	}
	return ids
}

// Find returns the concept with the given id
func (c *ConceptExtraction) Find(id string) (Concept, bool) {
	if c == nil {
		return Concept{}, false
	}
	for _, concept := range c.Concepts {
		if concept.ID == id {
			return concept, true
		}
	}
	return Concept{}, false
}

// ImagePrompt links a text-to-image prompt back to a concept
type ImagePrompt struct {
	ConceptIDReference  string `json:"concept_id_reference"`
	ImagePlaceholderID  string `json:"image_placeholder_id"`
	SuggestedVisualType string `json:"suggested_visual_type"`
	ImagePrompt         string `json:"image_prompt"`
	PurposeOnSlide      string `json:"purpose_on_slide"`
	ExpectedResolution  string `json:"expected_resolution"`
	AspectRatio         string `json:"aspect_ratio"`
}

// Recommended placements for a slide visual
const (
	PlacementFullSlide         = "FULL_SLIDE"
	PlacementLeftHalf          = "LEFT_HALF"
	PlacementRightHalf         = "RIGHT_HALF"
	PlacementTopHalf           = "TOP_HALF"
	PlacementBottomHalf        = "BOTTOM_HALF"
	PlacementBackgroundOverlay = "BACKGROUND_OVERLAY"
)

// Slide layout types
const (
	LayoutTitleOnly           = "TITLE_ONLY"
	LayoutTitleBullets        = "TITLE_BULLETS"
	LayoutTitleContentBullets = "TITLE_CONTENT_BULLETS"
	LayoutTitleImageRight     = "TITLE_IMAGE_RIGHT"
	LayoutTitleImageLeft      = "TITLE_IMAGE_LEFT"
	LayoutTitleImageFull      = "TITLE_IMAGE_FULL"
	LayoutTitleTwoColumns     = "TITLE_TWO_COLUMNS"
	LayoutSectionHeader       = "SECTION_HEADER"
)

// VisualPlaceholder marks where a generated image goes on a slide
type VisualPlaceholder struct {
	ImagePlaceholderID     string `json:"image_placeholder_id"`
	ConceptIDLink          string `json:"concept_id_link"`
	DescriptionForAudience string `json:"description_for_audience"`
	RecommendedPlacement   string `json:"recommended_placement"`
	NeedImage              bool   `json:"need_image"`
	Caption                string `json:"caption"`
	SourceTextForVisual    string `json:"source_text_for_visual"`

	// Set by the image generation step
	ImagePath        string `json:"image_path,omitempty"`
	UnresolvedReason string `json:"unresolved_reason,omitempty"`
}

// Slide is one output unit of the presentation
type Slide struct {
	SlideID                    string             `json:"slide_id"`
	ConceptIDsCovered          []string           `json:"concept_ids_covered"`
	Title                      string             `json:"title"`
	MainTextSummary            string             `json:"main_text_summary"`
	BulletPoints               []string           `json:"bullet_points"`
	GeneratedVisualPlaceholder *VisualPlaceholder `json:"generated_visual_placeholder"`
	SpeakingNotesKeyPoints     []string           `json:"speaking_notes_key_points"`
	SuggestedLayoutType        string             `json:"suggested_layout_type"`
	CallToActionOrTakeaway     string             `json:"call_to_action_or_takeaway,omitempty"`

	ExistingVisualSuggestions []VisualSuggestion `json:"existing_visual_suggestions,omitempty"`
	RecommendedExistingVisual *VisualSuggestion  `json:"recommended_existing_visual,omitempty"`
}

// NeedsGeneratedImage reports whether the slide asks for a newly generated image
func (s *Slide) NeedsGeneratedImage() bool {
	return s.GeneratedVisualPlaceholder != nil && s.GeneratedVisualPlaceholder.NeedImage
}

// SlideDeck is the output of the slide structuring stage
type SlideDeck struct {
	PresentationTitle           string   `json:"presentation_title"`
	NumberOfSlides              int      `json:"number_of_slides"`
	Slides                      []Slide  `json:"slides"`
	OverallPresentationGuidance []string `json:"overall_presentation_guidance"`
	Disclaimer                  string   `json:"disclaimer"`
}

// Visual element types produced by the detector
const (
	ElementChart   = "chart"
	ElementTable   = "table"
	ElementGraph   = "graph"
	ElementDiagram = "diagram"
)

// BoundingBox locates a region on a rendered page, in pixels
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VisualElement is a detected image region on a page
type VisualElement struct {
	ImagePath     string             `json:"image_path"`
	PageNumber    int                `json:"page_number"`
	BBox          BoundingBox        `json:"bbox"`
	ElementType   string             `json:"element_type"`
	ExtractedText string             `json:"extracted_text"`
	Features      map[string]float64 `json:"features,omitempty"`
	Confidence    float64            `json:"confidence"`
}

// Text section types
const (
	SectionParagraph = "paragraph"
	SectionHeading   = "heading"
	SectionCaption   = "caption"
	SectionReference = "reference"
)

// TextSection is a classified chunk of page text
type TextSection struct {
	Content        string   `json:"content"`
	PageNumber     int      `json:"page_number"`
	SectionType    string   `json:"section_type"`
	Keywords       []string `json:"keywords"`
	DataReferences []string `json:"data_references"`
}

// Relationship kinds between a text section and a visual element
const (
	RelationDirectReference = "direct_reference"
	RelationSupportingData  = "supporting_data"
	RelationExplanation     = "explanation"
	RelationSummary         = "summary"
)

// ContentVisualMapping relates a text section to a visual element
type ContentVisualMapping struct {
	TextSection        TextSection   `json:"text_section"`
	VisualElement      VisualElement `json:"visual_element"`
	RelationshipType   string        `json:"relationship_type"`
	ConfidenceScore    float64       `json:"confidence_score"`
	ContextualDistance int           `json:"contextual_distance"`
}

// VisualSuggestion proposes an existing document visual for a slide
type VisualSuggestion struct {
	VisualElement    VisualElement `json:"visual_element"`
	Confidence       float64       `json:"confidence"`
	RelationshipType string        `json:"relationship_type"`
	PageAnalysis     string        `json:"page_analysis,omitempty"`
	UsageSuggestion  string        `json:"usage_suggestion"`
}

// PageVisualElement is one element reported by the page image analysis
type PageVisualElement struct {
	Type                string   `json:"type"`
	DataInsight         string   `json:"data_insight"`
	KeyPoints           []string `json:"key_points"`
	SlideSuitability    string   `json:"slide_suitability"`
	SuggestedContext    string   `json:"suggested_context"`
	LocationDescription string   `json:"location_description"`
}

// PageAnalysis is the vision-model analysis of one rendered page
type PageAnalysis struct {
	PageNumber         int                 `json:"page_number"`
	ImagePath          string              `json:"image_path"`
	VisualElements     []PageVisualElement `json:"visual_elements,omitempty"`
	TextContentSummary string              `json:"text_content_summary,omitempty"`
	OverallPagePurpose string              `json:"overall_page_purpose,omitempty"`
	Error              string              `json:"error,omitempty"`
	AnalyzedAt         time.Time           `json:"analyzed_at"`
}

// Summary renders the analysis as a single line for prompt enrichment
func (p PageAnalysis) Summary() string {
	if p.Error != "" {
		return ""
	}
	if p.OverallPagePurpose == "" {
		return p.TextContentSummary
	}
	if p.TextContentSummary == "" {
		return p.OverallPagePurpose
	}
	return p.OverallPagePurpose + " " + p.TextContentSummary
}

// GeneratedImage records the outcome of one image generation call
type GeneratedImage struct {
	SlideID       string `json:"slide_id"`
	PlaceholderID string `json:"placeholder_id"`
	Prompt        string `json:"prompt"`
	Path          string `json:"path,omitempty"`
	Error         string `json:"error,omitempty"`
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventImageGenerated EventType = "image_generated"
	EventWarning        EventType = "warning"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"

	EventPresentationWritten EventType = "presentation_written"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Stage     string      `json:"stage,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
