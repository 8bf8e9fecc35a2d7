// Package workflow runs the LLM stages that turn document text into a slide
// deck: security screening, concept extraction, image prompt engineering,
// slide structuring and visual integration, plus image generation for the
// placeholders the deck asks for.
package workflow

import (
	"time"

	"github.com/spherical/slide-creator/internal/domain"
)

// State is a node of the orchestrator state machine
type State string

const (
	StateStart             State = "START"
	StateSecurityCheck     State = "SECURITY_CHECK"
	StateHaltUnsafe        State = "HALT_UNSAFE"
	StateConcepts          State = "CONCEPTS"
	StateImagePrompts      State = "IMAGE_PROMPTS"
	StateSlideStructure    State = "SLIDE_STRUCTURE"
	StateVisualIntegration State = "VISUAL_INTEGRATION"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Stage names used in reports and events
const (
	StageSecurity          = "security"
	StagePageAnalysis      = "page_analysis"
	StageConcepts          = "concepts"
	StageImagePrompts      = "image_prompts"
	StageSlides            = "slides"
	StageVisualIntegration = "visual_integration"
	StageImages            = "images"
)

// Status is the outcome of one stage
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded" // output usable, advisory errors recorded
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Failure reasons
const (
	ReasonUnsafeContent         = "unsafe_content"
	ReasonSecurityCheckFailed   = "security_check_failed"
	ReasonConceptsUnavailable   = "concepts_unavailable"
	ReasonSlideValidationFailed = "slide_validation_failed"
	ReasonSlideCountMismatch    = "slide_count_mismatch"
	ReasonCancelled             = "cancelled"
	ReasonInvalidInput          = "invalid_input"
)

// StageReport records what happened in one stage
type StageReport struct {
	Stage    string        `json:"stage"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the stage ended the run
func (r StageReport) Failed() bool { return r.Status == StatusFailed }

func newReport(stage string) StageReport {
	return StageReport{Stage: stage, Status: StatusOK}
}

func (r *StageReport) fail(reason string, errs ...string) {
	r.Status = StatusFailed
	r.Reason = reason
	r.Errors = append(r.Errors, errs...)
}

func (r *StageReport) degrade(errs ...string) {
	if len(errs) == 0 {
		return
	}
	if r.Status == StatusOK {
		r.Status = StatusDegraded
	}
	r.Errors = append(r.Errors, errs...)
}

func (r *StageReport) skip(reason string) {
	r.Status = StatusSkipped
	r.Reason = reason
}

func (r *StageReport) warn(msgs ...string) {
	r.Warnings = append(r.Warnings, msgs...)
}

// Failure is the terminal error of a run
type Failure struct {
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Metadata summarizes a run
type Metadata struct {
	PageCount              int                      `json:"page_count"`
	ConceptCount           int                      `json:"concept_count"`
	VisualConceptCount     int                      `json:"visual_concept_count"`
	ImagePromptCount       int                      `json:"image_prompt_count"`
	SlideCount             int                      `json:"slide_count"`
	ImageCount             int                      `json:"image_count"`
	FailedImageCount       int                      `json:"failed_image_count"`
	MappingCount           int                      `json:"mapping_count"`
	HighConfidenceMappings int                      `json:"high_confidence_mappings"`
	AverageMappingScore    float64                  `json:"average_mapping_score"`
	ConceptConfidence      float64                  `json:"concept_confidence"`
	SlidesWithSuggestions  int                      `json:"slides_with_suggestions"`
	StageDurations         map[string]time.Duration `json:"stage_durations"`
	TotalDuration          time.Duration            `json:"total_duration"`
}

// Result aggregates the output of one orchestrator run
type Result struct {
	RunID        string                    `json:"run_id"`
	State        State                     `json:"state"`
	Security     *domain.SecurityVerdict   `json:"security,omitempty"`
	Concepts     *domain.ConceptExtraction `json:"concepts,omitempty"`
	ImagePrompts []domain.ImagePrompt      `json:"image_prompts,omitempty"`
	Deck         *domain.SlideDeck         `json:"deck,omitempty"`
	Analyses     []domain.PageAnalysis     `json:"page_analyses,omitempty"`
	Images       []domain.GeneratedImage   `json:"images,omitempty"`
	Stages       []StageReport             `json:"stages"`
	Failure      *Failure                  `json:"failure,omitempty"`
	Metadata     Metadata                  `json:"metadata"`
}

// Succeeded reports whether the run reached DONE
func (r *Result) Succeeded() bool { return r.State == StateDone }

// Report returns the report of the named stage
func (r *Result) Report(stage string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageReport{}, false
}

// Warnings flattens advisory errors and warnings of every stage
func (r *Result) Warnings() []string {
	var out []string
	for _, s := range r.Stages {
		if s.Status == StatusFailed {
			continue
		}
		for _, e := range s.Errors {
			out = append(out, s.Stage+": "+e)
		}
		for _, w := range s.Warnings {
			out = append(out, s.Stage+": "+w)
		}
	}
	return out
}
