package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/llm"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/prompts"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/validate"
)

const defaultBatchSize = 5

// Violations of these rules make a slide deck unusable
var fatalSlideRules = []validate.Rule{
	validate.RuleParse,
	validate.RuleRequired,
	validate.RuleType,
	validate.RuleShape,
}

// Stages runs the individual LLM stages. Every stage returns its output
// together with a StageReport and never returns a raw error.
type Stages struct {
	completer domain.TextCompleter
	retrier   *llm.Retrier
	validator *validate.Validator
	logger    *observability.Logger
	batchSize int
	now       func() time.Time
}

// StagesOption configures Stages
type StagesOption func(*Stages)

// WithBatchSize sets how many concepts go into one image prompt request
func WithBatchSize(n int) StagesOption {
	return func(s *Stages) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock replaces the clock used for durations and timestamps
func WithClock(now func() time.Time) StagesOption {
	return func(s *Stages) { s.now = now }
}

// NewStages creates the stage runner
func NewStages(completer domain.TextCompleter, retrier *llm.Retrier, validator *validate.Validator, logger *observability.Logger, opts ...StagesOption) *Stages {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Stages{
		completer: completer,
		retrier:   retrier,
		validator: validator,
		logger:    logger,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// invoke renders the schema prompt, runs it through the retrier and
// validates the parsed data. The validation result carries the retrier's
// recovery warnings.
func (s *Stages) invoke(ctx context.Context, schemaName, content string, media *domain.MediaReference) (validate.Result, llm.Outcome) {
	req, err := prompts.MustForSchema(schemaName).Render(content)
	if err != nil {
		return validate.Result{}, llm.Outcome{Err: err, ErrType: string(domain.ErrorTypeValidation)}
	}
	if media != nil {
		req = req.WithMedia(media.Path, media.MIMEType)
	}

	out := s.retrier.Invoke(ctx, func(ctx context.Context) (string, error) {
		resp, err := s.completer.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if !out.Success {
		return validate.Result{}, out
	}

	res := s.validator.ValidateParsed(out.Data, schemaName)
	if !res.Valid {
		if f, ok := s.completer.(llm.Forgetter); ok {
			if err := f.Forget(ctx, req); err != nil {
				s.logger.Warn().Err(err).Str("schema", schemaName).Msg("Failed to evict rejected completion")
			}
		}
	}
	res.Warnings = append(append([]string{}, out.Warnings...), res.Warnings...)
	return res, out
}

// Security screens text for malicious content. A nil verdict means the
// check could not be completed and the run must fail closed.
func (s *Stages) Security(ctx context.Context, text string) (_ *domain.SecurityVerdict, report StageReport) {
	start := s.now()
	report = newReport(StageSecurity)
	defer func() { report.Duration = s.now().Sub(start) }()

	res, out := s.invoke(ctx, schema.Malicious, text, nil)
	report.Attempts = out.Attempts
	if !out.Success {
		report.fail(ReasonSecurityCheckFailed, outcomeMessage(out))
		return nil, report
	}
	report.warn(res.Warnings...)
	if !res.Valid {
		// an unsafe answer halts the run even when it is incomplete
		if verdict, ok := flaggedVerdict(res.Data); ok {
			report.warn(res.Errors...)
			s.logger.Warn().
				Str("threat_level", verdict.ThreatLevel).
				Strs("schema_errors", res.Errors).
				Msg("Unsafe verdict does not match the schema, keeping it")
			return verdict, report
		}
		report.fail(ReasonSecurityCheckFailed, res.Errors...)
		return nil, report
	}

	var verdict domain.SecurityVerdict
	if err := validate.Decode(res.Data, &verdict); err != nil {
		report.fail(ReasonSecurityCheckFailed, err.Error())
		return nil, report
	}

	s.logger.Info().
		Bool("is_safe", verdict.IsSafe).
		Str("threat_level", verdict.ThreatLevel).
		Int("findings", len(verdict.Findings)).
		Msg("Security check complete")
	return &verdict, report
}

// flaggedVerdict recovers what it can from a response whose is_safe is
// false. Findings that cannot be decoded are left out.
func flaggedVerdict(data interface{}) (*domain.SecurityVerdict, bool) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if safe, ok := obj["is_safe"].(bool); !ok || safe {
		return nil, false
	}

	verdict := &domain.SecurityVerdict{}
	verdict.ThreatLevel, _ = obj["threat_level"].(string)
	verdict.OverallAssessment, _ = obj["overall_assessment"].(string)
	items, _ := obj["findings"].([]interface{})
	for _, item := range items {
		var f domain.Finding
		if err := validate.Decode(item, &f); err == nil {
			verdict.Findings = append(verdict.Findings, f)
		}
	}
	return verdict, true
}

// Concepts extracts the concept structure. Validation errors are advisory;
// the extraction is nil only when nothing could be parsed.
func (s *Stages) Concepts(ctx context.Context, text string) (_ *domain.ConceptExtraction, report StageReport) {
	start := s.now()
	report = newReport(StageConcepts)
	defer func() { report.Duration = s.now().Sub(start) }()

	res, out := s.invoke(ctx, schema.Concepts, text, nil)
	report.Attempts = out.Attempts
	if !out.Success {
		report.fail(ReasonConceptsUnavailable, outcomeMessage(out))
		return nil, report
	}
	report.warn(res.Warnings...)
	report.degrade(res.Errors...)

	extraction, dropped, ok := decodeConcepts(res.Data)
	if !ok {
		report.fail(ReasonConceptsUnavailable, "concept response is not a JSON object")
		return nil, report
	}
	report.degrade(dropped...)

	s.logger.Info().
		Int("concepts", len(extraction.Concepts)).
		Int("needs_visual", len(extraction.NeedingVisuals())).
		Float64("confidence", extraction.OverallConfidenceScore).
		Int("validation_errors", len(report.Errors)).
		Msg("Concept extraction complete")
	return extraction, report
}

// decodeConcepts decodes item by item so that one malformed concept does not
// discard the rest.
func decodeConcepts(data interface{}) (*domain.ConceptExtraction, []string, bool) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, nil, false
	}

	var dropped []string
	extraction := &domain.ConceptExtraction{}
	if v, ok := obj["overall_confidence_score"]; ok {
		_ = validate.Decode(v, &extraction.OverallConfidenceScore)
	}
	if v, ok := obj["notes"]; ok {
		_ = validate.Decode(v, &extraction.Notes)
	}

	items, _ := obj["concepts"].([]interface{})
	for i, item := range items {
		var c domain.Concept
		if err := validate.Decode(item, &c); err != nil {
			dropped = append(dropped, fmt.Sprintf("concepts[%d]: dropped undecodable concept: %v", i, err))
			continue
		}
		if strings.TrimSpace(c.ID) == "" {
			dropped = append(dropped, fmt.Sprintf("concepts[%d]: dropped concept without id", i))
			continue
		}
		extraction.Concepts = append(extraction.Concepts, c)
	}
	return extraction, dropped, true
}

// ImagePrompts engineers text-to-image prompts for the concepts that need a
// newly generated visual. Records that reference unknown concepts are dropped.
func (s *Stages) ImagePrompts(ctx context.Context, concepts *domain.ConceptExtraction) (_ []domain.ImagePrompt, report StageReport) {
	start := s.now()
	report = newReport(StageImagePrompts)
	defer func() { report.Duration = s.now().Sub(start) }()

	candidates := concepts.NeedingVisuals()
	if len(candidates) == 0 {
		report.skip("no concepts need a generated visual")
		return nil, report
	}

	known := concepts.IDs()
	seen := make(map[string]bool)
	var out []domain.ImagePrompt

	for i := 0; i < len(candidates); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			report.degrade(fmt.Sprintf("batch %d: %v", i/s.batchSize, err))
			break
		}

		end := i + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[i:end]

		payload, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			report.degrade(fmt.Sprintf("batch %d: %v", i/s.batchSize, err))
			continue
		}

		res, outcome := s.invoke(ctx, schema.ImagePrompts, string(payload), nil)
		report.Attempts += outcome.Attempts
		if !outcome.Success {
			report.degrade(fmt.Sprintf("batch %d: %s", i/s.batchSize, outcomeMessage(outcome)))
			continue
		}
		report.warn(res.Warnings...)
		report.degrade(res.Errors...)

		obj, _ := res.Data.(map[string]interface{})
		items, _ := obj["image_prompts"].([]interface{})
		for j, item := range items {
			var p domain.ImagePrompt
			if err := validate.Decode(item, &p); err != nil {
				report.degrade(fmt.Sprintf("image_prompts[%d]: %v", j, err))
				continue
			}
			if _, ok := known[p.ConceptIDReference]; !ok {
				report.degrade(fmt.Sprintf("image prompt '%s' references unknown concept id '%s'", p.ImagePlaceholderID, p.ConceptIDReference))
				continue
			}
			if p.ImagePlaceholderID != "" && seen[p.ImagePlaceholderID] {
				report.degrade(fmt.Sprintf("duplicate image placeholder id '%s'", p.ImagePlaceholderID))
				continue
			}
			seen[p.ImagePlaceholderID] = true
			out = append(out, p)
		}
	}

	s.logger.Info().
		Int("concepts", len(candidates)).
		Int("prompts", len(out)).
		Msg("Image prompt generation complete")
	return out, report
}

// Slides structures the full concept set into a deck. Structural errors and
// a slide count mismatch are fatal; style findings are advisory.
func (s *Stages) Slides(ctx context.Context, concepts *domain.ConceptExtraction) (_ *domain.SlideDeck, report StageReport) {
	start := s.now()
	report = newReport(StageSlides)
	defer func() { report.Duration = s.now().Sub(start) }()

	payload, err := json.MarshalIndent(concepts, "", "  ")
	if err != nil {
		report.fail(ReasonSlideValidationFailed, err.Error())
		return nil, report
	}

	res, out := s.invoke(ctx, schema.Slides, string(payload), nil)
	report.Attempts = out.Attempts
	if !out.Success {
		report.fail(ReasonSlideValidationFailed, outcomeMessage(out))
		return nil, report
	}
	report.warn(res.Warnings...)

	if fatal := res.Matching(fatalSlideRules...); len(fatal) > 0 {
		report.fail(ReasonSlideValidationFailed, validate.Messages(fatal)...)
		return nil, report
	}
	if mismatch := res.Matching(validate.RuleSlideCount); len(mismatch) > 0 {
		report.fail(ReasonSlideCountMismatch, validate.Messages(mismatch)...)
		return nil, report
	}
	report.degrade(validate.Messages(res.Excluding(validate.RuleSlideCount))...)

	var deck domain.SlideDeck
	if err := validate.Decode(res.Data, &deck); err != nil {
		report.fail(ReasonSlideValidationFailed, err.Error())
		return nil, report
	}

	known := concepts.IDs()
	for _, slide := range deck.Slides {
		for _, id := range slide.ConceptIDsCovered {
			if _, ok := known[id]; !ok {
				report.warn(fmt.Sprintf("slide '%s' covers unknown concept id '%s'", slide.SlideID, id))
			}
		}
	}

	s.logger.Info().
		Str("title", deck.PresentationTitle).
		Int("slides", len(deck.Slides)).
		Int("advisory_errors", len(report.Errors)).
		Msg("Slide structuring complete")
	return &deck, report
}

// AnalyzePages asks the vision model to describe each rendered page. A page
// that cannot be analyzed keeps its error and does not stop the others.
func (s *Stages) AnalyzePages(ctx context.Context, pages []domain.PageImage) (_ []domain.PageAnalysis, report StageReport) {
	start := s.now()
	report = newReport(StagePageAnalysis)
	defer func() { report.Duration = s.now().Sub(start) }()

	if len(pages) == 0 {
		report.skip("no page images")
		return nil, report
	}

	analyses := make([]domain.PageAnalysis, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			report.degrade(fmt.Sprintf("page %d: %v", page.PageNumber, err))
			break
		}

		analysis := domain.PageAnalysis{
			PageNumber: page.PageNumber,
			ImagePath:  page.ImagePath,
			AnalyzedAt: s.now(),
		}

		res, out := s.invoke(ctx, schema.VisualElements, fmt.Sprintf("Page %d of the document.", page.PageNumber),
			&domain.MediaReference{Path: page.ImagePath, MIMEType: "image/jpeg"})
		report.Attempts += out.Attempts

		switch {
		case !out.Success:
			analysis.Error = outcomeMessage(out)
		case !res.Valid:
			analysis.Error = strings.Join(res.Errors, "; ")
		default:
			if err := validate.Decode(res.Data, &analysis); err != nil {
				analysis.Error = err.Error()
			}
			analysis.PageNumber = page.PageNumber
			analysis.ImagePath = page.ImagePath
		}

		if analysis.Error != "" {
			report.degrade(fmt.Sprintf("page %d: %s", page.PageNumber, analysis.Error))
			s.logger.Warn().Int("page", page.PageNumber).Str("error", analysis.Error).Msg("Page analysis failed")
		}
		analyses = append(analyses, analysis)
	}

	return analyses, report
}

func outcomeMessage(out llm.Outcome) string {
	msg := out.Message()
	if msg == "" {
		msg = "unknown failure"
	}
	if out.ErrType != "" {
		msg = fmt.Sprintf("%s (%s, %d attempts)", msg, out.ErrType, out.Attempts)
	}
	return msg
}
