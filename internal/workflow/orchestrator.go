package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/visual"
)

const (
	defaultSuggestionFloor = 0.4
	defaultHighConfidence  = 0.7
)

// Input is everything one run needs. Pages holds the text of each page in
// page order; PageImages and Elements are optional.
type Input struct {
	RunID      string
	Pages      []string
	PageImages []domain.PageImage
	Elements   []domain.VisualElement
	ImageDir   string
}

// Options tunes the orchestrator
type Options struct {
	AnalyzePages    bool
	SuggestionFloor float64
	HighConfidence  float64
}

// Orchestrator sequences the stages of one conversion. It keeps no state
// between runs, so one Orchestrator may serve concurrent runs.
type Orchestrator struct {
	stages *Stages
	mapper *visual.Mapper
	images *ImageStep
	opts   Options
	logger *observability.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. images may be nil, in which case
// every placeholder needing an image is marked unresolved.
func NewOrchestrator(stages *Stages, mapper *visual.Mapper, images *ImageStep, opts Options, logger *observability.Logger) *Orchestrator {
	if opts.SuggestionFloor <= 0 {
		opts.SuggestionFloor = defaultSuggestionFloor
	}
	if opts.HighConfidence <= 0 {
		opts.HighConfidence = defaultHighConfidence
	}
	if mapper == nil {
		mapper = visual.NewMapper(visual.DefaultConfig())
	}
	if images == nil {
		images = NewImageStep(nil, 0, logger)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Orchestrator{
		stages: stages,
		mapper: mapper,
		images: images,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// run holds the mutable state of one invocation
type run struct {
	o        *Orchestrator
	ctx      context.Context
	eventCh  chan<- domain.StreamEvent
	logger   *observability.Logger
	result   *Result
	mappings []domain.ContentVisualMapping
	started  time.Time
}

// Run executes the state machine and returns the aggregated result. It
// never returns an error: failures are reported on Result.Failure and the
// stage reports. Events are sent to eventCh without blocking when it is
// not nil.
func (o *Orchestrator) Run(ctx context.Context, in Input, eventCh chan<- domain.StreamEvent) *Result {
	r := &run{
		o:       o,
		ctx:     ctx,
		eventCh: eventCh,
		logger:  o.logger.WithRun(in.RunID),
		result: &Result{
			RunID: in.RunID,
			State: StateStart,
			Metadata: Metadata{
				PageCount:      len(in.Pages),
				StageDurations: make(map[string]time.Duration),
			},
		},
		started: o.now(),
	}
	defer r.finish()

	r.emit(domain.EventStart, "", fmt.Sprintf("Starting conversion of %d pages", len(in.Pages)))

	if !hasText(in.Pages) && len(in.PageImages) == 0 {
		r.halt(StateFailed, "", ReasonInvalidInput, "document contains no extractable text")
		return r.result
	}

	text := r.prepare(in)

	// SECURITY_CHECK
	if !r.enter(StateSecurityCheck) {
		return r.result
	}
	r.stageStarted(StageSecurity)
	verdict, report := o.stages.Security(ctx, text)
	r.record(report)
	r.result.Security = verdict
	if report.Failed() {
		r.fromReport(report)
		return r.result
	}
	if !verdict.IsSafe {
		r.halt(StateHaltUnsafe, StageSecurity, ReasonUnsafeContent,
			fmt.Sprintf("document flagged as unsafe (threat level %s): %s", verdict.ThreatLevel, verdict.OverallAssessment))
		return r.result
	}

	// CONCEPTS
	if !r.enter(StateConcepts) {
		return r.result
	}
	r.stageStarted(StageConcepts)
	concepts, report := o.stages.Concepts(ctx, text)
	r.record(report)
	r.result.Concepts = concepts
	if report.Failed() {
		r.fromReport(report)
		return r.result
	}

	// IMAGE_PROMPTS
	if !r.enter(StateImagePrompts) {
		return r.result
	}
	r.stageStarted(StageImagePrompts)
	imagePrompts, report := o.stages.ImagePrompts(ctx, concepts)
	r.record(report)
	r.result.ImagePrompts = imagePrompts

	// SLIDE_STRUCTURE
	if !r.enter(StateSlideStructure) {
		return r.result
	}
	r.stageStarted(StageSlides)
	deck, report := o.stages.Slides(ctx, concepts)
	r.record(report)
	if report.Failed() {
		r.fromReport(report)
		return r.result
	}
	r.result.Deck = deck

	// VISUAL_INTEGRATION
	if !r.enter(StateVisualIntegration) {
		return r.result
	}
	r.integrate()

	r.stageStarted(StageImages)
	images, report := o.images.Generate(ctx, deck, imagePrompts, imageDir(in), func(img domain.GeneratedImage) {
		if img.Error == "" {
			r.emit(domain.EventImageGenerated, StageImages, img)
		} else {
			r.emit(domain.EventWarning, StageImages, fmt.Sprintf("image for slide %s failed: %s", img.SlideID, img.Error))
		}
	})
	r.record(report)
	r.result.Images = images
	if report.Failed() {
		r.fromReport(report)
		return r.result
	}

	r.result.State = StateDone
	return r.result
}

// prepare maps document text to detected visuals, runs the optional page
// analysis and returns the enriched text fed to the LLM stages.
func (r *run) prepare(in Input) string {
	o := r.o
	if len(in.Elements) > 0 {
		sections := o.mapper.ExtractAll(in.Pages)
		r.mappings = o.mapper.CreateMappings(sections, in.Elements)
		r.logger.Debug().
			Int("sections", len(sections)).
			Int("elements", len(in.Elements)).
			Int("mappings", len(r.mappings)).
			Msg("Mapped text to visual elements")
	}

	if o.opts.AnalyzePages && len(in.PageImages) > 0 {
		r.stageStarted(StagePageAnalysis)
		analyses, report := o.stages.AnalyzePages(r.ctx, in.PageImages)
		r.record(report)
		r.result.Analyses = analyses
	}

	return o.mapper.Enrich(in.Pages, r.mappings, r.result.Analyses)
}

func (r *run) integrate() {
	start := r.o.now()
	report := newReport(StageVisualIntegration)

	if len(r.mappings) == 0 {
		report.skip("no visual elements detected")
	} else {
		n := integrateVisuals(r.result.Deck, r.result.Concepts, r.mappings, r.result.Analyses, r.o.opts.SuggestionFloor)
		r.result.Metadata.SlidesWithSuggestions = n
	}

	report.Duration = r.o.now().Sub(start)
	r.record(report)
}

// enter moves to state unless the run was cancelled
func (r *run) enter(state State) bool {
	if err := r.ctx.Err(); err != nil {
		r.halt(StateFailed, "", ReasonCancelled, err.Error())
		return false
	}
	r.result.State = state
	r.logger.Debug().Str("state", string(state)).Msg("Entering state")
	return true
}

func (r *run) stageStarted(stage string) {
	r.emit(domain.EventStageStarted, stage, fmt.Sprintf("Running %s", strings.ReplaceAll(stage, "_", " ")))
}

func (r *run) record(report StageReport) {
	r.result.Stages = append(r.result.Stages, report)
	r.result.Metadata.StageDurations[report.Stage] = report.Duration

	ev := r.logger.Info()
	if report.Status == StatusFailed || report.Status == StatusDegraded {
		ev = r.logger.Warn()
	}
	ev.Str("stage", report.Stage).
		Str("status", string(report.Status)).
		Int("attempts", report.Attempts).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration).
		Msg("Stage finished")

	r.emit(domain.EventStageCompleted, report.Stage, report)
	for _, e := range report.Errors {
		if report.Status != StatusFailed {
			r.emit(domain.EventWarning, report.Stage, e)
		}
	}
}

// fromReport ends the run with the failure of a stage
func (r *run) fromReport(report StageReport) {
	reason := report.Reason
	if r.ctx.Err() != nil {
		reason = ReasonCancelled
	}
	r.halt(StateFailed, report.Stage, reason, strings.Join(report.Errors, "; "))
}

func (r *run) halt(state State, stage, reason, message string) {
	r.result.State = state
	r.result.Failure = &Failure{Stage: stage, Reason: reason, Message: message}
	r.logger.Warn().
		Str("state", string(state)).
		Str("stage", stage).
		Str("reason", reason).
		Msg(message)
	r.emit(domain.EventError, stage, r.result.Failure)
}

func (r *run) finish() {
	res := r.result
	res.Metadata.TotalDuration = r.o.now().Sub(r.started)
	summarize(res, r.mappings, r.o.opts.HighConfidence)

	r.emit(domain.EventComplete, "", fmt.Sprintf("Run finished in state %s after %v", res.State, res.Metadata.TotalDuration.Round(time.Millisecond)))
}

// summarize fills the count and confidence fields of the metadata
func summarize(res *Result, mappings []domain.ContentVisualMapping, high float64) {
	md := &res.Metadata
	if res.Concepts != nil {
		md.ConceptCount = len(res.Concepts.Concepts)
		md.VisualConceptCount = len(res.Concepts.NeedingVisuals())
		md.ConceptConfidence = res.Concepts.OverallConfidenceScore
	}
	md.ImagePromptCount = len(res.ImagePrompts)
	if res.Deck != nil {
		md.SlideCount = len(res.Deck.Slides)
	}
	for _, img := range res.Images {
		if img.Path != "" {
			md.ImageCount++
		} else {
			md.FailedImageCount++
		}
	}

	md.MappingCount = len(mappings)
	if len(mappings) > 0 {
		total := 0.0
		for _, m := range mappings {
			total += m.ConfidenceScore
			if m.ConfidenceScore > high {
				md.HighConfidenceMappings++
			}
		}
		md.AverageMappingScore = total / float64(len(mappings))
	}
}

// emitEvent safely emits an event to the channel
func (r *run) emit(t domain.EventType, stage string, payload interface{}) {
	if r.eventCh == nil {
		return
	}
	event := domain.StreamEvent{Type: t, Stage: stage, Payload: payload, Timestamp: r.o.now()}
	select {
	case r.eventCh <- event:
	default:
		r.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
	}
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func imageDir(in Input) string {
	if in.ImageDir != "" {
		return in.ImageDir
	}
	return filepath.Join(".", "generated_images")
}
