package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/workflow"
)

// pipelineStages is the number of stage reports a complete run produces
const pipelineStages = 7

// EventRenderer prints the events of a single conversion.
type EventRenderer struct {
	spinner *Spinner
	start   time.Time
	images  int
}

// NewEventRenderer creates a renderer. The spinner is only drawn on an
// interactive terminal.
func NewEventRenderer() *EventRenderer {
	r := &EventRenderer{start: time.Now()}
	if Interactive() {
		r.spinner = NewSpinner("Starting")
	}
	return r
}

// Handle renders one event.
func (r *EventRenderer) Handle(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventStart:
		Success("%v", ev.Payload)

	case domain.EventStageStarted:
		if r.spinner != nil {
			r.spinner.UpdateMessage(fmt.Sprintf("%v", ev.Payload))
			r.spinner.Start()
		} else {
			Debug("%v", ev.Payload)
		}

	case domain.EventStageCompleted:
		r.stop()
		if report, ok := ev.Payload.(workflow.StageReport); ok {
			r.report(report)
		}

	case domain.EventImageGenerated:
		r.images++
		if img, ok := ev.Payload.(domain.GeneratedImage); ok {
			Debug("image for slide %s: %s", img.SlideID, img.Path)
		}

	case domain.EventWarning:
		if verboseFlag {
			r.stop()
			Warning("%s: %v", stageLabel(ev.Stage), ev.Payload)
		}

	case domain.EventError:
		r.stop()
		Error("%s", describeError(ev))

	case domain.EventComplete:
		r.stop()
		Rule()
		Info("%v", ev.Payload)

	case domain.EventPresentationWritten:
		Success("Presentation written to %v", ev.Payload)
		Message("Total time: %v", time.Since(r.start).Round(time.Second))
	}
}

// Finish stops any running animation.
func (r *EventRenderer) Finish() {
	r.stop()
}

func (r *EventRenderer) stop() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
}

func (r *EventRenderer) report(rep workflow.StageReport) {
	label := stageLabel(rep.Stage)
	took := rep.Duration.Round(time.Millisecond)
	switch rep.Status {
	case workflow.StatusOK:
		Success("%s (%v)", label, took)
	case workflow.StatusDegraded:
		Warning("%s completed with %d issue(s) (%v)", label, len(rep.Errors), took)
	case workflow.StatusSkipped:
		Step("%s skipped: %s", label, rep.Reason)
	case workflow.StatusFailed:
		Error("%s failed: %s", label, rep.Reason)
		for _, e := range rep.Errors {
			Debug("%s", e)
		}
	}
	if rep.Stage == workflow.StageImages && r.images > 0 {
		Debug("%d image(s) generated", r.images)
	}
}

// BatchTracker draws one bar per file when several PDFs are converted.
type BatchTracker struct {
	progress *mpb.Progress
}

// NewBatchTracker creates a tracker writing to stderr.
func NewBatchTracker() *BatchTracker {
	return &BatchTracker{progress: mpb.New(mpb.WithWidth(40), mpb.WithOutput(stderr))}
}

// FileBar follows the stages of one file.
type FileBar struct {
	bar *mpb.Bar
}

// Track adds a bar for name.
func (t *BatchTracker) Track(name string) *FileBar {
	bar := t.progress.AddBar(pipelineStages,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnAbort(
				decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}), "done"),
				"failed",
			),
		),
	)
	return &FileBar{bar: bar}
}

// Handle advances the bar from one event.
func (b *FileBar) Handle(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventStageCompleted:
		b.bar.Increment()
	case domain.EventError:
		b.bar.Abort(false)
	case domain.EventPresentationWritten:
		b.bar.SetCurrent(pipelineStages)
	}
}

// Done marks the bar finished whatever state it reached.
func (b *FileBar) Done(err error) {
	if err != nil {
		b.bar.Abort(false)
		return
	}
	b.bar.SetCurrent(pipelineStages)
}

// Wait blocks until all bars are rendered. Piped output is shut down
// instead since the bars never render there.
func (t *BatchTracker) Wait() {
	if IsTerminal() {
		t.progress.Wait()
		return
	}
	t.progress.Shutdown()
}

func stageLabel(stage string) string {
	if stage == "" {
		return "pipeline"
	}
	return strings.ReplaceAll(stage, "_", " ")
}

func describeError(ev domain.StreamEvent) string {
	switch p := ev.Payload.(type) {
	case *workflow.Failure:
		return fmt.Sprintf("%s failed (%s): %s", stageLabel(p.Stage), p.Reason, p.Message)
	case error:
		return p.Error()
	default:
		return fmt.Sprintf("%v", p)
	}
}
