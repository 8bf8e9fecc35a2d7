package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
)

const defaultImageWorkers = 4

var (
	fencePattern    = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// ImageStep generates images for slide placeholders. Calls run on a bounded
// pool and a failing call only affects its own slide.
type ImageStep struct {
	generator domain.ImageGenerator
	workers   int
	logger    *observability.Logger
	now       func() time.Time
}

// NewImageStep creates an ImageStep. A nil generator disables generation and
// every requested placeholder is marked unresolved.
func NewImageStep(generator domain.ImageGenerator, workers int, logger *observability.Logger) *ImageStep {
	if workers <= 0 {
		workers = defaultImageWorkers
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ImageStep{generator: generator, workers: workers, logger: logger, now: time.Now}
}

type imageJob struct {
	slide    int
	prompt   string
	filename string
}

// Generate writes one PNG per placeholder that needs an image into dir and
// points the placeholder at it. Placeholders whose generation failed are
// switched to need_image=false with an unresolved reason. When ctx is
// cancelled every file written by the batch is removed.
func (s *ImageStep) Generate(ctx context.Context, deck *domain.SlideDeck, prompts []domain.ImagePrompt, dir string, onImage func(domain.GeneratedImage)) (_ []domain.GeneratedImage, report StageReport) {
	start := s.now()
	report = newReport(StageImages)
	defer func() { report.Duration = s.now().Sub(start) }()

	jobs := s.plan(deck, prompts)
	if len(jobs) == 0 {
		report.skip("no slide needs a generated image")
		return nil, report
	}
	if s.generator == nil {
		for _, job := range jobs {
			unresolve(deck.Slides[job.slide].GeneratedVisualPlaceholder, "image generation disabled")
		}
		report.skip("image generation disabled")
		return nil, report
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		for _, job := range jobs {
			unresolve(deck.Slides[job.slide].GeneratedVisualPlaceholder, err.Error())
		}
		report.degrade(fmt.Sprintf("failed to create image directory: %v", err))
		return nil, report
	}

	results := make([]domain.GeneratedImage, len(jobs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, job := range jobs {
		g.Go(func() error {
			slide := deck.Slides[job.slide]
			result := domain.GeneratedImage{
				SlideID:       slide.SlideID,
				PlaceholderID: slide.GeneratedVisualPlaceholder.ImagePlaceholderID,
				Prompt:        job.prompt,
			}

			path, err := s.generate(ctx, job, dir)
			if err != nil {
				result.Error = err.Error()
				s.logger.Warn().Err(err).Str("slide", slide.SlideID).Msg("Image generation failed")
			} else {
				result.Path = path
			}

			results[i] = result

			if onImage != nil {
				onImage(result)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i, job := range jobs {
			if results[i].Path != "" {
				_ = os.Remove(results[i].Path)
				results[i].Path = ""
			}
			if results[i].Error == "" {
				results[i].Error = err.Error()
			}
			unresolve(deck.Slides[job.slide].GeneratedVisualPlaceholder, "cancelled")
		}
		report.fail(ReasonCancelled, err.Error())
		return results, report
	}

	for i, job := range jobs {
		placeholder := deck.Slides[job.slide].GeneratedVisualPlaceholder
		if results[i].Path == "" {
			unresolve(placeholder, results[i].Error)
			report.degrade(fmt.Sprintf("slide '%s': %s", results[i].SlideID, results[i].Error))
			continue
		}
		placeholder.ImagePath = results[i].Path
	}

	s.logger.Info().
		Int("requested", len(jobs)).
		Int("failed", len(report.Errors)).
		Msg("Image generation complete")
	return results, report
}

func (s *ImageStep) generate(ctx context.Context, job imageJob, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := s.generator.GenerateImage(ctx, job.prompt)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.APIError("image generator returned no data", nil)
	}

	path := filepath.Join(dir, job.filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", domain.IOError("Failed to write image", err)
	}
	return path, nil
}

// plan builds one job per placeholder needing an image, matching prompts by
// concept id first and placeholder id second.
func (s *ImageStep) plan(deck *domain.SlideDeck, prompts []domain.ImagePrompt) []imageJob {
	if deck == nil {
		return nil
	}

	byConcept := make(map[string]domain.ImagePrompt)
	byPlaceholder := make(map[string]domain.ImagePrompt)
	for _, p := range prompts {
		if _, ok := byConcept[p.ConceptIDReference]; !ok {
			byConcept[p.ConceptIDReference] = p
		}
		byPlaceholder[p.ImagePlaceholderID] = p
	}

	used := make(map[string]int)
	var jobs []imageJob
	for i := range deck.Slides {
		slide := &deck.Slides[i]
		if !slide.NeedsGeneratedImage() {
			continue
		}
		placeholder := slide.GeneratedVisualPlaceholder

		prompt := ""
		if p, ok := byConcept[placeholder.ConceptIDLink]; ok {
			prompt = p.ImagePrompt
		} else if p, ok := byPlaceholder[placeholder.ImagePlaceholderID]; ok {
			prompt = p.ImagePrompt
		}
		prompt = cleanPrompt(prompt)
		if prompt == "" {
			prompt = fallbackPrompt(placeholder)
		}
		if prompt == "" {
			unresolve(placeholder, "no prompt could be synthesized")
			continue
		}

		name := fileName(placeholder.ImagePlaceholderID, slide.SlideID)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			used[name] = 1
		}

		jobs = append(jobs, imageJob{slide: i, prompt: prompt, filename: name + ".png"})
	}
	return jobs
}

func fallbackPrompt(p *domain.VisualPlaceholder) string {
	caption := strings.TrimSpace(p.Caption)
	source := strings.TrimSpace(p.SourceTextForVisual)
	if strings.EqualFold(caption, "NA") {
		caption = ""
	}
	if strings.EqualFold(source, "NA") || source == noSourceText {
		source = ""
	}

	switch {
	case caption != "" && source != "":
		return fmt.Sprintf("A clean, professional presentation visual titled %q. It illustrates: %s", caption, source)
	case source != "":
		return "A clean, professional presentation visual illustrating: " + source
	case caption != "":
		return fmt.Sprintf("A clean, professional presentation visual titled %q", caption)
	}
	if desc := cleanPrompt(p.DescriptionForAudience); !strings.EqualFold(desc, "NA") {
		return desc
	}
	return ""
}

// cleanPrompt strips markdown fences and backticks a model may wrap a prompt in
func cleanPrompt(prompt string) string {
	if m := fencePattern.FindStringSubmatch(prompt); m != nil {
		prompt = m[1]
	}
	prompt = strings.ReplaceAll(prompt, "`", "")
	return strings.Join(strings.Fields(prompt), " ")
}

func fileName(placeholderID, slideID string) string {
	name := unsafeFileChars.ReplaceAllString(placeholderID, "_")
	name = strings.Trim(name, "._")
	if name == "" || strings.EqualFold(name, "NA") {
		name = unsafeFileChars.ReplaceAllString(slideID, "_") + "_visual"
	}
	return name
}

func unresolve(p *domain.VisualPlaceholder, reason string) {
	if p == nil {
		return
	}
	p.NeedImage = false
	p.ImagePath = ""
	if reason == "" {
		reason = "image generation failed"
	}
	p.UnresolvedReason = reason
}
