package convert

import (
	"context"
	"errors"

	"github.com/spherical/slide-creator/internal/cache"
	"github.com/spherical/slide-creator/internal/config"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/llm"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/pdf"
	"github.com/spherical/slide-creator/internal/slides"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/validate"
	"github.com/spherical/slide-creator/internal/visual"
	"github.com/spherical/slide-creator/internal/workflow"
)

// Components are the long lived pieces built from configuration
type Components struct {
	Service   *Service
	Validator *validate.Validator
	Runs      *storage.RunRepository

	closers []func() error
}

// Close releases the cache and database connections
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires a Service from cfg
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Components, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Components{}

	validator := NewResponseValidator(cfg)
	c.Validator = validator

	completer, err := llm.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if completer, err = c.withCache(ctx, cfg, completer, validator, logger); err != nil {
		_ = c.Close()
		return nil, err
	}

	generator, err := llm.NewImageGenerator(cfg.Images)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	if c.Runs, err = c.openRuns(ctx, cfg.Database); err != nil {
		_ = c.Close()
		return nil, err
	}

	retrier := llm.NewRetrier(&llm.RetryConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, validator, logger)

	stages := workflow.NewStages(completer, retrier, validator, logger,
		workflow.WithBatchSize(cfg.Workflow.ImagePromptBatchSize))

	visualCfg := VisualConfig(cfg.Visual)
	var images *workflow.ImageStep
	if generator != nil {
		images = workflow.NewImageStep(generator, cfg.Images.MaxWorkers, logger)
	}
	orch := workflow.NewOrchestrator(stages, visual.NewMapper(visualCfg), images, workflow.Options{
		AnalyzePages:    cfg.Workflow.AnalyzePageImages,
		SuggestionFloor: cfg.Visual.SuggestionFloor,
		HighConfidence:  cfg.Visual.HighConfidence,
	}, logger)

	pdfValidator := pdf.NewValidator(cfg.PDF.MaxFileSizeMB, logger)
	var text domain.TextExtractor
	converter := pdf.NewConverter(pdfValidator)
	if cfg.PDF.TextBackend == "ledongthuc" {
		text = pdf.NewPlainTextExtractor(pdfValidator)
	} else {
		text = converter
	}

	var detector *visual.Detector
	if cfg.Visual.Detect {
		detector = visual.NewDetector(visualCfg)
	}

	c.Service = NewService(Deps{
		Validator:    pdfValidator,
		Renderer:     converter,
		Text:         text,
		Detector:     detector,
		Orchestrator: orch,
		Writer: slides.NewWriter(slides.Options{
			LicenseKey: cfg.Presentation.LicenseKey,
			TitleSlide: cfg.Presentation.TitleSlide,
			EmitJSON:   cfg.Presentation.EmitJSON,
		}, logger),
		Runs: c.Runs,
	}, Options{
		Quality:           cfg.PDF.Quality,
		ValidateStructure: cfg.PDF.ValidateInput,
		RenderPages:       cfg.Visual.Detect || cfg.Workflow.AnalyzePageImages,
		KeepWorkDir:       cfg.Workflow.KeepWorkDir,
	}, logger)

	return c, nil
}

// NewResponseValidator builds the response validator from cfg
func NewResponseValidator(cfg *config.Config) *validate.Validator {
	v := cfg.Validation
	return validate.New(
		validate.WithStrictJSON(v.StrictJSON),
		validate.WithRules(validate.Rules{
			MaxConcepts:   v.MaxConcepts,
			MinConfidence: v.MinConfidence,
			MaxConfidence: v.MaxConfidence,
			MinSlides:     v.MinSlides,
			MaxSlides:     v.MaxSlides,
			MaxBullets:    v.MaxBullets,
			MaxTitleWords: v.MaxTitleWords,
		}),
	)
}

// VisualConfig maps the configured thresholds onto the mapper config
func VisualConfig(v config.VisualConfig) visual.Config {
	out := visual.DefaultConfig()
	if v.MinMappingScore > 0 {
		out.MinMappingScore = v.MinMappingScore
	}
	if v.ContextFloor > 0 {
		out.ContextFloor = v.ContextFloor
	}
	if v.ChartThreshold > 0 {
		out.ChartThreshold = v.ChartThreshold
	}
	if v.DetectionWidth > 0 {
		out.DetectionWidth = v.DetectionWidth
	}
	if v.MinParagraphSize > 0 {
		out.MinParagraphSize = v.MinParagraphSize
	}
	return out
}

func (c *Components) withCache(ctx context.Context, cfg *config.Config, next domain.TextCompleter, parser validate.Parser, logger *observability.Logger) (domain.TextCompleter, error) {
	var client cache.Client
	switch cfg.Cache.Driver {
	case "", "none":
		return next, nil
	case "memory":
		client = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	case "redis":
		r := cfg.Cache.Redis
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			PoolSize: r.PoolSize,
			Prefix:   r.Prefix,
		})
		if err != nil {
			return nil, domain.ConfigError("Failed to connect to redis cache", err)
		}
		client = rc
	default:
		return nil, domain.ConfigError("unknown cache driver "+cfg.Cache.Driver, nil)
	}
	c.closers = append(c.closers, client.Close)
	logger.Info().Str("driver", cfg.Cache.Driver).Msg("LLM response cache enabled")
	return llm.NewCachedCompleter(next, client, parser, cfg.Cache.TTL, cfg.LLM.Provider+"/"+cfg.LLM.Model, logger), nil
}

func (c *Components) openRuns(ctx context.Context, cfg config.DatabaseConfig) (*storage.RunRepository, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, domain.ConfigError("Failed to open run history database", err)
	}
	if db == nil {
		return nil, nil
	}
	c.closers = append(c.closers, db.Close)

	repo := storage.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, domain.IOError("Failed to prepare run history schema", err)
	}
	return repo, nil
}
