// Package creator is the public entry point for turning PDFs into slide decks.
package creator

import (
	"context"

	"github.com/spherical/slide-creator/internal/config"
	"github.com/spherical/slide-creator/internal/convert"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/validate"
	"github.com/spherical/slide-creator/internal/workflow"
)

// Re-export event types for public API
type (
	StreamEvent = domain.StreamEvent
	EventType   = domain.EventType
)

// Re-export result types
type (
	Config           = config.Config
	Outcome          = convert.Outcome
	Result           = workflow.Result
	ValidationResult = validate.Result
)

// Event type constants
const (
	EventStart               = domain.EventStart
	EventStageStarted        = domain.EventStageStarted
	EventStageCompleted      = domain.EventStageCompleted
	EventImageGenerated      = domain.EventImageGenerated
	EventWarning             = domain.EventWarning
	EventError               = domain.EventError
	EventComplete            = domain.EventComplete
	EventPresentationWritten = domain.EventPresentationWritten
)

// Client is the main entry point for the slide creator library
type Client struct {
	components *convert.Components
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewClient creates a client from .env files and environment variables
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, domain.ConfigError("Failed to load configuration", err)
	}
	return NewClientWithConfig(ctx, cfg, nil)
}

// NewClientWithConfig creates a client with custom configuration. A nil
// logger discards log output.
func NewClientWithConfig(ctx context.Context, cfg *Config, logger *observability.Logger) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("Invalid configuration", err)
	}
	components, err := convert.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Client{components: components}, nil
}

// Process converts a PDF in the background. The returned channel streams
// events and is closed when the run ends.
func (c *Client) Process(ctx context.Context, pdfPath, outputPath string) (<-chan StreamEvent, error) {
	return c.components.Service.Process(ctx, pdfPath, outputPath)
}

// Convert converts a PDF and waits for the result
func (c *Client) Convert(ctx context.Context, pdfPath, outputPath string) (*Outcome, error) {
	return c.components.Service.Convert(ctx, pdfPath, outputPath, nil)
}

// ValidateResponse checks a raw LLM answer against a named schema
func (c *Client) ValidateResponse(raw, schemaName string) ValidationResult {
	return c.components.Validator.Validate(raw, schemaName)
}

// Close releases cache and database connections
func (c *Client) Close() error {
	return c.components.Close()
}
