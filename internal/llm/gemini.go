package llm

import (
	"context"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/spherical/slide-creator/internal/domain"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini is a text completer backed by the Gemini API
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini adapter
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, domain.APIError("Failed to create Gemini client", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Complete sends one generation request. A fresh model handle per call keeps
// request settings from leaking between concurrent conversions.
func (g *Gemini) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.UserInstruction)}
	if req.Media != nil {
		data, err := os.ReadFile(req.Media.Path)
		if err != nil {
			return nil, domain.APIError("Failed to read media", err)
		}
		parts = append(parts, genai.Blob{MIMEType: mimeType(req.Media), Data: data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, domain.APIError("Gemini generation failed", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, domain.APIError("response contained no candidates", nil)
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &domain.Completion{
		Text:         text.String(),
		Model:        g.model,
		FinishReason: cand.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Close releases the underlying connection
func (g *Gemini) Close() error {
	return g.client.Close()
}
