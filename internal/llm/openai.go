package llm

import (
	"context"
	"encoding/base64"
	"errors"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/spherical/slide-creator/internal/domain"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultImageModel  = openai.CreateImageModelDallE3
	defaultImageSize   = openai.CreateImageSize1024x1024
)

// OpenAI is a text completer and image generator backed by the OpenAI API
type OpenAI struct {
	client     *openai.Client
	model      string
	imageModel string
	imageSize  string
}

// NewOpenAI creates an OpenAI adapter. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		imageModel: defaultImageModel,
		imageSize:  defaultImageSize,
	}
}

// WithImageSettings overrides the image model and size
func (o *OpenAI) WithImageSettings(model, size string) *OpenAI {
	if model != "" {
		o.imageModel = model
	}
	if size != "" {
		o.imageSize = size
	}
	return o
}

// Complete sends one chat completion
func (o *OpenAI) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserInstruction,
	}
	if req.Media != nil {
		uri, err := dataURI(req.Media)
		if err != nil {
			return nil, domain.APIError("Failed to build request", err)
		}
		user.Content = ""
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.UserInstruction},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: uri}},
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction},
			user,
		},
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, domain.APIError("chat completion failed", normalizeOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, domain.APIError("response contained no choices", nil)
	}

	return &domain.Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GenerateImage renders prompt and returns the decoded image bytes
func (o *OpenAI) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.imageModel,
		N:              1,
		Size:           o.imageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, domain.APIError("image generation failed", normalizeOpenAIError(err))
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, domain.APIError("image response contained no data", nil)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, domain.APIError("Failed to decode image", err)
	}
	return data, nil
}

// normalizeOpenAIError exposes HTTP status codes as domain.StatusError
func normalizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &domain.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &domain.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
