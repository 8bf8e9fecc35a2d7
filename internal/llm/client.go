// Package llm adapts text and image providers to the domain completion
// interfaces and wraps text calls with retry and JSON recovery.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/slide-creator/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"
	defaultReferer = "https://github.com/spherical/slide-creator"
	defaultTitle   = "Slide Creator"
)

// Client handles communication with the OpenRouter chat completions API
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	referer     string
	title       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBaseURL points the client at another OpenAI compatible endpoint
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSampling sets temperature and the completion token limit
func WithSampling(temperature float64, maxTokens int) ClientOption {
	return func(c *Client) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithAppInfo sets the attribution headers sent to OpenRouter
func WithAppInfo(referer, title string) ClientOption {
	return func(c *Client) {
		if referer != "" {
			c.referer = referer
		}
		if title != "" {
			c.title = title
		}
	}
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat asks the model for a specific output format
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage is the assistant message of a choice
type ChoiceMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Usage reports token accounting
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// NewClient creates a new OpenRouter client
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	if model == "" {
		model = defaultModel
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		referer:    defaultReferer,
		title:      defaultTitle,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one chat completion. It never retries; see Retrier.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	apiReq, err := c.buildRequest(req)
	if err != nil {
		return nil, domain.APIError("Failed to build request", err)
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, domain.APIError("Failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, domain.APIError("Failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", c.referer)
	httpReq.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.APIError("Failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.APIError("chat completion failed", &domain.StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 500),
		})
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.APIError("Failed to decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, domain.APIError("response contained no choices", nil)
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}

	return &domain.Completion{
		Text:             parsed.Choices[0].Message.Content,
		Model:            model,
		FinishReason:     parsed.Choices[0].FinishReason,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// buildRequest constructs the API request, inlining attached media as a data URI
func (c *Client) buildRequest(req domain.CompletionRequest) (*Request, error) {
	user := Message{
		Role:    "user",
		Content: []ContentPart{{Type: "text", Text: req.UserInstruction}},
	}

	if req.Media != nil {
		dataURI, err := dataURI(req.Media)
		if err != nil {
			return nil, err
		}
		user.Content = append(user.Content, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: dataURI},
		})
	}

	apiReq := &Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: []ContentPart{{Type: "text", Text: req.SystemInstruction}}},
			user,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return apiReq, nil
}

func dataURI(media *domain.MediaReference) (string, error) {
	data, err := os.ReadFile(media.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read media: %w", err)
	}
	return "data:" + mimeType(media) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func mimeType(media *domain.MediaReference) string {
	if media.MIMEType != "" {
		return media.MIMEType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(media.Path))); t != "" {
		return t
	}
	return "image/jpeg"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
