package capability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIBackend serves a capability with one model over the Chat Completions API.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	limiter   *rate.Limiter
	maxTokens int
}

// OpenAIOption configures an OpenAIBackend.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	rps        float64
	burst      int
	maxTokens  int
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) OpenAIOption {
	return func(o *openAIOptions) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *openAIOptions) { o.httpClient = c }
}

// WithRateLimit caps requests per second; rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) OpenAIOption {
	return func(o *openAIOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// WithMaxTokens caps completion tokens; 0 leaves the model default.
func WithMaxTokens(n int) OpenAIOption {
	return func(o *openAIOptions) { o.maxTokens = n }
}

// NewOpenAIBackend creates a backend for model.
func NewOpenAIBackend(model string, opts ...OpenAIOption) *OpenAIBackend {
	o := openAIOptions{burst: 1}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := openai.DefaultConfig(o.apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	b := &OpenAIBackend{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: o.maxTokens,
	}
	if o.rps > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}
	return b
}

// Name returns the model id.
func (b *OpenAIBackend) Name() string { return b.model }

// Complete sends one chat completion.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("openai %s: %w", b.model, err)
		}
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	creq := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
	}
	if req.Temperature != nil {
		t := *req.Temperature
		// A zero temperature is dropped by omitempty on the wire.
		if t == 0 {
			t = math.SmallestNonzeroFloat32
		}
		creq.Temperature = t
	}
	if b.maxTokens > 0 {
		creq.MaxCompletionTokens = b.maxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		if isUnsupportedTemperature(err) {
			return "", fmt.Errorf("openai %s: %w", b.model, ErrUnsupportedTemperature)
		}
		return "", fmt.Errorf("openai %s: %w", b.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai %s: %w", b.model, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func isUnsupportedTemperature(err error) bool {
	msg := err.Error()
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Param != nil && *apiErr.Param == "temperature" {
			return true
		}
		msg = apiErr.Message
	}
	msg = strings.ToLower(msg)
	// Reasoning models are also rejected client-side with a "fixed at 1" message.
	return strings.Contains(msg, "temperature") &&
		(strings.Contains(msg, "not supported") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "fixed at"))
}
