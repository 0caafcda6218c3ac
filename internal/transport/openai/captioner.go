package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/metrics"
)

const captionPrompt = "Name the product in this photo in at most six words, for a shopping search. " +
	"Reply with the name only."

// Compile-time check: Captioner implements domain.Captioner.
var _ domain.Captioner = (*Captioner)(nil)

// errCaption is wrapped into every captioner failure.
var errCaption = errors.New("caption failed")

// Captioner names crops with an OpenAI-compatible vision model.
type Captioner struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

// Config holds the captioning provider settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewCaptioner creates an OpenAI-compatible captioner.
func NewCaptioner(cfg *Config) *Captioner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Captioner{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    log,
	}
}

// Caption implements domain.Captioner. png is the encoded crop.
func (c *Captioner) Caption(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty crop: %w", errCaption)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: captionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	metrics.ExternalRequestDuration.WithLabelValues(metrics.ServiceCaption).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ExternalRequestsTotal.WithLabelValues(metrics.ServiceCaption, "error").Inc()
		return "", parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ExternalRequestsTotal.WithLabelValues(metrics.ServiceCaption, "error").Inc()
		return "", fmt.Errorf("empty caption response: %w", errCaption)
	}

	metrics.ExternalRequestsTotal.WithLabelValues(metrics.ServiceCaption, "ok").Inc()
	return cleanCaption(resp.Choices[0].Message.Content), nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Captioner) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func cleanCaption(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`.")
	return strings.Join(strings.Fields(s), " ")
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("caption API error %d: %s: %w", reqErr.HTTPStatusCode, detail, errCaption)
		}
		return fmt.Errorf("caption API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), errCaption)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("caption API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, errCaption)
	}

	return fmt.Errorf("caption request failed: %w: %w", errCaption, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
