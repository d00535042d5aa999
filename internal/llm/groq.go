package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aiyoutube/topic-management-service/internal/observability"
)

// Default values for the Groq provider.
const (
	defaultGroqBaseURL    = "https://api.groq.com"
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultGroqRetryDelay = 2 * time.Second

	// groqChatPath is the OpenAI-compatible chat completions endpoint.
	groqChatPath = "/openai/v1/chat/completions"
)

// chatRequest represents the Groq chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the Groq chat completions response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage contains token usage information.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// groqErrorResponse represents an error response from the Groq API.
type groqErrorResponse struct {
	Error groqErrorDetail `json:"error"`
}

// groqErrorDetail contains error details from the Groq API.
type groqErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// GroqConfig holds the parameters needed to create a Groq normalizer.
// This is defined in the llm package to avoid importing the config package.
type GroqConfig struct {
	// APIKey is the Groq API key.
	APIKey string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
	// Model is the model identifier.
	Model string
	// Temperature is the sampling temperature.
	Temperature float64
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// MaxRetries is the retry count for transient API errors.
	MaxRetries int
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration
	// RateLimitRPS caps requests per second against the free-tier quota.
	RateLimitRPS float64
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int
	// BreakerMaxFailures is the consecutive failure count that opens the circuit.
	BreakerMaxFailures uint32
	// BreakerCooldown is how long the circuit stays open before probing.
	BreakerCooldown time.Duration
}

// GroqNormalizer implements Normalizer using the Groq chat completions API.
//
// Calls pass through a local rate limiter (the Groq free tier is quota
// bound) and a circuit breaker so a struggling upstream fails fast instead
// of queueing submissions behind timeouts.
type GroqNormalizer struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxRetries  int
	retryDelay  time.Duration

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Compile-time check that *GroqNormalizer implements Normalizer.
var _ Normalizer = (*GroqNormalizer)(nil)

// NewGroqNormalizer creates a new Groq-backed query normalizer.
func NewGroqNormalizer(cfg GroqConfig, logger zerolog.Logger, metrics *observability.Metrics) *GroqNormalizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultGroqModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultGroqRetryDelay
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "groq-normalizer",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &GroqNormalizer{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		breaker:     breaker,
		logger:      logger.With().Str("component", "groq_normalizer").Logger(),
		metrics:     metrics,
	}
}

// Model returns the model identifier being used.
func (g *GroqNormalizer) Model() string {
	return g.model
}

// Normalize sends the raw query through the chat API and returns the cleaned
// keyword string. Transient errors (5xx, 429, network) are retried up to
// maxRetries times with linear backoff.
func (g *GroqNormalizer) Normalize(ctx context.Context, rawQuery string) (string, error) {
	chatReq := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: normalizationSystemPrompt},
			{Role: "user", Content: rawQuery},
		},
		Temperature: g.temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("groq: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		content, err := g.doChat(ctx, chatReq)
		if err == nil {
			normalized := CleanQuery(content)
			if normalized == "" {
				return "", fmt.Errorf("groq: model response reduced to an empty query")
			}
			return normalized, nil
		}

		if !isTransientError(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("groq: exhausted %d retries: %w", g.maxRetries, lastErr)
}

// doChat performs a single chat completion request through the rate limiter
// and circuit breaker.
func (g *GroqNormalizer) doChat(ctx context.Context, chatReq chatRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("groq: rate limiter wait: %w", err)
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.doRequest(ctx, chatReq)
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordNormalizerRequestFailed(g.model, classifyError(err))
		}
		return "", err
	}

	resp := result.(*chatResponse)

	// Token accounting matters on the free tier; the daily quota is small
	// enough that normalization alone can exhaust it.
	g.logger.Info().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("groq token usage")

	if g.metrics != nil {
		g.metrics.RecordNormalizerRequest(g.model, duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return resp.Choices[0].Message.Content, nil
}

// doRequest performs a single API request to the Groq chat completions endpoint.
func (g *GroqNormalizer) doRequest(ctx context.Context, chatReq chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("groq: failed to marshal request: %w", err)
	}

	endpoint := g.baseURL + groqChatPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("groq: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Provider: "groq", StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("groq: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseGroqAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("groq: failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("groq: empty choices in response")
	}

	return &chatResp, nil
}

// parseGroqAPIError parses a Groq API error from the response status code and body.
func parseGroqAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "groq",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp groqErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}

// classifyError maps an error to a metric label.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case isTransientError(err):
		return "transient"
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("http_%d", apiErr.StatusCode)
		}
		return "permanent"
	}
}
