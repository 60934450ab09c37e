package ai

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"resumecritic/internal/config"
	"resumecritic/internal/errors"
	"resumecritic/internal/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// maxUpstreamBody bounds how much of a Groq response is read into memory
const maxUpstreamBody = 4 << 20

// errMalformedResponse marks a 2xx response whose body is not a chat completion
var errMalformedResponse = stderrors.New("malformed chat completion response")

// UpstreamStatusError is a non-2xx reply from the chat-completions API
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

type modelResponse struct {
	ID            string `json:"id"`
	OwnedBy       string `json:"owned_by"`
	Active        *bool  `json:"active,omitempty"`
	ContextWindow int    `json:"context_window"`
}

// GroqProvider implements AIProvider against Groq's OpenAI-compatible API
type GroqProvider struct {
	httpClient   *http.Client
	config       *config.AIConfig
	prompts      *PromptTemplate
	breaker      *CircuitBreaker[*chatResponse]
	modelBreaker *CircuitBreaker[*modelResponse]
	pacer        *rate.Limiter
	modelTimeout time.Duration
	logger       *errors.Logger
}

var _ AIProvider = (*GroqProvider)(nil)

// NewGroqProvider creates a provider. The API key is taken as configured, even when empty.
func NewGroqProvider(cfg *config.AIConfig, prompts *PromptTemplate, modelTimeout time.Duration, logger *errors.Logger) (*GroqProvider, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid Groq base URL", err)
	}
	if modelTimeout <= 0 {
		modelTimeout = 5 * time.Second
	}

	var pacer *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &GroqProvider{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		config:  cfg,
		prompts: prompts,
		breaker: NewCircuitBreaker[*chatResponse](breakerName("chat", cfg.Model), cfg.CircuitBreaker, tripPolicy{
			minRequests:      cfg.CircuitBreaker.MinRequests,
			failureThreshold: cfg.CircuitBreaker.FailureThreshold,
		}, logger),
		// Model lookups only feed health checks, so they trip later.
		modelBreaker: NewCircuitBreaker[*modelResponse](breakerName("model", cfg.Model), cfg.CircuitBreaker, tripPolicy{
			minRequests:      5,
			failureThreshold: 0.8,
		}, logger),
		pacer:        pacer,
		modelTimeout: modelTimeout,
		logger:       logger,
	}, nil
}

// AnalyzeResume sends one review prompt to Groq and parses the reply
func (g *GroqProvider) AnalyzeResume(ctx context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *TokenUsage, error) {
	tracer := otel.Tracer("resumecritic.ai.groq")
	ctx, span := tracer.Start(ctx, "groq.analyzeResume")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "groq"),
		attribute.String("ai.model", g.config.Model),
		attribute.String("ai.prompt_source", g.prompts.Source()),
		attribute.Int("resume.length", len(input.ResumeText)),
	)

	req := chatRequest{
		Model:       g.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: g.prompts.Render(input.ResumeText)}},
		Temperature: g.config.Temperature,
	}
	if g.config.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	resp, err := g.breaker.Execute(func() (*chatResponse, error) {
		return g.executeWithRetry(ctx, "analyzeResume", func() (*chatResponse, error) {
			return g.createChatCompletion(ctx, req)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, nil, classifyCallError(err)
	}

	usage := extractTokenUsage(resp)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}

	result, err := ParseReply(replyContent(resp))
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, usage, err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return result, usage, nil
}

// createChatCompletion performs a single POST to /chat/completions
func (g *GroqProvider) createChatCompletion(ctx context.Context, payload chatRequest) (*chatResponse, error) {
	if err := g.waitForPacer(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		g.logger.LogError(statusErr, "Groq Error",
			"status", resp.StatusCode,
			"body", statusErr.Body,
			"model", g.config.Model)
		return nil, statusErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return &parsed, nil
}

// GetModelInfo checks that the configured model is served by Groq
func (g *GroqProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Name: g.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, g.modelTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*modelResponse, error) {
		return g.retrieveModel(checkCtx)
	})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"error", err.Error())
		return info
	}

	info.Available = model.Active == nil || *model.Active
	info.OwnedBy = model.OwnedBy
	info.ContextWindow = model.ContextWindow
	if !g.breaker.IsHealthy() {
		info.Available = false
		info.Error = "analysis calls suspended by circuit breaker"
	}
	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"owned_by", info.OwnedBy,
		"available", info.Available)
	return info
}

func (g *GroqProvider) retrieveModel(ctx context.Context) (*modelResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("models/"+url.PathEscape(g.config.Model)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var model modelResponse
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return &model, nil
}

// executeWithRetry runs fn up to MaxRetries+1 times with exponential backoff.
// With the default of zero retries it is a single call.
func (g *GroqProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*chatResponse, error)) (*chatResponse, error) {
	var lastErr error
	maxRetries := max(g.config.MaxRetries, 0)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(retryBackoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return nil, lastErr
}

// retryBackoff is 2^(attempt-1) seconds plus up to 10% jitter, capped at 30s
func retryBackoff(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(0)
	if jitterBig, err := rand.Int(rand.Reader, big.NewInt(int64(float64(baseDelay)*0.1)+1)); err == nil {
		jitter = time.Duration(jitterBig.Int64())
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *UpstreamStatusError
	if stderrors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// classifyCallError maps transport-level failures onto application error codes
func classifyCallError(err error) error {
	var statusErr *UpstreamStatusError
	switch {
	case stderrors.As(err, &statusErr):
		return errors.NewAIError(errors.ErrCodeUpstreamStatus,
			fmt.Sprintf("Groq returned status %d", statusErr.StatusCode), err).
			WithContext("status", statusErr.StatusCode)
	case isBreakerRejection(err):
		return errors.NewAIError(errors.ErrCodeCircuitOpen, "Groq calls suspended by circuit breaker", err)
	case stderrors.Is(err, errMalformedResponse):
		return errors.NewAIError(errors.ErrCodeInvalidModelReply, "Groq response body could not be decoded", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewNetworkError(errors.ErrCodeAITimeout, "Groq request timed out", err)
	default:
		return errors.NewNetworkError(errors.ErrCodeAIServiceFailed, "Groq request failed", err)
	}
}

func (g *GroqProvider) waitForPacer(ctx context.Context) error {
	if g.pacer == nil {
		return nil
	}
	start := time.Now()
	if err := g.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for upstream request slot: %w", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		g.logger.Debug("Paced upstream request", "waited", waited.String())
	}
	return nil
}

func (g *GroqProvider) endpoint(path string) string {
	return strings.TrimRight(g.config.BaseURL, "/") + "/" + path
}

// GetCircuitBreakerStats returns breaker and pacer state for /stats
func (g *GroqProvider) GetCircuitBreakerStats() map[string]any {
	stats := map[string]any{
		"chat":  g.breaker.GetStats(),
		"model": g.modelBreaker.GetStats(),
	}
	if g.pacer != nil {
		stats["pacer"] = map[string]any{
			"requests_per_minute": g.config.RequestsPerMinute,
			"tokens":              g.pacer.Tokens(),
		}
	}
	return stats
}

// Close releases idle upstream connections
func (g *GroqProvider) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

func replyContent(resp *chatResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func extractTokenUsage(resp *chatResponse) *TokenUsage {
	if resp == nil || resp.Usage == nil {
		return nil
	}
	return &TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}
