package ai

import (
	"context"
	"fmt"

	"resumecritic/internal/config"
	"resumecritic/internal/errors"
	"resumecritic/internal/types"
)

// Service handles AI operations for resume review
type Service struct {
	Provider AIProvider // Exported for access from server package
	prompts  *PromptTemplate
	config   *config.AIConfig
	logger   *errors.Logger
}

// NewService creates the AI service for the configured provider
func NewService(cfg *config.Config, logger *errors.Logger) (*Service, error) {
	aiCfg := &cfg.AI

	logger.Debug("Initializing AI service",
		"provider", aiCfg.Provider,
		"model", aiCfg.Model,
		"timeout", aiCfg.Timeout,
		"max_retries", aiCfg.MaxRetries,
		"json_mode", aiCfg.JSONMode,
		"requests_per_minute", aiCfg.RequestsPerMinute)

	if aiCfg.APIKey == "" {
		logger.Warn("No Groq API key configured; upstream calls will be rejected")
	}

	prompts := NewPromptTemplate(aiCfg.PromptTemplate)

	var provider AIProvider
	var err error
	switch aiCfg.Provider {
	case "groq":
		provider, err = NewGroqProvider(aiCfg, prompts, cfg.Observability.HealthCheck.AIModelCheckTimeout, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", aiCfg.Provider), nil)
	}
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed,
			"Failed to create AI provider", err)
	}

	return NewServiceWithProvider(provider, prompts, aiCfg, logger), nil
}

// NewServiceWithProvider assembles a Service around an existing provider
func NewServiceWithProvider(provider AIProvider, prompts *PromptTemplate, cfg *config.AIConfig, logger *errors.Logger) *Service {
	if prompts == nil {
		prompts = NewPromptTemplate("")
	}
	return &Service{
		Provider: provider,
		prompts:  prompts,
		config:   cfg,
		logger:   logger,
	}
}

// AnalyzeResume reviews one resume's text
func (s *Service) AnalyzeResume(ctx context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *TokenUsage, error) {
	s.logger.Debug("Analyzing resume",
		"file_name", input.FileName,
		"text_length", len(input.ResumeText),
		"prompt_source", s.prompts.Source())
	return s.Provider.AnalyzeResume(ctx, input)
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// UpdatePromptTemplate swaps the review prompt; invalid templates are rejected and the old one kept
func (s *Service) UpdatePromptTemplate(tmpl string) error {
	if err := s.prompts.Set(tmpl); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid prompt template", err)
	}
	s.logger.Info("Prompt template updated", "length", len(tmpl))
	return nil
}

// Stats returns provider statistics for the /stats endpoint
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"model":          s.config.Model,
		"prompt_source":  s.prompts.Source(),
		"circuitBreaker": s.Provider.GetCircuitBreakerStats(),
	}
}

// Close releases provider resources
func (s *Service) Close() error {
	return s.Provider.Close()
}
