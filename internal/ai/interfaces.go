package ai

import (
	"context"

	"resumecritic/internal/types"
)

// AIProvider is a chat-completions backend able to review a resume
type AIProvider interface {
	AnalyzeResume(ctx context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	GetCircuitBreakerStats() map[string]any
	Close() error
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name          string `json:"name"`
	OwnedBy       string `json:"ownedBy,omitempty"`
	ContextWindow int    `json:"contextWindow,omitempty"`
	Available     bool   `json:"available"`
	Error         string `json:"error,omitempty"`
}
