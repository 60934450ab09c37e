package server

import (
	"context"
	"fmt"
	"time"

	"resumecritic/internal/ai"
	"resumecritic/internal/config"
	appErrors "resumecritic/internal/errors"
	"resumecritic/internal/types"
	"resumecritic/internal/web"
)

// Client-facing error bodies. They are part of the API contract.
const (
	msgMethodNotAllowed = "Method not allowed"
	msgNoFileUploaded   = "No file uploaded"
	msgDocxParseFailed  = "Unable to parse this .docx file. Please upload a simpler version or a .txt file."
	msgUpstreamFailed   = "Groq API failed"
	msgGeneric          = "Something went wrong."
)

// Analyzer is the AI service the handlers depend on
type Analyzer interface {
	AnalyzeResume(ctx context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *ai.TokenUsage, error)
	GetModelInfo(ctx context.Context) *ai.ModelInfo
	UpdatePromptTemplate(tmpl string) error
	Stats() map[string]any
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// TLS Configuration
	TLSConfig config.TLSConfig

	// Timeout configurations
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Request size limit
	MaxRequestSize int64

	Analyzer Analyzer
	Renderer *web.Renderer

	// Prompt hot reload, nil unless ai.watchPromptFile is set
	PromptWatcher *config.PromptWatcher

	Logger *appErrors.Logger
}

// NewServer creates a Server from the application config and an AI service
func NewServer(appCfg *config.Config, analyzer Analyzer, version string, logger *appErrors.Logger) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	return &Server{
		Host:            appCfg.Server.Host,
		Port:            appCfg.Server.Port,
		Version:         version,
		AppConfig:       appCfg,
		TLSConfig:       appCfg.Server.TLS,
		ReadTimeout:     appCfg.Server.ReadTimeout,
		WriteTimeout:    appCfg.Server.WriteTimeout,
		IdleTimeout:     appCfg.Server.IdleTimeout,
		ShutdownTimeout: appCfg.Server.ShutdownTimeout,
		MaxRequestSize:  appCfg.App.MaxFileSize,
		Analyzer:        analyzer,
		Renderer:        renderer,
		Logger:          logger,
	}, nil
}
