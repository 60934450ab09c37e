package cli

import (
	"context"
	"fmt"

	"resumecritic/internal/ai"
	"resumecritic/internal/common"
	"resumecritic/internal/types"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-file]",
	Short: "Score a resume and list its strengths and improvements",
	Long: `Analyze a resume with the same pipeline the web endpoint uses.
Files ending in .docx are read as Word documents; anything else is read as text.
The result holds a 1-10 score, the strengths found and suggested improvements.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		format, err := common.ResolveOutputFormat(analyzeConfig.OutputFormat, cfg.App.DefaultFormat, cfg.App.SupportedFormats)
		if err != nil {
			return err
		}
		analyzeConfig.OutputFormat = format
		return nil
	},
	RunE: runAnalyze,
}

var analyzeConfig common.CommandConfig

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = analyzeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	aiService, err := ai.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() { _ = aiService.Close() }()

	createInput := func(uploads []*types.UploadedFile, texts []string) (types.AnalyzeResumeInput, error) {
		if len(texts) != 1 {
			return types.AnalyzeResumeInput{}, fmt.Errorf("expected 1 file path, got %d", len(texts))
		}
		return types.AnalyzeResumeInput{
			ResumeText: texts[0],
			FileName:   uploads[0].FileName,
		}, nil
	}

	logDetails := func(input types.AnalyzeResumeInput, cfg common.CommandConfig) {
		logger.Info("Starting resume analysis",
			"file_name", input.FileName,
			"resume_chars", len(input.ResumeText),
			"output_format", cfg.OutputFormat)
	}

	analyzeOperation := func(ctx context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *ai.TokenUsage, error) {
		return aiService.AnalyzeResume(ctx, input)
	}

	runner := common.Runner{
		Logger:      logger,
		MaxFileSize: cfg.App.MaxFileSize,
		Stdout:      cmd.OutOrStdout(),
	}
	if err := common.RunAICommand(cmd.Context(), runner, analyzeConfig, args, createInput, analyzeOperation, logDetails); err != nil {
		return fmt.Errorf("failed to analyze resume: %w", err)
	}

	logger.Info("Resume analysis completed successfully")
	return nil
}
