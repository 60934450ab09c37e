package common

import (
	"context"
	"fmt"
	"io"

	"resumecritic/internal/ai"
	"resumecritic/internal/errors"
	"resumecritic/internal/types"
)

// CreateInputFunc builds the AI input from the uploads and their extracted text.
type CreateInputFunc[Input any] func(uploads []*types.UploadedFile, texts []string) (Input, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// AIOperationFunc is a generic function signature for any AI operation with context and token usage.
type AIOperationFunc[Input, Output any] func(context.Context, Input) (Output, *ai.TokenUsage, error)

// Runner carries what every file-based command needs
type Runner struct {
	Logger      *errors.Logger
	MaxFileSize int64
	Stdout      io.Writer
}

// RunAICommand reads and extracts the files, runs the AI operation and writes the formatted result.
func RunAICommand[Input, Output any](
	ctx context.Context,
	runner Runner,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	aiOperation AIOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	logger := runner.Logger
	fileProcessor := NewFileProcessor(logger, runner.MaxFileSize)
	outputHandler := NewOutputHandler(logger)
	if runner.Stdout != nil {
		outputHandler = NewOutputHandlerWithWriter(logger, runner.Stdout)
	}

	uploads, err := fileProcessor.ReadResumes(args...)
	if err != nil {
		return err
	}

	texts := make([]string, len(uploads))
	for i, upload := range uploads {
		if texts[i], err = fileProcessor.ExtractText(upload); err != nil {
			return err
		}
	}

	input, err := createInput(uploads, texts)
	if err != nil {
		return fmt.Errorf("failed to create input from file contents: %w", err)
	}

	logDetails(input, cmdConfig)

	result, tokenUsage, err := aiOperation(ctx, input)
	if err != nil {
		return err
	}

	if tokenUsage != nil && logger != nil {
		logger.Info("AI token usage",
			"input_tokens", tokenUsage.InputTokens,
			"output_tokens", tokenUsage.OutputTokens,
			"total_tokens", tokenUsage.TotalTokens)
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
