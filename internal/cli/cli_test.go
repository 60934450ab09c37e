package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"resumecritic/internal/config"
	"resumecritic/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	logger := errors.NewLoggerWithWriter(&bytes.Buffer{}, slog.LevelInfo)
	require.NoError(t, Execute(context.Background(), &config.Config{}, logger))

	assert.Contains(t, out.String(), "resumecritic version dev")
}

func TestAnalyzeRejectsUnsupportedFormat(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"analyze", "--format", "yaml", "resume.txt"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		analyzeConfig.OutputFormat = ""
	})

	cfg := &config.Config{App: config.AppConfig{
		DefaultFormat:    "json",
		SupportedFormats: []string{"json", "text", "markdown"},
	}}
	logger := errors.NewLoggerWithWriter(&bytes.Buffer{}, slog.LevelInfo)

	err := Execute(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "unsupported output format 'yaml'")
}
