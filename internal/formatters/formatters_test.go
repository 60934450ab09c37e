package formatters

import (
	"encoding/json"
	"testing"

	"resumecritic/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		Score:        8.5,
		Positives:    []string{"Quantified achievements", "Clean layout"},
		Improvements: []string{"Add a summary"},
	}
}

func TestFormatText(t *testing.T) {
	out, err := NewFormatterRegistry().Format(sampleResult(), "text")
	require.NoError(t, err)

	assert.Contains(t, out, "Score: 8.5/10")
	assert.Contains(t, out, "  - Quantified achievements\n  - Clean layout\n")
	assert.Contains(t, out, "Suggestions:\n  - Add a summary\n")
}

func TestFormatMarkdown(t *testing.T) {
	out, err := NewFormatterRegistry().Format(*sampleResult(), "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# Resume Analysis")
	assert.Contains(t, out, "**Score:** 8.5/10")
	assert.Contains(t, out, "## Strengths\n\n- Quantified achievements\n- Clean layout\n")
}

func TestFormatEmptyLists(t *testing.T) {
	empty := &types.AnalysisResult{Score: 7}

	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"Score: 7/10", "  No strengths found.", "  No suggestions found."}},
		{"markdown", []string{"**Score:** 7/10", "_No strengths found._", "_No suggestions found._"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := NewFormatterRegistry().Format(empty, tt.format)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := NewFormatterRegistry().Format(sampleResult(), "json")
	require.NoError(t, err)

	var decoded types.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, *sampleResult(), decoded)
}

func TestFormatErrors(t *testing.T) {
	registry := NewFormatterRegistry()

	_, err := registry.Format(sampleResult(), "yaml")
	assert.ErrorContains(t, err, "no formatter found")

	_, err = registry.Format("not a result", "text")
	assert.Error(t, err)

	_, err = (&AnalysisTextFormatter{}).Format((*types.AnalysisResult)(nil))
	assert.ErrorContains(t, err, "nil")
}

func TestSupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "text"}, NewFormatterRegistry().GetSupportedFormats())
}
