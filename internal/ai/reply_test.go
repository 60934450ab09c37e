package ai

import (
	"testing"

	"resumecritic/internal/errors"
	"resumecritic/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		score        float64
		positives    []string
		improvements []string
	}{
		{
			name:         "plain JSON",
			content:      `{"score": 8, "positives": ["a", "b"], "improvements": ["c"]}`,
			score:        8,
			positives:    []string{"a", "b"},
			improvements: []string{"c"},
		},
		{
			name:         "JSON wrapped in prose",
			content:      "Here you go:\n```json\n{\"score\": 6.5, \"positives\": [\"clear\"], \"improvements\": []}\n```\nGood luck!",
			score:        6.5,
			positives:    []string{"clear"},
			improvements: []string{},
		},
		{
			name:         "zero score falls back",
			content:      `{"score": 0, "positives": [], "improvements": []}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "missing fields fall back",
			content:      `{}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "null fields fall back",
			content:      `{"score": null, "positives": null, "improvements": null}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "numeric string score",
			content:      `{"score": "9", "positives": ["x"]}`,
			score:        9,
			positives:    []string{"x"},
			improvements: []string{},
		},
		{
			name:         "non-numeric score",
			content:      `{"score": "great", "improvements": ["y"]}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{"y"},
		},
		{
			name:         "string zero score",
			content:      `{"score": " 0.0 "}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "NaN string score",
			content:      `{"score": "NaN"}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "infinite string score",
			content:      `{"score": "-Infinity", "positives": ["x"]}`,
			score:        types.DefaultScore,
			positives:    []string{"x"},
			improvements: []string{},
		},
		{
			name:         "boolean score",
			content:      `{"score": true}`,
			score:        types.DefaultScore,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "out of range score kept",
			content:      `{"score": 12}`,
			score:        12,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "non-string items keep their JSON",
			content:      `{"score": 5, "positives": ["ok", 3, {"k": "v"}, null]}`,
			score:        5,
			positives:    []string{"ok", "3", `{"k":"v"}`},
			improvements: []string{},
		},
		{
			name:         "non-array lists fall back",
			content:      `{"score": 4, "positives": "one", "improvements": {"a": 1}}`,
			score:        4,
			positives:    []string{},
			improvements: []string{},
		},
		{
			name:         "empty arrays stay empty",
			content:      `{"score": 3, "positives": [], "improvements": []}`,
			score:        3,
			positives:    []string{},
			improvements: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseReply(tt.content)
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.positives, result.Positives)
			assert.Equal(t, tt.improvements, result.Improvements)
			assert.NotNil(t, result.Positives)
			assert.NotNil(t, result.Improvements)
		})
	}
}

func TestParseReplyFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no braces", "I cannot review this resume."},
		{"empty reply", ""},
		{"only opening brace", "{ score: 8"},
		{"invalid JSON between braces", "{score: 8, positives: [a]}"},
		{"two objects span invalid JSON", `{"score": 8} and also {"score": 9}`},
		{"top-level array inside braces", "{[1,2]}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseReply(tt.content)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidModelReply))
		})
	}
}

func TestExtractJSONObjectIsGreedy(t *testing.T) {
	got, err := ExtractJSONObject("prefix {\"a\": {\"b\": 1}} suffix } tail")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\": {\"b\": 1}} suffix }", got)

	got, err = ExtractJSONObject("{\n\"multi\":\n\"line\"\n}")
	require.NoError(t, err)
	assert.Equal(t, "{\n\"multi\":\n\"line\"\n}", got)

	_, err = ExtractJSONObject("nothing here")
	assert.ErrorIs(t, err, ErrNoJSONFound)
}
