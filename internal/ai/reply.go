package ai

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"resumecritic/internal/errors"
	"resumecritic/internal/types"
)

// ErrNoJSONFound is returned when a model reply has no {...} span.
var ErrNoJSONFound = stderrors.New("no JSON object found in model reply")

// jsonObjectPattern spans from the first '{' to the last '}' of the reply.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject returns the greedy brace-delimited span of content
func ExtractJSONObject(content string) (string, error) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return "", ErrNoJSONFound
	}
	return match, nil
}

// ParseReply extracts and decodes the critique from free-form model output.
// Missing or falsy fields fall back to defaults; it never returns partial data with an error.
func ParseReply(content string) (*types.AnalysisResult, error) {
	raw, err := ExtractJSONObject(content)
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeInvalidModelReply, "model reply contains no JSON object", err).
			WithContext("reply_length", len(content))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, errors.NewAIError(errors.ErrCodeInvalidModelReply, "model reply JSON could not be decoded", err).
			WithContext("reply_length", len(content))
	}

	return &types.AnalysisResult{
		Score:        scoreOrDefault(fields["score"]),
		Positives:    stringList(fields["positives"]),
		Improvements: stringList(fields["improvements"]),
	}, nil
}

// scoreOrDefault keeps finite non-zero numbers and numeric strings. Absent, null,
// false, zero, empty, non-finite and non-numeric values become the default.
func scoreOrDefault(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return types.DefaultScore
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return types.DefaultScore
	}

	var score float64
	switch v := value.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return types.DefaultScore
		}
		score = parsed
	default:
		return types.DefaultScore
	}

	if score == 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return types.DefaultScore
	}
	return score
}

// stringList turns a JSON array into strings, never returning nil.
// Non-string items keep their JSON text and null items are dropped.
// Anything that is not an array yields an empty list.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}

	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		if bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			out = append(out, s)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			continue
		}
		out = append(out, compact.String())
	}
	return out
}
