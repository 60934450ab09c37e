package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resumecritic/internal/types"
	"resumecritic/internal/web"
)

// Empty-list placeholders, shared with the web view
const (
	noStrengths   = "No strengths found."
	noSuggestions = "No suggestions found."
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "AnalysisResult", &AnalysisTextFormatter{})
	registry.RegisterFormatter("markdown", "AnalysisResult", &AnalysisMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.AnalysisResult, *types.AnalysisResult:
		return "AnalysisResult"
	default:
		return "any"
	}
}

func asAnalysisResult(data any) (*types.AnalysisResult, error) {
	switch v := data.(type) {
	case types.AnalysisResult:
		return &v, nil
	case *types.AnalysisResult:
		if v == nil {
			return nil, fmt.Errorf("analysis result is nil")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("expected AnalysisResult, got %T", data)
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// AnalysisTextFormatter renders a critique as plain text
type AnalysisTextFormatter struct{}

func (tf *AnalysisTextFormatter) Format(data any) (string, error) {
	result, err := asAnalysisResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== RESUME ANALYSIS ===\n")
	fmt.Fprintf(&output, "Score: %s/10\n\n", web.FormatScore(result.Score))

	output.WriteString("Strengths:\n")
	writeTextList(&output, result.Positives, noStrengths)
	output.WriteString("\n")

	output.WriteString("Suggestions:\n")
	writeTextList(&output, result.Improvements, noSuggestions)

	return output.String(), nil
}

func (tf *AnalysisTextFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeTextList(output *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		fmt.Fprintf(output, "  %s\n", empty)
		return
	}
	for _, item := range items {
		fmt.Fprintf(output, "  - %s\n", item)
	}
}

// AnalysisMarkdownFormatter renders a critique as markdown
type AnalysisMarkdownFormatter struct{}

func (mf *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	result, err := asAnalysisResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Resume Analysis\n\n")
	fmt.Fprintf(&output, "**Score:** %s/10\n\n", web.FormatScore(result.Score))

	output.WriteString("## Strengths\n\n")
	writeMarkdownList(&output, result.Positives, noStrengths)
	output.WriteString("\n")

	output.WriteString("## Suggestions\n\n")
	writeMarkdownList(&output, result.Improvements, noSuggestions)

	return output.String(), nil
}

func (mf *AnalysisMarkdownFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeMarkdownList(output *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		fmt.Fprintf(output, "_%s_\n", empty)
		return
	}
	for _, item := range items {
		fmt.Fprintf(output, "- %s\n", item)
	}
}
