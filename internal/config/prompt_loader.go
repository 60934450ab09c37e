package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// PromptPlaceholder marks where the resume text goes in a prompt template.
const PromptPlaceholder = "%s"

// LoadPromptFile reads a prompt template from disk and checks that it is usable
func LoadPromptFile(filePath string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for prompt file '%s': %w", filePath, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("prompt file not found: %s", absPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file '%s': %w", absPath, err)
	}

	tmpl := strings.TrimSpace(string(content))
	if err := ValidatePromptTemplate(tmpl); err != nil {
		return "", fmt.Errorf("prompt file '%s': %w", absPath, err)
	}

	log.Printf("[CONFIG] Loaded prompt template from file: %s (%d characters)", absPath, len(tmpl))
	return tmpl, nil
}

// ValidatePromptTemplate requires a non-empty template with exactly one placeholder
func ValidatePromptTemplate(tmpl string) error {
	if tmpl == "" {
		return fmt.Errorf("prompt template is empty")
	}
	if n := strings.Count(tmpl, PromptPlaceholder); n != 1 {
		return fmt.Errorf("prompt template must contain exactly one %q placeholder, found %d", PromptPlaceholder, n)
	}
	return nil
}
