package ai

import (
	"strings"
	"sync/atomic"

	"resumecritic/internal/config"
)

// PromptVersion identifies the built-in review prompt
const PromptVersion = "v1"

// DefaultAnalyzePrompt asks for the three-key JSON critique. %s is replaced by the resume text.
// The surrounding newlines are part of the prompt.
const DefaultAnalyzePrompt = `
You are a professional resume reviewer.

Analyze the resume below and return a response strictly in this JSON format:

{
  "score": 8,
  "positives": ["point 1", "point 2", "point 3"],
  "improvements": ["suggestion 1", "suggestion 2", "suggestion 3"]
}

Resume:
%s
`

// PromptTemplate holds the active review prompt. It can be swapped while requests are in flight.
type PromptTemplate struct {
	current atomic.Pointer[promptState]
}

type promptState struct {
	template string
	source   string
}

// NewPromptTemplate starts from custom when it is set, otherwise from the built-in prompt
func NewPromptTemplate(custom string) *PromptTemplate {
	p := &PromptTemplate{}
	if custom != "" && config.ValidatePromptTemplate(custom) == nil {
		p.current.Store(&promptState{template: custom, source: "file"})
	} else {
		p.current.Store(&promptState{template: DefaultAnalyzePrompt, source: "default-" + PromptVersion})
	}
	return p
}

// Set replaces the active template after validating it
func (p *PromptTemplate) Set(tmpl string) error {
	if err := config.ValidatePromptTemplate(tmpl); err != nil {
		return err
	}
	p.current.Store(&promptState{template: tmpl, source: "file"})
	return nil
}

// Source reports where the active template came from
func (p *PromptTemplate) Source() string {
	return p.current.Load().source
}

// Render embeds the resume text into the active template
func (p *PromptTemplate) Render(resumeText string) string {
	return strings.Replace(p.current.Load().template, config.PromptPlaceholder, resumeText, 1)
}
