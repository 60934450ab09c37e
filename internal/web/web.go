// Package web renders the single-page upload view and serves its static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"resumecritic/internal/types"
)

//go:embed templates/index.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// SampleResumeName is the downloadable example document
const SampleResumeName = "sample_resume.docx"

// Embedded files carry no mtime; the process start stands in for Last-Modified.
var startTime = time.Now()

// Phase is the discriminant of ViewState
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseDone    Phase = "done"
	PhaseError   Phase = "error"
)

// ViewState is what the page shows. Only one of result or message is set, as the phase dictates.
type ViewState struct {
	phase   Phase
	result  *types.AnalysisResult
	message string
}

// Idle is the state before any submission
func Idle() ViewState { return ViewState{phase: PhaseIdle} }

// Loading is the state while a request is in flight
func Loading() ViewState { return ViewState{phase: PhaseLoading} }

// Done carries a finished critique
func Done(result *types.AnalysisResult) ViewState {
	if result == nil {
		return Failed("Something went wrong.")
	}
	return ViewState{phase: PhaseDone, result: result}
}

// Failed carries the user-facing error message
func Failed(message string) ViewState {
	return ViewState{phase: PhaseError, message: message}
}

// Phase returns the state discriminant
func (s ViewState) Phase() Phase {
	if s.phase == "" {
		return PhaseIdle
	}
	return s.phase
}

// Result returns the critique when the phase is done
func (s ViewState) Result() (*types.AnalysisResult, bool) {
	return s.result, s.Phase() == PhaseDone
}

// Message returns the error text when the phase is error
func (s ViewState) Message() (string, bool) {
	return s.message, s.Phase() == PhaseError
}

// pageData is the template view of a ViewState
type pageData struct {
	Phase        string
	Loading      bool
	HasResult    bool
	Score        string
	Positives    []string
	Improvements []string
	Error        string
	SampleURL    string
}

func newPageData(s ViewState) pageData {
	data := pageData{
		Phase:     string(s.Phase()),
		Loading:   s.Phase() == PhaseLoading,
		SampleURL: "/" + SampleResumeName,
	}
	if result, ok := s.Result(); ok {
		data.HasResult = true
		data.Score = FormatScore(result.Score)
		data.Positives = result.Positives
		data.Improvements = result.Improvements
	}
	if msg, ok := s.Message(); ok {
		data.Error = msg
	}
	return data
}

// FormatScore prints a score the way a browser prints a JSON number
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// Renderer executes the page template
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded page template
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the page for state with the given status code
func (r *Renderer) Render(w http.ResponseWriter, status int, state ViewState) error {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, newPageData(state)); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// SampleResume returns the embedded sample document
func SampleResume() ([]byte, error) {
	return fs.ReadFile(staticFS, "static/"+SampleResumeName)
}

// SampleHandler serves the sample document as a download
func SampleHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, err := SampleResume()
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", `attachment; filename="`+SampleResumeName+`"`)
		http.ServeContent(w, r, SampleResumeName, startTime, bytes.NewReader(data))
	})
}
