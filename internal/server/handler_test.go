package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"resumecritic/internal/ai"
	"resumecritic/internal/config"
	"resumecritic/internal/errors"
	"resumecritic/internal/types"
	"resumecritic/internal/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []types.AnalyzeResumeInput
	result *types.AnalysisResult
	err    error
	model  *ai.ModelInfo
	prompt string
}

func (f *fakeAnalyzer) AnalyzeResume(_ context.Context, input types.AnalyzeResumeInput) (*types.AnalysisResult, *ai.TokenUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.result, &ai.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, nil
}

func (f *fakeAnalyzer) GetModelInfo(context.Context) *ai.ModelInfo { return f.model }

func (f *fakeAnalyzer) UpdatePromptTemplate(tmpl string) error {
	if err := config.ValidatePromptTemplate(tmpl); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = tmpl
	return nil
}

func (f *fakeAnalyzer) currentPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt
}

func (f *fakeAnalyzer) Stats() map[string]any {
	return map[string]any{"model": "test-model"}
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestServer(t *testing.T, analyzer *fakeAnalyzer) (*Server, *bytes.Buffer) {
	t.Helper()
	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	var logs bytes.Buffer
	return &Server{
		Version:        "test",
		AppConfig:      &config.Config{},
		TLSConfig:      config.TLSConfig{Mode: "disabled"},
		MaxRequestSize: 1 << 20,
		Analyzer:       analyzer,
		Renderer:       renderer,
		Logger:         errors.NewLoggerWithWriter(&logs, slog.LevelDebug),
	}, &logs
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, h http.Handler, path, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "resume", name, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAnalyzeTextUpload(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &types.AnalysisResult{
		Score:        8,
		Positives:    []string{"Clear layout"},
		Improvements: []string{},
	}}
	s, _ := newTestServer(t, analyzer)

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.txt", []byte("Jane Doe\nGo engineer"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"score":8,"positives":["Clear layout"],"improvements":[]}`, rec.Body.String())

	require.Len(t, analyzer.calls, 1)
	assert.Equal(t, "Jane Doe\nGo engineer", analyzer.calls[0].ResumeText)
	assert.Equal(t, "resume.txt", analyzer.calls[0].FileName)
}

func TestAnalyzeDocxUpload(t *testing.T) {
	sample, err := web.SampleResume()
	require.NoError(t, err)

	analyzer := &fakeAnalyzer{result: &types.AnalysisResult{Score: 7, Positives: []string{}, Improvements: []string{}}}
	s, _ := newTestServer(t, analyzer)

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "Resume.DOCX", sample)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, analyzer.calls, 1)
	assert.Contains(t, analyzer.calls[0].ResumeText, "Jordan Avery")
	assert.NotContains(t, analyzer.calls[0].ResumeText, "<w:")
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	s, _ := newTestServer(t, analyzer)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(method, "/api/analyze", nil))

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "Method not allowed", decodeError(t, rec))
		})
	}
	assert.Zero(t, analyzer.callCount())
}

func TestAnalyzeNoFile(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) (*bytes.Buffer, string)
	}{
		{
			name: "wrong field name",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return multipartBody(t, "file", "resume.txt", []byte("text"))
			},
		},
		{
			name: "not multipart",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString(`{"resume":"text"}`), "application/json"
			},
		},
		{
			name: "empty body",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return &bytes.Buffer{}, ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{}
			s, _ := newTestServer(t, analyzer)

			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			rec := httptest.NewRecorder()
			s.Handler(nil).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "No file uploaded", decodeError(t, rec))
			assert.Zero(t, analyzer.callCount())
		})
	}
}

func TestAnalyzeOversizedUpload(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	s, _ := newTestServer(t, analyzer)
	s.MaxRequestSize = 1024

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.txt", bytes.Repeat([]byte("a"), 4096))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decodeError(t, rec))
	assert.Zero(t, analyzer.callCount())
}

func TestAnalyzeBrokenDocx(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	s, logs := newTestServer(t, analyzer)

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.docx", []byte("definitely not a zip archive"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unable to parse this .docx file. Please upload a simpler version or a .txt file.", decodeError(t, rec))
	assert.Zero(t, analyzer.callCount())
	assert.Contains(t, logs.String(), "DOCX parse failed")
}

func TestAnalyzePDFDecodedAsText(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &types.AnalysisResult{Score: 7, Positives: []string{}, Improvements: []string{}}}
	s, logs := newTestServer(t, analyzer)

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.pdf", []byte("%PDF-1.7 binary"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, analyzer.calls, 1)
	assert.Equal(t, "%PDF-1.7 binary", analyzer.calls[0].ResumeText)
	assert.Contains(t, logs.String(), "PDF upload decoded as plain text")
}

func TestAnalyzeUnencodableResult(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &types.AnalysisResult{
		Score:        math.NaN(),
		Positives:    []string{},
		Improvements: []string{},
	}}
	s, logs := newTestServer(t, analyzer)

	rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.txt", []byte("text"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong.", decodeError(t, rec))
	assert.Contains(t, logs.String(), "Failed to encode response")
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		logged  string
	}{
		{
			name:    "upstream status",
			err:     errors.NewAIError(errors.ErrCodeUpstreamStatus, "Groq returned 401", nil),
			message: "Groq API failed",
		},
		{
			name:    "circuit open",
			err:     errors.NewAIError(errors.ErrCodeCircuitOpen, "circuit breaker is open", nil),
			message: "Groq API failed",
		},
		{
			name:    "invalid reply",
			err:     errors.NewAIError(errors.ErrCodeInvalidModelReply, "model reply contains no JSON object", ai.ErrNoJSONFound),
			message: "Something went wrong.",
			logged:  "Model reply parse failed",
		},
		{
			name:    "network failure",
			err:     errors.NewNetworkError(errors.ErrCodeAIServiceFailed, "connection refused", nil),
			message: "Something went wrong.",
			logged:  "Resume analysis failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, logs := newTestServer(t, &fakeAnalyzer{err: tt.err})

			rec := postUpload(t, s.Handler(nil), "/api/analyze", "resume.txt", []byte("text"))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
			if tt.logged != "" {
				assert.Contains(t, logs.String(), tt.logged)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t, &fakeAnalyzer{})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
	})
}

func TestRequestIsLogged(t *testing.T) {
	s, logs := newTestServer(t, &fakeAnalyzer{})

	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), `"msg":"HTTP request"`)
	assert.Contains(t, logs.String(), `"path":"/stats"`)
	assert.Contains(t, logs.String(), `"status":200`)
}

func TestPageHandler(t *testing.T) {
	t.Run("get renders idle", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-phase="idle"`)
	})

	t.Run("post renders result", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{result: &types.AnalysisResult{
			Score:        9,
			Positives:    []string{"Strong impact statements"},
			Improvements: []string{},
		}})
		rec := postUpload(t, s.Handler(nil), "/", "resume.txt", []byte("text"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-phase="done"`)
		assert.Contains(t, rec.Body.String(), "9/10")
		assert.Contains(t, rec.Body.String(), "Strong impact statements")
		assert.Contains(t, rec.Body.String(), "No suggestions found.")
	})

	t.Run("post renders error", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{
			err: errors.NewAIError(errors.ErrCodeUpstreamStatus, "Groq returned 500", nil),
		})
		rec := postUpload(t, s.Handler(nil), "/", "resume.txt", []byte("text"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `<p id="error" role="alert">Groq API failed</p>`)
	})

	t.Run("unknown path", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSampleRoute(t *testing.T) {
	s, _ := newTestServer(t, &fakeAnalyzer{})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sample_resume.docx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
}

func TestHealthHandler(t *testing.T) {
	t.Run("shallow", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.NotContains(t, body, "ai_model")
	})

	t.Run("deep with available model", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{model: &ai.ModelInfo{Name: "llama3-70b-8192", Available: true}})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "llama3-70b-8192")
	})

	t.Run("deep with unavailable model", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{model: &ai.ModelInfo{Name: "gone", Error: "Failed to get model info: 404"}})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"degraded"`)
	})

	t.Run("post not allowed", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeAnalyzer{})
		rec := httptest.NewRecorder()
		s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestStatsHandler(t *testing.T) {
	s, _ := newTestServer(t, &fakeAnalyzer{})
	rec := httptest.NewRecorder()
	s.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"model": "test-model"}, body["ai"])
	server := body["server"].(map[string]any)
	assert.Equal(t, float64(1<<20), server["max_request_size_bytes"])
	assert.Equal(t, false, server["prompt_watcher_running"])
}

func TestPromptWatcherAppliesTemplate(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	s, _ := newTestServer(t, analyzer)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Review: %s"), 0o600))

	t.Run("disabled", func(t *testing.T) {
		s.AppConfig.AI.PromptFile = path
		require.NoError(t, s.startPromptWatcher())
		assert.Nil(t, s.PromptWatcher)
	})

	t.Run("reloads on change", func(t *testing.T) {
		s.AppConfig.AI.WatchPromptFile = true
		require.NoError(t, s.startPromptWatcher())
		require.NotNil(t, s.PromptWatcher)
		t.Cleanup(s.stopPromptWatcher)
		assert.True(t, s.PromptWatcher.IsRunning())

		require.NoError(t, os.WriteFile(path, []byte("Critique this resume: %s"), 0o600))
		future := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))

		require.Eventually(t, func() bool {
			return analyzer.currentPrompt() == "Critique this resume: %s"
		}, 5*time.Second, 50*time.Millisecond)
	})
}

func TestConfigureTLS(t *testing.T) {
	s, _ := newTestServer(t, &fakeAnalyzer{})

	httpServer := &http.Server{}
	require.NoError(t, s.configureTLS(httpServer))
	assert.Nil(t, httpServer.TLSConfig)

	s.TLSConfig = config.TLSConfig{Mode: "server"}
	assert.ErrorContains(t, s.configureTLS(httpServer), "certificate and key files are required")

	s.TLSConfig = config.TLSConfig{Mode: "mutual"}
	assert.ErrorContains(t, s.configureTLS(httpServer), "invalid TLS mode")
}

func TestNewServerRequiresAnalyzer(t *testing.T) {
	_, err := NewServer(&config.Config{}, nil, "test", errors.NewLoggerWithWriter(&bytes.Buffer{}, slog.LevelInfo))
	assert.Error(t, err)
}
