package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"resumecritic/internal/errors"
	"resumecritic/internal/extract"
	"resumecritic/internal/observability"
	"resumecritic/internal/types"
	"resumecritic/internal/web"

	"go.opentelemetry.io/otel/attribute"
)

// uploadField is the multipart field carrying the resume
const uploadField = "resume"

// maxMultipartMemory is how much of an upload is kept in memory before spilling to disk
const maxMultipartMemory = 8 << 20

// analysisError is a pipeline failure already mapped to what the client sees
type analysisError struct {
	status  int
	message string
	outcome string
	cause   error
}

func (e *analysisError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *analysisError) Unwrap() error { return e.cause }

// createAnalyzeHandler serves POST /api/analyze
func (s *Server) createAnalyzeHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeErrorResponse(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		result, failure := s.analyzeUpload(r, om, "api.analyze")
		if failure != nil {
			writeErrorResponse(w, failure.message, failure.status)
			return
		}

		s.respondJSON(w, http.StatusOK, result)
	}
}

// createPageHandler serves the page on GET / and the no-JS form submit on POST /
func (s *Server) createPageHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		var (
			status = http.StatusOK
			state  = web.Idle()
		)

		switch r.Method {
		case http.MethodGet, http.MethodHead:
		case http.MethodPost:
			result, failure := s.analyzeUpload(r, om, "page.analyze")
			if failure != nil {
				status, state = failure.status, web.Failed(failure.message)
			} else {
				state = web.Done(result)
			}
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		if err := s.Renderer.Render(w, status, state); err != nil {
			s.Logger.LogError(err, "Failed to render page", "phase", string(state.Phase()))
		}
	}
}

// analyzeUpload runs upload → extract → model → parse for one request
func (s *Server) analyzeUpload(r *http.Request, om *observability.ObservabilityManager, spanName string) (*types.AnalysisResult, *analysisError) {
	ctx, span := om.Tracer("resumecritic.api").Start(r.Context(), spanName)
	defer span.End()

	logger := s.Logger.With("request_id", r.Header.Get(observability.RequestIDHeader))
	metrics := om.GetMetrics()

	fail := func(failure *analysisError) (*types.AnalysisResult, *analysisError) {
		span.SetAttributes(attribute.String("error.type", failure.outcome))
		if failure.cause != nil {
			span.RecordError(failure.cause)
		}
		metrics.RecordBusinessMetric(ctx, observability.MetricResumeAnalyzed, false, om,
			attribute.String("outcome", failure.outcome))
		return nil, failure
	}

	upload, err := s.readUpload(r)
	if err != nil {
		logger.LogError(err, "Upload rejected")
		return fail(&analysisError{http.StatusBadRequest, msgNoFileUploaded, "no_file", err})
	}

	format := extract.DetectFormat(upload.FileName)
	metrics.RecordBusinessMetric(ctx, observability.MetricUploadReceived, true, om,
		attribute.String("format", string(format)))
	span.SetAttributes(
		attribute.String("upload.format", string(format)),
		attribute.Int("upload.size", len(upload.Content)),
	)

	text, err := extract.FromUpload(upload.FileName, upload.Content)
	if err != nil {
		logger.LogError(err, "DOCX parse failed", "file_name", upload.FileName)
		return fail(&analysisError{http.StatusBadRequest, msgDocxParseFailed, "docx_parse_failed", err})
	}
	if format == extract.FormatText && extract.LooksLikePDF(upload.Content) {
		logger.Warn("PDF upload decoded as plain text", "file_name", upload.FileName)
	}

	input := types.AnalyzeResumeInput{ResumeText: text, FileName: upload.FileName}
	var result *types.AnalysisResult
	err = metrics.TrackAIOperationWithTokens(ctx, "analyze", func(ctx context.Context) *observability.AIOperationResult {
		out, usage, aiErr := s.Analyzer.AnalyzeResume(ctx, input)
		result = out
		return &observability.AIOperationResult{
			Error:      aiErr,
			TokenUsage: (*observability.TokenUsage)(usage),
		}
	}, om)
	if err != nil {
		return fail(s.mapAnalysisError(err, logger))
	}

	metrics.RecordBusinessMetric(ctx, observability.MetricResumeAnalyzed, true, om,
		attribute.String("outcome", "ok"))
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Float64("result.score", result.Score),
		attribute.Int("result.positives", len(result.Positives)),
		attribute.Int("result.improvements", len(result.Improvements)),
	)
	logger.Debug("Resume analyzed",
		"file_name", upload.FileName,
		"score", result.Score)

	return result, nil
}

// mapAnalysisError collapses AI failures onto the two client-facing 500 messages
func (s *Server) mapAnalysisError(err error, logger *errors.Logger) *analysisError {
	switch {
	case errors.HasCode(err, errors.ErrCodeUpstreamStatus), errors.HasCode(err, errors.ErrCodeCircuitOpen):
		// The response body was already logged as "Groq Error" by the provider.
		return &analysisError{http.StatusInternalServerError, msgUpstreamFailed, "upstream_error", err}
	case errors.HasCode(err, errors.ErrCodeInvalidModelReply):
		logger.LogError(err, "Model reply parse failed")
		return &analysisError{http.StatusInternalServerError, msgGeneric, "invalid_reply", err}
	default:
		logger.LogError(err, "Resume analysis failed")
		return &analysisError{http.StatusInternalServerError, msgGeneric, "internal_error", err}
	}
}

// readUpload pulls the first file of the resume field out of a multipart body
func (s *Server) readUpload(r *http.Request) (*types.UploadedFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return nil, errors.NewValidationError(errors.ErrCodeFileTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", maxBytesErr.Limit), err)
		}
		return nil, errors.NewValidationError(errors.ErrCodeNoFileUploaded, "request is not a multipart upload", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeNoFileUploaded, "missing resume field", err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read uploaded file", err)
	}

	return &types.UploadedFile{FileName: header.Filename, Content: content}, nil
}

// writeJSON encodes v before touching the response, so an encode failure leaves w unwritten
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
	return nil
}
