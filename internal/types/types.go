package types

// DefaultScore is used when the model omits the score or returns a falsy one
const DefaultScore = 7

// UploadedFile is a resume as received from a client or read from disk
type UploadedFile struct {
	FileName string
	Content  []byte
}

// AnalyzeResumeInput represents the input for analyzing a resume
type AnalyzeResumeInput struct {
	ResumeText string `json:"resumeText"`
	FileName   string `json:"fileName,omitempty"`
}

// AnalysisResult is the structured critique returned to clients
type AnalysisResult struct {
	Score        float64  `json:"score"`        // intended 1-10, not clamped
	Positives    []string `json:"positives"`    // strengths, in model order
	Improvements []string `json:"improvements"` // suggestions, in model order
}

// ErrorResponse is the body of every failed API response
type ErrorResponse struct {
	Error string `json:"error"`
}
