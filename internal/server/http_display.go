package server

import (
	"fmt"
	"net"
)

// displayServerInfo prints where the server listens and what it serves
func (s *Server) displayServerInfo() {
	s.displayListenAddress()
	s.displayEndpoints()
	s.displayRequestLimitInfo()
	s.displayPromptInfo()
}

func (s *Server) displayListenAddress() {
	addr := net.JoinHostPort(s.Host, s.Port)
	if s.TLSConfig.Mode == "server" {
		fmt.Printf("Starting server with HTTPS on https://%s\n", addr)
		return
	}
	fmt.Printf("Starting server on http://%s\n", addr)
	fmt.Println("TLS mode: Disabled (HTTP only)")
}

// displayEndpoints shows available endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /                    - Resume analyzer page")
	fmt.Println("  POST /api/analyze         - Analyze an uploaded resume (.docx or .txt)")
	fmt.Println("  GET  /sample_resume.docx  - Sample resume download")
	fmt.Println("  GET  /health              - Health check (?deep=true probes the model)")
	fmt.Println("  GET  /stats               - Circuit breaker and pacer statistics")
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Upload size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Upload size limit: DISABLED")
	}
}

func (s *Server) displayPromptInfo() {
	if s.PromptWatcher != nil {
		fmt.Printf("Prompt hot reload: ENABLED (%s)\n", s.AppConfig.AI.PromptFile)
	}
}
