// Package api defines the wire types of the HTTP surface. Bodies are flat
// JSON objects matching what the editor frontend expects.
package api

import (
	"github.com/amul-dhungel/Deepwork/prompt"
	"github.com/amul-dhungel/Deepwork/session"
)

// SessionHeader carries the client-chosen session identifier.
const SessionHeader = "X-Session-ID"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message       string `json:"message"`
	ModelProvider string `json:"modelProvider,omitempty"`
}

// ChatResponse is the reply of POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	prompt.ReportRequest
	ModelProvider string `json:"modelProvider,omitempty"`
}

// GenerateResponse is the reply of POST /api/generate and /api/refine.
type GenerateResponse struct {
	Content string `json:"content"`
}

// SummarizeRequest is the body of POST /api/summarize.
type SummarizeRequest struct {
	Filename      string `json:"filename"`
	ModelProvider string `json:"modelProvider,omitempty"`
}

// SummarizeResponse is the reply of POST /api/summarize.
type SummarizeResponse struct {
	Summary string `json:"summary"`
}

// RefineRequest is the body of POST /api/refine.
type RefineRequest struct {
	Text          string `json:"text"`
	Instruction   string `json:"instruction"`
	ModelProvider string `json:"modelProvider,omitempty"`
}

// StreamChatRequest is the body of POST /api/stream_chat.
type StreamChatRequest struct {
	Prompt        string `json:"prompt"`
	ModelProvider string `json:"modelProvider,omitempty"`
}

// UploadResponse is the reply of POST /api/upload.
type UploadResponse struct {
	Status        string             `json:"status"`
	Message       string             `json:"message"`
	ContextLength int                `json:"context_length"`
	Images        []session.Image    `json:"images"`
	Documents     []session.Document `json:"documents"`
	SessionID     string             `json:"session_id"`
}

// HealthResponse is the reply of GET /api/health.
type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	ActiveSessions int    `json:"active_sessions"`
}

// ErrorResponse is every error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
