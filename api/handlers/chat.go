package handlers

import (
	"net/http"
	"strings"

	"github.com/amul-dhungel/Deepwork/api"
	"github.com/amul-dhungel/Deepwork/internal/ctxkeys"
	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/prompt"
	"github.com/amul-dhungel/Deepwork/session"
	"go.uber.org/zap"
)

// ChatHandler serves the prompt-forwarding endpoints: chat, generate,
// summarize, refine, and the streaming variant.
type ChatHandler struct {
	dispatcher *llm.Dispatcher
	sessions   *session.Store
	logger     *zap.Logger
}

// NewChatHandler creates the handler.
func NewChatHandler(dispatcher *llm.Dispatcher, sessions *session.Store, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		dispatcher: dispatcher,
		sessions:   sessions,
		logger:     logger,
	}
}

// HandleChat answers POST /api/chat with {"reply": ...}.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r)
	if !ok {
		return
	}

	var req api.ChatRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "message is required")
		return
	}

	sess := h.sessions.GetOrCreate(sessionID)
	fullPrompt := prompt.Chat(sess, req.Message)

	ctx := ctxkeys.WithSessionID(r.Context(), sessionID)
	resp, err := h.dispatcher.Generate(ctx, req.ModelProvider, &llm.ChatRequest{Prompt: fullPrompt})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.ChatResponse{Reply: resp.Text})
}

// HandleGenerate answers POST /api/generate with {"content": ...}.
func (h *ChatHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r)
	if !ok {
		return
	}

	var req api.GenerateRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "topic is required")
		return
	}

	sess := h.sessions.GetOrCreate(sessionID)
	fullPrompt := prompt.Report(sess, req.ReportRequest)

	ctx := ctxkeys.WithSessionID(r.Context(), sessionID)
	resp, err := h.dispatcher.Generate(ctx, req.ModelProvider, &llm.ChatRequest{Prompt: fullPrompt})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.GenerateResponse{Content: resp.Text})
}

// HandleSummarize answers POST /api/summarize with {"summary": ...}.
func (h *ChatHandler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r)
	if !ok {
		return
	}

	var req api.SummarizeRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "filename is required")
		return
	}

	sess := h.sessions.Get(sessionID)
	if sess == nil || sess.Context() == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "no uploaded documents in this session")
		return
	}

	resp, err := h.dispatcher.Generate(ctxkeys.WithSessionID(r.Context(), sessionID), req.ModelProvider,
		&llm.ChatRequest{Prompt: prompt.Summary(sess, req.Filename)})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.SummarizeResponse{Summary: resp.Text})
}

// HandleRefine answers POST /api/refine with {"content": ...}. Refinement
// works on client-supplied text, so no session is required.
func (h *ChatHandler) HandleRefine(w http.ResponseWriter, r *http.Request) {
	var req api.RefineRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "text is required")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "instruction is required")
		return
	}

	resp, err := h.dispatcher.Generate(r.Context(), req.ModelProvider,
		&llm.ChatRequest{Prompt: prompt.Refine(req.Text, req.Instruction)})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.GenerateResponse{Content: resp.Text})
}

// HandleStreamChat answers POST /api/stream_chat with an NDJSON event
// stream. Session context is applied when the header is present. Failures
// before the first byte are normal HTTP errors; once streaming has begun
// they become {"type":"error"} events.
func (h *ChatHandler) HandleStreamChat(w http.ResponseWriter, r *http.Request) {
	var req api.StreamChatRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "prompt is required")
		return
	}

	fullPrompt := req.Prompt
	ctx := r.Context()
	if sessionID := r.Header.Get(api.SessionHeader); sessionID != "" {
		fullPrompt = prompt.Chat(h.sessions.GetOrCreate(sessionID), req.Prompt)
		ctx = ctxkeys.WithSessionID(ctx, sessionID)
	}

	chunks, err := h.dispatcher.GenerateStream(ctx, req.ModelProvider, &llm.ChatRequest{Prompt: fullPrompt})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := llm.Relay(w, chunks); err != nil {
		h.logger.Warn("stream ended with error", zap.Error(err))
	}
}
