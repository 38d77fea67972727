package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amul-dhungel/Deepwork/api"
	"github.com/amul-dhungel/Deepwork/document"
	"github.com/amul-dhungel/Deepwork/internal/metrics"
	"github.com/amul-dhungel/Deepwork/internal/pool"
	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/session"
	"github.com/amul-dhungel/Deepwork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubProvider records the last prompt it was asked to complete.
type stubProvider struct {
	mu         sync.Mutex
	name       string
	reply      string
	err        error
	lastPrompt string
}

func (s *stubProvider) Name() string            { return s.name }
func (s *stubProvider) SupportsStreaming() bool { return false }

func (s *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	s.lastPrompt = req.Prompt
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Text: s.reply, Provider: s.name, RawStatus: 200}, nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return &llm.HealthStatus{}, types.NewError(types.ErrNetwork, "request cancelled").WithCause(err)
	}
	if s.err != nil {
		return &llm.HealthStatus{}, s.err
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

type fixture struct {
	chat     *ChatHandler
	health   *HealthHandler
	upload   *UploadHandler
	sessions *session.Store
	stub     *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	sessions := session.NewStore(logger, session.WithSweepInterval(time.Hour))
	t.Cleanup(sessions.Close)

	stub := &stubProvider{name: "gemini", reply: "stub reply"}
	dispatcher := llm.NewDispatcher(metrics.NewCollector("deepwork", logger), logger)
	dispatcher.Register(stub)

	workers := pool.New(8, 64)
	t.Cleanup(workers.Close)
	prober := llm.NewProber(dispatcher, workers, logger)

	docStore, err := document.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	collector := metrics.NewCollector("deepwork", logger)

	return &fixture{
		chat:     NewChatHandler(dispatcher, sessions, logger),
		health:   NewHealthHandler(prober, sessions, logger),
		upload:   NewUploadHandler(docStore, sessions, collector, "", 0, logger),
		sessions: sessions,
		stub:     stub,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(api.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestMissingSessionHeader(t *testing.T) {
	f := newFixture(t)

	endpoints := map[string]http.HandlerFunc{
		"/api/chat":     f.chat.HandleChat,
		"/api/generate": f.chat.HandleGenerate,
		"/api/upload":   f.upload.HandleUpload,
	}
	for path, handler := range endpoints {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error": "Missing X-Session-ID header"}`, rec.Body.String())
		})
	}
}

func TestChatReturnsReply(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.chat.HandleChat, "/api/chat", "s1", api.ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stub reply", resp.Reply)
	// No uploads yet, so the message passes through untouched.
	assert.Equal(t, "hello", f.stub.LastPrompt())
}

func TestChatEmptyMessage(t *testing.T) {
	f := newFixture(t)
	rec := postJSON(t, f.chat.HandleChat, "/api/chat", "s1", api.ChatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatProviderErrorMapped(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrQuotaExceeded, http.StatusTooManyRequests},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNoCredits, http.StatusForbidden},
		{types.ErrNotConfigured, http.StatusServiceUnavailable},
		{types.ErrUpstreamError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			f.stub.err = types.NewError(tt.code, "vendor said no")
			rec := postJSON(t, f.chat.HandleChat, "/api/chat", "s1", api.ChatRequest{Message: "hi"})

			assert.Equal(t, tt.want, rec.Code)
			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, "vendor said no")
		})
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	f.stub.reply = "<h1>Report</h1>"

	body := map[string]any{
		"topic": "caching",
		"tone":  "formal",
		"options": map[string]bool{
			"includeTable": true,
		},
	}
	rec := postJSON(t, f.chat.HandleGenerate, "/api/generate", "s1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "<h1>Report</h1>", resp.Content)
	assert.Contains(t, f.stub.LastPrompt(), "COMPARISON TABLE")
	assert.Contains(t, f.stub.LastPrompt(), "caching")
}

func TestRefine(t *testing.T) {
	f := newFixture(t)
	f.stub.reply = "<p>better text</p>"

	rec := postJSON(t, f.chat.HandleRefine, "/api/refine", "",
		api.RefineRequest{Text: "bad text", Instruction: "improve it"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "<p>better text</p>", resp.Content)
	assert.Contains(t, f.stub.LastPrompt(), "improve it")
}

func TestSummarizeWithoutUploads(t *testing.T) {
	f := newFixture(t)
	rec := postJSON(t, f.chat.HandleSummarize, "/api/summarize", "s1",
		api.SummarizeRequest{Filename: "doc.pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, sessionID, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(api.SessionHeader, sessionID)
	}
	return req
}

func TestUploadThenChatCarriesContext(t *testing.T) {
	f := newFixture(t)

	text := "Abstract: X. Introduction follows with the actual study."
	rec := httptest.NewRecorder()
	f.upload.HandleUpload(rec, multipartUpload(t, "sess-ctx", "paper.txt", text))
	require.Equal(t, http.StatusOK, rec.Code)

	var up api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, "success", up.Status)
	assert.Equal(t, "Processed 1 files", up.Message)
	assert.Equal(t, "sess-ctx", up.SessionID)
	require.Len(t, up.Documents, 1)
	assert.Equal(t, "paper.txt", up.Documents[0].Name)
	assert.Contains(t, up.Documents[0].Summary, ": X. Introduction")
	assert.Greater(t, up.ContextLength, 0)

	// The same session's chat prompt must include the uploaded text.
	chatRec := postJSON(t, f.chat.HandleChat, "/api/chat", "sess-ctx",
		api.ChatRequest{Message: "what is the study about?"})
	require.Equal(t, http.StatusOK, chatRec.Code)
	assert.Contains(t, f.stub.LastPrompt(), text)
	assert.Contains(t, f.stub.LastPrompt(), "--- Document: paper.txt ---")

	// A different session sees none of it.
	otherRec := postJSON(t, f.chat.HandleChat, "/api/chat", "other",
		api.ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, otherRec.Code)
	assert.Equal(t, "hello", f.stub.LastPrompt())
}

func TestUploadThenSummarize(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.upload.HandleUpload(rec, multipartUpload(t, "s1", "notes.txt", "the document body"))
	require.Equal(t, http.StatusOK, rec.Code)

	f.stub.reply = "<p>a fine summary</p>"
	sumRec := postJSON(t, f.chat.HandleSummarize, "/api/summarize", "s1",
		api.SummarizeRequest{Filename: "notes.txt"})
	require.Equal(t, http.StatusOK, sumRec.Code)

	var resp api.SummarizeResponse
	require.NoError(t, json.Unmarshal(sumRec.Body.Bytes(), &resp))
	assert.Equal(t, "<p>a fine summary</p>", resp.Summary)
	assert.Contains(t, f.stub.LastPrompt(), "the document body")
}

func TestUploadNoFiles(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(api.SessionHeader, "s1")
	rec := httptest.NewRecorder()
	f.upload.HandleUpload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No files provided", resp.Error)
}

func TestUploadImageRecorded(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.upload.HandleUpload(rec, multipartUpload(t, "s1", "fig.png", "\x89PNG fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	var up api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.Len(t, up.Images, 1)
	assert.Equal(t, "fig.png", up.Images[0].Name)
	assert.Contains(t, up.Images[0].URL, "/uploads/")
	assert.True(t, strings.HasSuffix(up.Images[0].URL, "_fig.png"))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.sessions.GetOrCreate("a")
	f.sessions.GetOrCreate("b")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	f.health.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.ActiveSessions)
}

func TestModelsStatus(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/models/status", nil)
	rec := httptest.NewRecorder()
	f.health.HandleModelsStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var statuses map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, map[string]string{"gemini": "ok"}, statuses)
}

func TestModelsStatusSurvivesCallerDisconnect(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A caller whose request context is already dead must not poison the
	// probe other callers will share.
	req := httptest.NewRequest(http.MethodGet, "/api/models/status", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.health.HandleModelsStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var statuses map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Equal(t, map[string]string{"gemini": "ok"}, statuses)
}

func TestStreamChat(t *testing.T) {
	f := newFixture(t)
	f.stub.reply = "streamed reply"

	rec := postJSON(t, f.chat.HandleStreamChat, "/api/stream_chat", "",
		api.StreamChatRequest{Prompt: "tell me"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)

	var first, mid, last llm.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &mid))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "start", first.Type)
	assert.Equal(t, "chunk", mid.Type)
	assert.Equal(t, "streamed reply", mid.Content)
	assert.Equal(t, "done", last.Type)
}

func TestStreamChatProviderError(t *testing.T) {
	f := newFixture(t)
	f.stub.err = types.NewError(types.ErrNotConfigured, "no key")

	rec := postJSON(t, f.chat.HandleStreamChat, "/api/stream_chat", "",
		api.StreamChatRequest{Prompt: "tell me"})
	// Failure before the first byte is a plain HTTP error.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
