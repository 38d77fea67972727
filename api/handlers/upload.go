package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/amul-dhungel/Deepwork/api"
	"github.com/amul-dhungel/Deepwork/document"
	"github.com/amul-dhungel/Deepwork/internal/metrics"
	"github.com/amul-dhungel/Deepwork/session"
	"go.uber.org/zap"
)

// UploadHandler ingests multipart file uploads into the session context and
// serves stored files back.
type UploadHandler struct {
	store     *document.Store
	sessions  *session.Store
	collector *metrics.Collector
	logger    *zap.Logger

	// baseURL overrides the link host in document metadata; empty derives it
	// from the request.
	baseURL      string
	maxFileBytes int64
}

// NewUploadHandler creates the handler.
func NewUploadHandler(store *document.Store, sessions *session.Store, collector *metrics.Collector, baseURL string, maxFileBytes int64, logger *zap.Logger) *UploadHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = 50 << 20
	}
	return &UploadHandler{
		store:        store,
		sessions:     sessions,
		collector:    collector,
		logger:       logger,
		baseURL:      baseURL,
		maxFileBytes: maxFileBytes,
	}
}

func (h *UploadHandler) linkBase(r *http.Request) string {
	if h.baseURL != "" {
		return strings.TrimRight(h.baseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// HandleUpload answers POST /api/upload. Each file is saved to disk, its
// text extracted and appended to the session context, and its metadata
// returned. Images become session image references instead of text.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxFileBytes); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, "No files provided")
		return
	}

	sess := h.sessions.GetOrCreate(sessionID)
	base := h.linkBase(r)

	var texts []string
	var docs []session.Document
	var images []session.Image

	for _, header := range files {
		ext := strings.ToLower(filepath.Ext(header.Filename))

		f, err := header.Open()
		if err != nil {
			h.record(ext, "error", 0)
			WriteErrorMessage(w, http.StatusBadRequest, "unreadable file: "+header.Filename)
			return
		}

		storedName, size, err := h.store.Save(header.Filename, f)
		f.Close()
		if err != nil {
			h.record(ext, "error", 0)
			h.logger.Error("upload save failed", zap.String("file", header.Filename), zap.Error(err))
			WriteErrorMessage(w, http.StatusInternalServerError, "failed to store file")
			return
		}

		path, err := h.store.Path(storedName)
		if err != nil {
			h.record(ext, "error", size)
			WriteErrorMessage(w, http.StatusInternalServerError, "failed to store file")
			return
		}

		text, err := document.ExtractText(path)
		if err != nil {
			// The file stays on disk and downloadable; extraction failures
			// just mean no text context.
			h.logger.Warn("text extraction failed",
				zap.String("file", header.Filename), zap.Error(err))
			text = ""
		}

		docs = append(docs, document.BuildMetadata(header.Filename, storedName, base, text, size))
		texts = append(texts, text)

		if document.IsImage(header.Filename) {
			images = append(images, session.Image{
				Name: header.Filename,
				URL:  base + "/uploads/" + storedName,
			})
		}
		h.record(ext, "ok", size)
	}

	sess.AppendDocuments(texts, docs)
	sess.AppendImages(images)

	if images == nil {
		images = []session.Image{}
	}
	WriteJSON(w, http.StatusOK, api.UploadResponse{
		Status:        "success",
		Message:       fmt.Sprintf("Processed %d files", len(files)),
		ContextLength: len(sess.Context()),
		Images:        images,
		Documents:     docs,
		SessionID:     sessionID,
	})
}

func (h *UploadHandler) record(ext, status string, size int64) {
	if h.collector != nil {
		h.collector.RecordUpload(ext, status, size)
	}
}

// FileServer serves GET /uploads/<filename> from the upload directory.
func (h *UploadHandler) FileServer() http.Handler {
	return http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.store.Dir())))
}
