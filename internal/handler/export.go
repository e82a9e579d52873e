package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/unbuiltapp/unbuilt/internal/archive"
	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/email"
	"github.com/unbuiltapp/unbuilt/internal/export"
	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

type ExportHandler struct {
	resultStore  *store.ResultStore
	archiveStore *store.ArchiveStore
	archiveMgr   *archive.Manager
	emailClient  *email.Client
	logger       *slog.Logger
}

func NewExportHandler(
	rs *store.ResultStore,
	as *store.ArchiveStore,
	am *archive.Manager,
	ec *email.Client,
	logger *slog.Logger,
) *ExportHandler {
	return &ExportHandler{
		resultStore:  rs,
		archiveStore: as,
		archiveMgr:   am,
		emailClient:  ec,
		logger:       logger,
	}
}

type exportRequest struct {
	Format    string  `json:"format"`
	ResultIDs []int64 `json:"result_ids"`
}

// Export renders the selected results and returns them as a file download.
// "pdf" and "pitch" are HTML documents meant for print-to-PDF.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	results, ok := h.loadResults(w, r, req.ResultIDs)
	if !ok {
		return
	}

	var (
		body        string
		contentType string
		ext         string
		err         error
	)
	switch req.Format {
	case "csv":
		body = export.ToCSV(results)
		contentType = "text/csv"
		ext = "csv"
	case "pdf":
		body, err = export.ToReport(results, timeNow())
		contentType = "text/html"
		ext = "html"
	case "pitch":
		body, err = export.ToPitchDeck(results, timeNow())
		contentType = "text/html"
		ext = "html"
	default:
		writeError(w, http.StatusBadRequest, "format must be csv, pdf, or pitch")
		return
	}
	if err != nil {
		h.logger.Error("render export", "format", req.Format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	filename := fmt.Sprintf("unbuilt-%s-%s.%s", req.Format, uuid.NewString()[:8], ext)

	// Archive upload is best effort; the download must not depend on S3.
	if h.archiveMgr.Enabled() {
		if _, err := h.archiveMgr.Store(r.Context(), auth.UserID(r.Context()), req.Format, filename, []byte(body)); err != nil {
			h.logger.Warn("archive export", "error", err)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write([]byte(body))
}

type emailReportRequest struct {
	Email     string  `json:"email"`
	Message   string  `json:"message"`
	ResultIDs []int64 `json:"result_ids"`
}

// EmailReport renders the report document and hands it to the mail provider.
// Delivery failures surface as errors and are not retried.
func (h *ExportHandler) EmailReport(w http.ResponseWriter, r *http.Request) {
	var req emailReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	results, ok := h.loadResults(w, r, req.ResultIDs)
	if !ok {
		return
	}

	body, err := export.ToReport(results, timeNow())
	if err != nil {
		h.logger.Error("render report", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	if err := h.emailClient.SendReport(req.Email, req.Message, body); err != nil {
		h.logger.Error("send report", "to", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send report")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Report with %d results sent to %s", len(results), req.Email),
	})
}

// ListArchives returns the caller's archived exports.
func (h *ExportHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.archiveStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list archives", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exports")
		return
	}
	if archives == nil {
		archives = []model.ExportArchive{}
	}
	writeJSON(w, http.StatusOK, archives)
}

func (h *ExportHandler) loadResults(w http.ResponseWriter, r *http.Request, ids []int64) ([]model.SearchResult, bool) {
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "result_ids is required")
		return nil, false
	}
	results, err := h.resultStore.ListByIDs(auth.UserID(r.Context()), ids)
	if err != nil {
		h.logger.Error("load results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return nil, false
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "no matching results found")
		return nil, false
	}
	return results, true
}
