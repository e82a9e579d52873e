package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/entitlement"
	"github.com/unbuiltapp/unbuilt/internal/gapanalysis"
	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/resultview"
	"github.com/unbuiltapp/unbuilt/internal/search"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

type SearchHandler struct {
	userStore    *store.UserStore
	searchStore  *store.SearchStore
	resultStore  *store.ResultStore
	searchSvc    *search.Service
	entitlements *entitlement.Service
	logger       *slog.Logger
}

func NewSearchHandler(
	us *store.UserStore,
	ss *store.SearchStore,
	rs *store.ResultStore,
	svc *search.Service,
	ent *entitlement.Service,
	logger *slog.Logger,
) *SearchHandler {
	return &SearchHandler{
		userStore:    us,
		searchStore:  ss,
		resultStore:  rs,
		searchSvc:    svc,
		entitlements: ent,
		logger:       logger,
	}
}

// Submit is the single entitlement enforcement point for searches: the quota
// is checked here, before orchestration, for every caller including demo mode.
func (h *SearchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	allowed, err := h.entitlements.CanSearch(user)
	if err != nil {
		h.logger.Error("entitlement check", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "monthly search limit reached, upgrade to continue")
		return
	}

	sr, results, err := h.searchSvc.Submit(r.Context(), user.ID, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "query is required")
		case errors.Is(err, gapanalysis.ErrAnalysisFailed):
			h.logger.Error("gap analysis", "error", err)
			writeError(w, http.StatusInternalServerError, "analysis failed, please try again")
		default:
			h.logger.Error("submit search", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if err := h.entitlements.RecordSearch(user); err != nil {
		h.logger.Error("record search", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"search":  sr,
		"results": results,
	})
}

// Results returns a search's results, optionally filtered, sorted, and
// paginated via query parameters.
func (h *SearchHandler) Results(w http.ResponseWriter, r *http.Request) {
	sr, ok := h.ownedSearch(w, r)
	if !ok {
		return
	}

	results, err := h.resultStore.ListBySearch(sr.ID)
	if err != nil {
		h.logger.Error("list results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	h.writeResultView(w, r, results)
}

func (h *SearchHandler) History(w http.ResponseWriter, r *http.Request) {
	searches, err := h.searchStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list searches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list searches")
		return
	}
	if searches == nil {
		searches = []model.Search{}
	}
	writeJSON(w, http.StatusOK, searches)
}

func (h *SearchHandler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		IsSaved bool `json:"is_saved"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := h.resultStore.GetByID(id)
	if err != nil {
		h.logger.Error("get result", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}
	if result == nil || !h.ownsSearch(r, result.SearchID) {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}

	updated, err := h.resultStore.SetSaved(id, req.IsSaved)
	if err != nil {
		h.logger.Error("set saved", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update result")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *SearchHandler) Saved(w http.ResponseWriter, r *http.Request) {
	results, err := h.resultStore.ListSavedByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list saved", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list saved results")
		return
	}
	h.writeResultView(w, r, results)
}

// Share mints a share token for the search; sharing again rotates the token.
func (h *SearchHandler) Share(w http.ResponseWriter, r *http.Request) {
	sr, ok := h.ownedSearch(w, r)
	if !ok {
		return
	}

	token := uuid.NewString()
	updated, err := h.searchStore.SetShareToken(sr.ID, token)
	if err != nil {
		h.logger.Error("set share token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to share search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"search":      updated,
		"share_token": token,
	})
}

// Shared serves a shared search to anonymous visitors by its token.
func (h *SearchHandler) Shared(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	sr, err := h.searchStore.GetByShareToken(token)
	if err != nil {
		h.logger.Error("get shared search", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sr == nil {
		writeError(w, http.StatusNotFound, "shared search not found")
		return
	}

	results, err := h.resultStore.ListBySearch(sr.ID)
	if err != nil {
		h.logger.Error("list shared results", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"search":  sr,
		"results": results,
	})
}

// ownedSearch resolves the {id} path param to a search owned by the caller.
// Foreign searches are reported as not found.
func (h *SearchHandler) ownedSearch(w http.ResponseWriter, r *http.Request) (*model.Search, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	sr, err := h.searchStore.GetByID(id)
	if err != nil {
		h.logger.Error("get search", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get search")
		return nil, false
	}
	if sr == nil || sr.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "search not found")
		return nil, false
	}
	return sr, true
}

func (h *SearchHandler) ownsSearch(r *http.Request, searchID int64) bool {
	sr, err := h.searchStore.GetByID(searchID)
	return err == nil && sr != nil && sr.UserID == auth.UserID(r.Context())
}

// writeResultView applies filter/sort query params and responds either with
// the plain result list or, when a page is requested, a paginated envelope.
func (h *SearchHandler) writeResultView(w http.ResponseWriter, r *http.Request, results []model.SearchResult) {
	if results == nil {
		results = []model.SearchResult{}
	}

	q := r.URL.Query()
	spec := resultview.FilterSpec{
		Categories:      q["category"],
		Query:           q.Get("q"),
		Feasibility:     q["feasibility"],
		MarketPotential: q["market_potential"],
	}
	spec.MinScore, _ = strconv.Atoi(q.Get("min_score"))
	spec.MaxScore, _ = strconv.Atoi(q.Get("max_score"))

	view := resultview.Sort(resultview.Filter(results, spec), q.Get("sort"))

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		pageResults, totalPages := resultview.Paginate(view, page)
		writeJSON(w, http.StatusOK, map[string]any{
			"results":     pageResults,
			"page":        page,
			"total_pages": totalPages,
			"total":       len(view),
		})
		return
	}

	writeJSON(w, http.StatusOK, view)
}
