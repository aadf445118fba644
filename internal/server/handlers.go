package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tberndt/labelq/internal/alloc"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

type sampleRequest struct {
	Limit   int      `json:"limit"`
	Exclude []string `json:"exclude,omitempty"`
}

type claimRequest struct {
	// Key claims one specific item; empty means batch self-assign.
	Key   string `json:"key,omitempty"`
	Force bool   `json:"force,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type releaseRequest struct {
	Key string `json:"key"`
	// Status moves the item instead of releasing it: "approved", "deleted"
	// or "skipped". Empty means a plain release back to the pool.
	Status string `json:"status,omitempty"`
}

type itemsResponse struct {
	Items    []models.WorkItem `json:"items"`
	PageInfo store.PageInfo    `json:"page_info"`
}

type errorResponse struct {
	Error       string  `json:"error"`
	Holder      string  `json:"holder,omitempty"`
	HolderSince *string `json:"holder_since,omitempty"`
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req sampleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	exclude := make(map[string]bool, len(req.Exclude))
	for _, key := range req.Exclude {
		exclude[key] = true
	}

	items, err := s.engine.Sample(r.Context(), identity.Reviewer, req.Limit, exclude)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Key != "" {
		item, err := s.engine.ClaimSingle(r.Context(), req.Key, identity.Reviewer, req.Force, identity.Roles)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, item)
		return
	}

	if req.Limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "either key or a positive limit is required")
		return
	}
	items, err := s.engine.SelfAssignBatch(r.Context(), identity.Reviewer, req.Limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req releaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	var (
		item *models.WorkItem
		err  error
	)
	if req.Status == "" {
		item, err = s.engine.Release(r.Context(), req.Key)
	} else {
		status := models.Status(req.Status)
		if !status.Valid() || status == models.StatusDraft {
			s.writeError(w, http.StatusBadRequest, "status must be approved, deleted or skipped")
			return
		}
		item, err = s.engine.Transition(r.Context(), req.Key, status, identity.Reviewer)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := store.Filters{
		Dataset:    q.Get("dataset"),
		AssignedTo: q.Get("assigned_to"),
		Unassigned: q.Get("unassigned") == "true",
		Tags:       q["tag"],
		Text:       q.Get("q"),
	}
	for _, raw := range q["status"] {
		status := models.Status(raw)
		if !status.Valid() {
			continue
		}
		filters.Statuses = append(filters.Statuses, status)
	}

	sort := store.Sort{Field: store.SortByID, Desc: q.Get("desc") == "true"}
	if f := q.Get("sort"); f != "" {
		field := store.SortField(f)
		if !field.Valid() {
			s.writeError(w, http.StatusBadRequest, "unknown sort field "+f)
			return
		}
		sort.Field = field
	}

	page := store.Page{
		Number: intParam(q.Get("page"), 1),
		Size:   intParam(q.Get("page_size"), s.pageSizeMax),
	}
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Size < s.pageSizeMin {
		page.Size = s.pageSizeMin
	}
	if page.Size > s.pageSizeMax {
		page.Size = s.pageSizeMax
	}

	items, info, err := s.backlog.List(r.Context(), filters, sort, page)
	if err != nil && !errors.Is(err, store.ErrCapacityExceeded) {
		s.respondError(w, err)
		return
	}
	if errors.Is(err, store.ErrCapacityExceeded) {
		s.logger.Warn("list results truncated by fetch cap", "path", r.URL.Path)
	}
	if items == nil {
		items = []models.WorkItem{}
	}
	s.writeJSON(w, http.StatusOK, itemsResponse{Items: items, PageInfo: info})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondError maps engine and store errors to HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		resp := errorResponse{Error: conflict.Error(), Holder: conflict.Holder}
		if conflict.HolderSince != nil {
			since := conflict.HolderSince.Format("2006-01-02T15:04:05Z07:00")
			resp.HolderSince = &since
		}
		s.writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, alloc.ErrPermission):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
