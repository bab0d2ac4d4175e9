package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"finledger/internal/core"
)

// ownerIDHeader carries the authenticated user identity, set by the auth
// layer in front of this service. Handlers only check well-formedness.
const ownerIDHeader = "X-User-ID"

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ownerIDHeader))
	if !core.ValidID(id) {
		writeError(w, http.StatusBadRequest, "missing or malformed "+ownerIDHeader+" header")
		return "", false
	}
	return id, true
}

type draftRequest struct {
	Date              string  `json:"date"`
	Description       string  `json:"description"`
	Amount            float64 `json:"amount"`
	CategoryID        string  `json:"categoryId"`
	IsRecurrent       bool    `json:"isRecurrent"`
	RecurrenceType    string  `json:"recurrenceType"`
	RecurrenceEndDate string  `json:"recurrenceEndDate"`
}

// patchRequest mirrors core.Patch: only these four fields are mutable, and
// unknown keys are rejected at decode time.
type patchRequest struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Date        *string  `json:"date"`
	CategoryID  *string  `json:"categoryId"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	case http.MethodGet:
		s.handleListMonth(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req draftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	views, err := s.service.Create(r.Context(), owner, core.Draft{
		Date:              req.Date,
		Description:       req.Description,
		Amount:            req.Amount,
		CategoryID:        req.CategoryID,
		IsRecurrent:       req.IsRecurrent,
		RecurrenceType:    core.RecurrenceType(req.RecurrenceType),
		RecurrenceEndDate: req.RecurrenceEndDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeData(w, http.StatusCreated, "transaction created", views)
}

func (s *Server) handleListMonth(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing year")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid or missing month")
		return
	}

	key := s.monthKey(owner, year, month)
	if views, hit := s.monthCache.Get(key); hit {
		writeData(w, http.StatusOK, "", views)
		return
	}

	views, err := s.service.ListMonth(r.Context(), owner, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.monthCache.Set(key, views)
	writeData(w, http.StatusOK, "", views)
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/transactions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTransaction(w, r, id)
	case http.MethodPut:
		s.handleUpdateTransaction(w, r, id)
	case http.MethodDelete:
		s.handleDeleteTransaction(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	view, err := s.service.Get(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", view)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req patchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := core.Patch{
		Description: req.Description,
		Amount:      req.Amount,
		Date:        req.Date,
		CategoryID:  req.CategoryID,
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "empty update")
		return
	}

	propagate := queryFlag(r, "updateAll")
	views, err := s.service.Update(r.Context(), owner, id, patch, propagate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeData(w, http.StatusOK, "transaction updated", views)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	deleteAll := queryFlag(r, "deleteAll")
	count, err := s.service.Delete(r.Context(), owner, id, deleteAll)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeData(w, http.StatusOK, "transaction deleted", map[string]int{"deletedCount": count})
}

func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
