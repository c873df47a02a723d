package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/tables"
)

// lookup resolves the {table} path value to a registered resource.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Resource, bool) {
	name := r.PathValue("table")
	res, ok := s.resources[name]
	if !ok {
		NotFound(w, "unknown table "+name, r.URL.Path)
		return nil, false
	}
	return res, true
}

// pathID parses the {id} path value.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		BadRequest(w, "id must be an integer", r.URL.Path)
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status. A nil value
// becomes 204 No Content.
func writeJSON(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult maps repository error kinds to status codes per the API
// contract: not-found to 404, invalid input to 400, everything else to 500.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	s.writeStatus(w, r, http.StatusOK, v, err)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, v)
	case errors.Is(err, tables.ErrNotFound):
		NotFound(w, err.Error(), r.URL.Path)
	case errors.Is(err, tables.ErrInvalidArgument),
		errors.Is(err, tables.ErrUnsupportedType),
		errors.Is(err, tables.ErrFeatureDisabled):
		BadRequest(w, err.Error(), r.URL.Path)
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		InternalError(w, "internal error", r.URL.Path)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := tables.ListOptions{
		IncludeDeleted: q.Get("include_deleted") == "true",
		OrderBy:        q.Get("order_by"),
		Order:          q.Get("order"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	rows, err := res.List(r.Context(), opts)
	s.writeResult(w, r, rows, err)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	opts := tables.GetOptions{IncludeDeleted: r.URL.Query().Get("include_deleted") == "true"}
	row, err := res.Get(r.Context(), id, opts)
	s.writeResult(w, r, row, err)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	row, err := res.Create(r.Context(), body)
	s.writeStatus(w, r, http.StatusCreated, row, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	row, err := res.Update(r.Context(), id, patch)
	s.writeResult(w, r, row, err)
}

func (s *Server) handleUpdatePriority(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Priority *int64 `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Priority == nil {
		BadRequest(w, "body must carry a priority field", r.URL.Path)
		return
	}

	row, err := res.UpdatePriority(r.Context(), id, *body.Priority)
	s.writeResult(w, r, row, err)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	row, err := res.Restore(r.Context(), id)
	s.writeResult(w, r, row, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	row, err := res.Delete(r.Context(), id)
	s.writeResult(w, r, row, err)
}
