package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/effects"
	"github.com/koustreak/dbbrowse/internal/errs"
)

const maxBodyBytes = 1 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- connections ---

func (s *Server) listConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Connections())
}

type createConnectionRequest struct {
	Name             string `json:"name"`
	Dialect          string `json:"dialect"`
	ConnectionString string `json:"connectionString"`
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := database.ParseDialect(req.Dialect)
	if err != nil {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid dialect", err))
		return
	}

	info, tables, err := s.orch.Connect(r.Context(), req.Name, database.ConnectionConfig{
		Dialect:          d,
		ConnectionString: req.ConnectionString,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"connection": info, "tables": tables})
}

func (s *Server) renameConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	info, err := s.orch.RenameConnection(chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteConnection(chi.URLParam(r, "id"), r.URL.Query().Get("active")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tables ---

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.orch.ListTables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) openTable(w http.ResponseWriter, r *http.Request) {
	table, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	entry, err := s.orch.OpenTable(r.Context(), chi.URLParam(r, "id"), table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// rowsResponse is one page as shown to the user, after filter and sort.
type rowsResponse struct {
	Rows    []database.DataRow `json:"rows"`
	Offset  int                `json:"offset"`
	HasMore bool               `json:"hasMore"`
	Total   *int               `json:"total,omitempty"`
}

func (s *Server) tableRows(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "id")
	table, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var resp rowsResponse
	if term := q.Get("q"); strings.TrimSpace(term) != "" {
		res, err := s.orch.Search(r.Context(), connID, table, term, offset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp = rowsResponse{Rows: res.Rows, Offset: res.Offset, HasMore: res.HasMore, Total: &res.Total}
	} else {
		entry, err := s.orch.FetchPage(r.Context(), connID, table, offset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp = rowsResponse{Rows: entry.Rows, Offset: entry.Offset, HasMore: entry.HasMore}
	}

	resp.Rows = s.orch.View(resp.Rows, effects.NewViewState(q.Get("filter"), q.Get("sort"), q.Get("dir")))
	if resp.Rows == nil {
		resp.Rows = []database.DataRow{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearConnectionCache(w http.ResponseWriter, r *http.Request) {
	s.orch.ClearConnectionCache(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearTableCache(w http.ResponseWriter, r *http.Request) {
	table, ok := s.resolveTable(w, r)
	if !ok {
		return
	}
	s.orch.ClearTableCache(chi.URLParam(r, "id"), table)
	w.WriteHeader(http.StatusNoContent)
}

// --- queries ---

func (s *Server) executeQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.orch.ExecuteQuery(r.Context(), chi.URLParam(r, "id"), req.SQL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.History(chi.URLParam(r, "id"), limit))
}

// --- helpers ---

// resolveTable looks {table} ("name" or "schema.name") up in the catalog, so
// a table is cached under one key whichever way it was named.
func (s *Server) resolveTable(w http.ResponseWriter, r *http.Request) (database.TableInfo, bool) {
	table, err := s.orch.ResolveTable(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, err)
		return database.TableInfo{}, false
	}
	return table, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("invalid number %q", v))
	}
	return n, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, nil)
	}

	resp := errorResponse{Error: err.Error(), Kind: errs.KindOf(err).String()}
	var e *errs.Error
	if errors.As(err, &e) {
		resp.Code = e.Code
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindThrottled:
		return http.StatusTooManyRequests
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindQueryFailed:
		return http.StatusUnprocessableEntity
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
