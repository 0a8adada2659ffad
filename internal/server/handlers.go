package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/tables"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "tablegate is running",
		"docs":    "/docs",
		"api":     "/api/tables",
	})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.routes)
}

// handleHealth pings the database and, when exports are mounted, the
// object store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.db.Ping(r.Context())
	if err == nil && s.exporter != nil {
		err = s.exporter.Ping(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  errs.DetailOf(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	list, err := s.tables.ListTables(r.Context())
	if err != nil {
		writeError(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	cols, err := s.tables.Columns(r.Context(), table)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	req, err := tables.ParsePageRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, table, err)
		return
	}

	page, err := s.tables.Page(r.Context(), table, req)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	rec, err := decodeRecord(r)
	if err != nil {
		writeError(w, r, table, err)
		return
	}

	res, err := s.tables.Insert(r.Context(), table, rec)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	if res.Row == nil {
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":  "row inserted",
			"insertId": res.InsertID,
		})
		return
	}
	writeJSON(w, http.StatusCreated, res.Row)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	rec, err := decodeRecord(r)
	if err != nil {
		writeError(w, r, table, err)
		return
	}

	row, err := s.tables.Update(r.Context(), table, chi.URLParam(r, "id"), rec)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	row, err := s.tables.Delete(r.Context(), table, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "row deleted",
		"deleted": row,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	res, err := s.exporter.Export(r.Context(), table, r.URL.Query().Get("search"))
	s.metrics.ExportDone(err)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	objs, err := s.exporter.List(r.Context(), table)
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, objs)
}

func (s *Server) handleStatExport(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	obj, err := s.exporter.Stat(r.Context(), table, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// decodeRecord reads the request body as one JSON object. An empty body
// decodes to an empty record so the service reports the missing data.
func decodeRecord(r *http.Request) (database.Record, error) {
	var rec database.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid JSON body", err)
	}
	return rec, nil
}
