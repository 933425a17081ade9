package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vizql/vizql/internal/observability"
	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/tabular"
)

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Tables    []string  `json:"tables"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	created, err := deps.Sessions.Create(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	tables, err := deps.Sessions.ListTables(created.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: created.ID,
		CreatedAt: created.CreatedAt,
		Tables:    tables,
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	tables, err := deps.Sessions.ListTables(found.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: found.ID,
		CreatedAt: found.CreatedAt,
		Tables:    tables,
	})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("session"))
	if err := deps.Sessions.Delete(id); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "deleted": true})
}

func handleListSessionTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	tables, err := deps.Sessions.ListTables(found.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func handleUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	maxBytes := deps.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", "invalid multipart upload", false, map[string]any{"details": err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", "read upload body", false, map[string]any{"details": err.Error()})
		return
	}

	table, format, err := tabular.DecodeFile(header.Filename, data)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	// An explicit table_name field wins; otherwise the filename is used with
	// its extension stripped so it does not end up inside the table name.
	rawName := strings.TrimSpace(r.FormValue("table_name"))
	if rawName == "" {
		rawName = header.Filename
		if dot := strings.LastIndex(rawName, "."); dot > 0 {
			rawName = rawName[:dot]
		}
	}

	name, err := deps.Sessions.MaterializeTable(r.Context(), found.ID, rawName, table)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	observability.UploadAccepted(format)
	writeJSON(w, http.StatusCreated, map[string]any{
		"table_name": name,
		"format":     format,
		"row_count":  len(table.Rows),
		"columns":    table.ColumnNames(),
	})
}

func sessionFromRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(r.PathValue("session"))
	found, ok := deps.Sessions.Get(id)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found or expired", false, map[string]any{"session_id": id})
		return nil, false
	}
	return found, true
}
