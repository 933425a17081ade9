package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vizql/vizql/internal/querylang"
)

type queryRequest struct {
	Query      string `json:"query"`
	Connection string `json:"connection"`
}

type queryResponse struct {
	Columns      []string            `json:"columns"`
	Rows         [][]any             `json:"rows"`
	RowCount     int                 `json:"row_count"`
	Truncated    bool                `json:"truncated"`
	Chart        querylang.ChartSpec `json:"chart,omitempty"`
	CreatedTable string              `json:"created_table,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	request, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	result, err := deps.Dispatcher.Dispatch(r.Context(), request.Query, found, request.Connection)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowCount:     result.RowCount,
		Truncated:    result.Truncated,
		Chart:        result.Chart,
		CreatedTable: result.CreatedTable,
	})
}

func handleSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	request, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	result, err := deps.Dispatcher.DispatchSQL(r.Context(), request.Query, found, request.Connection)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
	})
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return queryRequest{}, false
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false, nil)
		return queryRequest{}, false
	}
	return request, true
}
