package api

import (
	"net/http"
	"strings"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	includeStats := queryFlag(r, "include_stats")
	connection := strings.TrimSpace(r.URL.Query().Get("connection"))

	tables, err := deps.Introspector.Describe(r.Context(), found, connection, includeStats)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func handleSchemaTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	found, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	connection := strings.TrimSpace(r.URL.Query().Get("connection"))
	names, err := deps.Introspector.TableNames(r.Context(), found, connection)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": names})
}

func queryFlag(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
