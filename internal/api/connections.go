package api

import "net/http"

type connectionEntry struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

func handleListConnections(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	names := deps.Registry.ListConnections()
	connections := make([]connectionEntry, 0, len(names))
	for _, name := range names {
		connections = append(connections, connectionEntry{
			Name:   name,
			Driver: deps.Registry.Driver(name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": connections})
}
