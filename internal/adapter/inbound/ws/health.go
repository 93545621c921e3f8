package ws

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
)

// healthResponse is the JSON body returned by /mcp_endpoint/health.
type healthResponse struct {
	Status      string          `json:"status"`
	Connections *registry.Stats `json:"connections,omitempty"`
}

// healthHandler returns GET /mcp_endpoint/health?key=<static>. A matching key
// yields the registry's current occupancy; any other key (or none) yields
// key_error without leaking whether connections exist.
func healthHandler(reg *registry.Registry, key string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		supplied := r.URL.Query().Get("key")
		if key == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(healthResponse{Status: "key_error"})
			return
		}

		stats := reg.Stats()
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "success", Connections: &stats})
	})
}

// rootInfo is the JSON body returned by GET /mcp_endpoint/.
type rootInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// rootHandler answers GET /mcp_endpoint/ with a small identifying payload.
func rootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rootInfo{
			Message: "MCP Endpoint Router",
			Version: "1.0.0",
			Status:  "running",
		})
	})
}

// redirectRootHandler answers GET / by redirecting to /mcp_endpoint/.
func redirectRootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/mcp_endpoint/", http.StatusFound)
	})
}
