package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/financio/internal/api/middleware"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Register mounts every endpoint on mux.
func Register(mux *http.ServeMux, analyses *AnalysesHandler, credits *CreditsHandler) {
	// On-demand analysis; the root route keeps the original function URL working.
	mux.HandleFunc("POST /{$}", analyses.RunAnalysis)
	mux.HandleFunc("POST /api/analyses", analyses.RunAnalysis)
	mux.HandleFunc("GET /api/analyses", analyses.ListAnalyses)
	mux.HandleFunc("GET /api/analyses/{id}", analyses.GetAnalysis)

	mux.HandleFunc("GET /api/credits/{userId}", credits.GetCredits)
	mux.HandleFunc("POST /api/credits/{userId}", credits.ProvisionCredits)

	mux.HandleFunc("GET /health", Health)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// parseLimit reads the limit query parameter, clamped to [1, maxListLimit].
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxListLimit), true
}
