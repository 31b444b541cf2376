// Package api exposes the running session to operators: a small HTTP
// surface for dashboards and scripts, and an MCP server for agent
// integrations. Both are read-only over the ledger except the explicit
// session clear.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/session"
)

// defaultSearchK bounds /rules/search results when k is not given.
const defaultSearchK = 5

// SearchRetriever abstracts rule search for the presentation layer.
type SearchRetriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Result, error)
}

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Ledger    *session.Ledger
	Retriever SearchRetriever

	// SnapshotTail limits how many transcript entries and alerts
	// GET /session returns. Zero means everything.
	SnapshotTail int
}

// NewAppHandler builds the HTTP routes.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/session", handleGetSession(deps))
	r.Post("/session/clear", handleClearSession(deps))
	r.Get("/rules/search", handleSearchRules(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Ledger.Snapshot(deps.SnapshotTail, deps.SnapshotTail)
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleClearSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Ledger.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSearchRules(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter q is required")
			return
		}

		k := defaultSearchK
		if raw := r.URL.Query().Get("k"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "k must be a positive integer")
				return
			}
			k = parsed
		}

		results, err := deps.Retriever.Retrieve(r.Context(), query)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "rule search failed: %v", err)
			return
		}
		if len(results) > k {
			results = results[:k]
		}
		if results == nil {
			results = []retrieval.Result{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
