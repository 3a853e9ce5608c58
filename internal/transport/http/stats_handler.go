package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// LeaderboardReader serves the per-subject standings.
type LeaderboardReader interface {
	Top(ctx context.Context, subject string, n int64) ([]domain.LeaderboardEntry, error)
}

// ResultHistory serves archived battle results.
type ResultHistory interface {
	RecentResults(ctx context.Context, userID string, limit int) ([]domain.Result, error)
}

// StatsHandler answers read-only queries over finished battles. Either store
// may be nil, in which case its endpoint reports 503.
type StatsHandler struct {
	board   LeaderboardReader
	history ResultHistory
	logger  *slog.Logger
}

func NewStatsHandler(board LeaderboardReader, history ResultHistory, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{board: board, history: history, logger: logger}
}

// ServeLeaderboard handles GET /leaderboard?subject=&limit=.
func (h *StatsHandler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if h.board == nil {
		http.Error(w, "leaderboard not configured", http.StatusServiceUnavailable)
		return
	}
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		http.Error(w, "missing subject", http.StatusBadRequest)
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.board.Top(r.Context(), subject, int64(limit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats: leaderboard", "subject", subject, "error", err)
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"subject": strings.ToLower(subject), "entries": nonNil(entries)})
}

// ServeResults handles GET /results?userId=&limit=.
func (h *StatsHandler) ServeResults(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if h.history == nil {
		http.Error(w, "result history not configured", http.StatusServiceUnavailable)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}

	results, err := h.history.RecentResults(r.Context(), userID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats: results", "user_id", userID, "error", err)
		http.Error(w, "results unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"userId": userID, "results": nonNil(results)})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func listLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return min(n, maxListLimit), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
