package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"ifrs17-training-service/internal/domain"
)

const defaultLeaderboardLimit = 10

// LeaderboardSource serves the overall top-score ranking.
type LeaderboardSource interface {
	TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

type LeaderboardHandler struct {
	source LeaderboardSource
}

func NewLeaderboardHandler(source LeaderboardSource) *LeaderboardHandler {
	return &LeaderboardHandler{source: source}
}

func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	entries, err := h.source.TopScores(r.Context(), limit)
	if err != nil {
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
