package postgres

import (
	"context"
	"fmt"

	"ifrs17-training-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore records one row per module completion and serves the overall
// leaderboard from them.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SubmitModuleResult(ctx context.Context, identity domain.Identity, result domain.ModuleResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO module_results
			(user_id, display_name, module_id, module_title, score, perfect, elapsed_seconds, questions_answered, questions_correct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		identity.ID, identity.Name,
		result.ModuleID, result.ModuleTitle, result.Score, result.Perfect,
		result.ElapsedSeconds, result.QuestionsAnswered, result.QuestionsCorrect,
	)
	if err != nil {
		return fmt.Errorf("submit module result: %w", err)
	}
	return nil
}

// TopScores returns the highest-scoring users, keeping each user's best
// score per module so replays do not inflate totals.
func (s *ResultStore) TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, max(display_name) AS display_name,
		       sum(best_score) AS total_score, count(*) AS modules
		FROM (
			SELECT user_id, max(display_name) AS display_name,
			       module_id, max(score) AS best_score
			FROM module_results
			GROUP BY user_id, module_id
		) per_module
		GROUP BY user_id
		ORDER BY total_score DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.TotalScore, &entry.Modules); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	return entries, nil
}
