package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// ResultStore archives completed battles. It implements app.ResultSink.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, res domain.Result) error {
	winner, ok := res.Winner()
	if !ok {
		return fmt.Errorf("save result %s: no rankings", res.BattleID)
	}
	rankings, err := json.Marshal(res.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}
	history, err := json.Marshal(res.AnswerHistory)
	if err != nil {
		return fmt.Errorf("marshal answer history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO battle_results
			(battle_id, user_id, subject, winner_id, live_points, live_accuracy, rankings, answer_history, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (battle_id) DO NOTHING`,
		res.BattleID, res.LiveSummary.ParticipantID, res.Subject, winner.ParticipantID,
		res.LiveSummary.TotalPoints, res.LiveSummary.Accuracy, string(rankings), string(history), res.CompletedAt)
	if err != nil {
		return fmt.Errorf("save result %s: %w", res.BattleID, err)
	}
	return nil
}

// RecentResults returns the latest results of a user, newest first.
func (s *ResultStore) RecentResults(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT battle_id, subject, live_points, live_accuracy, rankings, answer_history, completed_at
		FROM battle_results
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		var (
			res               domain.Result
			rankings, history []byte
		)
		res.LiveSummary.ParticipantID = userID
		if err := rows.Scan(&res.BattleID, &res.Subject, &res.LiveSummary.TotalPoints, &res.LiveSummary.Accuracy,
			&rankings, &history, &res.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(rankings, &res.Rankings); err != nil {
			return nil, fmt.Errorf("unmarshal rankings: %w", err)
		}
		if err := json.Unmarshal(history, &res.AnswerHistory); err != nil {
			return nil, fmt.Errorf("unmarshal answer history: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
