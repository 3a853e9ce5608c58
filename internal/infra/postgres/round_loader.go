package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// RoundLoader loads a subject's question pool from Postgres.
type RoundLoader struct {
	pool *pgxpool.Pool
}

func NewRoundLoader(pool *pgxpool.Pool) *RoundLoader {
	return &RoundLoader{pool: pool}
}

// LoadRounds returns every question of subject. An empty difficulty matches all
// difficulties.
func (l *RoundLoader) LoadRounds(ctx context.Context, subject, difficulty string) ([]domain.Round, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, subject, difficulty, prompt, options, correct_option_index, explanation
		FROM questions
		WHERE lower(subject) = lower($1) AND ($2 = '' OR lower(difficulty) = lower($2))
		ORDER BY id`, subject, difficulty)
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		var (
			r       domain.Round
			options []byte
		)
		if err := rows.Scan(&r.ID, &r.Subject, &r.Difficulty, &r.Prompt, &options, &r.CorrectOptionIndex, &r.Explanation); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if err := json.Unmarshal(options, &r.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %s: %w", r.ID, err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}
	return rounds, nil
}
