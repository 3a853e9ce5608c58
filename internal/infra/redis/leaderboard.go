package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// Leaderboard accumulates live participants' battle points per subject and
// notifies them when a battle of theirs completes.
type Leaderboard struct {
	client redis.UniversalClient
	prefix string
}

func NewLeaderboard(client redis.UniversalClient, prefix string) *Leaderboard {
	return &Leaderboard{client: client, prefix: prefix}
}

// Notification is published on the live participant's channel after a battle.
type Notification struct {
	Type        string    `json:"type"`
	BattleID    string    `json:"battleId"`
	Subject     string    `json:"subject"`
	Points      int       `json:"points"`
	Rank        int       `json:"rank"`
	Won         bool      `json:"won"`
	CompletedAt time.Time `json:"completedAt"`
}

// SaveResult implements app.ResultSink.
func (l *Leaderboard) SaveResult(ctx context.Context, res domain.Result) error {
	live := res.LiveSummary

	if err := l.client.ZIncrBy(ctx, l.boardKey(res.Subject), float64(live.TotalPoints), live.ParticipantID).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	rank := 0
	for i, e := range res.Rankings {
		if e.ParticipantID == live.ParticipantID {
			rank = i + 1
			break
		}
	}
	payload, err := json.Marshal(Notification{
		Type:        "battle.completed",
		BattleID:    res.BattleID,
		Subject:     res.Subject,
		Points:      live.TotalPoints,
		Rank:        rank,
		Won:         rank == 1,
		CompletedAt: res.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := l.client.Publish(ctx, l.UserChannel(live.ParticipantID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Top returns the n best users of subject, highest first.
func (l *Leaderboard) Top(ctx context.Context, subject string, n int64) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	res, err := l.client.ZRevRangeWithScores(ctx, l.boardKey(subject), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Points: int(z.Score),
		})
	}
	return entries, nil
}

// UserChannel is the pub/sub channel that carries a user's notifications.
func (l *Leaderboard) UserChannel(userID string) string {
	return fmt.Sprintf("%s:user:%s", l.prefix, userID)
}

func (l *Leaderboard) boardKey(subject string) string {
	return fmt.Sprintf("%s:leaderboard:%s", l.prefix, strings.ToLower(subject))
}
