package battle

import (
	"sort"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

func buildResult(s *Session) domain.Result {
	rankings := make([]domain.RankingEntry, 0, len(s.participants))
	for _, p := range s.participants {
		sc := s.scoreboard[p.ID]
		rankings = append(rankings, domain.RankingEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Kind:          p.Kind,
			TotalPoints:   sc.TotalPoints,
			CorrectCount:  sc.CorrectCount,
		})
	}
	// Stable: equal totals keep registration order.
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].TotalPoints > rankings[j].TotalPoints
	})

	return domain.Result{
		BattleID:      s.id,
		Subject:       s.cfg.Subject,
		Rankings:      rankings,
		LiveSummary:   summarize(s.liveID, s.scoreboard[s.liveID], s.history, len(s.rounds)),
		AnswerHistory: append([]domain.AnswerRecord(nil), s.history...),
		CompletedAt:   s.now(),
	}
}

func summarize(liveID string, sc domain.Score, history []domain.AnswerRecord, totalRounds int) domain.LiveSummary {
	sum := domain.LiveSummary{
		ParticipantID: liveID,
		MaxStreak:     sc.MaxStreak,
		TotalPoints:   sc.TotalPoints,
	}
	if totalRounds > 0 {
		sum.Accuracy = float64(sc.CorrectCount) / float64(totalRounds)
	}
	if len(history) > 0 {
		used := 0
		for _, r := range history {
			used += r.TimeUsedSeconds
		}
		sum.AverageTimeUsed = float64(used) / float64(len(history))
	}
	return sum
}
