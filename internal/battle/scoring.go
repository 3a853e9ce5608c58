package battle

import (
	"github.com/shopspring/decimal"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// ComboMultiplier maps a consecutive-correct streak onto a score multiplier.
func ComboMultiplier(streak int) float64 {
	switch {
	case streak >= 7:
		return 3
	case streak >= 5:
		return 2.5
	case streak >= 3:
		return 2
	case streak >= 2:
		return 1.5
	default:
		return 1
	}
}

// ScoreInput is everything the scoring rules need for one live resolution.
type ScoreInput struct {
	Correct          bool
	Skipped          bool
	RemainingSeconds int
	RoundTimeLimit   int
	DoublePoints     bool
	Score            domain.Score
}

// ScoreOutcome is the resolution of one round for the live participant.
type ScoreOutcome struct {
	PointsAwarded   int
	ComboMultiplier float64
	DoubleApplied   bool
	Score           domain.Score
}

// TimeBonus is floor(remaining/limit * 50), computed in integers.
func TimeBonus(remaining, limit int) int {
	if limit <= 0 || remaining <= 0 {
		return 0
	}
	if remaining > limit {
		remaining = limit
	}
	return remaining * maxTimeBonus / limit
}

// Score applies the live scoring rules. Skips are neutral: no points and the
// streak is neither reset nor extended. Every intermediate point value is
// rounded half-up as it is assigned.
func Score(in ScoreInput) ScoreOutcome {
	sc := in.Score

	if in.Skipped {
		return ScoreOutcome{ComboMultiplier: 1, Score: sc}
	}

	streak := 0
	if in.Correct {
		streak = sc.CurrentStreak + 1
	}
	combo := ComboMultiplier(streak)

	var points int
	if in.Correct {
		raw := decimal.NewFromInt(int64(basePoints + TimeBonus(in.RemainingSeconds, in.RoundTimeLimit)))
		points = int(raw.Mul(decimal.NewFromFloat(combo)).Round(0).IntPart())
	}

	doubled := in.DoublePoints && in.Correct
	if doubled {
		points *= 2
	}

	sc.CurrentStreak = streak
	if streak > sc.MaxStreak {
		sc.MaxStreak = streak
	}
	sc.TotalPoints += points
	if in.Correct {
		sc.CorrectCount++
	}

	return ScoreOutcome{
		PointsAwarded:   points,
		ComboMultiplier: combo,
		DoubleApplied:   doubled,
		Score:           sc,
	}
}
