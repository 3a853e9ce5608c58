package battle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

type staticSource struct {
	rounds []domain.Round
	err    error
	calls  int
}

func (s *staticSource) FetchRounds(_ context.Context, _, _ string, _ int) ([]domain.Round, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r.Clone())
	}
	return out, nil
}

func makeRounds(prefix string, n int) []domain.Round {
	rounds := make([]domain.Round, 0, n)
	for i := 0; i < n; i++ {
		rounds = append(rounds, domain.Round{
			ID:                 fmt.Sprintf("%s%d", prefix, i+1),
			Subject:            "physics",
			Prompt:             fmt.Sprintf("question %d", i+1),
			Options:            []string{"a", "b", "c", "d"},
			CorrectOptionIndex: i % 4,
		})
	}
	return rounds
}

var (
	perfectBot  = domain.SkillProfile{Accuracy: 1, SpeedRatio: domain.SpeedRange{Min: 0.5, Max: 0.5}}
	hopelessBot = domain.SkillProfile{Accuracy: 0, SpeedRatio: domain.SpeedRange{Min: 0.5, Max: 0.5}}
	fixedClock  = func() time.Time { return time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC) }
)

// lobby returns a session seated with one live participant and the given bots.
func lobby(t *testing.T, cfg battle.Config, profiles ...domain.SkillProfile) *battle.Session {
	t.Helper()
	s := battle.NewSession("battle-1", battle.WithRandom(&seqRandom{vals: []float64{0}}), battle.WithClock(fixedClock))
	return seat(t, s, cfg, profiles...)
}

func seat(t *testing.T, s *battle.Session, cfg battle.Config, profiles ...domain.SkillProfile) *battle.Session {
	t.Helper()
	require.NoError(t, s.Configure(cfg))
	bots, err := battle.NewBots(profiles)
	require.NoError(t, err)
	require.NoError(t, s.Seat(domain.Participant{ID: "u1", DisplayName: "Sam", Kind: domain.ParticipantLive}, bots))
	return s
}

// started returns a session sitting in the first round.
func started(t *testing.T, cfg battle.Config, rounds []domain.Round, profiles ...domain.SkillProfile) *battle.Session {
	t.Helper()
	s := lobby(t, cfg, profiles...)
	require.NoError(t, s.StartCountdown(context.Background(), &staticSource{rounds: rounds}))
	runToRound(t, s, 0)
	return s
}

func runToRound(t *testing.T, s *battle.Session, index int) {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if s.Stage() == domain.StageInRound && s.Snapshot().CurrentRoundIndex == index {
			return
		}
		require.True(t, s.Tick(), "session stalled in %s", s.Stage())
	}
	t.Fatalf("round %d never started", index)
}

func runToEnd(t *testing.T, s *battle.Session) domain.Result {
	t.Helper()
	for i := 0; i < 10_000 && s.Stage() != domain.StageSessionComplete; i++ {
		require.True(t, s.Tick(), "session stalled in %s", s.Stage())
	}
	res, ok := s.Result()
	require.True(t, ok, "session did not complete")
	return res
}

func answer(t *testing.T, s *battle.Session, correct bool) domain.AnswerRecord {
	t.Helper()
	r := s.Rounds()[s.Snapshot().CurrentRoundIndex]
	idx := r.CorrectOptionIndex
	if !correct {
		idx = (idx + 1) % len(r.Options)
	}
	rec, err := s.SubmitAnswer(idx)
	require.NoError(t, err)
	return rec
}

func config(rounds, seconds int) battle.Config {
	return battle.Config{Subject: "physics", Difficulty: "medium", RoundCount: rounds, PerRoundSeconds: seconds}
}

func TestSession_PerfectRunAgainstOneBot(t *testing.T) {
	s := started(t, config(3, 20), makeRounds("r", 3), perfectBot)

	for i, want := range []struct {
		points int
		combo  float64
	}{{150, 1}, {225, 1.5}, {300, 2}} {
		runToRound(t, s, i)
		rec := answer(t, s, true)
		assert.Equal(t, want.points, rec.PointsAwarded, "round %d", i)
		assert.Equal(t, want.combo, rec.ComboMultiplier, "round %d", i)
		require.Len(t, rec.BotOutcomes, 1)
		assert.Equal(t, 125, rec.BotOutcomes[0].PointsAwarded)
	}

	res := runToEnd(t, s)
	require.Len(t, res.Rankings, 2)
	assert.Equal(t, "u1", res.Rankings[0].ParticipantID)
	assert.Equal(t, 675, res.Rankings[0].TotalPoints)
	assert.Equal(t, "bot-1", res.Rankings[1].ParticipantID)
	assert.Equal(t, 375, res.Rankings[1].TotalPoints)

	winner, ok := res.Winner()
	require.True(t, ok)
	assert.Equal(t, "u1", winner.ParticipantID)

	assert.Equal(t, domain.LiveSummary{ParticipantID: "u1", Accuracy: 1, MaxStreak: 3, AverageTimeUsed: 0, TotalPoints: 675}, res.LiveSummary)
	assert.Len(t, res.AnswerHistory, 3)
	assert.Equal(t, fixedClock(), res.CompletedAt)
}

func TestSession_SkipIsNeutralForTheStreak(t *testing.T) {
	s := started(t, config(3, 20), makeRounds("r", 3), perfectBot)

	answer(t, s, true)
	runToRound(t, s, 1)
	require.NoError(t, s.UsePowerUp(domain.PowerUpSkip))
	require.Equal(t, domain.StageRoundResolved, s.Stage(), "skip resolves the round at once")

	snap := s.Snapshot()
	require.NotNil(t, snap.LastAnswerRecord)
	skipped := *snap.LastAnswerRecord
	assert.True(t, skipped.WasSkipped)
	assert.Equal(t, domain.TriggerSkip, skipped.Trigger)
	assert.Equal(t, 0, skipped.PointsAwarded)
	assert.Equal(t, -1, skipped.ChosenOptionIndex)
	assert.Equal(t, 1, snap.Scoreboard["u1"].CurrentStreak)
	assert.Equal(t, 0, snap.PowerUps.Remaining[domain.PowerUpSkip])
	assert.Len(t, skipped.BotOutcomes, 1, "bots still answer a skipped round")

	runToRound(t, s, 2)
	require.ErrorIs(t, s.UsePowerUp(domain.PowerUpSkip), domain.ErrPowerUpUnavailable)
	rec := answer(t, s, true)
	assert.Equal(t, 225, rec.PointsAwarded, "streak continues across the skip")

	res := runToEnd(t, s)
	assert.Equal(t, 375, res.LiveSummary.TotalPoints)
	assert.Equal(t, 2, res.LiveSummary.MaxStreak)
}

func TestSession_TimeoutResetsStreak(t *testing.T) {
	s := started(t, config(2, 5), makeRounds("r", 2), hopelessBot)

	answer(t, s, true)
	runToRound(t, s, 1)
	for i := 0; i < 4; i++ {
		require.True(t, s.Tick())
		require.Equal(t, domain.StageInRound, s.Stage())
	}
	require.True(t, s.Tick())
	require.Equal(t, domain.StageRoundResolved, s.Stage())

	rec := s.History()[1]
	assert.Equal(t, domain.TriggerTimeout, rec.Trigger)
	assert.Equal(t, -1, rec.ChosenOptionIndex)
	assert.False(t, rec.Correct)
	assert.Equal(t, 0, rec.PointsAwarded)
	assert.Equal(t, 5, rec.TimeUsedSeconds)
	assert.Equal(t, 0, s.Snapshot().Scoreboard["u1"].CurrentStreak)
	assert.Equal(t, 1, s.Snapshot().Scoreboard["u1"].MaxStreak)
}

func TestSession_DoublePoints(t *testing.T) {
	tests := map[string]struct {
		correct bool
		points  int
	}{
		"correct answer is doubled":          {correct: true, points: 300},
		"incorrect answer still consumes it": {correct: false, points: 0},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := started(t, config(2, 20), makeRounds("r", 2), hopelessBot)

			require.NoError(t, s.UsePowerUp(domain.PowerUpDoublePoints))
			assert.True(t, s.Snapshot().PowerUps.IsActive(domain.PowerUpDoublePoints))

			rec := answer(t, s, tt.correct)
			assert.Equal(t, tt.points, rec.PointsAwarded)
			assert.Equal(t, tt.correct, rec.DoublePoints)

			snap := s.Snapshot()
			assert.Empty(t, snap.PowerUps.ActiveEffects, "effect ends with the round")
			assert.Equal(t, 0, snap.PowerUps.Remaining[domain.PowerUpDoublePoints])

			runToRound(t, s, 1)
			rec = answer(t, s, true)
			assert.False(t, rec.DoublePoints, "effect does not carry into the next round")
		})
	}
}

func TestSession_FreezeTimer(t *testing.T) {
	s := started(t, config(1, 20), makeRounds("r", 1), hopelessBot)

	for i := 0; i < 3; i++ {
		s.Tick()
	}
	require.Equal(t, 17, s.Snapshot().Timer.RemainingSeconds)

	require.NoError(t, s.UsePowerUp(domain.PowerUpFreezeTimer))
	snap := s.Snapshot()
	assert.True(t, snap.Timer.IsFrozen)
	assert.Equal(t, 10, snap.Timer.FreezeRemaining)
	assert.Equal(t, []domain.PowerUpKind{domain.PowerUpFreezeTimer}, snap.PowerUps.ActiveEffects)

	for i := 0; i < 10; i++ {
		require.Equal(t, 17, s.Snapshot().Timer.RemainingSeconds, "frozen tick %d", i)
		s.Tick()
	}
	snap = s.Snapshot()
	assert.False(t, snap.Timer.IsFrozen)
	assert.Equal(t, 17, snap.Timer.RemainingSeconds)
	assert.Empty(t, snap.PowerUps.ActiveEffects)

	s.Tick()
	assert.Equal(t, 16, s.Snapshot().Timer.RemainingSeconds)
	require.ErrorIs(t, s.UsePowerUp(domain.PowerUpFreezeTimer), domain.ErrPowerUpUnavailable)

	rec := answer(t, s, true)
	assert.Equal(t, 4, rec.TimeUsedSeconds, "frozen seconds are not counted as used")
}

func TestSession_FreezeAndDoublePointsInOneRound(t *testing.T) {
	s := started(t, config(2, 20), makeRounds("r", 2), hopelessBot)
	for i := 0; i < 3; i++ {
		s.Tick()
	}

	require.NoError(t, s.UsePowerUp(domain.PowerUpDoublePoints))
	require.NoError(t, s.UsePowerUp(domain.PowerUpFreezeTimer), "freeze is allowed while doublePoints is pending")
	snap := s.Snapshot()
	assert.Equal(t, []domain.PowerUpKind{domain.PowerUpDoublePoints, domain.PowerUpFreezeTimer}, snap.PowerUps.ActiveEffects)
	assert.Equal(t, 0, snap.PowerUps.Remaining[domain.PowerUpDoublePoints])
	assert.Equal(t, 0, snap.PowerUps.Remaining[domain.PowerUpFreezeTimer])

	for i := 0; i < 10; i++ {
		require.True(t, s.Snapshot().Timer.IsFrozen, "frozen tick %d", i)
		require.Equal(t, 17, s.Snapshot().Timer.RemainingSeconds)
		s.Tick()
	}
	snap = s.Snapshot()
	assert.False(t, snap.Timer.IsFrozen)
	assert.Equal(t, []domain.PowerUpKind{domain.PowerUpDoublePoints}, snap.PowerUps.ActiveEffects, "doublePoints outlives the freeze")

	// (100 + floor(17/20*50)) * 2
	rec := answer(t, s, true)
	assert.True(t, rec.DoublePoints)
	assert.Equal(t, 284, rec.PointsAwarded)
	assert.Empty(t, s.Snapshot().PowerUps.ActiveEffects)
}

func TestSession_FreezeIsClampedToRoundLimit(t *testing.T) {
	s := started(t, config(1, 5), makeRounds("r", 1), hopelessBot)
	require.NoError(t, s.UsePowerUp(domain.PowerUpFreezeTimer))
	assert.Equal(t, 5, s.Snapshot().Timer.FreezeRemaining)
}

func TestSession_AnswerInsideFreezeCancelsIt(t *testing.T) {
	s := started(t, config(2, 20), makeRounds("r", 2), hopelessBot)
	require.NoError(t, s.UsePowerUp(domain.PowerUpFreezeTimer))
	s.Tick()

	answer(t, s, true)
	snap := s.Snapshot()
	assert.False(t, snap.Timer.IsFrozen)
	assert.Empty(t, snap.PowerUps.ActiveEffects)

	s.Tick()
	assert.Len(t, s.History(), 1, "stale ticks never resolve a round twice")
}

func TestSession_Rejections(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T) *battle.Session
		act     func(s *battle.Session) error
		wantErr error
		stage   domain.Stage
	}{
		"answer before configuring": {
			arrange: func(t *testing.T) *battle.Session { return battle.NewSession("b") },
			act: func(s *battle.Session) error {
				_, err := s.SubmitAnswer(0)
				return err
			},
			wantErr: domain.ErrInvalidStage,
			stage:   domain.StageIdle,
		},
		"invalid configuration": {
			arrange: func(t *testing.T) *battle.Session { return battle.NewSession("b") },
			act: func(s *battle.Session) error {
				return s.Configure(battle.Config{Subject: "physics", RoundCount: 0, PerRoundSeconds: 20})
			},
			wantErr: domain.ErrInvalidConfig,
			stage:   domain.StageIdle,
		},
		"per-round limit below the minimum": {
			arrange: func(t *testing.T) *battle.Session { return battle.NewSession("b") },
			act: func(s *battle.Session) error {
				return s.Configure(config(3, 2))
			},
			wantErr: domain.ErrInvalidConfig,
			stage:   domain.StageIdle,
		},
		"configure twice": {
			arrange: func(t *testing.T) *battle.Session { return lobby(t, config(3, 20), perfectBot) },
			act:     func(s *battle.Session) error { return s.Configure(config(3, 20)) },
			wantErr: domain.ErrInvalidStage,
			stage:   domain.StageLobby,
		},
		"too many bots": {
			arrange: func(t *testing.T) *battle.Session {
				s := battle.NewSession("b")
				require.NoError(t, s.Configure(config(3, 20)))
				return s
			},
			act: func(s *battle.Session) error {
				bots, _ := battle.NewBots([]domain.SkillProfile{perfectBot, perfectBot, perfectBot, perfectBot})
				return s.Seat(domain.Participant{ID: "u1", Kind: domain.ParticipantLive}, bots)
			},
			wantErr: domain.ErrTooManyParticipants,
			stage:   domain.StageConfiguring,
		},
		"start with nobody to battle": {
			arrange: func(t *testing.T) *battle.Session { return lobby(t, config(3, 20)) },
			act: func(s *battle.Session) error {
				return s.StartCountdown(context.Background(), &staticSource{rounds: makeRounds("r", 3)})
			},
			wantErr: domain.ErrNotEnoughParticipants,
			stage:   domain.StageLobby,
		},
		"power-up during countdown": {
			arrange: func(t *testing.T) *battle.Session {
				s := lobby(t, config(3, 20), perfectBot)
				require.NoError(t, s.StartCountdown(context.Background(), &staticSource{rounds: makeRounds("r", 3)}))
				return s
			},
			act:     func(s *battle.Session) error { return s.UsePowerUp(domain.PowerUpSkip) },
			wantErr: domain.ErrInvalidStage,
			stage:   domain.StageCountdown,
		},
		"option out of range": {
			arrange: func(t *testing.T) *battle.Session { return started(t, config(3, 20), makeRounds("r", 3), perfectBot) },
			act: func(s *battle.Session) error {
				_, err := s.SubmitAnswer(4)
				return err
			},
			wantErr: domain.ErrInvalidOption,
			stage:   domain.StageInRound,
		},
		"answer after resolution": {
			arrange: func(t *testing.T) *battle.Session {
				s := started(t, config(3, 20), makeRounds("r", 3), perfectBot)
				answer(t, s, false)
				return s
			},
			act: func(s *battle.Session) error {
				_, err := s.SubmitAnswer(0)
				return err
			},
			wantErr: domain.ErrRoundResolved,
			stage:   domain.StageRoundResolved,
		},
		"power-up after resolution": {
			arrange: func(t *testing.T) *battle.Session {
				s := started(t, config(3, 20), makeRounds("r", 3), perfectBot)
				answer(t, s, false)
				return s
			},
			act:     func(s *battle.Session) error { return s.UsePowerUp(domain.PowerUpDoublePoints) },
			wantErr: domain.ErrRoundResolved,
			stage:   domain.StageRoundResolved,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := tt.arrange(t)
			before := len(s.History())

			err := tt.act(s)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, domain.IsRejection(err))
			}
			assert.Equal(t, tt.stage, s.Stage())
			assert.Len(t, s.History(), before, "rejections never mutate history")
		})
	}
}

func TestSession_RoundsAreVisitedOnceInOrder(t *testing.T) {
	rounds := makeRounds("r", 5)
	s := started(t, config(5, 5), rounds, perfectBot, hopelessBot)

	for i := range rounds {
		runToRound(t, s, i)
		if i%2 == 0 {
			answer(t, s, i%4 == 0)
		}
	}
	res := runToEnd(t, s)

	require.Len(t, res.AnswerHistory, len(rounds))
	for i, rec := range res.AnswerHistory {
		assert.Equal(t, i, rec.RoundIndex)
		assert.Equal(t, rounds[i].ID, rec.RoundID)
		assert.Len(t, rec.BotOutcomes, 2)
	}
	assert.False(t, s.Tick(), "a completed session ignores ticks")
}

func TestSession_RoundCountIsCapped(t *testing.T) {
	s := lobby(t, config(2, 20), perfectBot)
	require.NoError(t, s.StartCountdown(context.Background(), &staticSource{rounds: makeRounds("r", 6)}))
	assert.Equal(t, 2, s.Snapshot().TotalRounds)
}

func TestSession_TiesKeepRegistrationOrder(t *testing.T) {
	s := started(t, config(3, 5), makeRounds("r", 3), hopelessBot, hopelessBot)
	res := runToEnd(t, s)

	require.Len(t, res.Rankings, 3)
	assert.Equal(t, []string{"u1", "bot-1", "bot-2"}, []string{
		res.Rankings[0].ParticipantID, res.Rankings[1].ParticipantID, res.Rankings[2].ParticipantID,
	})
	assert.Zero(t, res.LiveSummary.Accuracy)
	assert.Equal(t, 5.0, res.LiveSummary.AverageTimeUsed)
}

func TestSession_CountdownAndSnapshots(t *testing.T) {
	s := lobby(t, config(3, 20), perfectBot)
	require.NoError(t, s.StartCountdown(context.Background(), &staticSource{rounds: makeRounds("r", 3)}))

	snap := s.Snapshot()
	assert.Equal(t, domain.StageCountdown, snap.Stage)
	assert.Equal(t, battle.DefaultCountdownTicks, snap.Countdown)
	assert.Nil(t, snap.Round, "prompts stay hidden until the round starts")

	for i := 0; i < battle.DefaultCountdownTicks; i++ {
		s.Tick()
	}
	snap = s.Snapshot()
	assert.Equal(t, domain.StageInRound, snap.Stage)
	require.NotNil(t, snap.Round)
	assert.Equal(t, "r1", snap.Round.ID)
	assert.Equal(t, 20, snap.Timer.RemainingSeconds)

	snap.Scoreboard["u1"] = domain.Score{TotalPoints: 1_000}
	snap.Round.Options[0] = "tampered"
	fresh := s.Snapshot()
	assert.Zero(t, fresh.Scoreboard["u1"].TotalPoints, "snapshots are copies")
	assert.Equal(t, "a", fresh.Round.Options[0])
}

func TestSession_Reset(t *testing.T) {
	s := started(t, config(3, 20), makeRounds("r", 3), perfectBot)
	require.NoError(t, s.UsePowerUp(domain.PowerUpFreezeTimer))

	s.Reset()
	assert.Equal(t, domain.StageIdle, s.Stage())
	assert.False(t, s.Tick(), "timers are cancelled")
	assert.Empty(t, s.History())
	_, ok := s.Result()
	assert.False(t, ok)

	require.NoError(t, s.Configure(config(3, 20)), "a reset session can be configured again")
	bots, err := battle.NewBots([]domain.SkillProfile{perfectBot})
	require.NoError(t, err)
	require.NoError(t, s.Seat(domain.Participant{ID: "u1", Kind: domain.ParticipantLive}, bots))
	require.NoError(t, s.StartCountdown(context.Background(), &staticSource{err: errors.New("boom")}),
		"the fallback rounds survive a reset")
}

func TestSession_FallbackSupplyCompletes(t *testing.T) {
	var reasons []battle.FallbackReason
	supply := battle.NewSupply(
		&staticSource{rounds: makeRounds("remote-", 1)},
		makeRounds("local-", 5),
		battle.WithSupplyLogger(discardLogger()),
		battle.WithFallbackHook(func(r battle.FallbackReason) { reasons = append(reasons, r) }),
	)

	s := lobby(t, config(4, 5), perfectBot)
	require.NoError(t, s.StartCountdown(context.Background(), supply))
	assert.Equal(t, []battle.FallbackReason{battle.FallbackInsufficient}, reasons)

	res := runToEnd(t, s)
	require.Len(t, res.AnswerHistory, 4)
	for i, rec := range res.AnswerHistory {
		assert.Equal(t, fmt.Sprintf("local-%d", i+1), rec.RoundID)
	}
}

func TestSession_BareSourceDegradesToFallback(t *testing.T) {
	tests := map[string]struct {
		source *staticSource
		count  int
	}{
		"source error":         {source: &staticSource{err: errors.New("generator unavailable")}, count: 4},
		"source below minimum": {source: &staticSource{rounds: makeRounds("remote-", 1)}, count: 3},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := battle.NewSession("b",
				battle.WithRandom(&seqRandom{vals: []float64{0}}),
				battle.WithFallbackRounds(makeRounds("local-", 3)),
			)
			seat(t, s, config(tt.count, 5), perfectBot)

			require.NoError(t, s.StartCountdown(context.Background(), tt.source))
			assert.Equal(t, domain.StageCountdown, s.Stage())
			assert.Equal(t, 1, tt.source.calls, "the source is asked once")

			rounds := s.Rounds()
			require.Len(t, rounds, tt.count, "fallback is padded to the requested count")
			assert.Equal(t, "local-1", rounds[0].ID)

			res := runToEnd(t, s)
			assert.Len(t, res.AnswerHistory, tt.count)
		})
	}
}

func TestSession_NoRoundsAnywhere(t *testing.T) {
	s := seat(t, battle.NewSession("b", battle.WithFallbackRounds(nil)), config(3, 20), perfectBot)
	err := s.StartCountdown(context.Background(), &staticSource{err: errors.New("boom")})
	require.ErrorIs(t, err, domain.ErrSupplyInsufficient)
	assert.Equal(t, domain.StageLobby, s.Stage())
}

func TestSession_DefaultFallbackRounds(t *testing.T) {
	s := lobby(t, config(5, 5), perfectBot)
	require.NoError(t, s.StartCountdown(context.Background(), &staticSource{err: errors.New("boom")}))

	rounds := s.Rounds()
	require.Len(t, rounds, 5)
	for _, r := range rounds {
		require.NoError(t, r.Validate())
	}
}
