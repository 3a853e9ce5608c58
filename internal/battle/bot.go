package battle

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const (
	basePoints   = 100
	maxTimeBonus = 50
)

// Random is the source of uniform draws in [0,1). *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

// NewRandom returns a deterministic source for seed.
func NewRandom(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// BotSimulator draws per-round outcomes for bots. Bots always answer: they never
// time out, never skip and never build a streak.
type BotSimulator struct {
	rnd Random
}

func NewBotSimulator(rnd Random) *BotSimulator {
	return &BotSimulator{rnd: rnd}
}

// Simulate rolls correctness against the profile's accuracy, then a time ratio
// uniformly within its speed range. Correct answers score 100 plus a time bonus
// of up to 50 points.
func (b *BotSimulator) Simulate(bot domain.Participant) domain.BotOutcome {
	out := domain.BotOutcome{ParticipantID: bot.ID}
	if bot.Skill == nil {
		return out
	}
	p := *bot.Skill

	out.Correct = b.rnd.Float64() < p.Accuracy
	out.TimeRatio = p.SpeedRatio.Min + b.rnd.Float64()*(p.SpeedRatio.Max-p.SpeedRatio.Min)
	if out.Correct {
		out.PointsAwarded = basePoints + int(math.Floor(out.TimeRatio*maxTimeBonus))
	}
	return out
}

// Difficulty presets map a bot difficulty name onto a skill profile.
var difficultyProfiles = map[string]domain.SkillProfile{
	"easy":   {Accuracy: 0.5, SpeedRatio: domain.SpeedRange{Min: 0.1, Max: 0.4}},
	"medium": {Accuracy: 0.7, SpeedRatio: domain.SpeedRange{Min: 0.3, Max: 0.6}},
	"hard":   {Accuracy: 0.9, SpeedRatio: domain.SpeedRange{Min: 0.5, Max: 0.9}},
}

// ProfileForDifficulty returns the preset for difficulty. An empty name means medium.
func ProfileForDifficulty(difficulty string) (domain.SkillProfile, error) {
	if difficulty == "" {
		difficulty = "medium"
	}
	p, ok := difficultyProfiles[difficulty]
	if !ok {
		return domain.SkillProfile{}, fmt.Errorf("%w: unknown bot difficulty %q", domain.ErrInvalidConfig, difficulty)
	}
	return p, nil
}

// NewBots builds bot participants for profiles with stable ids bot-1, bot-2, ...
func NewBots(profiles []domain.SkillProfile) ([]domain.Participant, error) {
	bots := make([]domain.Participant, 0, len(profiles))
	for i, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("bot %d: %w", i+1, err)
		}
		profile := p
		bots = append(bots, domain.Participant{
			ID:          fmt.Sprintf("bot-%d", i+1),
			DisplayName: botNames[i%len(botNames)],
			Kind:        domain.ParticipantBot,
			Skill:       &profile,
		})
	}
	return bots, nil
}

var botNames = []string{"Ada", "Tesla", "Curie"}

// NewSeed draws a high-entropy seed for NewRandom.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
