package domain

import (
	"fmt"
	"time"
)

// Stage is the lifecycle position of a battle session.
type Stage int

const (
	StageIdle Stage = iota
	StageConfiguring
	StageLobby
	StageCountdown
	StageInRound
	StageRoundResolved
	StageSessionComplete
)

var stageNames = map[Stage]string{
	StageIdle:            "idle",
	StageConfiguring:     "configuring",
	StageLobby:           "lobby",
	StageCountdown:       "countdown",
	StageInRound:         "inRound",
	StageRoundResolved:   "roundResolved",
	StageSessionComplete: "sessionComplete",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText lets stages travel as their names in JSON payloads.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParticipantKind distinguishes the single live player from simulated opponents.
type ParticipantKind string

const (
	ParticipantLive ParticipantKind = "live"
	ParticipantBot  ParticipantKind = "bot"
)

// SpeedRange bounds the fraction of the round time a bot has left when it answers.
type SpeedRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// SkillProfile fixes how a bot performs for the whole session.
type SkillProfile struct {
	Accuracy   float64    `json:"accuracy" yaml:"accuracy"`
	SpeedRatio SpeedRange `json:"speedRatio" yaml:"speedRatio"`
}

// Validate checks accuracy is in [0,1] and the speed range is an ordered sub-range of [0,1].
func (p SkillProfile) Validate() error {
	if p.Accuracy < 0 || p.Accuracy > 1 {
		return fmt.Errorf("%w: accuracy %.2f outside [0,1]", ErrInvalidSkillProfile, p.Accuracy)
	}
	r := p.SpeedRatio
	if r.Min < 0 || r.Max > 1 || r.Min > r.Max {
		return fmt.Errorf("%w: speed ratio [%.2f,%.2f] not within [0,1]", ErrInvalidSkillProfile, r.Min, r.Max)
	}
	return nil
}

// Participant is either the live player or a bot. Only bots carry a skill profile.
type Participant struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	Kind        ParticipantKind `json:"kind"`
	Skill       *SkillProfile   `json:"skill,omitempty"`
}

// IsBot reports whether the participant is simulated.
func (p Participant) IsBot() bool {
	return p.Kind == ParticipantBot
}

// Round is one multiple-choice question of a battle.
type Round struct {
	ID                 string   `json:"id"`
	Subject            string   `json:"subject,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Explanation        string   `json:"explanation,omitempty"`
}

// Validate reports whether the round is usable in a battle.
func (r Round) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: round %q has no prompt", ErrInvalidRound, r.ID)
	}
	if len(r.Options) < 2 {
		return fmt.Errorf("%w: round %q has %d options", ErrInvalidRound, r.ID, len(r.Options))
	}
	if r.CorrectOptionIndex < 0 || r.CorrectOptionIndex >= len(r.Options) {
		return fmt.Errorf("%w: round %q correct index %d out of range", ErrInvalidRound, r.ID, r.CorrectOptionIndex)
	}
	return nil
}

// Clone returns a copy that shares no memory with r.
func (r Round) Clone() Round {
	c := r
	c.Options = append([]string(nil), r.Options...)
	return c
}

// PowerUpKind names one of the consumable effects available to the live participant.
type PowerUpKind string

const (
	PowerUpNone         PowerUpKind = ""
	PowerUpSkip         PowerUpKind = "skip"
	PowerUpDoublePoints PowerUpKind = "doublePoints"
	PowerUpFreezeTimer  PowerUpKind = "freezeTimer"
)

// PowerUpKinds lists every known kind in display order.
var PowerUpKinds = []PowerUpKind{PowerUpSkip, PowerUpDoublePoints, PowerUpFreezeTimer}

// ParsePowerUpKind maps a wire name onto a known kind.
func ParsePowerUpKind(raw string) (PowerUpKind, error) {
	for _, k := range PowerUpKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return PowerUpNone, fmt.Errorf("%w: %q", ErrUnknownPowerUp, raw)
}

// Lingers reports whether consuming the kind leaves an active effect behind.
func (k PowerUpKind) Lingers() bool {
	return k == PowerUpDoublePoints || k == PowerUpFreezeTimer
}

// Score is a participant's running tally. Streak fields stay zero for bots.
type Score struct {
	TotalPoints   int `json:"totalPoints"`
	CurrentStreak int `json:"currentStreak"`
	MaxStreak     int `json:"maxStreak"`
	CorrectCount  int `json:"correctCount"`
}

// ResolutionTrigger records what ended a round.
type ResolutionTrigger string

const (
	TriggerAnswer  ResolutionTrigger = "answer"
	TriggerTimeout ResolutionTrigger = "timeout"
	TriggerSkip    ResolutionTrigger = "skip"
)

// BotOutcome is one bot's simulated result for a round.
type BotOutcome struct {
	ParticipantID string  `json:"participantId"`
	Correct       bool    `json:"correct"`
	PointsAwarded int     `json:"pointsAwarded"`
	TimeRatio     float64 `json:"timeRatio"`
}

// AnswerRecord is the immutable history entry of the live participant for one round.
type AnswerRecord struct {
	RoundIndex        int               `json:"roundIndex"`
	RoundID           string            `json:"roundId"`
	ChosenOptionIndex int               `json:"chosenOptionIndex"` // -1 on timeout or skip
	Correct           bool              `json:"correct"`
	PointsAwarded     int               `json:"pointsAwarded"`
	TimeUsedSeconds   int               `json:"timeUsedSeconds"`
	ComboMultiplier   float64           `json:"comboMultiplier"`
	WasSkipped        bool              `json:"wasSkipped"`
	DoublePoints      bool              `json:"doublePoints"`
	Trigger           ResolutionTrigger `json:"trigger"`
	BotOutcomes       []BotOutcome      `json:"botOutcomes,omitempty"`
}

// TimerState is the observable part of the round timer.
type TimerState struct {
	RemainingSeconds int  `json:"remainingSeconds"`
	IsFrozen         bool `json:"isFrozen"`
	FreezeRemaining  int  `json:"freezeRemaining"`
}

// PowerUpState is the observable part of the power-up inventory. Lingering
// effects are independent, so doublePoints and freezeTimer may both be active.
type PowerUpState struct {
	Remaining     map[PowerUpKind]int `json:"remaining"`
	ActiveEffects []PowerUpKind       `json:"activeEffects"`
}

// IsActive reports whether kind is among the active effects.
func (s PowerUpState) IsActive(kind PowerUpKind) bool {
	for _, k := range s.ActiveEffects {
		if k == kind {
			return true
		}
	}
	return false
}

// RoundView is a round as shown to the player, without the answer.
type RoundView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Snapshot is the externally observable state of a battle.
type Snapshot struct {
	BattleID          string           `json:"battleId"`
	Stage             Stage            `json:"stage"`
	Subject           string           `json:"subject"`
	Countdown         int              `json:"countdown"`
	CurrentRoundIndex int              `json:"currentRoundIndex"`
	TotalRounds       int              `json:"totalRounds"`
	Round             *RoundView       `json:"round,omitempty"`
	Timer             TimerState       `json:"timer"`
	Participants      []Participant    `json:"participants"`
	Scoreboard        map[string]Score `json:"scoreboard"`
	PowerUps          PowerUpState     `json:"powerUps"`
	LastAnswerRecord  *AnswerRecord    `json:"lastAnswerRecord,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// RankingEntry is one line of the final standings.
type RankingEntry struct {
	ParticipantID string          `json:"participantId"`
	DisplayName   string          `json:"displayName"`
	Kind          ParticipantKind `json:"kind"`
	TotalPoints   int             `json:"totalPoints"`
	CorrectCount  int             `json:"correctCount"`
}

// LiveSummary aggregates the live participant's performance over the session.
type LiveSummary struct {
	ParticipantID   string  `json:"participantId"`
	Accuracy        float64 `json:"accuracy"`
	MaxStreak       int     `json:"maxStreak"`
	AverageTimeUsed float64 `json:"averageTimeUsed"`
	TotalPoints     int     `json:"totalPoints"`
}

// Result is the terminal outcome of a completed battle.
type Result struct {
	BattleID      string         `json:"battleId"`
	Subject       string         `json:"subject"`
	Rankings      []RankingEntry `json:"rankings"`
	LiveSummary   LiveSummary    `json:"liveSummary"`
	AnswerHistory []AnswerRecord `json:"answerHistory"`
	CompletedAt   time.Time      `json:"completedAt"`
}

// Winner returns the top-ranked entry.
func (r Result) Winner() (RankingEntry, bool) {
	if len(r.Rankings) == 0 {
		return RankingEntry{}, false
	}
	return r.Rankings[0], true
}

// LeaderboardEntry is one row of a subject leaderboard.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
}
