package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const (
	MaxBots                  = 3
	MaxRoundCount            = 50
	MinPerRoundSeconds       = 5
	MaxPerRoundSeconds       = 300
	DefaultCountdownTicks    = 3
	DefaultDisplayDelayTicks = 2
)

// Config is what the player picks while configuring a battle.
type Config struct {
	Subject         string
	Difficulty      string
	RoundCount      int
	PerRoundSeconds int

	// FreezeSeconds is clamped to PerRoundSeconds. Zero means DefaultFreezeSeconds.
	FreezeSeconds int
	// CountdownTicks and DisplayDelayTicks fall back to their defaults when not positive.
	CountdownTicks    int
	DisplayDelayTicks int
	// PowerUps overrides the starting inventory. Nil means one use of each kind.
	PowerUps map[domain.PowerUpKind]int
}

func (c Config) withDefaults() Config {
	if c.FreezeSeconds <= 0 {
		c.FreezeSeconds = DefaultFreezeSeconds
	}
	if c.FreezeSeconds > c.PerRoundSeconds {
		c.FreezeSeconds = c.PerRoundSeconds
	}
	if c.CountdownTicks <= 0 {
		c.CountdownTicks = DefaultCountdownTicks
	}
	if c.DisplayDelayTicks <= 0 {
		c.DisplayDelayTicks = DefaultDisplayDelayTicks
	}
	if c.PowerUps == nil {
		c.PowerUps = DefaultPowerUps()
	}
	return c
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: subject is required", domain.ErrInvalidConfig)
	case c.RoundCount < 1 || c.RoundCount > MaxRoundCount:
		return fmt.Errorf("%w: round count %d not in [1,%d]", domain.ErrInvalidConfig, c.RoundCount, MaxRoundCount)
	case c.PerRoundSeconds < MinPerRoundSeconds || c.PerRoundSeconds > MaxPerRoundSeconds:
		return fmt.Errorf("%w: per-round seconds %d not in [%d,%d]", domain.ErrInvalidConfig, c.PerRoundSeconds, MinPerRoundSeconds, MaxPerRoundSeconds)
	}
	return nil
}

// Option configures a Session.
type Option func(*Session)

// WithRandom sets the random source used for bot outcomes.
func WithRandom(rnd Random) Option {
	return func(s *Session) { s.bots = NewBotSimulator(rnd) }
}

// WithFallbackRounds replaces the built-in rounds used when a bare source
// fails or comes up short.
func WithFallbackRounds(rounds []domain.Round) Option {
	return func(s *Session) { s.fallback = rounds }
}

// WithClock sets the clock used to stamp snapshots and results.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one battle from configuration through final rankings. It is not
// safe for concurrent use: the host must deliver events one at a time, and
// every method runs to completion before returning.
type Session struct {
	id       string
	now      func() time.Time
	fallback []domain.Round

	stage domain.Stage
	cfg   Config

	rounds       []domain.Round
	index        int
	participants []domain.Participant
	liveID       string
	scoreboard   map[string]domain.Score
	history      []domain.AnswerRecord

	inventory *Inventory
	timer     RoundTimer
	bots      *BotSimulator

	countdown     int
	resolvedTicks int
	result        *domain.Result
}

// NewSession returns an Idle session.
func NewSession(id string, opts ...Option) *Session {
	s := &Session{
		id:        id,
		now:       time.Now,
		bots:      NewBotSimulator(NewRandom(time.Now().UnixNano())),
		inventory: NewInventory(nil),
		fallback:  FallbackRounds(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Stage() domain.Stage { return s.stage }

// Configure moves Idle → Configuring.
func (s *Session) Configure(cfg Config) error {
	if s.stage != domain.StageIdle {
		return s.stageError("configure")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg.withDefaults()
	s.stage = domain.StageConfiguring
	return nil
}

// Seat fixes the participants and moves Configuring → Lobby. Registration order
// is live first, then bots in the given order; it breaks ranking ties.
func (s *Session) Seat(live domain.Participant, bots []domain.Participant) error {
	if s.stage != domain.StageConfiguring {
		return s.stageError("seat participants")
	}
	if live.Kind != domain.ParticipantLive || live.ID == "" {
		return fmt.Errorf("%w: live participant needs an id", domain.ErrInvalidConfig)
	}
	if len(bots) > MaxBots {
		return fmt.Errorf("%w: %d bots, at most %d", domain.ErrTooManyParticipants, len(bots), MaxBots)
	}

	seen := map[string]bool{live.ID: true}
	for _, b := range bots {
		if !b.IsBot() || b.Skill == nil {
			return fmt.Errorf("%w: participant %q is not a bot", domain.ErrInvalidConfig, b.ID)
		}
		if err := b.Skill.Validate(); err != nil {
			return err
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate participant %q", domain.ErrInvalidConfig, b.ID)
		}
		seen[b.ID] = true
	}

	s.participants = append([]domain.Participant{live}, bots...)
	s.liveID = live.ID
	s.scoreboard = make(map[string]domain.Score, len(s.participants))
	for _, p := range s.participants {
		s.scoreboard[p.ID] = domain.Score{}
	}
	s.inventory = NewInventory(s.cfg.PowerUps)
	s.stage = domain.StageLobby
	return nil
}

// StartCountdown fetches the rounds once and moves Lobby → Countdown. It is the
// only call that may block. A source that is not already a Supply is asked
// through one backed by the session's fallback rounds, so a failing or short
// source still starts the countdown. The session stays in the lobby only when
// no rounds at all can be found.
func (s *Session) StartCountdown(ctx context.Context, src RoundSource) error {
	if s.stage != domain.StageLobby {
		return s.stageError("start countdown")
	}
	if len(s.participants) < 2 {
		return domain.ErrNotEnoughParticipants
	}

	supply, ok := src.(*Supply)
	if !ok {
		supply = NewSupply(src, s.fallback)
	}
	rounds, err := supply.FetchRounds(ctx, s.cfg.Subject, s.cfg.Difficulty, s.cfg.RoundCount)
	if err != nil {
		return fmt.Errorf("fetch rounds: %w", err)
	}
	rounds = usableRounds(rounds)
	if len(rounds) == 0 {
		return domain.ErrSupplyInsufficient
	}
	if len(rounds) > s.cfg.RoundCount {
		rounds = rounds[:s.cfg.RoundCount]
	}

	s.rounds = rounds
	s.countdown = s.cfg.CountdownTicks
	s.stage = domain.StageCountdown
	return nil
}

// Tick advances the session by one second and reports whether anything changed.
func (s *Session) Tick() bool {
	switch s.stage {
	case domain.StageCountdown:
		return s.tickCountdown()
	case domain.StageInRound:
		return s.tickRound()
	case domain.StageRoundResolved:
		return s.tickResolved()
	default:
		return false
	}
}

func (s *Session) tickCountdown() bool {
	s.countdown--
	if s.countdown <= 0 {
		s.countdown = 0
		s.startRound(0)
	}
	return true
}

func (s *Session) tickRound() bool {
	switch s.timer.Tick() {
	case TimerIdle:
		return false
	case TimerFreezeEnded:
		s.inventory.ClearEffectIfMatches(domain.PowerUpFreezeTimer)
	case TimerExpired:
		s.resolve(domain.TriggerTimeout, -1)
	}
	return true
}

func (s *Session) tickResolved() bool {
	s.resolvedTicks--
	if s.resolvedTicks > 0 {
		return true
	}
	if s.index+1 < len(s.rounds) {
		s.startRound(s.index + 1)
	} else {
		s.complete()
	}
	return true
}

// SubmitAnswer resolves the current round with the live participant's choice.
func (s *Session) SubmitAnswer(optionIndex int) (domain.AnswerRecord, error) {
	if err := s.requireOpenRound(); err != nil {
		return domain.AnswerRecord{}, err
	}
	round := s.rounds[s.index]
	if optionIndex < 0 || optionIndex >= len(round.Options) {
		return domain.AnswerRecord{}, fmt.Errorf("%w: %d of %d", domain.ErrInvalidOption, optionIndex, len(round.Options))
	}
	return s.resolve(domain.TriggerAnswer, optionIndex), nil
}

// UsePowerUp consumes kind for the current round. Skip resolves the round at once.
func (s *Session) UsePowerUp(kind domain.PowerUpKind) error {
	if err := s.requireOpenRound(); err != nil {
		return err
	}
	if err := s.inventory.Consume(kind); err != nil {
		return err
	}

	switch kind {
	case domain.PowerUpSkip:
		s.resolve(domain.TriggerSkip, -1)
	case domain.PowerUpFreezeTimer:
		s.timer.Freeze(s.cfg.FreezeSeconds)
	}
	return nil
}

// Reset cancels all timers and discards the battle, returning to Idle.
func (s *Session) Reset() {
	s.timer.Cancel()
	*s = Session{
		id:        s.id,
		now:       s.now,
		fallback:  s.fallback,
		bots:      s.bots,
		inventory: NewInventory(nil),
	}
}

func (s *Session) requireOpenRound() error {
	switch s.stage {
	case domain.StageInRound:
		return nil
	case domain.StageRoundResolved:
		return domain.ErrRoundResolved
	default:
		return s.stageError("act on round")
	}
}

func (s *Session) startRound(i int) {
	s.index = i
	s.stage = domain.StageInRound
	s.inventory.clearEffects()
	s.inventory.markResolved(false)
	s.timer.Start(s.cfg.PerRoundSeconds)
}

// resolve ends the current round. The timer is cancelled before any score is
// touched so a late tick cannot resolve the same round twice.
func (s *Session) resolve(trigger domain.ResolutionTrigger, chosen int) domain.AnswerRecord {
	remaining := s.timer.Remaining()
	limit := s.cfg.PerRoundSeconds
	s.timer.Cancel()
	s.inventory.ClearEffectIfMatches(domain.PowerUpFreezeTimer)

	round := s.rounds[s.index]
	correct := trigger == domain.TriggerAnswer && chosen == round.CorrectOptionIndex
	if trigger == domain.TriggerTimeout {
		remaining = 0
	}

	live := Score(ScoreInput{
		Correct:          correct,
		Skipped:          trigger == domain.TriggerSkip,
		RemainingSeconds: remaining,
		RoundTimeLimit:   limit,
		DoublePoints:     s.inventory.IsActive(domain.PowerUpDoublePoints),
		Score:            s.scoreboard[s.liveID],
	})

	outcomes := make([]domain.BotOutcome, 0, len(s.participants)-1)
	for _, p := range s.participants {
		if p.IsBot() {
			outcomes = append(outcomes, s.bots.Simulate(p))
		}
	}

	record := domain.AnswerRecord{
		RoundIndex:        s.index,
		RoundID:           round.ID,
		ChosenOptionIndex: chosen,
		Correct:           correct,
		PointsAwarded:     live.PointsAwarded,
		TimeUsedSeconds:   limit - remaining,
		ComboMultiplier:   live.ComboMultiplier,
		WasSkipped:        trigger == domain.TriggerSkip,
		DoublePoints:      live.DoubleApplied,
		Trigger:           trigger,
		BotOutcomes:       outcomes,
	}

	s.scoreboard[s.liveID] = live.Score
	for _, o := range outcomes {
		sc := s.scoreboard[o.ParticipantID]
		sc.TotalPoints += o.PointsAwarded
		if o.Correct {
			sc.CorrectCount++
		}
		s.scoreboard[o.ParticipantID] = sc
	}
	s.history = append(s.history, record)

	s.inventory.ClearEffectIfMatches(domain.PowerUpDoublePoints)
	s.inventory.markResolved(true)
	s.resolvedTicks = s.cfg.DisplayDelayTicks
	s.stage = domain.StageRoundResolved
	return record
}

func (s *Session) complete() {
	s.timer.Cancel()
	s.inventory.markResolved(true)
	s.stage = domain.StageSessionComplete
	res := buildResult(s)
	s.result = &res
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		BattleID:          s.id,
		Stage:             s.stage,
		Subject:           s.cfg.Subject,
		Countdown:         s.countdown,
		CurrentRoundIndex: s.index,
		TotalRounds:       len(s.rounds),
		Timer:             s.timer.state(),
		Participants:      append([]domain.Participant(nil), s.participants...),
		Scoreboard:        make(map[string]domain.Score, len(s.scoreboard)),
		PowerUps:          s.inventory.state(),
		UpdatedAt:         s.now(),
	}
	for id, sc := range s.scoreboard {
		snap.Scoreboard[id] = sc
	}
	if s.stage == domain.StageInRound || s.stage == domain.StageRoundResolved {
		r := s.rounds[s.index]
		snap.Round = &domain.RoundView{ID: r.ID, Prompt: r.Prompt, Options: append([]string(nil), r.Options...)}
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		snap.LastAnswerRecord = &last
	}
	return snap
}

// Result returns the terminal result once the session is complete.
func (s *Session) Result() (domain.Result, bool) {
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

// History returns a copy of the answer history.
func (s *Session) History() []domain.AnswerRecord {
	return append([]domain.AnswerRecord(nil), s.history...)
}

// Rounds returns a copy of the rounds fixed at countdown.
func (s *Session) Rounds() []domain.Round {
	out := make([]domain.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r.Clone())
	}
	return out
}

func (s *Session) stageError(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidStage, action, s.stage)
}
