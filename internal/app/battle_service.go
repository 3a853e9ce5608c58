package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const sinkTimeout = 10 * time.Second

// DefaultRetention is how long a completed battle stays readable before it is
// dropped from the repository.
const DefaultRetention = time.Minute

// BattleRepository abstracts where live battles are registered (in-memory, Redis, etc).
type BattleRepository interface {
	Put(b *Battle)
	Get(battleID string) (*Battle, bool)
	Delete(battleID string)
}

// ResultSink receives every completed battle. Failures are logged and never
// reach the player.
type ResultSink interface {
	SaveResult(ctx context.Context, res domain.Result) error
}

// Recorder observes battle lifecycle events.
type Recorder interface {
	BattleStarted()
	BattleEnded(completed bool)
	RoundResolved(trigger domain.ResolutionTrigger)
	PowerUpUsed(kind domain.PowerUpKind)
}

type nopRecorder struct{}

func (nopRecorder) BattleStarted()                         {}
func (nopRecorder) BattleEnded(bool)                       {}
func (nopRecorder) RoundResolved(domain.ResolutionTrigger) {}
func (nopRecorder) PowerUpUsed(domain.PowerUpKind)         {}

// Defaults fill in whatever a StartRequest leaves at zero.
type Defaults struct {
	RoundCount        int
	PerRoundSeconds   int
	FreezeSeconds     int
	CountdownTicks    int
	DisplayDelayTicks int
	BotCount          int
}

type Config struct {
	Battles  BattleRepository
	Supply   battle.RoundSource
	Sinks    []ResultSink
	Recorder Recorder
	Logger   *slog.Logger
	Defaults Defaults

	// Retention keeps a completed battle around for late Result calls. Zero means DefaultRetention.
	Retention time.Duration
	// Seed makes bot outcomes reproducible across runs. Zero draws a fresh seed per battle.
	Seed          int64
	TickInterval  time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	Now           func() time.Time
}

// BattleService hosts battles: it owns their lifecycle, drives their clocks and
// fans out their state.
type BattleService struct {
	battles   BattleRepository
	supply    battle.RoundSource
	sinks     []ResultSink
	recorder  Recorder
	logger    *slog.Logger
	defaults  Defaults
	retention time.Duration
	interval  time.Duration
	newTicker func(d time.Duration) Ticker
	now       func() time.Time

	seedMu sync.Mutex
	seeds  *rand.Rand
}

func NewBattleService(c Config) *BattleService {
	s := &BattleService{
		battles:   c.Battles,
		supply:    c.Supply,
		sinks:     c.Sinks,
		recorder:  c.Recorder,
		logger:    c.Logger,
		defaults:  c.Defaults,
		retention: c.Retention,
		interval:  c.TickInterval,
		newTicker: c.NewTickerFunc,
		now:       c.Now,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.newTicker == nil {
		s.newTicker = NewTicker
	}
	if s.now == nil {
		s.now = time.Now
	}
	if c.Seed != 0 {
		s.seeds = battle.NewRandom(c.Seed)
	}
	return s
}

type StartRequest struct {
	UserID          string
	DisplayName     string
	Subject         string
	Difficulty      string
	RoundCount      int
	PerRoundSeconds int

	// BotProfiles takes precedence over BotCount.
	BotProfiles   []domain.SkillProfile
	BotCount      int
	BotDifficulty string
}

// Start configures a battle, seats its participants, fetches its rounds and
// starts the countdown. A battle that cannot start is discarded.
func (s *BattleService) Start(ctx context.Context, req StartRequest) (domain.Snapshot, error) {
	cfg := battle.Config{
		Subject:           req.Subject,
		Difficulty:        req.Difficulty,
		RoundCount:        firstPositive(req.RoundCount, s.defaults.RoundCount),
		PerRoundSeconds:   firstPositive(req.PerRoundSeconds, s.defaults.PerRoundSeconds),
		FreezeSeconds:     s.defaults.FreezeSeconds,
		CountdownTicks:    s.defaults.CountdownTicks,
		DisplayDelayTicks: s.defaults.DisplayDelayTicks,
	}

	bots, err := s.bots(req)
	if err != nil {
		return domain.Snapshot{}, err
	}

	seed, err := s.nextSeed()
	if err != nil {
		return domain.Snapshot{}, err
	}

	id := uuid.NewString()
	session := battle.NewSession(id, battle.WithRandom(battle.NewRandom(seed)), battle.WithClock(s.now))

	name := req.DisplayName
	if name == "" {
		name = req.UserID
	}
	live := domain.Participant{ID: req.UserID, DisplayName: name, Kind: domain.ParticipantLive}

	if err := session.Configure(cfg); err != nil {
		return domain.Snapshot{}, err
	}
	if err := session.Seat(live, bots); err != nil {
		return domain.Snapshot{}, err
	}
	if err := session.StartCountdown(ctx, s.supply); err != nil {
		session.Reset()
		return domain.Snapshot{}, err
	}

	b := newBattle(id, req.UserID, session)
	s.battles.Put(b)
	s.recorder.BattleStarted()
	s.logger.InfoContext(ctx, "battle: started",
		"battle_id", id, "user_id", req.UserID, "subject", cfg.Subject,
		"rounds", session.Snapshot().TotalRounds, "bots", len(bots))

	go s.drive(b)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.Snapshot(), nil
}

func (s *BattleService) bots(req StartRequest) ([]domain.Participant, error) {
	if len(req.BotProfiles) > 0 {
		return battle.NewBots(req.BotProfiles)
	}

	n := req.BotCount
	if n == 0 {
		n = s.defaults.BotCount
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: bot count %d", domain.ErrInvalidConfig, n)
	}
	if n > battle.MaxBots {
		return nil, fmt.Errorf("%w: %d bots, at most %d", domain.ErrTooManyParticipants, n, battle.MaxBots)
	}

	difficulty := req.BotDifficulty
	if difficulty == "" {
		difficulty = req.Difficulty
	}
	profile, err := battle.ProfileForDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.SkillProfile, n)
	for i := range profiles {
		profiles[i] = profile
	}
	return battle.NewBots(profiles)
}

func (s *BattleService) nextSeed() (int64, error) {
	if s.seeds == nil {
		return battle.NewSeed()
	}
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return s.seeds.Int63(), nil
}

// drive feeds ticks into the battle until it completes or is halted.
func (s *BattleService) drive(b *Battle) {
	ticker := s.newTicker(s.interval)
	defer close(b.done)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C():
			if res, done := s.tick(b); done {
				s.finish(b, res)
				return
			}
		}
	}
}

func (s *BattleService) tick(b *Battle) (domain.Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.session.Tick() {
		return domain.Result{}, false
	}
	s.observeLocked(b)
	b.broadcastLocked()
	return b.session.Result()
}

func (s *BattleService) observeLocked(b *Battle) {
	for _, rec := range b.newRecordsLocked() {
		s.recorder.RoundResolved(rec.Trigger)
		s.logger.Debug("battle: round resolved",
			"battle_id", b.id, "round", rec.RoundIndex, "trigger", rec.Trigger,
			"correct", rec.Correct, "points", rec.PointsAwarded)
	}
}

// finish hands a completed result to every sink concurrently, then schedules
// the battle to be forgotten once the retention period has passed.
func (s *BattleService) finish(b *Battle, res domain.Result) {
	s.recorder.BattleEnded(true)

	winner, _ := res.Winner()
	s.logger.Info("battle: completed",
		"battle_id", b.id, "winner", winner.ParticipantID, "live_points", res.LiveSummary.TotalPoints)

	s.save(b, res)

	b.mu.Lock()
	if !b.left {
		b.expiry = time.AfterFunc(s.retention, func() { s.expire(b) })
	}
	b.mu.Unlock()
}

// expire drops a completed battle nobody left explicitly.
func (s *BattleService) expire(b *Battle) {
	b.mu.Lock()
	if b.left {
		b.mu.Unlock()
		return
	}
	b.left = true
	b.session.Reset()
	b.closeSubscribersLocked()
	b.mu.Unlock()

	s.battles.Delete(b.id)
	s.logger.Debug("battle: expired", "battle_id", b.id)
}

func (s *BattleService) save(b *Battle, res domain.Result) {
	if len(s.sinks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range s.sinks {
		sink := sink
		g.Go(func() error { return sink.SaveResult(ctx, res) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("battle: save result", "battle_id", b.id, "error", err)
	}
}

func (s *BattleService) get(battleID string) (*Battle, error) {
	b, ok := s.battles.Get(battleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBattleNotFound, battleID)
	}
	return b, nil
}

// SubmitAnswer resolves the current round of a battle with the live participant's choice.
func (s *BattleService) SubmitAnswer(_ context.Context, battleID string, optionIndex int) (domain.AnswerRecord, error) {
	b, err := s.get(battleID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rec, err := b.session.SubmitAnswer(optionIndex)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	s.observeLocked(b)
	b.broadcastLocked()
	return rec, nil
}

// UsePowerUp consumes a power-up in the current round of a battle.
func (s *BattleService) UsePowerUp(_ context.Context, battleID string, kind domain.PowerUpKind) (domain.Snapshot, error) {
	b, err := s.get(battleID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.session.UsePowerUp(kind); err != nil {
		return domain.Snapshot{}, err
	}
	s.recorder.PowerUpUsed(kind)
	s.observeLocked(b)
	return b.broadcastLocked(), nil
}

// Snapshot returns the current observable state of a battle.
func (s *BattleService) Snapshot(_ context.Context, battleID string) (domain.Snapshot, error) {
	b, err := s.get(battleID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.Snapshot(), nil
}

// Subscribe returns a channel that receives a snapshot after every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *BattleService) Subscribe(_ context.Context, battleID string) (<-chan domain.Snapshot, func(), error) {
	b, err := s.get(battleID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := b.subscribe()
	return ch, cancel, nil
}

// Result returns the final rankings once a battle is complete.
func (s *BattleService) Result(_ context.Context, battleID string) (domain.Result, error) {
	b, err := s.get(battleID)
	if err != nil {
		return domain.Result{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.session.Result()
	if !ok {
		return domain.Result{}, fmt.Errorf("%w: battle %s is still %s", domain.ErrInvalidStage, battleID, b.session.Stage())
	}
	return res, nil
}

// Leave abandons a battle: its clock stops, its session resets and it is forgotten.
func (s *BattleService) Leave(ctx context.Context, battleID string) {
	b, ok := s.battles.Get(battleID)
	if !ok {
		return
	}
	b.halt()

	b.mu.Lock()
	if b.left {
		b.mu.Unlock()
		return
	}
	b.left = true
	if b.expiry != nil {
		b.expiry.Stop()
	}
	completed := b.session.Stage() == domain.StageSessionComplete
	b.session.Reset()
	b.closeSubscribersLocked()
	b.mu.Unlock()

	s.battles.Delete(battleID)
	if !completed {
		s.recorder.BattleEnded(false)
	}
	s.logger.InfoContext(ctx, "battle: left", "battle_id", battleID, "completed", completed)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
