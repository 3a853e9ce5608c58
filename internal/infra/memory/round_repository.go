package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// RoundLoader fetches the question pool of a subject from a backing store (e.g., Postgres).
type RoundLoader interface {
	LoadRounds(ctx context.Context, subject, difficulty string) ([]domain.Round, error)
}

// RoundRepository caches question pools with TTL to avoid repeated DB hits and
// samples the rounds of each battle from the cached pool.
type RoundRepository struct {
	loader RoundLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	rounds    []domain.Round
	expiresAt time.Time
}

func NewRoundRepository(loader RoundLoader, ttl time.Duration) *RoundRepository {
	return &RoundRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

// FetchRounds returns count rounds drawn without repetition from the pool.
func (r *RoundRepository) FetchRounds(ctx context.Context, subject, difficulty string, count int) ([]domain.Round, error) {
	pool, err := r.pool(ctx, subject, difficulty)
	if err != nil {
		return nil, err
	}
	return r.sample(pool, count), nil
}

func (r *RoundRepository) pool(ctx context.Context, subject, difficulty string) ([]domain.Round, error) {
	key := poolKey(subject, difficulty)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.rounds, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.rounds, nil
		}
		r.mu.RUnlock()

		rounds, err := r.loader.LoadRounds(ctx, subject, difficulty)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = cachedPool{
			rounds:    rounds,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return rounds, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Round), nil
}

func (r *RoundRepository) sample(pool []domain.Round, count int) []domain.Round {
	if count <= 0 {
		return nil
	}
	if count > len(pool) {
		count = len(pool)
	}

	r.rndMu.Lock()
	perm := r.rnd.Perm(len(pool))
	r.rndMu.Unlock()

	out := make([]domain.Round, 0, count)
	for _, i := range perm[:count] {
		out = append(out, pool[i].Clone())
	}
	return out
}

func (r *RoundRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func poolKey(subject, difficulty string) string {
	return strings.ToLower(subject) + "/" + strings.ToLower(difficulty)
}

// StaticRoundLoader serves a fixed set of rounds (useful for tests/demos).
type StaticRoundLoader struct {
	rounds []domain.Round
}

func NewStaticRoundLoader(rounds []domain.Round) *StaticRoundLoader {
	return &StaticRoundLoader{rounds: rounds}
}

// LoadRounds returns the rounds of subject, narrowed to difficulty when any match it.
func (l *StaticRoundLoader) LoadRounds(_ context.Context, subject, difficulty string) ([]domain.Round, error) {
	var bySubject, byDifficulty []domain.Round
	for _, r := range l.rounds {
		if !strings.EqualFold(r.Subject, subject) {
			continue
		}
		bySubject = append(bySubject, r.Clone())
		if difficulty != "" && strings.EqualFold(r.Difficulty, difficulty) {
			byDifficulty = append(byDifficulty, r.Clone())
		}
	}
	if len(byDifficulty) > 0 {
		return byDifficulty, nil
	}
	return bySubject, nil
}
