package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// RoundLoader fetches the question pool of a subject from a backing store (e.g., Postgres).
type RoundLoader interface {
	LoadRounds(ctx context.Context, subject, difficulty string) ([]domain.Round, error)
}

// RoundRepository caches question pools in Redis and falls back to a loader on cache miss.
// Pools are stored as JSON: SET {prefix}:rounds:{subject}/{difficulty} [...]
type RoundRepository struct {
	client redis.UniversalClient
	loader RoundLoader
	prefix string
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRoundRepository(client redis.UniversalClient, loader RoundLoader, prefix string, ttl time.Duration) *RoundRepository {
	return &RoundRepository{
		client: client,
		loader: loader,
		prefix: prefix,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
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
	key := r.poolKey(subject, difficulty)

	if rounds, ok := r.cached(ctx, key); ok {
		return rounds, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if rounds, ok := r.cached(ctx, key); ok {
			return rounds, nil
		}

		rounds, err := r.loader.LoadRounds(ctx, subject, difficulty)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(rounds)
		if err != nil {
			return nil, fmt.Errorf("marshal rounds: %w", err)
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			slog.WarnContext(ctx, "redis: cache rounds", "key", key, "error", err)
		}
		return rounds, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Round), nil
}

func (r *RoundRepository) cached(ctx context.Context, key string) ([]domain.Round, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis: read cached rounds", "key", key, "error", err)
		}
		return nil, false
	}
	var rounds []domain.Round
	if err := json.Unmarshal(raw, &rounds); err != nil {
		return nil, false
	}
	return rounds, true
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

func (r *RoundRepository) poolKey(subject, difficulty string) string {
	return fmt.Sprintf("%s:rounds:%s/%s", r.prefix, strings.ToLower(subject), strings.ToLower(difficulty))
}

func (r *RoundRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
