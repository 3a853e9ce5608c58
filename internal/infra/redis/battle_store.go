package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/app"
)

// BattleStore is a Redis-aware implementation of app.BattleRepository.
// Battles still live in a local map because their clock and subscribers are
// in-process; Redis only records which battles are running and for whom, so
// other instances and operators can see them.
type BattleStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	mu      sync.RWMutex
	battles map[string]*app.Battle
}

func NewBattleStore(client redis.UniversalClient, prefix string, ttl time.Duration) *BattleStore {
	return &BattleStore{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		battles: make(map[string]*app.Battle),
	}
}

func (s *BattleStore) Put(b *app.Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[b.ID()] = b
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(b.ID()), b.UserID(), s.ttl).Err(); err != nil {
		slog.Warn("redis: mark battle live", "battle_id", b.ID(), "error", err)
	}
}

func (s *BattleStore) Get(battleID string) (*app.Battle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.battles[battleID]
	return b, ok
}

func (s *BattleStore) Delete(battleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.battles[battleID]; !ok {
		return
	}
	delete(s.battles, battleID)
	_ = s.client.Del(context.Background(), s.key(battleID)).Err()
}

func (s *BattleStore) key(battleID string) string {
	return s.prefix + ":battle:" + battleID
}
