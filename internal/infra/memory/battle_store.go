package memory

import (
	"sync"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/app"
)

// BattleStore is an in-memory implementation of app.BattleRepository.
type BattleStore struct {
	mu      sync.RWMutex
	battles map[string]*app.Battle
}

func NewBattleStore() *BattleStore {
	return &BattleStore{
		battles: make(map[string]*app.Battle),
	}
}

func (s *BattleStore) Put(b *app.Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[b.ID()] = b
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
	delete(s.battles, battleID)
}

// Len reports how many battles are registered.
func (s *BattleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.battles)
}
