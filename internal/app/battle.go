package app

import (
	"sync"
	"time"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// Ticker delivers the one-second heartbeat of a battle.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Battle hosts one engine session. Every event, user action or tick, runs under
// mu so the session only ever sees one event at a time.
type Battle struct {
	id     string
	userID string

	mu          sync.Mutex
	session     *battle.Session
	subscribers map[chan domain.Snapshot]struct{}
	recorded    int
	left        bool
	expiry      *time.Timer

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBattle is exported for infrastructure layers that need to seed battles.
func NewBattle(id, userID string, session *battle.Session) *Battle {
	return newBattle(id, userID, session)
}

func newBattle(id, userID string, session *battle.Session) *Battle {
	return &Battle{
		id:          id,
		userID:      userID,
		session:     session,
		subscribers: make(map[chan domain.Snapshot]struct{}),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the battle id.
func (b *Battle) ID() string { return b.id }

// UserID returns the live participant's id.
func (b *Battle) UserID() string { return b.userID }

// Stage returns the current stage.
func (b *Battle) Stage() domain.Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.Stage()
}

func (b *Battle) subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	initial := b.session.Snapshot()
	b.mu.Unlock()

	ch <- initial

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked pushes the current snapshot to every subscriber. A slow
// subscriber loses its oldest pending snapshot rather than blocking the battle.
func (b *Battle) broadcastLocked() domain.Snapshot {
	snap := b.session.Snapshot()
	for ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (b *Battle) closeSubscribersLocked() {
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// newRecordsLocked returns the answer records appended since the last call.
func (b *Battle) newRecordsLocked() []domain.AnswerRecord {
	history := b.session.History()
	if len(history) <= b.recorded {
		return nil
	}
	fresh := history[b.recorded:]
	b.recorded = len(history)
	return fresh
}

// halt stops the driver and waits for it to exit.
func (b *Battle) halt() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}
