package battle

import (
	"fmt"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// DefaultPowerUps grants one use of every kind.
func DefaultPowerUps() map[domain.PowerUpKind]int {
	uses := make(map[domain.PowerUpKind]int, len(domain.PowerUpKinds))
	for _, k := range domain.PowerUpKinds {
		uses[k] = 1
	}
	return uses
}

// Inventory tracks the live participant's remaining power-ups and their active
// effects. Counts only ever decrease, one per consumption.
type Inventory struct {
	remaining map[domain.PowerUpKind]int
	active    map[domain.PowerUpKind]bool
	// resolved is set by the session while the current round has a result.
	resolved bool
}

// NewInventory copies uses; unknown kinds and negative counts are ignored.
func NewInventory(uses map[domain.PowerUpKind]int) *Inventory {
	inv := &Inventory{
		remaining: make(map[domain.PowerUpKind]int, len(domain.PowerUpKinds)),
		active:    make(map[domain.PowerUpKind]bool, 2),
	}
	for _, k := range domain.PowerUpKinds {
		if n := uses[k]; n > 0 {
			inv.remaining[k] = n
		} else {
			inv.remaining[k] = 0
		}
	}
	return inv
}

// CanUse reports whether kind has uses left and the current round is still open.
func (inv *Inventory) CanUse(kind domain.PowerUpKind) bool {
	return inv.check(kind) == nil
}

func (inv *Inventory) check(kind domain.PowerUpKind) error {
	n, ok := inv.remaining[kind]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPowerUp, kind)
	}
	if inv.resolved {
		return domain.ErrRoundResolved
	}
	if n <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrPowerUpUnavailable, kind)
	}
	return nil
}

// Consume spends one use of kind. Lingering kinds join the active effects.
// A rejected consumption leaves the inventory untouched.
func (inv *Inventory) Consume(kind domain.PowerUpKind) error {
	if err := inv.check(kind); err != nil {
		return err
	}
	inv.remaining[kind]--
	if kind.Lingers() {
		inv.active[kind] = true
	}
	return nil
}

// ClearEffectIfMatches drops kind from the active effects. Other effects stay.
func (inv *Inventory) ClearEffectIfMatches(kind domain.PowerUpKind) {
	delete(inv.active, kind)
}

// IsActive reports whether kind's effect is pending.
func (inv *Inventory) IsActive(kind domain.PowerUpKind) bool {
	return inv.active[kind]
}

// ActiveEffects lists the pending effects in display order.
func (inv *Inventory) ActiveEffects() []domain.PowerUpKind {
	out := make([]domain.PowerUpKind, 0, len(inv.active))
	for _, k := range domain.PowerUpKinds {
		if inv.active[k] {
			out = append(out, k)
		}
	}
	return out
}

func (inv *Inventory) clearEffects() {
	for k := range inv.active {
		delete(inv.active, k)
	}
}

// Remaining returns the uses left for kind.
func (inv *Inventory) Remaining(kind domain.PowerUpKind) int {
	return inv.remaining[kind]
}

func (inv *Inventory) markResolved(resolved bool) {
	inv.resolved = resolved
}

func (inv *Inventory) state() domain.PowerUpState {
	remaining := make(map[domain.PowerUpKind]int, len(inv.remaining))
	for k, n := range inv.remaining {
		remaining[k] = n
	}
	return domain.PowerUpState{Remaining: remaining, ActiveEffects: inv.ActiveEffects()}
}
