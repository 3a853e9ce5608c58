package domain

import "errors"

var (
	// ErrBattleNotFound is returned when a battle id is unknown or was discarded.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrInvalidStage rejects an action that the current stage does not accept.
	ErrInvalidStage = errors.New("action not allowed in current stage")
	// ErrInvalidOption rejects an answer index outside the round's options.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrRoundResolved rejects actions arriving after the round already resolved.
	ErrRoundResolved = errors.New("round already resolved")
	// ErrPowerUpUnavailable rejects a power-up with no remaining uses.
	ErrPowerUpUnavailable = errors.New("power-up has no remaining uses")
	// ErrUnknownPowerUp rejects an unrecognised power-up name.
	ErrUnknownPowerUp = errors.New("unknown power-up")
	// ErrNotEnoughParticipants blocks the countdown until a second participant joins.
	ErrNotEnoughParticipants = errors.New("need at least one more participant")
	// ErrTooManyParticipants rejects a lobby larger than the battle allows.
	ErrTooManyParticipants = errors.New("too many participants")
	// ErrInvalidConfig rejects a battle configuration outside supported bounds.
	ErrInvalidConfig = errors.New("invalid battle configuration")
	// ErrInvalidSkillProfile rejects a bot profile outside [0,1].
	ErrInvalidSkillProfile = errors.New("invalid bot skill profile")
	// ErrInvalidRound marks question content that cannot be played.
	ErrInvalidRound = errors.New("invalid round")
	// ErrSupplyInsufficient marks a question source that returned too few usable rounds.
	ErrSupplyInsufficient = errors.New("question supply returned too few rounds")
)

// IsRejection reports whether err is an engine rejection: the action was a no-op
// and the session is unchanged.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidStage,
		ErrInvalidOption,
		ErrRoundResolved,
		ErrPowerUpUnavailable,
		ErrUnknownPowerUp,
		ErrNotEnoughParticipants,
		ErrTooManyParticipants,
		ErrInvalidConfig,
		ErrInvalidSkillProfile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
