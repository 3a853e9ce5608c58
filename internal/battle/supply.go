package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

// MinViableRounds is the fewest usable rounds a source must return before the
// static fallback set is used instead. Requests for fewer rounds only need
// to be served in full.
const MinViableRounds = 3

// RoundSource produces the ordered rounds of a session.
type RoundSource interface {
	FetchRounds(ctx context.Context, subject, difficulty string, count int) ([]domain.Round, error)
}

// FallbackReason explains why the static set was used.
type FallbackReason string

const (
	FallbackNoSource     FallbackReason = "no_source"
	FallbackError        FallbackReason = "error"
	FallbackInsufficient FallbackReason = "insufficient"
)

// SupplyOption configures a Supply.
type SupplyOption func(*Supply)

// WithSupplyLogger sets the logger used to report fallbacks.
func WithSupplyLogger(l *slog.Logger) SupplyOption {
	return func(s *Supply) { s.logger = l }
}

// WithFallbackHook registers a callback invoked every time the fallback set is used.
func WithFallbackHook(fn func(FallbackReason)) SupplyOption {
	return func(s *Supply) { s.onFallback = fn }
}

// Supply asks a primary source once and degrades to a fixed local set when the
// source fails or returns fewer than MinViableRounds usable rounds. It never
// returns an error as long as the fallback set is non-empty.
type Supply struct {
	primary    RoundSource
	fallback   []domain.Round
	logger     *slog.Logger
	onFallback func(FallbackReason)
}

// NewSupply builds a supply. primary may be nil, in which case the fallback set
// is always used.
func NewSupply(primary RoundSource, fallback []domain.Round, opts ...SupplyOption) *Supply {
	s := &Supply{
		primary:  primary,
		fallback: usableRounds(fallback),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchRounds implements RoundSource.
func (s *Supply) FetchRounds(ctx context.Context, subject, difficulty string, count int) ([]domain.Round, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: round count %d", domain.ErrInvalidConfig, count)
	}

	if s.primary == nil {
		return s.useFallback(ctx, FallbackNoSource, subject, count, nil)
	}

	rounds, err := s.primary.FetchRounds(ctx, subject, difficulty, count)
	if err != nil {
		return s.useFallback(ctx, FallbackError, subject, count, err)
	}

	usable := usableRounds(rounds)
	if len(usable) < min(MinViableRounds, count) {
		return s.useFallback(ctx, FallbackInsufficient, subject, count,
			fmt.Errorf("%w: got %d usable of %d", domain.ErrSupplyInsufficient, len(usable), len(rounds)))
	}
	if len(usable) > count {
		usable = usable[:count]
	}
	return usable, nil
}

func (s *Supply) useFallback(ctx context.Context, reason FallbackReason, subject string, count int, cause error) ([]domain.Round, error) {
	if len(s.fallback) == 0 {
		return nil, errors.Join(domain.ErrSupplyInsufficient, cause)
	}

	attrs := []any{"reason", reason, "subject", subject, "count", count}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	s.logger.WarnContext(ctx, "supply: using fallback rounds", attrs...)
	if s.onFallback != nil {
		s.onFallback(reason)
	}

	return fitRounds(s.fallback, count), nil
}

// fitRounds truncates or cycles rounds to exactly count entries. Repeated
// rounds get a suffixed id so every round in a session stays distinct.
func fitRounds(rounds []domain.Round, count int) []domain.Round {
	out := make([]domain.Round, 0, count)
	for i := 0; i < count; i++ {
		r := rounds[i%len(rounds)].Clone()
		if pass := i / len(rounds); pass > 0 {
			r.ID = fmt.Sprintf("%s~%d", r.ID, pass+1)
		}
		out = append(out, r)
	}
	return out
}

func usableRounds(rounds []domain.Round) []domain.Round {
	out := make([]domain.Round, 0, len(rounds))
	for _, r := range rounds {
		if r.Validate() == nil {
			out = append(out, r.Clone())
		}
	}
	return out
}
