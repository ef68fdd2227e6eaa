package pots

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// extendIfLate pushes the end time out when an action lands inside the
// extension window. An ended round is never reopened.
func extendIfLate(cfg domain.GameConfig, round domain.RoundState, now time.Time) (domain.RoundState, bool) {
	if !now.Before(round.EndTime) {
		return round, false
	}
	if round.EndTime.Sub(now) > cfg.GameExtend {
		return round, false
	}
	round.EndTime = now.Add(cfg.GameExtend)
	round.ExtendCount++
	return round, true
}

// authorizeSettlement lets the administrator settle as soon as the round has
// ended and anyone once the grace threshold has also elapsed.
func (s *Service) authorizeSettlement(ctx context.Context, caller string, cfg domain.GameConfig, round domain.RoundState, now time.Time) error {
	if now.Before(round.EndTime) {
		return domain.ErrGameStillActive
	}
	admin, err := s.isAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}
	if now.Before(round.EndTime.Add(cfg.GameEndThreshold)) {
		return fmt.Errorf("%w: settlement is permissionless after %s", domain.ErrUnauthorized,
			round.EndTime.Add(cfg.GameEndThreshold).Format(time.RFC3339))
	}
	return nil
}

// resetRound clears round-scoped records, reseeds the pots from the free
// custody balance and opens the next round. It must run after every
// outgoing transfer has been deducted from custody.
func resetRound(ctx context.Context, tx storage.Tx, cfg domain.GameConfig, round domain.RoundState, start time.Time) (domain.RoundState, sdkmath.Int, error) {
	custody, err := tx.Custody(ctx)
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	raffle, err := tx.Raffle(ctx)
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	pool, err := tx.ReallocationFeePool(ctx)
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}

	free, err := domain.Sub(custody, raffle.Amount)
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if free, err = domain.Sub(free, pool); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	seed, err := domain.Quo(free, sdkmath.NewInt(domain.PotCount))
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if seed.LT(cfg.MinPotInitialAllocation) {
		return domain.RoundState{}, sdkmath.Int{}, &domain.NotEnoughFundsError{Seed: seed, Minimum: cfg.MinPotInitialAllocation}
	}
	seeded, err := domain.Mul(seed, sdkmath.NewInt(domain.PotCount))
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	residual, err := domain.Sub(free, seeded)
	if err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}

	if err := tx.ClearPlayerAllocations(ctx); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if err := tx.ClearReallocationCounts(ctx); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if err := tx.ClearFirstBidders(ctx); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if err := tx.SavePots(ctx, domain.SeededPots(seed)); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	if err := tx.SaveResidual(ctx, residual); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}

	next := domain.RoundState{
		RoundCount:  round.RoundCount + 1,
		ExtendCount: 0,
		StartTime:   start,
		EndTime:     start.Add(cfg.GameDuration),
	}
	if err := tx.SaveRound(ctx, next); err != nil {
		return domain.RoundState{}, sdkmath.Int{}, err
	}
	return next, seed, nil
}

// nextStart picks the requested start or now, rejecting a start not after now.
func nextStart(requested *time.Time, now time.Time) (time.Time, error) {
	if requested == nil {
		return now, nil
	}
	start := normalizeTime(*requested)
	if !start.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrInvalidNextRoundStart, start.Format(time.RFC3339))
	}
	return start, nil
}
