package pots

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/metrics"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// Reallocate moves the player's full stake from one pot to a pot they do not
// hold yet, skimming the reallocation fee into the fee pool.
func (s *Service) Reallocate(ctx context.Context, player string, from, to domain.PotID, now time.Time) (domain.Receipt, error) {
	now = normalizeTime(now)
	receipt := s.newReceipt("reallocate")

	if !from.Valid() || !to.Valid() {
		return domain.Receipt{}, fmt.Errorf("reallocate: %w: %d -> %d", domain.ErrInvalidPot, from, to)
	}
	if from == to {
		return domain.Receipt{}, fmt.Errorf("reallocate: %w: source and destination pot are the same", domain.ErrInvalidInput)
	}
	if err := s.validateAddress(player); err != nil {
		return domain.Receipt{}, fmt.Errorf("reallocate: %w", err)
	}

	var (
		round     domain.RoundState
		potsAfter domain.Pots
		stake     sdkmath.Int
		fee       sdkmath.Int
		count     uint64
		extended  bool
	)
	err := s.atomic(ctx, "reallocate", func(tx storage.Tx) error {
		game, err := loadGame(ctx, tx)
		if err != nil {
			return err
		}
		if err := game.round.Phase(now).RequireActive(); err != nil {
			return err
		}

		count, err = tx.ReallocationCount(ctx, player)
		if err != nil {
			return err
		}
		if count >= game.cfg.ReallocationsLimit {
			return fmt.Errorf("%w: %d of %d used", domain.ErrReallocationsLimitReached, count, game.cfg.ReallocationsLimit)
		}
		count++

		alloc, err := tx.PlayerAllocations(ctx, player)
		if err != nil {
			return err
		}
		if alloc.Holds(to) {
			return fmt.Errorf("%w: pot %d", domain.ErrAlreadyAllocated, to)
		}
		stake = alloc.Amount(from)
		if stake.IsZero() {
			return &domain.InsufficientFundsError{Available: stake, Requested: stake}
		}

		fee, err = domain.Percent(stake, game.cfg.FeeReallocationPercent)
		if err != nil {
			return err
		}
		net, err := domain.Sub(stake, fee)
		if err != nil {
			return err
		}

		l, err := loadLedger(ctx, tx)
		if err != nil {
			return err
		}
		if err := l.decrease(from, stake); err != nil {
			return err
		}
		if err := l.increase(to, net); err != nil {
			return err
		}
		if err := l.checkLimit(to); err != nil {
			return err
		}
		if err := l.allocate(ctx, player, from, stake, false); err != nil {
			return err
		}
		if net.IsPositive() {
			if err := l.allocate(ctx, player, to, net, true); err != nil {
				return err
			}
		}
		if err := l.save(ctx); err != nil {
			return err
		}

		pool, err := tx.ReallocationFeePool(ctx)
		if err != nil {
			return err
		}
		if pool, err = domain.Add(pool, fee); err != nil {
			return err
		}
		if err := tx.SaveReallocationFeePool(ctx, pool); err != nil {
			return err
		}
		if err := tx.SaveReallocationCount(ctx, player, count); err != nil {
			return err
		}

		round, extended = extendIfLate(game.cfg, game.round, now)
		if err := tx.SaveRound(ctx, round); err != nil {
			return err
		}
		potsAfter = l.all()
		return checkConservation(ctx, tx)
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	metrics.RecordRound(round, potsAfter)
	s.log.WithField("action_id", receipt.ActionID).
		WithField("player", player).
		WithField("from", from).
		WithField("to", to).
		WithField("stake", stake.String()).
		WithField("fee", fee.String()).
		WithField("reallocations", count).
		WithField("extended", extended).
		Info("reallocation accepted")
	return receipt, nil
}
