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

// Deposit allocates amount from player into pot. The amount is taken into
// custody and must fall inside the current bid range.
func (s *Service) Deposit(ctx context.Context, player string, pot domain.PotID, amount sdkmath.Int, now time.Time) (domain.Receipt, error) {
	now = normalizeTime(now)
	receipt := s.newReceipt("deposit")

	if !pot.Valid() {
		return domain.Receipt{}, fmt.Errorf("deposit: %w: %d", domain.ErrInvalidPot, pot)
	}
	if err := s.validateAddress(player); err != nil {
		return domain.Receipt{}, fmt.Errorf("deposit: %w", err)
	}
	if err := requirePositive(amount, "deposit amount"); err != nil {
		return domain.Receipt{}, fmt.Errorf("deposit: %w", err)
	}

	var round domain.RoundState
	var potsAfter domain.Pots
	var extended bool
	err := s.atomic(ctx, "deposit", func(tx storage.Tx) error {
		game, err := loadGame(ctx, tx)
		if err != nil {
			return err
		}
		if err := game.round.Phase(now).RequireActive(); err != nil {
			return err
		}

		alloc, err := tx.PlayerAllocations(ctx, player)
		if err != nil {
			return err
		}
		if alloc.Holds(pot) {
			return fmt.Errorf("%w: pot %d", domain.ErrAlreadyAllocated, pot)
		}

		l, err := loadLedger(ctx, tx)
		if err != nil {
			return err
		}
		bounds, err := s.bidRange(ctx, game.cfg, game.round, l.all(), now, player)
		if err != nil {
			return err
		}
		if !bounds.Contains(amount) {
			return &domain.BidOutOfRangeError{Min: bounds.Min, Max: bounds.Max}
		}

		if err := l.increase(pot, amount); err != nil {
			return err
		}
		if err := l.checkLimit(pot); err != nil {
			return err
		}
		if err := l.allocate(ctx, player, pot, amount, true); err != nil {
			return err
		}
		if err := l.save(ctx); err != nil {
			return err
		}
		if err := adjustCustody(ctx, tx, amount); err != nil {
			return err
		}

		if _, ok, err := tx.FirstBidder(ctx, pot); err != nil {
			return err
		} else if !ok {
			if err := tx.SaveFirstBidder(ctx, pot, domain.FirstBidder{Player: player, Time: now}); err != nil {
				return err
			}
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

	metrics.RecordDeposit(amount)
	metrics.RecordRound(round, potsAfter)
	s.log.WithField("action_id", receipt.ActionID).
		WithField("player", player).
		WithField("pot", pot).
		WithField("amount", amount.String()).
		WithField("extended", extended).
		Info("deposit accepted")
	return receipt, nil
}
