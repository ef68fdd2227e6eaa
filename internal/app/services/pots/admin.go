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

// Instantiate stores the configuration, takes funds into custody and opens
// round one. Raffle inputs in opts seed the first raffle.
func (s *Service) Instantiate(ctx context.Context, caller string, cfg domain.GameConfig, funds sdkmath.Int, opts SettleOptions, now time.Time) (domain.Receipt, error) {
	now = normalizeTime(now)
	receipt := s.newReceipt("instantiate")

	if err := s.requireAdmin(ctx, caller); err != nil {
		return domain.Receipt{}, fmt.Errorf("instantiate: %w", err)
	}
	if cfg.MedianMode == "" {
		cfg.MedianMode = domain.MedianUnique
	}
	if err := cfg.Validate(); err != nil {
		return domain.Receipt{}, fmt.Errorf("instantiate: %w", err)
	}
	if err := s.validateAddress(cfg.Treasury); err != nil {
		return domain.Receipt{}, fmt.Errorf("instantiate: treasury: %w", err)
	}
	if err := opts.validate(); err != nil {
		return domain.Receipt{}, fmt.Errorf("instantiate: %w", err)
	}
	funds = domain.OrZero(funds)
	if funds.IsNegative() {
		return domain.Receipt{}, fmt.Errorf("instantiate: %w: funds must not be negative", domain.ErrInvalidFunds)
	}

	var round domain.RoundState
	var seed sdkmath.Int
	err := s.atomic(ctx, "instantiate", func(tx storage.Tx) error {
		if _, err := tx.Config(ctx); err == nil {
			return domain.ErrAlreadyInstantiated
		} else if !storage.IsNotFound(err) {
			return err
		}
		before, err := takeSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		start, err := nextStart(opts.NextRoundStart, now)
		if err != nil {
			return err
		}

		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		if err := tx.SaveCustody(ctx, funds); err != nil {
			return err
		}
		if err := tx.SaveReallocationFeePool(ctx, sdkmath.ZeroInt()); err != nil {
			return err
		}
		if _, err := s.stageRaffle(ctx, tx, &receipt, caller, domain.Raffle{Amount: sdkmath.ZeroInt()}, opts); err != nil {
			return err
		}
		if round, seed, err = resetRound(ctx, tx, cfg, domain.RoundState{}, start); err != nil {
			return err
		}
		if err := s.holdPending(ctx, tx, &receipt, before, now); err != nil {
			return err
		}
		return checkConservation(ctx, tx)
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	metrics.RecordRound(round, domain.SeededPots(seed))
	s.log.WithField("action_id", receipt.ActionID).
		WithField("round", round.RoundCount).
		WithField("start", round.StartTime).
		WithField("seed", seed.String()).
		Info("game instantiated")
	return receipt, nil
}

// UpdateConfig merges update into the stored configuration.
func (s *Service) UpdateConfig(ctx context.Context, caller string, update domain.ConfigUpdate) (domain.GameConfig, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return domain.GameConfig{}, fmt.Errorf("update_config: %w", err)
	}
	if update.Treasury != nil {
		if err := s.validateAddress(*update.Treasury); err != nil {
			return domain.GameConfig{}, fmt.Errorf("update_config: treasury: %w", err)
		}
	}

	var next domain.GameConfig
	err := s.atomic(ctx, "update_config", func(tx storage.Tx) error {
		game, err := loadGame(ctx, tx)
		if err != nil {
			return err
		}
		if next, err = update.Apply(game.cfg); err != nil {
			return err
		}
		return tx.SaveConfig(ctx, next)
	})
	if err != nil {
		return domain.GameConfig{}, err
	}
	s.log.WithField("caller", caller).Info("config updated")
	return next, nil
}

// UpdateNextRound changes the inputs of a round that has not started yet: its
// start time, the raffle funds or the raffle NFT.
func (s *Service) UpdateNextRound(ctx context.Context, caller string, opts SettleOptions, now time.Time) (domain.Receipt, error) {
	now = normalizeTime(now)
	receipt := s.newReceipt("update_next_round")

	if err := s.requireAdmin(ctx, caller); err != nil {
		return domain.Receipt{}, fmt.Errorf("update_next_round: %w", err)
	}
	if err := opts.validate(); err != nil {
		return domain.Receipt{}, fmt.Errorf("update_next_round: %w", err)
	}

	var round domain.RoundState
	err := s.atomic(ctx, "update_next_round", func(tx storage.Tx) error {
		before, err := takeSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		game, err := loadGame(ctx, tx)
		if err != nil {
			return err
		}
		if phase := game.round.Phase(now); phase != domain.PhaseNotStarted {
			return fmt.Errorf("%w: round %d is %s", domain.ErrInvalidNextRoundStart, game.round.RoundCount, phase)
		}

		round = game.round
		if opts.NextRoundStart != nil {
			start, err := nextStart(opts.NextRoundStart, now)
			if err != nil {
				return err
			}
			round.StartTime = start
			round.EndTime = start.Add(game.cfg.GameDuration)
			if err := tx.SaveRound(ctx, round); err != nil {
				return err
			}
		}

		raffle, err := tx.Raffle(ctx)
		if err != nil {
			return err
		}
		if _, err := s.stageRaffle(ctx, tx, &receipt, caller, raffle, opts); err != nil {
			return err
		}
		if err := s.holdPending(ctx, tx, &receipt, before, now); err != nil {
			return err
		}
		return checkConservation(ctx, tx)
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	s.log.WithField("action_id", receipt.ActionID).
		WithField("round", round.RoundCount).
		WithField("start", round.StartTime).
		WithField("pending", receipt.Pending).
		Info("next round updated")
	return receipt, nil
}

// Fund adds amount to custody. It lands in the residual and joins the next
// reseed.
func (s *Service) Fund(ctx context.Context, caller string, amount sdkmath.Int) error {
	if err := requirePositive(amount, "funding"); err != nil {
		return fmt.Errorf("fund: %w", err)
	}
	err := s.atomic(ctx, "fund", func(tx storage.Tx) error {
		if _, err := loadGame(ctx, tx); err != nil {
			return err
		}
		residual, err := tx.Residual(ctx)
		if err != nil {
			return err
		}
		if residual, err = domain.Add(residual, amount); err != nil {
			return err
		}
		if err := tx.SaveResidual(ctx, residual); err != nil {
			return err
		}
		if err := adjustCustody(ctx, tx, amount); err != nil {
			return err
		}
		return checkConservation(ctx, tx)
	})
	if err != nil {
		return err
	}
	metrics.RecordDeposit(amount)
	s.log.WithField("caller", caller).WithField("amount", amount.String()).Info("custody funded")
	return nil
}
