package pots

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

func notInstantiated(err error) error {
	if storage.IsNotFound(err) {
		return domain.ErrNotInstantiated
	}
	return err
}

// Config returns the stored configuration.
func (s *Service) Config(ctx context.Context) (domain.GameConfig, error) {
	var cfg domain.GameConfig
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		cfg, err = tx.Config(ctx)
		return notInstantiated(err)
	})
	return cfg, err
}

// Round returns the current round clock.
func (s *Service) Round(ctx context.Context) (domain.RoundState, error) {
	var round domain.RoundState
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		round, err = tx.Round(ctx)
		return notInstantiated(err)
	})
	return round, err
}

// Pot returns one pot's amount.
func (s *Service) Pot(ctx context.Context, id domain.PotID) (sdkmath.Int, error) {
	if !id.Valid() {
		return sdkmath.Int{}, fmt.Errorf("%w: %d", domain.ErrInvalidPot, id)
	}
	p, err := s.Pots(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return p.Get(id), nil
}

// Pots returns all five pot amounts.
func (s *Service) Pots(ctx context.Context) (domain.Pots, error) {
	var p domain.Pots
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.Pots(ctx)
		return err
	})
	return p, err
}

// WinningPots evaluates the pot rules against the current amounts.
func (s *Service) WinningPots(ctx context.Context) ([]domain.PotID, error) {
	var winners []domain.PotID
	err := s.view(ctx, func(tx storage.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		p, err := tx.Pots(ctx)
		if err != nil {
			return err
		}
		winners = domain.WinningPots(p, cfg.MedianMode)
		return nil
	})
	return winners, err
}

// BidRange returns the deposit window at now. An empty player gets the
// window without holder discount.
func (s *Service) BidRange(ctx context.Context, now time.Time, player string) (BidRange, error) {
	now = normalizeTime(now)
	var r BidRange
	err := s.view(ctx, func(tx storage.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		round, err := tx.Round(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		p, err := tx.Pots(ctx)
		if err != nil {
			return err
		}
		r, err = s.bidRange(ctx, cfg, round, p, now, player)
		return err
	})
	return r, err
}

// PlayerAllocations returns one player's stakes this round.
func (s *Service) PlayerAllocations(ctx context.Context, player string) (domain.PlayerAllocations, error) {
	var alloc domain.PlayerAllocations
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		alloc, err = tx.PlayerAllocations(ctx, player)
		return err
	})
	return alloc, err
}

// AllPlayerAllocations returns every player's stakes, ordered by player.
func (s *Service) AllPlayerAllocations(ctx context.Context) ([]domain.PlayerAllocations, error) {
	var all []domain.PlayerAllocations
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		all, err = tx.ListPlayerAllocations(ctx)
		return err
	})
	return all, err
}

// PlayerReallocations returns how many reallocations player used this round.
func (s *Service) PlayerReallocations(ctx context.Context, player string) (uint64, error) {
	var n uint64
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.ReallocationCount(ctx, player)
		return err
	})
	return n, err
}

// ReallocationFeePool returns the fees collected from reallocations this round.
func (s *Service) ReallocationFeePool(ctx context.Context) (sdkmath.Int, error) {
	var pool sdkmath.Int
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		pool, err = tx.ReallocationFeePool(ctx)
		return err
	})
	return pool, err
}

// Raffle returns the carried raffle prize.
func (s *Service) Raffle(ctx context.Context) (domain.Raffle, error) {
	var r domain.Raffle
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		r, err = tx.Raffle(ctx)
		return err
	})
	return r, err
}

// RaffleWinner projects who would win the raffle if the round settled now.
func (s *Service) RaffleWinner(ctx context.Context) (string, bool, error) {
	var (
		winner string
		ok     bool
	)
	err := s.view(ctx, func(tx storage.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		p, err := tx.Pots(ctx)
		if err != nil {
			return err
		}
		allocations, err := tx.ListPlayerAllocations(ctx)
		if err != nil {
			return err
		}
		firstBidders, err := tx.ListFirstBidders(ctx)
		if err != nil {
			return err
		}
		winner, ok = SelectRaffleWinner(domain.WinningPots(p, cfg.MedianMode), allocations, firstBidders)
		return nil
	})
	return winner, ok, err
}

// RaffleShares is the projected split of the raffle token amount.
type RaffleShares struct {
	Winner   sdkmath.Int `json:"raffle_winner"`
	Treasury sdkmath.Int `json:"treasury"`
}

// RaffleDenomSplit projects the raffle split at the current extend count.
func (s *Service) RaffleDenomSplit(ctx context.Context) (RaffleShares, error) {
	var shares RaffleShares
	err := s.view(ctx, func(tx storage.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		round, err := tx.Round(ctx)
		if err != nil {
			return notInstantiated(err)
		}
		raffle, err := tx.Raffle(ctx)
		if err != nil {
			return err
		}
		shares.Winner, shares.Treasury, err = RaffleSplit(raffle.Amount, cfg.DecayFactor, round.ExtendCount)
		return err
	})
	return shares, err
}

// Pending returns the provisional action awaiting NFT acknowledgements, if any.
func (s *Service) Pending(ctx context.Context) (domain.PendingAction, bool, error) {
	var (
		p  domain.PendingAction
		ok bool
	)
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		p, ok, err = tx.PendingAction(ctx)
		return err
	})
	return p, ok, err
}

// Custody reports the tracked balances against the custodied total.
func (s *Service) Custody(ctx context.Context) (domain.Conservation, error) {
	var c domain.Conservation
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		c, err = conservation(ctx, tx)
		return err
	})
	return c, err
}
