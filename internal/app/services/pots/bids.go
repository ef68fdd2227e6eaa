package pots

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

// BidRange is the legal deposit window at a moment in time.
type BidRange struct {
	Min sdkmath.Int `json:"min_bid"`
	Max sdkmath.Int `json:"max_bid"`
	// BaseMin is the floor before any holder discount.
	BaseMin sdkmath.Int `json:"base_min_bid"`
}

// Contains reports whether amount lies inside [Min, Max].
func (r BidRange) Contains(amount sdkmath.Int) bool {
	return amount.GTE(r.Min) && amount.LTE(r.Max)
}

// baseMinBid grows the seed floor by decay × epoch × (extensions + 1).
func baseMinBid(cfg domain.GameConfig, round domain.RoundState, now time.Time) (sdkmath.Int, error) {
	elapsed := now.Sub(round.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if cfg.GameDurationEpoch <= 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: epoch length", domain.ErrDivideByZero)
	}
	epoch := sdkmath.NewIntFromUint64(uint64(elapsed / cfg.GameDurationEpoch))

	steps, err := domain.Mul(epoch, sdkmath.NewIntFromUint64(round.ExtendCount+1))
	if err != nil {
		return sdkmath.Int{}, err
	}
	multiplier := sdkmath.LegacyOneDec().Add(cfg.DecayFactor.MulInt(steps))
	return domain.MulDec(cfg.MinPotInitialAllocation, multiplier)
}

// discountedBid compounds the holder discount once per held token.
func discountedBid(base sdkmath.Int, tokens uint64, decay sdkmath.LegacyDec) (sdkmath.Int, error) {
	current := base
	for i := uint64(0); i < tokens && current.IsPositive(); i++ {
		discount, err := domain.MulDec(current, decay)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if discount.IsZero() {
			break
		}
		if current, err = domain.Sub(current, discount); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return current, nil
}

// maxBid doubles the average pot, never dropping below twice the base floor.
func maxBid(p domain.Pots, base sdkmath.Int) (sdkmath.Int, error) {
	total, err := p.Total()
	if err != nil {
		return sdkmath.Int{}, err
	}
	avg, err := domain.Quo(total, sdkmath.NewInt(domain.PotCount))
	if err != nil {
		return sdkmath.Int{}, err
	}
	limit, err := domain.Mul(avg, sdkmath.NewInt(2))
	if err != nil {
		return sdkmath.Int{}, err
	}
	floor, err := domain.Mul(base, sdkmath.NewInt(2))
	if err != nil {
		return sdkmath.Int{}, err
	}
	if limit.LT(floor) {
		return floor, nil
	}
	return limit, nil
}

func (s *Service) heldTokens(ctx context.Context, cfg domain.GameConfig, player string) (uint64, error) {
	if player == "" || s.nfts == nil {
		return 0, nil
	}
	var total uint64
	for _, col := range cfg.NftCollections {
		n, err := s.nfts.TokenCount(ctx, col.Address, player)
		if err != nil {
			return 0, fmt.Errorf("count %s tokens: %w", col.Address, err)
		}
		if total+n < total {
			return 0, domain.ErrOverflow
		}
		total += n
	}
	return total, nil
}

// bidRange computes the legal window for player, or the undiscounted window
// when player is empty.
func (s *Service) bidRange(ctx context.Context, cfg domain.GameConfig, round domain.RoundState, p domain.Pots, now time.Time, player string) (BidRange, error) {
	base, err := baseMinBid(cfg, round, now)
	if err != nil {
		return BidRange{}, err
	}
	tokens, err := s.heldTokens(ctx, cfg, player)
	if err != nil {
		return BidRange{}, err
	}
	min, err := discountedBid(base, tokens, cfg.DecayFactor)
	if err != nil {
		return BidRange{}, err
	}
	max, err := maxBid(p, base)
	if err != nil {
		return BidRange{}, err
	}
	return BidRange{Min: min, Max: max, BaseMin: base}, nil
}
