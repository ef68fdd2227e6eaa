package pots

import (
	"time"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

// SelectRaffleWinner picks the player with the largest summed stake across
// the winning pots. Ties go to the earliest first-bid time on a winning pot
// the player contributed to; an exact tie on that time, or two tied players
// with no first bid at all, means nobody wins this round.
func SelectRaffleWinner(winners []domain.PotID, allocations []domain.PlayerAllocations, firstBidders map[domain.PotID]domain.FirstBidder) (string, bool) {
	sorted := make([]domain.PlayerAllocations, len(allocations))
	copy(sorted, allocations)
	domain.SortAllocations(sorted)

	type candidate struct {
		player   string
		stake    sdkmath.Int
		earliest *time.Time
	}

	var best *candidate
	tied := false
	for _, alloc := range sorted {
		stake := sdkmath.ZeroInt()
		var earliest *time.Time
		for _, id := range winners {
			amount := alloc.Amount(id)
			if !amount.IsPositive() {
				continue
			}
			next, err := domain.Add(stake, amount)
			if err != nil {
				return "", false
			}
			stake = next
			if fb, ok := firstBidders[id]; ok && fb.Player == alloc.Player {
				t := fb.Time
				if earliest == nil || t.Before(*earliest) {
					earliest = &t
				}
			}
		}
		if !stake.IsPositive() {
			continue
		}

		c := &candidate{player: alloc.Player, stake: stake, earliest: earliest}
		switch {
		case best == nil || c.stake.GT(best.stake):
			best, tied = c, false
		case c.stake.Equal(best.stake):
			switch compareEarliest(c.earliest, best.earliest) {
			case -1:
				best, tied = c, false
			case 0:
				tied = true
			}
		}
	}

	if best == nil || tied {
		return "", false
	}
	return best.player, true
}

// compareEarliest orders optional times with a missing time sorting last.
func compareEarliest(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}

// RaffleSplit divides the raffle token amount between the winner and the
// treasury. Each extension compounds the decay once.
func RaffleSplit(amount sdkmath.Int, decay sdkmath.LegacyDec, extendCount uint64) (prize, treasury sdkmath.Int, err error) {
	amount = domain.OrZero(amount)
	prize, err = domain.MulDec(amount, decay.Power(extendCount))
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	treasury, err = domain.Sub(amount, prize)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return prize, treasury, nil
}
