package pots

import (
	"sort"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

// Payout is one player's share of one qualifying pot.
type Payout struct {
	Player string       `json:"player"`
	Pot    domain.PotID `json:"pot_id"`
	Amount sdkmath.Int  `json:"amount"`
}

// Distribution is the outcome of settling the pots.
type Distribution struct {
	Winners    []domain.PotID `json:"winning_pots"`
	Qualifying []domain.PotID `json:"qualifying_pots"`
	// LosingTotal includes winning pots nobody allocated to.
	LosingTotal        sdkmath.Int `json:"losing_total"`
	DistributionAmount sdkmath.Int `json:"distribution_amount"`
	Fees               sdkmath.Int `json:"fees"`
	PlayersTotal       sdkmath.Int `json:"players_total"`
	Payouts            []Payout    `json:"payouts"`
}

// PlayerTotals sums payouts per player, ordered by player.
func (d Distribution) PlayerTotals() ([]Payout, error) {
	byPlayer := make(map[string]sdkmath.Int)
	for _, p := range d.Payouts {
		next, err := domain.Add(domain.OrZero(byPlayer[p.Player]), p.Amount)
		if err != nil {
			return nil, err
		}
		byPlayer[p.Player] = next
	}
	out := make([]Payout, 0, len(byPlayer))
	for player, amount := range byPlayer {
		out = append(out, Payout{Player: player, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out, nil
}

// Distribute splits the round's pots. Half of the losing total is shared
// among winning pots with allocations, weighted by pot total; each such pot
// then pays its share plus its own total, less the fee, to its contributors
// pro rata. Every division floors. Whatever is not paid out stays in custody.
func Distribute(p domain.Pots, winners []domain.PotID, allocations []domain.PlayerAllocations, feePercent uint64) (Distribution, error) {
	stakes := make(map[domain.PotID]sdkmath.Int, domain.PotCount)
	for _, id := range domain.AllPotIDs() {
		stakes[id] = sdkmath.ZeroInt()
	}
	for _, alloc := range allocations {
		for _, a := range alloc.Allocations {
			if !a.Pot.Valid() {
				continue
			}
			next, err := domain.Add(stakes[a.Pot], a.Amount)
			if err != nil {
				return Distribution{}, err
			}
			stakes[a.Pot] = next
		}
	}

	d := Distribution{
		Winners:            append([]domain.PotID(nil), winners...),
		LosingTotal:        sdkmath.ZeroInt(),
		DistributionAmount: sdkmath.ZeroInt(),
		Fees:               sdkmath.ZeroInt(),
		PlayersTotal:       sdkmath.ZeroInt(),
	}

	qualifyingTotal := sdkmath.ZeroInt()
	for _, id := range domain.AllPotIDs() {
		var err error
		if domain.IsWinning(winners, id) && stakes[id].IsPositive() {
			d.Qualifying = append(d.Qualifying, id)
			qualifyingTotal, err = domain.Add(qualifyingTotal, p.Get(id))
		} else {
			d.LosingTotal, err = domain.Add(d.LosingTotal, p.Get(id))
		}
		if err != nil {
			return Distribution{}, err
		}
	}
	if len(d.Qualifying) == 0 {
		return d, nil
	}

	var err error
	if d.DistributionAmount, err = domain.Quo(d.LosingTotal, sdkmath.NewInt(2)); err != nil {
		return Distribution{}, err
	}

	for _, id := range d.Qualifying {
		share, err := domain.MulDiv(d.DistributionAmount, p.Get(id), qualifyingTotal)
		if err != nil {
			return Distribution{}, err
		}
		potTotal, err := domain.Add(share, p.Get(id))
		if err != nil {
			return Distribution{}, err
		}
		fee, err := domain.Percent(potTotal, feePercent)
		if err != nil {
			return Distribution{}, err
		}
		if d.Fees, err = domain.Add(d.Fees, fee); err != nil {
			return Distribution{}, err
		}
		net, err := domain.Sub(potTotal, fee)
		if err != nil {
			return Distribution{}, err
		}

		for _, alloc := range allocations {
			stake := alloc.Amount(id)
			if !stake.IsPositive() {
				continue
			}
			amount, err := domain.MulDiv(net, stake, stakes[id])
			if err != nil {
				return Distribution{}, err
			}
			if amount.IsZero() {
				continue
			}
			d.Payouts = append(d.Payouts, Payout{Player: alloc.Player, Pot: id, Amount: amount})
			if d.PlayersTotal, err = domain.Add(d.PlayersTotal, amount); err != nil {
				return Distribution{}, err
			}
		}
	}

	sort.SliceStable(d.Payouts, func(i, j int) bool {
		if d.Payouts[i].Player != d.Payouts[j].Player {
			return d.Payouts[i].Player < d.Payouts[j].Player
		}
		return d.Payouts[i].Pot < d.Payouts[j].Pot
	})
	return d, nil
}
