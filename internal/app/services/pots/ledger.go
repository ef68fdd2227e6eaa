package pots

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// ledger is the pot bookkeeping for one action. Pot totals are loaded once,
// mutated in place and written back by save; allocations go straight through
// the transaction.
type ledger struct {
	tx   storage.Tx
	pots domain.Pots
}

func loadLedger(ctx context.Context, tx storage.Tx) (*ledger, error) {
	p, err := tx.Pots(ctx)
	if err != nil {
		return nil, err
	}
	return &ledger{tx: tx, pots: p}, nil
}

func (l *ledger) increase(id domain.PotID, amount sdkmath.Int) error {
	next, err := domain.Add(l.pots.Get(id), amount)
	if err != nil {
		return fmt.Errorf("pot %d: %w", id, err)
	}
	l.pots.Set(id, next)
	return nil
}

func (l *ledger) decrease(id domain.PotID, amount sdkmath.Int) error {
	next, err := domain.Sub(l.pots.Get(id), amount)
	if err != nil {
		return fmt.Errorf("pot %d: %w", id, err)
	}
	l.pots.Set(id, next)
	return nil
}

// allocate merges amount into the player's record for pot id. A record is
// only created on increase; decreasing a missing record fails.
func (l *ledger) allocate(ctx context.Context, player string, id domain.PotID, amount sdkmath.Int, increasing bool) error {
	alloc, err := l.tx.PlayerAllocations(ctx, player)
	if err != nil {
		return err
	}

	found := false
	for i := range alloc.Allocations {
		if alloc.Allocations[i].Pot != id {
			continue
		}
		found = true
		current := domain.OrZero(alloc.Allocations[i].Amount)
		if increasing {
			current, err = domain.Add(current, amount)
		} else {
			current, err = domain.Sub(current, amount)
		}
		if err != nil {
			return fmt.Errorf("allocation %s/%d: %w", player, id, err)
		}
		alloc.Allocations[i].Amount = current
		break
	}

	if !found {
		if !increasing {
			return &domain.InsufficientFundsError{Available: sdkmath.ZeroInt(), Requested: amount}
		}
		alloc.Allocations = append(alloc.Allocations, domain.Allocation{Pot: id, Amount: amount})
	}
	alloc.Player = player
	return l.tx.SavePlayerAllocations(ctx, alloc)
}

func (l *ledger) total() (sdkmath.Int, error) {
	return l.pots.Total()
}

func (l *ledger) all() domain.Pots {
	return l.pots
}

// checkLimit enforces that pot id holds no more than the other four combined.
func (l *ledger) checkLimit(id domain.PotID) error {
	total, err := l.total()
	if err != nil {
		return err
	}
	own := l.pots.Get(id)
	others, err := domain.Sub(total, own)
	if err != nil {
		return err
	}
	if own.GT(others) {
		return fmt.Errorf("%w: pot %d would hold %s against %s in the others", domain.ErrPotLimitReached, id, own, others)
	}
	return nil
}

func (l *ledger) save(ctx context.Context) error {
	return l.tx.SavePots(ctx, l.pots)
}
