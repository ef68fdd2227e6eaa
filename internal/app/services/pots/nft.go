package pots

import (
	"context"
	"fmt"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// AckResult reports what an acknowledgement did to the pending action.
type AckResult struct {
	ActionID  string `json:"action_id"`
	Remaining int    `json:"remaining"`
	Completed bool   `json:"completed"`
	// RolledBack is set when a failed delivery restored the pre-action state.
	RolledBack bool `json:"rolled_back"`
	// Released is the held receipt, set once the action became final.
	Released *domain.Receipt `json:"released,omitempty"`
}

// AcknowledgeNftTransfer resolves one NFT transfer of the pending action.
// Once every transfer is delivered the action becomes final and its held
// receipt is returned for execution. A failed delivery restores the state
// captured before the action and reports ErrNftNotReceived after the
// rollback has committed.
func (s *Service) AcknowledgeNftTransfer(ctx context.Context, transferID string, delivered bool) (AckResult, error) {
	var res AckResult
	err := s.atomic(ctx, "acknowledge_nft", func(tx storage.Tx) error {
		res = AckResult{}
		pending, ok, err := tx.PendingAction(ctx)
		if err != nil {
			return err
		}
		if !ok || !pending.Outstanding[transferID] {
			return fmt.Errorf("%w: %s", domain.ErrUnknownTransfer, transferID)
		}
		res.ActionID = pending.ID

		if !delivered {
			if err := restoreSnapshot(ctx, tx, pending.Before); err != nil {
				return err
			}
			res.RolledBack = true
			return nil
		}

		delete(pending.Outstanding, transferID)
		res.Remaining = len(pending.Outstanding)
		if res.Remaining == 0 {
			released := pending.Receipt
			released.Pending = false
			res.Completed = true
			res.Released = &released
			return tx.ClearPendingAction(ctx)
		}
		return tx.SavePendingAction(ctx, pending)
	})
	if err != nil {
		return AckResult{}, err
	}

	entry := s.log.WithField("action_id", res.ActionID).WithField("transfer_id", transferID)
	if res.RolledBack {
		entry.Warn("nft transfer failed, action rolled back")
		return res, fmt.Errorf("acknowledge_nft: %w: %s", domain.ErrNftNotReceived, transferID)
	}
	entry.WithField("remaining", res.Remaining).Info("nft transfer acknowledged")
	return res, nil
}

// takeSnapshot captures every entity. An uninstantiated engine yields an
// empty snapshot.
func takeSnapshot(ctx context.Context, tx storage.Tx) (domain.Snapshot, error) {
	var snap domain.Snapshot
	cfg, err := tx.Config(ctx)
	if storage.IsNotFound(err) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.Instantiated = true
	snap.Config = cfg

	if snap.Round, err = tx.Round(ctx); err != nil && !storage.IsNotFound(err) {
		return snap, err
	}
	if snap.Pots, err = tx.Pots(ctx); err != nil {
		return snap, err
	}
	if snap.Allocations, err = tx.ListPlayerAllocations(ctx); err != nil {
		return snap, err
	}
	if snap.Reallocations, err = tx.ListReallocationCounts(ctx); err != nil {
		return snap, err
	}
	if snap.FirstBidders, err = tx.ListFirstBidders(ctx); err != nil {
		return snap, err
	}
	if snap.FeePool, err = tx.ReallocationFeePool(ctx); err != nil {
		return snap, err
	}
	if snap.Raffle, err = tx.Raffle(ctx); err != nil {
		return snap, err
	}
	if snap.Custody, err = tx.Custody(ctx); err != nil {
		return snap, err
	}
	if snap.Residual, err = tx.Residual(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// restoreSnapshot replaces the whole state with snap and drops the pending
// action.
func restoreSnapshot(ctx context.Context, tx storage.Tx, snap domain.Snapshot) error {
	if err := tx.ClearAll(ctx); err != nil {
		return err
	}
	if !snap.Instantiated {
		return nil
	}

	if err := tx.SaveConfig(ctx, snap.Config); err != nil {
		return err
	}
	if err := tx.SaveRound(ctx, snap.Round); err != nil {
		return err
	}
	if err := tx.SavePots(ctx, snap.Pots); err != nil {
		return err
	}
	for _, alloc := range snap.Allocations {
		if err := tx.SavePlayerAllocations(ctx, alloc); err != nil {
			return err
		}
	}
	for player, n := range snap.Reallocations {
		if err := tx.SaveReallocationCount(ctx, player, n); err != nil {
			return err
		}
	}
	for id, fb := range snap.FirstBidders {
		if err := tx.SaveFirstBidder(ctx, id, fb); err != nil {
			return err
		}
	}
	if err := tx.SaveReallocationFeePool(ctx, snap.FeePool); err != nil {
		return err
	}
	if err := tx.SaveRaffle(ctx, snap.Raffle); err != nil {
		return err
	}
	if err := tx.SaveCustody(ctx, snap.Custody); err != nil {
		return err
	}
	return tx.SaveResidual(ctx, snap.Residual)
}
