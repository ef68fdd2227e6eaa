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

// SettleOptions carries the inputs for the next round. Raffle inputs may only
// be supplied by the administrator.
type SettleOptions struct {
	RaffleNft      *domain.RaffleNft `json:"raffle_nft,omitempty"`
	RaffleFunds    sdkmath.Int       `json:"raffle_funds"`
	NextRoundStart *time.Time        `json:"next_round_start,omitempty"`
}

func (o SettleOptions) hasRaffleInputs() bool {
	return o.RaffleNft != nil || domain.OrZero(o.RaffleFunds).IsPositive()
}

func (o SettleOptions) validate() error {
	if o.RaffleNft != nil {
		nft, err := domain.NewRaffleNft(o.RaffleNft.Collection, o.RaffleNft.TokenID)
		if err != nil {
			return err
		}
		if nft == nil {
			return fmt.Errorf("%w: collection and token id are required", domain.ErrInvalidRaffleNft)
		}
	}
	if domain.OrZero(o.RaffleFunds).IsNegative() {
		return fmt.Errorf("%w: raffle funds must not be negative", domain.ErrInvalidFunds)
	}
	return nil
}

// Settlement is the outcome of SettleRound.
type Settlement struct {
	Receipt      domain.Receipt    `json:"receipt"`
	Distribution Distribution      `json:"distribution"`
	RaffleWinner string            `json:"raffle_winner,omitempty"`
	HasWinner    bool              `json:"has_raffle_winner"`
	Seed         sdkmath.Int       `json:"seed"`
	NextRound    domain.RoundState `json:"next_round"`
}

// SettleRound ends the round: pays the qualifying pots, sweeps fees to the
// treasury, settles the raffle and reseeds the pots for the next round. When
// NFTs move the settlement stays provisional until every transfer is
// acknowledged.
func (s *Service) SettleRound(ctx context.Context, caller string, now time.Time, opts SettleOptions) (Settlement, error) {
	now = normalizeTime(now)
	out := Settlement{Receipt: s.newReceipt("settle")}
	if err := opts.validate(); err != nil {
		return Settlement{}, fmt.Errorf("settle: %w", err)
	}

	var seeded domain.Pots
	err := s.atomic(ctx, "settle", func(tx storage.Tx) error {
		before, err := takeSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		game, err := loadGame(ctx, tx)
		if err != nil {
			return err
		}
		if err := s.authorizeSettlement(ctx, caller, game.cfg, game.round, now); err != nil {
			return err
		}
		if opts.hasRaffleInputs() {
			if err := s.requireAdmin(ctx, caller); err != nil {
				return fmt.Errorf("%w: only the administrator funds the raffle", err)
			}
		}
		start, err := nextStart(opts.NextRoundStart, now)
		if err != nil {
			return err
		}

		p, err := tx.Pots(ctx)
		if err != nil {
			return err
		}
		allocations, err := tx.ListPlayerAllocations(ctx)
		if err != nil {
			return err
		}
		winners := domain.WinningPots(p, game.cfg.MedianMode)
		if out.Distribution, err = Distribute(p, winners, allocations, game.cfg.FeePercent); err != nil {
			return err
		}
		totals, err := out.Distribution.PlayerTotals()
		if err != nil {
			return err
		}
		for _, t := range totals {
			out.Receipt.Transfers = append(out.Receipt.Transfers, domain.Transfer{
				To: t.Player, Denom: game.cfg.Denom, Amount: t.Amount, Reason: domain.ReasonPlayerPayout,
			})
		}

		pool, err := tx.ReallocationFeePool(ctx)
		if err != nil {
			return err
		}
		treasury, err := domain.Add(out.Distribution.Fees, pool)
		if err != nil {
			return err
		}
		if treasury.IsPositive() {
			out.Receipt.Transfers = append(out.Receipt.Transfers, domain.Transfer{
				To: game.cfg.Treasury, Denom: game.cfg.Denom, Amount: treasury, Reason: domain.ReasonTreasuryFee,
			})
		}
		if err := tx.SaveReallocationFeePool(ctx, sdkmath.ZeroInt()); err != nil {
			return err
		}

		raffle, err := tx.Raffle(ctx)
		if err != nil {
			return err
		}
		firstBidders, err := tx.ListFirstBidders(ctx)
		if err != nil {
			return err
		}
		out.RaffleWinner, out.HasWinner = SelectRaffleWinner(winners, allocations, firstBidders)
		if out.HasWinner {
			if raffle, err = s.payRaffle(&out.Receipt, game.cfg, game.round, raffle, out.RaffleWinner); err != nil {
				return err
			}
		}
		if raffle, err = s.stageRaffle(ctx, tx, &out.Receipt, caller, raffle, opts); err != nil {
			return err
		}

		outgoing, err := out.Receipt.Outgoing()
		if err != nil {
			return err
		}
		if err := adjustCustody(ctx, tx, outgoing.Neg()); err != nil {
			return err
		}

		if out.NextRound, out.Seed, err = resetRound(ctx, tx, game.cfg, game.round, start); err != nil {
			return err
		}
		seeded = domain.SeededPots(out.Seed)

		if err := s.holdPending(ctx, tx, &out.Receipt, before, now); err != nil {
			return err
		}
		return checkConservation(ctx, tx)
	})
	if err != nil {
		return Settlement{}, err
	}

	metrics.RecordTransfers(out.Receipt.Transfers)
	metrics.RecordRound(out.NextRound, seeded)
	s.log.WithField("action_id", out.Receipt.ActionID).
		WithField("caller", caller).
		WithField("winning_pots", out.Distribution.Winners).
		WithField("paid", out.Distribution.PlayersTotal.String()).
		WithField("fees", out.Distribution.Fees.String()).
		WithField("raffle_winner", out.RaffleWinner).
		WithField("round", out.NextRound.RoundCount).
		WithField("seed", out.Seed.String()).
		WithField("pending", out.Receipt.Pending).
		Info("round settled")
	return out, nil
}

// payRaffle hands the raffle to winner and returns the emptied raffle.
func (s *Service) payRaffle(receipt *domain.Receipt, cfg domain.GameConfig, round domain.RoundState, raffle domain.Raffle, winner string) (domain.Raffle, error) {
	if raffle.Nft != nil {
		receipt.NftTransfers = append(receipt.NftTransfers, domain.NftTransfer{
			ID:         s.newID(),
			Collection: raffle.Nft.Collection,
			TokenID:    raffle.Nft.TokenID,
			From:       s.custody,
			To:         winner,
		})
		raffle.Nft = nil
	}
	if raffle.Amount.IsPositive() {
		prize, fee, err := RaffleSplit(raffle.Amount, cfg.DecayFactor, round.ExtendCount)
		if err != nil {
			return domain.Raffle{}, err
		}
		if prize.IsPositive() {
			receipt.Transfers = append(receipt.Transfers, domain.Transfer{
				To: winner, Denom: cfg.Denom, Amount: prize, Reason: domain.ReasonRafflePrize,
			})
		}
		if fee.IsPositive() {
			receipt.Transfers = append(receipt.Transfers, domain.Transfer{
				To: cfg.Treasury, Denom: cfg.Denom, Amount: fee, Reason: domain.ReasonRaffleFee,
			})
		}
		raffle.Amount = sdkmath.ZeroInt()
	}
	return raffle, nil
}

// stageRaffle applies the caller's raffle inputs for the next round and saves
// the raffle. An unclaimed NFT can never be swapped for a different one.
func (s *Service) stageRaffle(ctx context.Context, tx storage.Tx, receipt *domain.Receipt, caller string, raffle domain.Raffle, opts SettleOptions) (domain.Raffle, error) {
	if opts.RaffleNft != nil {
		switch {
		case raffle.Nft == nil:
			nft := *opts.RaffleNft
			raffle.Nft = &nft
			receipt.NftTransfers = append(receipt.NftTransfers, domain.NftTransfer{
				ID:         s.newID(),
				Collection: nft.Collection,
				TokenID:    nft.TokenID,
				From:       caller,
				To:         s.custody,
			})
		case !raffle.Nft.Equal(opts.RaffleNft):
			return domain.Raffle{}, fmt.Errorf("%w: %s is still unclaimed", domain.ErrInvalidRaffleNft, raffle.Nft)
		}
	}

	funds := domain.OrZero(opts.RaffleFunds)
	if funds.IsPositive() {
		next, err := domain.Add(raffle.Amount, funds)
		if err != nil {
			return domain.Raffle{}, err
		}
		raffle.Amount = next
		if err := adjustCustody(ctx, tx, funds); err != nil {
			return domain.Raffle{}, err
		}
	}
	if err := tx.SaveRaffle(ctx, raffle); err != nil {
		return domain.Raffle{}, err
	}
	return raffle, nil
}

// holdPending records a provisional action when the receipt moves NFTs.
func (s *Service) holdPending(ctx context.Context, tx storage.Tx, receipt *domain.Receipt, before domain.Snapshot, now time.Time) error {
	if len(receipt.NftTransfers) == 0 {
		return nil
	}
	outstanding := make(map[string]bool, len(receipt.NftTransfers))
	for _, n := range receipt.NftTransfers {
		outstanding[n.ID] = true
	}
	receipt.Pending = true
	return tx.SavePendingAction(ctx, domain.PendingAction{
		ID:          receipt.ActionID,
		Action:      receipt.Action,
		Outstanding: outstanding,
		Before:      before,
		Receipt:     *receipt,
		CreatedAt:   now,
	})
}
