package pots

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

var nftA = &domain.RaffleNft{Collection: "collection-a", TokenID: "1"}

func TestInstantiateWithNftWaitsForAck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	receipt, err := svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1000), SettleOptions{RaffleNft: nftA}, t0)
	require.NoError(t, err)
	require.True(t, receipt.Pending)
	require.Len(t, receipt.NftTransfers, 1)
	transfer := receipt.NftTransfers[0]
	assert.Equal(t, admin, transfer.From)
	assert.Equal(t, DefaultCustodyAddress, transfer.To)
	assert.Equal(t, "collection-a", transfer.Collection)

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(200), t0.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrActionPending)

	_, err = svc.AcknowledgeNftTransfer(ctx, "no-such-transfer", true)
	assert.ErrorIs(t, err, domain.ErrUnknownTransfer)

	res, err := svc.AcknowledgeNftTransfer(ctx, transfer.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, receipt.ActionID, res.ActionID)

	_, ok, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(200), t0.Add(time.Minute))
	require.NoError(t, err)

	raffle, err := svc.Raffle(ctx)
	require.NoError(t, err)
	assert.True(t, raffle.Nft.Equal(nftA))
}

func TestFailedNftAckUndoesInstantiate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	receipt, err := svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1000), SettleOptions{RaffleNft: nftA}, t0)
	require.NoError(t, err)

	res, err := svc.AcknowledgeNftTransfer(ctx, receipt.NftTransfers[0].ID, false)
	assert.ErrorIs(t, err, domain.ErrNftNotReceived)
	assert.True(t, res.RolledBack)

	_, err = svc.Config(ctx)
	assert.ErrorIs(t, err, domain.ErrNotInstantiated)
	_, ok, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1000), SettleOptions{}, t0)
	require.NoError(t, err)
}

func TestFailedNftAckRestoresRound(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 5000)
	end := t0.Add(time.Hour)

	_, err := svc.Deposit(ctx, "alice", 4, sdkmath.NewInt(201), t0.Add(time.Minute))
	require.NoError(t, err)
	beforePots := potValues(t, svc)
	beforeCustody, err := svc.Custody(ctx)
	require.NoError(t, err)

	out, err := svc.SettleRound(ctx, admin, end, SettleOptions{RaffleNft: nftA})
	require.NoError(t, err)
	require.True(t, out.Receipt.Pending)
	require.Len(t, out.Receipt.NftTransfers, 1)
	assert.Equal(t, "400", out.Seed.String())

	_, err = svc.SettleRound(ctx, admin, end, SettleOptions{})
	assert.ErrorIs(t, err, domain.ErrActionPending)

	res, err := svc.AcknowledgeNftTransfer(ctx, out.Receipt.NftTransfers[0].ID, false)
	require.ErrorIs(t, err, domain.ErrNftNotReceived)
	assert.Nil(t, res.Released)

	assert.Equal(t, beforePots, potValues(t, svc))
	round, err := svc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), round.RoundCount)
	alloc, err := svc.PlayerAllocations(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "201", alloc.Amount(4).String())
	c, err := svc.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeCustody.Custody.String(), c.Custody.String())
	raffle, err := svc.Raffle(ctx)
	require.NoError(t, err)
	assert.Nil(t, raffle.Nft)

	// The round can be settled again once the state is restored.
	_, err = svc.SettleRound(ctx, admin, end, SettleOptions{})
	require.NoError(t, err)
}

func TestRaffleNftGoesToWinner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	receipt, err := svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(5000), SettleOptions{RaffleNft: nftA}, t0)
	require.NoError(t, err)
	_, err = svc.AcknowledgeNftTransfer(ctx, receipt.NftTransfers[0].ID, true)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, "alice", 4, sdkmath.NewInt(201), t0.Add(time.Minute))
	require.NoError(t, err)

	out, err := svc.SettleRound(ctx, admin, t0.Add(time.Hour), SettleOptions{})
	require.NoError(t, err)
	require.True(t, out.HasWinner)
	require.Len(t, out.Receipt.NftTransfers, 1)
	transfer := out.Receipt.NftTransfers[0]
	assert.Equal(t, DefaultCustodyAddress, transfer.From)
	assert.Equal(t, "alice", transfer.To)
	assert.Equal(t, "1", transfer.TokenID)

	res, err := svc.AcknowledgeNftTransfer(ctx, transfer.ID, true)
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.NotNil(t, res.Released)
	assert.Equal(t, out.Receipt.ActionID, res.Released.ActionID)
	assert.False(t, res.Released.Pending)
	require.Len(t, res.Released.Transfers, len(out.Receipt.Transfers))
	for i, tr := range out.Receipt.Transfers {
		assert.Equal(t, tr.To, res.Released.Transfers[i].To)
		assert.Equal(t, tr.Amount.String(), res.Released.Transfers[i].Amount.String())
	}

	raffle, err := svc.Raffle(ctx)
	require.NoError(t, err)
	assert.Nil(t, raffle.Nft)
}

func TestUnclaimedNftCannotBeReplaced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	receipt, err := svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(5000), SettleOptions{RaffleNft: nftA}, t0)
	require.NoError(t, err)
	_, err = svc.AcknowledgeNftTransfer(ctx, receipt.NftTransfers[0].ID, true)
	require.NoError(t, err)
	end := t0.Add(time.Hour)

	nftB := &domain.RaffleNft{Collection: "collection-a", TokenID: "2"}
	_, err = svc.SettleRound(ctx, admin, end, SettleOptions{RaffleNft: nftB})
	assert.ErrorIs(t, err, domain.ErrInvalidRaffleNft)

	_, err = svc.SettleRound(ctx, admin, end, SettleOptions{RaffleNft: &domain.RaffleNft{Collection: "collection-a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRaffleNft)

	// Nobody played, so the NFT carries over; naming it again is a no-op.
	out, err := svc.SettleRound(ctx, admin, end, SettleOptions{RaffleNft: nftA, RaffleFunds: sdkmath.NewInt(30)})
	require.NoError(t, err)
	assert.False(t, out.HasWinner)
	assert.Empty(t, out.Receipt.NftTransfers)
	assert.False(t, out.Receipt.Pending)

	raffle, err := svc.Raffle(ctx)
	require.NoError(t, err)
	assert.True(t, raffle.Nft.Equal(nftA))
	assert.Equal(t, "30", raffle.Amount.String())
	assertBalanced(t, svc)
}
