package pots

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
	"github.com/R3E-Network/prudent-pots/internal/app/storage/memory"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

const admin = "admin"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() domain.GameConfig {
	return domain.GameConfig{
		FeePercent:              2,
		FeeReallocationPercent:  5,
		Treasury:                "treasury",
		Denom:                   "upot",
		GameDuration:            time.Hour,
		GameDurationEpoch:       10 * time.Minute,
		GameExtend:              10 * time.Minute,
		GameEndThreshold:        10 * time.Minute,
		MinPotInitialAllocation: sdkmath.NewInt(200),
		DecayFactor:             sdkmath.LegacyMustNewDecFromStr("0.05"),
		ReallocationsLimit:      3,
	}
}

func newService(t *testing.T, opts ...Option) (*Service, storage.Store) {
	t.Helper()
	store := memory.NewState()
	ids := 0
	base := []Option{
		WithAuthority(NewStaticAuthority(admin)),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	}
	return New(store, logger.NewDefault("pots-test"), append(base, opts...)...), store
}

// newGame instantiates a game funded with funds at t0.
func newGame(t *testing.T, cfg domain.GameConfig, funds int64, opts ...Option) *Service {
	t.Helper()
	svc, _ := newService(t, opts...)
	_, err := svc.Instantiate(context.Background(), admin, cfg, sdkmath.NewInt(funds), SettleOptions{}, t0)
	require.NoError(t, err)
	return svc
}

func assertBalanced(t *testing.T, svc *Service) {
	t.Helper()
	c, err := svc.Custody(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Balanced(), "pots %s + pool %s + raffle %s + residual %s != custody %s",
		c.Pots, c.FeePool, c.Raffle, c.Residual, c.Custody)
}

func potValues(t *testing.T, svc *Service) []string {
	t.Helper()
	p, err := svc.Pots(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, domain.PotCount)
	for _, id := range domain.AllPotIDs() {
		out = append(out, p.Get(id).String())
	}
	return out
}

func TestInstantiateSeedsPots(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1300)

	assert.Equal(t, []string{"260", "260", "260", "260", "260"}, potValues(t, svc))

	round, err := svc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), round.RoundCount)
	assert.Equal(t, uint64(0), round.ExtendCount)
	assert.Equal(t, t0, round.StartTime)
	assert.Equal(t, t0.Add(time.Hour), round.EndTime)

	c, err := svc.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1300", c.Custody.String())
	assert.Equal(t, "0", c.Residual.String())

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MedianUnique, cfg.MedianMode)

	_, err = svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1300), SettleOptions{}, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyInstantiated)
}

func TestInstantiateRemainderGoesToResidual(t *testing.T) {
	svc := newGame(t, testConfig(), 1303)

	assert.Equal(t, []string{"260", "260", "260", "260", "260"}, potValues(t, svc))
	c, err := svc.Custody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", c.Residual.String())
	assertBalanced(t, svc)
}

func TestInstantiateRejections(t *testing.T) {
	ctx := context.Background()

	svc, _ := newService(t)
	_, err := svc.Instantiate(ctx, "mallory", testConfig(), sdkmath.NewInt(1000), SettleOptions{}, t0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	bad := testConfig()
	bad.FeePercent = 120
	_, err = svc.Instantiate(ctx, admin, bad, sdkmath.NewInt(1000), SettleOptions{}, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(999), SettleOptions{}, t0)
	var short *domain.NotEnoughFundsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "199", short.Seed.String())
	assert.ErrorIs(t, err, domain.ErrNotEnoughFundsForNextRound)

	_, err = svc.Config(ctx)
	assert.ErrorIs(t, err, domain.ErrNotInstantiated)

	past := t0.Add(-time.Minute)
	_, err = svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1000), SettleOptions{NextRoundStart: &past}, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidNextRoundStart)
}

func TestActionsBeforeInstantiate(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Deposit(context.Background(), "alice", 1, sdkmath.NewInt(200), t0)
	assert.ErrorIs(t, err, domain.ErrNotInstantiated)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)

	receipt, err := svc.Deposit(ctx, "alice", 2, sdkmath.NewInt(300), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "deposit", receipt.Action)
	assert.Empty(t, receipt.Transfers)
	assert.Equal(t, []string{"200", "500", "200", "200", "200"}, potValues(t, svc))

	alloc, err := svc.PlayerAllocations(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "300", alloc.Amount(2).String())

	c, err := svc.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1300", c.Custody.String())
	assertBalanced(t, svc)

	_, err = svc.Deposit(ctx, "alice", 2, sdkmath.NewInt(250), t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrAlreadyAllocated)
}

func TestDepositBidRange(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)
	now := t0.Add(time.Minute)

	r, err := svc.BidRange(ctx, now, "")
	require.NoError(t, err)
	assert.Equal(t, "200", r.Min.String())
	assert.Equal(t, "400", r.Max.String())

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(199), now)
	var out *domain.BidOutOfRangeError
	require.True(t, errors.As(err, &out))
	assert.Equal(t, "200", out.Min.String())
	assert.Equal(t, "400", out.Max.String())

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(401), now)
	assert.ErrorIs(t, err, domain.ErrBidOutOfRange)

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(400), now)
	require.NoError(t, err)

	// Twice the average pot: 1400 / 5 * 2.
	r, err = svc.BidRange(ctx, now, "")
	require.NoError(t, err)
	assert.Equal(t, "560", r.Max.String())
}

func TestBidFloorGrowsWithEpochs(t *testing.T) {
	svc := newGame(t, testConfig(), 1000)

	// Five epochs in: 200 * (1 + 0.05*5).
	r, err := svc.BidRange(context.Background(), t0.Add(50*time.Minute), "")
	require.NoError(t, err)
	assert.Equal(t, "250", r.Min.String())
	assert.Equal(t, "250", r.BaseMin.String())
	assert.Equal(t, "500", r.Max.String())
}

func TestHolderDiscountCompounds(t *testing.T) {
	cfg := testConfig()
	cfg.NftCollections = []domain.NftCollection{{Address: "collection-a"}}
	holdings := StaticNftOwnership{"collection-a": {"alice": 2}}
	svc := newGame(t, cfg, 1000, WithNftOwnership(holdings))

	r, err := svc.BidRange(context.Background(), t0, "alice")
	require.NoError(t, err)
	// 200 - 10 = 190, then 190 - 9 = 181.
	assert.Equal(t, "181", r.Min.String())
	assert.Equal(t, "200", r.BaseMin.String())

	_, err = svc.Deposit(context.Background(), "alice", 3, sdkmath.NewInt(181), t0)
	require.NoError(t, err)
	_, err = svc.Deposit(context.Background(), "bob", 3, sdkmath.NewInt(181), t0)
	assert.ErrorIs(t, err, domain.ErrBidOutOfRange)
}

func TestDepositPotLimit(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)
	now := t0.Add(time.Minute)

	_, err := svc.Deposit(ctx, "bob", 1, sdkmath.NewInt(400), now)
	require.NoError(t, err)

	// Pot 1 would hold 1160 against 800 in the others.
	_, err = svc.Deposit(ctx, "carol", 1, sdkmath.NewInt(560), now)
	assert.ErrorIs(t, err, domain.ErrPotLimitReached)
	assert.Equal(t, []string{"600", "200", "200", "200", "200"}, potValues(t, svc))
}

func TestDepositPhases(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)

	_, err := svc.Deposit(ctx, "alice", 0, sdkmath.NewInt(200), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidPot)
	_, err = svc.Deposit(ctx, "alice", 6, sdkmath.NewInt(200), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidPot)
	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.ZeroInt(), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidFunds)

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(200), t0.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrGameNotStarted)
	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(200), t0.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrGameAlreadyEnded)
}

func TestLateDepositExtendsRound(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)

	_, err := svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(300), t0.Add(40*time.Minute))
	require.NoError(t, err)
	round, err := svc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), round.EndTime)
	assert.Equal(t, uint64(0), round.ExtendCount)

	late := t0.Add(55 * time.Minute)
	_, err = svc.Deposit(ctx, "bob", 2, sdkmath.NewInt(300), late)
	require.NoError(t, err)
	round, err = svc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, late.Add(10*time.Minute), round.EndTime)
	assert.Equal(t, uint64(1), round.ExtendCount)

	// The round is still open past the original end.
	_, err = svc.Deposit(ctx, "carol", 3, sdkmath.NewInt(400), t0.Add(61*time.Minute))
	require.NoError(t, err)
}

func TestFund(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)

	require.NoError(t, svc.Fund(ctx, "anyone", sdkmath.NewInt(75)))
	c, err := svc.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1075", c.Custody.String())
	assert.Equal(t, "75", c.Residual.String())
	assertBalanced(t, svc)

	assert.ErrorIs(t, svc.Fund(ctx, "anyone", sdkmath.NewInt(-1)), domain.ErrInvalidFunds)
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	svc := newGame(t, testConfig(), 1000)

	fee := uint64(7)
	_, err := svc.UpdateConfig(ctx, "mallory", domain.ConfigUpdate{FeePercent: &fee})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	cfg, err := svc.UpdateConfig(ctx, admin, domain.ConfigUpdate{FeePercent: &fee})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.FeePercent)

	bad := uint64(101)
	_, err = svc.UpdateConfig(ctx, admin, domain.ConfigUpdate{FeePercent: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	stored, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), stored.FeePercent)
}

func TestUpdateNextRound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	start := t0.Add(time.Hour)
	_, err := svc.Instantiate(ctx, admin, testConfig(), sdkmath.NewInt(1000), SettleOptions{NextRoundStart: &start}, t0)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, "alice", 1, sdkmath.NewInt(200), t0.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrGameNotStarted)

	later := t0.Add(2 * time.Hour)
	_, err = svc.UpdateNextRound(ctx, "mallory", SettleOptions{NextRoundStart: &later}, t0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.UpdateNextRound(ctx, admin, SettleOptions{NextRoundStart: &later, RaffleFunds: sdkmath.NewInt(50)}, t0)
	require.NoError(t, err)
	round, err := svc.Round(ctx)
	require.NoError(t, err)
	assert.Equal(t, later, round.StartTime)
	assert.Equal(t, later.Add(time.Hour), round.EndTime)

	raffle, err := svc.Raffle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "50", raffle.Amount.String())
	assertBalanced(t, svc)

	_, err = svc.UpdateNextRound(ctx, admin, SettleOptions{}, later)
	assert.ErrorIs(t, err, domain.ErrInvalidNextRoundStart)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(fmt.Errorf("deposit: %w", domain.ErrBidOutOfRange)))
	assert.True(t, IsRejection(domain.ErrUnauthorized))
	assert.False(t, IsRejection(fmt.Errorf("settle: %w", domain.ErrOverflow)))
	assert.False(t, IsRejection(&domain.NotEnoughFundsError{Seed: sdkmath.NewInt(1), Minimum: sdkmath.NewInt(2)}))
	assert.False(t, IsRejection(nil))
}
