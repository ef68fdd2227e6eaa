package pots

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() GameConfig {
	return GameConfig{
		FeePercent:              5,
		FeeReallocationPercent:  5,
		Treasury:                "treasury",
		Denom:                   "upot",
		GameDuration:            time.Hour,
		GameDurationEpoch:       10 * time.Minute,
		GameExtend:              10 * time.Minute,
		GameEndThreshold:        10 * time.Minute,
		MinPotInitialAllocation: sdkmath.NewInt(1_000_000),
		DecayFactor:             sdkmath.LegacyMustNewDecFromStr("0.05"),
		ReallocationsLimit:      10,
	}
}

func TestGameConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*GameConfig)
	}{
		{"fee above 100", func(c *GameConfig) { c.FeePercent = 101 }},
		{"reallocation fee above 100", func(c *GameConfig) { c.FeeReallocationPercent = 150 }},
		{"missing treasury", func(c *GameConfig) { c.Treasury = " " }},
		{"zero duration", func(c *GameConfig) { c.GameDuration = 0 }},
		{"zero epoch", func(c *GameConfig) { c.GameDurationEpoch = 0 }},
		{"zero seed", func(c *GameConfig) { c.MinPotInitialAllocation = sdkmath.ZeroInt() }},
		{"decay of one", func(c *GameConfig) { c.DecayFactor = sdkmath.LegacyOneDec() }},
		{"unknown median mode", func(c *GameConfig) { c.MedianMode = "loose" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigUpdateApply(t *testing.T) {
	fee := uint64(7)
	limit := uint64(3)
	out, err := ConfigUpdate{FeePercent: &fee, ReallocationsLimit: &limit}.Apply(validConfig())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), out.FeePercent)
	assert.Equal(t, uint64(3), out.ReallocationsLimit)
	assert.Equal(t, "treasury", out.Treasury)

	bad := uint64(200)
	_, err = ConfigUpdate{FeePercent: &bad}.Apply(validConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRaffleNftPairing(t *testing.T) {
	nft, err := NewRaffleNft("", "")
	require.NoError(t, err)
	assert.Nil(t, nft)

	_, err = NewRaffleNft("collection", "")
	assert.ErrorIs(t, err, ErrInvalidRaffleNft)

	nft, err = NewRaffleNft("collection", "7")
	require.NoError(t, err)
	assert.True(t, nft.Equal(&RaffleNft{Collection: "collection", TokenID: "7"}))
}

func TestRoundPhase(t *testing.T) {
	start := time.Unix(1_000, 0)
	round := RoundState{StartTime: start, EndTime: start.Add(time.Hour)}
	assert.Equal(t, PhaseNotStarted, round.Phase(start.Add(-time.Second)))
	assert.Equal(t, PhaseActive, round.Phase(start))
	assert.Equal(t, PhaseEnded, round.Phase(start.Add(time.Hour)))
	assert.ErrorIs(t, PhaseEnded.RequireActive(), ErrGameAlreadyEnded)
}
