package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

func gameConfig() domain.GameConfig {
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

const roundLog = `
# one full round
{"action":"instantiate","funds":"5000","time":"2026-03-01T12:00:00Z"}
{"action":"deposit","player":"alice","pot":2,"amount":"300","time":"2026-03-01T12:01:00Z"}
{"action":"deposit","player":"bob","pot":9,"amount":"300"}
{"action":"reallocate","player":"alice","from":2,"to":3,"time":"2026-03-01T12:02:00Z"}
{"action":"settle","time":"2026-03-01T13:00:00Z"}
`

func TestRunFullRound(t *testing.T) {
	r := New(gameConfig(), "admin", nil)
	summary, err := r.Run(context.Background(), strings.NewReader(roundLog))
	require.NoError(t, err)

	require.Len(t, summary.Steps, 5)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, "deposit", summary.Steps[2].Action)
	assert.Contains(t, summary.Steps[2].Rejected, "invalid pot")
	assert.Equal(t, uint64(2), summary.Round.RoundCount)
	assert.True(t, summary.Custody.Balanced())
	require.Len(t, summary.Pots, domain.PotCount)

	var swept bool
	for _, tr := range summary.Transfers {
		if tr.To == "treasury" {
			swept = true
		}
	}
	assert.True(t, swept, "reallocation fees reach the treasury")
}

func TestRunIsDeterministic(t *testing.T) {
	first, err := New(gameConfig(), "admin", nil).Run(context.Background(), strings.NewReader(roundLog))
	require.NoError(t, err)
	second, err := New(gameConfig(), "admin", nil).Run(context.Background(), strings.NewReader(roundLog))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunStopsOnMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"invalid json", `{"action":`},
		{"unknown action", `{"action":"withdraw","time":1772366400}`},
		{"missing first time", `{"action":"instantiate","funds":"5000"}`},
		{"pot not a number", `{"action":"deposit","pot":"two","time":1772366400}`},
		{"bad amount", `{"action":"fund","amount":"lots","time":1772366400}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(gameConfig(), "admin", nil).Run(context.Background(), strings.NewReader(tc.log))
			assert.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestManualAckRollback(t *testing.T) {
	ctx := context.Background()
	r := New(gameConfig(), "admin", nil, WithAutoAck(false))

	require.NoError(t, r.Apply(ctx, 1, `{"action":"instantiate","funds":"5000","time":"2026-03-01T12:00:00Z"}`))
	require.NoError(t, r.Apply(ctx, 2, `{"action":"deposit","player":"alice","pot":4,"amount":"201","time":"2026-03-01T12:01:00Z"}`))
	require.NoError(t, r.Apply(ctx, 3, `{"action":"settle","time":"2026-03-01T13:00:00Z","nft":{"collection":"c","token_id":"7"}}`))

	pending, ok, err := r.Engine().Pending(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, pending.Outstanding, 1)
	var id string
	for k := range pending.Outstanding {
		id = k
	}

	require.NoError(t, r.Apply(ctx, 4, `{"action":"ack","id":"`+id+`","delivered":false}`))

	summary, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.Round.RoundCount)
	assert.True(t, summary.Steps[2].RolledBack)
	assert.Empty(t, summary.Transfers)
	assert.True(t, summary.Custody.Balanced())
}
