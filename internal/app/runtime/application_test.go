package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/prudent-pots/internal/app/storage/memory"
	"github.com/R3E-Network/prudent-pots/internal/config"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Game.MinPotInitialAllocation = "100"
	cfg.Game.InitialFunds = "5000"
	cfg.Keeper.Enabled = false
	return cfg
}

func TestBootstrapInstantiatesOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewState()

	app, err := NewApplication(ctx, testConfig(), nil, WithStore(store), WithClock(fixedClock{now: now}))
	require.NoError(t, err)

	ran, err := app.Bootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	p, err := app.Engine().Pots(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000", p.Get(1).String())

	// A restart against the same store leaves the game alone.
	again, err := NewApplication(ctx, testConfig(), nil, WithStore(store), WithClock(fixedClock{now: now}))
	require.NoError(t, err)
	ran, err = again.Bootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	resp := httptest.NewRecorder()
	again.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestBootstrapDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Bootstrap.Enabled = false

	app, err := NewApplication(ctx, cfg, nil, WithStore(memory.NewState()))
	require.NoError(t, err)
	ran, err := app.Bootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestNewApplicationRejectsUnknownAddressFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Game.AddressFormat = "bech32"
	_, err := NewApplication(context.Background(), cfg, nil, WithStore(memory.NewState()))
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Keeper.Enabled = true
	app, err := NewApplication(context.Background(), cfg, nil, WithStore(memory.NewState()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.NoError(t, app.Shutdown(context.Background()))
}
