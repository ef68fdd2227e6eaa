package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/services/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
	"github.com/R3E-Network/prudent-pots/internal/app/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

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
		MinPotInitialAllocation: sdkmath.NewInt(100),
		DecayFactor:             sdkmath.LegacyMustNewDecFromStr("0.05"),
		ReallocationsLimit:      3,
	}
}

func newTestHandler(t *testing.T, instantiate bool) (http.Handler, *pots.Service) {
	t.Helper()
	n := 0
	svc := pots.New(memory.NewState(), nil,
		pots.WithAuthority(pots.NewStaticAuthority("admin")),
		pots.WithIDGenerator(func() string {
			n++
			return "id-" + string(rune('0'+n))
		}),
	)
	if instantiate {
		_, err := svc.Instantiate(context.Background(), "admin", gameConfig(), sdkmath.NewInt(5000), pots.SettleOptions{}, start)
		require.NoError(t, err)
	}
	return NewHandler(svc, fixedClock{now: start.Add(5 * time.Minute)}), svc
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())

	resp = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "prudent_pots_http_requests_total")
}

func TestStateBeforeInstantiate(t *testing.T) {
	h, _ := newTestHandler(t, false)
	for _, path := range []string{"/state", "/config", "/round", "/bid-range"} {
		resp := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}
}

func TestGameQueries(t *testing.T) {
	h, svc := newTestHandler(t, true)
	_, err := svc.Deposit(context.Background(), "alice", 2, sdkmath.NewInt(300), start.Add(time.Minute))
	require.NoError(t, err)

	resp := do(t, h, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var state struct {
		Phase    string            `json:"phase"`
		Balanced bool              `json:"balanced"`
		Pending  bool              `json:"pending"`
		Custody  map[string]string `json:"custody"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &state))
	assert.Equal(t, "active", state.Phase)
	assert.True(t, state.Balanced)
	assert.False(t, state.Pending)
	assert.Equal(t, "5300", state.Custody["custody"])

	resp = do(t, h, http.MethodGet, "/pots", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"1":"1000","2":"1300","3":"1000","4":"1000","5":"1000"}`, resp.Body.String())

	resp = do(t, h, http.MethodGet, "/pots/winning", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var winners []int
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &winners))

	resp = do(t, h, http.MethodGet, "/players/alice", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var player struct {
		Reallocations uint64 `json:"reallocations"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &player))
	assert.Zero(t, player.Reallocations)

	resp = do(t, h, http.MethodGet, "/pending", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestAckTransfer(t *testing.T) {
	h, _ := newTestHandler(t, true)

	resp := do(t, h, http.MethodPost, "/nft-transfers/missing/ack", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, h, http.MethodPost, "/nft-transfers/missing/ack", []byte(`{"delivered":true}`))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, h, http.MethodPost, "/nft-transfers/missing/ack", []byte(`{"delivered":true,"extra":1}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type recordingAcks struct {
	ids []string
}

func (a *recordingAcks) AcknowledgeNftTransfer(_ context.Context, id string, delivered bool) (pots.AckResult, error) {
	a.ids = append(a.ids, id)
	return pots.AckResult{ActionID: "action-1", Completed: delivered}, nil
}

func TestAckTransferUsesAcknowledger(t *testing.T) {
	svc := pots.New(memory.NewState(), nil)
	acks := &recordingAcks{}
	h := NewHandler(svc, nil, WithAcknowledger(acks))

	resp := do(t, h, http.MethodPost, "/nft-transfers/t-9/ack", []byte(`{"delivered":true}`))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"t-9"}, acks.ids)

	var res pots.AckResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	assert.True(t, res.Completed)
	assert.Equal(t, "action-1", res.ActionID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotInstantiated, http.StatusNotFound},
		{fmt.Errorf("acknowledge: %w", domain.ErrUnknownTransfer), http.StatusNotFound},
		{fmt.Errorf("round: %w", storage.ErrNotFound), http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrActionPending, http.StatusConflict},
		{domain.ErrInvalidPot, http.StatusBadRequest},
		{fmt.Errorf("deposit: %w", domain.ErrGameNotStarted), http.StatusBadRequest},
		{domain.ErrGameAlreadyEnded, http.StatusBadRequest},
		{domain.ErrInvalidConfig, http.StatusBadRequest},
		{&domain.BidOutOfRangeError{Min: sdkmath.NewInt(1), Max: sdkmath.NewInt(2)}, http.StatusBadRequest},
		{domain.ErrPotLimitReached, http.StatusBadRequest},
		{domain.ErrOverflow, http.StatusInternalServerError},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
