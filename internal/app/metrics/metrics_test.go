package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

func TestRecordAction(t *testing.T) {
	before := testutil.ToFloat64(actions.WithLabelValues("deposit", "rejected"))
	RecordAction("deposit", fmt.Errorf("deposit: %w", pots.ErrBidOutOfRange), time.Millisecond)
	after := testutil.ToFloat64(actions.WithLabelValues("deposit", "rejected"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{pots.ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("settle: %w", pots.ErrOverflow), "arithmetic"},
		{&pots.NotEnoughFundsError{}, "fatal"},
		{errors.New("other"), "rejected"},
	}
	for _, tc := range tests {
		if got := ResultLabel(tc.err); got != tc.want {
			t.Fatalf("ResultLabel(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestRecordRoundSetsGauges(t *testing.T) {
	RecordRound(pots.RoundState{RoundCount: 4}, pots.SeededPots(sdkmath.NewInt(260)))
	if got := testutil.ToFloat64(roundNumber); got != 4 {
		t.Fatalf("round gauge = %v", got)
	}
	if got := testutil.ToFloat64(potAmount.WithLabelValues("3")); got != 260 {
		t.Fatalf("pot gauge = %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordKeeperRun("settled")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                  "/",
		"/state":             "/state",
		"/players":           "/players",
		"/players/alice":     "/players/:player",
		"/players/alice/bid": "/players/:player",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}
