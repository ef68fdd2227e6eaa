package metrics

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

const namespace = "prudent_pots"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "actions_total",
			Help:      "Total number of engine actions by outcome.",
		},
		[]string{"action", "result"},
	)

	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "action_duration_seconds",
			Help:      "Duration of engine actions including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"action"},
	)

	depositedTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposited_tokens_total",
			Help:      "Tokens deposited into pots.",
		},
	)

	payoutTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payout_tokens_total",
			Help:      "Tokens emitted in transfer instructions by reason.",
		},
		[]string{"kind"},
	)

	roundNumber = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "number",
			Help:      "Current round counter.",
		},
	)

	potAmount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "pot_amount",
			Help:      "Current amount held by each pot.",
		},
		[]string{"pot"},
	)

	keeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "runs_total",
			Help:      "Keeper ticks by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		actions,
		actionDuration,
		depositedTokens,
		payoutTokens,
		roundNumber,
		potAmount,
		keeperRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordAction records the outcome and latency of one engine action.
func RecordAction(action string, err error, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	actions.WithLabelValues(action, ResultLabel(err)).Inc()
	actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordDeposit adds a committed deposit amount.
func RecordDeposit(amount sdkmath.Int) {
	depositedTokens.Add(toFloat(amount))
}

// RecordTransfers adds every emitted transfer to the payout counters.
func RecordTransfers(transfers []pots.Transfer) {
	for _, t := range transfers {
		payoutTokens.WithLabelValues(string(t.Reason)).Add(toFloat(t.Amount))
	}
}

// RecordRound publishes the round counter and pot totals.
func RecordRound(round pots.RoundState, p pots.Pots) {
	roundNumber.Set(float64(round.RoundCount))
	for _, id := range pots.AllPotIDs() {
		potAmount.WithLabelValues(strconv.Itoa(int(id))).Set(toFloat(p.Get(id)))
	}
}

// RecordKeeperRun records one keeper tick.
func RecordKeeperRun(result string) {
	if result == "" {
		result = "unknown"
	}
	keeperRuns.WithLabelValues(result).Inc()
}

// ResultLabel maps an action error onto a bounded label set.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pots.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, pots.ErrOverflow), errors.Is(err, pots.ErrDivideByZero):
		return "arithmetic"
	case errors.Is(err, pots.ErrNotEnoughFundsForNextRound),
		errors.Is(err, pots.ErrNftNotReceived),
		errors.Is(err, pots.ErrConservationViolated):
		return "fatal"
	default:
		return "rejected"
	}
}

func toFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "players" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/players"
	}
	return "/players/:player"
}
