// Package httpapi exposes the operations surface of the daemon: health,
// metrics, read-only game state and NFT transfer acknowledgements.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/metrics"
	"github.com/R3E-Network/prudent-pots/internal/app/services/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// Acknowledger receives NFT delivery reports.
type Acknowledger interface {
	AcknowledgeNftTransfer(ctx context.Context, transferID string, delivered bool) (pots.AckResult, error)
}

// handler bundles the HTTP endpoints backed by the game engine.
type handler struct {
	svc   *pots.Service
	clock pots.Clock
	acks  Acknowledger
}

// Option customises the handler.
type Option func(*handler)

// WithAcknowledger routes delivery reports through a, typically the keeper
// so released receipts get executed. The engine is used when unset.
func WithAcknowledger(a Acknowledger) Option {
	return func(h *handler) {
		if a != nil {
			h.acks = a
		}
	}
}

// NewHandler returns a router exposing the operations API. A nil clock uses
// wall time.
func NewHandler(svc *pots.Service, clock pots.Clock, opts ...Option) http.Handler {
	if clock == nil {
		clock = pots.SystemClock{}
	}
	h := &handler{svc: svc, clock: clock, acks: svc}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/state", h.state)
	r.Get("/config", h.config)
	r.Get("/round", h.round)
	r.Get("/pots", h.pots)
	r.Get("/pots/winning", h.winningPots)
	r.Get("/raffle", h.raffle)
	r.Get("/bid-range", h.bidRange)
	r.Get("/players", h.players)
	r.Get("/players/{player}", h.player)
	r.Get("/pending", h.pending)
	r.Post("/nft-transfers/{id}/ack", h.ackTransfer)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	round, err := h.svc.Round(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	custody, err := h.svc.Custody(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	_, pending, err := h.svc.Pending(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round":    round,
		"phase":    round.Phase(h.clock.Now()),
		"custody":  custody,
		"balanced": custody.Balanced(),
		"pending":  pending,
	})
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) round(w http.ResponseWriter, r *http.Request) {
	round, err := h.svc.Round(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (h *handler) pots(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Pots(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make(map[string]string, len(p))
	for _, id := range domain.AllPotIDs() {
		out[strconv.Itoa(int(id))] = p.Get(id).String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) winningPots(w http.ResponseWriter, r *http.Request) {
	winners, err := h.svc.WinningPots(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ids := make([]int, 0, len(winners))
	for _, id := range winners {
		ids = append(ids, int(id))
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *handler) raffle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raffle, err := h.svc.Raffle(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	winner, ok, err := h.svc.RaffleWinner(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	shares, err := h.svc.RaffleDenomSplit(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raffle":     raffle,
		"winner":     winner,
		"has_winner": ok,
		"shares":     shares,
	})
}

func (h *handler) bidRange(w http.ResponseWriter, r *http.Request) {
	rng, err := h.svc.BidRange(r.Context(), h.clock.Now(), r.URL.Query().Get("player"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

func (h *handler) players(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.AllPlayerAllocations(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if all == nil {
		all = []domain.PlayerAllocations{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *handler) player(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	player := chi.URLParam(r, "player")
	alloc, err := h.svc.PlayerAllocations(ctx, player)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	moves, err := h.svc.PlayerReallocations(ctx, player)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allocations":   alloc,
		"reallocations": moves,
	})
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	p, ok, err := h.svc.Pending(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) ackTransfer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delivered *bool `json:"delivered"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Delivered == nil {
		writeError(w, http.StatusBadRequest, errors.New("delivered is required"))
		return
	}

	res, err := h.acks.AcknowledgeNftTransfer(r.Context(), chi.URLParam(r, "id"), *payload.Delivered)
	if err != nil && !errors.Is(err, domain.ErrNftNotReceived) {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotInstantiated),
		errors.Is(err, domain.ErrUnknownTransfer),
		storage.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrActionPending):
		return http.StatusConflict
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
