package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

// Key layout. Singletons use fixed keys, round-scoped records use a prefix
// plus the player or pot id.
const (
	KeyConfig          = "config"
	KeyRound           = "round"
	KeyPots            = "pots"
	KeyFeePool         = "reallocation_fee_pool"
	KeyRaffle          = "raffle"
	KeyCustody         = "custody"
	KeyResidual        = "residual"
	KeyPending         = "pending_action"
	PrefixAllocations  = "alloc/"
	PrefixReallocCount = "realloc/"
	PrefixFirstBidder  = "first_bidder/"
)

// New wraps a raw backend with the typed entity API.
func New(backend Backend) Store {
	return &kvStore{backend: backend}
}

type kvStore struct {
	backend Backend
}

func (s *kvStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.backend.Update(ctx, func(kv KVTx) error {
		return fn(&stateTx{kv: kv})
	})
}

func (s *kvStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.backend.Read(ctx, func(kv KVTx) error {
		return fn(&stateTx{kv: kv})
	})
}

type stateTx struct {
	kv KVTx
}

var _ Tx = (*stateTx)(nil)

func (t *stateTx) load(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (t *stateTx) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (t *stateTx) clear(ctx context.Context, prefix string) error {
	if err := t.kv.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("clear %s: %w", strings.TrimSuffix(prefix, "/"), err)
	}
	return nil
}

func (t *stateTx) loadAmount(ctx context.Context, key string) (sdkmath.Int, error) {
	var v sdkmath.Int
	if _, err := t.load(ctx, key, &v); err != nil {
		return sdkmath.Int{}, err
	}
	return pots.OrZero(v), nil
}

// --- singletons -------------------------------------------------------------

func (t *stateTx) Config(ctx context.Context) (pots.GameConfig, error) {
	var cfg pots.GameConfig
	ok, err := t.load(ctx, KeyConfig, &cfg)
	if err != nil {
		return pots.GameConfig{}, err
	}
	if !ok {
		return pots.GameConfig{}, fmt.Errorf("config: %w", ErrNotFound)
	}
	return cfg, nil
}

func (t *stateTx) SaveConfig(ctx context.Context, cfg pots.GameConfig) error {
	return t.save(ctx, KeyConfig, cfg)
}

func (t *stateTx) Round(ctx context.Context) (pots.RoundState, error) {
	var round pots.RoundState
	ok, err := t.load(ctx, KeyRound, &round)
	if err != nil {
		return pots.RoundState{}, err
	}
	if !ok {
		return pots.RoundState{}, fmt.Errorf("round: %w", ErrNotFound)
	}
	return round, nil
}

func (t *stateTx) SaveRound(ctx context.Context, round pots.RoundState) error {
	return t.save(ctx, KeyRound, round)
}

func (t *stateTx) Pots(ctx context.Context) (pots.Pots, error) {
	var p pots.Pots
	if _, err := t.load(ctx, KeyPots, &p); err != nil {
		return pots.Pots{}, err
	}
	for i := range p {
		p[i] = pots.OrZero(p[i])
	}
	return p, nil
}

func (t *stateTx) SavePots(ctx context.Context, p pots.Pots) error {
	return t.save(ctx, KeyPots, p)
}

func (t *stateTx) ReallocationFeePool(ctx context.Context) (sdkmath.Int, error) {
	return t.loadAmount(ctx, KeyFeePool)
}

func (t *stateTx) SaveReallocationFeePool(ctx context.Context, amount sdkmath.Int) error {
	return t.save(ctx, KeyFeePool, pots.OrZero(amount))
}

func (t *stateTx) Raffle(ctx context.Context) (pots.Raffle, error) {
	var r pots.Raffle
	if _, err := t.load(ctx, KeyRaffle, &r); err != nil {
		return pots.Raffle{}, err
	}
	r.Amount = pots.OrZero(r.Amount)
	return r, nil
}

func (t *stateTx) SaveRaffle(ctx context.Context, raffle pots.Raffle) error {
	return t.save(ctx, KeyRaffle, raffle.Clone())
}

func (t *stateTx) Custody(ctx context.Context) (sdkmath.Int, error) {
	return t.loadAmount(ctx, KeyCustody)
}

func (t *stateTx) SaveCustody(ctx context.Context, amount sdkmath.Int) error {
	return t.save(ctx, KeyCustody, pots.OrZero(amount))
}

func (t *stateTx) Residual(ctx context.Context) (sdkmath.Int, error) {
	return t.loadAmount(ctx, KeyResidual)
}

func (t *stateTx) SaveResidual(ctx context.Context, amount sdkmath.Int) error {
	return t.save(ctx, KeyResidual, pots.OrZero(amount))
}

func (t *stateTx) PendingAction(ctx context.Context) (pots.PendingAction, bool, error) {
	var p pots.PendingAction
	ok, err := t.load(ctx, KeyPending, &p)
	return p, ok, err
}

func (t *stateTx) SavePendingAction(ctx context.Context, action pots.PendingAction) error {
	return t.save(ctx, KeyPending, action)
}

func (t *stateTx) ClearPendingAction(ctx context.Context) error {
	if err := t.kv.Delete(ctx, KeyPending); err != nil {
		return fmt.Errorf("clear %s: %w", KeyPending, err)
	}
	return nil
}

func (t *stateTx) ClearAll(ctx context.Context) error {
	for _, key := range []string{KeyConfig, KeyRound, KeyPots, KeyFeePool, KeyRaffle, KeyCustody, KeyResidual, KeyPending} {
		if err := t.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	for _, prefix := range []string{PrefixAllocations, PrefixReallocCount, PrefixFirstBidder} {
		if err := t.clear(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

// --- round-scoped records ---------------------------------------------------

func (t *stateTx) PlayerAllocations(ctx context.Context, player string) (pots.PlayerAllocations, error) {
	alloc := pots.PlayerAllocations{Player: player}
	if _, err := t.load(ctx, PrefixAllocations+player, &alloc); err != nil {
		return pots.PlayerAllocations{}, err
	}
	return alloc, nil
}

func (t *stateTx) SavePlayerAllocations(ctx context.Context, alloc pots.PlayerAllocations) error {
	if alloc.Player == "" {
		return fmt.Errorf("save allocations: %w: empty player", pots.ErrInvalidInput)
	}
	return t.save(ctx, PrefixAllocations+alloc.Player, alloc.Clone())
}

func (t *stateTx) ListPlayerAllocations(ctx context.Context) ([]pots.PlayerAllocations, error) {
	rows, err := t.kv.Scan(ctx, PrefixAllocations)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	out := make([]pots.PlayerAllocations, 0, len(rows))
	for _, row := range rows {
		var alloc pots.PlayerAllocations
		if err := json.Unmarshal(row.Value, &alloc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Key, err)
		}
		alloc.Player = strings.TrimPrefix(row.Key, PrefixAllocations)
		out = append(out, alloc)
	}
	pots.SortAllocations(out)
	return out, nil
}

func (t *stateTx) ClearPlayerAllocations(ctx context.Context) error {
	return t.clear(ctx, PrefixAllocations)
}

func (t *stateTx) ReallocationCount(ctx context.Context, player string) (uint64, error) {
	var n uint64
	if _, err := t.load(ctx, PrefixReallocCount+player, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *stateTx) SaveReallocationCount(ctx context.Context, player string, count uint64) error {
	return t.save(ctx, PrefixReallocCount+player, count)
}

func (t *stateTx) ListReallocationCounts(ctx context.Context) (map[string]uint64, error) {
	rows, err := t.kv.Scan(ctx, PrefixReallocCount)
	if err != nil {
		return nil, fmt.Errorf("list reallocation counts: %w", err)
	}
	out := make(map[string]uint64, len(rows))
	for _, row := range rows {
		var n uint64
		if err := json.Unmarshal(row.Value, &n); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Key, err)
		}
		out[strings.TrimPrefix(row.Key, PrefixReallocCount)] = n
	}
	return out, nil
}

func (t *stateTx) ClearReallocationCounts(ctx context.Context) error {
	return t.clear(ctx, PrefixReallocCount)
}

func (t *stateTx) FirstBidder(ctx context.Context, pot pots.PotID) (pots.FirstBidder, bool, error) {
	var fb pots.FirstBidder
	ok, err := t.load(ctx, firstBidderKey(pot), &fb)
	return fb, ok, err
}

func (t *stateTx) SaveFirstBidder(ctx context.Context, pot pots.PotID, bidder pots.FirstBidder) error {
	return t.save(ctx, firstBidderKey(pot), bidder)
}

func (t *stateTx) ListFirstBidders(ctx context.Context) (map[pots.PotID]pots.FirstBidder, error) {
	rows, err := t.kv.Scan(ctx, PrefixFirstBidder)
	if err != nil {
		return nil, fmt.Errorf("list first bidders: %w", err)
	}
	out := make(map[pots.PotID]pots.FirstBidder, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseUint(strings.TrimPrefix(row.Key, PrefixFirstBidder), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Key, err)
		}
		var fb pots.FirstBidder
		if err := json.Unmarshal(row.Value, &fb); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Key, err)
		}
		out[pots.PotID(id)] = fb
	}
	return out, nil
}

func (t *stateTx) ClearFirstBidders(ctx context.Context) error {
	return t.clear(ctx, PrefixFirstBidder)
}

func firstBidderKey(pot pots.PotID) string {
	return PrefixFirstBidder + strconv.Itoa(int(pot))
}

// IsNotFound reports whether err marks a missing singleton.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
