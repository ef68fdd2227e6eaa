package storage

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
)

// ErrNotFound is returned by singleton getters when the entity was never written.
var ErrNotFound = errors.New("not found")

// Store runs units of work against persisted game state.
type Store interface {
	// Atomic runs fn in a transaction; every write commits when fn returns
	// nil and none do otherwise.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read of the state. Writes are discarded.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes per-entity load/save/clear operations inside a unit of work.
type Tx interface {
	Config(ctx context.Context) (pots.GameConfig, error)
	SaveConfig(ctx context.Context, cfg pots.GameConfig) error

	Round(ctx context.Context) (pots.RoundState, error)
	SaveRound(ctx context.Context, round pots.RoundState) error

	Pots(ctx context.Context) (pots.Pots, error)
	SavePots(ctx context.Context, p pots.Pots) error

	PlayerAllocations(ctx context.Context, player string) (pots.PlayerAllocations, error)
	SavePlayerAllocations(ctx context.Context, alloc pots.PlayerAllocations) error
	ListPlayerAllocations(ctx context.Context) ([]pots.PlayerAllocations, error)
	ClearPlayerAllocations(ctx context.Context) error

	ReallocationCount(ctx context.Context, player string) (uint64, error)
	SaveReallocationCount(ctx context.Context, player string, count uint64) error
	ListReallocationCounts(ctx context.Context) (map[string]uint64, error)
	ClearReallocationCounts(ctx context.Context) error

	FirstBidder(ctx context.Context, pot pots.PotID) (pots.FirstBidder, bool, error)
	SaveFirstBidder(ctx context.Context, pot pots.PotID, bidder pots.FirstBidder) error
	ListFirstBidders(ctx context.Context) (map[pots.PotID]pots.FirstBidder, error)
	ClearFirstBidders(ctx context.Context) error

	ReallocationFeePool(ctx context.Context) (sdkmath.Int, error)
	SaveReallocationFeePool(ctx context.Context, amount sdkmath.Int) error

	Raffle(ctx context.Context) (pots.Raffle, error)
	SaveRaffle(ctx context.Context, raffle pots.Raffle) error

	Custody(ctx context.Context) (sdkmath.Int, error)
	SaveCustody(ctx context.Context, amount sdkmath.Int) error

	Residual(ctx context.Context) (sdkmath.Int, error)
	SaveResidual(ctx context.Context, amount sdkmath.Int) error

	PendingAction(ctx context.Context) (pots.PendingAction, bool, error)
	SavePendingAction(ctx context.Context, action pots.PendingAction) error
	ClearPendingAction(ctx context.Context) error

	// ClearAll removes every game entity, leaving an uninstantiated state.
	ClearAll(ctx context.Context) error
}

// KVPair is a raw stored entry.
type KVPair struct {
	Key   string
	Value []byte
}

// KVReader is the read half of a raw key-value backend.
type KVReader interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Scan returns every entry whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, prefix string) ([]KVPair, error)
}

// KVTx is a raw key-value transaction.
type KVTx interface {
	KVReader
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Backend is a raw key-value persistence service with transactional units of work.
type Backend interface {
	Update(ctx context.Context, fn func(tx KVTx) error) error
	Read(ctx context.Context, fn func(tx KVTx) error) error
}
