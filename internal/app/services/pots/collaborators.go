package pots

import (
	"context"
	"strings"
	"time"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// Authority answers whether a caller is the current administrator.
type Authority interface {
	IsAdmin(ctx context.Context, caller string) (bool, error)
}

// StaticAuthority treats a fixed set of identifiers as administrators.
type StaticAuthority struct {
	admins map[string]struct{}
}

// NewStaticAuthority builds an authority from admin identifiers.
func NewStaticAuthority(admins ...string) *StaticAuthority {
	a := &StaticAuthority{admins: make(map[string]struct{}, len(admins))}
	for _, id := range admins {
		if id = strings.TrimSpace(id); id != "" {
			a.admins[id] = struct{}{}
		}
	}
	return a
}

func (a *StaticAuthority) IsAdmin(_ context.Context, caller string) (bool, error) {
	_, ok := a.admins[caller]
	return ok, nil
}

// NftOwnership counts the tokens an owner holds in a collection.
type NftOwnership interface {
	TokenCount(ctx context.Context, collection, owner string) (uint64, error)
}

// NoNftOwnership reports zero holdings for everyone.
type NoNftOwnership struct{}

func (NoNftOwnership) TokenCount(context.Context, string, string) (uint64, error) { return 0, nil }

// StaticNftOwnership is a fixed holdings table keyed by collection then owner.
type StaticNftOwnership map[string]map[string]uint64

func (s StaticNftOwnership) TokenCount(_ context.Context, collection, owner string) (uint64, error) {
	return s[collection][owner], nil
}

// AddressValidator rejects malformed player or treasury identifiers.
type AddressValidator interface {
	ValidateAddress(addr string) error
}

// Clock supplies the timestamp for lifecycle comparisons.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TransferExecutor carries out the instructions on a committed receipt.
type TransferExecutor interface {
	Execute(ctx context.Context, receipt domain.Receipt) error
}

// LogExecutor records instructions without moving anything.
type LogExecutor struct {
	log *logger.Logger
}

// NewLogExecutor constructs a LogExecutor.
func NewLogExecutor(log *logger.Logger) *LogExecutor {
	if log == nil {
		log = logger.NewDefault("transfers")
	}
	return &LogExecutor{log: log}
}

func (e *LogExecutor) Execute(_ context.Context, receipt domain.Receipt) error {
	for _, t := range receipt.Transfers {
		e.log.WithField("action_id", receipt.ActionID).
			WithField("to", t.To).
			WithField("amount", t.Amount.String()).
			WithField("denom", t.Denom).
			WithField("reason", t.Reason).
			Info("transfer instruction")
	}
	for _, n := range receipt.NftTransfers {
		e.log.WithField("action_id", receipt.ActionID).
			WithField("transfer_id", n.ID).
			WithField("collection", n.Collection).
			WithField("token_id", n.TokenID).
			WithField("from", n.From).
			WithField("to", n.To).
			Info("nft transfer instruction")
	}
	return nil
}
