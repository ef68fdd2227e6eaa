// Package pots is the settlement and game-rule engine. Every public action
// runs as one atomic unit of work against the injected store and returns a
// receipt of the transfers the dispatch layer must carry out.
package pots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/metrics"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// Service runs the five-pot game.
type Service struct {
	store     storage.Store
	authority Authority
	nfts      NftOwnership
	addresses AddressValidator
	newID     func() string
	custody   string
	log       *logger.Logger
}

// DefaultCustodyAddress names the engine's own account on NFT transfers.
const DefaultCustodyAddress = "prudent-pots"

// Option customises a Service.
type Option func(*Service)

// WithAuthority sets the identity collaborator.
func WithAuthority(a Authority) Option {
	return func(s *Service) { s.authority = a }
}

// WithNftOwnership sets the collaborator used for holder discounts.
func WithNftOwnership(n NftOwnership) Option {
	return func(s *Service) { s.nfts = n }
}

// WithAddressValidator sets the validator applied to player and treasury addresses.
func WithAddressValidator(v AddressValidator) Option {
	return func(s *Service) { s.addresses = v }
}

// WithIDGenerator replaces the uuid generator, mainly for deterministic replay.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithCustodyAddress sets the account NFTs are held under while pending.
func WithCustodyAddress(addr string) Option {
	return func(s *Service) {
		if addr != "" {
			s.custody = addr
		}
	}
}

// New constructs the engine around store.
func New(store storage.Store, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("pots")
	}
	s := &Service{
		store:     store,
		authority: NewStaticAuthority(),
		nfts:      NoNftOwnership{},
		newID:     uuid.NewString,
		custody:   DefaultCustodyAddress,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// atomic runs fn as one action and records its outcome.
func (s *Service) atomic(ctx context.Context, action string, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := s.store.Atomic(ctx, fn)
	metrics.RecordAction(action, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// view runs a read-only query.
func (s *Service) view(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.store.View(ctx, fn)
}

func (s *Service) newReceipt(action string) domain.Receipt {
	return domain.Receipt{ActionID: s.newID(), Action: action}
}

func (s *Service) isAdmin(ctx context.Context, caller string) (bool, error) {
	ok, err := s.authority.IsAdmin(ctx, caller)
	if err != nil {
		return false, fmt.Errorf("identity lookup: %w", err)
	}
	return ok, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller string) error {
	ok, err := s.isAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) validateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: empty address", domain.ErrInvalidInput)
	}
	if s.addresses == nil {
		return nil
	}
	if err := s.addresses.ValidateAddress(addr); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// gameState is the singleton state most actions start from.
type gameState struct {
	cfg   domain.GameConfig
	round domain.RoundState
}

func loadGame(ctx context.Context, tx storage.Tx) (gameState, error) {
	if err := requireIdle(ctx, tx); err != nil {
		return gameState{}, err
	}
	cfg, err := tx.Config(ctx)
	if storage.IsNotFound(err) {
		return gameState{}, domain.ErrNotInstantiated
	}
	if err != nil {
		return gameState{}, err
	}
	round, err := tx.Round(ctx)
	if storage.IsNotFound(err) {
		return gameState{}, domain.ErrNotInstantiated
	}
	if err != nil {
		return gameState{}, err
	}
	return gameState{cfg: cfg, round: round}, nil
}

// requireIdle refuses state changes while an NFT acknowledgement is outstanding.
func requireIdle(ctx context.Context, tx storage.Tx) error {
	_, pending, err := tx.PendingAction(ctx)
	if err != nil {
		return err
	}
	if pending {
		return domain.ErrActionPending
	}
	return nil
}

// conservation reads every tracked balance and the custody total.
func conservation(ctx context.Context, tx storage.Tx) (domain.Conservation, error) {
	p, err := tx.Pots(ctx)
	if err != nil {
		return domain.Conservation{}, err
	}
	total, err := p.Total()
	if err != nil {
		return domain.Conservation{}, err
	}
	pool, err := tx.ReallocationFeePool(ctx)
	if err != nil {
		return domain.Conservation{}, err
	}
	raffle, err := tx.Raffle(ctx)
	if err != nil {
		return domain.Conservation{}, err
	}
	residual, err := tx.Residual(ctx)
	if err != nil {
		return domain.Conservation{}, err
	}
	custody, err := tx.Custody(ctx)
	if err != nil {
		return domain.Conservation{}, err
	}
	return domain.Conservation{
		Pots:     total,
		FeePool:  pool,
		Raffle:   raffle.Amount,
		Residual: residual,
		Custody:  custody,
	}, nil
}

// checkConservation aborts the action when the ledger no longer accounts for custody.
func checkConservation(ctx context.Context, tx storage.Tx) error {
	c, err := conservation(ctx, tx)
	if err != nil {
		return err
	}
	if !c.Balanced() {
		return fmt.Errorf("%w: pots %s + fee pool %s + raffle %s + residual %s != custody %s",
			domain.ErrConservationViolated, c.Pots, c.FeePool, c.Raffle, c.Residual, c.Custody)
	}
	return nil
}

// adjustCustody adds delta (which may be negative) to the custodied balance.
func adjustCustody(ctx context.Context, tx storage.Tx, delta sdkmath.Int) error {
	custody, err := tx.Custody(ctx)
	if err != nil {
		return err
	}
	if delta.IsNegative() {
		custody, err = domain.Sub(custody, delta.Neg())
	} else {
		custody, err = domain.Add(custody, delta)
	}
	if err != nil {
		return err
	}
	return tx.SaveCustody(ctx, custody)
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func requirePositive(amount sdkmath.Int, what string) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidFunds, what)
	}
	return nil
}

// IsRejection reports whether err is a recoverable validation or authorization fault.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	for _, fatal := range []error{
		domain.ErrOverflow,
		domain.ErrDivideByZero,
		domain.ErrNotEnoughFundsForNextRound,
		domain.ErrNftNotReceived,
		domain.ErrConservationViolated,
	} {
		if errors.Is(err, fatal) {
			return false
		}
	}
	return true
}
