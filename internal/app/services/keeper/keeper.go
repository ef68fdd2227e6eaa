// Package keeper settles ended rounds on a schedule so the game keeps moving
// when the administrator is away.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/metrics"
	"github.com/R3E-Network/prudent-pots/internal/app/services/pots"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// DefaultSchedule checks every thirty seconds.
const DefaultSchedule = "*/30 * * * * *"

// Engine is the part of the game engine the keeper drives.
type Engine interface {
	Config(ctx context.Context) (domain.GameConfig, error)
	Round(ctx context.Context) (domain.RoundState, error)
	SettleRound(ctx context.Context, caller string, now time.Time, opts pots.SettleOptions) (pots.Settlement, error)
	AcknowledgeNftTransfer(ctx context.Context, transferID string, delivered bool) (pots.AckResult, error)
}

// ExecutorFunc adapts a function to the pots.TransferExecutor interface.
type ExecutorFunc func(ctx context.Context, receipt domain.Receipt) error

func (f ExecutorFunc) Execute(ctx context.Context, receipt domain.Receipt) error {
	if f == nil {
		return nil
	}
	return f(ctx, receipt)
}

// Result labels the outcome of one tick.
type Result string

const (
	ResultIdle    Result = "idle"
	ResultPending Result = "pending"
	ResultSettled Result = "settled"
	ResultFailed  Result = "failed"
)

// Keeper settles a round once it is past its end plus the grace threshold.
type Keeper struct {
	engine   Engine
	executor pots.TransferExecutor
	clock    pots.Clock
	caller   string
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Option customises a Keeper.
type Option func(*Keeper)

// WithSchedule sets the six-field cron expression ticks run on.
func WithSchedule(spec string) Option {
	return func(k *Keeper) {
		if spec != "" {
			k.schedule = spec
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c pots.Clock) Option {
	return func(k *Keeper) { k.clock = c }
}

// WithCaller sets the identity the keeper settles as.
func WithCaller(caller string) Option {
	return func(k *Keeper) {
		if caller != "" {
			k.caller = caller
		}
	}
}

// New constructs a keeper. A nil executor only logs the instructions.
func New(engine Engine, executor pots.TransferExecutor, log *logger.Logger, opts ...Option) *Keeper {
	if log == nil {
		log = logger.NewDefault("keeper")
	}
	if executor == nil {
		executor = pots.NewLogExecutor(log)
	}
	k := &Keeper{
		engine:   engine,
		executor: executor,
		clock:    pots.SystemClock{},
		caller:   "keeper",
		schedule: DefaultSchedule,
		log:      log,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start registers the tick and starts the scheduler.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cron != nil {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(k.schedule, func() {
		if _, err := k.Tick(ctx); err != nil {
			k.log.WithError(err).Warn("keeper tick failed")
		}
	}); err != nil {
		return fmt.Errorf("register keeper schedule %q: %w", k.schedule, err)
	}
	c.Start()
	k.cron = c
	k.log.WithField("schedule", k.schedule).Info("keeper started")
	return nil
}

// Stop halts the scheduler and waits for a running tick.
func (k *Keeper) Stop() {
	k.mu.Lock()
	c := k.cron
	k.cron = nil
	k.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	k.log.Info("keeper stopped")
}

// Tick settles the round if it is due and hands the receipt to the executor.
func (k *Keeper) Tick(ctx context.Context) (Result, error) {
	result, err := k.tick(ctx)
	metrics.RecordKeeperRun(string(result))
	return result, err
}

func (k *Keeper) tick(ctx context.Context) (Result, error) {
	cfg, err := k.engine.Config(ctx)
	if errors.Is(err, domain.ErrNotInstantiated) {
		return ResultIdle, nil
	}
	if err != nil {
		return ResultFailed, err
	}
	round, err := k.engine.Round(ctx)
	if err != nil {
		return ResultFailed, err
	}
	now := k.clock.Now()
	if now.Before(round.EndTime.Add(cfg.GameEndThreshold)) {
		return ResultIdle, nil
	}

	out, err := k.engine.SettleRound(ctx, k.caller, now, pots.SettleOptions{})
	switch {
	case errors.Is(err, domain.ErrActionPending):
		return ResultPending, nil
	case err != nil:
		return ResultFailed, err
	}

	if out.Receipt.Pending {
		// Value transfers wait for the NFT deliveries; a failed delivery
		// undoes the settlement they belong to.
		if err := k.executor.Execute(ctx, out.Receipt.NftInstructions()); err != nil {
			return ResultFailed, fmt.Errorf("execute settlement %s: %w", out.Receipt.ActionID, err)
		}
		k.log.WithField("action_id", out.Receipt.ActionID).
			WithField("nft_transfers", len(out.Receipt.NftTransfers)).
			Info("keeper settlement held until nft delivery")
		return ResultPending, nil
	}

	if err := k.executor.Execute(ctx, out.Receipt); err != nil {
		return ResultFailed, fmt.Errorf("execute settlement %s: %w", out.Receipt.ActionID, err)
	}
	k.log.WithField("action_id", out.Receipt.ActionID).
		WithField("round", out.NextRound.RoundCount).
		Info("keeper settled round")
	return ResultSettled, nil
}

// AcknowledgeNftTransfer forwards a delivery report to the engine. When the
// report completes the pending action, the value transfers held on its
// receipt are executed. A rolled back action executes nothing.
func (k *Keeper) AcknowledgeNftTransfer(ctx context.Context, transferID string, delivered bool) (pots.AckResult, error) {
	res, err := k.engine.AcknowledgeNftTransfer(ctx, transferID, delivered)
	if err != nil {
		if res.RolledBack {
			k.log.WithField("action_id", res.ActionID).Warn("held receipt dropped")
		}
		return res, err
	}
	if res.Released == nil || len(res.Released.Transfers) == 0 {
		return res, nil
	}
	if err := k.executor.Execute(ctx, res.Released.ValueInstructions()); err != nil {
		return res, fmt.Errorf("execute released receipt %s: %w", res.ActionID, err)
	}
	k.log.WithField("action_id", res.ActionID).
		WithField("transfers", len(res.Released.Transfers)).
		Info("held receipt released")
	return res, nil
}
