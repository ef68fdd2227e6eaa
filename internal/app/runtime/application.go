// Package runtime wires configuration, storage, the game engine, the keeper
// and the operations HTTP server into one process lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/httpapi"
	"github.com/R3E-Network/prudent-pots/internal/app/services/keeper"
	"github.com/R3E-Network/prudent-pots/internal/app/services/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage"
	"github.com/R3E-Network/prudent-pots/internal/app/storage/memory"
	"github.com/R3E-Network/prudent-pots/internal/app/storage/postgres"
	redisstore "github.com/R3E-Network/prudent-pots/internal/app/storage/redis"
	"github.com/R3E-Network/prudent-pots/internal/chain"
	"github.com/R3E-Network/prudent-pots/internal/config"
	"github.com/R3E-Network/prudent-pots/internal/platform/migrations"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// Application wires core dependencies and manages the server lifecycle.
type Application struct {
	cfg        config.Config
	log        *logger.Logger
	clock      pots.Clock
	store      storage.Store
	engine     *pots.Service
	keeper     *keeper.Keeper
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
}

// Option customises an Application.
type Option func(*Application)

// WithClock replaces the wall clock used by the keeper, bootstrap and API.
func WithClock(c pots.Clock) Option {
	return func(a *Application) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithStore injects a prebuilt store instead of the configured driver.
func WithStore(s storage.Store) Option {
	return func(a *Application) { a.store = s }
}

// NewApplication constructs the application from cfg.
func NewApplication(ctx context.Context, cfg config.Config, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("potsd")
	}
	a := &Application{cfg: cfg, log: log, clock: pots.SystemClock{}}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		if err := a.buildStore(ctx); err != nil {
			return nil, fmt.Errorf("configure store: %w", err)
		}
	}

	validator, err := chain.ValidatorFor(cfg.Game.AddressFormat)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	engineOpts := []pots.Option{
		pots.WithAuthority(pots.NewStaticAuthority(cfg.Game.Admin)),
		pots.WithAddressValidator(validator),
		pots.WithCustodyAddress(cfg.Game.CustodyAddress),
	}
	if url := strings.TrimSpace(cfg.Game.NeoRPCURL); url != "" {
		client, err := chain.NewClient(chain.Config{RPCURL: url})
		if err != nil {
			a.closeStores()
			return nil, err
		}
		engineOpts = append(engineOpts, pots.WithNftOwnership(chain.NewNEP11Ownership(client)))
	}
	a.engine = pots.New(a.store, log.Named("pots"), engineOpts...)

	// The keeper also releases held receipts on acknowledgement, so it is
	// built even when its schedule is disabled.
	a.keeper = keeper.New(a.engine, nil, log.Named("keeper"),
		keeper.WithSchedule(cfg.Keeper.Schedule),
		keeper.WithCaller(cfg.Keeper.Caller),
		keeper.WithClock(a.clock),
	)

	a.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewHandler(a.engine, a.clock, httpapi.WithAcknowledger(a.keeper)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Engine exposes the game engine.
func (a *Application) Engine() *pots.Service { return a.engine }

// Handler exposes the operations HTTP handler.
func (a *Application) Handler() http.Handler { return a.httpServer.Handler }

// Bootstrap instantiates the game from the configured parameters when the
// store holds no game yet. It reports whether instantiation ran.
func (a *Application) Bootstrap(ctx context.Context) (bool, error) {
	if !a.cfg.Bootstrap.Enabled {
		return false, nil
	}
	if _, err := a.engine.Config(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNotInstantiated) {
		return false, err
	}

	gameCfg, err := a.cfg.Game.GameConfig()
	if err != nil {
		return false, err
	}
	funds, err := a.cfg.Game.Funds()
	if err != nil {
		return false, err
	}
	receipt, err := a.engine.Instantiate(ctx, a.cfg.Game.Admin, gameCfg, funds, pots.SettleOptions{}, a.clock.Now())
	if err != nil {
		return false, fmt.Errorf("bootstrap game: %w", err)
	}
	a.log.WithField("action_id", receipt.ActionID).
		WithField("funds", funds.String()).
		Info("game instantiated")
	return true, nil
}

// Run starts the keeper and the HTTP server and blocks until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Keeper.Enabled {
		if err := a.keeper.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the keeper, drains the HTTP server and closes the stores.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.keeper.Stop()
	err := a.httpServer.Shutdown(shutdownCtx)
	a.closeStores()
	return err
}

func (a *Application) buildStore(ctx context.Context) error {
	switch strings.ToLower(a.cfg.Storage.Driver) {
	case "", "memory":
		a.store = memory.NewState()
	case "postgres":
		db, err := openDatabase(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		if a.cfg.Storage.MigrateOnStart {
			if err := migrations.Apply(ctx, db); err != nil {
				db.Close()
				return err
			}
		}
		a.db = db
		a.store = postgres.NewState(db)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Storage.RedisAddr,
			Password: a.cfg.Storage.RedisPassword,
			DB:       a.cfg.Storage.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("ping redis: %w", err)
		}
		a.redis = client
		a.store = redisstore.NewState(client, a.cfg.Storage.RedisNamespace)
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	a.log.WithField("driver", a.cfg.Storage.Driver).Info("state store ready")
	return nil
}

func (a *Application) closeStores() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis client")
		}
		a.redis = nil
	}
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
