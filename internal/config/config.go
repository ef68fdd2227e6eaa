// Package config loads the daemon configuration: built-in defaults, then an
// optional YAML file, then POTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// Config is the full daemon configuration.
type Config struct {
	Logging   logger.LoggingConfig `yaml:"logging"`
	Server    ServerConfig         `yaml:"server"`
	Storage   StorageConfig        `yaml:"storage"`
	Game      GameConfig           `yaml:"game"`
	Keeper    KeeperConfig         `yaml:"keeper"`
	Bootstrap BootstrapConfig      `yaml:"bootstrap"`
}

// ServerConfig controls the operations HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"POTS_HTTP_ADDR"`
}

// StorageConfig selects and configures the state backend.
type StorageConfig struct {
	Driver         string `yaml:"driver" env:"POTS_STORAGE_DRIVER"`
	PostgresDSN    string `yaml:"postgres_dsn" env:"POTS_POSTGRES_DSN"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"POTS_MIGRATE_ON_START"`
	RedisAddr      string `yaml:"redis_addr" env:"POTS_REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password" env:"POTS_REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db" env:"POTS_REDIS_DB"`
	RedisNamespace string `yaml:"redis_namespace" env:"POTS_REDIS_NAMESPACE"`
}

// GameConfig holds the game parameters used on first start.
type GameConfig struct {
	Admin                   string        `yaml:"admin" env:"POTS_ADMIN"`
	Treasury                string        `yaml:"treasury" env:"POTS_TREASURY"`
	Denom                   string        `yaml:"denom" env:"POTS_DENOM"`
	CustodyAddress          string        `yaml:"custody_address" env:"POTS_CUSTODY_ADDRESS"`
	AddressFormat           string        `yaml:"address_format" env:"POTS_ADDRESS_FORMAT"`
	FeePercent              uint64        `yaml:"fee_percent" env:"POTS_FEE_PERCENT"`
	FeeReallocationPercent  uint64        `yaml:"fee_reallocation_percent" env:"POTS_FEE_REALLOCATION_PERCENT"`
	NftCollections          string        `yaml:"nft_collections" env:"POTS_NFT_COLLECTIONS"`
	Duration                time.Duration `yaml:"duration" env:"POTS_GAME_DURATION"`
	DurationEpoch           time.Duration `yaml:"duration_epoch" env:"POTS_GAME_DURATION_EPOCH"`
	Extend                  time.Duration `yaml:"extend" env:"POTS_GAME_EXTEND"`
	EndThreshold            time.Duration `yaml:"end_threshold" env:"POTS_GAME_END_THRESHOLD"`
	MinPotInitialAllocation string        `yaml:"min_pot_initial_allocation" env:"POTS_MIN_POT_INITIAL_ALLOCATION"`
	DecayFactor             string        `yaml:"decay_factor" env:"POTS_DECAY_FACTOR"`
	ReallocationsLimit      uint64        `yaml:"reallocations_limit" env:"POTS_REALLOCATIONS_LIMIT"`
	MedianMode              string        `yaml:"median_mode" env:"POTS_MEDIAN_MODE"`
	InitialFunds            string        `yaml:"initial_funds" env:"POTS_INITIAL_FUNDS"`
	NeoRPCURL               string        `yaml:"neo_rpc_url" env:"POTS_NEO_RPC_URL"`
}

// KeeperConfig controls the settlement scheduler.
type KeeperConfig struct {
	Enabled  bool   `yaml:"enabled" env:"POTS_KEEPER_ENABLED"`
	Schedule string `yaml:"schedule" env:"POTS_KEEPER_SCHEDULE"`
	Caller   string `yaml:"caller" env:"POTS_KEEPER_CALLER"`
}

// BootstrapConfig controls first-boot instantiation from the game section.
type BootstrapConfig struct {
	Enabled bool `yaml:"enabled" env:"POTS_BOOTSTRAP_ENABLED"`
}

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	return Config{
		Logging: logger.LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: "memory", RedisNamespace: "pots:"},
		Game: GameConfig{
			Admin:                   "admin",
			Treasury:                "treasury",
			Denom:                   "upot",
			AddressFormat:           "opaque",
			FeePercent:              2,
			FeeReallocationPercent:  5,
			Duration:                24 * time.Hour,
			DurationEpoch:           time.Hour,
			Extend:                  10 * time.Minute,
			EndThreshold:            10 * time.Minute,
			MinPotInitialAllocation: "1000000",
			DecayFactor:             "0.05",
			ReallocationsLimit:      10,
			MedianMode:              string(domain.MedianUnique),
			InitialFunds:            "5000000",
		},
		Keeper:    KeeperConfig{Enabled: true, Schedule: "*/30 * * * * *", Caller: "keeper"},
		Bootstrap: BootstrapConfig{Enabled: true},
	}
}

// Load builds the configuration. An empty path skips the YAML layer; a
// missing .env file is ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the daemon-level settings. Game parameters are checked when
// converted by GameConfig.
func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("storage: postgres_dsn is required for the postgres driver")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage: redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Game.Admin) == "" {
		return fmt.Errorf("game: admin is required")
	}
	if _, err := c.Game.Funds(); err != nil {
		return err
	}
	if _, err := c.Game.GameConfig(); err != nil {
		return err
	}
	return nil
}

// Funds parses the initial custody funding.
func (g GameConfig) Funds() (sdkmath.Int, error) {
	if strings.TrimSpace(g.InitialFunds) == "" {
		return sdkmath.ZeroInt(), nil
	}
	funds, err := domain.ParseAmount(g.InitialFunds)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("game: initial_funds: %w", err)
	}
	return funds, nil
}

// GameConfig converts the file representation into the engine configuration.
func (g GameConfig) GameConfig() (domain.GameConfig, error) {
	minAlloc, err := domain.ParseAmount(g.MinPotInitialAllocation)
	if err != nil {
		return domain.GameConfig{}, fmt.Errorf("game: min_pot_initial_allocation: %w", err)
	}
	decay, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(g.DecayFactor))
	if err != nil {
		return domain.GameConfig{}, fmt.Errorf("game: decay_factor: %w", err)
	}

	var collections []domain.NftCollection
	for _, addr := range strings.Split(g.NftCollections, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			collections = append(collections, domain.NftCollection{Address: addr})
		}
	}

	cfg := domain.GameConfig{
		FeePercent:              g.FeePercent,
		FeeReallocationPercent:  g.FeeReallocationPercent,
		Treasury:                strings.TrimSpace(g.Treasury),
		Denom:                   strings.TrimSpace(g.Denom),
		NftCollections:          collections,
		GameDuration:            g.Duration,
		GameDurationEpoch:       g.DurationEpoch,
		GameExtend:              g.Extend,
		GameEndThreshold:        g.EndThreshold,
		MinPotInitialAllocation: minAlloc,
		DecayFactor:             decay,
		ReallocationsLimit:      g.ReallocationsLimit,
		MedianMode:              domain.MedianMode(strings.ToLower(strings.TrimSpace(g.MedianMode))),
	}
	if err := cfg.Validate(); err != nil {
		return domain.GameConfig{}, err
	}
	return cfg, nil
}
