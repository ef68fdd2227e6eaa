package pots

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
)

// NftCollection is a collection whose holders receive a bid discount.
type NftCollection struct {
	Address string `json:"address" yaml:"address"`
	Name    string `json:"name" yaml:"name"`
}

// MedianMode selects how the median rule treats duplicate values.
type MedianMode string

const (
	// MedianUnique requires the median value to be held by exactly one pot.
	MedianUnique MedianMode = "unique"
	// MedianAny accepts any pot matching the middle value, duplicates included.
	MedianAny MedianMode = "any"
)

// GameConfig holds the administrator-controlled parameters.
type GameConfig struct {
	FeePercent              uint64            `json:"fee"`
	FeeReallocationPercent  uint64            `json:"fee_reallocation"`
	Treasury                string            `json:"fee_address"`
	Denom                   string            `json:"game_denom"`
	NftCollections          []NftCollection   `json:"game_cw721_addrs"`
	GameDuration            time.Duration     `json:"game_duration"`
	GameDurationEpoch       time.Duration     `json:"game_duration_epoch"`
	GameExtend              time.Duration     `json:"game_extend"`
	GameEndThreshold        time.Duration     `json:"game_end_threshold"`
	MinPotInitialAllocation sdkmath.Int       `json:"min_pot_initial_allocation"`
	DecayFactor             sdkmath.LegacyDec `json:"decay_factor"`
	ReallocationsLimit      uint64            `json:"reallocations_limit"`
	MedianMode              MedianMode        `json:"median_mode,omitempty"`
}

// Validate rejects configurations the engine cannot run with.
func (c GameConfig) Validate() error {
	var problems []string
	if c.FeePercent > 100 {
		problems = append(problems, "fee must be at most 100")
	}
	if c.FeeReallocationPercent > 100 {
		problems = append(problems, "fee_reallocation must be at most 100")
	}
	if strings.TrimSpace(c.Treasury) == "" {
		problems = append(problems, "fee_address is required")
	}
	if strings.TrimSpace(c.Denom) == "" {
		problems = append(problems, "game_denom is required")
	}
	if c.GameDuration <= 0 {
		problems = append(problems, "game_duration must be positive")
	}
	if c.GameDurationEpoch <= 0 {
		problems = append(problems, "game_duration_epoch must be positive")
	}
	if c.GameExtend < 0 {
		problems = append(problems, "game_extend must not be negative")
	}
	if c.GameEndThreshold < 0 {
		problems = append(problems, "game_end_threshold must not be negative")
	}
	if c.MinPotInitialAllocation.IsNil() || !c.MinPotInitialAllocation.IsPositive() {
		problems = append(problems, "min_pot_initial_allocation must be positive")
	}
	if c.DecayFactor.IsNil() || !c.DecayFactor.IsPositive() || c.DecayFactor.GTE(sdkmath.LegacyOneDec()) {
		problems = append(problems, "decay_factor must be between 0 and 1 exclusive")
	}
	switch c.MedianMode {
	case "", MedianUnique, MedianAny:
	default:
		problems = append(problems, fmt.Sprintf("unknown median_mode %q", c.MedianMode))
	}
	for _, col := range c.NftCollections {
		if strings.TrimSpace(col.Address) == "" {
			problems = append(problems, "nft collection address is required")
			break
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy.
func (c GameConfig) Clone() GameConfig {
	out := c
	out.NftCollections = append([]NftCollection(nil), c.NftCollections...)
	return out
}

// ConfigUpdate carries the fields an administrator wants to change. Nil
// fields are left as they are.
type ConfigUpdate struct {
	FeePercent              *uint64
	FeeReallocationPercent  *uint64
	Treasury                *string
	Denom                   *string
	NftCollections          []NftCollection
	GameDuration            *time.Duration
	GameDurationEpoch       *time.Duration
	GameExtend              *time.Duration
	GameEndThreshold        *time.Duration
	MinPotInitialAllocation *sdkmath.Int
	DecayFactor             *sdkmath.LegacyDec
	ReallocationsLimit      *uint64
	MedianMode              *MedianMode
}

// Apply returns cfg with the update merged in and validated.
func (u ConfigUpdate) Apply(cfg GameConfig) (GameConfig, error) {
	out := cfg.Clone()
	if u.FeePercent != nil {
		out.FeePercent = *u.FeePercent
	}
	if u.FeeReallocationPercent != nil {
		out.FeeReallocationPercent = *u.FeeReallocationPercent
	}
	if u.Treasury != nil {
		out.Treasury = *u.Treasury
	}
	if u.Denom != nil {
		out.Denom = *u.Denom
	}
	if u.NftCollections != nil {
		out.NftCollections = append([]NftCollection(nil), u.NftCollections...)
	}
	if u.GameDuration != nil {
		out.GameDuration = *u.GameDuration
	}
	if u.GameDurationEpoch != nil {
		out.GameDurationEpoch = *u.GameDurationEpoch
	}
	if u.GameExtend != nil {
		out.GameExtend = *u.GameExtend
	}
	if u.GameEndThreshold != nil {
		out.GameEndThreshold = *u.GameEndThreshold
	}
	if u.MinPotInitialAllocation != nil {
		out.MinPotInitialAllocation = *u.MinPotInitialAllocation
	}
	if u.DecayFactor != nil {
		out.DecayFactor = *u.DecayFactor
	}
	if u.ReallocationsLimit != nil {
		out.ReallocationsLimit = *u.ReallocationsLimit
	}
	if u.MedianMode != nil {
		out.MedianMode = *u.MedianMode
	}
	if err := out.Validate(); err != nil {
		return GameConfig{}, err
	}
	return out, nil
}
