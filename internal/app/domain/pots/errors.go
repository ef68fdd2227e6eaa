package pots

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Arithmetic faults.
var (
	ErrOverflow          = errors.New("arithmetic overflow")
	ErrDivideByZero      = errors.New("divide by zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Validation faults.
var (
	ErrInvalidPot                = errors.New("invalid pot id")
	ErrInvalidInput              = errors.New("invalid input")
	ErrInvalidFunds              = errors.New("invalid funds")
	ErrAlreadyAllocated          = errors.New("player already allocated to this pot")
	ErrBidOutOfRange             = errors.New("bid out of range")
	ErrReallocationsLimitReached = errors.New("reallocations limit reached")
	ErrGameStillActive           = errors.New("game still active")
	ErrGameAlreadyEnded          = errors.New("game already ended")
	ErrGameNotStarted            = errors.New("game not started")
	ErrPotLimitReached           = errors.New("pot limit reached")
	ErrInvalidRaffleNft          = errors.New("invalid raffle nft")
	ErrInvalidNextRoundStart     = errors.New("next round start must be in the future")
	ErrInvalidConfig             = errors.New("invalid config")
)

var validationErrors = []error{
	ErrInvalidPot,
	ErrInvalidInput,
	ErrInvalidFunds,
	ErrAlreadyAllocated,
	ErrBidOutOfRange,
	ErrReallocationsLimitReached,
	ErrGameStillActive,
	ErrGameAlreadyEnded,
	ErrGameNotStarted,
	ErrPotLimitReached,
	ErrInvalidRaffleNft,
	ErrInvalidNextRoundStart,
	ErrInvalidConfig,
}

// IsValidation reports whether err wraps one of the validation faults.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// Authorization faults.
var ErrUnauthorized = errors.New("unauthorized")

// Lifecycle faults.
var (
	ErrNotEnoughFundsForNextRound = errors.New("not enough funds for next round")
	ErrNftNotReceived             = errors.New("raffle nft not received")
	ErrActionPending              = errors.New("a previous action is awaiting nft acknowledgement")
	ErrUnknownTransfer            = errors.New("unknown nft transfer")
	ErrNotInstantiated            = errors.New("game not instantiated")
	ErrAlreadyInstantiated        = errors.New("game already instantiated")
	ErrConservationViolated       = errors.New("custody does not match tracked balances")
)

// BidOutOfRangeError reports the bounds a rejected deposit was checked against.
type BidOutOfRangeError struct {
	Min sdkmath.Int
	Max sdkmath.Int
}

func (e *BidOutOfRangeError) Error() string {
	return fmt.Sprintf("bid out of range: min %s, max %s", e.Min, e.Max)
}

func (e *BidOutOfRangeError) Unwrap() error { return ErrBidOutOfRange }

// InsufficientFundsError reports a decrease larger than the available amount.
type InsufficientFundsError struct {
	Available sdkmath.Int
	Requested sdkmath.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotEnoughFundsError reports a reset whose per-pot seed falls below the configured minimum.
type NotEnoughFundsError struct {
	Seed    sdkmath.Int
	Minimum sdkmath.Int
}

func (e *NotEnoughFundsError) Error() string {
	return fmt.Sprintf("not enough funds for next round: seed %s below minimum %s", e.Seed, e.Minimum)
}

func (e *NotEnoughFundsError) Unwrap() error { return ErrNotEnoughFundsForNextRound }
