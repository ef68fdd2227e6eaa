package pots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PotCount is the fixed number of pots in every round.
const PotCount = 5

// PotID identifies a pot. Valid ids are 1..PotCount.
type PotID uint8

// Valid reports whether the id addresses one of the five pots.
func (id PotID) Valid() bool { return id >= 1 && id <= PotCount }

// Index returns the zero-based array index for a valid id.
func (id PotID) Index() int { return int(id) - 1 }

// MarshalJSON encodes the id as a number so id slices stay JSON arrays.
func (id PotID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(id))), nil
}

// ParsePotID validates an external pot identifier.
func ParsePotID(v uint64) (PotID, error) {
	id := PotID(v)
	if v > PotCount || !id.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPot, v)
	}
	return id, nil
}

// AllPotIDs returns the pot ids in ascending order.
func AllPotIDs() []PotID {
	ids := make([]PotID, PotCount)
	for i := range ids {
		ids[i] = PotID(i + 1)
	}
	return ids
}

// Pots holds the five pot totals in pot-id order.
type Pots [PotCount]sdkmath.Int

// SeededPots returns five pots each holding seed.
func SeededPots(seed sdkmath.Int) Pots {
	var p Pots
	for i := range p {
		p[i] = seed
	}
	return p
}

// Get returns the amount held by pot id.
func (p Pots) Get(id PotID) sdkmath.Int { return OrZero(p[id.Index()]) }

// Set replaces the amount held by pot id.
func (p *Pots) Set(id PotID, v sdkmath.Int) { p[id.Index()] = v }

// Total sums all five pots.
func (p Pots) Total() (sdkmath.Int, error) { return Sum(p[:]...) }

// Allocation is a player's stake in a single pot.
type Allocation struct {
	Pot    PotID       `json:"pot_id"`
	Amount sdkmath.Int `json:"amount"`
}

// PlayerAllocations lists a player's stakes this round, at most one per pot.
type PlayerAllocations struct {
	Player      string       `json:"player"`
	Allocations []Allocation `json:"allocations"`
}

// Amount returns the player's stake in pot id, zero when absent.
func (pa PlayerAllocations) Amount(id PotID) sdkmath.Int {
	for _, a := range pa.Allocations {
		if a.Pot == id {
			return OrZero(a.Amount)
		}
	}
	return sdkmath.ZeroInt()
}

// Holds reports whether the player has a nonzero stake in pot id.
func (pa PlayerAllocations) Holds(id PotID) bool {
	return pa.Amount(id).IsPositive()
}

// Clone returns a deep copy.
func (pa PlayerAllocations) Clone() PlayerAllocations {
	out := PlayerAllocations{Player: pa.Player}
	if len(pa.Allocations) > 0 {
		out.Allocations = append([]Allocation(nil), pa.Allocations...)
	}
	return out
}

// SortAllocations orders player records by player identifier.
func SortAllocations(all []PlayerAllocations) {
	sort.Slice(all, func(i, j int) bool { return all[i].Player < all[j].Player })
}

// FirstBidder records the first depositor into a pot this round.
type FirstBidder struct {
	Player string    `json:"player"`
	Time   time.Time `json:"time"`
}

// RaffleNft identifies the NFT offered as raffle prize.
type RaffleNft struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
}

// NewRaffleNft validates a collection/token pairing. Both halves empty means
// no NFT; one half alone is malformed.
func NewRaffleNft(collection, tokenID string) (*RaffleNft, error) {
	collection, tokenID = strings.TrimSpace(collection), strings.TrimSpace(tokenID)
	switch {
	case collection == "" && tokenID == "":
		return nil, nil
	case collection == "" || tokenID == "":
		return nil, fmt.Errorf("%w: collection and token id must be supplied together", ErrInvalidRaffleNft)
	}
	return &RaffleNft{Collection: collection, TokenID: tokenID}, nil
}

// Equal compares two optional NFTs.
func (n *RaffleNft) Equal(o *RaffleNft) bool {
	if n == nil || o == nil {
		return n == o
	}
	return *n == *o
}

func (n *RaffleNft) String() string {
	if n == nil {
		return "<none>"
	}
	return n.Collection + "/" + n.TokenID
}

// Raffle is the bonus prize carried until claimed.
type Raffle struct {
	Nft    *RaffleNft  `json:"nft,omitempty"`
	Amount sdkmath.Int `json:"amount"`
}

// Clone returns a deep copy.
func (r Raffle) Clone() Raffle {
	out := Raffle{Amount: OrZero(r.Amount)}
	if r.Nft != nil {
		nft := *r.Nft
		out.Nft = &nft
	}
	return out
}

// RoundState tracks the current round's clock.
type RoundState struct {
	RoundCount  uint64    `json:"round_count"`
	ExtendCount uint64    `json:"extend_count"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Phase classifies now against the round boundaries.
func (r RoundState) Phase(now time.Time) Phase {
	switch {
	case now.Before(r.StartTime):
		return PhaseNotStarted
	case now.Before(r.EndTime):
		return PhaseActive
	default:
		return PhaseEnded
	}
}

// TransferReason labels why value leaves custody.
type TransferReason string

const (
	ReasonPlayerPayout TransferReason = "player_payout"
	ReasonTreasuryFee  TransferReason = "treasury_fee"
	ReasonRafflePrize  TransferReason = "raffle_prize"
	ReasonRaffleFee    TransferReason = "raffle_treasury"
)

// Transfer is an instruction for the value-transfer collaborator.
type Transfer struct {
	To     string         `json:"to"`
	Denom  string         `json:"denom"`
	Amount sdkmath.Int    `json:"amount"`
	Reason TransferReason `json:"reason"`
}

// NftTransfer is an instruction for the NFT-custody collaborator. It is not
// final until acknowledged.
type NftTransfer struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// Receipt is what a committed action hands back to the dispatch layer.
type Receipt struct {
	ActionID     string        `json:"action_id"`
	Action       string        `json:"action"`
	Transfers    []Transfer    `json:"transfers,omitempty"`
	NftTransfers []NftTransfer `json:"nft_transfers,omitempty"`
	Pending      bool          `json:"pending"`
}

// Outgoing sums every value transfer on the receipt.
func (r Receipt) Outgoing() (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, t := range r.Transfers {
		var err error
		if total, err = Add(total, t.Amount); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}

// NftInstructions returns a copy of r carrying only its NFT transfers.
func (r Receipt) NftInstructions() Receipt {
	r.Transfers = nil
	return r
}

// ValueInstructions returns a copy of r carrying only its value transfers.
func (r Receipt) ValueInstructions() Receipt {
	r.NftTransfers = nil
	return r
}

// Snapshot captures every entity so a provisional action can be undone.
type Snapshot struct {
	Instantiated  bool                  `json:"instantiated"`
	Config        GameConfig            `json:"config"`
	Round         RoundState            `json:"round"`
	Pots          Pots                  `json:"pots"`
	Allocations   []PlayerAllocations   `json:"allocations"`
	Reallocations map[string]uint64     `json:"reallocations"`
	FirstBidders  map[PotID]FirstBidder `json:"first_bidders"`
	FeePool       sdkmath.Int           `json:"fee_pool"`
	Raffle        Raffle                `json:"raffle"`
	Custody       sdkmath.Int           `json:"custody"`
	Residual      sdkmath.Int           `json:"residual"`
}

// PendingAction is a committed action whose NFT transfers await acknowledgement.
type PendingAction struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	Outstanding map[string]bool `json:"outstanding"`
	Before      Snapshot        `json:"before"`
	// Receipt is held back from execution until every NFT is delivered.
	Receipt   Receipt   `json:"receipt"`
	CreatedAt time.Time `json:"created_at"`
}

// Conservation is the custody report checked after every action.
type Conservation struct {
	Pots     sdkmath.Int `json:"pots"`
	FeePool  sdkmath.Int `json:"fee_pool"`
	Raffle   sdkmath.Int `json:"raffle"`
	Residual sdkmath.Int `json:"residual"`
	Custody  sdkmath.Int `json:"custody"`
}

// Balanced reports whether the tracked entities account for the full custody.
func (c Conservation) Balanced() bool {
	sum, err := Sum(c.Pots, c.FeePool, c.Raffle, c.Residual)
	return err == nil && sum.Equal(OrZero(c.Custody))
}
