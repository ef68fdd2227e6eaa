package pots

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
)

// Rule is the fixed winning condition attached to a pot id.
type Rule uint8

const (
	RuleLowestUnique Rule = iota + 1
	RuleEven
	RuleMedianUnique
	RuleOdd
	RuleHighestUnique
)

// rulesByPot maps pot ids to their rule; index 0 is pot 1.
var rulesByPot = [PotCount]Rule{
	RuleLowestUnique,
	RuleEven,
	RuleMedianUnique,
	RuleOdd,
	RuleHighestUnique,
}

// RuleFor returns the rule governing pot id.
func RuleFor(id PotID) Rule { return rulesByPot[id.Index()] }

func (r Rule) String() string {
	switch r {
	case RuleLowestUnique:
		return "lowest"
	case RuleEven:
		return "even"
	case RuleMedianUnique:
		return "median"
	case RuleOdd:
		return "odd"
	case RuleHighestUnique:
		return "highest"
	default:
		return fmt.Sprintf("rule(%d)", uint8(r))
	}
}

type ruleFunc func(v sdkmath.Int, sorted []sdkmath.Int, mode MedianMode) bool

var ruleFuncs = map[Rule]ruleFunc{
	RuleLowestUnique: func(v sdkmath.Int, sorted []sdkmath.Int, _ MedianMode) bool {
		return v.Equal(sorted[0]) && occurrences(sorted, v) == 1
	},
	RuleEven: func(v sdkmath.Int, _ []sdkmath.Int, _ MedianMode) bool {
		return isEven(v)
	},
	RuleMedianUnique: isMedian,
	RuleOdd: func(v sdkmath.Int, _ []sdkmath.Int, _ MedianMode) bool {
		return !isEven(v)
	},
	RuleHighestUnique: func(v sdkmath.Int, sorted []sdkmath.Int, _ MedianMode) bool {
		return v.Equal(sorted[len(sorted)-1]) && occurrences(sorted, v) == 1
	},
}

// Wins evaluates the rule for value v against all pot values.
func (r Rule) Wins(v sdkmath.Int, all []sdkmath.Int, mode MedianMode) bool {
	fn, ok := ruleFuncs[r]
	if !ok || len(all) == 0 {
		return false
	}
	return fn(OrZero(v), sortedCopy(all), mode)
}

// WinningPots returns the pots whose current amount satisfies their rule, in
// ascending id order. Any subset, including none or all five, may win.
func WinningPots(p Pots, mode MedianMode) []PotID {
	values := make([]sdkmath.Int, PotCount)
	for i := range p {
		values[i] = OrZero(p[i])
	}
	sorted := sortedCopy(values)

	var winners []PotID
	for _, id := range AllPotIDs() {
		if ruleFuncs[RuleFor(id)](values[id.Index()], sorted, mode) {
			winners = append(winners, id)
		}
	}
	return winners
}

// IsWinning reports whether id is among the winning pots.
func IsWinning(winners []PotID, id PotID) bool {
	for _, w := range winners {
		if w == id {
			return true
		}
	}
	return false
}

func isMedian(v sdkmath.Int, sorted []sdkmath.Int, mode MedianMode) bool {
	mid := len(sorted) / 2
	var hit bool
	if len(sorted)%2 == 1 {
		hit = v.Equal(sorted[mid])
	} else {
		hit = sorted[mid-1].LTE(v) && v.LTE(sorted[mid])
	}
	if !hit {
		return false
	}
	if mode == MedianAny {
		return true
	}
	return occurrences(sorted, v) == 1
}

func isEven(v sdkmath.Int) bool {
	return v.BigInt().Bit(0) == 0
}

func occurrences(values []sdkmath.Int, v sdkmath.Int) int {
	n := 0
	for _, x := range values {
		if x.Equal(v) {
			n++
		}
	}
	return n
}

func sortedCopy(values []sdkmath.Int) []sdkmath.Int {
	out := make([]sdkmath.Int, len(values))
	for i, v := range values {
		out[i] = OrZero(v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LT(out[j]) })
	return out
}
