package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// NEP11Ownership counts a holder's tokens in NEP-11 collections by calling
// balanceOf on the collection contract. It backs the engine's holder discount.
type NEP11Ownership struct {
	client *Client
}

// NewNEP11Ownership wraps client.
func NewNEP11Ownership(client *Client) *NEP11Ownership {
	return &NEP11Ownership{client: client}
}

// TokenCount returns how many tokens of collection owner holds. collection is
// the contract script hash, with or without a 0x prefix; owner is an N3 address.
func (n *NEP11Ownership) TokenCount(ctx context.Context, collection, owner string) (uint64, error) {
	contract, err := util.Uint160DecodeStringLE(strings.TrimPrefix(strings.TrimSpace(collection), "0x"))
	if err != nil {
		return 0, fmt.Errorf("collection %q: %w", collection, err)
	}
	holder, err := address.StringToUint160(strings.TrimSpace(owner))
	if err != nil {
		// Identifiers that are not N3 addresses cannot hold tokens.
		return 0, nil
	}

	stack, err := n.client.InvokeFunction(ctx, "0x"+contract.StringLE(), "balanceOf", []ContractParam{
		{Type: "Hash160", Value: "0x" + holder.StringLE()},
	})
	if err != nil {
		return 0, err
	}
	item := stack.Get("0")
	if !item.Exists() || item.Get("type").String() != "Integer" {
		return 0, fmt.Errorf("balanceOf on %s: unexpected result %s", collection, stack.Raw)
	}
	count, err := strconv.ParseUint(item.Get("value").String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balanceOf on %s: %w", collection, err)
	}
	return count, nil
}
