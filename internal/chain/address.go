// Package chain connects the engine to Neo N3: address validation and
// read-only NEP-11 ownership lookups over JSON-RPC.
package chain

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
)

// NeoAddressValidator accepts base58check N3 addresses.
type NeoAddressValidator struct{}

func (NeoAddressValidator) ValidateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	if _, err := address.StringToUint160(addr); err != nil {
		return fmt.Errorf("invalid neo address %q: %w", addr, err)
	}
	return nil
}

// OpaqueAddressValidator accepts any non-empty identifier.
type OpaqueAddressValidator struct{}

func (OpaqueAddressValidator) ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("empty address")
	}
	return nil
}

// Validator is the address check selected by name in configuration.
type Validator interface {
	ValidateAddress(addr string) error
}

// ValidatorFor maps a configured address format onto a validator.
func ValidatorFor(format string) (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "opaque":
		return OpaqueAddressValidator{}, nil
	case "neo", "n3":
		return NeoAddressValidator{}, nil
	default:
		return nil, fmt.Errorf("unknown address format %q", format)
	}
}
