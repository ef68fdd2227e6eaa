package chain

import (
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

func TestNeoAddressValidator(t *testing.T) {
	valid := address.Uint160ToString(util.Uint160{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	last := "x"
	if valid[len(valid)-1] == 'x' {
		last = "y"
	}
	corrupted := valid[:len(valid)-1] + last

	v := NeoAddressValidator{}
	if err := v.ValidateAddress(valid); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	for _, bad := range []string{"", "   ", "alice", corrupted} {
		if err := v.ValidateAddress(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestValidatorFor(t *testing.T) {
	v, err := ValidatorFor("")
	if err != nil {
		t.Fatalf("default format: %v", err)
	}
	if err := v.ValidateAddress("alice"); err != nil {
		t.Fatalf("opaque validator rejected an identifier: %v", err)
	}
	if err := v.ValidateAddress(" "); err == nil {
		t.Fatal("opaque validator accepted a blank identifier")
	}

	v, err = ValidatorFor("N3")
	if err != nil {
		t.Fatalf("neo format: %v", err)
	}
	if _, ok := v.(NeoAddressValidator); !ok {
		t.Fatalf("unexpected validator %T", v)
	}

	if _, err := ValidatorFor("ethereum"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}
