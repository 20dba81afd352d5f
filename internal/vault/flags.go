package vault

import (
	"fmt"
	"strings"
)

const (
	bitHaltReconciles uint32 = 1 << iota
	bitHaltRefreshes
	bitHaltDepositsWithdraws

	allFlagBits = bitHaltReconciles | bitHaltRefreshes | bitHaltDepositsWithdraws
)

// Flags are the independent halt switches of a vault.
type Flags struct {
	HaltReconciles        bool `json:"halt_reconciles"`
	HaltRefreshes         bool `json:"halt_refreshes"`
	HaltDepositsWithdraws bool `json:"halt_deposits_withdraws"`
}

// HaltAll is the union of every halt flag.
var HaltAll = Flags{HaltReconciles: true, HaltRefreshes: true, HaltDepositsWithdraws: true}

func (f Flags) Union(o Flags) Flags {
	return Flags{
		HaltReconciles:        f.HaltReconciles || o.HaltReconciles,
		HaltRefreshes:         f.HaltRefreshes || o.HaltRefreshes,
		HaltDepositsWithdraws: f.HaltDepositsWithdraws || o.HaltDepositsWithdraws,
	}
}

// Contains reports whether every flag set in o is also set in f.
func (f Flags) Contains(o Flags) bool {
	return f.Bits()&o.Bits() == o.Bits()
}

func (f Flags) IsEmpty() bool {
	return f.Bits() == 0
}

// Bits is the persisted form of the flags.
func (f Flags) Bits() uint32 {
	var bits uint32
	if f.HaltReconciles {
		bits |= bitHaltReconciles
	}
	if f.HaltRefreshes {
		bits |= bitHaltRefreshes
	}
	if f.HaltDepositsWithdraws {
		bits |= bitHaltDepositsWithdraws
	}
	return bits
}

// FlagsFromBits rejects any bit outside the known flags.
func FlagsFromBits(bits uint32) (Flags, error) {
	if bits&^allFlagBits != 0 {
		return Flags{}, fmt.Errorf("%w: %#x", ErrInvalidVaultFlags, bits)
	}
	return Flags{
		HaltReconciles:        bits&bitHaltReconciles != 0,
		HaltRefreshes:         bits&bitHaltRefreshes != 0,
		HaltDepositsWithdraws: bits&bitHaltDepositsWithdraws != 0,
	}, nil
}

func (f Flags) String() string {
	var parts []string
	if f.HaltReconciles {
		parts = append(parts, "halt_reconciles")
	}
	if f.HaltRefreshes {
		parts = append(parts, "halt_refreshes")
	}
	if f.HaltDepositsWithdraws {
		parts = append(parts, "halt_deposits_withdraws")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
