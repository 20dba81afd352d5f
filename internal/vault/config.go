package vault

import (
	"fmt"
	"strings"

	"github.com/elys-network/allocator/internal/provider"
)

const (
	// MaxBps is 100% expressed in basis points.
	MaxBps uint64 = 10_000
	// MaxReferralFeePct caps the share of fees routed to a referrer.
	MaxReferralFeePct = 50
	// MaxAllocationCapPct is the exclusive upper bound of the allocation cap.
	MaxAllocationCapPct = 100
)

// MinAllocationCapPct is the smallest cap that still lets weights sum to 100%
// across every provider.
const MinAllocationCapPct = (100 + provider.Count - 1) / provider.Count

// RebalanceMode selects how target weights reach the vault.
type RebalanceMode uint8

const (
	RebalanceCalculator RebalanceMode = iota
	RebalanceProofChecker
)

var rebalanceModeNames = []string{"calculator", "proof-checker"}

func (m RebalanceMode) Valid() bool { return int(m) < len(rebalanceModeNames) }

func (m RebalanceMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("rebalance_mode(%d)", uint8(m))
	}
	return rebalanceModeNames[m]
}

func (m RebalanceMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *RebalanceMode) UnmarshalText(text []byte) error {
	for i, name := range rebalanceModeNames {
		if strings.EqualFold(name, string(text)) {
			*m = RebalanceMode(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown rebalance mode %q", ErrInvalidConfig, text)
}

// StrategyType names the external strategy expected to propose weights.
type StrategyType uint8

const (
	StrategyMaxYield StrategyType = iota
	StrategyEqualAllocation
)

var strategyTypeNames = []string{"max-yield", "equal-allocation"}

func (s StrategyType) Valid() bool { return int(s) < len(strategyTypeNames) }

func (s StrategyType) String() string {
	if !s.Valid() {
		return fmt.Sprintf("strategy_type(%d)", uint8(s))
	}
	return strategyTypeNames[s]
}

func (s StrategyType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StrategyType) UnmarshalText(text []byte) error {
	for i, name := range strategyTypeNames {
		if strings.EqualFold(name, string(text)) {
			*s = StrategyType(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown strategy type %q", ErrInvalidConfig, text)
}

// ConfigArg is the configuration payload accepted at vault creation.
type ConfigArg struct {
	DepositCap       uint64        `json:"deposit_cap" yaml:"deposit_cap"`             // Maximum total reserve value the vault accepts.
	FeeCarryBps      uint32        `json:"fee_carry_bps" yaml:"fee_carry_bps"`         // Performance fee on value growth.
	FeeMgmtBps       uint32        `json:"fee_mgmt_bps" yaml:"fee_mgmt_bps"`           // Yearly management fee on total value.
	ReferralFeePct   uint8         `json:"referral_fee_pct" yaml:"referral_fee_pct"`   // Percent of fees routed to the referrer.
	AllocationCapPct uint8         `json:"allocation_cap_pct" yaml:"allocation_cap_pct"` // Maximum weight of a single provider.
	RebalanceMode    RebalanceMode `json:"rebalance_mode" yaml:"rebalance_mode"`
	StrategyType     StrategyType  `json:"strategy_type" yaml:"strategy_type"`
}

// Config is a validated ConfigArg. It only changes through Vault.Reconfigure.
type Config struct {
	DepositCap       uint64        `json:"deposit_cap"`
	FeeCarryBps      uint32        `json:"fee_carry_bps"`
	FeeMgmtBps       uint32        `json:"fee_mgmt_bps"`
	ReferralFeePct   uint8         `json:"referral_fee_pct"`
	AllocationCapPct uint8         `json:"allocation_cap_pct"`
	RebalanceMode    RebalanceMode `json:"rebalance_mode"`
	StrategyType     StrategyType  `json:"strategy_type"`
}

// NewConfig validates a configuration payload.
func NewConfig(arg ConfigArg) (Config, error) {
	if uint64(arg.FeeCarryBps) > MaxBps {
		return Config{}, fmt.Errorf("%w: carry fee %d bps", ErrInvalidFeeConfig, arg.FeeCarryBps)
	}
	if uint64(arg.FeeMgmtBps) > MaxBps {
		return Config{}, fmt.Errorf("%w: management fee %d bps", ErrInvalidFeeConfig, arg.FeeMgmtBps)
	}
	if arg.ReferralFeePct > MaxReferralFeePct {
		return Config{}, fmt.Errorf("%w: %d%%", ErrInvalidReferralFeeConfig, arg.ReferralFeePct)
	}
	if arg.AllocationCapPct < MinAllocationCapPct || arg.AllocationCapPct >= MaxAllocationCapPct {
		return Config{}, fmt.Errorf("%w: %d%% not in [%d, %d)",
			ErrInvalidAllocationCap, arg.AllocationCapPct, MinAllocationCapPct, MaxAllocationCapPct)
	}
	if !arg.RebalanceMode.Valid() {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, arg.RebalanceMode)
	}
	if !arg.StrategyType.Valid() {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, arg.StrategyType)
	}
	return Config(arg), nil
}

// Arg converts the config back into a payload.
func (c Config) Arg() ConfigArg {
	return ConfigArg(c)
}
