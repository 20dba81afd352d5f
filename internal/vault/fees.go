package vault

import (
	"fmt"

	"github.com/elys-network/allocator/internal/utils"
)

// TicksPerYear is the management fee period: 2.5 ticks per second over 365 days.
const TicksPerYear uint64 = 78_840_000

// CalculateFees returns the carry fee on value growth since the last accrual plus the
// time-proportional management fee on newValue.
func (v *Vault) CalculateFees(newValue, tick uint64) (uint64, error) {
	growth := utils.SaturatingSub(newValue, v.Value.Value)

	elapsed, err := v.Value.LastUpdate.TicksElapsed(tick)
	if err != nil {
		return 0, err
	}

	carry, err := utils.MulDiv(growth, uint64(v.Config.FeeCarryBps), MaxBps)
	if err != nil {
		return 0, fmt.Errorf("carry fee: %w", err)
	}

	mgmt, err := utils.MulDivInt(MaxBps*TicksPerYear, newValue, uint64(v.Config.FeeMgmtBps), elapsed)
	if err != nil {
		return 0, fmt.Errorf("management fee: %w", err)
	}

	engineLogger().Debug().
		Uint64("ticksElapsed", elapsed).
		Uint64("newValue", newValue).
		Uint64("oldValue", v.Value.Value).
		Uint64("carryFee", carry).
		Uint64("mgmtFee", mgmt).
		Msg("Fees calculated")

	total, err := utils.CheckedAdd(carry, mgmt)
	if err != nil {
		return 0, fmt.Errorf("total fee: %w", err)
	}
	return total, nil
}

// FeeSplit divides a fee between the fee receiver and the referrer.
func (v *Vault) FeeSplit(fee uint64) (primary, referral uint64, err error) {
	referral, err = utils.MulDiv(fee, uint64(v.Config.ReferralFeePct), 100)
	if err != nil {
		return 0, 0, err
	}
	return fee - referral, referral, nil
}
