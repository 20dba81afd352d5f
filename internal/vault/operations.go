/*

This file contains the vault's accounting operations: depositor deposits and withdrawals,
committing a new target allocation, and consolidating refreshed provider values into the
total valuation with fee accrual. Each operation computes everything first and mutates
the vault only once nothing can fail.

*/

package vault

import (
	"fmt"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/utils"
)

// ReserveToLP converts a reserve amount into claim tokens at the vault's current ratio.
// An empty vault mints one claim token per reserve token.
func ReserveToLP(amount, lpSupply, vaultValue uint64) (uint64, error) {
	if lpSupply == 0 || vaultValue == 0 {
		return amount, nil
	}
	return utils.MulDiv(amount, lpSupply, vaultValue)
}

// LPToReserve converts claim tokens into their reserve value.
func LPToReserve(lpAmount, lpSupply, vaultValue uint64) (uint64, error) {
	if lpSupply == 0 {
		return 0, fmt.Errorf("%w: no claim tokens outstanding", utils.ErrMath)
	}
	return utils.MulDiv(lpAmount, vaultValue, lpSupply)
}

// Deposit accounts for a depositor adding amount reserve tokens and returns the claim
// tokens to mint. It is rejected without any change when it would exceed the deposit cap.
func (v *Vault) Deposit(amount, lpSupply, tick uint64) (uint64, error) {
	if err := v.requireNotHalted(Flags{HaltDepositsWithdraws: true}); err != nil {
		return 0, err
	}
	if err := v.Value.RequireFresh(tick); err != nil {
		return 0, err
	}

	lpToMint, err := ReserveToLP(amount, lpSupply, v.Value.Value)
	if err != nil {
		return 0, err
	}

	total, err := utils.CheckedAdd(v.Value.Value, amount)
	if err != nil {
		return 0, err
	}
	if total > v.Config.DepositCap {
		return 0, fmt.Errorf("%w: %d > %d", ErrDepositCap, total, v.Config.DepositCap)
	}

	v.Value.Value = total

	engineLogger().Debug().
		Uint64("amount", amount).
		Uint64("lpToMint", lpToMint).
		Uint64("vaultValue", total).
		Msg("Deposit accounted")
	return lpToMint, nil
}

// Withdraw accounts for a depositor burning lpAmount claim tokens and returns the
// reserve tokens owed. Only reserve held idle by the vault can be paid out; a larger
// withdrawal is rejected without any change and has to wait for a reconcile to redeem.
func (v *Vault) Withdraw(lpAmount, lpSupply, idleReserve, tick uint64) (uint64, error) {
	if err := v.requireNotHalted(Flags{HaltDepositsWithdraws: true}); err != nil {
		return 0, err
	}
	if err := v.Value.RequireFresh(tick); err != nil {
		return 0, err
	}

	reserveOut, err := LPToReserve(lpAmount, lpSupply, v.Value.Value)
	if err != nil {
		return 0, err
	}
	if reserveOut > idleReserve {
		return 0, fmt.Errorf("%w: need %d, idle %d", ErrInsufficientReserve, reserveOut, idleReserve)
	}
	remaining, err := utils.CheckedSub(v.Value.Value, reserveOut)
	if err != nil {
		return 0, err
	}

	v.Value.Value = remaining

	engineLogger().Debug().
		Uint64("lpAmount", lpAmount).
		Uint64("reserveOut", reserveOut).
		Uint64("vaultValue", remaining).
		Msg("Withdrawal accounted")
	return reserveOut, nil
}

// Rebalance commits a proposed weight vector as the new target allocation. Targets are
// the floored share of the current vault value; any rounding remainder stays in reserve.
func (v *Vault) Rebalance(proposed provider.Container[rate.Rate], tick uint64) error {
	if err := v.Value.RequireFresh(tick); err != nil {
		return err
	}
	if err := VerifyWeights(proposed, v.Config.AllocationCapPct); err != nil {
		return err
	}

	value := v.Value.Value
	targets, err := provider.TryMap(proposed, func(_ provider.Provider, w rate.Rate) (uint64, error) {
		return w.MulFloor(value)
	})
	if err != nil {
		return err
	}

	v.TargetAllocations = AllocationsFromContainer(targets, tick)

	engineLogger().Info().
		Uint64("tick", tick).
		Uint64("vaultValue", value).
		Interface("targets", targets).
		Msg("Target allocations committed")
	return nil
}

// FeeAccrual is the outcome of a consolidated refresh.
type FeeAccrual struct {
	Value      uint64 `json:"value"`       // New total vault value.
	Fee        uint64 `json:"fee"`         // Accrued fee in reserve tokens.
	FeeLP      uint64 `json:"fee_lp"`      // Claim tokens to mint for the fee.
	PrimaryLP  uint64 `json:"primary_lp"`  // Share of FeeLP for the fee receiver.
	ReferralLP uint64 `json:"referral_lp"` // Share of FeeLP for the referral fee receiver.
}

// ConsolidateRefresh folds every provider's fresh actual allocation and the reserve held
// by the vault into the total value, accruing fees against the growth since the previous
// consolidation. All providers must have been refreshed in the current window.
func (v *Vault) ConsolidateRefresh(reserveBalance, lpSupply, tick uint64) (FeeAccrual, error) {
	if err := v.RequireRefreshesAllowed(); err != nil {
		return FeeAccrual{}, err
	}
	if err := v.ActualAllocations.RequireFresh(tick); err != nil {
		return FeeAccrual{}, err
	}

	deployed, err := v.ActualAllocations.Total()
	if err != nil {
		return FeeAccrual{}, err
	}
	newValue, err := utils.CheckedAdd(reserveBalance, deployed)
	if err != nil {
		return FeeAccrual{}, err
	}

	fee, err := v.CalculateFees(newValue, tick)
	if err != nil {
		return FeeAccrual{}, err
	}

	base, err := utils.CheckedSub(newValue, fee)
	if err != nil {
		return FeeAccrual{}, err
	}
	feeLP, err := ReserveToLP(fee, lpSupply, base)
	if err != nil {
		return FeeAccrual{}, err
	}
	if lpSupply == 0 {
		// No depositors yet: nothing to dilute.
		feeLP = 0
	}
	primaryLP, referralLP, err := v.FeeSplit(feeLP)
	if err != nil {
		return FeeAccrual{}, err
	}

	v.Value.Update(newValue, tick)

	engineLogger().Info().
		Uint64("tick", tick).
		Uint64("vaultValue", newValue).
		Uint64("fee", fee).
		Uint64("feeLP", feeLP).
		Msg("Vault value consolidated")

	return FeeAccrual{
		Value:      newValue,
		Fee:        fee,
		FeeLP:      feeLP,
		PrimaryLP:  primaryLP,
		ReferralLP: referralLP,
	}, nil
}
