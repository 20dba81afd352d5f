/*

This file contains the simulated lending market adapter. An Adapter drives one provider's
Reserve in process and settles against the vault's token accounts, which is enough to run
the keeper end to end without a chain connection. A networked adapter only has to satisfy
the same three interfaces.

*/

package market

import (
	"context"
	"fmt"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/vault"
)

// Adapter implements Market, Refresher and RateView for one provider.
type Adapter struct {
	provider   provider.Provider
	reserveKey vault.Pubkey
	reserve    *Reserve
	accounts   *VaultAccounts
}

var (
	_ Market    = (*Adapter)(nil)
	_ Refresher = (*Adapter)(nil)
	_ RateView  = (*Adapter)(nil)
)

// DefaultCurve returns the borrow rate curve each simulated provider starts with.
func DefaultCurve(p provider.Provider) Curve {
	switch p {
	case provider.Solend:
		return Curve{OptimalUtilizationPct: 80, MinBorrowRatePct: 0, OptimalBorrowRatePct: 8, MaxBorrowRatePct: 50}
	case provider.Port:
		return Curve{OptimalUtilizationPct: 80, MinBorrowRatePct: 0, OptimalBorrowRatePct: 10, MaxBorrowRatePct: 100}
	default:
		return Curve{OptimalUtilizationPct: 85, MinBorrowRatePct: 1, OptimalBorrowRatePct: 12, MaxBorrowRatePct: 80}
	}
}

// NewAdapter binds provider p's reserve, identified by reserveKey, to the vault accounts.
func NewAdapter(p provider.Provider, reserveKey vault.Pubkey, reserve *Reserve, accounts *VaultAccounts) (*Adapter, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", provider.ErrUnknownProvider, uint8(p))
	}
	if reserve == nil || accounts == nil {
		return nil, fmt.Errorf("%s adapter requires a reserve and vault accounts", p)
	}
	if err := reserve.Curve.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{provider: p, reserveKey: reserveKey, reserve: reserve, accounts: accounts}, nil
}

func NewSolend(reserveKey vault.Pubkey, reserve *Reserve, accounts *VaultAccounts) (*Adapter, error) {
	return NewAdapter(provider.Solend, reserveKey, reserve, accounts)
}

func NewPort(reserveKey vault.Pubkey, reserve *Reserve, accounts *VaultAccounts) (*Adapter, error) {
	return NewAdapter(provider.Port, reserveKey, reserve, accounts)
}

func NewJet(reserveKey vault.Pubkey, reserve *Reserve, accounts *VaultAccounts) (*Adapter, error) {
	return NewAdapter(provider.Jet, reserveKey, reserve, accounts)
}

// NewSimulated builds one adapter per provider, each over its own reserve, all sharing
// the vault accounts. Reserve keys come from the vault record.
func NewSimulated(v *vault.Vault, reserves provider.Container[*Reserve], accounts *VaultAccounts) (provider.Container[*Adapter], error) {
	return provider.TryMap(reserves, func(p provider.Provider, r *Reserve) (*Adapter, error) {
		return NewAdapter(p, v.ProviderAccounts.Get(p).Reserve, r, accounts)
	})
}

func (a *Adapter) Provider() provider.Provider { return a.provider }

// Reserve returns a copy of the current reserve state.
func (a *Adapter) Reserve() Reserve { return *a.reserve }

func (a *Adapter) providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrProvider, a.provider, op, err)
}

func (a *Adapter) Deposit(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return a.providerErr("deposit", err)
	}

	reserveToken, err := debit(a.accounts.ReserveToken, amount)
	if err != nil {
		return a.providerErr("deposit", err)
	}
	shares, err := a.reserve.supply(amount)
	if err != nil {
		return a.providerErr("deposit", err)
	}
	a.accounts.ReserveToken = reserveToken
	a.accounts.ShareTokens.Set(a.provider, credit(a.accounts.ShareTokens.Get(a.provider), shares))

	adapterLogger().Debug().
		Str("provider", a.provider.String()).
		Uint64("amount", amount).
		Uint64("sharesMinted", shares).
		Msg("Deposited into reserve")
	return nil
}

// Redeem withdraws at most amount reserve tokens by burning the shares worth that amount,
// rounded down.
func (a *Adapter) Redeem(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return a.providerErr("redeem", err)
	}

	shares, err := a.reserve.ReserveToShares(amount)
	if err != nil {
		return a.providerErr("redeem", err)
	}
	shareToken, err := debit(a.accounts.ShareTokens.Get(a.provider), shares)
	if err != nil {
		return a.providerErr("redeem", err)
	}
	out, err := a.reserve.withdraw(shares)
	if err != nil {
		return a.providerErr("redeem", err)
	}
	a.accounts.ShareTokens.Set(a.provider, shareToken)
	a.accounts.ReserveToken = credit(a.accounts.ReserveToken, out)

	adapterLogger().Debug().
		Str("provider", a.provider.String()).
		Uint64("amount", amount).
		Uint64("sharesBurned", shares).
		Uint64("reserveOut", out).
		Msg("Redeemed from reserve")
	return nil
}

func (a *Adapter) ConvertReserveToShares(amount uint64) (uint64, error) {
	return a.reserve.ReserveToShares(amount)
}

func (a *Adapter) ConvertSharesToReserve(amount uint64) (uint64, error) {
	return a.reserve.SharesToReserve(amount)
}

func (a *Adapter) ReserveBalance() (uint64, error) {
	return a.accounts.ReserveBalance()
}

func (a *Adapter) ShareBalance() (uint64, error) {
	return a.accounts.ShareBalance(a.provider)
}

// UpdateActualAllocation accrues the reserve up to tick, values the vault's shares at the
// resulting exchange rate and stamps the provider's actual allocation.
func (a *Adapter) UpdateActualAllocation(ctx context.Context, v *vault.Vault, tick uint64) error {
	if err := ctx.Err(); err != nil {
		return a.providerErr("refresh", err)
	}
	if recorded := v.ProviderAccounts.Get(a.provider).Reserve; recorded != a.reserveKey {
		return fmt.Errorf("%w: %s reserve %s, vault records %s", ErrAccountMismatch, a.provider, a.reserveKey, recorded)
	}

	if err := a.reserve.Accrue(tick); err != nil {
		return a.providerErr("refresh", err)
	}
	shares, err := a.ShareBalance()
	if err != nil {
		return err
	}
	value, err := a.ConvertSharesToReserve(shares)
	if err != nil {
		return err
	}

	adapterLogger().Debug().
		Str("provider", a.provider.String()).
		Uint64("shares", shares).
		Uint64("value", value).
		Uint64("tick", tick).
		Msg("Refreshed reserve value")
	return v.UpdateActualAllocation(a.provider, value, tick)
}

func (a *Adapter) UtilizationRate() (rate.Rate, error) { return a.reserve.UtilizationRate() }

func (a *Adapter) BorrowRate() (rate.Rate, error) { return a.reserve.BorrowRate() }

func (a *Adapter) ProjectWithDeposit(amount uint64) (RateView, error) {
	return a.reserve.ProjectWithDeposit(amount)
}
