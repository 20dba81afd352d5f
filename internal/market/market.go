/*

This file declares the contracts every provider integration implements. The reconciler
and keeper only ever see these interfaces; adding a provider means adding one
implementation of each, with no change to the engine.

*/

package market

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/vault"
)

var (
	// ErrProvider wraps every failure of a call into an external market.
	ErrProvider = errors.New("provider call failed")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLiquidity = errors.New("reserve has insufficient liquidity")
	ErrAccountMismatch       = errors.New("account does not match the vault record")
	ErrInvalidCurve          = errors.New("borrow rate curve is invalid")
)

// Market moves reserve tokens in and out of one provider's lending market.
// Amounts are reserve-denominated and a zero amount is a successful no-op.
type Market interface {
	Provider() provider.Provider
	Deposit(ctx context.Context, amount uint64) error
	Redeem(ctx context.Context, amount uint64) error
	// Conversions use the market's current exchange rate and always floor.
	ConvertReserveToShares(amount uint64) (uint64, error)
	ConvertSharesToReserve(amount uint64) (uint64, error)
	ReserveBalance() (uint64, error)
	ShareBalance() (uint64, error)
}

// Refresher pulls current market state and re-stamps the provider's actual allocation.
type Refresher interface {
	Provider() provider.Provider
	UpdateActualAllocation(ctx context.Context, v *vault.Vault, tick uint64) error
}

// RateView exposes a market's rates and a non-mutating what-if projection.
type RateView interface {
	UtilizationRate() (rate.Rate, error)
	BorrowRate() (rate.Rate, error)
	ProjectWithDeposit(amount uint64) (RateView, error)
}

func adapterLogger() *zerolog.Logger {
	l := logger.GetForComponent("market_adapter")
	return &l
}
