package market

import (
	"fmt"

	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/elys-network/allocator/internal/vault"
)

// Curve is a kinked borrow rate model. Below the optimal utilization the rate climbs
// linearly from Min to Optimal, above it from Optimal to Max.
type Curve struct {
	OptimalUtilizationPct uint8 `json:"optimal_utilization_pct" yaml:"optimal_utilization_pct"`
	MinBorrowRatePct      uint8 `json:"min_borrow_rate_pct" yaml:"min_borrow_rate_pct"`
	OptimalBorrowRatePct  uint8 `json:"optimal_borrow_rate_pct" yaml:"optimal_borrow_rate_pct"`
	MaxBorrowRatePct      uint8 `json:"max_borrow_rate_pct" yaml:"max_borrow_rate_pct"`
}

func (c Curve) Validate() error {
	if c.OptimalUtilizationPct > 100 {
		return fmt.Errorf("%w: optimal utilization %d%%", ErrInvalidCurve, c.OptimalUtilizationPct)
	}
	if c.MinBorrowRatePct > c.OptimalBorrowRatePct || c.OptimalBorrowRatePct > c.MaxBorrowRatePct {
		return fmt.Errorf("%w: borrow rates %d%% <= %d%% <= %d%% do not hold",
			ErrInvalidCurve, c.MinBorrowRatePct, c.OptimalBorrowRatePct, c.MaxBorrowRatePct)
	}
	return nil
}

// Reserve is a lending reserve: liquidity supplied by lenders, of which some is lent
// out, represented by a supply of share tokens.
type Reserve struct {
	AvailableLiquidity uint64 `json:"available_liquidity"`
	BorrowedLiquidity  uint64 `json:"borrowed_liquidity"`
	ShareSupply        uint64 `json:"share_supply"`
	LastUpdateTick     uint64 `json:"last_update_tick"`
	Curve              Curve  `json:"curve"`
}

// TotalLiquidity is available plus borrowed liquidity.
func (r Reserve) TotalLiquidity() (uint64, error) {
	return utils.CheckedAdd(r.AvailableLiquidity, r.BorrowedLiquidity)
}

// UtilizationRate is borrowed over total liquidity, zero for an empty reserve.
func (r Reserve) UtilizationRate() (rate.Rate, error) {
	total, err := r.TotalLiquidity()
	if err != nil {
		return rate.Rate{}, err
	}
	if total == 0 {
		return rate.Zero(), nil
	}
	return rate.FromFraction(r.BorrowedLiquidity, total)
}

func (r Reserve) BorrowRate() (rate.Rate, error) {
	util, err := r.UtilizationRate()
	if err != nil {
		return rate.Rate{}, err
	}

	c := r.Curve
	optimalUtil := rate.FromPercent(c.OptimalUtilizationPct)
	minRate := rate.FromPercent(c.MinBorrowRatePct)
	optimalRate := rate.FromPercent(c.OptimalBorrowRatePct)
	maxRate := rate.FromPercent(c.MaxBorrowRatePct)

	if util.Cmp(optimalUtil) < 0 {
		return interpolate(util, optimalUtil, minRate, optimalRate)
	}
	if c.OptimalUtilizationPct == 100 {
		return optimalRate, nil
	}

	excess, err := util.TrySub(optimalUtil)
	if err != nil {
		return rate.Rate{}, err
	}
	span, err := rate.One().TrySub(optimalUtil)
	if err != nil {
		return rate.Rate{}, err
	}
	return interpolate(excess, span, optimalRate, maxRate)
}

// interpolate returns from + (to - from) * pos / span.
func interpolate(pos, span, from, to rate.Rate) (rate.Rate, error) {
	normalized, err := pos.TryDiv(span)
	if err != nil {
		return rate.Rate{}, err
	}
	width, err := to.TrySub(from)
	if err != nil {
		return rate.Rate{}, err
	}
	step, err := normalized.TryMul(width)
	if err != nil {
		return rate.Rate{}, err
	}
	return from.TryAdd(step)
}

// ProjectWithDeposit returns the reserve as it would look after amount more liquidity
// were supplied. r itself is not modified.
func (r Reserve) ProjectWithDeposit(amount uint64) (RateView, error) {
	available, err := utils.CheckedAdd(r.AvailableLiquidity, amount)
	if err != nil {
		return nil, err
	}
	projected := r
	projected.AvailableLiquidity = available
	return projected, nil
}

// ReserveToShares converts liquidity into share tokens, flooring. An empty reserve
// issues shares one to one.
func (r Reserve) ReserveToShares(amount uint64) (uint64, error) {
	total, err := r.TotalLiquidity()
	if err != nil {
		return 0, err
	}
	if r.ShareSupply == 0 || total == 0 {
		return amount, nil
	}
	return utils.MulDiv(amount, r.ShareSupply, total)
}

// SharesToReserve converts share tokens into liquidity, flooring.
func (r Reserve) SharesToReserve(shares uint64) (uint64, error) {
	total, err := r.TotalLiquidity()
	if err != nil {
		return 0, err
	}
	if r.ShareSupply == 0 || total == 0 {
		return shares, nil
	}
	return utils.MulDiv(shares, total, r.ShareSupply)
}

// Accrue charges borrow interest from the last update up to tick. Interest grows the
// borrowed liquidity and therefore the value of every share.
func (r *Reserve) Accrue(tick uint64) error {
	elapsed, err := utils.CheckedSub(tick, r.LastUpdateTick)
	if err != nil {
		return fmt.Errorf("reserve updated at tick %d cannot accrue to tick %d: %w", r.LastUpdateTick, tick, err)
	}
	if elapsed == 0 || r.BorrowedLiquidity == 0 {
		r.LastUpdateTick = tick
		return nil
	}

	borrowRate, err := r.BorrowRate()
	if err != nil {
		return err
	}
	yearly, err := borrowRate.MulFloor(r.BorrowedLiquidity)
	if err != nil {
		return err
	}
	interest, err := utils.MulDiv(yearly, elapsed, vault.TicksPerYear)
	if err != nil {
		return err
	}
	borrowed, err := utils.CheckedAdd(r.BorrowedLiquidity, interest)
	if err != nil {
		return err
	}

	r.BorrowedLiquidity = borrowed
	r.LastUpdateTick = tick
	return nil
}

// supply adds liquidity and returns the shares issued for it.
func (r *Reserve) supply(amount uint64) (uint64, error) {
	shares, err := r.ReserveToShares(amount)
	if err != nil {
		return 0, err
	}
	available, err := utils.CheckedAdd(r.AvailableLiquidity, amount)
	if err != nil {
		return 0, err
	}
	supply, err := utils.CheckedAdd(r.ShareSupply, shares)
	if err != nil {
		return 0, err
	}
	r.AvailableLiquidity = available
	r.ShareSupply = supply
	return shares, nil
}

// withdraw burns shares and returns the liquidity paid out for them.
func (r *Reserve) withdraw(shares uint64) (uint64, error) {
	out, err := r.SharesToReserve(shares)
	if err != nil {
		return 0, err
	}
	if out > r.AvailableLiquidity {
		return 0, fmt.Errorf("%w: need %d, available %d", ErrInsufficientLiquidity, out, r.AvailableLiquidity)
	}
	supply, err := utils.CheckedSub(r.ShareSupply, shares)
	if err != nil {
		return 0, err
	}
	r.AvailableLiquidity -= out
	r.ShareSupply = supply
	return out, nil
}
