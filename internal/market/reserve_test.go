package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/elys-network/allocator/internal/vault"
)

var testCurve = Curve{OptimalUtilizationPct: 80, MinBorrowRatePct: 0, OptimalBorrowRatePct: 8, MaxBorrowRatePct: 50}

func TestCurve_Validate(t *testing.T) {
	assert.NoError(t, testCurve.Validate())
	assert.ErrorIs(t, Curve{OptimalUtilizationPct: 101}.Validate(), ErrInvalidCurve)
	assert.ErrorIs(t, Curve{MinBorrowRatePct: 9, OptimalBorrowRatePct: 8, MaxBorrowRatePct: 50}.Validate(), ErrInvalidCurve)
}

func TestReserve_UtilizationRate(t *testing.T) {
	empty := Reserve{}
	u, err := empty.UtilizationRate()
	require.NoError(t, err)
	assert.True(t, u.IsZero())

	r := Reserve{AvailableLiquidity: 60, BorrowedLiquidity: 40}
	u, err = r.UtilizationRate()
	require.NoError(t, err)
	assert.True(t, u.Equal(rate.FromPercent(40)))
}

func TestReserve_BorrowRateKink(t *testing.T) {
	tests := []struct {
		name     string
		borrowed uint64
		want     uint8
	}{
		{"idle", 0, 0},
		{"half way to optimal", 40, 4},
		{"at optimal", 80, 8},
		{"half way past optimal", 90, 29},
		{"fully utilized", 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reserve{AvailableLiquidity: 100 - tt.borrowed, BorrowedLiquidity: tt.borrowed, Curve: testCurve}
			got, err := r.BorrowRate()
			require.NoError(t, err)
			assert.True(t, got.Equal(rate.FromPercent(tt.want)), "got %s", got)
		})
	}
}

func TestReserve_BorrowRateFullOptimal(t *testing.T) {
	r := Reserve{
		BorrowedLiquidity: 100,
		Curve:             Curve{OptimalUtilizationPct: 100, OptimalBorrowRatePct: 20, MaxBorrowRatePct: 30},
	}
	got, err := r.BorrowRate()
	require.NoError(t, err)
	assert.True(t, got.Equal(rate.FromPercent(20)))
}

func TestReserve_ProjectWithDeposit(t *testing.T) {
	r := Reserve{AvailableLiquidity: 20, BorrowedLiquidity: 80, Curve: testCurve}

	view, err := r.ProjectWithDeposit(100)
	require.NoError(t, err)

	u, err := view.UtilizationRate()
	require.NoError(t, err)
	assert.True(t, u.Equal(rate.FromPercent(40)))

	b, err := view.BorrowRate()
	require.NoError(t, err)
	assert.True(t, b.Equal(rate.FromPercent(4)))

	assert.Equal(t, uint64(20), r.AvailableLiquidity, "projection must not mutate the reserve")

	_, err = Reserve{AvailableLiquidity: ^uint64(0)}.ProjectWithDeposit(1)
	assert.ErrorIs(t, err, utils.ErrOverflow)
}

func TestReserve_ConversionsNeverManufactureValue(t *testing.T) {
	reserves := []Reserve{
		{},
		{AvailableLiquidity: 1_234, ShareSupply: 1_000},
		{AvailableLiquidity: 7, BorrowedLiquidity: 993, ShareSupply: 997},
		{AvailableLiquidity: 1_000, ShareSupply: 3_333},
	}

	for _, r := range reserves {
		for amount := uint64(0); amount <= 2_000; amount++ {
			shares, err := r.ReserveToShares(amount)
			require.NoError(t, err)
			back, err := r.SharesToReserve(shares)
			require.NoError(t, err)
			require.LessOrEqual(t, back, amount, "reserve %+v amount %d", r, amount)
		}
	}
}

func TestReserve_Accrue(t *testing.T) {
	r := Reserve{BorrowedLiquidity: 1_000_000_000, ShareSupply: 1_000_000_000, Curve: testCurve}

	require.NoError(t, r.Accrue(vault.TicksPerYear/100))
	// Fully utilized at 50% a year, for a hundredth of a year.
	assert.Equal(t, uint64(1_005_000_000), r.BorrowedLiquidity)
	assert.Equal(t, vault.TicksPerYear/100, r.LastUpdateTick)

	value, err := r.SharesToReserve(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_005), value)

	assert.ErrorIs(t, r.Accrue(0), utils.ErrMath)
}

func TestReserve_SupplyWithdraw(t *testing.T) {
	r := Reserve{AvailableLiquidity: 5_000, BorrowedLiquidity: 5_000, ShareSupply: 8_000}

	shares, err := r.supply(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), shares)
	assert.Equal(t, uint64(6_000), r.AvailableLiquidity)
	assert.Equal(t, uint64(8_800), r.ShareSupply)

	_, err = r.withdraw(8_800)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, uint64(8_800), r.ShareSupply)

	out, err := r.withdraw(400)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), out)
}
