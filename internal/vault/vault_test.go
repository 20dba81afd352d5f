package vault

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/utils"
)

func validConfigArg() ConfigArg {
	return ConfigArg{
		DepositCap:       1_000_000,
		FeeCarryBps:      2_000,
		FeeMgmtBps:       100,
		ReferralFeePct:   20,
		AllocationCapPct: 60,
		RebalanceMode:    RebalanceCalculator,
		StrategyType:     StrategyMaxYield,
	}
}

func key(b byte) Pubkey {
	var k Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func newTestVault(t *testing.T, arg ConfigArg) *Vault {
	t.Helper()
	v, err := New(Init{
		Owner:          key(1),
		VaultAuthority: key(2),
		AuthoritySeed:  key(3),
		AuthorityBump:  254,
		ProviderAccounts: provider.Of(
			ProviderAccounts{Reserve: key(10), ShareToken: key(20)},
			ProviderAccounts{Reserve: key(11), ShareToken: key(21)},
			ProviderAccounts{Reserve: key(12), ShareToken: key(22)},
		),
		VaultReserveToken:   key(4),
		LPTokenMint:         key(5),
		ReserveTokenMint:    key(6),
		FeeReceiver:         key(7),
		ReferralFeeReceiver: key(8),
		Config:              arg,
	})
	require.NoError(t, err)
	return v
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConfigArg)
		wantErr error
	}{
		{"valid", func(*ConfigArg) {}, nil},
		{"carry at 100%", func(a *ConfigArg) { a.FeeCarryBps = 10_000 }, nil},
		{"carry above 100%", func(a *ConfigArg) { a.FeeCarryBps = 10_001 }, ErrInvalidFeeConfig},
		{"mgmt above 100%", func(a *ConfigArg) { a.FeeMgmtBps = 10_001 }, ErrInvalidFeeConfig},
		{"referral at 50%", func(a *ConfigArg) { a.ReferralFeePct = 50 }, nil},
		{"referral above 50%", func(a *ConfigArg) { a.ReferralFeePct = 51 }, ErrInvalidReferralFeeConfig},
		{"cap at minimum", func(a *ConfigArg) { a.AllocationCapPct = 34 }, nil},
		{"cap below minimum", func(a *ConfigArg) { a.AllocationCapPct = 33 }, ErrInvalidAllocationCap},
		{"cap at 99%", func(a *ConfigArg) { a.AllocationCapPct = 99 }, nil},
		{"cap at 100%", func(a *ConfigArg) { a.AllocationCapPct = 100 }, ErrInvalidAllocationCap},
		{"unknown rebalance mode", func(a *ConfigArg) { a.RebalanceMode = 7 }, ErrInvalidConfig},
		{"unknown strategy", func(a *ConfigArg) { a.StrategyType = 7 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg := validConfigArg()
			tt.mutate(&arg)
			cfg, err := NewConfig(arg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, arg, cfg.Arg())
		})
	}
}

func TestConfigArg_JSONNames(t *testing.T) {
	var arg ConfigArg
	err := json.Unmarshal([]byte(`{
		"deposit_cap": 5,
		"allocation_cap_pct": 40,
		"rebalance_mode": "proof-checker",
		"strategy_type": "equal-allocation"
	}`), &arg)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), arg.DepositCap)
	assert.Equal(t, RebalanceProofChecker, arg.RebalanceMode)
	assert.Equal(t, StrategyEqualAllocation, arg.StrategyType)

	err = json.Unmarshal([]byte(`{"rebalance_mode": "oracle"}`), &arg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReconfigure_RejectsWithoutChange(t *testing.T) {
	v := newTestVault(t, validConfigArg())

	bad := validConfigArg()
	bad.ReferralFeePct = 90
	assert.ErrorIs(t, v.Reconfigure(bad), ErrInvalidReferralFeeConfig)
	assert.Equal(t, uint8(20), v.Config.ReferralFeePct)

	good := validConfigArg()
	good.DepositCap = 42
	require.NoError(t, v.Reconfigure(good))
	assert.Equal(t, uint64(42), v.Config.DepositCap)
}

func TestFlags(t *testing.T) {
	reconciles := Flags{HaltReconciles: true}
	refreshes := Flags{HaltRefreshes: true}
	funds := Flags{HaltDepositsWithdraws: true}

	assert.Equal(t, HaltAll, reconciles.Union(refreshes).Union(funds))
	assert.True(t, HaltAll.Contains(refreshes))
	assert.False(t, reconciles.Contains(HaltAll))
	assert.True(t, Flags{}.IsEmpty())
	assert.Equal(t, "halt_reconciles|halt_refreshes", reconciles.Union(refreshes).String())

	for _, f := range []Flags{{}, reconciles, refreshes, funds, HaltAll} {
		got, err := FlagsFromBits(f.Bits())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := FlagsFromBits(1 << 5)
	assert.ErrorIs(t, err, ErrInvalidVaultFlags)
}

func TestVault_HaltFlags(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(0, 1)

	require.NoError(t, v.SetFlagBits(HaltAll.Bits()))
	assert.ErrorIs(t, v.RequireReconcilesAllowed(), ErrHaltedVault)
	assert.ErrorIs(t, v.RequireRefreshesAllowed(), ErrHaltedVault)
	_, err := v.Deposit(10, 0, 1)
	assert.ErrorIs(t, err, ErrHaltedVault)

	v.SetFlags(Flags{HaltReconciles: true})
	assert.ErrorIs(t, v.RequireReconcilesAllowed(), ErrHaltedVault)
	assert.NoError(t, v.RequireRefreshesAllowed())
	_, err = v.Deposit(10, 0, 1)
	assert.NoError(t, err)

	assert.ErrorIs(t, v.SetFlagBits(0xff), ErrInvalidVaultFlags)
	assert.Equal(t, Flags{HaltReconciles: true}, v.Flags())
}

func TestNew_StartsStale(t *testing.T) {
	v := newTestVault(t, validConfigArg())

	assert.Equal(t, RecordVersion, v.Version)
	assert.ErrorIs(t, v.Value.RequireFresh(0), ErrVaultIsNotRefreshed)
	assert.False(t, v.ActualAllocations.AllFresh(0))
	assert.False(t, v.TargetAllocations.AllFresh(0))

	bad := validConfigArg()
	bad.FeeMgmtBps = 20_000
	_, err := New(Init{Config: bad})
	assert.ErrorIs(t, err, ErrInvalidFeeConfig)
}

func TestVerifyWeights(t *testing.T) {
	pct := func(a, b, c uint8) provider.Container[rate.Rate] {
		return provider.Of(rate.FromPercent(a), rate.FromPercent(b), rate.FromPercent(c))
	}

	tests := []struct {
		name    string
		weights provider.Container[rate.Rate]
		capPct  uint8
		ok      bool
	}{
		{"all in one provider", pct(0, 0, 100), 100, true},
		{"sum above one", pct(2, 59, 40), 100, false},
		{"weight above cap", pct(1, 59, 40), 58, false},
		{"weight at cap", pct(1, 59, 40), 59, true},
		{"underfilled", pct(30, 30, 30), 100, false},
		{"even split", provider.Of(rate.FromBips(3_334), rate.FromBips(3_333), rate.FromBips(3_333)), 34, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyWeights(tt.weights, tt.capPct)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, ErrInvalidProposedWeights, err)
		})
	}
}

func TestVerifyWeights_OverflowIsSameKind(t *testing.T) {
	// Double until the next doubling would leave the 128-bit range.
	w := rate.FromScaled(^uint64(0))
	for {
		next, err := w.TryAdd(w)
		if err != nil {
			break
		}
		w = next
	}
	err := VerifyWeights(provider.Of(w, w, w), 100)
	assert.Equal(t, ErrInvalidProposedWeights, err)
}

func TestWeightsFromBips(t *testing.T) {
	w := WeightsFromBips(provider.Of[uint16](5_000, 2_500, 2_500))
	assert.True(t, w.Get(provider.Solend).Equal(rate.FromPercent(50)))
	assert.NoError(t, VerifyWeights(w, 50))
}

func TestCalculateFees(t *testing.T) {
	arg := validConfigArg()
	arg.FeeCarryBps = 1_000
	arg.FeeMgmtBps = 100
	v := newTestVault(t, arg)

	const base = MaxBps * TicksPerYear
	v.Value.Update(base, 10)

	t.Run("no growth and no elapsed ticks", func(t *testing.T) {
		fee, err := v.CalculateFees(base, 10)
		require.NoError(t, err)
		assert.Zero(t, fee)
	})

	t.Run("loss is not charged carry", func(t *testing.T) {
		fee, err := v.CalculateFees(base/2, 10)
		require.NoError(t, err)
		assert.Zero(t, fee)
	})

	t.Run("carry is linear in growth", func(t *testing.T) {
		one, err := v.CalculateFees(base+10_000, 10)
		require.NoError(t, err)
		two, err := v.CalculateFees(base+20_000, 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000), one)
		assert.Equal(t, 2*one, two)
	})

	t.Run("management is linear in ticks and value", func(t *testing.T) {
		oneTick, err := v.CalculateFees(base, 11)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), oneTick)

		twoTicks, err := v.CalculateFees(base, 12)
		require.NoError(t, err)
		assert.Equal(t, 2*oneTick, twoTicks)

		v2 := newTestVault(t, arg)
		v2.Value.Update(2*base, 10)
		doubleValue, err := v2.CalculateFees(2*base, 11)
		require.NoError(t, err)
		assert.Equal(t, 2*oneTick, doubleValue)
	})

	t.Run("tick behind last update", func(t *testing.T) {
		_, err := v.CalculateFees(base, 9)
		assert.ErrorIs(t, err, utils.ErrMath)
	})
}

func TestFeeSplit(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	primary, referral, err := v.FeeSplit(1_001)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), referral)
	assert.Equal(t, uint64(801), primary)
}

func TestDeposit(t *testing.T) {
	arg := validConfigArg()
	arg.DepositCap = 1_000
	v := newTestVault(t, arg)

	_, err := v.Deposit(100, 0, 0)
	assert.ErrorIs(t, err, ErrVaultIsNotRefreshed)

	v.Value.Update(0, 5)
	lp, err := v.Deposit(400, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), lp, "empty vault mints one to one")

	lp, err = v.Deposit(200, 400, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), lp)
	assert.Equal(t, uint64(600), v.Value.Value)

	before := *v
	_, err = v.Deposit(401, 600, 6)
	assert.ErrorIs(t, err, ErrDepositCap)
	assert.Equal(t, before, *v)

	_, err = v.Deposit(400, 600, 6)
	assert.NoError(t, err, "landing exactly on the cap is allowed")
}

func TestWithdraw(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(1_000, 3)

	out, err := v.Withdraw(250, 500, 1_000, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), out)
	assert.Equal(t, uint64(500), v.Value.Value)

	_, err = v.Withdraw(1, 0, 1_000, 4)
	assert.ErrorIs(t, err, utils.ErrMath)

	_, err = v.Withdraw(1, 1, 1_000, 5)
	assert.ErrorIs(t, err, ErrVaultIsNotRefreshed)
}

func TestWithdraw_LimitedToIdleReserve(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(1_000, 1)
	before := *v

	// 900 of the 1000 is deployed to providers, so only 100 is idle.
	_, err := v.Withdraw(500, 1_000, 100, 1)
	assert.ErrorIs(t, err, ErrInsufficientReserve)
	assert.Equal(t, before, *v)

	out, err := v.Withdraw(100, 1_000, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), out)
	assert.Equal(t, uint64(900), v.Value.Value)
}

func TestFreshness_TickBehindStampIsMathError(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(1_000, 10)

	_, err := v.Deposit(1, 1_000, 9)
	assert.ErrorIs(t, err, utils.ErrMath)
	assert.NotErrorIs(t, err, ErrVaultIsNotRefreshed)

	_, err = v.Withdraw(1, 1_000, 1_000, 9)
	assert.ErrorIs(t, err, utils.ErrMath)
	assert.NotErrorIs(t, err, ErrVaultIsNotRefreshed)
	assert.Equal(t, uint64(1_000), v.Value.Value)

	weights := provider.Of(rate.FromPercent(50), rate.FromPercent(25), rate.FromPercent(25))
	err = v.Rebalance(weights, 9)
	assert.ErrorIs(t, err, utils.ErrMath)
	assert.NotErrorIs(t, err, ErrVaultIsNotRefreshed)
}

func TestEngineLogger_TagsComponent(t *testing.T) {
	prevLogger, prevGlobal := logger.Logger, log.Logger
	t.Cleanup(func() {
		logger.Logger, log.Logger = prevLogger, prevGlobal
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, logger.Setup(logger.Options{Level: "debug", Format: "json", Output: &buf}))

	v := newTestVault(t, validConfigArg())
	v.Value.Update(0, 1)
	_, err := v.Deposit(10, 0, 1)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"component":"vault_engine"`)
	assert.Contains(t, out, "Vault created")
	assert.Contains(t, out, "Deposit accounted")
}

func TestRebalance(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(1_001, 8)

	weights := provider.Of(rate.FromPercent(50), rate.FromPercent(25), rate.FromPercent(25))
	require.NoError(t, v.Rebalance(weights, 9))

	assert.Equal(t, provider.Of[uint64](500, 250, 250), v.TargetAllocations.Values())
	assert.True(t, v.TargetAllocations.AllFresh(9))

	before := v.TargetAllocations
	err := v.Rebalance(provider.Of(rate.FromPercent(70), rate.FromPercent(15), rate.FromPercent(15)), 9)
	assert.Equal(t, ErrInvalidProposedWeights, err)
	assert.Equal(t, before, v.TargetAllocations)

	assert.ErrorIs(t, v.Rebalance(weights, 10), ErrVaultIsNotRefreshed)
}

func TestConsolidateRefresh(t *testing.T) {
	arg := validConfigArg()
	arg.FeeCarryBps = 1_000
	arg.FeeMgmtBps = 0
	arg.ReferralFeePct = 50
	v := newTestVault(t, arg)
	v.Value.Update(1_000, 10)

	_, err := v.ConsolidateRefresh(100, 1_000, 11)
	assert.ErrorIs(t, err, ErrVaultIsNotRefreshed)

	for p := range provider.Providers() {
		require.NoError(t, v.UpdateActualAllocation(p, 400, 11))
	}

	accrual, err := v.ConsolidateRefresh(100, 1_000, 11)
	require.NoError(t, err)

	// 100 held + 1200 deployed, 300 of growth at 10% carry.
	assert.Equal(t, uint64(1_300), accrual.Value)
	assert.Equal(t, uint64(30), accrual.Fee)
	assert.Equal(t, uint64(23), accrual.FeeLP)
	assert.Equal(t, accrual.FeeLP, accrual.PrimaryLP+accrual.ReferralLP)
	assert.Equal(t, uint64(11), accrual.ReferralLP)
	assert.Equal(t, uint64(1_300), v.Value.Value)
	assert.True(t, v.Value.IsFresh(11))

	v.SetFlags(Flags{HaltRefreshes: true})
	_, err = v.ConsolidateRefresh(100, 1_000, 11)
	assert.ErrorIs(t, err, ErrHaltedVault)
}

func TestConsolidateRefresh_NoSupplyMintsNothing(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	v.Value.Update(0, 0)
	for p := range provider.Providers() {
		require.NoError(t, v.UpdateActualAllocation(p, 0, 1))
	}

	accrual, err := v.ConsolidateRefresh(50, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), accrual.Value)
	assert.Zero(t, accrual.FeeLP)
}

func TestMarkActualStale(t *testing.T) {
	v := newTestVault(t, validConfigArg())
	require.NoError(t, v.UpdateActualAllocation(provider.Solend, 9, 1))
	v.MarkActualStale(provider.Solend)

	got := v.ActualAllocations.Get(provider.Solend)
	assert.Zero(t, got.Value)
	assert.False(t, got.IsFresh(1))
}
