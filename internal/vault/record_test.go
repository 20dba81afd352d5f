package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
)

func populatedVault(t *testing.T) *Vault {
	t.Helper()
	arg := validConfigArg()
	arg.RebalanceMode = RebalanceProofChecker
	arg.StrategyType = StrategyEqualAllocation
	v := newTestVault(t, arg)

	v.Value.Update(9_000, 41)
	require.NoError(t, v.Rebalance(provider.Of(rate.FromPercent(40), rate.FromPercent(30), rate.FromPercent(30)), 42))
	require.NoError(t, v.UpdateActualAllocation(provider.Solend, 3_000, 42))
	require.NoError(t, v.UpdateActualAllocation(provider.Port, 2_700, 41))
	v.SetFlags(Flags{HaltDepositsWithdraws: true})
	return v
}

func TestRecord_Size(t *testing.T) {
	assert.Equal(t, RecordSize, recordUsed+ReservedSize)
	assert.Positive(t, ReservedSize)
}

func TestRecord_RoundTrip(t *testing.T) {
	v := populatedVault(t)

	data, err := v.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, RecordSize)

	var got Vault
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, *v, got)
	assert.Equal(t, Flags{HaltDepositsWithdraws: true}, got.Flags())
	assert.True(t, got.ActualAllocations.Get(provider.Jet).LastUpdate.Stale)
}

func TestRecord_FixedOffsets(t *testing.T) {
	v := populatedVault(t)
	data, err := v.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, RecordVersion[:], data[:3])
	assert.Equal(t, v.Owner[:], data[3:35])
	assert.Equal(t, byte(254), data[99])
	assert.Equal(t, make([]byte, ReservedSize), data[recordUsed:])
}

func TestRecord_Rejects(t *testing.T) {
	v := populatedVault(t)
	good, err := v.MarshalBinary()
	require.NoError(t, err)

	mutated := func(f func([]byte)) []byte {
		b := append([]byte(nil), good...)
		f(b)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short", good[:RecordSize-1], ErrInvalidRecord},
		{"long", append(append([]byte(nil), good...), 0), ErrInvalidRecord},
		{"major version", mutated(func(b []byte) { b[0] = 2 }), ErrUnsupportedVersion},
		{"reserved byte", mutated(func(b []byte) { b[RecordSize-1] = 1 }), ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Vault
			assert.ErrorIs(t, got.UnmarshalBinary(tt.data), tt.wantErr)
			assert.Equal(t, Vault{}, got)
		})
	}
}

func TestRecord_RejectsInvalidFields(t *testing.T) {
	v := populatedVault(t)

	t.Run("config", func(t *testing.T) {
		bad := *v
		bad.Config.AllocationCapPct = 100
		data, err := bad.MarshalBinary()
		require.NoError(t, err)

		var got Vault
		err = got.UnmarshalBinary(data)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.ErrorIs(t, err, ErrInvalidAllocationCap)
	})

	t.Run("stale byte", func(t *testing.T) {
		data, err := v.MarshalBinary()
		require.NoError(t, err)
		// Last byte of the final actual allocation is its stale flag.
		data[recordUsed-1] = 2

		var got Vault
		assert.ErrorIs(t, got.UnmarshalBinary(data), ErrInvalidRecord)
	})

	t.Run("minor version is accepted", func(t *testing.T) {
		data, err := v.MarshalBinary()
		require.NoError(t, err)
		data[1] = 9

		var got Vault
		require.NoError(t, got.UnmarshalBinary(data))
		assert.Equal(t, [3]byte{1, 9, 0}, got.Version)
	})
}
