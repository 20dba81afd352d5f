package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedSub(t *testing.T) {
	diff, err := CheckedSub(5, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), diff)

	_, err = CheckedSub(3, 5)
	assert.ErrorIs(t, err, ErrMath)
}

func TestSaturatingSub(t *testing.T) {
	assert.Equal(t, uint64(0), SaturatingSub(3, 5))
	assert.Equal(t, uint64(2), SaturatingSub(5, 3))
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c uint64
		want    uint64
		wantErr error
	}{
		{name: "exact", a: 10, b: 20, c: 5, want: 40},
		{name: "floors", a: 10, b: 1, c: 3, want: 3},
		{name: "wide intermediate", a: math.MaxUint64, b: 2, c: 4, want: math.MaxUint64 / 2},
		{name: "zero denominator", a: 1, b: 1, c: 0, wantErr: ErrMath},
		{name: "result overflow", a: math.MaxUint64, b: 2, c: 1, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.c)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulDivInt(t *testing.T) {
	got, err := MulDivInt(10_000*100, 1_000_000, 200, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), got)

	_, err = MulDivInt(0, 1)
	assert.ErrorIs(t, err, ErrMath)
}

func TestCheckedMul(t *testing.T) {
	got, err := CheckedMul(1<<31, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<62), got)

	_, err = CheckedMul(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrOverflow)
}
