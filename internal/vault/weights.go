package vault

import (
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
)

// VerifyWeights accepts a proposed weight vector only if it sums to exactly one and
// no weight exceeds the allocation cap. Every failure, including an overflowing sum,
// is reported as ErrInvalidProposedWeights.
func VerifyWeights(proposed provider.Container[rate.Rate], allocationCapPct uint8) error {
	limit := rate.FromPercent(allocationCapPct)
	largest := rate.Max(proposed.Values()...)

	sum, err := provider.TryFold(proposed, rate.Zero(), func(acc rate.Rate, _ provider.Provider, w rate.Rate) (rate.Rate, error) {
		return acc.TryAdd(w)
	})
	if err != nil {
		return ErrInvalidProposedWeights
	}

	if !sum.Equal(rate.One()) || !largest.LTE(limit) {
		return ErrInvalidProposedWeights
	}
	return nil
}

// WeightsFromBips converts a basis-point vector into rates.
func WeightsFromBips(bips provider.Container[uint16]) provider.Container[rate.Rate] {
	return provider.Map(bips, func(_ provider.Provider, b uint16) rate.Rate {
		return rate.FromBips(uint64(b))
	})
}
