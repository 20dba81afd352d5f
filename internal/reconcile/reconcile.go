/*

This file contains the reconciliation round. Each provider is handled on its own: a stale
actual allocation skips that provider, a failed market call fails only that provider, and
nothing done for one provider is rolled back because of another. Redeems run before
deposits so that reserve freed in a round can fund the deposits of the same round.

*/

package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/market"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/vault"
)

// ErrMissingMarket is reported for a provider with no market bound to it.
var ErrMissingMarket = errors.New("no market bound to provider")

func reconcileLogger() *zerolog.Logger {
	l := logger.GetForComponent("reconciler")
	return &l
}

func newReport(tick uint64) Report {
	return Report{RoundID: uuid.New().String(), Tick: tick}
}

// Markets indexes markets by the provider each reports. Later markets for the same
// provider replace earlier ones; a provider left unbound fails with ErrMissingMarket.
func Markets(ms ...market.Market) (provider.Container[market.Market], error) {
	c := provider.FromPairs(func(yield func(provider.Provider, market.Market) bool) {
		for _, m := range ms {
			if !yield(m.Provider(), m) {
				return
			}
		}
	})
	for p, m := range c.All() {
		if m == nil {
			return c, fmt.Errorf("%w: %s", ErrMissingMarket, p)
		}
	}
	return c, nil
}

// Plan decides the action for every provider from the target and actual allocations,
// without touching any market. Providers whose actual allocation is stale are skipped.
func Plan(v *vault.Vault, tick uint64) provider.Container[Outcome] {
	return provider.Map(v.ActualAllocations.Container, func(p provider.Provider, actual vault.StaleValue) Outcome {
		target := v.TargetAllocations.Get(p).Value
		action, amount := ActionNone, uint64(0)
		switch {
		case target > actual.Value:
			action, amount = ActionDeposit, target-actual.Value
		case target < actual.Value:
			action, amount = ActionRedeem, actual.Value-target
		}

		if err := actual.RequireFresh(tick); err != nil {
			return skipped(action, amount, err)
		}
		return Outcome{Action: action, Amount: amount}
	})
}

// RefreshAll refreshes every provider's actual allocation at tick. A failure on one
// provider does not stop the others.
func RefreshAll(ctx context.Context, v *vault.Vault, refreshers provider.Container[market.Refresher], tick uint64) (Report, error) {
	if err := v.RequireRefreshesAllowed(); err != nil {
		return Report{}, err
	}

	report := newReport(tick)
	log := reconcileLogger().With().Str("round_id", report.RoundID).Uint64("tick", tick).Logger()

	for p, r := range refreshers.All() {
		if r == nil {
			report.Outcomes.Set(p, failed(ActionRefresh, 0, fmt.Errorf("%w: %s", ErrMissingMarket, p)))
			continue
		}
		if err := r.UpdateActualAllocation(ctx, v, tick); err != nil {
			log.Warn().Err(err).Str("provider", p.String()).Msg("Refresh failed")
			report.Outcomes.Set(p, failed(ActionRefresh, 0, err))
			continue
		}
		report.Outcomes.Set(p, succeeded(ActionRefresh, 0))
	}

	log.Info().
		Int("succeeded", len(report.Succeeded())).
		Int("failed", len(report.Failed())).
		Msg("Refresh round complete")
	return report, nil
}

// Reconcile moves each provider's actual allocation toward its target at tick. Every
// provider acted on successfully has its actual allocation marked stale, since it no
// longer reflects the market until the next refresh.
func Reconcile(ctx context.Context, v *vault.Vault, markets provider.Container[market.Market], tick uint64) (Report, error) {
	if err := v.RequireReconcilesAllowed(); err != nil {
		return Report{}, err
	}

	report := newReport(tick)
	report.Outcomes = Plan(v, tick)
	log := reconcileLogger().With().Str("round_id", report.RoundID).Uint64("tick", tick).Logger()

	for _, phase := range []Action{ActionRedeem, ActionDeposit} {
		for p, planned := range report.Outcomes.All() {
			if planned.Status == StatusSkipped || planned.Action != phase {
				continue
			}
			report.Outcomes.Set(p, execute(ctx, v, markets.Get(p), p, planned, log))
		}
	}
	for p, planned := range report.Outcomes.All() {
		if planned.Status == StatusSkipped {
			log.Info().Str("provider", p.String()).Str("reason", planned.Error).Msg("Provider skipped")
		}
	}

	log.Info().
		Int("succeeded", len(report.Succeeded())).
		Int("failed", len(report.Failed())).
		Int("skipped", len(report.Skipped())).
		Msg("Reconcile round complete")
	return report, nil
}

func execute(ctx context.Context, v *vault.Vault, m market.Market, p provider.Provider, planned Outcome, log zerolog.Logger) Outcome {
	if m == nil {
		return failed(planned.Action, planned.Amount, fmt.Errorf("%w: %s", ErrMissingMarket, p))
	}

	var err error
	switch planned.Action {
	case ActionDeposit:
		err = m.Deposit(ctx, planned.Amount)
	case ActionRedeem:
		err = m.Redeem(ctx, planned.Amount)
	}
	if err != nil {
		log.Error().Err(err).
			Str("provider", p.String()).
			Str("action", planned.Action.String()).
			Uint64("amount", planned.Amount).
			Msg("Market action failed")
		return failed(planned.Action, planned.Amount, err)
	}

	v.MarkActualStale(p)
	log.Info().
		Str("provider", p.String()).
		Str("action", planned.Action.String()).
		Uint64("amount", planned.Amount).
		Msg("Market action executed")
	return succeeded(planned.Action, planned.Amount)
}
