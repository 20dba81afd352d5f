package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/market"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/reconcile"
	"github.com/elys-network/allocator/internal/vault"
)

// Report kinds persisted with each round.
const (
	KindRefresh   = "refresh"
	KindReconcile = "reconcile"
)

// Integration is everything the keeper needs from one provider.
type Integration interface {
	market.Market
	market.Refresher
	market.RateView
}

// TickSource hands out the logical tick each keeper tick runs at.
type TickSource interface {
	NextTick(ctx context.Context) (uint64, error)
}

// Ledger is the vault's own token accounting.
type Ledger interface {
	ReserveBalance() (uint64, error)
	LPSupplyAmount() (uint64, error)
	MintFees(accrual vault.FeeAccrual)
}

// Store persists the vault record and round reports.
type Store interface {
	SaveVaultRecord(ctx context.Context, tick uint64, record []byte) error
	SaveReconcileReport(ctx context.Context, kind string, report reconcile.Report) error
}

// Proposer produces target weights for the vault. Weight selection lives outside the
// keeper; proposals still have to pass the vault's weight verification.
type Proposer interface {
	Propose(ctx context.Context, v *vault.Vault, rates provider.Container[market.RateView]) (provider.Container[rate.Rate], error)
}

// Keeper drives the vault one logical tick at a time.
type Keeper struct {
	logger zerolog.Logger

	vault      *vault.Vault
	markets    provider.Container[market.Market]
	refreshers provider.Container[market.Refresher]
	rates      provider.Container[market.RateView]
	ledger     Ledger
	ticks      TickSource
	store      Store
	proposer   Proposer

	// runMu serializes ticks; snapMu guards the published snapshot.
	runMu    sync.Mutex
	snapMu   sync.RWMutex
	snapshot *Snapshot
	runCount int
}

// Config holds the dependencies of a Keeper.
type Config struct {
	Vault        *vault.Vault
	Integrations provider.Container[Integration]
	Ledger       Ledger
	Ticks        TickSource
	Store        Store
	Proposer     Proposer // Optional; without it targets are left as they are.
}

// New creates a keeper after validating its dependencies.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:     logger.GetForComponent("keeper"),
		vault:      cfg.Vault,
		markets:    provider.Map(cfg.Integrations, func(_ provider.Provider, i Integration) market.Market { return i }),
		refreshers: provider.Map(cfg.Integrations, func(_ provider.Provider, i Integration) market.Refresher { return i }),
		rates:      provider.Map(cfg.Integrations, func(_ provider.Provider, i Integration) market.RateView { return i }),
		ledger:     cfg.Ledger,
		ticks:      cfg.Ticks,
		store:      cfg.Store,
		proposer:   cfg.Proposer,
	}

	k.logger.Info().
		Bool("proposer", k.proposer != nil).
		Str("rebalanceMode", k.vault.Config.RebalanceMode.String()).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return errors.New("vault cannot be nil")
	}
	for p, i := range cfg.Integrations.All() {
		if i == nil {
			return fmt.Errorf("integration for %s cannot be nil", p)
		}
		if i.Provider() != p {
			return fmt.Errorf("integration for %s reports provider %s", p, i.Provider())
		}
	}
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Ticks == nil {
		return errors.New("tick source cannot be nil")
	}
	if cfg.Store == nil {
		return errors.New("store cannot be nil")
	}
	return nil
}

// RunTick runs one keeper tick: refresh every provider, consolidate the vault value and
// accrue fees, commit a proposal if there is one, reconcile toward the targets, then
// persist and publish the result. A failed step skips the steps that depend on it; the
// vault is persisted whatever happened.
func (k *Keeper) RunTick(ctx context.Context) (*Snapshot, error) {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	start := time.Now()
	tick, err := k.ticks.NextTick(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get next tick: %w", err)
	}

	snap := &Snapshot{
		CycleID: uuid.New().String(),
		Tick:    tick,
		Time:    start.UTC(),
	}
	log := k.logger.With().Str("cycle_id", snap.CycleID).Uint64("tick", tick).Logger()
	log.Info().Msg("--- Starting keeper tick ---")

	stepErr := k.runSteps(ctx, tick, snap, log)
	if stepErr != nil {
		snap.Errors = append(snap.Errors, stepErr.Error())
	}

	persistErr := k.persist(ctx, tick, snap)
	if persistErr != nil {
		log.Error().Err(persistErr).Msg("Failed to persist tick")
		snap.Errors = append(snap.Errors, persistErr.Error())
	}

	snap.fill(k.vault, k.ledger, k.rates)
	k.publish(snap)

	log.Info().
		Str("duration", time.Since(start).String()).
		Int("errors", len(snap.Errors)).
		Msg("--- Keeper tick complete ---")
	return snap, errors.Join(stepErr, persistErr)
}

func (k *Keeper) runSteps(ctx context.Context, tick uint64, snap *Snapshot, log zerolog.Logger) error {
	log.Info().Msg("Step 1: Refreshing provider allocations...")
	refresh, err := reconcile.RefreshAll(ctx, k.vault, k.refreshers, tick)
	if err != nil {
		log.Warn().Err(err).Msg("Refresh skipped")
	} else {
		snap.Refresh = &refresh
	}

	log.Info().Msg("Step 2: Consolidating vault value...")
	consolidated := false
	if accrual, err := k.consolidate(tick); err != nil {
		log.Warn().Err(err).Msg("Consolidation skipped, targets are left unchanged this tick")
	} else {
		consolidated = true
		snap.Accrual = &accrual
	}

	var errs []error
	if consolidated && k.proposer != nil {
		log.Info().Msg("Step 3: Committing proposed targets...")
		if err := k.rebalance(ctx, tick); err != nil {
			log.Error().Err(err).Msg("Proposal rejected")
			errs = append(errs, err)
		}
	}

	log.Info().Msg("Step 4: Reconciling toward targets...")
	report, err := reconcile.Reconcile(ctx, k.vault, k.markets, tick)
	if err != nil {
		log.Warn().Err(err).Msg("Reconcile skipped")
		return errors.Join(append(errs, err)...)
	}
	snap.Reconcile = &report
	if err := report.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (k *Keeper) consolidate(tick uint64) (vault.FeeAccrual, error) {
	reserve, err := k.ledger.ReserveBalance()
	if err != nil {
		return vault.FeeAccrual{}, err
	}
	supply, err := k.ledger.LPSupplyAmount()
	if err != nil {
		return vault.FeeAccrual{}, err
	}
	accrual, err := k.vault.ConsolidateRefresh(reserve, supply, tick)
	if err != nil {
		return vault.FeeAccrual{}, err
	}
	k.ledger.MintFees(accrual)
	return accrual, nil
}

func (k *Keeper) rebalance(ctx context.Context, tick uint64) error {
	weights, err := k.proposer.Propose(ctx, k.vault, k.rates)
	if err != nil {
		return fmt.Errorf("proposer failed: %w", err)
	}
	return k.vault.Rebalance(weights, tick)
}

func (k *Keeper) persist(ctx context.Context, tick uint64, snap *Snapshot) error {
	record, err := k.vault.MarshalBinary()
	if err != nil {
		return err
	}
	var errs []error
	if err := k.store.SaveVaultRecord(ctx, tick, record); err != nil {
		errs = append(errs, err)
	}
	if snap.Refresh != nil {
		if err := k.store.SaveReconcileReport(ctx, KindRefresh, *snap.Refresh); err != nil {
			errs = append(errs, err)
		}
	}
	if snap.Reconcile != nil {
		if err := k.store.SaveReconcileReport(ctx, KindReconcile, *snap.Reconcile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (k *Keeper) publish(snap *Snapshot) {
	k.snapMu.Lock()
	defer k.snapMu.Unlock()
	k.snapshot = snap
}

// Snapshot returns the state published by the latest tick.
func (k *Keeper) Snapshot() (Snapshot, bool) {
	k.snapMu.RLock()
	defer k.snapMu.RUnlock()
	if k.snapshot == nil {
		return Snapshot{}, false
	}
	return *k.snapshot, true
}
