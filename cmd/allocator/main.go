package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/allocator/internal/config"
	"github.com/elys-network/allocator/internal/keeper"
	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/market"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/state"
	"github.com/elys-network/allocator/internal/vault"
	"github.com/elys-network/allocator/internal/web"
)

// memoryReports is how many reconcile reports in-memory storage holds.
const memoryReports = 256

// main is the entry point for the allocator.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Setup(logger.Options{Level: config.LogLevel, Format: config.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logger")
	}
	log.Info().Msg("Allocator starting...")

	if config.AllocatorMode != config.ModeSimulated {
		log.Fatal().Str("mode", config.AllocatorMode).Msg("ALLOCATOR_MODE must be 'simulated'; no other market transport is bundled. Halting.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Storage and Vault ---
	accounts, err := market.NewVaultAccounts(config.ReserveDenom, config.LPDenom)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid vault denominations")
	}

	var (
		v        *vault.Vault
		ticks    keeper.TickSource
		store    keeper.Store
		receipts web.ReceiptSource
		dbCheck  func() error
	)
	if config.Storage == config.StorageMemory {
		arg := config.DefaultVaultConfig
		if config.VaultConfigPath != "" {
			if arg, err = config.LoadVaultConfigFile(config.VaultConfigPath); err != nil {
				log.Fatal().Err(err).Msg("Failed to load vault config")
			}
		}
		if v, err = newVault(arg, 0, accounts); err != nil {
			log.Fatal().Err(err).Msg("Failed to create vault")
		}
		ticks = keeper.NewMemoryTicks(0)
		store = keeper.NewMemoryStore(memoryReports)
		log.Warn().Msg("Running with in-memory storage; the vault and its ticks are lost on restart.")
	} else {
		if err := state.InitDB(config.DatabaseConfig()); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		if v, err = loadOrCreateVault(ctx, accounts); err != nil {
			log.Fatal().Err(err).Msg("Failed to load vault")
		}
		ticks, store, receipts, dbCheck = state.Store{}, state.Store{}, state.Store{}, state.TestDBConnection
	}

	// --- 3. Markets ---
	reserves := provider.Map(provider.Container[*market.Reserve]{}, func(p provider.Provider, _ *market.Reserve) *market.Reserve {
		half := config.SimulatedLiquidity / 2
		return &market.Reserve{
			AvailableLiquidity: config.SimulatedLiquidity - half,
			BorrowedLiquidity:  half,
			ShareSupply:        config.SimulatedLiquidity,
			Curve:              market.DefaultCurve(p),
		}
	})
	adapters, err := market.NewSimulated(v, reserves, accounts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulated markets")
	}
	log.Warn().Msg("Running against simulated markets; market balances are not persisted across restarts.")

	var proposer keeper.Proposer
	if config.TargetWeightsBps != nil {
		weights := vault.WeightsFromBips(*config.TargetWeightsBps)
		if err := vault.VerifyWeights(weights, v.Config.AllocationCapPct); err != nil {
			log.Fatal().Err(err).Msg("Configured target weights are rejected by the vault")
		}
		proposer = keeper.StaticProposer{Weights: weights}
	}

	// --- 4. Keeper ---
	k, err := keeper.New(keeper.Config{
		Vault:        v,
		Integrations: provider.Map(adapters, func(_ provider.Provider, a *market.Adapter) keeper.Integration { return a }),
		Ledger:       accounts,
		Ticks:        ticks,
		Store:        store,
		Proposer:     proposer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 5. Web Server ---
	webServer := web.NewWebServer(config.WebPort, k, receipts, dbCheck)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting allocator dashboard")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server stopped")
		}
	}()

	// --- 6. Main Loop ---
	if config.KeeperCron != "" {
		if err := k.RunSchedule(ctx, config.KeeperCron); err != nil {
			log.Fatal().Err(err).Msg("Failed to start keeper schedule")
		}
	} else {
		k.RunLoop(ctx, config.KeeperInterval)
	}
	log.Info().Msg("Allocator stopped")
}

// loadOrCreateVault restores the latest stored vault. Without one it creates a vault from
// the configured payload and seeds it with the initial deposit.
func loadOrCreateVault(ctx context.Context, accounts *market.VaultAccounts) (*vault.Vault, error) {
	arg, fromFile, err := vaultConfigArg(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := state.LoadLatestVaultRecord(ctx)
	switch {
	case err == nil:
		v, err := stored.Vault()
		if err != nil {
			return nil, err
		}
		if fromFile && arg != v.Config.Arg() {
			if err := v.Reconfigure(arg); err != nil {
				return nil, err
			}
			if _, err := state.SaveVaultConfig(ctx, arg); err != nil {
				return nil, err
			}
			log.Info().Msg("Applied vault config file to the stored vault")
		}
		log.Info().Uint64("tick", stored.Tick).Int64("recordId", stored.RecordID).Msg("Restored vault from stored record")
		return v, nil
	case !errors.Is(err, state.ErrNoRecord):
		return nil, err
	}

	tick, err := state.GetCurrentTick(ctx)
	if err != nil {
		return nil, err
	}
	v, err := newVault(arg, tick, accounts)
	if err != nil {
		return nil, err
	}
	if _, err := state.SaveVaultConfig(ctx, arg); err != nil {
		return nil, err
	}
	return v, nil
}

// newVault creates a vault over the simulated accounts at tick and seeds it with the
// initial deposit.
func newVault(arg vault.ConfigArg, tick uint64, accounts *market.VaultAccounts) (*vault.Vault, error) {
	v, err := vault.New(vault.Init{
		Owner:          simKey("owner"),
		VaultAuthority: simKey("vault-authority"),
		AuthoritySeed:  simKey("authority-seed"),
		ProviderAccounts: provider.Map(provider.Container[vault.ProviderAccounts]{}, func(p provider.Provider, _ vault.ProviderAccounts) vault.ProviderAccounts {
			return vault.ProviderAccounts{
				Reserve:    simKey(p.String() + "-reserve"),
				ShareToken: simKey(market.ShareDenom(p)),
			}
		}),
		VaultReserveToken:   simKey(config.ReserveDenom),
		LPTokenMint:         simKey(config.LPDenom),
		ReserveTokenMint:    simKey(config.ReserveDenom + "-mint"),
		FeeReceiver:         simKey("fee-receiver"),
		ReferralFeeReceiver: simKey("referral-fee-receiver"),
		Config:              arg,
		Tick:                tick,
	})
	if err != nil {
		return nil, err
	}

	if config.InitialDeposit > 0 {
		// A vault that was just created holds nothing.
		v.Value.Update(0, tick)
		lp, err := v.Deposit(config.InitialDeposit, 0, tick)
		if err != nil {
			return nil, err
		}
		accounts.ApplyDeposit(config.InitialDeposit, lp)
		log.Info().Uint64("amount", config.InitialDeposit).Uint64("lp", lp).Msg("Seeded vault with initial deposit")
	}

	log.Info().Uint64("tick", tick).Msg("Created new vault")
	return v, nil
}

// vaultConfigArg returns the file payload when one is configured, then the stored active
// config, then the defaults. The bool reports whether the payload came from a file.
func vaultConfigArg(ctx context.Context) (vault.ConfigArg, bool, error) {
	if config.VaultConfigPath != "" {
		arg, err := config.LoadVaultConfigFile(config.VaultConfigPath)
		return arg, err == nil, err
	}
	arg, ok, err := state.LoadActiveVaultConfig(ctx)
	if err != nil {
		return vault.ConfigArg{}, false, err
	}
	if ok {
		return arg, false, nil
	}
	return config.DefaultVaultConfig, false, nil
}

// simKey derives a stable account key for the simulated markets.
func simKey(name string) vault.Pubkey {
	return vault.Pubkey(sha256.Sum256([]byte("allocator/" + name)))
}
