package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/allocator/internal/provider"
)

// ModeSimulated runs the vault against in-process simulated lending markets.
const ModeSimulated = "simulated"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AllocatorMode selects the market transport. Only ModeSimulated is bundled.
	AllocatorMode string

	// VaultConfigPath points at the YAML vault configuration payload. Empty means DefaultVaultConfig.
	VaultConfigPath string
	// TargetWeightsBps is the static weight proposal, or nil when targets are left alone.
	TargetWeightsBps *provider.Container[uint16]

	// ReserveDenom and LPDenom name the vault's reserve and claim tokens.
	ReserveDenom string
	LPDenom      string

	// SimulatedLiquidity is the starting liquidity of each simulated market.
	SimulatedLiquidity uint64
	// InitialDeposit seeds the vault's idle reserve when it is first created.
	InitialDeposit uint64

	// KeeperInterval is the delay between keeper ticks when KeeperCron is empty.
	KeeperInterval time.Duration
	// KeeperCron is an optional cron schedule (with seconds) that replaces the interval loop.
	KeeperCron string

	// LogLevel and LogFormat configure the global logger.
	LogLevel  string
	LogFormat string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// ALLOCATOR_MODE is required, and so are the database settings unless ALLOCATOR_STORAGE
// is memory. Everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	AllocatorMode, err = getEnv("ALLOCATOR_MODE")
	if err != nil {
		return err
	}

	VaultConfigPath = getEnvOrDefault("ALLOCATOR_VAULT_CONFIG", "")

	TargetWeightsBps = nil
	if weights := getEnvOrDefault("ALLOCATOR_TARGET_WEIGHTS_BPS", ""); weights != "" {
		parsed, err := ParseWeightsBps(weights)
		if err != nil {
			return errors.New("environment variable ALLOCATOR_TARGET_WEIGHTS_BPS is invalid: " + err.Error())
		}
		TargetWeightsBps = &parsed
	}

	ReserveDenom = getEnvOrDefault("ALLOCATOR_RESERVE_DENOM", "ureserve")
	LPDenom = getEnvOrDefault("ALLOCATOR_LP_DENOM", "ulp")

	SimulatedLiquidity, err = getEnvAsUint64OrDefault("SIM_RESERVE_LIQUIDITY", 1_000_000_000)
	if err != nil {
		return err
	}
	InitialDeposit, err = getEnvAsUint64OrDefault("SIM_INITIAL_DEPOSIT", 0)
	if err != nil {
		return err
	}

	KeeperInterval, err = getEnvAsDurationOrDefault("KEEPER_INTERVAL", time.Minute)
	if err != nil {
		return err
	}
	if KeeperInterval <= 0 {
		return errors.New("environment variable KEEPER_INTERVAL must be positive")
	}
	KeeperCron = getEnvOrDefault("KEEPER_CRON", "")

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("mode", AllocatorMode).
		Str("vaultConfig", VaultConfigPath).
		Bool("staticWeights", TargetWeightsBps != nil).
		Dur("keeperInterval", KeeperInterval).
		Str("keeperCron", KeeperCron).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64OrDefault(key string, def uint64) (uint64, error) {
	if getEnvOrDefault(key, "") == "" {
		return def, nil
	}
	return getEnvAsUint64(key)
}

func getEnvAsDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
