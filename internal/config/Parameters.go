/*

This file contains the default vault policy and the loaders for the vault configuration payload.

The defaults suit a vault that accepts large deposits and spreads them over every provider.
A YAML payload only needs the fields it changes; the rest keep these values.

*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/vault"
)

// DefaultVaultConfig is used when no payload file is configured.
var DefaultVaultConfig = vault.ConfigArg{
	DepositCap: 10_000_000_000_000, // 10M tokens at 6 decimals.

	FeeCarryBps: 1_000, // 10% of value growth.
	FeeMgmtBps:  200,   // 2% of total value per year.

	ReferralFeePct: 10, // 10% of every fee goes to the referrer.

	AllocationCapPct: 50, // No provider holds more than half the vault.
	// A single provider failure then costs at most half the deployed value,
	// while two providers can still absorb everything.

	RebalanceMode: vault.RebalanceCalculator,
	StrategyType:  vault.StrategyMaxYield,
}

// LoadVaultConfigFile reads a YAML payload on top of DefaultVaultConfig and validates it.
func LoadVaultConfigFile(path string) (vault.ConfigArg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vault.ConfigArg{}, fmt.Errorf("failed to read vault config %s: %w", path, err)
	}
	arg, err := ParseVaultConfig(data)
	if err != nil {
		return vault.ConfigArg{}, fmt.Errorf("vault config %s: %w", path, err)
	}
	return arg, nil
}

// ParseVaultConfig decodes a YAML payload. Unknown fields are rejected.
func ParseVaultConfig(data []byte) (vault.ConfigArg, error) {
	arg := DefaultVaultConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&arg); err != nil && !errors.Is(err, io.EOF) {
		return vault.ConfigArg{}, fmt.Errorf("failed to decode vault config: %w", err)
	}

	if _, err := vault.NewConfig(arg); err != nil {
		return vault.ConfigArg{}, err
	}
	return arg, nil
}

// ParseWeightsBps parses "solend=5000,port=2500,jet=2500". Every provider must appear once.
// Whether the weights sum to 100% is left to the vault's weight verification.
func ParseWeightsBps(s string) (provider.Container[uint16], error) {
	var (
		out  provider.Container[uint16]
		seen provider.Container[bool]
	)

	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return out, fmt.Errorf("weight %q is not provider=bps", part)
		}
		p, err := provider.ParseProvider(strings.TrimSpace(name))
		if err != nil {
			return out, err
		}
		if seen.Get(p) {
			return out, fmt.Errorf("duplicate weight for %s", p)
		}
		bps, err := strconv.ParseUint(strings.TrimSpace(value), 10, 16)
		if err != nil || bps > vault.MaxBps {
			return out, fmt.Errorf("weight for %s must be in [0, %d] bps, got %q", p, vault.MaxBps, value)
		}
		out.Set(p, uint16(bps))
		seen.Set(p, true)
	}

	for p, ok := range seen.All() {
		if !ok {
			return out, fmt.Errorf("missing weight for %s", p)
		}
	}
	return out, nil
}
