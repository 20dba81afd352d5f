/*

This file contains the vault aggregate: the persistent record combining configuration,
total valuation and the target and actual per-provider allocation tables.

*/

package vault

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/provider"
)

// Pubkey identifies an owner, authority or external account.
type Pubkey [32]byte

func (k Pubkey) String() string { return hex.EncodeToString(k[:]) }

func (k Pubkey) IsZero() bool { return k == Pubkey{} }

func (k Pubkey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ProviderAccounts references the external accounts the vault uses for one provider.
type ProviderAccounts struct {
	Reserve    Pubkey `json:"reserve"`     // The provider's lending reserve.
	ShareToken Pubkey `json:"share_token"` // The vault's market-share token account.
}

// Init is everything needed to create a vault.
type Init struct {
	Owner               Pubkey
	VaultAuthority      Pubkey
	AuthoritySeed       Pubkey
	AuthorityBump       uint8
	ProviderAccounts    provider.Container[ProviderAccounts]
	VaultReserveToken   Pubkey
	LPTokenMint         Pubkey
	ReserveTokenMint    Pubkey
	FeeReceiver         Pubkey
	ReferralFeeReceiver Pubkey
	Config              ConfigArg
	Tick                uint64
}

// Vault is the aggregate root. Authority checks and token transfers happen outside;
// every method here assumes the caller is authorized and only computes amounts.
type Vault struct {
	Version             [3]byte                              `json:"version"`
	Owner               Pubkey                               `json:"owner"`
	VaultAuthority      Pubkey                               `json:"vault_authority"`
	AuthoritySeed       Pubkey                               `json:"authority_seed"`
	AuthorityBump       uint8                                `json:"authority_bump"`
	ProviderAccounts    provider.Container[ProviderAccounts] `json:"provider_accounts"`
	VaultReserveToken   Pubkey                               `json:"vault_reserve_token"`
	LPTokenMint         Pubkey                               `json:"lp_token_mint"`
	ReserveTokenMint    Pubkey                               `json:"reserve_token_mint"`
	FeeReceiver         Pubkey                               `json:"fee_receiver"`
	ReferralFeeReceiver Pubkey                               `json:"referral_fee_receiver"`

	flags Flags

	Value             StaleValue  `json:"value"`
	TargetAllocations Allocations `json:"target_allocations"`
	Config            Config      `json:"config"`
	ActualAllocations Allocations `json:"actual_allocations"`
}

// New validates the configuration and creates a vault whose values are all stale.
func New(init Init) (*Vault, error) {
	cfg, err := NewConfig(init.Config)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		Version:             RecordVersion,
		Owner:               init.Owner,
		VaultAuthority:      init.VaultAuthority,
		AuthoritySeed:       init.AuthoritySeed,
		AuthorityBump:       init.AuthorityBump,
		ProviderAccounts:    init.ProviderAccounts,
		VaultReserveToken:   init.VaultReserveToken,
		LPTokenMint:         init.LPTokenMint,
		ReserveTokenMint:    init.ReserveTokenMint,
		FeeReceiver:         init.FeeReceiver,
		ReferralFeeReceiver: init.ReferralFeeReceiver,
		Value:               StaleValue{LastUpdate: NewLastUpdate(init.Tick)},
		TargetAllocations:   NewAllocations(init.Tick),
		Config:              cfg,
		ActualAllocations:   NewAllocations(init.Tick),
	}

	engineLogger().Info().
		Str("owner", v.Owner.String()).
		Uint64("depositCap", cfg.DepositCap).
		Uint8("allocationCapPct", cfg.AllocationCapPct).
		Str("rebalanceMode", cfg.RebalanceMode.String()).
		Msg("Vault created")
	return v, nil
}

// Reconfigure replaces the configuration after validating it.
func (v *Vault) Reconfigure(arg ConfigArg) error {
	cfg, err := NewConfig(arg)
	if err != nil {
		return err
	}
	v.Config = cfg
	return nil
}

func (v *Vault) Flags() Flags {
	return v.flags
}

func (v *Vault) SetFlags(f Flags) {
	v.flags = f
}

// SetFlagBits sets the flags from their persisted form.
func (v *Vault) SetFlagBits(bits uint32) error {
	f, err := FlagsFromBits(bits)
	if err != nil {
		return err
	}
	v.flags = f
	return nil
}

// requireNotHalted fails with ErrHaltedVault when any flag of halt is set.
func (v *Vault) requireNotHalted(halt Flags) error {
	if v.flags.Bits()&halt.Bits() != 0 {
		return fmt.Errorf("%w: %s", ErrHaltedVault, v.flags)
	}
	return nil
}

// RequireReconcilesAllowed fails when reconciles are halted.
func (v *Vault) RequireReconcilesAllowed() error {
	return v.requireNotHalted(Flags{HaltReconciles: true})
}

// RequireRefreshesAllowed fails when refreshes are halted.
func (v *Vault) RequireRefreshesAllowed() error {
	return v.requireNotHalted(Flags{HaltRefreshes: true})
}

// UpdateActualAllocation stamps the reserve value held in provider p at tick.
// It is the only mutator of actual allocations used by refresh implementations.
func (v *Vault) UpdateActualAllocation(p provider.Provider, value, tick uint64) error {
	if err := v.ActualAllocations.Update(p, value, tick); err != nil {
		return err
	}
	engineLogger().Debug().
		Str("provider", p.String()).
		Uint64("value", value).
		Uint64("tick", tick).
		Msg("Actual allocation refreshed")
	return nil
}

// MarkActualStale invalidates provider p's actual allocation after capital moved.
func (v *Vault) MarkActualStale(p provider.Provider) {
	v.ActualAllocations.Reset(p)
}

func engineLogger() *zerolog.Logger {
	l := logger.GetForComponent("vault_engine")
	return &l
}
