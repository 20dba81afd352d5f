package market

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/elys-network/allocator/internal/vault"
)

// VaultAccounts are the token balances owned by the vault authority: reserve tokens held
// idle, one share token balance per provider, and the claim token supply with the
// balances of the two fee receivers.
type VaultAccounts struct {
	ReserveToken        sdk.Coin                     `json:"reserve_token"`
	ShareTokens         provider.Container[sdk.Coin] `json:"share_tokens"`
	LPSupply            sdk.Coin                     `json:"lp_supply"`
	FeeReceiver         sdk.Coin                     `json:"fee_receiver"`
	ReferralFeeReceiver sdk.Coin                     `json:"referral_fee_receiver"`
}

// ShareDenom is the denomination of provider p's share token.
func ShareDenom(p provider.Provider) string {
	return p.String() + "-share"
}

// NewVaultAccounts returns empty balances in the given denominations.
func NewVaultAccounts(reserveDenom, lpDenom string) (*VaultAccounts, error) {
	for _, denom := range []string{reserveDenom, lpDenom} {
		if err := sdk.ValidateDenom(denom); err != nil {
			return nil, fmt.Errorf("invalid denom %q: %w", denom, err)
		}
	}
	if reserveDenom == lpDenom {
		return nil, fmt.Errorf("reserve and claim token share denom %q", reserveDenom)
	}

	zero := sdkmath.ZeroInt()
	return &VaultAccounts{
		ReserveToken: sdk.NewCoin(reserveDenom, zero),
		ShareTokens: provider.Map(provider.Container[sdk.Coin]{}, func(p provider.Provider, _ sdk.Coin) sdk.Coin {
			return sdk.NewCoin(ShareDenom(p), zero)
		}),
		LPSupply:            sdk.NewCoin(lpDenom, zero),
		FeeReceiver:         sdk.NewCoin(lpDenom, zero),
		ReferralFeeReceiver: sdk.NewCoin(lpDenom, zero),
	}, nil
}

func (a *VaultAccounts) ReserveBalance() (uint64, error) {
	return utils.ToUint64(a.ReserveToken.Amount)
}

func (a *VaultAccounts) ShareBalance(p provider.Provider) (uint64, error) {
	return utils.ToUint64(a.ShareTokens.Get(p).Amount)
}

func (a *VaultAccounts) LPSupplyAmount() (uint64, error) {
	return utils.ToUint64(a.LPSupply.Amount)
}

func debit(c sdk.Coin, amount uint64) (sdk.Coin, error) {
	out, err := c.SafeSub(sdk.NewCoin(c.Denom, sdkmath.NewIntFromUint64(amount)))
	if err != nil {
		return c, fmt.Errorf("%w: %s has %s, need %d", ErrInsufficientFunds, c.Denom, c.Amount, amount)
	}
	return out, nil
}

func credit(c sdk.Coin, amount uint64) sdk.Coin {
	return c.AddAmount(sdkmath.NewIntFromUint64(amount))
}

// ApplyDeposit records a depositor's reserve tokens arriving and lpMinted claim tokens
// being issued for them.
func (a *VaultAccounts) ApplyDeposit(amount, lpMinted uint64) {
	a.ReserveToken = credit(a.ReserveToken, amount)
	a.LPSupply = credit(a.LPSupply, lpMinted)
}

// ApplyWithdraw records lpBurned claim tokens being burned and reserveOut paid out.
// Nothing changes if the vault does not hold reserveOut idle.
func (a *VaultAccounts) ApplyWithdraw(lpBurned, reserveOut uint64) error {
	reserve, err := debit(a.ReserveToken, reserveOut)
	if err != nil {
		return err
	}
	supply, err := debit(a.LPSupply, lpBurned)
	if err != nil {
		return err
	}
	a.ReserveToken = reserve
	a.LPSupply = supply
	return nil
}

// MintFees issues the claim tokens of a fee accrual to the fee receivers.
func (a *VaultAccounts) MintFees(accrual vault.FeeAccrual) {
	if accrual.FeeLP == 0 {
		return
	}
	a.LPSupply = credit(a.LPSupply, accrual.FeeLP)
	a.FeeReceiver = credit(a.FeeReceiver, accrual.PrimaryLP)
	a.ReferralFeeReceiver = credit(a.ReferralFeeReceiver, accrual.ReferralLP)
}
