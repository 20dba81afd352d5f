package keeper

import (
	"fmt"
	"time"

	"github.com/elys-network/allocator/internal/market"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/reconcile"
	"github.com/elys-network/allocator/internal/vault"
)

// VaultView is a copy of the vault with its flags exposed.
type VaultView struct {
	vault.Vault
	Flags vault.Flags `json:"flags"`
}

// Balances are the vault's own token balances.
type Balances struct {
	Reserve  uint64 `json:"reserve"`
	LPSupply uint64 `json:"lp_supply"`
}

// RateSummary holds a provider's current rates. Zero when they could not be read.
type RateSummary struct {
	Utilization rate.Rate `json:"utilization"`
	BorrowRate  rate.Rate `json:"borrow_rate"`
}

// Snapshot is what a keeper tick leaves behind for readers.
type Snapshot struct {
	CycleID   string                          `json:"cycle_id"`
	Tick      uint64                          `json:"tick"`
	Time      time.Time                       `json:"time"`
	Vault     VaultView                       `json:"vault"`
	Balances  Balances                        `json:"balances"`
	Rates     provider.Container[RateSummary] `json:"rates"`
	Accrual   *vault.FeeAccrual               `json:"accrual,omitempty"`
	Refresh   *reconcile.Report               `json:"refresh,omitempty"`
	Reconcile *reconcile.Report               `json:"reconcile,omitempty"`
	Errors    []string                        `json:"errors,omitempty"`
}

func (s *Snapshot) fill(v *vault.Vault, ledger Ledger, rates provider.Container[market.RateView]) {
	s.Vault = VaultView{Vault: *v, Flags: v.Flags()}
	var err error
	if s.Balances.Reserve, err = ledger.ReserveBalance(); err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("reserve balance: %v", err))
	}
	if s.Balances.LPSupply, err = ledger.LPSupplyAmount(); err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("lp supply: %v", err))
	}
	s.Rates = provider.Map(rates, func(_ provider.Provider, r market.RateView) RateSummary {
		var sum RateSummary
		if u, err := r.UtilizationRate(); err == nil {
			sum.Utilization = u
		}
		if b, err := r.BorrowRate(); err == nil {
			sum.BorrowRate = b
		}
		return sum
	})
}
