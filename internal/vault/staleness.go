/*

Freshness is how the vault avoids acting on old observations without any locking:
every value that authorizes a market-moving action carries the logical tick it was
observed at, and consumers re-check it against the tick they are running in.

*/

package vault

import (
	"fmt"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/utils"
)

// StaleThreshold is the number of elapsed ticks after which an observation is stale.
const StaleThreshold uint64 = 2

// LastUpdate stamps an observation with the tick it was made at.
type LastUpdate struct {
	Tick  uint64 `json:"tick"`
	Stale bool   `json:"stale"`
}

// NewLastUpdate returns a stamp at tick that is already stale.
func NewLastUpdate(tick uint64) LastUpdate {
	return LastUpdate{Tick: tick, Stale: true}
}

func (u *LastUpdate) Update(tick uint64) {
	u.Tick = tick
	u.Stale = false
}

// MarkStale invalidates the stamp without recording a new observation.
func (u *LastUpdate) MarkStale() {
	u.Stale = true
}

// TicksElapsed returns tick - u.Tick, failing when tick is behind the stamp.
func (u LastUpdate) TicksElapsed(tick uint64) (uint64, error) {
	elapsed, err := utils.CheckedSub(tick, u.Tick)
	if err != nil {
		return 0, fmt.Errorf("tick %d is behind last update %d: %w", tick, u.Tick, err)
	}
	return elapsed, nil
}

func (u LastUpdate) IsFresh(tick uint64) bool {
	if u.Stale {
		return false
	}
	elapsed, err := u.TicksElapsed(tick)
	if err != nil {
		return false
	}
	return elapsed < StaleThreshold
}

// StaleValue is a reserve-denominated amount together with its freshness stamp.
type StaleValue struct {
	Value      uint64     `json:"value"`
	LastUpdate LastUpdate `json:"last_update"`
}

func (s *StaleValue) Update(value, tick uint64) {
	s.Value = value
	s.LastUpdate.Update(tick)
}

// Reset zeroes the value and marks it stale.
func (s *StaleValue) Reset() {
	s.Value = 0
	s.LastUpdate.MarkStale()
}

func (s StaleValue) IsFresh(tick uint64) bool {
	return s.LastUpdate.IsFresh(tick)
}

// RequireFresh returns ErrVaultIsNotRefreshed unless s is fresh at tick. A tick behind
// the stamp is an arithmetic error, not a staleness one.
func (s StaleValue) RequireFresh(tick uint64) error {
	if _, err := s.LastUpdate.TicksElapsed(tick); err != nil {
		return err
	}
	if !s.IsFresh(tick) {
		return fmt.Errorf("%w: last update tick %d (stale=%t), current tick %d",
			ErrVaultIsNotRefreshed, s.LastUpdate.Tick, s.LastUpdate.Stale, tick)
	}
	return nil
}

// Allocations holds one StaleValue per provider.
type Allocations struct {
	provider.Container[StaleValue]
}

// NewAllocations returns zero allocations, all stale at tick.
func NewAllocations(tick uint64) Allocations {
	var a Allocations
	for p := range provider.Providers() {
		a.Set(p, StaleValue{LastUpdate: NewLastUpdate(tick)})
	}
	return a
}

// AllocationsFromContainer stamps a whole snapshot of values at tick.
func AllocationsFromContainer(c provider.Container[uint64], tick uint64) Allocations {
	return Allocations{provider.Map(c, func(_ provider.Provider, v uint64) StaleValue {
		var s StaleValue
		s.Update(v, tick)
		return s
	})}
}

// Update records a new observation for p. Observations never move backwards in tick.
func (a *Allocations) Update(p provider.Provider, value, tick uint64) error {
	entry := a.Ptr(p)
	if tick < entry.LastUpdate.Tick {
		return fmt.Errorf("%w: %s allocation at tick %d cannot move back to tick %d",
			utils.ErrMath, p, entry.LastUpdate.Tick, tick)
	}
	entry.Update(value, tick)
	return nil
}

// Reset zeroes and invalidates the entry for p.
func (a *Allocations) Reset(p provider.Provider) {
	a.Ptr(p).Reset()
}

// Values drops the freshness stamps.
func (a Allocations) Values() provider.Container[uint64] {
	return provider.Map(a.Container, func(_ provider.Provider, s StaleValue) uint64 { return s.Value })
}

// RequireFresh fails on the first provider whose entry is not fresh at tick.
func (a Allocations) RequireFresh(tick uint64) error {
	for p, s := range a.All() {
		if err := s.RequireFresh(tick); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (a Allocations) AllFresh(tick uint64) bool {
	return a.RequireFresh(tick) == nil
}

// Total sums every provider's value.
func (a Allocations) Total() (uint64, error) {
	return provider.TryFold(a.Container, uint64(0), func(acc uint64, _ provider.Provider, s StaleValue) (uint64, error) {
		return utils.CheckedAdd(acc, s.Value)
	})
}
