package keeper

import (
	"context"
	"sync"

	"github.com/elys-network/allocator/internal/market"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/rate"
	"github.com/elys-network/allocator/internal/reconcile"
	"github.com/elys-network/allocator/internal/vault"
)

// MemoryTicks is an in-process tick counter, used when no database is configured.
type MemoryTicks struct {
	mu   sync.Mutex
	tick uint64
}

// NewMemoryTicks starts counting after start.
func NewMemoryTicks(start uint64) *MemoryTicks {
	return &MemoryTicks{tick: start}
}

func (m *MemoryTicks) NextTick(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick++
	return m.tick, nil
}

// MemoryStore keeps the latest vault record and the most recent reports in process.
// Nothing survives a restart.
type MemoryStore struct {
	mu         sync.Mutex
	keep       int
	recordTick uint64
	record     []byte
	reports    []StoredReport
}

// StoredReport is a report held by MemoryStore.
type StoredReport struct {
	Kind   string
	Report reconcile.Report
}

// NewMemoryStore keeps up to keep reports, dropping the oldest first.
func NewMemoryStore(keep int) *MemoryStore {
	if keep <= 0 {
		keep = 1
	}
	return &MemoryStore{keep: keep}
}

func (m *MemoryStore) SaveVaultRecord(_ context.Context, tick uint64, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordTick = tick
	m.record = append([]byte(nil), record...)
	return nil
}

func (m *MemoryStore) SaveReconcileReport(_ context.Context, kind string, report reconcile.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, StoredReport{Kind: kind, Report: report})
	if over := len(m.reports) - m.keep; over > 0 {
		m.reports = append([]StoredReport(nil), m.reports[over:]...)
	}
	return nil
}

// LatestRecord returns the last saved record and its tick. ok is false before the first save.
func (m *MemoryStore) LatestRecord() (tick uint64, record []byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return 0, nil, false
	}
	return m.recordTick, append([]byte(nil), m.record...), true
}

// Reports returns the held reports, oldest first.
func (m *MemoryStore) Reports() []StoredReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredReport(nil), m.reports...)
}

// StaticProposer always proposes the same weights.
type StaticProposer struct {
	Weights provider.Container[rate.Rate]
}

func (s StaticProposer) Propose(context.Context, *vault.Vault, provider.Container[market.RateView]) (provider.Container[rate.Rate], error) {
	return s.Weights, nil
}
