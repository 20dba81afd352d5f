package state

import (
	"context"

	"github.com/elys-network/allocator/internal/reconcile"
)

// Store exposes the package-level database functions to the keeper.
type Store struct{}

func (Store) NextTick(ctx context.Context) (uint64, error) { return IncrementTick(ctx) }

func (Store) SaveVaultRecord(ctx context.Context, tick uint64, record []byte) error {
	return SaveVaultRecord(ctx, tick, record)
}

func (Store) SaveReconcileReport(ctx context.Context, kind string, report reconcile.Report) error {
	return SaveReconcileReport(ctx, kind, report)
}

func (Store) RecentReceipts(ctx context.Context, providerName string, limit int) ([]Receipt, error) {
	return GetRecentReceipts(ctx, providerName, limit)
}
