package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/allocator/internal/keeper"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/reconcile"
	"github.com/elys-network/allocator/internal/vault"
)

var (
	_ keeper.Store      = Store{}
	_ keeper.TickSource = Store{}
)

func TestNilDB(t *testing.T) {
	require.Nil(t, DB)
	ctx := context.Background()

	_, err := GetCurrentTick(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = IncrementTick(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, ResetTick(ctx, 1), ErrDBNotInitialized)
	assert.ErrorIs(t, SaveVaultRecord(ctx, 1, make([]byte, vault.RecordSize)), ErrDBNotInitialized)
	_, err = LoadLatestVaultRecord(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = PruneVaultRecords(ctx, 10)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, SaveReconcileReport(ctx, keeper.KindReconcile, reconcile.Report{RoundID: "r"}), ErrDBNotInitialized)
	_, err = GetRecentReceipts(ctx, "", 10)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = SaveVaultConfig(ctx, vault.ConfigArg{AllocationCapPct: 60})
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, _, err = LoadActiveVaultConfig(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
	assert.ErrorIs(t, DropSchema(), ErrDBNotInitialized)
	assert.ErrorIs(t, TestDBConnection(), ErrDBNotInitialized)

	_, err = Store{}.NextTick(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", DBName: "allocator", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=allocator sslmode=disable", cfg.DSN())
}

func TestNumericColumns(t *testing.T) {
	const max = ^uint64(0)
	v, err := parseU64("tick", u64(max))
	require.NoError(t, err)
	assert.Equal(t, max, v)

	_, err = parseU64("tick", "-1")
	assert.ErrorContains(t, err, "invalid tick")
}

func TestReceiptsFromReport(t *testing.T) {
	boom := errors.New("boom")
	report := reconcile.Report{
		RoundID: "round-1",
		Tick:    42,
		Outcomes: provider.Of(
			reconcile.Outcome{Action: reconcile.ActionDeposit, Amount: 500, Status: reconcile.StatusSucceeded},
			reconcile.Outcome{Action: reconcile.ActionRedeem, Amount: 7, Status: reconcile.StatusFailed, Err: boom, Error: boom.Error()},
			reconcile.Outcome{Action: reconcile.ActionNone, Status: reconcile.StatusSkipped, Error: "stale"},
		),
	}

	receipts := receiptsFromReport(keeper.KindReconcile, report)
	require.Len(t, receipts, provider.Count)

	assert.Equal(t, Receipt{RoundID: "round-1", Kind: keeper.KindReconcile, Tick: 42, Provider: "solend", Action: "deposit", Amount: 500, Status: "succeeded"}, receipts[0])
	assert.Equal(t, "port", receipts[1].Provider)
	assert.Equal(t, "failed", receipts[1].Status)
	assert.Equal(t, "boom", receipts[1].Error)
	assert.Equal(t, "jet", receipts[2].Provider)
	assert.Equal(t, "skipped", receipts[2].Status)

	assert.Equal(t, []string{"port"}, providerNames(report.Failed()))
}

func TestSummarize(t *testing.T) {
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	receipts := []Receipt{
		{Provider: "port", Status: "failed", Error: "latest", CreatedAt: newer},
		{Provider: "port", Status: "failed", Error: "earlier", CreatedAt: older},
		{Provider: "solend", Status: "succeeded", CreatedAt: newer},
		{Provider: "jet", Status: "skipped", CreatedAt: newer},
		{Provider: "unknown", Status: "failed", CreatedAt: newer},
	}

	summaries := Summarize(receipts)
	require.Len(t, summaries, provider.Count)

	assert.Equal(t, ProviderSummary{Provider: "solend", Succeeded: 1}, summaries[0])
	assert.Equal(t, 2, summaries[1].Failed)
	assert.Equal(t, "latest", summaries[1].LastFailure)
	require.NotNil(t, summaries[1].LastFailedAt)
	assert.Equal(t, newer, *summaries[1].LastFailedAt)
	assert.Equal(t, 1, summaries[2].Skipped)
}

func TestStoredRecord_Vault(t *testing.T) {
	v, err := vault.New(vault.Init{
		Owner:  vault.Pubkey{9},
		Config: vault.ConfigArg{DepositCap: 1_000, AllocationCapPct: 60},
		Tick:   5,
	})
	require.NoError(t, err)
	record, err := v.MarshalBinary()
	require.NoError(t, err)

	restored, err := StoredRecord{RecordID: 3, Tick: 5, Record: record}.Vault()
	require.NoError(t, err)
	assert.Equal(t, v, restored)

	_, err = StoredRecord{RecordID: 4, Record: record[:10]}.Vault()
	assert.ErrorIs(t, err, vault.ErrInvalidRecord)
	assert.ErrorContains(t, err, "record 4")
}

func TestRecordVersion(t *testing.T) {
	assert.Equal(t, "1.0.0", recordVersion())
}
