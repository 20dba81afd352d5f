/*

This file persists refresh and reconcile rounds. A round row carries the provider lists by status
and each provider's outcome lands in reconcile_receipts, so a failed provider can be traced back
to the round that skipped or failed it.

*/

package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/reconcile"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Receipt is one provider's stored outcome.
type Receipt struct {
	RoundID   string    `json:"round_id"`
	Kind      string    `json:"kind"`
	Tick      uint64    `json:"tick"`
	Provider  string    `json:"provider"`
	Action    string    `json:"action"`
	Amount    uint64    `json:"amount"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProviderSummary aggregates receipts for one provider.
type ProviderSummary struct {
	Provider     string     `json:"provider"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Skipped      int        `json:"skipped"`
	LastFailure  string     `json:"last_failure,omitempty"`
	LastFailedAt *time.Time `json:"last_failed_at,omitempty"`
}

func providerNames(ps []provider.Provider) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.String())
	}
	return names
}

// receiptsFromReport flattens a report into one receipt per provider.
func receiptsFromReport(kind string, report reconcile.Report) []Receipt {
	receipts := make([]Receipt, 0, report.Outcomes.Len())
	for p, o := range report.Outcomes.All() {
		receipts = append(receipts, Receipt{
			RoundID:  report.RoundID,
			Kind:     kind,
			Tick:     report.Tick,
			Provider: p.String(),
			Action:   o.Action.String(),
			Amount:   o.Amount,
			Status:   o.Status.String(),
			Error:    o.Error,
		})
	}
	return receipts
}

// SaveReconcileReport stores a round and its receipts in one transaction.
func SaveReconcileReport(ctx context.Context, kind string, report reconcile.Report) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if report.RoundID == "" {
		return fmt.Errorf("report for tick %d has no round id", report.Tick)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback round transaction")
			}
		}
	}()

	roundQuery := `
		INSERT INTO reconcile_rounds (round_id, kind, tick, succeeded, failed, skipped)
		VALUES ($1, $2, $3, $4, $5, $6);`
	_, err = tx.ExecContext(ctx, roundQuery,
		report.RoundID, kind, u64(report.Tick),
		pq.Array(providerNames(report.Succeeded())),
		pq.Array(providerNames(report.Failed())),
		pq.Array(providerNames(report.Skipped())),
	)
	if err != nil {
		return fmt.Errorf("failed to insert round %s: %w", report.RoundID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reconcile_receipts (round_id, provider, action, amount, status, error)
		VALUES ($1, $2, $3, $4, $5, $6);`)
	if err != nil {
		return fmt.Errorf("failed to prepare receipt insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range receiptsFromReport(kind, report) {
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, r.RoundID, r.Provider, r.Action, u64(r.Amount), r.Status, errText); err != nil {
			return fmt.Errorf("failed to insert receipt for %s: %w", r.Provider, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit round %s: %w", report.RoundID, err)
	}

	log.Debug().
		Str("round_id", report.RoundID).
		Str("kind", kind).
		Uint64("tick", report.Tick).
		Int("failed", len(report.Failed())).
		Msg("Saved round")
	return nil
}

// GetRecentReceipts returns receipts from the newest rounds, optionally for one provider.
func GetRecentReceipts(ctx context.Context, providerName string, limit int) ([]Receipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT r.round_id, r.kind, r.tick, c.provider, c.action, c.amount, c.status,
		       COALESCE(c.error, ''), r.created_at
		FROM reconcile_receipts c
		JOIN reconcile_rounds r ON r.round_id = c.round_id
		WHERE ($1 = '' OR c.provider = $1)
		ORDER BY r.created_at DESC, c.receipt_id DESC
		LIMIT $2;`

	rows, err := DB.QueryContext(ctx, query, providerName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var (
			r            Receipt
			tick, amount string
		)
		if err := rows.Scan(&r.RoundID, &r.Kind, &tick, &r.Provider, &r.Action, &amount, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		if r.Tick, err = parseU64("tick", tick); err != nil {
			return nil, err
		}
		if r.Amount, err = parseU64("amount", amount); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}
	return receipts, nil
}

// Summarize aggregates receipts per provider in canonical provider order.
// Receipts are expected newest first, as GetRecentReceipts returns them.
func Summarize(receipts []Receipt) []ProviderSummary {
	byName := make(map[string]*ProviderSummary)
	for p := range provider.Providers() {
		byName[p.String()] = &ProviderSummary{Provider: p.String()}
	}

	for _, r := range receipts {
		s, ok := byName[r.Provider]
		if !ok {
			continue
		}
		switch r.Status {
		case reconcile.StatusSucceeded.String():
			s.Succeeded++
		case reconcile.StatusFailed.String():
			s.Failed++
			if s.LastFailedAt == nil {
				at := r.CreatedAt
				s.LastFailedAt = &at
				s.LastFailure = r.Error
			}
		case reconcile.StatusSkipped.String():
			s.Skipped++
		}
	}

	out := make([]ProviderSummary, 0, len(byName))
	for p := range provider.Providers() {
		out = append(out, *byName[p.String()])
	}
	return out
}
