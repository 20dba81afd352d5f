/*

This file stores the fixed-layout vault record. Every keeper tick appends the encoded record,
so the table doubles as a history of the vault's allocations and freshness stamps.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elys-network/allocator/internal/vault"
	"github.com/rs/zerolog/log"
)

// StoredRecord is one persisted vault record.
type StoredRecord struct {
	RecordID int64
	Tick     uint64
	Version  string
	Record   []byte
}

// Vault decodes the stored record.
func (r StoredRecord) Vault() (*vault.Vault, error) {
	v := new(vault.Vault)
	if err := v.UnmarshalBinary(r.Record); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.RecordID, err)
	}
	return v, nil
}

func recordVersion() string {
	return fmt.Sprintf("%d.%d.%d", vault.RecordVersion[0], vault.RecordVersion[1], vault.RecordVersion[2])
}

// SaveVaultRecord appends an encoded vault record for the given tick.
func SaveVaultRecord(ctx context.Context, tick uint64, record []byte) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if len(record) != vault.RecordSize {
		return fmt.Errorf("%w: %d bytes", vault.ErrInvalidRecord, len(record))
	}

	insertQuery := `
		INSERT INTO vault_records (tick, version, record)
		VALUES ($1, $2, $3)
		RETURNING record_id;`

	var recordID int64
	if err := DB.QueryRowContext(ctx, insertQuery, u64(tick), recordVersion(), record).Scan(&recordID); err != nil {
		return fmt.Errorf("failed to insert vault record for tick %d: %w", tick, err)
	}

	log.Debug().Int64("record_id", recordID).Uint64("tick", tick).Msg("Saved vault record")
	return nil
}

// LoadLatestVaultRecord returns the most recently stored record, or ErrNoRecord.
func LoadLatestVaultRecord(ctx context.Context) (StoredRecord, error) {
	if DB == nil {
		return StoredRecord{}, ErrDBNotInitialized
	}

	query := `
		SELECT record_id, tick, version, record
		FROM vault_records
		ORDER BY record_id DESC
		LIMIT 1;`

	var (
		rec  StoredRecord
		tick string
	)
	err := DB.QueryRowContext(ctx, query).Scan(&rec.RecordID, &tick, &rec.Version, &rec.Record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRecord{}, ErrNoRecord
		}
		return StoredRecord{}, fmt.Errorf("failed to load latest vault record: %w", err)
	}
	if rec.Tick, err = parseU64("tick", tick); err != nil {
		return StoredRecord{}, err
	}
	return rec, nil
}

// PruneVaultRecords keeps the newest `keep` records and deletes the rest.
func PruneVaultRecords(ctx context.Context, keep int) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	deleteQuery := `
		DELETE FROM vault_records
		WHERE record_id NOT IN (
			SELECT record_id FROM vault_records ORDER BY record_id DESC LIMIT $1
		);`

	result, err := DB.ExecContext(ctx, deleteQuery, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune vault records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("kept", keep).Msg("Pruned vault records")
	}
	return deleted, nil
}
