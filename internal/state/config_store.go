/*

This file keeps the history of vault configurations. Exactly one row is active at a time;
activating a new configuration deactivates the previous one in the same transaction.

*/

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/allocator/internal/vault"
	"github.com/rs/zerolog/log"
)

// SaveVaultConfig validates and stores a configuration as the active one.
func SaveVaultConfig(ctx context.Context, arg vault.ConfigArg) (configID int, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if _, err := vault.NewConfig(arg); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(arg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault config: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback config transaction")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE vault_configs SET is_active = FALSE WHERE is_active = TRUE;`); err != nil {
		return 0, fmt.Errorf("failed to deactivate previous config: %w", err)
	}

	insertQuery := `
		INSERT INTO vault_configs (is_active, config)
		VALUES (TRUE, $1)
		RETURNING config_id;`
	if err = tx.QueryRowContext(ctx, insertQuery, payload).Scan(&configID); err != nil {
		return 0, fmt.Errorf("failed to insert vault config: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit vault config: %w", err)
	}

	log.Info().Int("config_id", configID).Msg("Activated vault config")
	return configID, nil
}

// LoadActiveVaultConfig returns the active configuration. The bool is false when none is stored.
func LoadActiveVaultConfig(ctx context.Context) (vault.ConfigArg, bool, error) {
	if DB == nil {
		return vault.ConfigArg{}, false, ErrDBNotInitialized
	}

	query := `
		SELECT config
		FROM vault_configs
		WHERE is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var payload []byte
	if err := DB.QueryRowContext(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vault.ConfigArg{}, false, nil
		}
		return vault.ConfigArg{}, false, fmt.Errorf("failed to load active vault config: %w", err)
	}

	var arg vault.ConfigArg
	if err := json.Unmarshal(payload, &arg); err != nil {
		return vault.ConfigArg{}, false, fmt.Errorf("failed to decode vault config: %w", err)
	}
	return arg, true, nil
}
