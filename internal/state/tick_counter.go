/*

This file manages the persistent logical tick counter. The counter lives in the database
so that ticks keep increasing across restarts; freshness checks rely on that.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentTick retrieves the current tick from the database.
func GetCurrentTick(ctx context.Context) (uint64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var current string
	err := DB.QueryRowContext(ctx, `SELECT current_tick FROM tick_counter WHERE id = 1;`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// EnsureSchema inserts the row; treat a missing one as a fresh counter.
			log.Warn().Msg("No tick counter row found, starting at 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current tick: %w", err)
	}
	return parseU64("current_tick", current)
}

// IncrementTick increments the tick counter and returns the new value.
func IncrementTick(ctx context.Context) (uint64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	updateQuery := `
		UPDATE tick_counter
		SET current_tick = current_tick + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_tick;`

	var next string
	if err := DB.QueryRowContext(ctx, updateQuery).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment tick: %w", err)
	}

	tick, err := parseU64("current_tick", next)
	if err != nil {
		return 0, err
	}
	log.Debug().Uint64("tick", tick).Msg("Incremented tick counter")
	return tick, nil
}

// ResetTick sets the tick counter (for maintenance). Moving it backwards makes every
// stored observation look like it comes from the future, so only do that on a fresh vault.
func ResetTick(ctx context.Context, tick uint64) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	updateQuery := `
		UPDATE tick_counter
		SET current_tick = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.ExecContext(ctx, updateQuery, u64(tick))
	if err != nil {
		return fmt.Errorf("failed to reset tick to %d: %w", tick, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting tick")
	}

	log.Warn().Uint64("tick", tick).Msg("Reset tick counter")
	return nil
}
