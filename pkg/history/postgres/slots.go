package postgres

import (
	"context"
	"fmt"

	"github.com/MrWong99/auricle/pkg/history"
)

// SetSlot implements [history.Store.SetSlot]. Setting an empty value
// deletes the slot row.
func (s *Store) SetSlot(ctx context.Context, slot, value string) error {
	if !history.ValidSlot(slot) {
		return fmt.Errorf("%w: %q", history.ErrUnknownSlot, slot)
	}

	if value == "" {
		if _, err := s.pool.Exec(ctx, `DELETE FROM memory_slots WHERE name = $1`, slot); err != nil {
			return fmt.Errorf("history store: clear slot: %w", err)
		}
		return nil
	}

	const q = `
		INSERT INTO memory_slots (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, slot, value); err != nil {
		return fmt.Errorf("history store: set slot: %w", err)
	}
	return nil
}

// Slots implements [history.Store.Slots].
func (s *Store) Slots(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM memory_slots`)
	if err != nil {
		return nil, fmt.Errorf("history store: slots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("history store: scan slot: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: slots: %w", err)
	}
	return out, nil
}
