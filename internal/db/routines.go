package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoutineRepository handles detected routine operations.
type RoutineRepository struct {
	pool *pgxpool.Pool
}

// ReplaceForUser deletes the user's routines of the given mode and stores
// the new ones, with their activity links, in one transaction. IDs are
// assigned to routines that have none.
func (r *RoutineRepository) ReplaceForUser(ctx context.Context, userID, mode string, routines []Routine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM routines WHERE user_id = $1 AND mode = $2`, userID, mode); err != nil {
		return fmt.Errorf("deleting user routines: %w", err)
	}

	routineQuery := `
		INSERT INTO routines (id, user_id, mode, period_days, slot, cycle_day, mean_value, first_seen, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`
	linkQuery := `
		INSERT INTO routine_activities (routine_id, activity_id)
		SELECT $1, unnest($2::bigint[])
	`
	for i := range routines {
		rt := &routines[i]
		if rt.ID == uuid.Nil {
			rt.ID = uuid.New()
		}
		rt.UserID = userID
		rt.Mode = mode

		err := tx.QueryRow(ctx, routineQuery,
			rt.ID,
			rt.UserID,
			rt.Mode,
			rt.PeriodDays,
			rt.Slot,
			rt.CycleDay,
			rt.MeanValue,
			rt.FirstSeen,
			rt.LastSeen,
		).Scan(&rt.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting routine %d: %w", rt.Slot, err)
		}

		if len(rt.ActivityIDs) > 0 {
			if _, err := tx.Exec(ctx, linkQuery, rt.ID, rt.ActivityIDs); err != nil {
				return fmt.Errorf("linking routine %d activities: %w", rt.Slot, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListForUser returns the user's routines of the given mode ordered by
// slot, each with its activity IDs.
func (r *RoutineRepository) ListForUser(ctx context.Context, userID, mode string) ([]Routine, error) {
	query := `
		SELECT r.id, r.user_id, r.mode, r.period_days, r.slot, r.cycle_day, r.mean_value,
			r.first_seen, r.last_seen, r.created_at,
			COALESCE(array_agg(ra.activity_id ORDER BY ra.activity_id) FILTER (WHERE ra.activity_id IS NOT NULL), '{}')
		FROM routines r
		LEFT JOIN routine_activities ra ON ra.routine_id = r.id
		WHERE r.user_id = $1 AND r.mode = $2
		GROUP BY r.id
		ORDER BY r.slot
	`
	rows, err := r.pool.Query(ctx, query, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("querying user routines: %w", err)
	}
	defer rows.Close()

	var routines []Routine
	for rows.Next() {
		var rt Routine
		if err := rows.Scan(
			&rt.ID,
			&rt.UserID,
			&rt.Mode,
			&rt.PeriodDays,
			&rt.Slot,
			&rt.CycleDay,
			&rt.MeanValue,
			&rt.FirstSeen,
			&rt.LastSeen,
			&rt.CreatedAt,
			&rt.ActivityIDs,
		); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		routines = append(routines, rt)
	}
	return routines, rows.Err()
}
