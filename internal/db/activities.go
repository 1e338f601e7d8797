package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository handles imported activity operations.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

const activityColumns = `id, user_id, name, type, distance, moving_time, elapsed_time, start_date_local, manual, average_speed, created_at`

// ReplaceForUser swaps the user's stored activities for the given set in
// one transaction. Routines pointing at removed activities go with them.
func (r *ActivityRepository) ReplaceForUser(ctx context.Context, userID string, activities []Activity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting user activities: %w", err)
	}

	if len(activities) > 0 {
		query := `
			INSERT INTO activities (` + activityColumns + `)
			SELECT a.id, $1, a.name, a.type, a.distance, a.moving_time, a.elapsed_time, a.start_date_local, a.manual, a.average_speed, NOW()
			FROM unnest($2::bigint[], $3::text[], $4::text[], $5::float8[], $6::int[], $7::int[], $8::timestamptz[], $9::bool[], $10::float8[])
				AS a(id, name, type, distance, moving_time, elapsed_time, start_date_local, manual, average_speed)
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				distance = EXCLUDED.distance,
				moving_time = EXCLUDED.moving_time,
				elapsed_time = EXCLUDED.elapsed_time,
				start_date_local = EXCLUDED.start_date_local,
				manual = EXCLUDED.manual,
				average_speed = EXCLUDED.average_speed
		`

		ids := make([]int64, len(activities))
		names := make([]string, len(activities))
		types := make([]string, len(activities))
		distances := make([]float64, len(activities))
		moving := make([]int, len(activities))
		elapsed := make([]int, len(activities))
		starts := make([]time.Time, len(activities))
		manual := make([]bool, len(activities))
		speeds := make([]float64, len(activities))
		for i, a := range activities {
			ids[i] = a.ID
			names[i] = a.Name
			types[i] = a.Type
			distances[i] = a.Distance
			moving[i] = a.MovingTime
			elapsed[i] = a.ElapsedTime
			starts[i] = a.StartDateLocal
			manual[i] = a.Manual
			speeds[i] = a.AverageSpeed
		}

		_, err = tx.Exec(ctx, query, userID, ids, names, types, distances, moving, elapsed, starts, manual, speeds)
		if err != nil {
			return fmt.Errorf("inserting activities: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListForUser returns the user's activities, oldest first.
func (r *ActivityRepository) ListForUser(ctx context.Context, userID string) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = $1 ORDER BY start_date_local`
	return r.list(ctx, query, userID)
}

// ListBetween returns the user's activities that started in [from, to), oldest first.
func (r *ActivityRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = $1 AND start_date_local >= $2 AND start_date_local < $3
		ORDER BY start_date_local
	`
	return r.list(ctx, query, userID, from, to)
}

func (r *ActivityRepository) list(ctx context.Context, query string, args ...any) ([]Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	activities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Activity, error) {
		var a Activity
		err := row.Scan(
			&a.ID,
			&a.UserID,
			&a.Name,
			&a.Type,
			&a.Distance,
			&a.MovingTime,
			&a.ElapsedTime,
			&a.StartDateLocal,
			&a.Manual,
			&a.AverageSpeed,
			&a.CreatedAt,
		)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning activities: %w", err)
	}
	return activities, nil
}
