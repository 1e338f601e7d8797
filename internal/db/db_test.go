package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_DeclaresTables(t *testing.T) {
	for _, table := range []string{"users", "sessions", "activities", "routines", "routine_activities"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+"\n", "table %s", table)
	}
}

// openTestDB connects to TEST_DATABASE_URL, or skips.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))
	return database
}

func TestRepositories(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	userID := "test-" + strings.ReplaceAll(t.Name(), "/", "-")
	_ = database.Users().Delete(ctx, userID)
	t.Cleanup(func() { _ = database.Users().Delete(context.Background(), userID) })

	user := &User{ID: userID, DisplayName: "Ada", RecommendedHours: 4}
	require.NoError(t, database.Users().Upsert(ctx, user))
	require.NoError(t, database.Users().UpdateRecommendedHours(ctx, userID, 5.5))

	got, err := database.Users().Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5.5, got.RecommendedHours)
	assert.Nil(t, got.LastSyncAt)

	start := time.Date(2024, time.March, 4, 6, 30, 0, 0, time.UTC)
	activities := []Activity{
		{ID: 9001, Name: "Morning Run", Type: "Run", Distance: 5000, MovingTime: 1800, ElapsedTime: 1900, StartDateLocal: start},
		{ID: 9002, Name: "Morning Run", Type: "Run", Distance: 5200, MovingTime: 1850, ElapsedTime: 1950, StartDateLocal: start.AddDate(0, 0, 7)},
	}
	require.NoError(t, database.Activities().ReplaceForUser(ctx, userID, activities))

	listed, err := database.Activities().ListForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, int64(9001), listed[0].ID)

	between, err := database.Activities().ListBetween(ctx, userID, start.Add(time.Hour), start.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, int64(9002), between[0].ID)

	routines := []Routine{{
		PeriodDays:  7,
		CycleDay:    3,
		MeanValue:   6.5,
		FirstSeen:   start,
		LastSeen:    start.AddDate(0, 0, 7),
		ActivityIDs: []int64{9001, 9002},
	}}
	require.NoError(t, database.Routines().ReplaceForUser(ctx, userID, ModeTimeOfDay, routines))

	stored, err := database.Routines().ListForUser(ctx, userID, ModeTimeOfDay)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, routines[0].ID, stored[0].ID)
	assert.Equal(t, []int64{9001, 9002}, stored[0].ActivityIDs)

	// Replacing activities drops the routine links with them.
	require.NoError(t, database.Activities().ReplaceForUser(ctx, userID, nil))
	left, err := database.Activities().ListForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, left)

	require.NoError(t, database.Users().UpdateLastSync(ctx, userID, time.Now()))
	_, err = database.Users().Get(ctx, "missing-user")
	require.ErrorIs(t, err, ErrNotFound)
}
