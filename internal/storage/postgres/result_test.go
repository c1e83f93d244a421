package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/hetman/internal/game/engine"
	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/storage/postgres"
	"github.com/cory-johannsen/hetman/internal/testutil"
)

func setupResults(t *testing.T) *postgres.ResultRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.Archive
}

func sampleResult(code string, ended time.Time) engine.Result {
	return engine.Result{
		Code:       code,
		Reason:     engine.ReasonRoundsComplete,
		Rounds:     3,
		WinnerID:   "p1",
		WinnerName: "Ada",
		TiedIDs:    []string{"p1", "p2"},
		Scoreboard: []event.ScoreEntry{
			{PlayerID: "p1", Name: "Ada", Points: 2},
			{PlayerID: "p2", Name: "Bot Ivan", Points: 2},
			{PlayerID: "p3", Name: "Grace", Points: 0},
		},
		Bots:      map[string]bool{"p1": false, "p2": true, "p3": false},
		StartedAt: ended.Add(-10 * time.Minute),
		EndedAt:   ended,
	}
}

func TestResultRepository_SaveAndGet(t *testing.T) {
	repo := setupResults(t)
	ctx := context.Background()
	ended := time.Now().UTC().Truncate(time.Microsecond)

	id, err := repo.Save(ctx, sampleResult("ABC234", ended))
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "ABC234", got.RoomCode)
	assert.Equal(t, string(engine.ReasonRoundsComplete), got.Reason)
	assert.Equal(t, 3, got.Rounds)
	assert.Equal(t, "p1", got.WinnerID)
	assert.Equal(t, []string{"p1", "p2"}, got.TiedIDs)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.EndedAt.Equal(ended))

	require.Len(t, got.Scores, 3)
	assert.Equal(t, postgres.Score{PlayerID: "p2", Name: "Bot Ivan", Points: 2, IsBot: true}, got.Scores[1])
	assert.Equal(t, "Grace", got.Scores[2].Name)
}

func TestResultRepository_LobbyGameHasNoStartOrWinner(t *testing.T) {
	repo := setupResults(t)
	ctx := context.Background()

	res := engine.Result{
		Code:       "LOBBY2",
		Reason:     engine.ReasonInactivity,
		Scoreboard: []event.ScoreEntry{{PlayerID: "p1", Name: "Ada"}},
		Bots:       map[string]bool{},
		EndedAt:    time.Now(),
	}
	id, err := repo.Save(ctx, res)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.TiedIDs)
	assert.Equal(t, 0, got.Rounds)
}

func TestResultRepository_GetUnknown(t *testing.T) {
	repo := setupResults(t)
	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, postgres.ErrResultNotFound)
}

func TestResultRepository_RecentNewestFirst(t *testing.T) {
	repo := setupResults(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, code := range []string{"AAAAA2", "BBBBB3", "CCCCC4"} {
		require.NoError(t, repo.SaveResult(ctx, sampleResult(code, base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "CCCCC4", recent[0].RoomCode)
	assert.Equal(t, "BBBBB3", recent[1].RoomCode)
	assert.Empty(t, recent[0].Scores)
}

func TestArchive_SchemaFollowsMigrationFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	require.NoError(t, pc.Archive.Ping(ctx, 5*time.Second))

	conn, err := pgx.Connect(ctx, pc.DSN())
	require.NoError(t, err)
	defer conn.Close(ctx)

	var indexes int
	err = conn.QueryRow(ctx,
		`SELECT count(*) FROM pg_indexes
		 WHERE tablename = 'game_results' AND indexname = ANY($1)`,
		[]string{"idx_game_results_ended_at", "idx_game_results_room_code"},
	).Scan(&indexes)
	require.NoError(t, err)
	assert.Equal(t, 2, indexes)

	var archiveConns int
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT count(*) FROM pg_stat_activity WHERE application_name = $1`,
		postgres.ApplicationName,
	).Scan(&archiveConns))
	assert.Positive(t, archiveConns)
}
