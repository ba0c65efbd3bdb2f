// Package repository tests run against a real PostgreSQL instance via
// testcontainers-go.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chat-lottery-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema. Must stay in sync with the
// migrations in cmd/bot/main.go.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reputation_offset BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS lotteries (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			creator BIGINT NOT NULL,
			bet BIGINT NOT NULL,
			player_limit INT,
			players BIGINT[] NOT NULL DEFAULT '{}',
			winner BIGINT,
			start_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS streak_games (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			creator BIGINT NOT NULL,
			bet BIGINT NOT NULL,
			joins BIGINT[] NOT NULL DEFAULT '{}',
			pot BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type VARCHAR(100) NOT NULL,
			payload BYTEA,
			execute_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// ParticipantRepository Tests
// ============================================================================

func TestParticipantRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ctx := context.Background()

	p, err := repo.Create(ctx, 12345, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), p.ID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, int64(0), p.ReputationOffset, "offset must start at zero")
	assert.False(t, p.JoinedAt.IsZero())

	got, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestParticipantRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ctx := context.Background()

	p, created, err := repo.GetOrCreate(ctx, 12345, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12345), p.ID)

	p, created, err = repo.GetOrCreate(ctx, 12345, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(12345), p.ID)
}

func TestParticipantRepository_UpdateUsername(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "oldname")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateUsername(ctx, 12345, "newname"))

	p, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "newname", p.Username)

	err = repo.UpdateUsername(ctx, 99999, "name")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestParticipantRepository_GetTop(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	// All three join at the same time, so ordering is decided by offsets.
	_, _ = repo.Create(ctx, 1, "alice")
	_, _ = repo.Create(ctx, 2, "bob")
	_, _ = repo.Create(ctx, 3, "carol")

	require.NoError(t, ledger.ApplyMulti(ctx, []BalanceUpdate{
		{ParticipantID: 1, Amount: 30, Type: model.EntryTypeAdminAdjust},
		{ParticipantID: 2, Amount: -10, Type: model.EntryTypeAdminAdjust},
		{ParticipantID: 3, Amount: 50, Type: model.EntryTypeAdminAdjust},
	}))

	top, err := repo.GetTop(ctx, 10, 50, 2)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, int64(3), top[0].ID)
	assert.Equal(t, int64(1), top[1].ID)
	assert.Equal(t, int64(2), top[2].ID)
}

func TestParticipantRepository_GetManyByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ctx := context.Background()

	_, _ = repo.Create(ctx, 1, "alice")
	_, _ = repo.Create(ctx, 2, "bob")

	got, err := repo.GetManyByID(ctx, []int64{1, 2, 99})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[1].Username)
	assert.Equal(t, "bob", got[2].Username)
	assert.NotContains(t, got, int64(99))
}

func TestParticipantRepository_Exists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewParticipantRepository(pool)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Create(ctx, 12345, "alice")
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, 12345)
	require.NoError(t, err)
	assert.True(t, exists)
}

// ============================================================================
// LedgerRepository Tests
// ============================================================================

func TestLedgerRepository_ApplyMulti(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	participants := NewParticipantRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	_, _ = participants.Create(ctx, 1, "winner")
	_, _ = participants.Create(ctx, 2, "loser1")
	_, _ = participants.Create(ctx, 3, "loser2")

	desc := "lottery settlement"
	err := ledger.ApplyMulti(ctx, []BalanceUpdate{
		{ParticipantID: 1, Amount: 10, Type: model.EntryTypeLotteryWin, Description: &desc},
		{ParticipantID: 2, Amount: -5, Type: model.EntryTypeLotteryLoss, Description: &desc},
		{ParticipantID: 3, Amount: -5, Type: model.EntryTypeLotteryLoss, Description: &desc},
	})
	require.NoError(t, err)

	p1, _ := participants.GetByID(ctx, 1)
	p2, _ := participants.GetByID(ctx, 2)
	p3, _ := participants.GetByID(ctx, 3)
	assert.Equal(t, int64(10), p1.ReputationOffset)
	assert.Equal(t, int64(-5), p2.ReputationOffset)
	assert.Equal(t, int64(-5), p3.ReputationOffset)

	history, err := ledger.GetHistory(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(10), history[0].Amount)
	assert.Equal(t, model.EntryTypeLotteryWin, history[0].Type)
	require.NotNil(t, history[0].Description)
	assert.Equal(t, desc, *history[0].Description)
}

func TestLedgerRepository_ApplyMulti_RollsBackOnMissingParticipant(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	participants := NewParticipantRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()

	_, _ = participants.Create(ctx, 1, "alice")

	err := ledger.ApplyMulti(ctx, []BalanceUpdate{
		{ParticipantID: 1, Amount: 10, Type: model.EntryTypeLotteryWin},
		{ParticipantID: 99, Amount: -10, Type: model.EntryTypeLotteryLoss},
	})
	require.ErrorIs(t, err, ErrParticipantNotFound)

	p, err := participants.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.ReputationOffset, "partial settlement must roll back")

	history, err := ledger.GetHistory(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history, "no history rows may survive a rollback")
}

func TestLedgerRepository_ApplyMulti_Empty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedgerRepository(pool)
	err := ledger.ApplyMulti(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyUpdate)
}

// ============================================================================
// LotteryRepository Tests
// ============================================================================

func TestLotteryRepository_PutGetDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewLotteryRepository(pool)
	ctx := context.Background()

	limit := 4
	start := time.Now().UTC().Truncate(time.Second)
	l := &model.Lottery{
		ID:          "game-1",
		ChatID:      500,
		Creator:     1,
		Bet:         -10,
		PlayerLimit: &limit,
		Players:     []int64{1},
		StartTime:   &start,
	}
	require.NoError(t, repo.Put(ctx, l))

	got, err := repo.Get(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), got.Bet)
	require.NotNil(t, got.PlayerLimit)
	assert.Equal(t, 4, *got.PlayerLimit)
	assert.Equal(t, []int64{1}, got.Players)
	require.NotNil(t, got.StartTime)
	assert.WithinDuration(t, start, *got.StartTime, time.Second)

	require.NoError(t, repo.Delete(ctx, "game-1"))
	_, err = repo.Get(ctx, "game-1")
	assert.ErrorIs(t, err, ErrLotteryNotFound)

	// Deleting again is a no-op, not an error.
	assert.NoError(t, repo.Delete(ctx, "game-1"))
}

func TestLotteryRepository_UpdatePlayers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewLotteryRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &model.Lottery{
		ID: "game-1", ChatID: 500, Creator: 1, Bet: 10, Players: []int64{1},
	}))

	// Matching expected count succeeds.
	require.NoError(t, repo.UpdatePlayers(ctx, "game-1", []int64{1, 2}, 1))

	got, err := repo.Get(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.Players)

	// Stale expected count conflicts.
	err = repo.UpdatePlayers(ctx, "game-1", []int64{1, 3}, 1)
	assert.ErrorIs(t, err, ErrPlayersConflict)

	// A deleted game reports not-found, not a conflict.
	require.NoError(t, repo.Delete(ctx, "game-1"))
	err = repo.UpdatePlayers(ctx, "game-1", []int64{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrLotteryNotFound)
}

func TestLotteryRepository_ListAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewLotteryRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &model.Lottery{ID: "a", ChatID: 1, Creator: 1, Bet: 5, Players: []int64{1}}))
	require.NoError(t, repo.Put(ctx, &model.Lottery{ID: "b", ChatID: 2, Creator: 2, Bet: 5, Players: []int64{2}}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// ============================================================================
// StreakRepository Tests
// ============================================================================

func TestStreakRepository_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStreakRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &model.StreakGame{
		ID: "streak-1", ChatID: 500, Creator: 1, Bet: 10, Joins: []int64{1}, Pot: 10,
	}))

	got, err := repo.Get(ctx, "streak-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.Joins)
	assert.Equal(t, int64(10), got.Pot)

	require.NoError(t, repo.UpdateJoins(ctx, "streak-1", []int64{1, 2}, 20, 1))

	got, err = repo.Get(ctx, "streak-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.Joins)
	assert.Equal(t, int64(20), got.Pot)

	err = repo.UpdateJoins(ctx, "streak-1", []int64{1, 3}, 20, 1)
	assert.ErrorIs(t, err, ErrStreakConflict)

	require.NoError(t, repo.Delete(ctx, "streak-1"))
	_, err = repo.Get(ctx, "streak-1")
	assert.ErrorIs(t, err, ErrStreakNotFound)
}

// ============================================================================
// JobRepository Tests
// ============================================================================

func TestJobRepository_ListDue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewJobRepository(pool)
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, at time.Time) *model.Job {
		return &model.Job{
			ID:        id,
			Type:      "resolve",
			Payload:   []byte(`{}`),
			ExecuteAt: at,
			Status:    model.JobStatusPending,
		}
	}

	require.NoError(t, repo.Create(ctx, mk("late", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, mk("early", now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, mk("future", now.Add(time.Hour))))

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID, "due jobs come back oldest deadline first")
	assert.Equal(t, "late", due[1].ID)
}

func TestJobRepository_ClaimOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewJobRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Job{
		ID:        "job-1",
		Type:      "resolve",
		Payload:   []byte(`{}`),
		ExecuteAt: time.Now(),
		Status:    model.JobStatusPending,
	}))

	claimed, err := repo.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim on the same job must lose.
	claimed, err = repo.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestJobRepository_FailedLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewJobRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Job{
		ID:        "job-1",
		Type:      "resolve",
		Payload:   []byte(`{}`),
		ExecuteAt: time.Now().Add(-time.Minute),
		Status:    model.JobStatusPending,
	}))

	_, err := repo.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "job-1"))

	// Failed jobs are invisible to the dispatcher...
	due, err := repo.ListDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// ...but visible to the operator.
	failed, err := repo.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "job-1", failed[0].ID)
	assert.Equal(t, model.JobStatusFailed, failed[0].Status)

	require.NoError(t, repo.Delete(ctx, "job-1"))
	failed, err = repo.ListFailed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}
