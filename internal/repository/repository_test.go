package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/database"
)

// startPostgres runs a throwaway database and returns a migrated pool.
// Tests skip when Docker is unavailable.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mathquest"),
		postgres.WithUsername("mathquest"),
		postgres.WithPassword("mathquest"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(pool, zerolog.Nop()))
	return pool
}

func TestDisabledRepositories(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccountRepository(nil, zerolog.Nop())
	duels := NewDuelRepository(nil, zerolog.Nop())

	assert.False(t, accounts.Enabled())
	assert.False(t, duels.Enabled())

	assert.ErrorIs(t, accounts.Upsert(ctx, "ada", internal.Account{Name: "Ada"}), ErrDisabled)
	_, err := accounts.List(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = duels.Archive(ctx, "ABCD", internal.RoomRecord{})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = duels.Recent(ctx, 5)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAccountUpsertAndList(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewAccountRepository(pool, zerolog.Nop())

	require.NoError(t, repo.Upsert(ctx, "ada", internal.Account{Name: "Ada", Points: 40}))
	require.NoError(t, repo.Upsert(ctx, "bob", internal.Account{Name: "Bob", Points: 10}))
	require.NoError(t, repo.Upsert(ctx, "ada", internal.Account{Name: "Ada", Points: 90}))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]internal.Account{
		"ada": {Name: "Ada", Points: 90},
		"bob": {Name: "Bob", Points: 10},
	}, got)
}

func TestDuelArchiveIsIdempotent(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := NewDuelRepository(pool, zerolog.Nop())

	rec := internal.RoomRecord{
		HostID:     "p1",
		GuestID:    "p2",
		HostName:   "Ada",
		GuestName:  "Bob",
		Status:     internal.StatusFinished,
		Round:      7,
		HostScore:  120,
		GuestScore: 60,
		HostLives:  internal.IntPtr(2),
		GuestLives: internal.IntPtr(0),
		CreatedAt:  1_700_000_000_000,
	}

	inserted, err := repo.Archive(ctx, "ABCD", rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Archive(ctx, "ABCD", rec)
	require.NoError(t, err)
	assert.False(t, inserted, "same room and creation time is one duel")

	rec.CreatedAt++
	rec.Private = true
	inserted, err = repo.Archive(ctx, "ABCD", rec)
	require.NoError(t, err)
	assert.True(t, inserted, "a reused room code is a new duel")

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, d := range recent {
		assert.Equal(t, "ABCD", d.RoomCode)
		assert.Equal(t, 120, d.HostScore)
		assert.Equal(t, 2, d.HostLives)
		assert.Equal(t, 0, d.GuestLives)
		assert.Equal(t, 7, d.Rounds)
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.FinishedAt.IsZero())
	}

	limited, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
