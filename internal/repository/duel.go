package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
)

const DefaultRecentLimit = 20

type DuelRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewDuelRepository(pool *pgxpool.Pool, logger zerolog.Logger) *DuelRepository {
	return &DuelRepository{
		pool:   pool,
		logger: logger.With().Str("component", "duels").Logger(),
	}
}

func (r *DuelRepository) Enabled() bool {
	return r.pool != nil
}

// Archive records a finished duel. A room code is reused across duels, so
// (room_code, created_at) identifies one; repeats are ignored.
func (r *DuelRepository) Archive(ctx context.Context, code string, rec internal.RoomRecord) (bool, error) {
	if r.pool == nil {
		return false, ErrDisabled
	}
	id, err := gonanoid.New()
	if err != nil {
		return false, fmt.Errorf("failed to generate nanoid: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO duel_history (
			id, room_code, host_id, guest_id, host_name, guest_name,
			host_score, guest_score, host_lives, guest_lives, rounds, private, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (room_code, created_at) DO NOTHING`,
		id, code, rec.HostID, rec.GuestID, rec.HostName, rec.GuestName,
		rec.HostScore, rec.GuestScore, livesOrZero(rec.HostLives), livesOrZero(rec.GuestLives),
		rec.Round, rec.Private, rec.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("room", code).Msg("failed to archive duel")
		return false, fmt.Errorf("archive duel %s: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Recent returns the latest archived duels, newest first.
func (r *DuelRepository) Recent(ctx context.Context, limit int) ([]internal.DuelSummary, error) {
	if r.pool == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_code, host_id, guest_id, host_name, guest_name,
			host_score, guest_score, host_lives, guest_lives, rounds, private,
			created_at, finished_at
		FROM duel_history
		ORDER BY finished_at DESC, created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent duels: %w", err)
	}

	duels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (internal.DuelSummary, error) {
		var d internal.DuelSummary
		err := row.Scan(&d.ID, &d.RoomCode, &d.HostID, &d.GuestID, &d.HostName, &d.GuestName,
			&d.HostScore, &d.GuestScore, &d.HostLives, &d.GuestLives, &d.Rounds, &d.Private,
			&d.CreatedAt, &d.FinishedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan duels: %w", err)
	}
	return duels, nil
}

func livesOrZero(lives *int) int {
	if lives == nil {
		return 0
	}
	return *lives
}
