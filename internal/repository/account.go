package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
)

// ErrDisabled is returned by every repository built without a pool.
var ErrDisabled = errors.New("persistence disabled")

type AccountRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewAccountRepository(pool *pgxpool.Pool, logger zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		pool:   pool,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
}

func (r *AccountRepository) Enabled() bool {
	return r.pool != nil
}

// Upsert stores the account under key, the record key of accounts/<key>.
func (r *AccountRepository) Upsert(ctx context.Context, key string, acct internal.Account) error {
	if r.pool == nil {
		return ErrDisabled
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (name_key, name, points, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name_key) DO UPDATE
		SET name = EXCLUDED.name, points = EXCLUDED.points, updated_at = now()`,
		key, acct.Name, acct.Points)
	if err != nil {
		r.logger.Error().Err(err).Str("account", key).Msg("failed to upsert account")
		return fmt.Errorf("upsert account %s: %w", key, err)
	}
	return nil
}

// List returns every stored account keyed like the record tree.
func (r *AccountRepository) List(ctx context.Context) (map[string]internal.Account, error) {
	if r.pool == nil {
		return nil, ErrDisabled
	}
	rows, err := r.pool.Query(ctx, `SELECT name_key, name, points FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]internal.Account)
	for rows.Next() {
		var key string
		var acct internal.Account
		if err := rows.Scan(&key, &acct.Name, &acct.Points); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out[key] = acct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}
