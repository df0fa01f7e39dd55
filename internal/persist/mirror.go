// Package persist copies durable records from the relay's hub into Postgres.
package persist

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/store"
)

const flushTimeout = 5 * time.Second

type AccountStore interface {
	Enabled() bool
	Upsert(ctx context.Context, key string, acct internal.Account) error
	List(ctx context.Context) (map[string]internal.Account, error)
}

type DuelArchive interface {
	Enabled() bool
	Archive(ctx context.Context, code string, rec internal.RoomRecord) (bool, error)
}

type job struct {
	key     string
	account *internal.Account
	duel    *internal.RoomRecord
}

// Mirror queues writes seen by the hub and applies them on one worker, so
// relay clients never wait on the database.
type Mirror struct {
	accounts AccountStore
	duels    DuelArchive
	logger   zerolog.Logger

	mu       sync.Mutex
	queue    []job
	archived map[string]struct{}
	wake     chan struct{}
}

func NewMirror(accounts AccountStore, duels DuelArchive, logger zerolog.Logger) *Mirror {
	return &Mirror{
		accounts: accounts,
		duels:    duels,
		logger:   logger.With().Str("component", "mirror").Logger(),
		archived: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Hook is a store.WriteHook.
func (m *Mirror) Hook(p string, doc store.Doc) {
	collection, key, err := store.SplitPath(p)
	if err != nil {
		return
	}
	if doc == nil {
		if collection == internal.DuelsCollection {
			m.forget(key)
		}
		return
	}

	switch collection {
	case internal.AccountsCollection:
		if !m.accounts.Enabled() {
			return
		}
		var acct internal.Account
		if err := store.Decode(doc, &acct); err != nil {
			m.logger.Warn().Err(err).Str("account", key).Msg("undecodable account")
			return
		}
		if acct.Name == "" {
			acct.Name = key
		}
		m.enqueue(job{key: key, account: &acct})

	case internal.DuelsCollection:
		if !m.duels.Enabled() {
			return
		}
		var rec internal.RoomRecord
		if err := store.Decode(doc, &rec); err != nil || rec.Status != internal.StatusFinished {
			return
		}
		id := key + "@" + strconv.FormatInt(rec.CreatedAt, 10)
		m.mu.Lock()
		_, seen := m.archived[id]
		m.archived[id] = struct{}{}
		m.mu.Unlock()
		if seen {
			return
		}
		m.enqueue(job{key: key, duel: &rec})
	}
}

// forget drops the archive marks of a removed room.
func (m *Mirror) forget(code string) {
	prefix := code + "@"
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.archived {
		if strings.HasPrefix(id, prefix) {
			delete(m.archived, id)
		}
	}
}

func (m *Mirror) enqueue(j job) {
	m.mu.Lock()
	m.queue = append(m.queue, j)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pending reports queued jobs not yet applied.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Run applies queued jobs until ctx is cancelled, then flushes what is left
// within a short deadline.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		m.drain(ctx)
		select {
		case <-m.wake:
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			m.drain(flushCtx)
			cancel()
			return nil
		}
	}
}

func (m *Mirror) drain(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		j := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if ctx.Err() != nil {
			m.logger.Warn().Str("key", j.key).Msg("dropping write, context done")
			continue
		}
		m.apply(ctx, j)
	}
}

func (m *Mirror) apply(ctx context.Context, j job) {
	switch {
	case j.account != nil:
		if err := m.accounts.Upsert(ctx, j.key, *j.account); err != nil {
			m.logger.Warn().Err(err).Str("account", j.key).Msg("account not persisted")
		}
	case j.duel != nil:
		inserted, err := m.duels.Archive(ctx, j.key, *j.duel)
		if err != nil {
			m.logger.Warn().Err(err).Str("room", j.key).Msg("duel not archived")
			return
		}
		if inserted {
			m.logger.Info().Str("room", j.key).Int("rounds", j.duel.Round).Msg("duel archived")
		}
	}
}

// Restore seeds stored accounts into the hub without notifying hooks.
func (m *Mirror) Restore(ctx context.Context, hub *store.Hub) (int, error) {
	if !m.accounts.Enabled() {
		return 0, nil
	}
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore accounts: %w", err)
	}
	for key, acct := range accounts {
		doc, err := store.Encode(acct)
		if err != nil {
			return 0, err
		}
		if err := hub.Seed(path.Join(internal.AccountsCollection, key), doc); err != nil {
			return 0, fmt.Errorf("seed account %s: %w", key, err)
		}
	}
	m.logger.Info().Int("accounts", len(accounts)).Msg("accounts restored")
	return len(accounts), nil
}
