// Package ledger tracks the player's point balance and duel statistics.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/localstore"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/store"
)

type KV interface {
	Save(key string, v any)
	Load(key string, dst any) bool
}

type Stats struct {
	DuelsPlayed   int `json:"duelsPlayed"`
	DuelsWon      int `json:"duelsWon"`
	AllTimeStreak int `json:"allTimeStreak"`
}

// Ledger keeps the balance locally and mirrors it to accounts/<name> while
// connected.
type Ledger struct {
	mu       sync.Mutex
	name     string
	store    store.Store
	kv       KV
	notifier notify.Notifier
	logger   zerolog.Logger

	balance int
	stats   Stats
}

func New(name string, st store.Store, kv KV, notifier notify.Notifier, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		name:     name,
		store:    st,
		kv:       kv,
		notifier: notifier,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
	kv.Load(localstore.KeyPoints, &l.balance)
	kv.Load(localstore.KeyStats, &l.stats)
	return l
}

// Sync adopts the account balance stored on the relay, if any.
func (l *Ledger) Sync(ctx context.Context) error {
	if !l.store.Connected() || l.name == "" {
		return nil
	}
	doc, err := l.store.Get(ctx, internal.AccountPath(l.name))
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if doc == nil {
		return nil
	}
	var acct internal.Account
	if err := store.Decode(doc, &acct); err != nil {
		return err
	}

	l.mu.Lock()
	l.balance = acct.Points
	l.mu.Unlock()
	l.kv.Save(localstore.KeyPoints, acct.Points)
	return nil
}

func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Add applies delta, notifies the player and publishes the new balance.
func (l *Ledger) Add(ctx context.Context, delta int) int {
	l.mu.Lock()
	l.balance += delta
	balance := l.balance
	l.mu.Unlock()

	switch {
	case delta > 0:
		l.notifier.Notify(fmt.Sprintf("+%d points added!", delta), notify.Success)
	case delta < 0:
		l.notifier.Notify(fmt.Sprintf("%d points spent.", -delta), notify.Info)
	}

	l.kv.Save(localstore.KeyPoints, balance)
	l.publish(ctx, store.Doc{"points": balance, "name": l.name})
	return balance
}

// Spend deducts amount when the balance covers it.
func (l *Ledger) Spend(ctx context.Context, amount int) bool {
	l.mu.Lock()
	ok := l.balance >= amount
	l.mu.Unlock()
	if !ok {
		return false
	}
	l.Add(ctx, -amount)
	return true
}

// RecordDuel updates duel statistics after a duel ends.
func (l *Ledger) RecordDuel(ctx context.Context, won bool, bestStreak int) {
	l.mu.Lock()
	l.stats.DuelsPlayed++
	if won {
		l.stats.DuelsWon++
	}
	l.stats.AllTimeStreak = max(l.stats.AllTimeStreak, bestStreak)
	stats := l.stats
	l.mu.Unlock()

	l.kv.Save(localstore.KeyStats, stats)
	l.publish(ctx, store.Doc{"stats": stats})
}

func (l *Ledger) publish(ctx context.Context, fields store.Doc) {
	if !l.store.Connected() || l.name == "" {
		return
	}
	if err := l.store.Update(ctx, internal.AccountPath(l.name), fields); err != nil {
		l.logger.Warn().Err(err).Str("account", l.name).Msg("[publish] account update failed")
	}
}
