package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/store"
)

type fakeAccounts struct {
	mu      sync.Mutex
	enabled bool
	rows    map[string]internal.Account
}

func (f *fakeAccounts) Enabled() bool { return f.enabled }

func (f *fakeAccounts) Upsert(_ context.Context, key string, acct internal.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[key] = acct
	return nil
}

func (f *fakeAccounts) List(context.Context) (map[string]internal.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]internal.Account, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAccounts) get(key string) (internal.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[key]
	return a, ok
}

type fakeDuels struct {
	mu      sync.Mutex
	enabled bool
	calls   []string
}

func (f *fakeDuels) Enabled() bool { return f.enabled }

func (f *fakeDuels) Archive(_ context.Context, code string, _ internal.RoomRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, code)
	return true, nil
}

func (f *fakeDuels) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newMirror(t *testing.T, enabled bool) (*Mirror, *fakeAccounts, *fakeDuels, *store.Hub) {
	t.Helper()
	accounts := &fakeAccounts{enabled: enabled, rows: map[string]internal.Account{}}
	duels := &fakeDuels{enabled: enabled}
	m := NewMirror(accounts, duels, zerolog.Nop())

	hub := store.NewHub(zerolog.Nop())
	hub.OnWrite(m.Hook)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, accounts, duels, hub
}

func TestMirrorPersistsAccounts(t *testing.T) {
	_, accounts, _, hub := newMirror(t, true)
	sess := hub.Connect("p1")
	defer sess.Disconnect()
	ctx := context.Background()

	require.NoError(t, sess.Update(ctx, internal.AccountPath("Ada"), store.Doc{"points": 50, "name": "Ada"}))
	require.NoError(t, sess.Update(ctx, internal.AccountPath("Ada"), store.Doc{"points": 75, "name": "Ada"}))

	require.Eventually(t, func() bool {
		a, ok := accounts.get("ada")
		return ok && a.Points == 75
	}, 2*time.Second, 5*time.Millisecond)
	a, _ := accounts.get("ada")
	assert.Equal(t, "Ada", a.Name)
}

func TestMirrorArchivesFinishedDuelsOnce(t *testing.T) {
	_, _, duels, hub := newMirror(t, true)
	sess := hub.Connect("p1")
	defer sess.Disconnect()
	ctx := context.Background()
	p := internal.DuelPath("ABCD")

	require.NoError(t, sess.Set(ctx, p, store.Doc{"hostId": "p1", "status": "playing", "createdAt": 10}))
	require.NoError(t, sess.Update(ctx, p, store.Doc{"status": "finished"}))
	require.NoError(t, sess.Update(ctx, p, store.Doc{"guestScore": 40}))

	require.Eventually(t, func() bool { return len(duels.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Same code, new duel.
	require.NoError(t, sess.Set(ctx, p, store.Doc{"hostId": "p1", "status": "finished", "createdAt": 11}))
	require.Eventually(t, func() bool { return len(duels.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ABCD", "ABCD"}, duels.Calls())
}

func TestMirrorForgetsRemovedRooms(t *testing.T) {
	m, _, duels, hub := newMirror(t, true)
	sess := hub.Connect("p1")
	defer sess.Disconnect()
	ctx := context.Background()

	archived := func() int {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.archived)
	}

	require.NoError(t, sess.Set(ctx, internal.DuelPath("ABCD"), store.Doc{"hostId": "p1", "status": "finished", "createdAt": 10}))
	require.NoError(t, sess.Set(ctx, internal.DuelPath("ABCE"), store.Doc{"hostId": "p1", "status": "finished", "createdAt": 10}))
	require.Eventually(t, func() bool { return len(duels.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, archived())

	require.NoError(t, sess.Remove(ctx, internal.DuelPath("ABCD")))
	assert.Equal(t, 1, archived())

	require.NoError(t, sess.Set(ctx, internal.DuelPath("ABCD"), store.Doc{"hostId": "p1", "status": "finished", "createdAt": 10}))
	require.Eventually(t, func() bool { return len(duels.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, archived())
}

func TestMirrorIgnoresWritesWhenDisabled(t *testing.T) {
	m, _, duels, hub := newMirror(t, false)
	sess := hub.Connect("p1")
	defer sess.Disconnect()
	ctx := context.Background()

	require.NoError(t, sess.Update(ctx, internal.AccountPath("Ada"), store.Doc{"points": 5}))
	require.NoError(t, sess.Set(ctx, internal.DuelPath("ABCD"), store.Doc{"status": "finished"}))

	assert.Zero(t, m.Pending())
	assert.Empty(t, duels.Calls())

	n, err := m.Restore(ctx, hub)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMirrorRestoreSeedsHub(t *testing.T) {
	m, accounts, _, hub := newMirror(t, true)
	accounts.rows["ada"] = internal.Account{Name: "Ada", Points: 120}

	n, err := m.Restore(context.Background(), hub)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess := hub.Connect("p1")
	defer sess.Disconnect()
	doc, err := sess.Get(context.Background(), internal.AccountPath("Ada"))
	require.NoError(t, err)
	var acct internal.Account
	require.NoError(t, store.Decode(doc, &acct))
	assert.Equal(t, internal.Account{Name: "Ada", Points: 120}, acct)
	assert.Zero(t, m.Pending(), "seeding must not echo back into the queue")
}
