package game

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/store"
)

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	seq   int
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.done
	t.done = true
	return pending
}

// Advance moves time forward, running due callbacks in order on the
// calling goroutine. Timers armed by callbacks fire too when due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		live := c.timers[:0]
		for _, t := range c.timers {
			if !t.done {
				live = append(live, t)
			}
		}
		c.timers = live
		sort.Slice(c.timers, func(i, j int) bool {
			if !c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].at.Before(c.timers[j].at)
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		if len(c.timers) == 0 || c.timers[0].at.After(end) {
			c.now = end
			c.mu.Unlock()
			return
		}
		next := c.timers[0]
		next.done = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

type note struct {
	message  string
	severity notify.Severity
}

type fakeLedger struct {
	mu   sync.Mutex
	adds []int
}

func (l *fakeLedger) Add(_ context.Context, delta int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adds = append(l.adds, delta)
	total := 0
	for _, a := range l.adds {
		total += a
	}
	return total
}

func (l *fakeLedger) Adds() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.adds...)
}

type duelRecord struct {
	won        bool
	bestStreak int
}

type fakeStats struct {
	mu    sync.Mutex
	duels []duelRecord
}

func (s *fakeStats) RecordDuel(_ context.Context, won bool, bestStreak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duels = append(s.duels, duelRecord{won: won, bestStreak: bestStreak})
}

type fakeInventory struct {
	mu     sync.Mutex
	counts map[string]int
}

func (i *fakeInventory) Count(id string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[id]
}

func (i *fakeInventory) Consume(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.counts[id] <= 0 {
		return false
	}
	i.counts[id]--
	return true
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	ledger *fakeLedger
	stats  *fakeStats
	inv    *fakeInventory

	mu     sync.Mutex
	notes  []note
	events []Event
}

func newHarness(t *testing.T, id string, st store.Store, opts ...func(*Session)) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(),
		ledger: &fakeLedger{},
		stats:  &fakeStats{},
		inv:    &fakeInventory{counts: map[string]int{}},
	}
	rules := DefaultRules()
	sess := Session{
		Player:    internal.Player{Id: id, Name: "Name " + id, Grade: "8"},
		Store:     st,
		Ledger:    h.ledger,
		Stats:     h.stats,
		Inventory: h.inv,
		Notifier: notify.Func(func(message string, severity notify.Severity) {
			h.mu.Lock()
			h.notes = append(h.notes, note{message: message, severity: severity})
			h.mu.Unlock()
		}),
		Clock:  h.clock,
		Rand:   rand.New(rand.NewSource(42)),
		Rules:  &rules,
		Logger: zerolog.Nop(),
		Observer: func(ev Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		},
	}
	for _, opt := range opts {
		opt(&sess)
	}
	h.engine = New(sess)
	t.Cleanup(h.engine.Close)
	return h
}

func withBotAccuracy(p float64) func(*Session) {
	return func(s *Session) { s.Rules.BotAccuracy = p }
}

func withSeed(seed int64) func(*Session) {
	return func(s *Session) { s.Rand = rand.New(rand.NewSource(seed)) }
}

// connect opens a hub session for id that disconnects with the test.
func connect(t *testing.T, hub *store.Hub, id string) *store.Session {
	t.Helper()
	s := hub.Connect(id)
	t.Cleanup(s.Disconnect)
	return s
}

func (h *harness) answer(t *testing.T) string {
	t.Helper()
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	require.NotNil(t, h.engine.state.CurrentQuestion, "no question on screen")
	return strconv.Itoa(h.engine.state.CurrentQuestion.Answer)
}

func (h *harness) wrongAnswer(t *testing.T) string {
	t.Helper()
	n, err := strconv.Atoi(h.answer(t))
	require.NoError(t, err)
	return strconv.Itoa(n + 1)
}

func (h *harness) Notes() []note {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]note(nil), h.notes...)
}

func (h *harness) Events(kind EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

// result returns the most recent duel result.
func (h *harness) result(t *testing.T) Result {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.Events(EventDuelEnded)) > 0 },
		3*time.Second, 5*time.Millisecond, "duel has not ended")
	ended := h.Events(EventDuelEnded)
	return *ended[len(ended)-1].Result
}

func (h *harness) waitPhase(t *testing.T, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return h.engine.State().Phase == phase },
		3*time.Second, 5*time.Millisecond, "phase never became %s (now %s)", phase, h.engine.State().Phase)
}
