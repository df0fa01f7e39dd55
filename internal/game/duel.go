// Package game runs one player's side of a math duel: matchmaking, the
// round loop, answer resolution, items and the bot opponent.
package game

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/quiz"
	"github.com/scythe504/mathquest-backend/internal/shop"
	"github.com/scythe504/mathquest-backend/internal/store"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

// Engine owns a single player's duel. Every state change, whether it comes
// from a caller, a timer or a room subscription, runs under mu.
type Engine struct {
	mu sync.Mutex

	sess     Session
	rules    Rules
	store    store.Store
	clock    Clock
	rng      *rand.Rand
	gen      *quiz.Generator
	notifier notify.Notifier
	log      zerolog.Logger

	phase     Phase
	state     DuelState
	timers    roundTimers
	lastVsBot bool

	// Search and room wiring
	search    Timer
	searchGen uint64
	inPool    bool
	roomSub   *store.Subscription
	poolSub   *store.Subscription
	entrySub  *store.Subscription

	// Collected under mu, delivered once it is released
	outbox []Event
	after  []func()
}

func New(sess Session) *Engine {
	if sess.Store == nil {
		sess.Store = store.Offline{}
	}
	if sess.Ledger == nil {
		sess.Ledger = noLedger{}
	}
	if sess.Inventory == nil {
		sess.Inventory = noInventory{}
	}
	if sess.Notifier == nil {
		sess.Notifier = notify.Func(func(string, notify.Severity) {})
	}
	if sess.Clock == nil {
		sess.Clock = SystemClock
	}
	if sess.Rand == nil {
		sess.Rand = utils.NewRand()
	}
	rules := DefaultRules()
	if sess.Rules != nil {
		rules = *sess.Rules
	}

	return &Engine{
		sess:     sess,
		rules:    rules,
		store:    sess.Store,
		clock:    sess.Clock,
		rng:      sess.Rand,
		gen:      quiz.NewGenerator(sess.Rand),
		notifier: sess.Notifier,
		log:      sess.Logger.With().Str("component", "duel").Str("player", sess.Player.Id).Logger(),
		phase:    PhaseIdle,
	}
}

// =============================================================================
// LOCKING & DISPATCH
// =============================================================================

// locked runs fn under the engine lock. Events and store writes queued by fn
// are delivered in order after the lock is released.
func (e *Engine) locked(fn func()) {
	e.mu.Lock()
	fn()
	events, after := e.outbox, e.after
	e.outbox, e.after = nil, nil
	e.mu.Unlock()

	if obs := e.sess.Observer; obs != nil {
		for _, ev := range events {
			obs(ev)
		}
	}
	for _, f := range after {
		f()
	}
}

func (e *Engine) emit(ev Event) {
	ev.State = e.snapshot()
	if ev.RoomCode == "" {
		ev.RoomCode = e.state.RoomID
	}
	e.outbox = append(e.outbox, ev)
}

func (e *Engine) later(f func()) {
	e.after = append(e.after, f)
}

func (e *Engine) notify(message string, severity notify.Severity) {
	e.later(func() { e.notifier.Notify(message, severity) })
}

func (e *Engine) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.rules.StoreTimeout)
}

// networked reports whether the duel is mirrored through a shared room.
func (e *Engine) networked() bool {
	return e.state.RoomID != "" && !e.state.IsBot && e.store.Connected()
}

// drivesRounds reports whether this side generates questions and advances
// rounds. A peer that lost its store keeps playing locally.
func (e *Engine) drivesRounds() bool {
	return e.state.IsBot || e.state.IsHost || !e.store.Connected()
}

func (e *Engine) snapshot() Snapshot {
	s := e.state
	snap := Snapshot{
		Phase:            e.phase,
		RoomID:           s.RoomID,
		IsHost:           s.IsHost,
		IsBot:            s.IsBot,
		PlayerName:       e.sess.Player.DisplayName(),
		OpponentName:     s.OpponentName,
		Round:            s.Round,
		TimeLeft:         s.TimeLeft,
		Answered:         s.Answered,
		PlayerScore:      s.PlayerScore,
		OpponentScore:    s.OpponentScore,
		PlayerLives:      s.PlayerLives,
		OpponentLives:    s.OpponentLives,
		PlayerStreak:     s.PlayerStreak,
		PlayerBestStreak: s.PlayerBestStreak,
		PlayerCorrect:    s.PlayerCorrect,
		DoublePoints:     s.BuffDoublePoints,
		Shield:           s.BuffShield,
	}
	if s.CurrentQuestion != nil {
		snap.Question = s.CurrentQuestion.Text
	}
	return snap
}

// =============================================================================
// PUBLIC SURFACE
// =============================================================================

func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// StartDuel starts a fresh duel against the configured opponent. With no
// opponent configured it plays the bot.
func (e *Engine) StartDuel() {
	e.locked(func() {
		if e.state.RoomID == "" && !e.state.IsBot {
			e.playBot()
			return
		}
		e.startDuel()
	})
}

// SubmitAnswer resolves the current round. It returns false when the round
// was already answered or no round is active.
func (e *Engine) SubmitAnswer(answer string, timeout bool) bool {
	var ok bool
	e.locked(func() { ok = e.submitAnswer(answer, timeout) })
	return ok
}

func (e *Engine) UseItem(id string) error {
	var err error
	e.locked(func() { err = e.useItem(id) })
	return err
}

func (e *Engine) PlayBot() {
	e.locked(e.playBot)
}

// Rematch replays the bot after a bot duel, otherwise returns to the lobby.
func (e *Engine) Rematch() {
	e.locked(func() {
		if e.phase != PhaseEnded {
			return
		}
		if e.lastVsBot {
			e.playBot()
			return
		}
		e.toLobby()
	})
}

// CancelSearch abandons any search, room or duel and returns to the lobby.
func (e *Engine) CancelSearch() {
	e.locked(e.toLobby)
}

func (e *Engine) Close() {
	e.locked(func() {
		e.teardown()
		e.phase = PhaseIdle
	})
}

// =============================================================================
// ITEMS
// =============================================================================

func (e *Engine) useItem(id string) error {
	if _, ok := shop.Lookup(id); !ok {
		return ErrUnknownItem
	}
	if !e.phase.inDuel() {
		return ErrNoActiveDuel
	}
	if !e.sess.Inventory.Consume(id) {
		e.notify("You do not have this item.", notify.Warning)
		return ErrItemUnavailable
	}

	switch id {
	case shop.TimePotion:
		e.state.TimeLeft += e.rules.TimePotionSeconds
		e.notify("+5 seconds added!", notify.Success)
	case shop.DoublePoints:
		e.state.BuffDoublePoints = true
		e.notify("Double points active for next correct answer!", notify.Success)
	case shop.Shield:
		e.state.BuffShield = true
		e.notify("Shield will block life loss once!", notify.Success)
	}

	e.log.Debug().Str("item", id).Int("round", e.state.Round).Msg("[useItem] item applied")
	e.emit(Event{Type: EventItemUsed, Item: id})
	return nil
}

// =============================================================================
// TEARDOWN
// =============================================================================

// endSearch stops the search timer, closes pool subscriptions and leaves
// the matchmaking pool. Callbacks of the old search become no-ops.
func (e *Engine) endSearch() {
	e.stopSearch()
	e.searchGen++
	if e.poolSub != nil {
		_ = e.poolSub.Close()
		e.poolSub = nil
	}
	if e.entrySub != nil {
		_ = e.entrySub.Close()
		e.entrySub = nil
	}
	if e.inPool {
		e.inPool = false
		path := internal.MatchmakingPath(e.sess.Player.Id)
		e.later(func() { e.removeOwned(path) })
	}
}

func (e *Engine) closeRoomSub() {
	if e.roomSub != nil {
		_ = e.roomSub.Close()
		e.roomSub = nil
	}
}

// teardown releases every timer, subscription and shared record this side
// still holds and clears the duel state.
func (e *Engine) teardown() {
	e.timers.reset()
	e.endSearch()
	e.closeRoomSub()

	code := e.state.RoomID
	live := e.phase == PhaseHosting || e.phase == PhaseJoining || e.phase.inDuel()
	if code != "" && !e.state.IsBot && live {
		e.later(func() { e.removeOwned(internal.DuelPath(code)) })
	}
	e.state = DuelState{}
}

func (e *Engine) toLobby() {
	e.teardown()
	e.phase = PhaseIdle
	e.emit(Event{Type: EventLobby})
}

// removeOwned deletes a record this side registered and drops its
// remove-on-disconnect registration.
func (e *Engine) removeOwned(path string) {
	ctx, cancel := e.storeCtx()
	defer cancel()
	if err := e.store.Remove(ctx, path); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("[removeOwned] remove failed")
	}
	if err := e.store.CancelOnDisconnect(ctx, path); err != nil {
		e.log.Debug().Err(err).Str("path", path).Msg("[removeOwned] cancel on-disconnect failed")
	}
}
