package game

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/shop"
	"github.com/scythe504/mathquest-backend/internal/store"
)

var (
	ErrInvalidRoomCode = errors.New("please enter a 4-character code")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomUnavailable = errors.New("room is no longer available")
	ErrNoActiveDuel    = errors.New("no duel in progress")
	ErrUnknownItem     = shop.ErrUnknownItem
	ErrItemUnavailable = errors.New("you do not have this item")
	ErrSearchCancelled = errors.New("search cancelled")
	ErrNoRoomCode      = errors.New("could not allocate a room code")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Clock schedules callbacks. Callbacks may run on any goroutine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is backed by the time package.
var SystemClock Clock = systemClock{}

type PointsLedger interface {
	Add(ctx context.Context, delta int) int
}

type StatsRecorder interface {
	RecordDuel(ctx context.Context, won bool, bestStreak int)
}

type Inventory interface {
	Count(id string) int
	Consume(id string) bool
}

// Rules holds every tunable timing and probability of a duel.
type Rules struct {
	RoundSeconds        int
	TimePotionSeconds   int
	AdvanceDelay        time.Duration
	FinalAdvanceDelay   time.Duration
	RoomCleanupDelay    time.Duration
	MatchmakingTimeout  time.Duration
	OfflineMatchDelay   time.Duration
	OfflinePrivateDelay time.Duration
	BotMinDelay         time.Duration
	BotMaxDelay         time.Duration
	BotAccuracy         float64
	StoreTimeout        time.Duration
}

func DefaultRules() Rules {
	return Rules{
		RoundSeconds:        internal.RoundSeconds,
		TimePotionSeconds:   internal.TimePotionSeconds,
		AdvanceDelay:        internal.AdvanceDelay,
		FinalAdvanceDelay:   internal.FinalAdvanceDelay,
		RoomCleanupDelay:    internal.RoomCleanupDelay,
		MatchmakingTimeout:  internal.MatchmakingTimeout,
		OfflineMatchDelay:   internal.OfflineMatchDelay,
		OfflinePrivateDelay: internal.OfflinePrivateDelay,
		BotMinDelay:         2 * time.Second,
		BotMaxDelay:         6 * time.Second,
		BotAccuracy:         0.7,
		StoreTimeout:        5 * time.Second,
	}
}

// Session carries everything an Engine talks to. Zero-valued optional
// fields are replaced with defaults by New.
type Session struct {
	Player    internal.Player
	Store     store.Store
	Ledger    PointsLedger
	Stats     StatsRecorder
	Inventory Inventory
	Notifier  notify.Notifier
	Clock     Clock
	Rand      *rand.Rand
	Rules     *Rules
	Logger    zerolog.Logger
	// Observer receives engine events after the engine lock is released.
	// It may be called from several goroutines.
	Observer func(Event)
}

type noLedger struct{}

func (noLedger) Add(context.Context, int) int { return 0 }

type noInventory struct{}

func (noInventory) Count(string) int { return 0 }

func (noInventory) Consume(string) bool { return false }

// =============================================================================
// EVENTS & SNAPSHOTS
// =============================================================================

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseSearching     Phase = "searching"
	PhaseHosting       Phase = "hosting"
	PhaseJoining       Phase = "joining"
	PhaseStarting      Phase = "starting"
	PhaseRoundActive   Phase = "round_active"
	PhaseRoundResolved Phase = "round_resolved"
	PhaseEnded         Phase = "ended"
)

func (p Phase) inDuel() bool {
	return p == PhaseStarting || p == PhaseRoundActive || p == PhaseRoundResolved
}

type EventType string

const (
	EventSearching   EventType = "searching"
	EventHosting     EventType = "hosting"
	EventJoining     EventType = "joining"
	EventDuelStarted EventType = "duel_started"
	EventQuestion    EventType = "question"
	EventTick        EventType = "tick"
	EventFeedback    EventType = "feedback"
	EventScores      EventType = "scores"
	EventItemUsed    EventType = "item_used"
	EventDuelEnded   EventType = "duel_ended"
	EventLobby       EventType = "lobby"
)

type Event struct {
	Type     EventType
	State    Snapshot
	RoomCode string
	Item     string
	Feedback *Resolution
	Result   *Result
}

// Snapshot is a read-only copy of the duel for rendering. The current
// answer is not included.
type Snapshot struct {
	Phase            Phase
	RoomID           string
	IsHost           bool
	IsBot            bool
	PlayerName       string
	OpponentName     string
	Round            int
	Question         string
	TimeLeft         int
	Answered         bool
	PlayerScore      int
	OpponentScore    int
	PlayerLives      int
	OpponentLives    int
	PlayerStreak     int
	PlayerBestStreak int
	PlayerCorrect    int
	DoublePoints     bool
	Shield           bool
}

// DuelState is one client's view of the current duel.
type DuelState struct {
	RoomID       string
	IsHost       bool
	IsBot        bool
	OpponentID   string
	OpponentName string

	Round            int
	PlayerScore      int
	OpponentScore    int
	PlayerLives      int
	OpponentLives    int
	PlayerStreak     int
	PlayerBestStreak int
	PlayerCorrect    int

	CurrentQuestion  *internal.Question
	Answered         bool
	BuffDoublePoints bool
	BuffShield       bool
	TimeLeft         int
}

// resetCounters starts a fresh duel against the same opponent.
func (s *DuelState) resetCounters(roundSeconds int) {
	s.Round = 0
	s.PlayerScore = 0
	s.OpponentScore = 0
	s.PlayerLives = internal.StartingLives
	s.OpponentLives = internal.StartingLives
	s.PlayerStreak = 0
	s.PlayerBestStreak = 0
	s.PlayerCorrect = 0
	s.CurrentQuestion = nil
	s.Answered = false
	s.BuffDoublePoints = false
	s.BuffShield = false
	s.TimeLeft = roundSeconds
}

func (s *DuelState) someoneOut() bool {
	return s.PlayerLives <= 0 || s.OpponentLives <= 0
}
