package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/shop"
	"github.com/scythe504/mathquest-backend/internal/store"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

func TestBotDuelOpensRoundOne(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.engine.PlayBot()

	s := h.engine.State()
	assert.Equal(t, PhaseRoundActive, s.Phase)
	assert.True(t, s.IsBot)
	assert.Contains(t, utils.BotNames, s.OpponentName)
	assert.Equal(t, 1, s.Round)
	assert.NotEmpty(t, s.Question)
	assert.Equal(t, 10, s.TimeLeft)
	assert.Equal(t, 3, s.PlayerLives)
	assert.Equal(t, 3, s.OpponentLives)
	assert.Len(t, h.Events(EventDuelStarted), 1)
	assert.Len(t, h.Events(EventQuestion), 1)
}

func TestStartDuelWithoutOpponentPlaysBot(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.engine.StartDuel()
	assert.True(t, h.engine.State().IsBot)
	assert.Equal(t, PhaseRoundActive, h.engine.State().Phase)
}

func TestSubmitAnswerOnlyOncePerRound(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.engine.PlayBot()

	answer := h.answer(t)
	require.True(t, h.engine.SubmitAnswer(answer, false))
	assert.False(t, h.engine.SubmitAnswer(answer, false))
	assert.False(t, h.engine.SubmitAnswer("", true))

	s := h.engine.State()
	assert.Equal(t, PhaseRoundResolved, s.Phase)
	assert.True(t, s.Answered)
	assert.Equal(t, 20, s.PlayerScore)
	assert.Equal(t, 1, s.PlayerStreak)
	assert.Len(t, h.Events(EventFeedback), 1)
}

func TestSubmitAnswerRejectsWithoutRound(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	assert.False(t, h.engine.SubmitAnswer("4", false))
	assert.Empty(t, h.Events(EventFeedback))
}

func TestWrongAndMalformedAnswers(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	require.True(t, h.engine.SubmitAnswer(h.wrongAnswer(t), false))
	assert.Equal(t, 2, h.engine.State().PlayerLives)

	h.clock.Advance(1500 * time.Millisecond)
	require.True(t, h.engine.SubmitAnswer("  twelve ", false))
	assert.Equal(t, 1, h.engine.State().PlayerLives)
	assert.Equal(t, 0, h.engine.State().PlayerStreak)
}

func TestCountdownTimesOutRound(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	h.clock.Advance(9 * time.Second)
	s := h.engine.State()
	assert.Equal(t, 1, s.TimeLeft)
	assert.Equal(t, PhaseRoundActive, s.Phase)
	assert.Equal(t, 3, s.PlayerLives)

	h.clock.Advance(time.Second)
	s = h.engine.State()
	assert.Equal(t, PhaseRoundResolved, s.Phase)
	assert.Equal(t, 2, s.PlayerLives)

	feedback := h.Events(EventFeedback)
	require.Len(t, feedback, 1)
	assert.True(t, feedback[0].Feedback.Timeout)
	assert.True(t, feedback[0].Feedback.LifeLost)
}

func TestAdvanceWaitsForFeedbackPause(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.engine.PlayBot()
	require.True(t, h.engine.SubmitAnswer(h.answer(t), false))

	h.clock.Advance(1499 * time.Millisecond)
	assert.Equal(t, 1, h.engine.State().Round)

	h.clock.Advance(time.Millisecond)
	s := h.engine.State()
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, PhaseRoundActive, s.Phase)
	assert.False(t, s.Answered)
	assert.Equal(t, 10, s.TimeLeft)
}

func TestStreakBonusOnThirdCorrect(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.engine.PlayBot()

	for range 3 {
		require.True(t, h.engine.SubmitAnswer(h.answer(t), false))
		h.clock.Advance(1500 * time.Millisecond)
	}

	s := h.engine.State()
	assert.Equal(t, 65, s.PlayerScore)
	assert.Equal(t, 3, s.PlayerBestStreak)
	assert.Equal(t, 4, s.Round)
}

func TestItems(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.inv.counts = map[string]int{shop.TimePotion: 1, shop.DoublePoints: 1, shop.Shield: 1}
	h.engine.PlayBot()

	t.Run("time potion extends the clock", func(t *testing.T) {
		require.NoError(t, h.engine.UseItem(shop.TimePotion))
		assert.Equal(t, 15, h.engine.State().TimeLeft)
		assert.Equal(t, 0, h.inv.Count(shop.TimePotion))
		assert.Contains(t, h.Notes(), note{"+5 seconds added!", notify.Success})
	})

	t.Run("empty inventory is rejected", func(t *testing.T) {
		assert.ErrorIs(t, h.engine.UseItem(shop.TimePotion), ErrItemUnavailable)
		assert.Contains(t, h.Notes(), note{"You do not have this item.", notify.Warning})
		assert.Equal(t, 15, h.engine.State().TimeLeft)
	})

	t.Run("double points doubles the next correct answer", func(t *testing.T) {
		require.NoError(t, h.engine.UseItem(shop.DoublePoints))
		assert.True(t, h.engine.State().DoublePoints)
		require.True(t, h.engine.SubmitAnswer(h.answer(t), false))
		s := h.engine.State()
		assert.Equal(t, 40, s.PlayerScore)
		assert.False(t, s.DoublePoints)
	})

	t.Run("shield absorbs a wrong answer", func(t *testing.T) {
		h.clock.Advance(1500 * time.Millisecond)
		require.NoError(t, h.engine.UseItem(shop.Shield))
		require.True(t, h.engine.SubmitAnswer(h.wrongAnswer(t), false))
		s := h.engine.State()
		assert.Equal(t, 3, s.PlayerLives)
		assert.Equal(t, 1, s.PlayerStreak)
		assert.False(t, s.Shield)
	})

	assert.Len(t, h.Events(EventItemUsed), 3)
}

func TestUseItemValidation(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{})
	h.inv.counts = map[string]int{shop.Shield: 1}

	assert.ErrorIs(t, h.engine.UseItem("bogus"), ErrUnknownItem)
	assert.ErrorIs(t, h.engine.UseItem(shop.Shield), ErrNoActiveDuel)
	assert.Equal(t, 1, h.inv.Count(shop.Shield), "nothing consumed outside a duel")
	assert.Empty(t, h.Notes())
}

func TestBotDuelDefeat(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	for range 3 {
		h.clock.Advance(10 * time.Second)
		h.clock.Advance(1500 * time.Millisecond)
	}

	s := h.engine.State()
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.Equal(t, 0, s.PlayerLives)
	assert.Equal(t, 60, s.OpponentScore)

	r := h.result(t)
	assert.Equal(t, OutcomeDefeat, r.Outcome)
	assert.Equal(t, "You ran out of lives", r.Reason)
	assert.Equal(t, RewardLoss, r.Reward)
	assert.Equal(t, 3, r.Rounds)
	assert.Equal(t, 0, r.Accuracy)
	assert.True(t, r.VsBot)

	assert.Equal(t, []int{RewardLoss}, h.ledger.Adds())
	assert.Equal(t, []duelRecord{{won: false, bestStreak: 0}}, h.stats.duels)
}

func TestBotDuelVictory(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(0))
	h.engine.PlayBot()

	for round := 1; round <= 3; round++ {
		// Let the bot answer before we do.
		h.clock.Advance(6 * time.Second)
		assert.Equal(t, 3-round, h.engine.State().OpponentLives)
		require.True(t, h.engine.SubmitAnswer(h.answer(t), false))
		h.clock.Advance(1500 * time.Millisecond)
	}

	assert.Equal(t, PhaseEnded, h.engine.State().Phase)
	r := h.result(t)
	assert.Equal(t, OutcomeVictory, r.Outcome)
	assert.Equal(t, "Opponent ran out of lives", r.Reason)
	assert.Equal(t, RewardWin, r.Reward)
	assert.Equal(t, 100, r.Accuracy)
	assert.Equal(t, 3, r.BestStreak)
	assert.Equal(t, 65, r.PlayerScore)
	assert.Equal(t, []int{RewardWin}, h.ledger.Adds())
	assert.Equal(t, []duelRecord{{won: true, bestStreak: 3}}, h.stats.duels)
}

func TestFinalAdvanceIsShorter(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()
	for range 2 {
		require.True(t, h.engine.SubmitAnswer(h.wrongAnswer(t), false))
		h.clock.Advance(1500 * time.Millisecond)
	}

	require.True(t, h.engine.SubmitAnswer(h.wrongAnswer(t), false))
	h.clock.Advance(899 * time.Millisecond)
	assert.Equal(t, PhaseRoundResolved, h.engine.State().Phase)
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, PhaseEnded, h.engine.State().Phase)
}

func TestDuelEndsOnce(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()
	for range 3 {
		h.clock.Advance(10 * time.Second)
		h.clock.Advance(1500 * time.Millisecond)
	}
	h.engine.locked(h.engine.endDuel)
	h.clock.Advance(time.Minute)

	assert.Len(t, h.Events(EventDuelEnded), 1)
	assert.Len(t, h.ledger.Adds(), 1)
}

func TestBotSkipsWhenSomeoneIsOut(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	h.engine.locked(func() {
		h.engine.state.PlayerLives = 0
		h.engine.botAnswer(h.engine.timers.gen)
	})
	assert.Equal(t, 0, h.engine.State().OpponentScore)
}

func TestStaleTimersAreIgnored(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	var stale uint64
	h.engine.locked(func() { stale = h.engine.timers.gen })
	require.True(t, h.engine.SubmitAnswer(h.answer(t), false))
	h.clock.Advance(1500 * time.Millisecond)

	h.engine.locked(func() {
		h.engine.botAnswer(stale)
		h.engine.tick(stale)
	})
	s := h.engine.State()
	assert.Equal(t, 0, s.OpponentScore)
	assert.Equal(t, 10, s.TimeLeft)
}

func TestSubmitCancelsBotAnswer(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()

	var bot Timer
	h.engine.locked(func() { bot = h.engine.timers.bot })
	require.NotNil(t, bot)

	require.True(t, h.engine.SubmitAnswer(h.answer(t), false))
	h.engine.locked(func() {
		assert.Nil(t, h.engine.timers.bot)
		assert.Nil(t, h.engine.timers.countdown)
	})
	assert.False(t, bot.Stop(), "bot timer should already be stopped")

	h.clock.Advance(1499 * time.Millisecond)
	s := h.engine.State()
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, 0, s.OpponentScore)
}

func TestRematch(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.Rematch()
	assert.Equal(t, PhaseIdle, h.engine.State().Phase, "rematch needs a finished duel")

	h.engine.PlayBot()
	for range 3 {
		h.clock.Advance(10 * time.Second)
		h.clock.Advance(1500 * time.Millisecond)
	}
	require.Equal(t, PhaseEnded, h.engine.State().Phase)

	h.engine.Rematch()
	s := h.engine.State()
	assert.True(t, s.IsBot)
	assert.Equal(t, PhaseRoundActive, s.Phase)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, 3, s.PlayerLives)
	assert.Equal(t, 0, s.OpponentScore)
}

func TestCancelStopsEveryTimer(t *testing.T) {
	h := newHarness(t, "player_a", store.Offline{}, withBotAccuracy(1))
	h.engine.PlayBot()
	h.engine.CancelSearch()

	s := h.engine.State()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.IsBot)

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.Events(EventFeedback))
	assert.Empty(t, h.Events(EventScores))
	assert.Len(t, h.Events(EventLobby), 1)
}
