package game

import (
	"strconv"
	"strings"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/quiz"
	"github.com/scythe504/mathquest-backend/internal/store"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

// =============================================================================
// GAME FLOW - ROUND MANAGEMENT
// =============================================================================

// playBot starts a local duel against a named bot.
func (e *Engine) playBot() {
	e.teardown()
	e.state = DuelState{
		IsBot:        true,
		OpponentName: utils.RandomBotName(e.rng),
	}
	e.startDuel()
}

// startDuel resets the counters against the configured opponent. The side
// that drives rounds opens round 1 immediately; a networked guest waits for
// the host's first question.
func (e *Engine) startDuel() {
	e.timers.reset()
	e.endSearch()

	// 1. Fresh counters
	e.state.resetCounters(e.rules.RoundSeconds)
	e.phase = PhaseStarting
	e.lastVsBot = e.state.IsBot

	e.log.Info().
		Str("room", e.state.RoomID).
		Bool("host", e.state.IsHost).
		Bool("bot", e.state.IsBot).
		Str("opponent", e.state.OpponentName).
		Msg("[startDuel] duel started")
	e.emit(Event{Type: EventDuelStarted})

	// 2. Host publishes round zero
	if e.state.IsHost && e.networked() {
		e.updateRoom(internal.ResetFields())
	}

	// 3. Driving side opens round 1
	if e.drivesRounds() {
		e.nextRound()
	}
}

func (e *Engine) nextRound() {
	if e.state.someoneOut() {
		e.endDuel()
		return
	}

	gen := e.timers.reset()
	e.state.Round++
	difficulty := quiz.DifficultyForRound(e.state.Round)
	q := e.gen.Generate(difficulty, quiz.ParseGrade(e.sess.Player.Grade))

	e.log.Debug().
		Int("round", e.state.Round).
		Str("difficulty", string(difficulty)).
		Msg("[nextRound] question generated")

	if e.state.IsHost && e.networked() {
		e.updateRoom(internal.QuestionFields(e.state.Round, q))
	}
	e.presentQuestion(q, gen)
}

// presentQuestion opens the answer window for q.
func (e *Engine) presentQuestion(q internal.Question, gen uint64) {
	e.state.CurrentQuestion = &q
	e.state.Answered = false
	e.state.TimeLeft = e.rules.RoundSeconds
	e.phase = PhaseRoundActive
	e.emit(Event{Type: EventQuestion})

	e.startCountdown(gen)
	if e.state.IsBot {
		e.scheduleBotAnswer(gen)
	}
}

func (e *Engine) submitAnswer(answer string, timeout bool) bool {
	if e.phase != PhaseRoundActive || e.state.Answered || e.state.CurrentQuestion == nil {
		return false
	}
	e.state.Answered = true
	e.timers.stopCountdown()
	e.timers.stopBot()

	correct := false
	if !timeout {
		if n, err := strconv.Atoi(strings.TrimSpace(answer)); err == nil {
			correct = n == e.state.CurrentQuestion.Answer
		}
	}

	res := resolveAnswer(&e.state, correct, timeout)
	e.phase = PhaseRoundResolved

	e.log.Debug().
		Int("round", res.Round).
		Bool("correct", res.Correct).
		Bool("timeout", res.Timeout).
		Int("score", e.state.PlayerScore).
		Int("lives", e.state.PlayerLives).
		Msg("[submitAnswer] answer resolved")
	e.emit(Event{Type: EventFeedback, Feedback: &res})

	if e.networked() {
		e.updateRoom(internal.SideFields(e.state.IsHost, e.state.PlayerScore, e.state.PlayerLives))
	}
	if e.drivesRounds() {
		e.scheduleAdvance()
	}
	return true
}

// scheduleAdvance opens the next round after the feedback pause, shortened
// when the duel is about to end.
func (e *Engine) scheduleAdvance() {
	delay := e.rules.AdvanceDelay
	if e.state.someoneOut() {
		delay = e.rules.FinalAdvanceDelay
	}

	gen := e.timers.gen
	e.timers.advance = e.clock.AfterFunc(delay, func() {
		e.locked(func() {
			if !e.timers.current(gen) || e.phase != PhaseRoundResolved {
				return
			}
			e.timers.advance = nil
			e.nextRound()
		})
	})
}

// endDuel settles the duel once. The host marks the room finished and
// deletes it after the cleanup delay.
func (e *Engine) endDuel() {
	if !e.phase.inDuel() {
		return
	}
	e.timers.reset()
	e.phase = PhaseEnded

	if e.state.IsHost && e.networked() {
		code := e.state.RoomID
		e.updateRoom(store.Doc{"status": string(internal.StatusFinished)})
		e.clock.AfterFunc(e.rules.RoomCleanupDelay, func() {
			ctx, cancel := e.storeCtx()
			defer cancel()
			if err := e.store.Remove(ctx, internal.DuelPath(code)); err != nil {
				e.log.Warn().Err(err).Str("room", code).Msg("[endDuel] room cleanup failed")
			}
		})
	}
	e.closeRoomSub()

	result := ComputeResult(e.state, e.sess.Player.DisplayName())
	e.log.Info().
		Str("room", e.state.RoomID).
		Str("outcome", string(result.Outcome)).
		Str("reason", result.Reason).
		Int("rounds", result.Rounds).
		Int("reward", result.Reward).
		Msg("[endDuel] duel finished")
	e.emit(Event{Type: EventDuelEnded, Result: &result})

	e.later(func() {
		ctx, cancel := e.storeCtx()
		defer cancel()
		e.sess.Ledger.Add(ctx, result.Reward)
		if e.sess.Stats != nil {
			e.sess.Stats.RecordDuel(ctx, result.Outcome == OutcomeVictory, result.BestStreak)
		}
	})
}
