package game

import (
	"time"
)

// scheduleBotAnswer arms the bot's answer for the round identified by gen.
// A manual submission resolves the round and cancels it.
func (e *Engine) scheduleBotAnswer(gen uint64) {
	delay := e.rules.BotMinDelay
	if span := e.rules.BotMaxDelay - e.rules.BotMinDelay; span > 0 {
		delay += time.Duration(e.rng.Int63n(int64(span)))
	}

	e.timers.bot = e.clock.AfterFunc(delay, func() {
		e.locked(func() { e.botAnswer(gen) })
	})
}

func (e *Engine) botAnswer(gen uint64) {
	if !e.timers.current(gen) || !e.state.IsBot || !e.phase.inDuel() {
		return
	}
	e.timers.bot = nil
	if e.state.someoneOut() {
		return
	}

	if e.rng.Float64() < e.rules.BotAccuracy {
		e.state.OpponentScore += BotCorrectPoints
	} else {
		e.state.OpponentLives--
	}
	e.emit(Event{Type: EventScores})
}
