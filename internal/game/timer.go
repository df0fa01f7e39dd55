package game

import (
	"time"
)

// =============================================================================
// TIMER MANAGEMENT
// =============================================================================

// roundTimers owns every per-round handle. reset stops them all and bumps
// the generation so callbacks already in flight become no-ops.
type roundTimers struct {
	gen       uint64
	countdown Timer
	bot       Timer
	advance   Timer
}

func (t *roundTimers) reset() uint64 {
	for _, h := range []Timer{t.countdown, t.bot, t.advance} {
		if h != nil {
			h.Stop()
		}
	}
	t.countdown, t.bot, t.advance = nil, nil, nil
	t.gen++
	return t.gen
}

func (t *roundTimers) current(gen uint64) bool {
	return t.gen == gen
}

func (t *roundTimers) stopCountdown() {
	if t.countdown != nil {
		t.countdown.Stop()
		t.countdown = nil
	}
}

func (t *roundTimers) stopBot() {
	if t.bot != nil {
		t.bot.Stop()
		t.bot = nil
	}
}

// startCountdown schedules the next one-second tick of the answer clock.
func (e *Engine) startCountdown(gen uint64) {
	e.timers.stopCountdown()
	e.timers.countdown = e.clock.AfterFunc(time.Second, func() {
		e.locked(func() { e.tick(gen) })
	})
}

func (e *Engine) tick(gen uint64) {
	if !e.timers.current(gen) || e.phase != PhaseRoundActive || e.state.Answered {
		return
	}
	e.timers.countdown = nil

	e.state.TimeLeft--
	e.emit(Event{Type: EventTick})

	if e.state.TimeLeft <= 0 {
		e.log.Debug().Int("round", e.state.Round).Msg("[tick] time expired")
		e.submitAnswer("", true)
		return
	}
	e.startCountdown(gen)
}

// stopSearch cancels the pending matchmaking or offline fallback timer.
func (e *Engine) stopSearch() {
	if e.search != nil {
		e.search.Stop()
		e.search = nil
	}
}

// afterSearch schedules fn for as long as the current search and phase
// last. Any later search or transition turns the callback into a no-op.
func (e *Engine) afterSearch(d time.Duration, fn func()) {
	e.stopSearch()
	gen, phase := e.searchGen, e.phase
	e.search = e.clock.AfterFunc(d, func() {
		e.locked(func() {
			if e.searchGen != gen || e.phase != phase {
				return
			}
			e.search = nil
			fn()
		})
	})
}
