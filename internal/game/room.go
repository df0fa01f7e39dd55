package game

import (
	"context"
	"fmt"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/store"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

// =============================================================================
// ROOM SYNCHRONIZATION
// =============================================================================

// listenToRoom makes sub the engine's room subscription and consumes it on
// its own goroutine until it is closed.
func (e *Engine) listenToRoom(sub *store.Subscription) {
	e.closeRoomSub()
	e.roomSub = sub
	go func() {
		for ev := range sub.Events() {
			e.locked(func() { e.consumeRoom(sub, ev) })
		}
	}()
}

func (e *Engine) consumeRoom(sub *store.Subscription, ev store.Event) {
	if e.roomSub != sub {
		return
	}
	if ev.Doc == nil {
		e.roomGone()
		return
	}

	var rec internal.RoomRecord
	if err := store.Decode(ev.Doc, &rec); err != nil {
		e.log.Warn().Err(err).Str("room", e.state.RoomID).Msg("[consumeRoom] undecodable room record")
		return
	}
	e.applyRoom(rec)
}

// applyRoom reconciles the local duel with the shared record. Each side
// adopts only the opponent's fields; its own are ground truth.
func (e *Engine) applyRoom(rec internal.RoomRecord) {
	switch e.phase {
	case PhaseHosting:
		if rec.HasGuest() && (rec.Status == internal.StatusReady || rec.Status == internal.StatusPlaying) {
			e.onGuestArrival(rec)
		}
		return
	case PhaseJoining:
		if rec.Status != internal.StatusPlaying && rec.Status != internal.StatusFinished {
			return
		}
		e.state.OpponentID = rec.HostID
		e.state.OpponentName = rec.HostName
		e.startDuel()
	}
	if !e.phase.inDuel() {
		return
	}

	// 1. Opponent score and lives
	changed := false
	if score := rec.OpponentScore(e.state.IsHost); score != e.state.OpponentScore {
		e.state.OpponentScore = score
		changed = true
	}
	if lives, ok := rec.OpponentLives(e.state.IsHost); ok && lives < e.state.OpponentLives {
		e.state.OpponentLives = lives
		changed = true
	}
	if name := rec.OpponentName(e.state.IsHost); name != "" && e.state.OpponentName == "" {
		e.state.OpponentName = name
	}
	if changed {
		e.emit(Event{Type: EventScores})
	}

	// 2. Host finished the duel
	if rec.Status == internal.StatusFinished {
		e.endDuel()
		return
	}

	// 3. Guest follows the host's rounds, never backwards
	if !e.state.IsHost && rec.HasNewQuestion(e.state.Round) {
		gen := e.timers.reset()
		e.state.Round = rec.Round
		e.presentQuestion(*rec.CurrentQuestion, gen)
	}
}

// onGuestArrival starts the host's side once a guest occupies the room.
func (e *Engine) onGuestArrival(rec internal.RoomRecord) {
	e.state.OpponentID = rec.GuestID
	e.state.OpponentName = rec.GuestName
	e.log.Info().Str("room", e.state.RoomID).Str("guest", rec.GuestID).Msg("[onGuestArrival] guest joined")

	if rec.Status == internal.StatusReady {
		e.updateRoom(store.Doc{"status": string(internal.StatusPlaying)})
	}
	e.startDuel()
}

// roomGone handles the shared record disappearing under us.
func (e *Engine) roomGone() {
	switch {
	case e.phase == PhaseJoining:
		e.notify("Room was closed by the host.", notify.Warning)
		e.toLobby()
	case e.phase == PhaseHosting:
		e.toLobby()
	case e.phase.inDuel():
		e.log.Info().Str("room", e.state.RoomID).Msg("[roomGone] room removed mid-duel")
		e.endDuel()
	}
}

// updateRoom publishes fields this side owns. The write only applies while
// the record still names us, so a deleted room is never recreated.
func (e *Engine) updateRoom(fields store.Doc) {
	path := internal.DuelPath(e.state.RoomID)
	owner := "guestId"
	if e.state.IsHost {
		owner = "hostId"
	}
	me := e.sess.Player.Id

	e.later(func() {
		ctx, cancel := e.storeCtx()
		defer cancel()
		ok, err := e.store.CompareAndUpdate(ctx, path, owner, me, fields)
		if err != nil {
			e.log.Warn().Err(err).Str("path", path).Msg("[updateRoom] write failed")
			return
		}
		if !ok {
			e.log.Debug().Str("path", path).Msg("[updateRoom] room no longer ours")
		}
	})
}

// createRoomRecord writes a new room under a fresh code, retrying on
// collision.
func (e *Engine) createRoomRecord(ctx context.Context, build func(code string) internal.RoomRecord) (string, error) {
	for range internal.RoomCodeAttempts {
		e.mu.Lock()
		code := utils.GenerateRoomCode(e.rng)
		e.mu.Unlock()

		path := internal.DuelPath(code)
		existing, err := e.store.Get(ctx, path)
		if err != nil {
			return "", fmt.Errorf("check room %s: %w", code, err)
		}
		if existing != nil {
			e.log.Debug().Str("room", code).Msg("[createRoomRecord] code taken, retrying")
			continue
		}

		doc, err := store.Encode(build(code))
		if err != nil {
			return "", fmt.Errorf("encode room %s: %w", code, err)
		}
		if err := e.store.Set(ctx, path, doc); err != nil {
			return "", fmt.Errorf("create room %s: %w", code, err)
		}
		return code, nil
	}
	return "", ErrNoRoomCode
}

func (e *Engine) newRoom(private bool) internal.RoomRecord {
	return internal.RoomRecord{
		HostID:     e.sess.Player.Id,
		HostName:   e.sess.Player.DisplayName(),
		Status:     internal.StatusWaiting,
		HostLives:  internal.IntPtr(internal.StartingLives),
		GuestLives: internal.IntPtr(internal.StartingLives),
		Private:    private,
		CreatedAt:  e.clock.Now().UnixMilli(),
	}
}
