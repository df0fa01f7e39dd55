package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/store"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

// =============================================================================
// GAME FLOW - MATCHMAKING & LOBBY
// =============================================================================

const (
	noPlayersNotice   = "No players found. Playing vs Computer!"
	needServerNotice  = "Multiplayer requires a server connection. Playing vs Computer!"
	roomGoneNotice    = "Room no longer available"
	matchRetryBackoff = time.Second
)

// beginSearch abandons whatever the engine was doing and enters phase.
// The returned token identifies this search.
func (e *Engine) beginSearch(phase Phase, ev EventType) uint64 {
	e.teardown()
	e.phase = phase
	e.emit(Event{Type: ev})
	return e.searchGen
}

func (e *Engine) searchActive(token uint64) bool {
	if e.searchGen != token {
		return false
	}
	return e.phase == PhaseSearching || e.phase == PhaseHosting || e.phase == PhaseJoining
}

func (e *Engine) isSearchActive(token uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searchActive(token)
}

// degrade falls back to the bot after a store failure during a search.
func (e *Engine) degrade(token uint64, err error) {
	e.log.Warn().Err(err).Msg("[degrade] store unavailable, falling back to bot")
	e.locked(func() {
		if !e.searchActive(token) {
			return
		}
		e.notify(noPlayersNotice, notify.Warning)
		e.playBot()
	})
}

// FindMatch enters the matchmaking pool. Without a store connection a bot
// duel starts after a short delay; online the search falls back to the bot
// after the matchmaking timeout.
func (e *Engine) FindMatch(ctx context.Context) error {
	var token uint64
	offline := !e.store.Connected()
	e.locked(func() {
		token = e.beginSearch(PhaseSearching, EventSearching)
		if offline {
			e.afterSearch(e.rules.OfflineMatchDelay, func() {
				e.notify(noPlayersNotice, notify.Warning)
				e.playBot()
			})
		}
	})
	if offline {
		return nil
	}

	me := e.sess.Player.Id
	entryPath := internal.MatchmakingPath(me)

	// 1. Listen before writing so no claim is missed
	poolSub, err := e.store.WatchChildren(ctx, internal.MatchmakingCollection)
	if err != nil {
		e.degrade(token, err)
		return nil
	}
	entrySub, err := e.store.Watch(ctx, entryPath)
	if err != nil {
		_ = poolSub.Close()
		e.degrade(token, err)
		return nil
	}

	// 2. Join the pool
	entry, err := store.Encode(e.sess.Player.PoolEntry(e.clock.Now().UnixMilli()))
	if err == nil {
		err = e.store.Set(ctx, entryPath, entry)
	}
	if err == nil {
		err = e.store.OnDisconnectRemove(ctx, entryPath)
	}
	var pool map[string]store.Doc
	if err == nil {
		pool, err = e.store.List(ctx, internal.MatchmakingCollection)
	}
	if err != nil {
		_ = poolSub.Close()
		_ = entrySub.Close()
		e.removeOwned(entryPath)
		e.degrade(token, err)
		return nil
	}

	// 3. Arm the timeout and start watching
	stale := false
	e.locked(func() {
		if !e.searchActive(token) {
			stale = true
			return
		}
		e.inPool = true
		e.poolSub, e.entrySub = poolSub, entrySub
		e.afterSearch(e.rules.MatchmakingTimeout, func() { e.searchTimedOut(token) })
	})
	if stale {
		_ = poolSub.Close()
		_ = entrySub.Close()
		e.removeOwned(entryPath)
		return ErrSearchCancelled
	}

	e.log.Info().Int("pool", len(pool)).Msg("[FindMatch] joined matchmaking pool")
	go e.watchClaims(token, entrySub)
	go e.matchLoop(token, pool, poolSub)
	return nil
}

// matchLoop tries the initial pool snapshot and then every newcomer, one
// pairing attempt at a time.
func (e *Engine) matchLoop(token uint64, pool map[string]store.Doc, sub *store.Subscription) {
	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if e.tryPair(token, id, pool[id]) {
			return
		}
	}

	for ev := range sub.Events() {
		if ev.Kind == store.EventChildRemoved || ev.Doc == nil {
			continue
		}
		if e.tryPair(token, ev.Key, ev.Doc) {
			return
		}
		if !e.isSearchActive(token) {
			return
		}
	}
}

// watchClaims waits for another player to claim our pool entry.
func (e *Engine) watchClaims(token uint64, sub *store.Subscription) {
	me := e.sess.Player.Id
	for ev := range sub.Events() {
		if ev.Doc == nil {
			continue
		}
		var entry internal.PoolEntry
		if err := store.Decode(ev.Doc, &entry); err != nil {
			continue
		}
		if entry.MatchedBy == "" || entry.MatchedBy == me || entry.RoomID == "" {
			continue
		}
		e.acceptClaim(token, entry)
		return
	}
}

// tryPair hosts a duel with candidate. Only the player with the smaller id
// initiates, and both pool entries are claimed by compare-and-update, so a
// pair ends up with exactly one room.
func (e *Engine) tryPair(token uint64, candidate string, doc store.Doc) bool {
	me := e.sess.Player.Id
	if candidate <= me || !e.isSearchActive(token) {
		return false
	}
	var entry internal.PoolEntry
	if err := store.Decode(doc, &entry); err != nil || entry.MatchedBy != "" {
		return false
	}

	ctx, cancel := e.storeCtx()
	defer cancel()
	ownPath := internal.MatchmakingPath(me)

	// 1. Lock our own entry so nobody claims us meanwhile
	ok, err := e.store.CompareAndUpdate(ctx, ownPath, "matchedBy", "", store.Doc{"matchedBy": me})
	if err != nil || !ok {
		return false
	}
	release := func() {
		if _, err := e.store.CompareAndUpdate(ctx, ownPath, "matchedBy", me, store.Doc{"matchedBy": nil}); err != nil {
			e.log.Warn().Err(err).Msg("[tryPair] releasing own entry failed")
		}
	}

	// 2. Create the room
	code, err := e.createRoomRecord(ctx, func(string) internal.RoomRecord {
		rec := e.newRoom(false)
		rec.GuestID = candidate
		rec.GuestName = entry.Name
		rec.Status = internal.StatusPlaying
		return rec
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("[tryPair] room creation failed")
		release()
		return false
	}
	roomPath := internal.DuelPath(code)

	// 3. Claim the candidate
	ok, err = e.store.CompareAndUpdate(ctx, internal.MatchmakingPath(candidate), "matchedBy", "", store.Doc{
		"matchedBy": me,
		"roomId":    code,
		"hostName":  e.sess.Player.DisplayName(),
	})
	if err != nil || !ok {
		if err := e.store.Remove(ctx, roomPath); err != nil {
			e.log.Warn().Err(err).Str("room", code).Msg("[tryPair] removing unclaimed room failed")
		}
		release()
		return false
	}

	// 4. Paired: leave the pool and host
	e.log.Info().Str("room", code).Str("guest", candidate).Msg("[tryPair] paired")
	e.removeOwned(ownPath)
	if err := e.store.OnDisconnectRemove(ctx, roomPath); err != nil {
		e.log.Warn().Err(err).Str("room", code).Msg("[tryPair] on-disconnect registration failed")
	}
	sub, err := e.store.Watch(ctx, roomPath)
	if err != nil {
		e.removeOwned(roomPath)
		e.degrade(token, err)
		return true
	}

	stale := false
	e.locked(func() {
		if !e.searchActive(token) {
			stale = true
			return
		}
		e.inPool = false
		e.teardown()
		e.state = DuelState{
			RoomID:       code,
			IsHost:       true,
			OpponentID:   candidate,
			OpponentName: entry.Name,
		}
		e.listenToRoom(sub)
		e.startDuel()
	})
	if stale {
		_ = sub.Close()
		e.removeOwned(roomPath)
	}
	return true
}

// acceptClaim joins the room another player created for us.
func (e *Engine) acceptClaim(token uint64, entry internal.PoolEntry) {
	if !e.isSearchActive(token) {
		return
	}
	ctx, cancel := e.storeCtx()
	defer cancel()

	e.removeOwned(internal.MatchmakingPath(e.sess.Player.Id))
	roomPath := internal.DuelPath(entry.RoomID)
	sub, err := e.store.Watch(ctx, roomPath)
	if err != nil {
		e.degrade(token, err)
		return
	}

	stale := false
	e.locked(func() {
		if !e.searchActive(token) {
			stale = true
			return
		}
		e.log.Info().Str("room", entry.RoomID).Str("host", entry.MatchedBy).Msg("[acceptClaim] claimed by host")
		e.inPool = false
		e.teardown()
		e.state = DuelState{
			RoomID:       entry.RoomID,
			OpponentID:   entry.MatchedBy,
			OpponentName: entry.HostName,
		}
		e.listenToRoom(sub)
		e.startDuel()
	})
	if stale {
		_ = sub.Close()
	}
}

// searchTimedOut withdraws from the pool. Whoever wins the compare-and-update
// on our entry decides: us (bot fallback) or a host that claimed us.
func (e *Engine) searchTimedOut(token uint64) {
	e.later(func() { e.withdraw(token) })
}

func (e *Engine) withdraw(token uint64) {
	ctx, cancel := e.storeCtx()
	defer cancel()
	me := e.sess.Player.Id
	ownPath := internal.MatchmakingPath(me)

	ok, err := e.store.CompareAndUpdate(ctx, ownPath, "matchedBy", "", store.Doc{"matchedBy": me})
	if err != nil {
		e.degrade(token, err)
		return
	}
	if ok {
		e.removeOwned(ownPath)
		e.locked(func() {
			if !e.searchActive(token) {
				return
			}
			e.inPool = false
			e.log.Info().Msg("[withdraw] no opponent found")
			e.notify(noPlayersNotice, notify.Warning)
			e.playBot()
		})
		return
	}

	doc, err := e.store.Get(ctx, ownPath)
	if err != nil {
		e.degrade(token, err)
		return
	}
	var entry internal.PoolEntry
	if doc != nil && store.Decode(doc, &entry) == nil && entry.MatchedBy != "" && entry.MatchedBy != me && entry.RoomID != "" {
		e.acceptClaim(token, entry)
		return
	}

	// Our own pairing attempt holds the entry; look again shortly.
	e.locked(func() {
		if e.searchActive(token) {
			e.afterSearch(matchRetryBackoff, func() { e.searchTimedOut(token) })
		}
	})
}

// =============================================================================
// PRIVATE & OPEN ROOMS
// =============================================================================

// CreatePrivate hosts a room joinable only by code.
func (e *Engine) CreatePrivate(ctx context.Context) (string, error) {
	return e.createHostedRoom(ctx, true)
}

// CreateOpen hosts a room that is also listed in the lobby.
func (e *Engine) CreateOpen(ctx context.Context) (string, error) {
	return e.createHostedRoom(ctx, false)
}

func (e *Engine) createHostedRoom(ctx context.Context, private bool) (string, error) {
	var token uint64
	offline := !e.store.Connected()
	e.locked(func() {
		token = e.beginSearch(PhaseHosting, EventHosting)
		if offline {
			e.notify(needServerNotice, notify.Warning)
			e.afterSearch(e.rules.OfflinePrivateDelay, e.playBot)
		}
	})
	if offline {
		return "", nil
	}

	fail := func(err error) (string, error) {
		e.locked(func() {
			if e.searchActive(token) {
				e.toLobby()
			}
		})
		return "", err
	}

	code, err := e.createRoomRecord(ctx, func(string) internal.RoomRecord { return e.newRoom(private) })
	if err != nil {
		return fail(err)
	}
	roomPath := internal.DuelPath(code)
	if err := e.store.OnDisconnectRemove(ctx, roomPath); err != nil {
		e.removeOwned(roomPath)
		return fail(fmt.Errorf("register room %s: %w", code, err))
	}
	sub, err := e.store.Watch(ctx, roomPath)
	if err != nil {
		e.removeOwned(roomPath)
		return fail(fmt.Errorf("watch room %s: %w", code, err))
	}

	stale := false
	e.locked(func() {
		if !e.searchActive(token) {
			stale = true
			return
		}
		e.state = DuelState{RoomID: code, IsHost: true}
		e.listenToRoom(sub)
		e.log.Info().Str("room", code).Bool("private", private).Msg("[createHostedRoom] waiting for guest")
		e.emit(Event{Type: EventHosting, RoomCode: code})
	})
	if stale {
		_ = sub.Close()
		e.removeOwned(roomPath)
		return "", ErrSearchCancelled
	}
	return code, nil
}

// JoinRoom joins a waiting room by code. Validation happens before any
// store access and leaves the engine untouched on failure.
func (e *Engine) JoinRoom(ctx context.Context, code string) error {
	code = utils.NormalizeRoomCode(code)
	if !utils.ValidRoomCode(code) {
		return ErrInvalidRoomCode
	}
	if !e.store.Connected() {
		return store.ErrOffline
	}

	roomPath := internal.DuelPath(code)
	rec, err := e.fetchRoom(ctx, roomPath)
	if err != nil {
		return err
	}
	if rec.Status != internal.StatusWaiting {
		return ErrRoomUnavailable
	}

	var token uint64
	e.locked(func() { token = e.beginSearch(PhaseJoining, EventJoining) })

	ok, err := e.store.CompareAndUpdate(ctx, roomPath, "guestId", "", store.Doc{
		"guestId":   e.sess.Player.Id,
		"guestName": e.sess.Player.DisplayName(),
		"status":    string(internal.StatusReady),
	})
	if err == nil && !ok {
		err = ErrRoomUnavailable
	}
	var sub *store.Subscription
	if err == nil {
		sub, err = e.store.Watch(ctx, roomPath)
	}
	if err != nil {
		e.locked(func() {
			if e.searchActive(token) {
				e.phase = PhaseIdle
				e.emit(Event{Type: EventLobby})
			}
		})
		if errors.Is(err, ErrRoomUnavailable) {
			return err
		}
		return fmt.Errorf("join room %s: %w", code, err)
	}

	stale := false
	e.locked(func() {
		if !e.searchActive(token) {
			stale = true
			return
		}
		e.state = DuelState{RoomID: code, OpponentID: rec.HostID, OpponentName: rec.HostName}
		e.state.resetCounters(e.rules.RoundSeconds)
		e.listenToRoom(sub)
		e.log.Info().Str("room", code).Str("host", rec.HostID).Msg("[JoinRoom] joined, waiting for host")
	})
	if stale {
		_ = sub.Close()
		return ErrSearchCancelled
	}
	return nil
}

// JoinExistingRoom takes a seat in a lobby-listed room and starts at once.
func (e *Engine) JoinExistingRoom(ctx context.Context, roomID string) error {
	if !e.store.Connected() {
		e.PlayBot()
		return nil
	}

	roomPath := internal.DuelPath(roomID)
	unavailable := func() error {
		e.locked(func() { e.notify(roomGoneNotice, notify.Error) })
		return ErrRoomUnavailable
	}

	rec, err := e.fetchRoom(ctx, roomPath)
	if errors.Is(err, ErrRoomNotFound) {
		return unavailable()
	}
	if err != nil {
		return err
	}
	if rec.Status != internal.StatusWaiting {
		return unavailable()
	}

	ok, err := e.store.CompareAndUpdate(ctx, roomPath, "guestId", "", store.Doc{
		"guestId":   e.sess.Player.Id,
		"guestName": e.sess.Player.DisplayName(),
		"status":    string(internal.StatusPlaying),
	})
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	if !ok {
		return unavailable()
	}
	sub, err := e.store.Watch(ctx, roomPath)
	if err != nil {
		return fmt.Errorf("watch room %s: %w", roomID, err)
	}

	e.locked(func() {
		e.teardown()
		e.state = DuelState{RoomID: roomID, OpponentID: rec.HostID, OpponentName: rec.HostName}
		e.listenToRoom(sub)
		e.startDuel()
	})
	return nil
}

func (e *Engine) fetchRoom(ctx context.Context, roomPath string) (internal.RoomRecord, error) {
	var rec internal.RoomRecord
	doc, err := e.store.Get(ctx, roomPath)
	if err != nil {
		return rec, fmt.Errorf("load %s: %w", roomPath, err)
	}
	if doc == nil {
		return rec, ErrRoomNotFound
	}
	if err := store.Decode(doc, &rec); err != nil {
		return rec, fmt.Errorf("load %s: %w", roomPath, err)
	}
	return rec, nil
}

// ListRooms returns waiting public rooms, oldest first. Offline it returns
// two demo rooms that start a bot duel when joined.
func (e *Engine) ListRooms(ctx context.Context) ([]internal.RoomListing, error) {
	if !e.store.Connected() {
		now := e.clock.Now().UnixMilli()
		return []internal.RoomListing{
			{ID: "demo-1", HostName: "MathWizard", CreatedAt: now},
			{ID: "demo-2", HostName: "NumberNinja", CreatedAt: now},
		}, nil
	}

	docs, err := e.store.List(ctx, internal.DuelsCollection)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	records := make(map[string]internal.RoomRecord, len(docs))
	for id, doc := range docs {
		var rec internal.RoomRecord
		if err := store.Decode(doc, &rec); err != nil {
			e.log.Debug().Err(err).Str("room", id).Msg("[ListRooms] skipping undecodable room")
			continue
		}
		records[id] = rec
	}
	return internal.OpenRooms(records, e.sess.Player.Id), nil
}
