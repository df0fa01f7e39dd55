// Package presence maintains the online/<playerId> roster entry.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/store"
)

const HeartbeatInterval = 30 * time.Second

// Announce registers the player as online, removed automatically when the
// connection drops, and refreshes lastActive until ctx is done.
func Announce(ctx context.Context, st store.Store, player internal.Player, logger zerolog.Logger) error {
	if !st.Connected() {
		return store.ErrOffline
	}

	path := internal.OnlinePath(player.Id)
	doc, err := store.Encode(player.OnlineEntry(time.Now().UnixMilli()))
	if err != nil {
		return err
	}
	if err := st.Set(ctx, path, doc); err != nil {
		return fmt.Errorf("announce presence: %w", err)
	}
	if err := st.OnDisconnectRemove(ctx, path); err != nil {
		return fmt.Errorf("register presence cleanup: %w", err)
	}

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !st.Connected() {
					return
				}
				err := st.Update(ctx, path, store.Doc{"lastActive": time.Now().UnixMilli()})
				if err != nil {
					logger.Debug().Err(err).Str("player", player.Id).Msg("[Announce] heartbeat failed")
				}
			}
		}
	}()
	return nil
}

// Count returns the number of online players.
func Count(ctx context.Context, st store.Store) (int, error) {
	docs, err := st.List(ctx, internal.OnlineCollection)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
