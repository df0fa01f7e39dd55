// Package relay serves the shared record tree to duel clients over websockets.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/store"
)

const writeWait = 10 * time.Second

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Relay struct {
	hub     *store.Hub
	logger  zerolog.Logger
	clients atomic.Int64
}

func New(hub *store.Hub, logger zerolog.Logger) *Relay {
	return &Relay{
		hub:    hub,
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Clients returns the number of open connections.
func (rl *Relay) Clients() int64 {
	return rl.clients.Load()
}

// =============================================================================
// WEBSOCKET CONNECTION HANDLING
// =============================================================================

// HandleWebSocket upgrades the connection and serves one hub session on it.
func (rl *Relay) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.logger.Warn().Err(err).Msg("[HandleWebSocket] upgrade failed")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = "anon_" + uuid.NewString()
	}

	c := &client{
		id:      clientID,
		conn:    conn,
		session: rl.hub.Connect(clientID),
		logger:  rl.logger.With().Str("client", clientID).Logger(),
		subs:    make(map[string]*store.Subscription),
	}

	rl.clients.Add(1)
	defer rl.clients.Add(-1)

	c.logger.Info().Msg("[HandleWebSocket] client connected")
	c.serve(context.Background())
	c.logger.Info().Msg("[HandleWebSocket] client disconnected")
}

type client struct {
	id      string
	conn    *websocket.Conn
	session *store.Session
	logger  zerolog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*store.Subscription
}

func (c *client) serve(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.readLoop(ctx, g)
	})
	g.Go(func() error {
		<-ctx.Done()
		return c.conn.Close()
	})

	if err := g.Wait(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug().Err(err).Msg("[serve] connection ended")
	}
}

// readLoop always returns a non-nil error so the group context is cancelled.
func (c *client) readLoop(ctx context.Context, g *errgroup.Group) error {
	defer c.session.Disconnect()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := internal.DecodeMessage(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("[readLoop] failed to parse base message")
			continue
		}
		if msg.Type != internal.MessageRequest {
			c.logger.Debug().Str("type", msg.Type).Msg("[readLoop] ignoring message")
			continue
		}

		var req internal.RequestData
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Warn().Err(err).Msg("[readLoop] wrong request json")
			continue
		}

		resp := c.handleRequest(ctx, g, req)
		if err := c.write(internal.Message[internal.ResponseData]{Type: internal.MessageResponse, Data: resp}); err != nil {
			return err
		}
	}
}

func (c *client) handleRequest(ctx context.Context, g *errgroup.Group, req internal.RequestData) internal.ResponseData {
	resp := internal.ResponseData{ID: req.ID}
	var err error

	switch req.Op {
	case internal.OpGet:
		resp.Doc, err = c.session.Get(ctx, req.Path)
	case internal.OpList:
		resp.Docs, err = c.session.List(ctx, req.Path)
	case internal.OpSet:
		err = c.session.Set(ctx, req.Path, req.Doc)
	case internal.OpUpdate:
		err = c.session.Update(ctx, req.Path, req.Doc)
	case internal.OpCompareAndUpdate:
		resp.OK, err = c.session.CompareAndUpdate(ctx, req.Path, req.Field, req.Expect, req.Doc)
	case internal.OpRemove:
		err = c.session.Remove(ctx, req.Path)
	case internal.OpOnDisconnectRemove:
		err = c.session.OnDisconnectRemove(ctx, req.Path)
	case internal.OpCancelOnDisconnect:
		err = c.session.CancelOnDisconnect(ctx, req.Path)
	case internal.OpWatch, internal.OpWatchChildren:
		err = c.watch(ctx, g, req)
		resp.SubID = req.SubID
	case internal.OpUnwatch:
		c.unwatch(req.SubID)
	default:
		err = errors.New("unknown op " + req.Op)
	}

	if err != nil {
		resp.Error = err.Error()
		resp.Code = store.ErrCodeOther
		if errors.Is(err, store.ErrInvalidPath) {
			resp.Code = store.ErrCodePath
		}
		c.logger.Debug().Err(err).Str("op", req.Op).Str("path", req.Path).Msg("[handleRequest] request failed")
	}
	return resp
}

func (c *client) watch(ctx context.Context, g *errgroup.Group, req internal.RequestData) error {
	if req.SubID == "" {
		return errors.New("watch requires subId")
	}

	var sub *store.Subscription
	var err error
	if req.Op == internal.OpWatch {
		sub, err = c.session.Watch(ctx, req.Path)
	} else {
		sub, err = c.session.WatchChildren(ctx, req.Path)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if prev := c.subs[req.SubID]; prev != nil {
		_ = prev.Close()
	}
	c.subs[req.SubID] = sub
	c.mu.Unlock()

	g.Go(func() error {
		return c.forward(ctx, req.SubID, sub)
	})
	return nil
}

func (c *client) unwatch(subID string) {
	c.mu.Lock()
	sub := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}

// forward pushes hub events for one subscription to the socket.
func (c *client) forward(ctx context.Context, subID string, sub *store.Subscription) error {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			msg := internal.Message[internal.EventData]{
				Type: internal.MessageEvent,
				Data: internal.EventData{
					SubID: subID,
					Kind:  string(ev.Kind),
					Path:  ev.Path,
					Key:   ev.Key,
					Doc:   ev.Doc,
				},
			}
			if err := c.write(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}
