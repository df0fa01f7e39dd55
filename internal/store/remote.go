package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
)

const (
	writeWait    = 10 * time.Second
	unwatchWait  = 5 * time.Second
	ErrCodePath  = "invalid_path"
	ErrCodeOther = "internal"
)

// Remote is a Store backed by a relay connection.
type Remote struct {
	conn     *websocket.Conn
	clientID string
	logger   zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan internal.ResponseData
	subs    map[string]*Subscription

	done     chan struct{}
	doneOnce sync.Once
}

var _ Store = (*Remote)(nil)

// Dial connects to a relay endpoint such as ws://host:8080/ws.
func Dial(ctx context.Context, endpoint, clientID string, logger zerolog.Logger) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	r := &Remote{
		conn:     conn,
		clientID: clientID,
		logger:   logger.With().Str("component", "remote_store").Logger(),
		pending:  make(map[uint64]chan internal.ResponseData),
		subs:     make(map[string]*Subscription),
		done:     make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Done is closed when the connection is lost or closed.
func (r *Remote) Done() <-chan struct{} { return r.done }

func (r *Remote) Connected() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Close ends the connection. The relay then runs this client's
// remove-on-disconnect registrations.
func (r *Remote) Close() error {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	err := r.conn.Close()
	r.shutdown()
	return err
}

func (r *Remote) shutdown() {
	r.doneOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		subs := make([]*Subscription, 0, len(r.subs))
		for _, sub := range r.subs {
			subs = append(subs, sub)
		}
		r.subs = make(map[string]*Subscription)
		r.pending = make(map[uint64]chan internal.ResponseData)
		r.mu.Unlock()

		for _, sub := range subs {
			_ = sub.Close()
		}
	})
}

func (r *Remote) readLoop() {
	defer r.shutdown()
	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				r.logger.Warn().Err(err).Msg("[readLoop] relay connection closed")
			}
			return
		}

		msg, err := internal.DecodeMessage(raw)
		if err != nil {
			r.logger.Warn().Err(err).Msg("[readLoop] failed to parse message")
			continue
		}

		switch msg.Type {
		case internal.MessageResponse:
			var resp internal.ResponseData
			if err := json.Unmarshal(msg.Data, &resp); err != nil {
				r.logger.Warn().Err(err).Msg("[readLoop] bad response payload")
				continue
			}
			r.mu.Lock()
			ch, ok := r.pending[resp.ID]
			delete(r.pending, resp.ID)
			r.mu.Unlock()
			if ok {
				ch <- resp
			}
		case internal.MessageEvent:
			var ev internal.EventData
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				r.logger.Warn().Err(err).Msg("[readLoop] bad event payload")
				continue
			}
			r.mu.Lock()
			sub := r.subs[ev.SubID]
			r.mu.Unlock()
			if sub != nil {
				sub.push(Event{Kind: EventKind(ev.Kind), Path: ev.Path, Key: ev.Key, Doc: ev.Doc})
			}
		default:
			r.logger.Debug().Str("type", msg.Type).Msg("[readLoop] ignoring message")
		}
	}
}

func (r *Remote) call(ctx context.Context, req internal.RequestData) (internal.ResponseData, error) {
	ch := make(chan internal.ResponseData, 1)

	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return internal.ResponseData{}, ErrDisconnected
	default:
	}
	r.nextID++
	req.ID = r.nextID
	r.pending[req.ID] = ch
	r.mu.Unlock()

	if err := r.write(internal.Message[internal.RequestData]{Type: internal.MessageRequest, Data: req}); err != nil {
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
		return internal.ResponseData{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			if resp.Code == ErrCodePath {
				return resp, fmt.Errorf("%w: %s", ErrInvalidPath, resp.Error)
			}
			return resp, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
		return internal.ResponseData{}, ctx.Err()
	case <-r.done:
		return internal.ResponseData{}, ErrDisconnected
	}
}

func (r *Remote) write(v any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(v)
}

func (r *Remote) Get(ctx context.Context, path string) (Doc, error) {
	resp, err := r.call(ctx, internal.RequestData{Op: internal.OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Doc, nil
}

func (r *Remote) List(ctx context.Context, collection string) (map[string]Doc, error) {
	resp, err := r.call(ctx, internal.RequestData{Op: internal.OpList, Path: collection})
	if err != nil {
		return nil, err
	}
	out := make(map[string]Doc, len(resp.Docs))
	for k, doc := range resp.Docs {
		out[k] = doc
	}
	return out, nil
}

func (r *Remote) Set(ctx context.Context, path string, doc Doc) error {
	_, err := r.call(ctx, internal.RequestData{Op: internal.OpSet, Path: path, Doc: doc})
	return err
}

func (r *Remote) Update(ctx context.Context, path string, fields Doc) error {
	_, err := r.call(ctx, internal.RequestData{Op: internal.OpUpdate, Path: path, Doc: fields})
	return err
}

func (r *Remote) CompareAndUpdate(ctx context.Context, path, field, expect string, fields Doc) (bool, error) {
	resp, err := r.call(ctx, internal.RequestData{
		Op: internal.OpCompareAndUpdate, Path: path, Field: field, Expect: expect, Doc: fields,
	})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (r *Remote) Remove(ctx context.Context, path string) error {
	_, err := r.call(ctx, internal.RequestData{Op: internal.OpRemove, Path: path})
	return err
}

func (r *Remote) OnDisconnectRemove(ctx context.Context, path string) error {
	_, err := r.call(ctx, internal.RequestData{Op: internal.OpOnDisconnectRemove, Path: path})
	return err
}

func (r *Remote) CancelOnDisconnect(ctx context.Context, path string) error {
	_, err := r.call(ctx, internal.RequestData{Op: internal.OpCancelOnDisconnect, Path: path})
	return err
}

func (r *Remote) Watch(ctx context.Context, path string) (*Subscription, error) {
	return r.subscribe(ctx, internal.OpWatch, path)
}

func (r *Remote) WatchChildren(ctx context.Context, collection string) (*Subscription, error) {
	return r.subscribe(ctx, internal.OpWatchChildren, collection)
}

// subscribe registers the local handle before the request so events that
// race ahead of the response are not lost.
func (r *Remote) subscribe(ctx context.Context, op, path string) (*Subscription, error) {
	subID := uuid.NewString()
	sub := newSubscriptionWithID(subID, path, func() { r.unwatch(subID) })

	r.mu.Lock()
	r.subs[subID] = sub
	r.mu.Unlock()

	if _, err := r.call(ctx, internal.RequestData{Op: op, Path: path, SubID: subID}); err != nil {
		r.mu.Lock()
		delete(r.subs, subID)
		r.mu.Unlock()
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *Remote) unwatch(subID string) {
	r.mu.Lock()
	_, tracked := r.subs[subID]
	delete(r.subs, subID)
	r.mu.Unlock()
	if !tracked || !r.Connected() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), unwatchWait)
		defer cancel()
		if _, err := r.call(ctx, internal.RequestData{Op: internal.OpUnwatch, SubID: subID}); err != nil {
			r.logger.Debug().Err(err).Str("sub", subID).Msg("[unwatch] failed")
		}
	}()
}
