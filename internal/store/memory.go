package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// WriteHook observes every committed write. doc is nil for removals.
type WriteHook func(path string, doc Doc)

// Hub is the in-process record tree. Clients reach it through a Session.
type Hub struct {
	mu       sync.Mutex
	docs     map[string]map[string]Doc
	watchers map[string]*watcher
	hooks    []WriteHook
	logger   zerolog.Logger
}

type watcher struct {
	sub        *Subscription
	collection string
	key        string // empty for child watchers
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		docs:     make(map[string]map[string]Doc),
		watchers: make(map[string]*watcher),
		logger:   logger,
	}
}

// OnWrite registers a hook. Hooks run on the writer's goroutine after the
// hub lock is released.
func (h *Hub) OnWrite(hook WriteHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Seed stores a record without notifying watchers or hooks.
func (h *Hub) Seed(path string, doc Doc) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	doc, err = normalize(doc)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collection(collection)[key] = doc
	return nil
}

// Snapshot copies every record of a collection.
func (h *Hub) Snapshot(collection string) map[string]Doc {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]Doc, len(h.docs[collection]))
	for k, doc := range h.docs[collection] {
		out[k] = cloneDoc(doc)
	}
	return out
}

// Connect opens a client session. Its remove-on-disconnect registrations run
// when the session disconnects.
func (h *Hub) Connect(clientID string) *Session {
	return &Session{
		hub:          h,
		clientID:     clientID,
		onDisconnect: make(map[string]struct{}),
		subs:         make(map[string]*Subscription),
	}
}

func (h *Hub) collection(name string) map[string]Doc {
	c, ok := h.docs[name]
	if !ok {
		c = make(map[string]Doc)
		h.docs[name] = c
	}
	return c
}

func (h *Hub) get(path string) (Doc, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneDoc(h.docs[collection][key]), nil
}

func (h *Hub) list(collection string) map[string]Doc {
	return h.Snapshot(collection)
}

// mutate applies fn to the record under the lock. fn returns the next record
// (nil removes it) and whether anything changed.
func (h *Hub) mutate(path string, fn func(prev Doc) (next Doc, changed bool)) (bool, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	c := h.collection(collection)
	prev, existed := c[key]
	next, changed := fn(prev)
	if !changed {
		h.mu.Unlock()
		return false, nil
	}
	if next == nil {
		delete(c, key)
	} else {
		c[key] = next
	}

	var kind EventKind
	switch {
	case next == nil:
		kind = EventChildRemoved
	case existed:
		kind = EventChildChanged
	default:
		kind = EventChildAdded
	}
	for _, w := range h.watchers {
		if w.collection != collection {
			continue
		}
		switch {
		case w.key == key:
			w.sub.push(Event{Kind: EventValue, Path: path, Key: key, Doc: cloneDoc(next)})
		case w.key == "":
			if next == nil && !existed {
				continue
			}
			w.sub.push(Event{Kind: kind, Path: path, Key: key, Doc: cloneDoc(next)})
		}
	}
	hooks := append([]WriteHook(nil), h.hooks...)
	snapshot := cloneDoc(next)
	h.mu.Unlock()

	for _, hook := range hooks {
		hook(collection+"/"+key, snapshot)
	}
	return true, nil
}

func (h *Hub) set(path string, doc Doc) error {
	doc, err := normalize(doc)
	if err != nil {
		return err
	}
	_, err = h.mutate(path, func(Doc) (Doc, bool) { return doc, true })
	return err
}

func merge(prev, fields Doc) Doc {
	next := cloneDoc(prev)
	if next == nil {
		next = Doc{}
	}
	for k, v := range fields {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	return next
}

func (h *Hub) update(path string, fields Doc) error {
	fields, err := normalize(fields)
	if err != nil {
		return err
	}
	_, err = h.mutate(path, func(prev Doc) (Doc, bool) { return merge(prev, fields), true })
	return err
}

func (h *Hub) compareAndUpdate(path, field, expect string, fields Doc) (bool, error) {
	fields, err := normalize(fields)
	if err != nil {
		return false, err
	}
	return h.mutate(path, func(prev Doc) (Doc, bool) {
		if prev == nil || fieldString(prev, field) != expect {
			return prev, false
		}
		return merge(prev, fields), true
	})
}

func (h *Hub) remove(path string) error {
	_, err := h.mutate(path, func(prev Doc) (Doc, bool) { return nil, prev != nil })
	return err
}

func (h *Hub) watch(path string, onClose func(*Subscription)) (*Subscription, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	return h.addWatcher(path, collection, key, true, onClose), nil
}

func (h *Hub) watchChildren(collection string, onClose func(*Subscription)) *Subscription {
	return h.addWatcher(collection, collection, "", false, onClose)
}

func (h *Hub) addWatcher(path, collection, key string, initial bool, onClose func(*Subscription)) *Subscription {
	var sub *Subscription
	sub = newSubscription(path, func() {
		h.mu.Lock()
		delete(h.watchers, sub.id)
		h.mu.Unlock()
		if onClose != nil {
			onClose(sub)
		}
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[sub.id] = &watcher{sub: sub, collection: collection, key: key}
	if initial {
		sub.push(Event{Kind: EventValue, Path: path, Key: key, Doc: cloneDoc(h.docs[collection][key])})
	}
	return sub
}

// Session is one client's connection to the hub.
type Session struct {
	hub      *Hub
	clientID string

	mu           sync.Mutex
	onDisconnect map[string]struct{}
	subs         map[string]*Subscription
	closed       bool
}

var _ Store = (*Session)(nil)

func (s *Session) ClientID() string { return s.clientID }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Connected() {
		return ErrDisconnected
	}
	return nil
}

func (s *Session) Get(ctx context.Context, path string) (Doc, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.hub.get(path)
}

func (s *Session) List(ctx context.Context, collection string) (map[string]Doc, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.hub.list(collection), nil
}

func (s *Session) Set(ctx context.Context, path string, doc Doc) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.set(path, doc)
}

func (s *Session) Update(ctx context.Context, path string, fields Doc) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.update(path, fields)
}

func (s *Session) CompareAndUpdate(ctx context.Context, path, field, expect string, fields Doc) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	return s.hub.compareAndUpdate(path, field, expect, fields)
}

func (s *Session) Remove(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.hub.remove(path)
}

func (s *Session) OnDisconnectRemove(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, _, err := SplitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.onDisconnect[path] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Session) CancelOnDisconnect(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.onDisconnect, path)
	s.mu.Unlock()
	return nil
}

func (s *Session) Watch(ctx context.Context, path string) (*Subscription, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	sub, err := s.hub.watch(path, s.forget)
	if err != nil {
		return nil, err
	}
	s.track(sub)
	return sub, nil
}

func (s *Session) WatchChildren(ctx context.Context, collection string) (*Subscription, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	sub := s.hub.watchChildren(collection, s.forget)
	s.track(sub)
	return sub, nil
}

func (s *Session) track(sub *Subscription) {
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()
}

func (s *Session) forget(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub.id)
	s.mu.Unlock()
}

// Disconnect closes every subscription of the session and runs its
// remove-on-disconnect registrations. Later calls are no-ops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	paths := make([]string, 0, len(s.onDisconnect))
	for p := range s.onDisconnect {
		paths = append(paths, p)
	}
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := s.hub.remove(p); err != nil {
			s.hub.logger.Warn().Err(err).Str("client", s.clientID).Str("path", p).Msg("[Disconnect] remove failed")
			continue
		}
		s.hub.logger.Debug().Str("client", s.clientID).Str("path", p).Msg("[Disconnect] removed on disconnect")
	}
}
