// Package store is the shared record tree duel peers synchronize through.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOffline            = errors.New("store: not connected")
	ErrDisconnected       = errors.New("store: connection lost")
	ErrSubscriptionClosed = errors.New("store: subscription already closed")
	ErrInvalidPath        = errors.New("store: invalid path")
)

// Doc is one record. Values follow JSON decoding rules.
type Doc = map[string]any

type EventKind string

const (
	EventValue        EventKind = "value"
	EventChildAdded   EventKind = "child_added"
	EventChildChanged EventKind = "child_changed"
	EventChildRemoved EventKind = "child_removed"
)

// Event carries the full current record. Doc is nil when the record was
// removed or does not exist.
type Event struct {
	Kind EventKind
	Path string
	Key  string
	Doc  Doc
}

type Store interface {
	Connected() bool
	Get(ctx context.Context, path string) (Doc, error)
	List(ctx context.Context, collection string) (map[string]Doc, error)
	Set(ctx context.Context, path string, doc Doc) error
	// Update merges fields into the record, creating it when absent. A nil
	// field value deletes the field.
	Update(ctx context.Context, path string, fields Doc) error
	// CompareAndUpdate merges fields only if the record exists and its field
	// equals expect. An empty expect matches an absent or empty field.
	CompareAndUpdate(ctx context.Context, path, field, expect string, fields Doc) (bool, error)
	Remove(ctx context.Context, path string) error
	OnDisconnectRemove(ctx context.Context, path string) error
	CancelOnDisconnect(ctx context.Context, path string) error
	// Watch emits the current value first, then every change.
	Watch(ctx context.Context, path string) (*Subscription, error)
	// WatchChildren emits child events for changes made after subscribing.
	WatchChildren(ctx context.Context, collection string) (*Subscription, error)
}

// SplitPath splits "collection/key". Deeper paths are not supported.
func SplitPath(p string) (collection, key string, err error) {
	collection, key, ok := strings.Cut(strings.Trim(p, "/"), "/")
	if !ok || collection == "" || key == "" || strings.Contains(key, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return collection, key, nil
}

// Decode converts a record into a typed value.
func Decode(doc Doc, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal doc: %w", err)
	}
	return nil
}

// Encode converts a typed value into a record.
func Encode(v any) (Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return doc, nil
}

// normalize round-trips a doc through JSON so stored values have the same
// shape a remote peer would see.
func normalize(doc Doc) (Doc, error) {
	if doc == nil {
		return Doc{}, nil
	}
	return Encode(doc)
}

func cloneDoc(doc Doc) Doc {
	if doc == nil {
		return nil
	}
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func fieldString(doc Doc, field string) string {
	switch v := doc[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
