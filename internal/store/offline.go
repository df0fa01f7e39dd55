package store

import "context"

// Offline is the store used when no relay is reachable.
type Offline struct{}

var _ Store = Offline{}

func (Offline) Connected() bool { return false }

func (Offline) Get(context.Context, string) (Doc, error) { return nil, ErrOffline }

func (Offline) List(context.Context, string) (map[string]Doc, error) { return nil, ErrOffline }

func (Offline) Set(context.Context, string, Doc) error { return ErrOffline }

func (Offline) Update(context.Context, string, Doc) error { return ErrOffline }

func (Offline) CompareAndUpdate(context.Context, string, string, string, Doc) (bool, error) {
	return false, ErrOffline
}

func (Offline) Remove(context.Context, string) error { return ErrOffline }

func (Offline) OnDisconnectRemove(context.Context, string) error { return ErrOffline }

func (Offline) CancelOnDisconnect(context.Context, string) error { return ErrOffline }

func (Offline) Watch(context.Context, string) (*Subscription, error) { return nil, ErrOffline }

func (Offline) WatchChildren(context.Context, string) (*Subscription, error) {
	return nil, ErrOffline
}
