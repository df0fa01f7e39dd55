// Package identity issues the stable per-install player id.
package identity

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/scythe504/mathquest-backend/internal/localstore"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

type KV interface {
	Save(key string, v any)
	Load(key string, dst any) bool
}

// New returns an id of the form player_<unix ms>_<9 random symbols>.
func New(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(suffixAlphabet, 9)
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}
	return fmt.Sprintf("player_%d_%s", now.UnixMilli(), suffix), nil
}

// Ensure returns the stored id, issuing and saving one on first use.
func Ensure(kv KV, now time.Time) (string, error) {
	var id string
	if kv.Load(localstore.KeyPlayerID, &id) && id != "" {
		return id, nil
	}
	id, err := New(now)
	if err != nil {
		return "", err
	}
	kv.Save(localstore.KeyPlayerID, id)
	return id, nil
}
