// Package shop sells duel items for points and tracks the owned inventory.
package shop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scythe504/mathquest-backend/internal/localstore"
	"github.com/scythe504/mathquest-backend/internal/notify"
)

const (
	TimePotion   = "time_potion"
	DoublePoints = "double_points"
	Shield       = "shield"
)

var (
	ErrUnknownItem        = errors.New("unknown item")
	ErrInsufficientPoints = errors.New("not enough points")
)

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"desc"`
	Cost        int    `json:"cost"`
}

var Catalog = []Item{
	{ID: TimePotion, Name: "Time Potion", Description: "+5s on current duel question", Cost: 30},
	{ID: DoublePoints, Name: "Double Points Scroll", Description: "Next correct answer gives +20 bonus", Cost: 40},
	{ID: Shield, Name: "Streak Shield", Description: "Ignore streak reset on next wrong answer", Cost: 35},
}

func Lookup(id string) (Item, bool) {
	for _, item := range Catalog {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

type KV interface {
	Save(key string, v any)
	Load(key string, dst any) bool
}

// Inventory is persisted under the mathquest_inventory key.
type Inventory struct {
	mu     sync.Mutex
	kv     KV
	counts map[string]int
}

func LoadInventory(kv KV) *Inventory {
	inv := &Inventory{kv: kv, counts: make(map[string]int)}
	kv.Load(localstore.KeyInventory, &inv.counts)
	if inv.counts == nil {
		inv.counts = make(map[string]int)
	}
	return inv
}

func (i *Inventory) Count(id string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[id]
}

// Consume removes one unit and reports whether one was owned.
func (i *Inventory) Consume(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.counts[id] <= 0 {
		return false
	}
	i.counts[id]--
	i.kv.Save(localstore.KeyInventory, i.counts)
	return true
}

func (i *Inventory) Add(id string, n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.counts[id] += n
	i.kv.Save(localstore.KeyInventory, i.counts)
}

// Wallet is the point balance purchases are paid from.
type Wallet interface {
	Balance() int
	Spend(ctx context.Context, amount int) bool
}

type Shop struct {
	wallet    Wallet
	inventory *Inventory
	notifier  notify.Notifier
}

func New(wallet Wallet, inventory *Inventory, notifier notify.Notifier) *Shop {
	return &Shop{wallet: wallet, inventory: inventory, notifier: notifier}
}

func (s *Shop) Buy(ctx context.Context, id string) error {
	item, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if !s.wallet.Spend(ctx, item.Cost) {
		s.notifier.Notify("Not enough points!", notify.Warning)
		return ErrInsufficientPoints
	}
	s.inventory.Add(id, 1)
	s.notifier.Notify(fmt.Sprintf("Bought %s!", item.Name), notify.Success)
	return nil
}
