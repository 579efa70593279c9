package midtrans

import (
	"context"
	"fmt"
	"time"
)

const guardTTL = 24 * time.Hour

// guardStore is the slice of the Redis client the guard needs.
type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard short-circuits duplicate webhook deliveries before they hit the
// database. The DB unique index on transaction logs is the real backstop;
// this just keeps redeliveries cheap.
type Guard struct {
	store guardStore
}

// NewGuard builds a delivery dedupe guard on top of Redis.
func NewGuard(store guardStore) *Guard {
	return &Guard{store: store}
}

// CheckAndMark returns true when this (order, status) delivery is the first
// one seen. A Redis outage fails open: processing proceeds and the unique
// index catches any duplicate.
func (g *Guard) CheckAndMark(ctx context.Context, orderID, transactionStatus string) (bool, error) {
	if g == nil || g.store == nil {
		return true, nil
	}
	key := g.key(orderID, transactionStatus)
	fresh, err := g.store.SetNX(ctx, key, "1", guardTTL)
	if err != nil {
		return true, err
	}
	return fresh, nil
}

// Release clears the mark so a failed delivery can be retried by the gateway.
func (g *Guard) Release(ctx context.Context, orderID, transactionStatus string) error {
	if g == nil || g.store == nil {
		return nil
	}
	return g.store.Del(ctx, g.key(orderID, transactionStatus))
}

func (g *Guard) key(orderID, transactionStatus string) string {
	return g.store.IdempotencyKey("midtrans-webhook", fmt.Sprintf("%s:%s", orderID, transactionStatus))
}
