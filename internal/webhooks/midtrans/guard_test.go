package midtrans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuardStore struct {
	keys    map[string]bool
	setErr  error
	deleted []string
}

func (f *fakeGuardStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeGuardStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

func (f *fakeGuardStore) IdempotencyKey(scope, id string) string {
	return "kelola:idempotency:" + scope + ":" + id
}

func TestGuardCheckAndMark(t *testing.T) {
	store := &fakeGuardStore{}
	guard := NewGuard(store)

	fresh, err := guard.CheckAndMark(context.Background(), "KLO-1", "settlement")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.CheckAndMark(context.Background(), "KLO-1", "settlement")
	require.NoError(t, err)
	assert.False(t, fresh)

	// A different status for the same order is a distinct delivery.
	fresh, err = guard.CheckAndMark(context.Background(), "KLO-1", "capture")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestGuardFailsOpenOnRedisError(t *testing.T) {
	store := &fakeGuardStore{setErr: errors.New("redis down")}
	guard := NewGuard(store)

	fresh, err := guard.CheckAndMark(context.Background(), "KLO-1", "settlement")
	require.Error(t, err)
	assert.True(t, fresh)
}

func TestGuardRelease(t *testing.T) {
	store := &fakeGuardStore{}
	guard := NewGuard(store)

	_, err := guard.CheckAndMark(context.Background(), "KLO-1", "settlement")
	require.NoError(t, err)
	require.NoError(t, guard.Release(context.Background(), "KLO-1", "settlement"))

	fresh, err := guard.CheckAndMark(context.Background(), "KLO-1", "settlement")
	require.NoError(t, err)
	assert.True(t, fresh)
}
