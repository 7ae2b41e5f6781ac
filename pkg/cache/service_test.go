package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Plan   string `json:"plan"`
	Active bool   `json:"active"`
}

func newTestService(t *testing.T) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client), mr
}

func TestService_GetMissThenHit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var got snapshot
	err := svc.Get(ctx, "k", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, svc.Set(ctx, "k", snapshot{Plan: "pro", Active: true}, time.Minute))
	require.NoError(t, svc.Get(ctx, "k", &got))
	assert.Equal(t, snapshot{Plan: "pro", Active: true}, got)
}

func TestService_GetOrSetCallsFetcherOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return snapshot{Plan: "starter"}, nil
	}

	var first, second snapshot
	require.NoError(t, svc.GetOrSet(ctx, "status:1", time.Minute, &first, fetch))
	require.NoError(t, svc.GetOrSet(ctx, "status:1", time.Minute, &second, fetch))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "starter", second.Plan)
}

func TestService_GetOrSetPropagatesFetcherError(t *testing.T) {
	svc, _ := newTestService(t)
	boom := errors.New("db down")

	var dest snapshot
	err := svc.GetOrSet(context.Background(), "x", time.Minute, &dest, func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestService_DeletePattern(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "tableside:waitlist:a", 1, time.Minute))
	require.NoError(t, svc.Set(ctx, "tableside:waitlist:b", 2, time.Minute))
	require.NoError(t, svc.Set(ctx, "tableside:plans", 3, time.Minute))

	require.NoError(t, svc.DeletePattern(ctx, "tableside:waitlist:*"))

	assert.False(t, mr.Exists("tableside:waitlist:a"))
	assert.False(t, mr.Exists("tableside:waitlist:b"))
	assert.True(t, mr.Exists("tableside:plans"))
}

func TestNoopService(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	var dest snapshot
	assert.ErrorIs(t, svc.Get(ctx, "k", &dest), ErrCacheMiss)
	require.NoError(t, svc.GetOrSet(ctx, "k", time.Minute, &dest, func() (interface{}, error) {
		return snapshot{Plan: "pro"}, nil
	}))
	assert.Equal(t, "pro", dest.Plan)
	assert.Error(t, svc.Ping(ctx))
}
