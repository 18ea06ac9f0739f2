package permissions

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	loads int
	list  []Permission
}

func (r *countingRepo) List(ctx context.Context) ([]Permission, error) {
	r.loads++
	return r.list, nil
}

func newCachedService(t *testing.T) (*Service, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingRepo{list: []Permission{
		{ID: 10, Name: "cbe.read", Detail: "view CBE records"},
		{ID: 11, Name: "cbe.write", Detail: "edit CBE records"},
	}}
	svc := NewService(repo, NewCache(client, time.Minute), slog.New(slog.DiscardHandler))
	return svc, repo, mr
}

func TestListServesFromCacheAfterFirstLoad(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 1, repo.loads)

	second, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.loads, "second read must come from the cache")
}

func TestListReloadsAfterInvalidation(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.cache.Invalidate(ctx))

	_, err = svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.loads)
}

func TestListReloadsAfterTTLExpiry(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.loads)
}

func TestListWithoutCacheFallsThrough(t *testing.T) {
	repo := &countingRepo{list: []Permission{{ID: 10, Name: "cbe.read"}}}
	svc := NewService(repo, NewCache(nil, time.Minute), slog.New(slog.DiscardHandler))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, repo.loads)
}
