package results

import (
	"context"
	"testing"
	"time"

	"backend-racehub/internal/errs"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func sampleDraft() Draft {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return Draft{ID: "draft-1", RaceID: "race-1", Rows: fiveRows(), CreatedAt: now, UpdatedAt: now}
}

func TestRedisDraftStore(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := NewDraftStore(client, time.Hour)
	ctx := context.Background()
	d := sampleDraft()

	require.NoError(t, store.Save(ctx, d))
	require.True(t, s.Exists("results:draft:draft-1"))
	require.Equal(t, time.Hour, s.TTL("results:draft:draft-1"))

	got, err := store.Load(ctx, "draft-1")
	require.NoError(t, err)
	require.Equal(t, d.RaceID, got.RaceID)
	require.Equal(t, userIDs(d.Rows), userIDs(got.Rows))
	require.Equal(t, positions(d.Rows), positions(got.Rows))
	require.True(t, d.CreatedAt.Equal(got.CreatedAt))

	s.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "draft-1")
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestRedisDraftStoreDelete(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := NewDraftStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleDraft()))
	require.NoError(t, store.Delete(ctx, "draft-1"))
	require.False(t, s.Exists("results:draft:draft-1"))
}

func TestRedisDraftStoreCorruptPayload(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	require.NoError(t, s.Set("results:draft:bad", "{"))

	_, err := NewDraftStore(client, time.Hour).Load(context.Background(), "bad")
	require.Error(t, err)
	require.False(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestMemoryDraftStoreExpires(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryDraftStore(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleDraft()))
	got, err := store.Load(ctx, "draft-1")
	require.NoError(t, err)
	require.Len(t, got.Rows, 5)

	now = now.Add(time.Hour)
	_, err = store.Load(ctx, "draft-1")
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestMemoryDraftStoreSaveDropsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryDraftStore(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleDraft()))

	now = now.Add(2 * time.Hour)
	next := sampleDraft()
	next.ID = "draft-2"
	require.NoError(t, store.Save(ctx, next))

	store.mu.Lock()
	_, kept := store.drafts["draft-1"]
	n := len(store.drafts)
	store.mu.Unlock()
	require.False(t, kept)
	require.Equal(t, 1, n)
}

func TestMemoryDraftStoreIsolatesRows(t *testing.T) {
	store := NewMemoryDraftStore(0, time.Now)
	ctx := context.Background()
	d := sampleDraft()

	require.NoError(t, store.Save(ctx, d))
	*d.Rows[0].Position = 42

	got, err := store.Load(ctx, "draft-1")
	require.NoError(t, err)
	require.Equal(t, 1, *got.Rows[0].Position)

	require.NoError(t, store.Delete(ctx, "draft-1"))
	_, err = store.Load(ctx, "draft-1")
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}
