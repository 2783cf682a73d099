package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
)

func setupRepo(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisThreadRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedisThreadRepository(client, "test", ttl)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return mr, r
}

func TestCreateAndGet(t *testing.T) {
	mr, r := setupRepo(t, time.Hour)
	ctx := context.Background()

	th, err := r.Create(ctx, map[string]string{model.MetaUserID: "u1", model.MetaTitle: "Sales"})
	require.NoError(t, err)
	assert.Contains(t, th.ID, "thread_")

	got, err := r.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.ID, got.ID)
	assert.Equal(t, "u1", got.Metadata[model.MetaUserID])
	assert.Equal(t, "Sales", got.Metadata[model.MetaTitle])
	assert.NotContains(t, got.Metadata, fieldID)
	assert.True(t, th.CreatedAt.Equal(got.CreatedAt))

	assert.Equal(t, time.Hour, mr.TTL("test:thread:"+th.ID+":meta"))
	assert.Equal(t, time.Hour, mr.TTL("test:user:u1:threads"))
}

func TestGetMissing(t *testing.T) {
	_, r := setupRepo(t, 0)
	_, err := r.Get(context.Background(), "thread_missing")
	assert.ErrorIs(t, err, errx.ErrThreadNotFound)
}

func TestMessagesRoundTrip(t *testing.T) {
	_, r := setupRepo(t, 0)
	ctx := context.Background()

	th, err := r.Create(ctx, nil)
	require.NoError(t, err)

	_, err = r.AddMessage(ctx, th.ID, schema.User, "how many orders?")
	require.NoError(t, err)
	_, err = r.AddMessage(ctx, th.ID, schema.Assistant, "42")
	require.NoError(t, err)

	msgs, err := r.LoadMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "42", msgs[1].Content)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))

	n, err := r.CountMessages(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.AddMessage(ctx, "thread_missing", schema.User, "x")
	assert.ErrorIs(t, err, errx.ErrThreadNotFound)
}

func TestListByUserNewestFirst(t *testing.T) {
	mr, r := setupRepo(t, 0)
	ctx := context.Background()

	first, err := r.Create(ctx, map[string]string{model.MetaUserID: "u1"})
	require.NoError(t, err)
	second, err := r.Create(ctx, map[string]string{model.MetaUserID: "u1"})
	require.NoError(t, err)
	_, err = r.Create(ctx, map[string]string{model.MetaUserID: "u2"})
	require.NoError(t, err)

	list, err := r.ListByUser(ctx, "u1", 100)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	// an expired thread leaves a dangling index entry that listing cleans up
	mr.Del("test:thread:" + first.ID + ":meta")
	list, err = r.ListByUser(ctx, "u1", 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
	members, err := mr.ZMembers("test:user:u1:threads")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, members)
}

func TestUpdateAndDelete(t *testing.T) {
	mr, r := setupRepo(t, 0)
	ctx := context.Background()

	th, err := r.Create(ctx, map[string]string{model.MetaUserID: "u1"})
	require.NoError(t, err)
	_, err = r.AddMessage(ctx, th.ID, schema.User, "hi")
	require.NoError(t, err)

	require.NoError(t, r.UpdateMetadata(ctx, th.ID, map[string]string{model.MetaTitle: "Renamed", fieldID: "hijack"}))
	got, err := r.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Metadata[model.MetaTitle])
	assert.Equal(t, th.ID, got.ID)

	require.NoError(t, r.Delete(ctx, th.ID))
	assert.False(t, mr.Exists("test:thread:"+th.ID+":meta"))
	assert.False(t, mr.Exists("test:thread:"+th.ID+":messages"))
	_, err = r.Get(ctx, th.ID)
	assert.ErrorIs(t, err, errx.ErrThreadNotFound)

	assert.ErrorIs(t, r.UpdateMetadata(ctx, th.ID, map[string]string{"a": "b"}), errx.ErrThreadNotFound)
	assert.ErrorIs(t, r.Delete(ctx, th.ID), errx.ErrThreadNotFound)
}
