package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

// Reserved hash fields; every other field of the meta hash is thread metadata.
const (
	fieldID        = "_id"
	fieldCreatedAt = "_created_at"
)

// RedisThreadRepository stores each thread as a metadata hash plus a message
// list, and indexes threads per user in a sorted set scored by creation time.
type RedisThreadRepository struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisThreadRepository(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisThreadRepository {
	if prefix == "" {
		prefix = "dataagent"
	}
	return &RedisThreadRepository{rdb: rdb, ttl: ttl, prefix: prefix, now: time.Now}
}

func (r *RedisThreadRepository) metaKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:meta", r.prefix, threadID)
}

func (r *RedisThreadRepository) messagesKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:messages", r.prefix, threadID)
}

func (r *RedisThreadRepository) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:threads", r.prefix, userID)
}

func (r *RedisThreadRepository) Create(ctx context.Context, metadata map[string]string) (*model.Thread, error) {
	t := &model.Thread{
		ID:        "thread_" + uuid.NewString(),
		CreatedAt: r.now().UTC(),
		Metadata:  map[string]string{},
	}
	fields := map[string]any{
		fieldID:        t.ID,
		fieldCreatedAt: t.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		t.Metadata[k] = v
		fields[k] = v
	}

	userID := metadata[model.MetaUserID]
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.metaKey(t.ID), fields)
		if userID != "" {
			p.ZAdd(ctx, r.userKey(userID), redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
		}
		r.touch(ctx, p, t.ID, userID)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", t.ID).Msg("failed to create thread")
		return nil, errx.WrapRedis(err)
	}
	return t, nil
}

func (r *RedisThreadRepository) Get(ctx context.Context, threadID string) (*model.Thread, error) {
	fields, err := r.rdb.HGetAll(ctx, r.metaKey(threadID)).Result()
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load thread metadata")
		return nil, errx.WrapRedis(err)
	}
	if len(fields) == 0 {
		return nil, errx.NotFound(errx.ErrThreadNotFound)
	}
	return decodeThread(threadID, fields), nil
}

func decodeThread(threadID string, fields map[string]string) *model.Thread {
	t := &model.Thread{ID: threadID, Metadata: map[string]string{}}
	for k, v := range fields {
		switch k {
		case fieldID:
			t.ID = v
		case fieldCreatedAt:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				t.CreatedAt = ts
			}
		default:
			t.Metadata[k] = v
		}
	}
	return t
}

func (r *RedisThreadRepository) UpdateMetadata(ctx context.Context, threadID string, metadata map[string]string) error {
	t, err := r.Get(ctx, threadID)
	if err != nil {
		return err
	}
	fields := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == fieldID || k == fieldCreatedAt {
			continue
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		return nil
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.metaKey(threadID), fields)
		r.touch(ctx, p, threadID, t.Metadata[model.MetaUserID])
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to update thread metadata")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisThreadRepository) Delete(ctx context.Context, threadID string) error {
	t, err := r.Get(ctx, threadID)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.metaKey(threadID), r.messagesKey(threadID))
		if uid := t.Metadata[model.MetaUserID]; uid != "" {
			p.ZRem(ctx, r.userKey(uid), threadID)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete thread")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisThreadRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Thread, error) {
	if limit <= 0 {
		limit = 100
	}
	key := r.userKey(userID)
	ids, err := r.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to list user threads")
		return nil, errx.WrapRedis(err)
	}

	threads := make([]*model.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if errors.Is(err, errx.ErrThreadNotFound) {
			// expired thread; drop the dangling index entry
			r.rdb.ZRem(ctx, key, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (r *RedisThreadRepository) AddMessage(ctx context.Context, threadID string, role schema.RoleType, content string) (*model.ThreadMessage, error) {
	t, err := r.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	msg := &model.ThreadMessage{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to marshal message")
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, r.messagesKey(threadID), b)
		r.touch(ctx, p, threadID, t.Metadata[model.MetaUserID])
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to push message to redis")
		return nil, errx.WrapRedis(err)
	}
	return msg, nil
}

func (r *RedisThreadRepository) LoadMessages(ctx context.Context, threadID string) ([]model.ThreadMessage, error) {
	key := r.messagesKey(threadID)
	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.ThreadMessage{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread messages from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.ThreadMessage, 0, len(rows))
	for i, s := range rows {
		var m model.ThreadMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *RedisThreadRepository) CountMessages(ctx context.Context, threadID string) (int, error) {
	key := r.messagesKey(threadID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

// touch extends the TTL of every key belonging to the thread.
func (r *RedisThreadRepository) touch(ctx context.Context, p redis.Pipeliner, threadID, userID string) {
	if r.ttl <= 0 {
		return
	}
	p.Expire(ctx, r.metaKey(threadID), r.ttl)
	p.Expire(ctx, r.messagesKey(threadID), r.ttl)
	if userID != "" {
		p.Expire(ctx, r.userKey(userID), r.ttl)
	}
}

var _ model.ThreadRepository = (*RedisThreadRepository)(nil)
