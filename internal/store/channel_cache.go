package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

const cacheTTL = 1 * time.Hour

// CachedWorkspaces wraps a WorkspaceRepository with a Redis read-through
// cache. The channel-connection lookup runs once per inbound webhook
// message, which makes it the hot read of the pipeline. Access tokens are
// never cached (the JSON form of ChannelConnection excludes them); cache
// hits therefore return connections without a token, which is all the
// ingestion path needs.
type CachedWorkspaces struct {
	inner WorkspaceRepository
	redis RedisClient
}

func NewCachedWorkspaces(inner WorkspaceRepository, redis RedisClient) *CachedWorkspaces {
	return &CachedWorkspaces{inner: inner, redis: redis}
}

func (c *CachedWorkspaces) GetByID(ctx context.Context, id uuid.UUID) (*model.Workspace, error) {
	key := fmt.Sprintf("workspace:%s", id.String())
	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		ws := &model.Workspace{}
		if err := json.Unmarshal([]byte(cached), ws); err == nil {
			return ws, nil
		}
	}

	ws, err := c.inner.GetByID(ctx, id)
	if err != nil || ws == nil {
		return ws, err
	}

	if data, err := json.Marshal(ws); err == nil {
		c.redis.SetEx(ctx, key, data, cacheTTL)
	}
	return ws, nil
}

func (c *CachedWorkspaces) FindConnectionByDisplayPhone(ctx context.Context, displayPhone string) (*model.ChannelConnection, error) {
	key := fmt.Sprintf("channel:%s", displayPhone)
	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		conn := &model.ChannelConnection{}
		if err := json.Unmarshal([]byte(cached), conn); err == nil {
			return conn, nil
		}
	}

	conn, err := c.inner.FindConnectionByDisplayPhone(ctx, displayPhone)
	if err != nil || conn == nil {
		return conn, err
	}

	if data, err := json.Marshal(conn); err == nil {
		c.redis.SetEx(ctx, key, data, cacheTTL)
	}
	return conn, nil
}

func (c *CachedWorkspaces) UpsertConnection(ctx context.Context, conn *model.ChannelConnection) error {
	if err := c.inner.UpsertConnection(ctx, conn); err != nil {
		return err
	}
	// Invalidate by display phone; the lookup key is a suffix match, so the
	// stored display phone is the only key a fresh upsert can have written.
	c.redis.Del(ctx, fmt.Sprintf("channel:%s", conn.DisplayPhone))
	return nil
}
