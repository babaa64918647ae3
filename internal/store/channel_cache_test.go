package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

// fakeRedis is a map-backed RedisClient. TTLs are accepted and ignored.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if val, ok := f.data[key]; ok {
		cmd.SetVal(val)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusCmd(ctx)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntCmd(ctx)
}

func (f *fakeRedis) Close() error { return nil }

// countingWorkspaces counts pass-through reads to the inner repository.
type countingWorkspaces struct {
	WorkspaceRepository
	connectionLookups int
}

func (c *countingWorkspaces) FindConnectionByDisplayPhone(ctx context.Context, displayPhone string) (*model.ChannelConnection, error) {
	c.connectionLookups++
	return c.WorkspaceRepository.FindConnectionByDisplayPhone(ctx, displayPhone)
}

func TestCachedWorkspaces_ConnectionLookupHitsCacheOnSecondRead(t *testing.T) {
	mem := NewMemory()
	workspace := mem.SeedWorkspace(&model.Workspace{Name: "Acme"})
	mem.SeedConnection(&model.ChannelConnection{
		WorkspaceID:  workspace.ID,
		DisplayPhone: "15550001111",
	})

	inner := &countingWorkspaces{WorkspaceRepository: mem.Workspaces}
	cached := NewCachedWorkspaces(inner, newFakeRedis())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		conn, err := cached.FindConnectionByDisplayPhone(ctx, "15550001111")
		assert.NoError(t, err)
		assert.NotNil(t, conn)
		assert.Equal(t, workspace.ID, conn.WorkspaceID)
	}
	assert.Equal(t, 1, inner.connectionLookups)
}

func TestCachedWorkspaces_MissesAreNotCached(t *testing.T) {
	mem := NewMemory()
	inner := &countingWorkspaces{WorkspaceRepository: mem.Workspaces}
	cached := NewCachedWorkspaces(inner, newFakeRedis())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		conn, err := cached.FindConnectionByDisplayPhone(ctx, "19990000000")
		assert.NoError(t, err)
		assert.Nil(t, conn)
	}
	assert.Equal(t, 2, inner.connectionLookups)
}

func TestCachedWorkspaces_TokensNeverEnterCache(t *testing.T) {
	mem := NewMemory()
	workspace := mem.SeedWorkspace(&model.Workspace{Name: "Acme"})
	mem.SeedConnection(&model.ChannelConnection{
		WorkspaceID:  workspace.ID,
		DisplayPhone: "15550001111",
		AccessToken:  "super-secret-token",
	})

	fake := newFakeRedis()
	cached := NewCachedWorkspaces(mem.Workspaces, fake)

	_, err := cached.FindConnectionByDisplayPhone(context.Background(), "15550001111")
	assert.NoError(t, err)

	for _, stored := range fake.data {
		assert.NotContains(t, stored, "super-secret-token")
	}
}

func TestCachedWorkspaces_UpsertInvalidatesConnectionKey(t *testing.T) {
	mem := NewMemory()
	workspace := mem.SeedWorkspace(&model.Workspace{Name: "Acme"})
	mem.SeedConnection(&model.ChannelConnection{
		WorkspaceID:  workspace.ID,
		DisplayPhone: "15550001111",
	})

	inner := &countingWorkspaces{WorkspaceRepository: mem.Workspaces}
	cached := NewCachedWorkspaces(inner, newFakeRedis())
	ctx := context.Background()

	_, err := cached.FindConnectionByDisplayPhone(ctx, "15550001111")
	assert.NoError(t, err)

	assert.NoError(t, cached.UpsertConnection(ctx, &model.ChannelConnection{
		WorkspaceID:  workspace.ID,
		DisplayPhone: "15550001111",
		Status:       "reconnected",
	}))

	conn, err := cached.FindConnectionByDisplayPhone(ctx, "15550001111")
	assert.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, "reconnected", conn.Status)
	assert.Equal(t, 2, inner.connectionLookups)
}

func TestCachedWorkspaces_GetByIDReadThrough(t *testing.T) {
	mem := NewMemory()
	workspace := mem.SeedWorkspace(&model.Workspace{Name: "Acme"})

	cached := NewCachedWorkspaces(mem.Workspaces, newFakeRedis())
	ctx := context.Background()

	ws, err := cached.GetByID(ctx, workspace.ID)
	assert.NoError(t, err)
	assert.NotNil(t, ws)
	assert.Equal(t, "Acme", ws.Name)

	// Second read is served from the cache.
	ws, err = cached.GetByID(ctx, workspace.ID)
	assert.NoError(t, err)
	assert.Equal(t, workspace.ID, ws.ID)
}
