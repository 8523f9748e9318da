package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTTL(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 50*time.Millisecond)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryCopiesValue(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	val := []byte("abc")
	c.Set(ctx, "k", val, 0)
	val[0] = 'x'

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db)
	ctx := context.Background()

	mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")
	c.Set(ctx, "k", []byte("v"), time.Minute)

	mock.ExpectGet("k").SetVal("v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	mock.ExpectGet("missing").RedisNil()
	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSelectsBackend(t *testing.T) {
	_, isMem := New("").(*memory)
	assert.True(t, isMem)
	_, isRedis := New("localhost:6379").(*redisCache)
	assert.True(t, isRedis)
}
