package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstThenThrottle(t *testing.T) {
	l := New(1, 2)

	assert.True(t, l.Allow("binance"))
	assert.True(t, l.Allow("binance"))
	assert.False(t, l.Allow("binance"))
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(1, 1)

	assert.True(t, l.Allow("binance"))
	assert.True(t, l.Allow("bybit"))
	assert.False(t, l.Allow("binance"))
}

func TestConfigurePerExchange(t *testing.T) {
	l := New(1, 1)
	l.Configure("okx", 100, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("okx"), "burst token %d", i)
	}
	assert.False(t, l.Allow("okx"))
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(0.1, 1)
	require.True(t, l.Allow("binance")) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "binance")
	assert.Error(t, err)
}

func TestWaitGrantsWhenTokenAvailable(t *testing.T) {
	l := New(100, 1)
	err := l.Wait(context.Background(), "binance")
	assert.NoError(t, err)
}
