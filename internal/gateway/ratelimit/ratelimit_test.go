package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("clearinghouse-a", 10), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow("clearinghouse-a", 10))
}

func TestSourcesAreIndependent(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("source-a", 5))
	}
	assert.False(t, l.Allow("source-a", 5))
	assert.True(t, l.Allow("source-b", 5))
}

func TestTokensRefillOverTime(t *testing.T) {
	l := New(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("source-a", 5))
	}
	assert.False(t, l.Allow("source-a", 5))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, l.Allow("source-a", 5))
}

func TestReset(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 3; i++ {
		l.Allow("source-a", 3)
	}
	assert.False(t, l.Allow("source-a", 3))

	l.Reset("source-a")
	assert.True(t, l.Allow("source-a", 3))
}
