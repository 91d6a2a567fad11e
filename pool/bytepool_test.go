package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/fleetlink/pool"
)

func TestBytePoolReusesBuffers(t *testing.T) {
	p := pool.NewBytePool(16)

	b := p.Get(10)
	assert.Len(t, b, 10)
	assert.Equal(t, 16, cap(b))
	assert.Equal(t, int64(1), p.InUse())

	p.Put(b)
	assert.Equal(t, int64(0), p.InUse())
	assert.Len(t, p.Get(16), 16)
}

func TestBytePoolAllocatesOversizeRequests(t *testing.T) {
	p := pool.NewBytePool(8)
	b := p.Get(32)
	assert.Len(t, b, 32)
	p.Put(b)
	assert.Equal(t, int64(0), p.InUse())
}
