package serial

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolLease(t *testing.T) {
	p := NewBufferPool(0)

	a := p.Acquire(0)
	b := p.Acquire(1024)
	assert.EqualValues(t, 2, p.Leased())

	p.Release(a)
	p.Release(b)
	assert.Zero(t, p.Leased())

	t.Run("DoubleReleaseIsNoOp", func(t *testing.T) {
		p.Release(a)
		p.Release(nil)
		assert.Zero(t, p.Leased())
	})
}

func TestBufferPoolReuseIsCleared(t *testing.T) {
	p := NewBufferPool(0)

	buf := p.Acquire(16)
	w := &writeCursor{buf: buf}
	w.writeBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, w.err)
	p.Release(buf)

	again := p.Acquire(16)
	defer p.Release(again)
	assert.Zero(t, again.Len())
	backing := again.data[:cap(again.data)]
	for _, b := range backing {
		require.Zero(t, b)
	}
}

func TestBufferGrowth(t *testing.T) {
	p := NewBufferPool(0)
	buf := p.Acquire(8)
	defer p.Release(buf)

	initial := cap(buf.data)
	payload := make([]byte, initial+1)
	for i := range payload {
		payload[i] = byte(i)
	}

	w := &writeCursor{buf: buf}
	w.writeBytes(payload)
	require.NoError(t, w.err)
	assert.Equal(t, payload, buf.Bytes())
	assert.GreaterOrEqual(t, cap(buf.data), 2*initial)
}

func TestBufferGrowthCapped(t *testing.T) {
	p := NewBufferPool(1024)
	buf := p.Acquire(0)
	defer p.Release(buf)

	err := buf.ensure(2048)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBufferLimit)
}

func TestBufferFinalize(t *testing.T) {
	p := NewBufferPool(0)
	buf := p.Acquire(0)

	w := &writeCursor{buf: buf}
	w.writeUint32(0x2A)
	require.NoError(t, w.err)

	out := p.Finalize(buf, 0xCAFEBABE)
	p.Release(buf)

	require.Len(t, out, headerSize+4)
	assert.Equal(t, FormatVersion, out[0])
	assert.Equal(t, uint32(0xCAFEBABE), binary.BigEndian.Uint32(out[1:5]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(out[5:9]))
	// The sealed buffer owns its bytes; releasing the lease must not
	// disturb it.
	assert.Equal(t, []byte{0, 0, 0, 0x2A}, out[headerSize:])
}

func TestClassExp(t *testing.T) {
	assert.Equal(t, minClassExp, classExp(0))
	assert.Equal(t, minClassExp, classExp(256))
	assert.Equal(t, minClassExp+1, classExp(257))
	assert.Equal(t, 10, classExp(1024))
	assert.Equal(t, 11, classExp(1025))
}
