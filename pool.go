package serial

import (
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// minClassExp is the smallest size class exponent (1<<8 = 256 bytes).
	minClassExp = 8

	// DefaultMaxBufferSize caps a single buffer at 64 MiB unless
	// overridden with WithMaxBufferSize.
	DefaultMaxBufferSize = 64 << 20
)

// Buffer is a growable encode target leased from a BufferPool. It is owned
// by a single encode invocation and must be returned with Release on every
// exit path.
type Buffer struct {
	data []byte
	pool *BufferPool
}

// Len returns the number of payload bytes written so far.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the current payload. The slice aliases pooled storage and
// is only valid until Release.
func (b *Buffer) Bytes() []byte { return b.data }

// ensure grows the buffer so that n more bytes fit. Growth doubles the
// capacity, rounded to the next size class, and fails with ErrBufferLimit
// beyond the pool's configured maximum.
func (b *Buffer) ensure(n int) error {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return nil
	}
	if need > b.pool.maxSize {
		return errors.Wrapf(ErrBufferLimit, "need %d bytes, cap %d", need, b.pool.maxSize)
	}

	newCap := cap(b.data) * 2
	if newCap < need {
		newCap = need
	}
	if newCap > b.pool.maxSize {
		newCap = b.pool.maxSize
	}

	grown := b.pool.rawGet(newCap)
	grown = grown[:len(b.data)]
	copy(grown, b.data)
	b.pool.rawPut(b.data)
	b.data = grown
	return nil
}

// BufferPool acquires, grows, and releases the byte buffers used during
// encode. Backing storage is pooled by power-of-two size class. The leased
// counter tracks outstanding buffers so tests can assert zero leaks.
type BufferPool struct {
	maxSize int
	classes [bits.UintSize]sync.Pool
	leased  atomic.Int64
	logger  *zap.Logger
}

// NewBufferPool creates a pool whose buffers never grow past maxSize.
// A maxSize of 0 selects DefaultMaxBufferSize.
func NewBufferPool(maxSize int) *BufferPool {
	return newBufferPool(maxSize, zap.NewNop())
}

func newBufferPool(maxSize int, logger *zap.Logger) *BufferPool {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &BufferPool{maxSize: maxSize, logger: logger}
}

// MaxSize returns the configured single-buffer cap.
func (p *BufferPool) MaxSize() int { return p.maxSize }

// Leased returns the number of buffers currently checked out. After any
// sequence of completed operations it returns to zero.
func (p *BufferPool) Leased() int64 { return p.leased.Load() }

// Acquire leases a buffer with at least sizeHint capacity, preferring a
// pooled backing slice of sufficient size class.
func (p *BufferPool) Acquire(sizeHint int) *Buffer {
	if sizeHint > p.maxSize {
		sizeHint = p.maxSize
	}
	p.leased.Inc()
	return &Buffer{data: p.rawGet(sizeHint), pool: p}
}

// Release clears the buffer and returns its backing storage to the pool.
// Safe to call exactly once per Acquire; the buffer must not be used after.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil || b.data == nil {
		return
	}
	p.rawPut(b.data)
	b.data = nil
	p.leased.Dec()
}

// Finalize seals the buffer's content into a freshly allocated
// EncodedBuffer: header followed by payload. The pooled backing never
// escapes, so publication is atomic and the buffer can still be released.
func (p *BufferPool) Finalize(b *Buffer, typeID uint32) []byte {
	out := make([]byte, headerSize+len(b.data))
	putHeader(out, FormatVersion, typeID, uint32(len(b.data)))
	copy(out[headerSize:], b.data)
	return out
}

func (p *BufferPool) rawGet(capacity int) []byte {
	exp := classExp(capacity)
	if raw, ok := p.classes[exp].Get().(*[]byte); ok {
		return (*raw)[:0]
	}
	p.logger.Debug("allocating buffer class", zap.Int("capacity", 1<<exp))
	return make([]byte, 0, 1<<exp)
}

func (p *BufferPool) rawPut(data []byte) {
	full := data[:cap(data)]
	clear(full)
	p.classes[classExp(cap(data))].Put(&full)
}

// classExp returns the exponent of the smallest power-of-two size class
// holding n bytes, with a floor of minClassExp.
func classExp(n int) int {
	if n <= 1<<minClassExp {
		return minClassExp
	}
	return bits.Len(uint(n - 1))
}
