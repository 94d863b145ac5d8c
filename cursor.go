package serial

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// order is the byte order of all payload fields and length prefixes.
var order = binary.BigEndian

// writeCursor tracks the write position over a pooled buffer during a
// single encode pass. It latches the first error; subsequent writes become
// no-ops, so encode logic can run unconditionally and check once.
type writeCursor struct {
	buf *Buffer
	err error
}

func (w *writeCursor) pos() int { return w.buf.Len() }

func (w *writeCursor) writeByte(v byte) {
	if w.err != nil {
		return
	}
	if err := w.buf.ensure(1); err != nil {
		w.err = err
		return
	}
	w.buf.data = append(w.buf.data, v)
}

func (w *writeCursor) writeUint16(v uint16) {
	if w.err != nil {
		return
	}
	if err := w.buf.ensure(2); err != nil {
		w.err = err
		return
	}
	w.buf.data = order.AppendUint16(w.buf.data, v)
}

func (w *writeCursor) writeUint32(v uint32) {
	if w.err != nil {
		return
	}
	if err := w.buf.ensure(4); err != nil {
		w.err = err
		return
	}
	w.buf.data = order.AppendUint32(w.buf.data, v)
}

func (w *writeCursor) writeUint64(v uint64) {
	if w.err != nil {
		return
	}
	if err := w.buf.ensure(8); err != nil {
		w.err = err
		return
	}
	w.buf.data = order.AppendUint64(w.buf.data, v)
}

func (w *writeCursor) writeBytes(p []byte) {
	if w.err != nil || len(p) == 0 {
		return
	}
	if err := w.buf.ensure(len(p)); err != nil {
		w.err = err
		return
	}
	w.buf.data = append(w.buf.data, p...)
}

func (w *writeCursor) writeString(s string) {
	if w.err != nil || s == "" {
		return
	}
	if err := w.buf.ensure(len(s)); err != nil {
		w.err = err
		return
	}
	w.buf.data = append(w.buf.data, s...)
}

// patchUint32 overwrites a previously written length placeholder once the
// enclosed content size is known.
func (w *writeCursor) patchUint32(pos int, v uint32) {
	if w.err != nil {
		return
	}
	order.PutUint32(w.buf.data[pos:pos+4], v)
}

// readCursor tracks the read position over an encoded payload during a
// single decode pass. Every read is bounds checked against the remaining
// bytes and latches ErrTruncatedBuffer on underflow.
type readCursor struct {
	data  []byte
	pos   int
	limit int // max declared length accepted for a single field
	err   error
}

func (r *readCursor) remaining() int { return len(r.data) - r.pos }

// need checks that n more bytes are available, latching an error if not.
func (r *readCursor) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.remaining() < n {
		r.err = errors.Wrapf(ErrTruncatedBuffer, "need %d bytes at offset %d, have %d", n, r.pos, r.remaining())
		return false
	}
	return true
}

func (r *readCursor) readByte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *readCursor) readUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := order.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *readCursor) readUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := order.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *readCursor) readUint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := order.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// readLen reads a length prefix and validates it against the limit and the
// remaining payload, so a malformed prefix can never drive an oversized
// allocation or an out-of-bounds read.
func (r *readCursor) readLen() int {
	v := r.readUint32()
	if r.err != nil {
		return 0
	}
	n := int(v)
	if r.limit > 0 && n > r.limit {
		r.err = errors.Wrapf(ErrBufferLimit, "declared length %d exceeds cap %d", n, r.limit)
		return 0
	}
	if !r.need(n) {
		return 0
	}
	return n
}

func (r *readCursor) readBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *readCursor) skip(n int) {
	if !r.need(n) {
		return
	}
	r.pos += n
}
