package serial

import (
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/s2"
)

// The core keeps a single byte-buffer representation; these adapters
// convert at the boundary for text, stream, and compressed transports.

// EncodeToString renders an encoded buffer as base64 text.
func EncodeToString(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeString parses a base64 text buffer back into its byte form.
func DecodeString(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.Wrap(ErrArgument, "empty string")
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrArgument, "base64: %v", err)
	}
	return buf, nil
}

// WriteBuffer writes an encoded buffer to a stream after validating its
// header, so a malformed buffer is rejected before any bytes go out.
func WriteBuffer(w io.Writer, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, errors.Wrap(ErrArgument, "empty buffer")
	}
	if _, err := parseHeader(buf); err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err == nil && n < len(buf) {
		return n, io.ErrShortWrite
	}
	return n, err
}

// ReadBuffer reads one encoded buffer from a stream: the fixed header
// first, then a payload read bounded by maxSize so a corrupt length prefix
// cannot drive an unbounded allocation. A maxSize of 0 selects
// DefaultMaxBufferSize.
func ReadBuffer(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}

	head := make([]byte, headerSize)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrTruncatedBuffer, "stream ended inside header")
		}
		return nil, err
	}
	if head[0] != FormatVersion {
		return nil, errors.Wrapf(ErrCorruptBuffer, "unsupported format version %d", head[0])
	}
	length := binary.LittleEndian.Uint32(head[5:9])
	// Compare in uint64 so a large prefix cannot wrap int on 32-bit
	// platforms.
	if headerSize+uint64(length) > uint64(maxSize) {
		return nil, errors.Wrapf(ErrBufferLimit, "declared payload %d exceeds cap %d", length, maxSize)
	}

	buf := make([]byte, headerSize+int(length))
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[headerSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrTruncatedBuffer, "stream ended inside payload, declared %d bytes", length)
		}
		return nil, err
	}
	return buf, nil
}

// Compress returns an s2-compressed form of an encoded buffer for
// transports where payload size dominates.
func Compress(buf []byte) []byte {
	return s2.Encode(nil, buf)
}

// Decompress reverses Compress, bounded by maxSize. A maxSize of 0
// selects DefaultMaxBufferSize.
func Decompress(data []byte, maxSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrArgument, "empty buffer")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptBuffer, "s2: %v", err)
	}
	if n > maxSize {
		return nil, errors.Wrapf(ErrBufferLimit, "decompressed size %d exceeds cap %d", n, maxSize)
	}
	buf, err := s2.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptBuffer, "s2: %v", err)
	}
	return buf, nil
}
