package serial

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Wire header layout: byte 0 is the format version, bytes 1-4 the type
// identifier (big-endian, matching the raw shape hash bytes), bytes 5-8
// the payload length (little-endian).
const (
	headerSize    = 9
	lenPrefixSize = 4
)

type header struct {
	version uint8
	typeID  uint32
	length  uint32
}

func putHeader(b []byte, version uint8, typeID, length uint32) {
	b[0] = version
	binary.BigEndian.PutUint32(b[1:5], typeID)
	binary.LittleEndian.PutUint32(b[5:9], length)
}

// parseHeader validates header integrity against the actual buffer size.
// The declared payload length must equal the bytes that follow the header:
// fewer is a truncated buffer, more is a corrupt one.
func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize {
		return header{}, errors.Wrapf(ErrTruncatedBuffer, "have %d bytes, header needs %d", len(data), headerSize)
	}
	h := header{
		version: data[0],
		typeID:  binary.BigEndian.Uint32(data[1:5]),
		length:  binary.LittleEndian.Uint32(data[5:9]),
	}
	if h.version != FormatVersion {
		return header{}, errors.Wrapf(ErrCorruptBuffer, "unsupported format version %d", h.version)
	}
	actual := len(data) - headerSize
	switch {
	case actual < int(h.length):
		return header{}, errors.Wrapf(ErrTruncatedBuffer, "declared %d payload bytes, have %d", h.length, actual)
	case actual > int(h.length):
		return header{}, errors.Wrapf(ErrCorruptBuffer, "declared %d payload bytes, have %d", h.length, actual)
	}
	return h, nil
}

// Header reports the format version, type identifier, and payload length
// of an encoded buffer without decoding it.
func Header(data []byte) (version uint8, typeID, length uint32, err error) {
	if len(data) == 0 {
		return 0, 0, 0, errors.Wrap(ErrArgument, "empty buffer")
	}
	h, err := parseHeader(data)
	if err != nil {
		return 0, 0, 0, err
	}
	return h.version, h.typeID, h.length, nil
}
