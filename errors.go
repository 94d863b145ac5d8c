package serial

import "github.com/cockroachdb/errors"

var (
	// ErrArgument indicates invalid caller input, such as a nil value,
	// an empty buffer, or a non-pointer decode target. Never retried.
	ErrArgument = errors.New("serial: invalid argument")

	// ErrUnsupportedType indicates a type whose shape cannot be registered:
	// maps, channels, funcs, interfaces, complex numbers, or cyclic struct
	// shapes. Fatal for that type, surfaced at first use.
	ErrUnsupportedType = errors.New("serial: unsupported type")

	// ErrCorruptBuffer indicates a buffer whose header is inconsistent with
	// its content: unknown format version, or more payload bytes than the
	// header declares.
	ErrCorruptBuffer = errors.New("serial: corrupt buffer")

	// ErrTruncatedBuffer indicates a buffer that ended before all declared
	// bytes were read. Decoding never returns a partially populated value.
	ErrTruncatedBuffer = errors.New("serial: truncated buffer")

	// ErrTypeMismatch indicates that the type identifier embedded in a
	// buffer is not compatible with the requested target type.
	ErrTypeMismatch = errors.New("serial: type identifier mismatch")

	// ErrBufferLimit indicates that a buffer or a declared length exceeds
	// the configured maximum single-buffer size. This bounds allocation
	// from hostile or corrupt length prefixes.
	ErrBufferLimit = errors.New("serial: buffer size limit exceeded")

	// ErrEncoding indicates a codec-level constraint violation during
	// encode, such as a string or slice longer than the wire format can
	// represent.
	ErrEncoding = errors.New("serial: encoding constraint violated")

	// ErrEngineClosed indicates an operation submitted after Close.
	ErrEngineClosed = errors.New("serial: engine closed")
)
