package serial

import (
	"context"
	"reflect"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Engine is the serialization facade. It orchestrates the type registry,
// the codec, and the buffer pool, and is safe for concurrent use from
// multiple goroutines.
type Engine struct {
	registry *Registry
	buffers  *BufferPool
	workers  *ants.Pool
	logger   *zap.Logger
	closed   atomic.Bool
}

type config struct {
	maxBufferSize int
	workers       int
	logger        *zap.Logger
}

// Option configures an Engine.
type Option func(*config)

// WithMaxBufferSize caps the size of a single encode buffer and of any
// declared length accepted during decode.
func WithMaxBufferSize(n int) Option {
	return func(c *config) { c.maxBufferSize = n }
}

// WithWorkers sets the size of the worker pool backing the asynchronous
// operations. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLogger sets the logger. The engine only logs at debug level; the
// default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates an Engine. Close it when done to release the worker pool.
func New(opts ...Option) (*Engine, error) {
	cfg := config{
		maxBufferSize: DefaultMaxBufferSize,
		workers:       runtime.GOMAXPROCS(0),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	workers, err := ants.NewPool(cfg.workers)
	if err != nil {
		return nil, errors.Wrap(err, "serial: worker pool")
	}
	return &Engine{
		registry: newRegistry(cfg.logger),
		buffers:  newBufferPool(cfg.maxBufferSize, cfg.logger),
		workers:  workers,
		logger:   cfg.logger,
	}, nil
}

// Close releases the worker pool. In-flight asynchronous operations run to
// completion; new submissions fail with ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.workers.Release()
	return nil
}

// Registry exposes the engine's type registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Buffers exposes the engine's buffer pool.
func (e *Engine) Buffers() *BufferPool { return e.buffers }

// Serialize encodes v into a self-describing buffer: a 9-byte header
// followed by v's fields in descriptor order. Encoding the same value
// twice produces byte-identical output.
func (e *Engine) Serialize(v any) ([]byte, error) {
	return e.serialize(context.Background(), v)
}

func (e *Engine) serialize(ctx context.Context, v any) ([]byte, error) {
	d, err := e.registry.ResolveValue(v)
	if err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errors.Wrap(ErrArgument, "nil pointer")
		}
		rv = rv.Elem()
	}

	buf := e.buffers.Acquire(d.sizeHint())
	defer e.buffers.Release(buf)

	w := &writeCursor{buf: buf}
	if err := encode(ctx, w, d, rv); err != nil {
		return nil, err
	}
	return e.buffers.Finalize(buf, d.ID), nil
}

// Deserialize decodes a buffer produced by Serialize into out, which must
// be a non-nil pointer to a struct. The buffer's embedded type identifier
// must match out's type exactly or through an additively compatible
// registered shape.
//
// The wire form does not distinguish a nil slice from an empty one: slice
// and []byte fields holding zero elements decode to nil.
func (e *Engine) Deserialize(data []byte, out any) error {
	return e.deserialize(context.Background(), data, out)
}

func (e *Engine) deserialize(ctx context.Context, data []byte, out any) error {
	if len(data) == 0 {
		return errors.Wrap(ErrArgument, "empty buffer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrap(ErrArgument, "target must be a non-nil pointer")
	}

	h, err := parseHeader(data)
	if err != nil {
		return err
	}

	reader, err := e.registry.Resolve(rv.Type().Elem())
	if err != nil {
		return err
	}

	writer := reader
	if h.typeID != reader.ID {
		known, ok := e.registry.Lookup(h.typeID)
		if !ok {
			return errors.Wrapf(ErrTypeMismatch, "buffer type %#08x, want %s (%#08x)", h.typeID, reader.Name, reader.ID)
		}
		if !known.prefixOf(reader) && !reader.prefixOf(known) {
			return errors.Wrapf(ErrTypeMismatch, "buffer type %s is not compatible with %s", known.Name, reader.Name)
		}
		writer = known
	}

	// Decode into a scratch value and publish on success only, so a
	// failed or cancelled decode never leaves out partially populated.
	scratch := reflect.New(rv.Type().Elem()).Elem()
	cur := &readCursor{data: data[headerSize:], limit: e.buffers.MaxSize()}
	if err := decode(ctx, cur, writer, reader, scratch); err != nil {
		return err
	}
	if cur.pos != len(cur.data) {
		return errors.Wrapf(ErrCorruptBuffer, "%d trailing payload bytes", len(cur.data)-cur.pos)
	}
	rv.Elem().Set(scratch)
	return nil
}

// Decode deserializes data into a fresh value of type T.
func Decode[T any](e *Engine, data []byte) (T, error) {
	var v T
	err := e.Deserialize(data, &v)
	return v, err
}

// Encode serializes v. Equivalent to e.Serialize but keeps call sites
// symmetric with Decode.
func Encode[T any](e *Engine, v T) ([]byte, error) {
	return e.Serialize(v)
}
