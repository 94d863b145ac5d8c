package serial

import (
	"encoding/binary"
	"reflect"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

var timeType = reflect.TypeOf(time.Time{})

// Registry maps runtime types to their TypeDescriptors. Resolution is
// memoized: the same type always yields the same descriptor instance for
// the process lifetime. Already-resolved lookups are lock-free reads; the
// first-registration race is resolved with a single writer lock, so shape
// introspection runs exactly once per type.
type Registry struct {
	mu     sync.Mutex
	types  *xsync.Map[reflect.Type, *TypeDescriptor]
	byID   *xsync.Map[uint32, *TypeDescriptor]
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return newRegistry(zap.NewNop())
}

func newRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		types:  xsync.NewMap[reflect.Type, *TypeDescriptor](),
		byID:   xsync.NewMap[uint32, *TypeDescriptor](),
		logger: logger,
	}
}

// Resolve returns the descriptor for t, registering it on first use.
// Pointer types resolve to their element's descriptor. Resolve fails with
// ErrUnsupportedType when the shape contains an unsupported kind or an
// unresolvable cycle.
func (r *Registry) Resolve(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, errors.Wrap(ErrArgument, "nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	// Fast path: already registered.
	if d, ok := r.types.Load(t); ok {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the registration race.
	if d, ok := r.types.Load(t); ok {
		return d, nil
	}
	return r.build(t, map[reflect.Type]bool{})
}

// ResolveValue resolves the descriptor for v's dynamic type.
func (r *Registry) ResolveValue(v any) (*TypeDescriptor, error) {
	if v == nil {
		return nil, errors.Wrap(ErrArgument, "nil value")
	}
	return r.Resolve(reflect.TypeOf(v))
}

// Lookup returns the registered descriptor with the given type identifier.
// It only sees types this process has resolved; unknown identifiers from
// foreign buffers return false.
func (r *Registry) Lookup(id uint32) (*TypeDescriptor, bool) {
	return r.byID.Load(id)
}

// build introspects t and caches the resulting descriptor. Caller holds
// r.mu. seen tracks in-progress shapes for cycle detection.
func (r *Registry) build(t reflect.Type, seen map[reflect.Type]bool) (*TypeDescriptor, error) {
	if d, ok := r.types.Load(t); ok {
		return d, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s: top-level values must be structs", t)
	}
	if seen[t] {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s: cyclic shape", t)
	}
	seen[t] = true
	defer delete(seen, t)

	d := &TypeDescriptor{
		Name:    qualifiedName(t),
		Version: FormatVersion,
		rtype:   t,
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("serial"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}

		fd := FieldDescriptor{Name: name, Offset: len(d.Fields), index: i}
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			fd.Nullable = true
			ft = ft.Elem()
			if ft.Kind() == reflect.Pointer {
				return nil, errors.Wrapf(ErrUnsupportedType, "%s.%s: multiple levels of indirection", t, sf.Name)
			}
		}

		var err error
		fd.Kind, fd.ElemKind, fd.Elem, err = r.fieldShape(ft, seen)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", t, sf.Name)
		}
		d.Fields = append(d.Fields, fd)

		if fd.Nullable {
			d.minSize++
		}
		if w := fd.Kind.fixedWidth(); w > 0 {
			d.minSize += w
		} else {
			d.minSize += lenPrefixSize
		}
	}

	sum := blake3.Sum256([]byte(d.Signature()))
	d.ID = binary.BigEndian.Uint32(sum[:4])

	r.types.Store(t, d)
	r.byID.Store(d.ID, d)
	r.logger.Debug("registered type",
		zap.String("type", d.Name),
		zap.Uint32("id", d.ID),
		zap.Int("fields", len(d.Fields)))
	return d, nil
}

// fieldShape classifies a non-pointer field type into its wire kind.
func (r *Registry) fieldShape(t reflect.Type, seen map[reflect.Type]bool) (Kind, Kind, *TypeDescriptor, error) {
	if t == timeType {
		return KindTime, KindInvalid, nil, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return KindBool, KindInvalid, nil, nil
	case reflect.Int8:
		return KindInt8, KindInvalid, nil, nil
	case reflect.Int16:
		return KindInt16, KindInvalid, nil, nil
	case reflect.Int32:
		return KindInt32, KindInvalid, nil, nil
	case reflect.Int64, reflect.Int:
		// Platform-width int normalizes to 8 bytes so buffers decode
		// identically across architectures.
		return KindInt64, KindInvalid, nil, nil
	case reflect.Uint8:
		return KindUint8, KindInvalid, nil, nil
	case reflect.Uint16:
		return KindUint16, KindInvalid, nil, nil
	case reflect.Uint32:
		return KindUint32, KindInvalid, nil, nil
	case reflect.Uint64, reflect.Uint:
		return KindUint64, KindInvalid, nil, nil
	case reflect.Float32:
		return KindFloat32, KindInvalid, nil, nil
	case reflect.Float64:
		return KindFloat64, KindInvalid, nil, nil
	case reflect.String:
		return KindString, KindInvalid, nil, nil

	case reflect.Slice:
		et := t.Elem()
		if et.Kind() == reflect.Uint8 {
			return KindBytes, KindInvalid, nil, nil
		}
		ek, eek, elem, err := r.fieldShape(et, seen)
		if err != nil {
			return KindInvalid, KindInvalid, nil, err
		}
		if ek == KindSlice || eek != KindInvalid {
			return KindInvalid, KindInvalid, nil, errors.Wrapf(ErrUnsupportedType, "nested slices (%s)", t)
		}
		return KindSlice, ek, elem, nil

	case reflect.Struct:
		elem, err := r.build(t, seen)
		if err != nil {
			return KindInvalid, KindInvalid, nil, err
		}
		return KindStruct, KindInvalid, elem, nil
	}

	return KindInvalid, KindInvalid, nil, errors.Wrapf(ErrUnsupportedType, "%s", t)
}

func qualifiedName(t reflect.Type) string {
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
