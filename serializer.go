package serial

import (
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
)

// Serializer is the minimal contract the Engine and the alternative
// format implementations share. Callers that only need the contract can
// swap the binary engine for JSON or CBOR without touching call sites.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, out any) error
}

var (
	_ Serializer = (*Engine)(nil)
	_ Serializer = (*JSONSerializer)(nil)
	_ Serializer = (*CBORSerializer)(nil)
)

// JSONSerializer is a conforming implementation over sonic's
// standard-compatible JSON configuration.
type JSONSerializer struct {
	api sonic.API
}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{api: sonic.ConfigStd}
}

func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	if v == nil {
		return nil, errors.Wrap(ErrArgument, "nil value")
	}
	data, err := s.api.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrEncoding, "json: %v", err)
	}
	return data, nil
}

func (s *JSONSerializer) Deserialize(data []byte, out any) error {
	if len(data) == 0 {
		return errors.Wrap(ErrArgument, "empty buffer")
	}
	if rv := reflect.ValueOf(out); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrap(ErrArgument, "target must be a non-nil pointer")
	}
	if err := s.api.Unmarshal(data, out); err != nil {
		return errors.Wrapf(ErrCorruptBuffer, "json: %v", err)
	}
	return nil
}

// CBORSerializer is a conforming implementation over canonical CBOR.
// Canonical encoding keeps the determinism property: equal values produce
// byte-identical buffers.
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORSerializer creates a CBOR serializer.
func NewCBORSerializer() (*CBORSerializer, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "serial: cbor encoder")
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, errors.Wrap(err, "serial: cbor decoder")
	}
	return &CBORSerializer{enc: enc, dec: dec}, nil
}

func (s *CBORSerializer) Serialize(v any) ([]byte, error) {
	if v == nil {
		return nil, errors.Wrap(ErrArgument, "nil value")
	}
	data, err := s.enc.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrEncoding, "cbor: %v", err)
	}
	return data, nil
}

func (s *CBORSerializer) Deserialize(data []byte, out any) error {
	if len(data) == 0 {
		return errors.Wrap(ErrArgument, "empty buffer")
	}
	if rv := reflect.ValueOf(out); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrap(ErrArgument, "target must be a non-nil pointer")
	}
	if err := s.dec.Unmarshal(data, out); err != nil {
		return errors.Wrapf(ErrCorruptBuffer, "cbor: %v", err)
	}
	return nil
}
